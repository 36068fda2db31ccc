// Package cli — команды dicectl: обслуживание базы и аккаунтов без бота.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"serotonyl.ru/dice-bot/internal/app"
	"serotonyl.ru/dice-bot/internal/common"
	"serotonyl.ru/dice-bot/internal/config"
	"serotonyl.ru/dice-bot/internal/features/accounts"
	"serotonyl.ru/dice-bot/internal/features/ledger"
	"serotonyl.ru/dice-bot/internal/features/quota"
	"serotonyl.ru/dice-bot/internal/features/referral"
	"serotonyl.ru/dice-bot/internal/storage"
)

// Env — сервисы движка поверх открытого хранилища.
type Env struct {
	Store    storage.Storage
	Clock    *common.LocalClock
	Accounts *accounts.Service
	Games    *ledger.Service
	Sweeper  *quota.Sweeper
}

// NewEnv собирает сервисы поверх хранилища.
func NewEnv(store storage.Storage, clock *common.LocalClock) *Env {
	tracker := quota.NewTracker(clock)
	return &Env{
		Store:    store,
		Clock:    clock,
		Accounts: accounts.NewService(store, referral.NewService(store), tracker, nil),
		Games:    ledger.NewService(store, tracker, nil),
		Sweeper:  quota.NewSweeper(store, tracker),
	}
}

// EnvOpener открывает окружение для команды.
type EnvOpener func(ctx context.Context) (*Env, error)

func openFromConfig(ctx context.Context) (*Env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	clock := common.NewLocalClock(common.LoadLocation(cfg.AppTimezone))
	store, err := app.OpenStorage(ctx, cfg, clock)
	if err != nil {
		return nil, err
	}
	return NewEnv(store, clock), nil
}

type options struct {
	output  string
	verbose bool
	open    EnvOpener
}

// NewRootCmd создаёт корневую команду.
func NewRootCmd() *cobra.Command {
	return newRootCmd(openFromConfig)
}

func newRootCmd(open EnvOpener) *cobra.Command {
	opts := &options{output: "text", open: open}

	rootCmd := &cobra.Command{
		Use:   "dicectl",
		Short: "Обслуживание игры в кости",
		Long: `dicectl — утилита администратора: миграции, модерация аккаунтов,
ручной сброс дневных лимитов, хеш пароля админки и подпись тестового входа.

Настройки берутся из тех же переменных окружения (и .env), что и у бота.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.output != "text" && opts.output != "json" {
				return fmt.Errorf("--output: text или json")
			}
			if opts.verbose {
				log.SetLevel(log.DebugLevel)
			} else {
				log.SetLevel(log.WarnLevel)
			}
			return nil
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.output, "output", "o", opts.output, "Формат вывода: text, json")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Подробные логи")

	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newHashPasswordCmd())
	rootCmd.AddCommand(newSignLoginCmd())
	rootCmd.AddCommand(newSweepCmd(opts))
	rootCmd.AddCommand(newModerationCmd(opts, true))
	rootCmd.AddCommand(newModerationCmd(opts, false))
	rootCmd.AddCommand(newDeleteCmd(opts))
	rootCmd.AddCommand(newSetBalanceCmd(opts))
	rootCmd.AddCommand(newTopCmd(opts))
	rootCmd.AddCommand(newPlaysCmd(opts))
	rootCmd.AddCommand(newUsersCmd(opts))
	rootCmd.AddCommand(newStatsCmd(opts))

	return rootCmd
}

// Execute запускает dicectl.
func Execute() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05"})
	log.SetOutput(os.Stderr)
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// withEnv открывает окружение, выполняет fn и закрывает хранилище.
func withEnv(cmd *cobra.Command, opts *options, fn func(env *Env) error) error {
	env, err := opts.open(cmd.Context())
	if err != nil {
		return err
	}
	defer env.Store.Close()
	return fn(env)
}

// printResult выводит v как JSON или текст.
func printResult(w io.Writer, opts *options, v any, text string) error {
	if opts.output == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprintln(w, text)
	return err
}
