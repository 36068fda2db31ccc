package cli

import (
	"bufio"
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"serotonyl.ru/dice-bot/internal/common"
	"serotonyl.ru/dice-bot/internal/config"
	"serotonyl.ru/dice-bot/internal/features/admin"
	"serotonyl.ru/dice-bot/internal/features/identity"
	"serotonyl.ru/dice-bot/internal/model"
	"serotonyl.ru/dice-bot/internal/storage/postgres"
)

func parseAccountID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("некорректный id аккаунта: %q", raw)
	}
	return id, nil
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Применить миграции PostgreSQL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			pool, err := postgres.NewPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := postgres.Migrate(ctx, pool); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Миграции применены")
			return nil
		},
	}
}

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [пароль]",
		Short: "Хеш Argon2id для ADMIN_PASSWORD_HASH",
		Long:  "Без аргумента пароль читается из первой строки stdin.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password := ""
			if len(args) == 1 {
				password = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("не удалось прочитать пароль: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}

			hash, err := admin.HashPassword(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func newSignLoginCmd() *cobra.Command {
	var (
		token     string
		id        int64
		username  string
		firstName string
		authDate  int64
	)

	cmd := &cobra.Command{
		Use:   "sign-login",
		Short: "Подписать данные входа как Telegram Login Widget (для отладки /auth)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				cfg, err := config.Load()
				if err != nil {
					return fmt.Errorf("нужен --bot-token или конфигурация: %w", err)
				}
				token = cfg.TelegramBotToken
			}
			if id <= 0 {
				return fmt.Errorf("--id обязателен")
			}
			if authDate == 0 {
				authDate = time.Now().Unix()
			}

			fields := map[string]string{
				"id":        strconv.FormatInt(id, 10),
				"auth_date": strconv.FormatInt(authDate, 10),
			}
			if username != "" {
				fields["username"] = username
			}
			if firstName != "" {
				fields["first_name"] = firstName
			}
			fields["hash"] = identity.NewVerifier(token, 0, common.NewLocalClock(nil)).Sign(fields)

			values := url.Values{}
			for k, v := range fields {
				values.Set(k, v)
			}
			fmt.Fprintln(cmd.OutOrStdout(), values.Encode())
			return nil
		},
	}

	cmd.Flags().StringVar(&token, "bot-token", "", "Токен бота (по умолчанию TELEGRAM_BOT_TOKEN)")
	cmd.Flags().Int64Var(&id, "id", 0, "Telegram id")
	cmd.Flags().StringVar(&username, "username", "", "username")
	cmd.Flags().StringVar(&firstName, "first-name", "", "Имя")
	cmd.Flags().Int64Var(&authDate, "auth-date", 0, "auth_date (unix, по умолчанию сейчас)")

	return cmd
}

func newSweepCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Сбросить устаревшие дневные лимиты",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, opts, func(env *Env) error {
				n, err := env.Sweeper.Sweep(cmd.Context())
				if err != nil {
					return err
				}
				return printResult(cmd.OutOrStdout(), opts, map[string]int64{"reset": n},
					fmt.Sprintf("Сброшено лимитов: %d", n))
			})
		},
	}
}

func newModerationCmd(opts *options, blocked bool) *cobra.Command {
	use, short, done := "unblock <id>", "Разблокировать аккаунт", "разблокирован"
	if blocked {
		use, short, done = "block <id>", "Заблокировать аккаунт", "заблокирован"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseAccountID(args[0])
			if err != nil {
				return err
			}
			return withEnv(cmd, opts, func(env *Env) error {
				if err := env.Accounts.SetModeration(cmd.Context(), id, blocked); err != nil {
					return err
				}
				return printResult(cmd.OutOrStdout(), opts, map[string]any{"id": id, "blocked": blocked},
					fmt.Sprintf("Аккаунт %d %s", id, done))
			})
		},
	}
}

func newDeleteCmd(opts *options) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Удалить аккаунт вместе с журналом игр",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseAccountID(args[0])
			if err != nil {
				return err
			}
			if !yes {
				return fmt.Errorf("удаление необратимо, подтвердите флагом --yes")
			}
			return withEnv(cmd, opts, func(env *Env) error {
				if err := env.Accounts.Delete(cmd.Context(), id); err != nil {
					return err
				}
				return printResult(cmd.OutOrStdout(), opts, map[string]any{"id": id, "deleted": true},
					fmt.Sprintf("Аккаунт %d удалён", id))
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Подтвердить удаление")
	return cmd
}

func newSetBalanceCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "set-balance <id> <очки> <игр_сегодня>",
		Short: "Выставить очки и счётчик игр",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseAccountID(args[0])
			if err != nil {
				return err
			}
			points, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("некорректные очки: %q", args[1])
			}
			plays, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("некорректное число игр: %q", args[2])
			}
			return withEnv(cmd, opts, func(env *Env) error {
				if err := env.Accounts.OverrideBalance(cmd.Context(), id, points, plays); err != nil {
					return err
				}
				acc, err := env.Accounts.Get(cmd.Context(), id)
				if err != nil {
					return err
				}
				return printResult(cmd.OutOrStdout(), opts, acc,
					fmt.Sprintf("Аккаунт %d: %s, игр сегодня %d", id, common.FormatPoints(acc.Points), acc.PlaysToday))
			})
		},
	}
}

func newTopCmd(opts *options) *cobra.Command {
	var (
		limit int
		today bool
	)
	cmd := &cobra.Command{
		Use:   "top",
		Short: "Рейтинг по очкам",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, opts, func(env *Env) error {
				var sb strings.Builder
				if today {
					entries, err := env.Games.TodayRanking(cmd.Context(), limit)
					if err != nil {
						return err
					}
					for i, e := range entries {
						fmt.Fprintf(&sb, "%d. %s (%d) %s, игр %d\n", i+1, e.Name(), e.AccountID, common.FormatPoints(e.Points), e.PlaysToday)
					}
					return printResult(cmd.OutOrStdout(), opts, entries, strings.TrimRight(sb.String(), "\n"))
				}

				top, err := env.Accounts.Leaderboard(cmd.Context(), limit)
				if err != nil {
					return err
				}
				for i, a := range top {
					fmt.Fprintf(&sb, "%d. %s (%d) %s\n", i+1, a.Name(), a.ID, common.FormatPoints(a.Points))
				}
				return printResult(cmd.OutOrStdout(), opts, top, strings.TrimRight(sb.String(), "\n"))
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Сколько строк")
	cmd.Flags().BoolVar(&today, "today", false, "Только сыгравшие сегодня")
	return cmd
}

func newPlaysCmd(opts *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "plays <id>",
		Short: "Последние игры аккаунта",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseAccountID(args[0])
			if err != nil {
				return err
			}
			return withEnv(cmd, opts, func(env *Env) error {
				plays, err := env.Games.History(cmd.Context(), id, limit)
				if err != nil {
					return err
				}
				loc := env.Clock.Location()
				var sb strings.Builder
				for _, p := range plays {
					fmt.Fprintf(&sb, "%s  %d:%d  %-4s %+d\n",
						common.FormatDateTime(p.OccurredAt, loc), p.PlayerRoll, p.HouseRoll, p.Outcome, p.PointsDelta)
				}
				if len(plays) == 0 {
					sb.WriteString("Игр нет")
				}
				return printResult(cmd.OutOrStdout(), opts, plays, strings.TrimRight(sb.String(), "\n"))
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Сколько игр")
	return cmd
}

func newUsersCmd(opts *options) *cobra.Command {
	var (
		search  string
		blocked bool
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Список аккаунтов",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, opts, func(env *Env) error {
				f := model.AccountFilter{Keyword: search, Limit: limit}
				if cmd.Flags().Changed("blocked") {
					f.Blocked = &blocked
				}
				list, err := env.Accounts.Search(cmd.Context(), f)
				if err != nil {
					return err
				}
				var sb strings.Builder
				for _, a := range list {
					phone := "-"
					if a.Phone != nil {
						phone = *a.Phone
					}
					fmt.Fprintf(&sb, "%d\t%s\t%s\t%d\tприглашено %d", a.ID, a.Name(), phone, a.Points, a.InvitedCount)
					if a.Blocked {
						sb.WriteString("\tзаблокирован")
					}
					sb.WriteString("\n")
				}
				if len(list) == 0 {
					sb.WriteString("Никого не найдено")
				}
				return printResult(cmd.OutOrStdout(), opts, list, strings.TrimRight(sb.String(), "\n"))
			})
		},
	}
	cmd.Flags().StringVarP(&search, "search", "s", "", "Подстрока имени или телефона")
	cmd.Flags().BoolVar(&blocked, "blocked", false, "Только заблокированные (--blocked=false — только активные)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Сколько строк")
	return cmd
}

func newStatsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Сводка по аккаунтам",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, opts, func(env *Env) error {
				st, err := env.Accounts.Stats(cmd.Context())
				if err != nil {
					return err
				}
				return printResult(cmd.OutOrStdout(), opts, st, fmt.Sprintf(
					"Всего: %d\nС телефоном: %d\nЗаблокировано: %d\nОчков в игре: %s",
					st.Total, st.Verified, st.Blocked, common.FormatNumber(st.TotalPoints)))
			})
		},
	}
}
