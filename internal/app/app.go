// Package app инициализирует все компоненты приложения.
// app.go — точка сборки: хранилище, Redis, сервисы движка, обработчики
// бота, веб-сервер и планировщик.
package app

import (
	"context"
	"fmt"
	"io"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/dice-bot/internal/bot"
	"serotonyl.ru/dice-bot/internal/bot/filters"
	"serotonyl.ru/dice-bot/internal/bot/tg"
	"serotonyl.ru/dice-bot/internal/common"
	"serotonyl.ru/dice-bot/internal/config"
	"serotonyl.ru/dice-bot/internal/features/accounts"
	"serotonyl.ru/dice-bot/internal/features/admin"
	"serotonyl.ru/dice-bot/internal/features/identity"
	"serotonyl.ru/dice-bot/internal/features/ledger"
	"serotonyl.ru/dice-bot/internal/features/quota"
	"serotonyl.ru/dice-bot/internal/features/referral"
	"serotonyl.ru/dice-bot/internal/jobs"
	"serotonyl.ru/dice-bot/internal/storage"
	"serotonyl.ru/dice-bot/internal/storage/memory"
	"serotonyl.ru/dice-bot/internal/storage/postgres"
	"serotonyl.ru/dice-bot/internal/web"
	"serotonyl.ru/dice-bot/internal/web/session"
)

// App содержит все компоненты приложения.
type App struct {
	Config    *config.Config
	Store     storage.Storage
	Pending   session.Store
	BotAPI    *tgbotapi.BotAPI
	Bot       *bot.Bot    // nil, если BOT_ENABLED=false
	Web       *web.Server // nil, если WEB_ENABLED=false
	Scheduler *jobs.Scheduler
}

// New создаёт и инициализирует приложение.
// Порядок инициализации важен: компоненты зависят друг от друга.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	clock := common.NewLocalClock(common.LoadLocation(cfg.AppTimezone))

	// === 1. Хранилище ===
	store, err := OpenStorage(ctx, cfg, clock)
	if err != nil {
		return nil, err
	}

	// === 2. Redis (незавершённые привязки, пригласившие) ===
	pending, err := openPending(ctx, cfg, clock)
	if err != nil {
		store.Close()
		return nil, err
	}

	// === 3. Telegram Bot API ===
	botAPI, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		closePending(pending)
		store.Close()
		return nil, fmt.Errorf("ошибка создания Telegram API: %w", err)
	}
	botAPI.Debug = cfg.AppEnv == "development" && log.IsLevelEnabled(log.TraceLevel)
	log.Infof("Авторизован как @%s", botAPI.Self.UserName)

	// === 4. Сервисы движка ===
	tracker := quota.NewTracker(clock)
	referralService := referral.NewService(store)
	accountsService := accounts.NewService(store, referralService, tracker, tg.NewNotifier(botAPI))
	games := ledger.NewService(store, tracker, nil)
	sweeper := quota.NewSweeper(store, tracker)
	adminService := admin.NewService(store, cfg.IsAdmin, cfg.AdminPasswordHash, clock)

	a := &App{
		Config:    cfg,
		Store:     store,
		Pending:   pending,
		BotAPI:    botAPI,
		Scheduler: jobs.NewScheduler(sweeper, clock.Location()),
	}

	// === 5. Бот ===
	if cfg.BotEnabled {
		a.Bot = bot.New(
			botAPI, botAPI, cfg,
			accounts.NewHandler(accountsService, referralService, pending, botAPI, botAPI.Self.UserName, cfg.LeaderboardSize),
			ledger.NewHandler(games, botAPI),
			admin.NewHandler(adminService, accountsService, games, sweeper, botAPI, clock),
			filters.NewChatFilter(cfg.GameChatID),
		)
	}

	// === 6. Веб ===
	if cfg.WebEnabled {
		a.Web = web.NewServer(
			cfg,
			accountsService, games, referralService,
			identity.NewVerifier(cfg.TelegramBotToken, cfg.AuthMaxAge, clock),
			pending,
			session.NewTokens(cfg.WebJWTSecret, cfg.WebSessionTTL, clock),
			store,
			clock,
			botAPI.Self.UserName,
		)
	}

	return a, nil
}

// OpenStorage открывает хранилище по STORAGE_TYPE.
// Для PostgreSQL сразу применяет миграции.
func OpenStorage(ctx context.Context, cfg *config.Config, clock common.Clock) (storage.Storage, error) {
	switch cfg.StorageType {
	case config.StorageMemory:
		log.Warn("Используется хранилище в памяти: данные пропадут при перезапуске")
		return memory.NewWithClock(clock), nil
	case config.StoragePostgres, "":
		pool, err := postgres.NewPool(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ошибка миграций: %w", err)
		}
		return postgres.New(pool), nil
	default:
		return nil, fmt.Errorf("неизвестный STORAGE_TYPE %q", cfg.StorageType)
	}
}

// openPending подключает Redis. Без REDIS_URL состояние держится в памяти
// процесса: годится только для одного экземпляра.
func openPending(ctx context.Context, cfg *config.Config, clock common.Clock) (session.Store, error) {
	if cfg.RedisURL == "" {
		log.Warn("REDIS_URL не задан: незавершённые привязки хранятся в памяти")
		return session.NewMemoryStore(clock), nil
	}
	store, err := session.NewRedisStore(ctx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	log.Info("Подключение к Redis установлено")
	return store, nil
}

func closePending(s session.Store) {
	if c, ok := s.(io.Closer); ok {
		if err := c.Close(); err != nil {
			log.WithError(err).Warn("Ошибка закрытия Redis")
		}
	}
}

// Run запускает планировщик, бота и веб-сервер и блокируется до отмены
// ctx или падения веб-сервера.
func (a *App) Run(ctx context.Context) error {
	if err := a.Scheduler.Start(ctx); err != nil {
		return err
	}
	defer a.Scheduler.Stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg     sync.WaitGroup
		errMu  sync.Mutex
		runErr error
	)

	if a.Bot != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Bot.Start(ctx)
		}()
	}

	if a.Web != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.Web.Start(ctx); err != nil {
				errMu.Lock()
				runErr = fmt.Errorf("веб-сервер: %w", err)
				errMu.Unlock()
				cancel()
			}
		}()
	}

	<-ctx.Done()
	wg.Wait()

	errMu.Lock()
	defer errMu.Unlock()
	return runErr
}

// Close освобождает соединения.
func (a *App) Close() {
	closePending(a.Pending)
	a.Store.Close()
}
