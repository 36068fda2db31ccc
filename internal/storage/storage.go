// Package storage описывает контракт хранилища аккаунтов и игр.
// Реализации: postgres (основная) и memory (тесты и локальный запуск).
package storage

import (
	"context"
	"time"

	"serotonyl.ru/dice-bot/internal/model"
)

// Tx — операции внутри одной транзакции игры.
// AdjustBalance есть только здесь: менять очки и счётчик игр
// можно только вместе с записью об игре.
type Tx interface {
	// LockAccount читает аккаунт с блокировкой строки до конца транзакции.
	LockAccount(ctx context.Context, id int64) (*model.Account, error)
	// ResetQuota обнуляет дневной счётчик и ставит quotaDay = day.
	ResetQuota(ctx context.Context, id int64, day time.Time) error
	// AdjustBalance прибавляет очки и игры, если plays_today + playsDelta <= limit.
	// Иначе ничего не меняет и возвращает common.ErrQuotaExceeded.
	AdjustBalance(ctx context.Context, id int64, pointsDelta int64, playsDelta, limit int, at time.Time) (*model.Account, error)
	// InsertPlayRecord сохраняет запись и заполняет rec.ID.
	InsertPlayRecord(ctx context.Context, rec *model.PlayRecord) error
}

// AccountStore — операции над аккаунтами.
type AccountStore interface {
	GetAccount(ctx context.Context, id int64) (*model.Account, error)
	// UpsertOnBind создаёт аккаунт или обновляет имя/телефон.
	// referredBy выставляется только если ещё не задан. Возвращает created=true для нового.
	UpsertOnBind(ctx context.Context, p model.BindParams) (*model.Account, bool, error)
	// AttachReferral ставит referredBy, если он пуст. Возвращает, изменилось ли что-то.
	AttachReferral(ctx context.Context, id, referrerID int64) (bool, error)
	SetModeration(ctx context.Context, id int64, blocked bool) error
	OverrideBalance(ctx context.Context, id int64, points int64, playsToday int, day time.Time) error
	DeleteAccount(ctx context.Context, id int64) error
	ListTopByPoints(ctx context.Context, limit int) ([]*model.Account, error)
	ListReferredBy(ctx context.Context, id int64) ([]*model.InviteeSummary, error)
	SearchAccounts(ctx context.Context, f model.AccountFilter) ([]*model.AccountOverview, error)
	Stats(ctx context.Context) (*model.Stats, error)
	// SweepQuotas обнуляет счётчики всех аккаунтов с quotaDay < today (или NULL).
	SweepQuotas(ctx context.Context, today time.Time) (int64, error)
}

// PlayStore — транзакции игр и история.
type PlayStore interface {
	// InTx выполняет fn в одной транзакции. Ошибка fn откатывает всё.
	InTx(ctx context.Context, fn func(tx Tx) error) error
	ListPlays(ctx context.Context, accountID int64, limit int) ([]*model.PlayRecord, error)
	TodayRanking(ctx context.Context, day time.Time, limit int) ([]*model.DailyRankEntry, error)
}

// AdminStore — сессии и попытки входа в админку.
type AdminStore interface {
	CreateAdminSession(ctx context.Context, s *model.AdminSession) error
	// GetActiveAdminSession возвращает common.ErrSessionExpired, если активной сессии нет.
	GetActiveAdminSession(ctx context.Context, userID int64, now time.Time) (*model.AdminSession, error)
	DeactivateAdminSessions(ctx context.Context, userID int64) error
	TouchAdminSession(ctx context.Context, userID int64, at time.Time) error
	LogAdminAttempt(ctx context.Context, userID int64, success bool, at time.Time) error
	CountFailedAdminAttempts(ctx context.Context, userID int64, since time.Time) (int, error)
}

// Storage — полный контракт хранилища.
type Storage interface {
	AccountStore
	PlayStore
	AdminStore

	Ping(ctx context.Context) error
	Close()
}
