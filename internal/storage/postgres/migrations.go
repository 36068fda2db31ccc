package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

// migration — одна версия схемы. SQL встроен в код для упрощения деплоя.
type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{1, migration001Accounts},
	{2, migration002PlayRecords},
	{3, migration003Admin},
}

// Migrate создаёт таблицу версий и применяет все недостающие миграции по порядку.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if err := RunMigrations(ctx, pool); err != nil {
		return err
	}
	for _, m := range migrations {
		applied, err := ExecMigrationSQL(ctx, pool, m.version, m.sql)
		if err != nil {
			return fmt.Errorf("миграция %d: %w", m.version, err)
		}
		if applied {
			log.Infof("Миграция %d применена", m.version)
		}
	}
	return nil
}

// RunMigrations готовит систему миграций: таблицу schema_migrations.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("не удалось получить соединение: %w", wrapErr("acquire", err))
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("ошибка создания таблицы миграций: %w", err)
	}

	log.Debug("Система миграций готова")
	return nil
}

// ExecMigrationSQL выполняет одну миграцию в транзакции.
// Если запрос упадёт, транзакция откатится. Возвращает true, если миграция применена сейчас.
func ExecMigrationSQL(ctx context.Context, pool *pgxpool.Pool, version int, sql string) (bool, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("ошибка начала транзакции: %w", wrapErr("begin", err))
	}
	defer tx.Rollback(ctx)

	var exists bool
	err = tx.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)", version,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки миграции: %w", err)
	}
	if exists {
		return false, nil
	}

	if _, err := tx.Exec(ctx, sql); err != nil {
		return false, fmt.Errorf("ошибка выполнения миграции %d: %w", version, err)
	}

	if _, err := tx.Exec(ctx,
		"INSERT INTO schema_migrations (version) VALUES ($1)", version,
	); err != nil {
		return false, fmt.Errorf("ошибка записи версии миграции: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, wrapErr("commit", err)
	}
	return true, nil
}

var migration001Accounts = `
CREATE TABLE IF NOT EXISTS accounts (
    id BIGINT PRIMARY KEY,
    display_name VARCHAR(255),
    phone VARCHAR(32),
    points BIGINT NOT NULL DEFAULT 0,
    plays_today INTEGER NOT NULL DEFAULT 0 CHECK (plays_today >= 0),
    quota_day DATE,
    referred_by BIGINT CHECK (referred_by <> id),
    blocked BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    last_play_at TIMESTAMPTZ,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS uq_accounts_phone ON accounts(phone) WHERE phone IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_accounts_referred_by ON accounts(referred_by);
CREATE INDEX IF NOT EXISTS idx_accounts_points ON accounts(points DESC);
CREATE INDEX IF NOT EXISTS idx_accounts_quota_day ON accounts(quota_day);
`

var migration002PlayRecords = `
CREATE TABLE IF NOT EXISTS play_records (
    id BIGSERIAL PRIMARY KEY,
    account_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
    player_roll SMALLINT NOT NULL CHECK (player_roll BETWEEN 1 AND 6),
    house_roll SMALLINT NOT NULL CHECK (house_roll BETWEEN 1 AND 6),
    outcome VARCHAR(8) NOT NULL CHECK (outcome IN ('win', 'loss', 'draw')),
    points_delta INTEGER NOT NULL,
    occurred_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_play_records_account ON play_records(account_id, occurred_at DESC);
CREATE INDEX IF NOT EXISTS idx_play_records_occurred_at ON play_records(occurred_at);
`

var migration003Admin = `
CREATE TABLE IF NOT EXISTS admin_sessions (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL,
    session_token VARCHAR(255) UNIQUE,
    authenticated_at TIMESTAMPTZ DEFAULT NOW(),
    expires_at TIMESTAMPTZ,
    last_activity TIMESTAMPTZ DEFAULT NOW(),
    is_active BOOLEAN DEFAULT TRUE
);
CREATE INDEX IF NOT EXISTS idx_admin_sessions_user_id ON admin_sessions(user_id);
CREATE TABLE IF NOT EXISTS admin_login_attempts (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT,
    attempt_time TIMESTAMPTZ DEFAULT NOW(),
    success BOOLEAN DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS idx_admin_login_attempts_user ON admin_login_attempts(user_id, attempt_time);
`
