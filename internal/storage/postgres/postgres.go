// Package postgres — хранилище аккаунтов и игр в PostgreSQL.
// Используется пул соединений pgxpool для работы из многих горутин.
//
// Пул сам управляет открытием/закрытием соединений,
// переподключается при обрыве и ограничивает число соединений.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/dice-bot/internal/config"
	"serotonyl.ru/dice-bot/internal/storage"
)

var _ storage.Storage = (*Storage)(nil)

// Storage реализует storage.Storage поверх pgxpool.
type Storage struct {
	pool *pgxpool.Pool
}

// New оборачивает готовый пул.
func New(pool *pgxpool.Pool) *Storage {
	return &Storage{pool: pool}
}

// Pool возвращает пул (для миграций и health-check).
func (s *Storage) Pool() *pgxpool.Pool {
	return s.pool
}

// NewPool создаёт новый пул соединений к PostgreSQL.
//
// Параметры:
//   - ctx: контекст для отмены операции
//   - cfg: конфигурация с параметрами подключения
//
// Возвращает готовый к использованию пул или ошибку, если база недоступна.
//
// Пример:
//
//	pool, err := postgres.NewPool(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer pool.Close()
func NewPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return NewPoolFromDSN(ctx, cfg.DatabaseDSN(), cfg.DBMaxConns, cfg.DBMinConns)
}

// NewPoolFromDSN — то же, что NewPool, но по готовой строке подключения.
func NewPoolFromDSN(ctx context.Context, dsn string, maxConns, minConns int32) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга DSN: %w", err)
	}

	if maxConns > 0 {
		poolConfig.MaxConns = maxConns
	}
	if minConns >= 0 && minConns <= poolConfig.MaxConns {
		poolConfig.MinConns = minConns
	}
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания пула: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("база данных недоступна: %w", wrapErr("ping", err))
	}

	log.Info("Подключение к PostgreSQL установлено")
	return pool, nil
}

// Ping проверяет доступность базы.
func (s *Storage) Ping(ctx context.Context) error {
	return wrapErr("ping", s.pool.Ping(ctx))
}

// Close закрывает пул.
func (s *Storage) Close() {
	s.pool.Close()
}
