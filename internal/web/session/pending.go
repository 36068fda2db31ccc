// Package session хранит состояние фронтендов между запросами:
// незавершённые привязки телефона (веб), пригласившего до отправки
// контакта (бот) и подписанные токены веб-сессий.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"serotonyl.ru/dice-bot/internal/common"
)

// PendingBind — телефон, введённый на сайте до входа через Telegram.
type PendingBind struct {
	Phone     string    `json:"phone"`
	InviterID *int64    `json:"inviterId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store — хранилище незавершённых привязок и пригласивших.
// Take-операции одноразовые: прочитанное значение удаляется.
type Store interface {
	PutBind(ctx context.Context, sid string, b *PendingBind, ttl time.Duration) error
	TakeBind(ctx context.Context, sid string) (*PendingBind, bool, error)
	PutInviter(ctx context.Context, userID, inviterID int64, ttl time.Duration) error
	TakeInviter(ctx context.Context, userID int64) (int64, bool, error)
	Ping(ctx context.Context) error
}

const keyPrefix = "dice:"

func bindKey(sid string) string {
	return keyPrefix + "bind:" + sid
}

func inviterKey(userID int64) string {
	return keyPrefix + "inviter:" + strconv.FormatInt(userID, 10)
}

// RedisStore — Store поверх Redis.
type RedisStore struct {
	client *redis.Client
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore подключается по URL вида redis://host:6379/0 и проверяет связь.
func NewRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ошибка подключения к Redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// NewRedisStoreWithClient оборачивает готовый клиент (для тестов).
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Close закрывает соединение.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping проверяет доступность Redis.
func (s *RedisStore) Ping(ctx context.Context) error {
	return wrapRedisErr(s.client.Ping(ctx).Err())
}

func (s *RedisStore) PutBind(ctx context.Context, sid string, b *PendingBind, ttl time.Duration) error {
	data, err := json.Marshal(b)
	if err != nil {
		return err
	}
	return wrapRedisErr(s.client.Set(ctx, bindKey(sid), data, ttl).Err())
}

func (s *RedisStore) TakeBind(ctx context.Context, sid string) (*PendingBind, bool, error) {
	data, err := s.client.GetDel(ctx, bindKey(sid)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrapRedisErr(err)
	}

	var b PendingBind
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, false, fmt.Errorf("повреждённая привязка %s: %w", sid, err)
	}
	return &b, true, nil
}

func (s *RedisStore) PutInviter(ctx context.Context, userID, inviterID int64, ttl time.Duration) error {
	return wrapRedisErr(s.client.Set(ctx, inviterKey(userID), inviterID, ttl).Err())
}

func (s *RedisStore) TakeInviter(ctx context.Context, userID int64) (int64, bool, error) {
	id, err := s.client.GetDel(ctx, inviterKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, wrapRedisErr(err)
	}
	return id, true, nil
}

// wrapRedisErr помечает сбои Redis как ErrStoreUnavailable.
func wrapRedisErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("redis: %w: %w", common.ErrStoreUnavailable, err)
}
