package session

import (
	"context"
	"sync"
	"time"

	"serotonyl.ru/dice-bot/internal/common"
)

type memEntry struct {
	bind      *PendingBind
	inviter   int64
	expiresAt time.Time
}

// MemoryStore — Store в памяти процесса для локального запуска без Redis.
// Состояние не разделяется между экземплярами.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memEntry
	clock   common.Clock
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore создаёт хранилище в памяти.
func NewMemoryStore(clock common.Clock) *MemoryStore {
	return &MemoryStore{entries: make(map[string]memEntry), clock: clock}
}

func (s *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

func (s *MemoryStore) put(key string, e memEntry, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ttl > 0 {
		e.expiresAt = s.clock.Now().Add(ttl)
	}
	s.entries[key] = e
}

func (s *MemoryStore) take(key string) (memEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return memEntry{}, false
	}
	delete(s.entries, key)
	if !e.expiresAt.IsZero() && !s.clock.Now().Before(e.expiresAt) {
		return memEntry{}, false
	}
	return e, true
}

func (s *MemoryStore) PutBind(_ context.Context, sid string, b *PendingBind, ttl time.Duration) error {
	c := *b
	s.put(bindKey(sid), memEntry{bind: &c}, ttl)
	return nil
}

func (s *MemoryStore) TakeBind(_ context.Context, sid string) (*PendingBind, bool, error) {
	e, ok := s.take(bindKey(sid))
	if !ok || e.bind == nil {
		return nil, false, nil
	}
	return e.bind, true, nil
}

func (s *MemoryStore) PutInviter(_ context.Context, userID, inviterID int64, ttl time.Duration) error {
	s.put(inviterKey(userID), memEntry{inviter: inviterID}, ttl)
	return nil
}

func (s *MemoryStore) TakeInviter(_ context.Context, userID int64) (int64, bool, error) {
	e, ok := s.take(inviterKey(userID))
	if !ok {
		return 0, false, nil
	}
	return e.inviter, true, nil
}
