package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"serotonyl.ru/dice-bot/internal/common"
)

type RedisStoreSuite struct {
	suite.Suite
	mini  *miniredis.Miniredis
	store *RedisStore
	ctx   context.Context
}

func (s *RedisStoreSuite) SetupTest() {
	s.mini = miniredis.RunT(s.T())
	s.store = NewRedisStoreWithClient(redis.NewClient(&redis.Options{Addr: s.mini.Addr()}))
	s.ctx = context.Background()
}

func (s *RedisStoreSuite) TearDownTest() {
	_ = s.store.Close()
}

func (s *RedisStoreSuite) TestBindIsTakenOnce() {
	inviter := int64(777)
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	err := s.store.PutBind(s.ctx, "sid-1", &PendingBind{Phone: "+79990000000", InviterID: &inviter, CreatedAt: created}, time.Minute)
	s.Require().NoError(err)
	s.True(s.mini.Exists("dice:bind:sid-1"))

	b, ok, err := s.store.TakeBind(s.ctx, "sid-1")
	s.Require().NoError(err)
	s.Require().True(ok)
	s.Equal("+79990000000", b.Phone)
	s.Require().NotNil(b.InviterID)
	s.Equal(inviter, *b.InviterID)
	s.True(created.Equal(b.CreatedAt))

	_, ok, err = s.store.TakeBind(s.ctx, "sid-1")
	s.NoError(err)
	s.False(ok)
}

func (s *RedisStoreSuite) TestBindExpires() {
	s.Require().NoError(s.store.PutBind(s.ctx, "sid-2", &PendingBind{Phone: "+70000000000"}, time.Minute))
	s.mini.FastForward(2 * time.Minute)

	_, ok, err := s.store.TakeBind(s.ctx, "sid-2")
	s.NoError(err)
	s.False(ok)
}

func (s *RedisStoreSuite) TestCorruptedBind() {
	s.Require().NoError(s.mini.Set("dice:bind:bad", "{not json"))
	_, _, err := s.store.TakeBind(s.ctx, "bad")
	s.Error(err)
}

func (s *RedisStoreSuite) TestInviter() {
	s.Require().NoError(s.store.PutInviter(s.ctx, 555, 777, time.Hour))

	id, ok, err := s.store.TakeInviter(s.ctx, 555)
	s.Require().NoError(err)
	s.True(ok)
	s.Equal(int64(777), id)

	_, ok, err = s.store.TakeInviter(s.ctx, 555)
	s.NoError(err)
	s.False(ok)
}

func (s *RedisStoreSuite) TestUnavailable() {
	s.mini.Close()

	err := s.store.PutInviter(s.ctx, 1, 2, time.Hour)
	s.ErrorIs(err, common.ErrStoreUnavailable)
	_, _, err = s.store.TakeBind(s.ctx, "x")
	s.ErrorIs(err, common.ErrStoreUnavailable)
	s.ErrorIs(s.store.Ping(s.ctx), common.ErrStoreUnavailable)
}

func TestRedisStoreSuite(t *testing.T) {
	suite.Run(t, new(RedisStoreSuite))
}

func TestNewRedisStoreBadURL(t *testing.T) {
	_, err := NewRedisStore(context.Background(), "not-a-url")
	assert.Error(t, err)
}

func TestNewRedisStoreConnects(t *testing.T) {
	mini := miniredis.RunT(t)
	store, err := NewRedisStore(context.Background(), "redis://"+mini.Addr()+"/0")
	require.NoError(t, err)
	defer store.Close()
	assert.NoError(t, store.Ping(context.Background()))
}

type stepClock struct{ t time.Time }

func (c *stepClock) Now() time.Time { return c.t }

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	clock := &stepClock{t: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	store := NewMemoryStore(clock)

	require.NoError(t, store.PutBind(ctx, "a", &PendingBind{Phone: "+71111111111"}, time.Minute))
	b, ok, err := store.TakeBind(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "+71111111111", b.Phone)
	_, ok, _ = store.TakeBind(ctx, "a")
	assert.False(t, ok)

	require.NoError(t, store.PutInviter(ctx, 5, 6, time.Minute))
	clock.t = clock.t.Add(time.Minute)
	_, ok, err = store.TakeInviter(ctx, 5)
	require.NoError(t, err)
	assert.False(t, ok, "истёкший пригласивший не отдаётся")

	require.NoError(t, store.PutInviter(ctx, 5, 6, time.Minute))
	id, ok, err := store.TakeInviter(ctx, 5)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(6), id)
}

func TestTokens(t *testing.T) {
	clock := &stepClock{t: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	tokens := NewTokens("0123456789abcdef0123", time.Hour, clock)

	raw, expires, err := tokens.Issue(555)
	require.NoError(t, err)
	assert.Equal(t, clock.t.Add(time.Hour), expires)

	claims, err := tokens.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, int64(555), claims.UserID)
	assert.Equal(t, "555", claims.Subject)
	assert.NotEmpty(t, claims.ID)

	other := NewTokens("another-secret-value!!", time.Hour, clock)
	_, err = other.Parse(raw)
	assert.ErrorIs(t, err, common.ErrAuthenticationFailed)

	_, err = tokens.Parse("garbage")
	assert.ErrorIs(t, err, common.ErrAuthenticationFailed)

	clock.t = clock.t.Add(2 * time.Hour)
	_, err = tokens.Parse(raw)
	assert.ErrorIs(t, err, common.ErrAuthenticationFailed)
}

func TestTokensHaveUniqueIDs(t *testing.T) {
	tokens := NewTokens("0123456789abcdef0123", time.Hour, common.FixedClock{T: time.Now()})
	a, _, err := tokens.Issue(1)
	require.NoError(t, err)
	b, _, err := tokens.Issue(1)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
