package quota

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/dice-bot/internal/common"
	"serotonyl.ru/dice-bot/internal/model"
	"serotonyl.ru/dice-bot/internal/storage/memory"
)

var msk = time.FixedZone("MSK", 3*60*60)

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestTrackerFreshAccount(t *testing.T) {
	tr := NewTracker(common.FixedClock{T: time.Date(2024, 5, 2, 10, 0, 0, 0, msk)})
	a := &model.Account{PlaysToday: 4, QuotaDay: day(2024, 5, 2)}

	assert.False(t, tr.IsStale(a))
	assert.Equal(t, 6, tr.Remaining(a))
	assert.True(t, tr.CanPlay(a))
	assert.False(t, tr.Reconcile(a))
	assert.Equal(t, 4, a.PlaysToday)
}

func TestTrackerStaleAccountResetsToZero(t *testing.T) {
	tr := NewTracker(common.FixedClock{T: time.Date(2024, 5, 2, 10, 0, 0, 0, msk)})

	for _, a := range []*model.Account{
		{PlaysToday: 10, QuotaDay: day(2024, 5, 1)},
		{PlaysToday: 3},
	} {
		assert.True(t, tr.IsStale(a))
		assert.Equal(t, DailyLimit, tr.Remaining(a), "stale counter must not block play")

		assert.True(t, tr.Reconcile(a))
		assert.Equal(t, 0, a.PlaysToday)
		require.NotNil(t, a.QuotaDay)
		assert.True(t, a.QuotaDay.Equal(*day(2024, 5, 2)))
	}
}

func TestTrackerUsesLocalDate(t *testing.T) {
	// 23:30 UTC 1 мая это уже 2 мая в Москве
	tr := NewTracker(common.FixedClock{T: time.Date(2024, 5, 1, 23, 30, 0, 0, time.UTC).In(msk)})
	a := &model.Account{PlaysToday: 10, QuotaDay: day(2024, 5, 1)}

	assert.True(t, tr.IsStale(a))
	assert.True(t, tr.Today().Equal(*day(2024, 5, 2)))
}

func TestTrackerExhausted(t *testing.T) {
	tr := NewTracker(common.FixedClock{T: time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)})
	a := &model.Account{PlaysToday: DailyLimit, QuotaDay: day(2024, 5, 2)}

	assert.Equal(t, 0, tr.Remaining(a))
	assert.False(t, tr.CanPlay(a))
}

func TestClamp(t *testing.T) {
	tr := NewTracker(common.FixedClock{})
	assert.Equal(t, 0, tr.Clamp(-3))
	assert.Equal(t, 7, tr.Clamp(7))
	assert.Equal(t, DailyLimit, tr.Clamp(99))
}

func TestSweeper(t *testing.T) {
	ctx := context.Background()
	clock := common.FixedClock{T: time.Date(2024, 5, 2, 0, 0, 5, 0, time.UTC)}
	store := memory.NewWithClock(clock)

	for _, id := range []int64{1, 2} {
		_, _, err := store.UpsertOnBind(ctx, model.BindParams{ID: id})
		require.NoError(t, err)
	}
	require.NoError(t, store.OverrideBalance(ctx, 1, 0, 10, *day(2024, 5, 1)))

	sw := NewSweeper(store, NewTracker(clock))
	n, err := sw.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "stale and never-played accounts are both reset")

	n, err = sw.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	a, err := store.GetAccount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, a.PlaysToday)
}
