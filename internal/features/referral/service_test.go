package referral

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

func setup(t *testing.T, ids ...int64) (*Service, *memory.Storage) {
	t.Helper()
	store := memory.NewWithClock(common.FixedClock{T: time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)})
	for _, id := range ids {
		_, _, err := store.UpsertOnBind(context.Background(), model.BindParams{ID: id})
		require.NoError(t, err)
	}
	return NewService(store), store
}

func TestAttributeOnce(t *testing.T) {
	ctx := context.Background()
	svc, store := setup(t, 111, 222, 555)

	changed, err := svc.Attribute(ctx, 555, 111)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = svc.Attribute(ctx, 555, 222)
	require.NoError(t, err)
	assert.False(t, changed, "existing attribution is never replaced")

	a, err := store.GetAccount(ctx, 555)
	require.NoError(t, err)
	require.NotNil(t, a.ReferredBy)
	assert.Equal(t, int64(111), *a.ReferredBy)
}

func TestAttributeSelfIsNoop(t *testing.T) {
	ctx := context.Background()
	svc, store := setup(t, 5)

	changed, err := svc.Attribute(ctx, 5, 5)
	require.NoError(t, err)
	assert.False(t, changed)

	a, err := store.GetAccount(ctx, 5)
	require.NoError(t, err)
	assert.Nil(t, a.ReferredBy)
}

func TestAttributeUnknownInviter(t *testing.T) {
	svc, _ := setup(t, 5)
	_, err := svc.Attribute(context.Background(), 5, 999)
	assert.ErrorIs(t, err, common.ErrInviterNotFound)
}

func TestAttributeUnknownAccount(t *testing.T) {
	svc, _ := setup(t, 1)
	_, err := svc.Attribute(context.Background(), 404, 1)
	assert.ErrorIs(t, err, common.ErrAccountNotFound)
}

func TestListInviteesInCreationOrder(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t, 1, 30, 20, 10)
	for _, id := range []int64{30, 20, 10} {
		_, err := svc.Attribute(ctx, id, 1)
		require.NoError(t, err)
	}

	list, err := svc.ListInvitees(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []int64{30, 20, 10}, []int64{list[0].ID, list[1].ID, list[2].ID})

	list, err = svc.ListInvitees(ctx, 30)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestParseInviter(t *testing.T) {
	cases := map[string]struct {
		id int64
		ok bool
	}{
		"ref_111": {111, true},
		"111":     {111, true},
		" ref_7 ": {7, true},
		"":        {0, false},
		"ref_":    {0, false},
		"ref_abc": {0, false},
		"ref_-3":  {0, false},
		"promo":   {0, false},
	}
	for in, want := range cases {
		id, ok := ParseInviter(in)
		assert.Equal(t, want.ok, ok, in)
		assert.Equal(t, want.id, id, in)
	}
}

func TestInviteLink(t *testing.T) {
	assert.Equal(t, "https://t.me/dice_bot?start=ref_42", InviteLink("dice_bot", 42))
}
