package accounts

import (
	"context"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/dice-bot/internal/bot/tg"
	"serotonyl.ru/dice-bot/internal/common"
	"serotonyl.ru/dice-bot/internal/features/quota"
	"serotonyl.ru/dice-bot/internal/features/referral"
	"serotonyl.ru/dice-bot/internal/storage/memory"
)

type mapInviters struct {
	mu sync.Mutex
	m  map[int64]int64
}

func (s *mapInviters) PutInviter(_ context.Context, userID, inviterID int64, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[userID] = inviterID
	return nil
}

func (s *mapInviters) TakeInviter(_ context.Context, userID int64) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.m[userID]
	delete(s.m, userID)
	return id, ok, nil
}

func newTestHandler(t *testing.T) (*Handler, *tg.Recorder, *memory.Storage) {
	t.Helper()
	clock := common.FixedClock{T: time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)}
	store := memory.NewWithClock(clock)
	refs := referral.NewService(store)
	svc := NewService(store, refs, quota.NewTracker(clock), nil)
	rec := &tg.Recorder{}
	return NewHandler(svc, refs, &mapInviters{m: map[int64]int64{}}, rec, "dice_bot", 10), rec, store
}

func contactMessage(from, owner int64, phone string) *tgbotapi.Message {
	return &tgbotapi.Message{
		From:    &tgbotapi.User{ID: from, UserName: "player"},
		Chat:    &tgbotapi.Chat{ID: from, Type: "private"},
		Contact: &tgbotapi.Contact{UserID: owner, PhoneNumber: phone},
	}
}

func TestStartThenContactRecordsInviter(t *testing.T) {
	ctx := context.Background()
	h, rec, store := newTestHandler(t)

	h.HandleContact(ctx, contactMessage(111, 111, "+70000000111"))
	h.HandleStart(ctx, 555, 555, "ref_111")
	h.HandleContact(ctx, contactMessage(555, 555, "1234567890"))

	acc, err := store.GetAccount(ctx, 555)
	require.NoError(t, err)
	require.NotNil(t, acc.ReferredBy)
	assert.Equal(t, int64(111), *acc.ReferredBy)
	assert.Contains(t, rec.Last().Text, "Телефон привязан")

	h.HandleInvitees(ctx, 111, 111)
	assert.Contains(t, rec.Last().Text, "1. player")
	assert.Contains(t, rec.Last().Text, "https://t.me/dice_bot?start=ref_111")
}

func TestContactOfAnotherUserIsRejected(t *testing.T) {
	ctx := context.Background()
	h, rec, store := newTestHandler(t)

	h.HandleContact(ctx, contactMessage(1, 2, "+70000000002"))

	_, err := store.GetAccount(ctx, 1)
	assert.ErrorIs(t, err, common.ErrAccountNotFound)
	assert.Contains(t, rec.Last().Text, "свой номер")
}

func TestContactWithBadPhone(t *testing.T) {
	h, rec, _ := newTestHandler(t)
	h.HandleContact(context.Background(), contactMessage(1, 1, "12"))
	assert.Equal(t, common.UserMessage(common.ErrInvalidPhone), rec.Last().Text)
}

func TestProfileOfUnknownUser(t *testing.T) {
	h, rec, _ := newTestHandler(t)
	h.HandleProfile(context.Background(), 1, 1)
	assert.Equal(t, common.UserMessage(common.ErrAccountNotFound), rec.Last().Text)
}

func TestRankEmptyAndFilled(t *testing.T) {
	ctx := context.Background()
	h, rec, _ := newTestHandler(t)

	h.HandleRank(ctx, 1)
	assert.Contains(t, rec.Last().Text, "пуст")

	h.HandleContact(ctx, contactMessage(1, 1, "+70000000001"))
	h.HandleRank(ctx, 1)
	assert.Contains(t, rec.Last().Text, "🥇 player")
}
