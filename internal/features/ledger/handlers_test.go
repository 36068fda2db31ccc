package ledger

import (
	"context"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/dice-bot/internal/bot/tg"
	"serotonyl.ru/dice-bot/internal/common"
	"serotonyl.ru/dice-bot/internal/features/quota"
	"serotonyl.ru/dice-bot/internal/model"
	"serotonyl.ru/dice-bot/internal/storage/memory"
)

func TestHandlePlay(t *testing.T) {
	ctx := context.Background()
	clock := common.FixedClock{T: time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)}
	store := memory.NewWithClock(clock)
	_, _, err := store.UpsertOnBind(ctx, model.BindParams{ID: 1})
	require.NoError(t, err)

	rec := &tg.Recorder{}
	h := NewHandler(NewService(store, quota.NewTracker(clock), NewSequenceRoller(6, 2)), rec)

	h.HandlePlay(ctx, 1, 1)
	last := rec.Last()
	assert.Contains(t, last.Text, "Победа")
	assert.Contains(t, last.Text, "Осталось игр сегодня: 9")
	assert.IsType(t, tgbotapi.InlineKeyboardMarkup{}, last.ReplyMarkup)

	h.HandlePlayCallback(ctx, &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: 1},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 1}},
		Data:    CallbackPlay,
	})
	assert.Len(t, rec.Messages, 2)
	assert.Len(t, rec.Requests, 1, "callback is answered")

	h.HandleHistory(ctx, 1, 1)
	assert.Contains(t, rec.Last().Text, "6:2")
}

func TestHandlePlayErrors(t *testing.T) {
	ctx := context.Background()
	clock := common.FixedClock{T: time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)}
	store := memory.NewWithClock(clock)
	_, _, err := store.UpsertOnBind(ctx, model.BindParams{ID: 1})
	require.NoError(t, err)
	require.NoError(t, store.OverrideBalance(ctx, 1, 0, quota.DailyLimit, common.DateOf(clock.T)))

	rec := &tg.Recorder{}
	h := NewHandler(NewService(store, quota.NewTracker(clock), NewSequenceRoller(1, 1)), rec)

	h.HandlePlay(ctx, 1, 1)
	assert.Contains(t, rec.Last().Text, "Осталось игр сегодня: 0")

	h.HandlePlay(ctx, 2, 2)
	assert.Equal(t, common.UserMessage(common.ErrAccountNotFound), rec.Last().Text)

	require.NoError(t, store.SetModeration(ctx, 1, true))
	h.HandlePlay(ctx, 1, 1)
	assert.Equal(t, common.UserMessage(common.ErrBlocked), rec.Last().Text)
}
