package bot

import (
	"context"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/dice-bot/internal/bot/filters"
	"serotonyl.ru/dice-bot/internal/bot/middleware"
	"serotonyl.ru/dice-bot/internal/bot/tg"
	"serotonyl.ru/dice-bot/internal/common"
	"serotonyl.ru/dice-bot/internal/config"
	"serotonyl.ru/dice-bot/internal/features/accounts"
	"serotonyl.ru/dice-bot/internal/features/admin"
	"serotonyl.ru/dice-bot/internal/features/ledger"
	"serotonyl.ru/dice-bot/internal/features/quota"
	"serotonyl.ru/dice-bot/internal/features/referral"
	"serotonyl.ru/dice-bot/internal/storage/memory"
	"serotonyl.ru/dice-bot/internal/web/session"
)

const gameChat int64 = -100500

func TestParseCommand(t *testing.T) {
	p := NewCommandParser()

	tests := []struct {
		name    string
		text    string
		cmd     string
		args    []string
		isValid bool
	}{
		{"слеш", "/play", "play", nil, true},
		{"восклицательный знак", "!кости", "кости", nil, true},
		{"точка", ".top", "top", nil, true},
		{"с аргументом", "/start ref_777", "start", []string{"ref_777"}, true},
		{"суффикс бота", "/play@dice_bot", "play", nil, true},
		{"регистр", "/PLAY", "play", nil, true},
		{"пробелы", "   /me   ", "me", nil, true},
		{"без префикса", "play", "", nil, false},
		{"только префикс", "/", "", nil, false},
		{"только суффикс", "/@dice_bot", "", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, args, ok := p.ParseCommand(tt.text)
			assert.Equal(t, tt.isValid, ok)
			assert.Equal(t, tt.cmd, cmd)
			assert.Equal(t, tt.args, args)
		})
	}
}

type botFixture struct {
	ctx   context.Context
	bot   *Bot
	rec   *tg.Recorder
	store *memory.Storage
}

func newBotFixture(t *testing.T) *botFixture {
	t.Helper()
	clock := common.FixedClock{T: time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)}
	store := memory.NewWithClock(clock)
	tracker := quota.NewTracker(clock)
	referrals := referral.NewService(store)
	acc := accounts.NewService(store, referrals, tracker, nil)
	games := ledger.NewService(store, tracker, ledger.NewSequenceRoller(6, 1))
	rec := &tg.Recorder{}

	cfg := &config.Config{LeaderboardSize: 10, BotMaxInflight: 4}
	adminSvc := admin.NewService(store, func(int64) bool { return false }, "", clock)

	b := New(nil, rec, cfg,
		accounts.NewHandler(acc, referrals, session.NewMemoryStore(clock), rec, "dice_bot", 10),
		ledger.NewHandler(games, rec),
		admin.NewHandler(adminSvc, acc, games, quota.NewSweeper(store, tracker), rec, common.NewLocalClock(time.UTC)),
		filters.NewChatFilter(gameChat),
	)
	t.Cleanup(b.rateLimiter.Close)

	return &botFixture{ctx: context.Background(), bot: b, rec: rec, store: store}
}

func privateMessage(userID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: userID, FirstName: "Вася", UserName: "vasya"},
		Chat: &tgbotapi.Chat{ID: userID, Type: "private"},
		Text: text,
	}}
}

func groupMessage(chatID, userID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: userID, FirstName: "Вася"},
		Chat: &tgbotapi.Chat{ID: chatID, Type: "supergroup"},
		Text: text,
	}}
}

func contactMessage(userID, contactUserID int64, phone string) tgbotapi.Update {
	upd := privateMessage(userID, "")
	upd.Message.Contact = &tgbotapi.Contact{PhoneNumber: phone, UserID: contactUserID, FirstName: "Вася"}
	return upd
}

func (f *botFixture) send(upd tgbotapi.Update) {
	f.bot.handleUpdate(f.ctx, upd)
}

func TestStartBindAndPlay(t *testing.T) {
	f := newBotFixture(t)

	f.send(privateMessage(555, "/start"))
	require.Len(t, f.rec.Messages, 1)
	assert.Contains(t, f.rec.Last().Text, "Привет")

	f.send(contactMessage(555, 555, "+7 999 000 00 00"))
	acc, err := f.store.GetAccount(f.ctx, 555)
	require.NoError(t, err)
	assert.Equal(t, "+79990000000", *acc.Phone)

	f.send(privateMessage(555, "/play"))
	assert.Contains(t, f.rec.Last().Text, "Победа")
	assert.Contains(t, f.rec.Last().Text, "Осталось игр сегодня: 9")

	f.send(privateMessage(555, "!профиль"))
	assert.Contains(t, f.rec.Last().Text, "осталось 9 из 10")
}

func TestStartWithReferral(t *testing.T) {
	f := newBotFixture(t)

	f.send(contactMessage(777, 777, "+70000000777"))
	f.send(privateMessage(555, "/start ref_777"))
	f.send(contactMessage(555, 555, "+70000000555"))

	acc, err := f.store.GetAccount(f.ctx, 555)
	require.NoError(t, err)
	require.NotNil(t, acc.ReferredBy)
	assert.Equal(t, int64(777), *acc.ReferredBy)

	f.send(privateMessage(777, "/рефералы"))
	assert.Contains(t, f.rec.Last().Text, "У вас 1")
	assert.Contains(t, f.rec.Last().Text, "ref_777")
}

func TestForeignContactIsRejected(t *testing.T) {
	f := newBotFixture(t)
	f.send(contactMessage(555, 999, "+70000000999"))

	_, err := f.store.GetAccount(f.ctx, 999)
	assert.ErrorIs(t, err, common.ErrAccountNotFound)
	_, err = f.store.GetAccount(f.ctx, 555)
	assert.ErrorIs(t, err, common.ErrAccountNotFound)
}

func TestChatFilter(t *testing.T) {
	f := newBotFixture(t)

	f.send(groupMessage(-1, 555, "/help"))
	assert.Empty(t, f.rec.Messages)

	f.send(groupMessage(gameChat, 555, "/help"))
	require.Len(t, f.rec.Messages, 1)
	assert.Contains(t, f.rec.Last().Text, "Команды")

	// /start в группе показывает справку
	f.send(groupMessage(gameChat, 555, "/start"))
	assert.Contains(t, f.rec.Last().Text, "Команды")

	f.send(groupMessage(gameChat, 555, "/bind"))
	assert.Contains(t, f.rec.Last().Text, "в личных сообщениях")
}

func TestPlayWithoutAccount(t *testing.T) {
	f := newBotFixture(t)
	f.send(privateMessage(1, "/dice"))
	assert.Equal(t, common.UserMessage(common.ErrAccountNotFound), f.rec.Last().Text)
}

func TestNonCommandIsIgnored(t *testing.T) {
	f := newBotFixture(t)
	f.send(privateMessage(1, "привет"))
	f.send(privateMessage(1, "/unknown"))
	assert.Empty(t, f.rec.Messages)
}

func TestPlayCallback(t *testing.T) {
	f := newBotFixture(t)
	f.send(contactMessage(555, 555, "+70000000555"))

	f.send(tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:   "cb-1",
		From: &tgbotapi.User{ID: 555},
		Message: &tgbotapi.Message{
			Chat: &tgbotapi.Chat{ID: 555, Type: "private"},
		},
		Data: ledger.CallbackPlay,
	}})

	require.NotEmpty(t, f.rec.Requests)
	assert.Contains(t, f.rec.Last().Text, "Победа")

	acc, err := f.store.GetAccount(f.ctx, 555)
	require.NoError(t, err)
	assert.Equal(t, ledger.WinPoints, acc.Points)
}

func TestRateLimit(t *testing.T) {
	f := newBotFixture(t)
	f.bot.rateLimiter.Close()
	f.bot.rateLimiter = middleware.NewRateLimiter(1, time.Minute)
	t.Cleanup(f.bot.rateLimiter.Close)

	f.send(privateMessage(1, "/help"))
	f.send(privateMessage(1, "/help"))
	assert.Len(t, f.rec.Messages, 1)
}
