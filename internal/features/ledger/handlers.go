package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/dice-bot/internal/bot/tg"
	"serotonyl.ru/dice-bot/internal/common"
)

// CallbackPlay — данные inline-кнопки «Бросить ещё».
const CallbackPlay = "play"

// Handler обрабатывает игровые команды бота.
type Handler struct {
	service *Service
	bot     tg.Sender
}

// NewHandler создаёт обработчик.
func NewHandler(service *Service, bot tg.Sender) *Handler {
	return &Handler{service: service, bot: bot}
}

// PlayKeyboard — кнопка для следующего броска.
func PlayKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🎲 Бросить ещё", CallbackPlay),
		),
	)
}

// HandlePlay обрабатывает /play, /dice, !кости.
//
// Формат ответа:
//
//	🎲 Вы: 6, бот: 2. 🎉 Победа! +10 очков
//	💰 Баланс: 10 очков
//	🎯 Осталось игр сегодня: 9
func (h *Handler) HandlePlay(ctx context.Context, chatID, userID int64) {
	res, err := h.service.Play(ctx, userID)
	if err != nil {
		h.sendError(chatID, err)
		return
	}

	text := fmt.Sprintf("%s\n💰 Баланс: %s\n🎯 Осталось игр сегодня: %d",
		res.Message, common.FormatPoints(res.Points), res.Remaining)

	msg := tgbotapi.NewMessage(chatID, text)
	if res.Remaining > 0 {
		msg.ReplyMarkup = PlayKeyboard()
	}
	tg.Send(h.bot, msg)
}

// HandlePlayCallback обрабатывает нажатие inline-кнопки.
func (h *Handler) HandlePlayCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if _, err := h.bot.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		log.WithError(err).Debug("Не удалось ответить на callback")
	}
	if cb.Message == nil {
		return
	}
	h.HandlePlay(ctx, cb.Message.Chat.ID, cb.From.ID)
}

// HandleHistory показывает последние 10 игр.
func (h *Handler) HandleHistory(ctx context.Context, chatID, userID int64) {
	plays, err := h.service.History(ctx, userID, 10)
	if err != nil {
		h.sendError(chatID, err)
		return
	}
	if len(plays) == 0 {
		tg.SendText(h.bot, chatID, "🎲 Вы ещё не играли. Бросить кубик: /play")
		return
	}

	var sb strings.Builder
	sb.WriteString("📜 Последние игры\n\n")
	for _, p := range plays {
		sb.WriteString(fmt.Sprintf("%s  %d:%d  %s  %s\n",
			p.OccurredAt.Format("02.01 15:04"), p.PlayerRoll, p.HouseRoll,
			OutcomeTitle(p.Outcome), common.FormatPointsDelta(p.PointsDelta)))
	}
	tg.SendText(h.bot, chatID, sb.String())
}

// HandleTodayRank показывает рейтинг игравших сегодня.
func (h *Handler) HandleTodayRank(ctx context.Context, chatID int64, limit int) {
	entries, err := h.service.TodayRanking(ctx, limit)
	if err != nil {
		h.sendError(chatID, err)
		return
	}
	if len(entries) == 0 {
		tg.SendText(h.bot, chatID, "📊 Сегодня ещё никто не играл.")
		return
	}

	var sb strings.Builder
	sb.WriteString("📊 Рейтинг дня\n\n")
	for i, e := range entries {
		sb.WriteString(fmt.Sprintf("%d. %s — %s (%d %s)\n",
			i+1, e.Name(), common.FormatPoints(e.Points),
			e.PlaysToday, common.PluralizePlays(e.PlaysToday)))
	}
	tg.SendText(h.bot, chatID, sb.String())
}

func (h *Handler) sendError(chatID int64, err error) {
	if errors.Is(err, common.ErrQuotaExceeded) {
		tg.SendText(h.bot, chatID, common.UserMessage(err)+"\n🎯 Осталось игр сегодня: 0")
		return
	}
	tg.SendText(h.bot, chatID, common.UserMessage(err))
}
