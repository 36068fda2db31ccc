// Package accounts — handlers.go обрабатывает команды бота /start, /bind,
// /me, /rank, /invitees и присланный контакт.
package accounts

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/dice-bot/internal/bot/tg"
	"serotonyl.ru/dice-bot/internal/common"
	"serotonyl.ru/dice-bot/internal/features/referral"
)

// PendingInviterTTL — сколько помним пригласившего после /start ref_<id>.
const PendingInviterTTL = 24 * time.Hour

// InviterStore хранит пригласившего между /start и отправкой контакта.
type InviterStore interface {
	PutInviter(ctx context.Context, userID, inviterID int64, ttl time.Duration) error
	TakeInviter(ctx context.Context, userID int64) (int64, bool, error)
}

// Handler обрабатывает команды аккаунта.
type Handler struct {
	service     *Service
	referrals   *referral.Service
	inviters    InviterStore
	bot         tg.Sender
	botUsername string
	topSize     int
}

// NewHandler создаёт обработчик.
func NewHandler(service *Service, referrals *referral.Service, inviters InviterStore, bot tg.Sender, botUsername string, topSize int) *Handler {
	return &Handler{
		service:     service,
		referrals:   referrals,
		inviters:    inviters,
		bot:         bot,
		botUsername: botUsername,
		topSize:     topSize,
	}
}

// ContactKeyboard — клавиатура с кнопкой отправки своего номера.
func ContactKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButtonContact("📱 Поделиться номером"),
		),
	)
	kb.OneTimeKeyboard = true
	kb.ResizeKeyboard = true
	return kb
}

// HandleStart обрабатывает /start [ref_<id>].
// Пригласившего запоминаем до отправки контакта.
func (h *Handler) HandleStart(ctx context.Context, chatID, userID int64, payload string) {
	if inviterID, ok := referral.ParseInviter(payload); ok && inviterID != userID {
		if err := h.inviters.PutInviter(ctx, userID, inviterID, PendingInviterTTL); err != nil {
			log.WithError(err).WithField("user_id", userID).Warn("Не удалось сохранить пригласившего")
		}
	}

	if acc, err := h.service.Get(ctx, userID); err == nil && acc.IsVerified() {
		tg.SendText(h.bot, chatID, fmt.Sprintf(
			"👋 С возвращением, %s!\n\n🎲 Бросить кубик: /play\n👤 Профиль: /me", acc.Name()))
		return
	}

	msg := tgbotapi.NewMessage(chatID,
		"👋 Привет! Это игра в кости.\n\n"+
			"Каждый день доступно 10 бросков. Выиграл у бота +10 очков, "+
			"проиграл -5, ничья 0.\n\n"+
			"Чтобы начать, поделитесь номером телефона кнопкой ниже.")
	msg.ReplyMarkup = ContactKeyboard()
	tg.Send(h.bot, msg)
}

// HandleHelp — список команд.
func (h *Handler) HandleHelp(chatID int64) {
	tg.SendText(h.bot, chatID,
		"🎲 Команды\n\n"+
			"/play — бросить кубик\n"+
			"/me — профиль и остаток игр\n"+
			"/history — последние игры\n"+
			"/rank — лучшие игроки\n"+
			"/today — рейтинг дня\n"+
			"/invitees — приглашённые друзья\n"+
			"/bind — привязать телефон")
}

// HandleBind показывает кнопку отправки контакта.
func (h *Handler) HandleBind(chatID int64) {
	msg := tgbotapi.NewMessage(chatID, "📱 Нажмите кнопку ниже, чтобы поделиться номером.")
	msg.ReplyMarkup = ContactKeyboard()
	tg.Send(h.bot, msg)
}

// HandleContact привязывает присланный контакт.
// Принимаем только свой контакт: contact.user_id == from.id.
func (h *Handler) HandleContact(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.Contact == nil {
		return
	}
	chatID := msg.Chat.ID
	if msg.Contact.UserID != msg.From.ID {
		tg.SendText(h.bot, chatID, "📵 Отправьте свой номер кнопкой «Поделиться номером».")
		return
	}

	var inviter *int64
	if id, ok, err := h.inviters.TakeInviter(ctx, msg.From.ID); err != nil {
		log.WithError(err).WithField("user_id", msg.From.ID).Warn("Не удалось прочитать пригласившего")
	} else if ok {
		inviter = &id
	}

	name := msg.From.UserName
	if name == "" {
		name = strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
	}

	res, err := h.service.Bind(ctx, BindRequest{
		ID:          msg.From.ID,
		DisplayName: name,
		Phone:       msg.Contact.PhoneNumber,
		InviterID:   inviter,
	})

	reply := tgbotapi.NewMessage(chatID, "")
	reply.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
	if err != nil {
		if !IsRejection(err) {
			log.WithError(err).WithField("user_id", msg.From.ID).Error("Ошибка привязки телефона")
		}
		reply.Text = common.UserMessage(err)
		tg.Send(h.bot, reply)
		return
	}

	reply.Text = BindConfirmation(res.Account, res.Created)
	tg.Send(h.bot, reply)
}

// HandleProfile обрабатывает /me.
//
// Формат ответа:
//
//	👤 vasya
//	💰 Очки: 150 очков
//	🎯 Игр сегодня: осталось 7 из 10
//	👥 Приглашено: 2
func (h *Handler) HandleProfile(ctx context.Context, chatID, userID int64) {
	p, err := h.service.Profile(ctx, userID)
	if err != nil {
		tg.SendText(h.bot, chatID, common.UserMessage(err))
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("👤 %s\n", p.Account.Name()))
	sb.WriteString(fmt.Sprintf("💰 Очки: %s\n", common.FormatPoints(p.Account.Points)))
	sb.WriteString(fmt.Sprintf("🎯 Игр сегодня: осталось %d из %d\n", p.Remaining, p.Limit))
	sb.WriteString(fmt.Sprintf("👥 Приглашено: %d\n", p.Invited))
	if !p.Account.IsVerified() {
		sb.WriteString("\n📱 Телефон не привязан: /bind")
	}
	if p.Account.Blocked {
		sb.WriteString("\n⛔ Аккаунт заблокирован")
	}
	tg.SendText(h.bot, chatID, sb.String())
}

// HandleRank обрабатывает /rank и !топ.
func (h *Handler) HandleRank(ctx context.Context, chatID int64) {
	top, err := h.service.Leaderboard(ctx, h.topSize)
	if err != nil {
		tg.SendText(h.bot, chatID, common.UserMessage(err))
		return
	}
	if len(top) == 0 {
		tg.SendText(h.bot, chatID, "🏆 Рейтинг пока пуст.")
		return
	}

	medals := []string{"🥇", "🥈", "🥉"}
	var sb strings.Builder
	sb.WriteString("🏆 Лучшие игроки\n\n")
	for i, a := range top {
		place := fmt.Sprintf("%d.", i+1)
		if i < len(medals) {
			place = medals[i]
		}
		sb.WriteString(fmt.Sprintf("%s %s — %s\n", place, a.Name(), common.FormatPoints(a.Points)))
	}
	tg.SendText(h.bot, chatID, sb.String())
}

// HandleInvitees обрабатывает /invitees и !рефералы.
func (h *Handler) HandleInvitees(ctx context.Context, chatID, userID int64) {
	list, err := h.referrals.ListInvitees(ctx, userID)
	if err != nil {
		tg.SendText(h.bot, chatID, common.UserMessage(err))
		return
	}

	var sb strings.Builder
	if len(list) == 0 {
		sb.WriteString("👥 Вы пока никого не пригласили.\n")
	} else {
		sb.WriteString(fmt.Sprintf("👥 У вас %d %s\n\n", len(list), common.PluralizeInvitees(len(list))))
		for i, inv := range list {
			sb.WriteString(fmt.Sprintf("%d. %s — %s\n", i+1, inv.Name(), common.FormatPoints(inv.Points)))
		}
	}
	if h.botUsername != "" {
		sb.WriteString("\n🔗 Ваша ссылка: " + referral.InviteLink(h.botUsername, userID))
	}
	tg.SendText(h.bot, chatID, sb.String())
}
