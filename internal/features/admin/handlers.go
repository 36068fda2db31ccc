// Package admin — handlers.go обрабатывает взаимодействие с админ-панелью.
// Панель работает через Reply Keyboard в личных сообщениях.
// Поток: аутентификация → клавиатура → выбор действия → пошаговый диалог.
package admin

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/dice-bot/internal/bot/tg"
	"serotonyl.ru/dice-bot/internal/common"
	"serotonyl.ru/dice-bot/internal/features/accounts"
	"serotonyl.ru/dice-bot/internal/features/ledger"
	"serotonyl.ru/dice-bot/internal/features/quota"
	"serotonyl.ru/dice-bot/internal/model"
)

// Handler обрабатывает админ-команды.
type Handler struct {
	service  *Service
	accounts *accounts.Service
	games    *ledger.Service
	sweeper  *quota.Sweeper
	bot      tg.Sender
	loc      *common.LocalClock
}

// NewHandler создаёт обработчик админ-панели.
func NewHandler(service *Service, accountsService *accounts.Service, games *ledger.Service, sweeper *quota.Sweeper, bot tg.Sender, loc *common.LocalClock) *Handler {
	return &Handler{
		service:  service,
		accounts: accountsService,
		games:    games,
		sweeper:  sweeper,
		bot:      bot,
		loc:      loc,
	}
}

// HandleLogin обрабатывает /login: просит пароль или открывает панель.
func (h *Handler) HandleLogin(ctx context.Context, chatID, userID int64) {
	if !h.service.IsAdmin(userID) {
		h.sendMessage(chatID, common.UserMessage(common.ErrNotAdmin))
		return
	}
	if h.service.HasActiveSession(ctx, userID) {
		h.showKeyboard(chatID)
		return
	}
	h.sendMessage(chatID, "🔐 Введите пароль для доступа к админ-панели:")
	h.service.SetState(userID, StateAwaitingPassword, nil)
}

// HandleAdminMessage обрабатывает любое сообщение от администратора в DM.
// Возвращает false, если сообщение не относится к панели.
func (h *Handler) HandleAdminMessage(ctx context.Context, chatID, userID int64, text string) bool {
	if !h.service.IsAdmin(userID) {
		return false
	}

	text = strings.TrimSpace(text)
	state := h.service.GetState(userID)

	if state != nil && state.State == StateAwaitingPassword {
		h.handlePasswordInput(ctx, chatID, userID, text)
		return true
	}

	if !isPanelInput(text, state) {
		return false
	}

	if !h.service.HasActiveSession(ctx, userID) {
		h.sendMessage(chatID, "🔐 Сессия истекла. Введите пароль:")
		h.service.SetState(userID, StateAwaitingPassword, nil)
		return true
	}
	h.service.Touch(ctx, userID)

	if text == "Отмена" || text == "/cancel" {
		h.service.ClearState(userID)
		h.sendMessage(chatID, "↩️ Действие отменено")
		return true
	}

	if state != nil {
		switch state.State {
		case StateSearchQuery:
			h.service.ClearState(userID)
			h.listUsers(ctx, chatID, text)
			return true
		case StateBlockSelect:
			h.handleModeration(ctx, chatID, userID, text, true)
			return true
		case StateUnblockSelect:
			h.handleModeration(ctx, chatID, userID, text, false)
			return true
		case StateBalanceSelect:
			h.handleBalanceSelect(ctx, chatID, userID, text)
			return true
		case StateBalanceValue:
			h.handleBalanceValue(ctx, chatID, userID, state, text)
			return true
		case StateDeleteSelect:
			h.handleDeleteSelect(ctx, chatID, userID, text)
			return true
		case StateDeleteConfirm:
			h.handleDeleteConfirm(ctx, chatID, userID, state, text)
			return true
		case StatePlaysSelect:
			h.handlePlaysSelect(ctx, chatID, userID, text)
			return true
		}
	}

	switch text {
	case ButtonUsers:
		h.listUsers(ctx, chatID, "")
	case ButtonSearch:
		h.ask(userID, chatID, StateSearchQuery, "🔍 Введите id, имя или телефон:")
	case ButtonBlock:
		h.ask(userID, chatID, StateBlockSelect, "⛔ Введите id игрока для блокировки:")
	case ButtonUnblock:
		h.ask(userID, chatID, StateUnblockSelect, "✅ Введите id игрока для разблокировки:")
	case ButtonBalance:
		h.ask(userID, chatID, StateBalanceSelect, "💰 Введите id игрока:")
	case ButtonDelete:
		h.ask(userID, chatID, StateDeleteSelect, "🗑 Введите id игрока для удаления:")
	case ButtonPlays:
		h.ask(userID, chatID, StatePlaysSelect, "📜 Введите id игрока:")
	case ButtonTodayRank:
		h.showTodayRank(ctx, chatID)
	case ButtonSweep:
		h.runSweep(ctx, chatID)
	case ButtonStats:
		h.showStats(ctx, chatID)
	case ButtonLogout:
		if err := h.service.Logout(ctx, userID); err != nil {
			log.WithError(err).Error("Ошибка выхода из админки")
		}
		msg := tgbotapi.NewMessage(chatID, "🚪 Вы вышли из админ-панели")
		msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
		tg.Send(h.bot, msg)
	default:
		h.showKeyboard(chatID)
	}
	return true
}

// isPanelInput — относится ли текст к панели: кнопка, ответ на шаг
// диалога или вызов панели словом.
func isPanelInput(text string, state *AdminState) bool {
	if state != nil {
		return true
	}
	switch text {
	case ButtonUsers, ButtonSearch, ButtonBlock, ButtonUnblock, ButtonBalance,
		ButtonDelete, ButtonPlays, ButtonTodayRank, ButtonSweep, ButtonStats,
		ButtonLogout, "Админ", "Панель", "админ", "панель":
		return true
	}
	return false
}

// handlePasswordInput обрабатывает ввод пароля.
func (h *Handler) handlePasswordInput(ctx context.Context, chatID, userID int64, password string) {
	h.service.ClearState(userID)
	if err := h.service.VerifyPassword(ctx, userID, password); err != nil {
		h.sendMessage(chatID, common.UserMessage(err))
		return
	}
	h.sendMessage(chatID, "✅ Аутентификация успешна!")
	h.showKeyboard(chatID)
}

// showKeyboard отображает клавиатуру админ-панели.
func (h *Handler) showKeyboard(chatID int64) {
	keyboard := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(ButtonUsers),
			tgbotapi.NewKeyboardButton(ButtonSearch),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(ButtonBlock),
			tgbotapi.NewKeyboardButton(ButtonUnblock),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(ButtonBalance),
			tgbotapi.NewKeyboardButton(ButtonDelete),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(ButtonPlays),
			tgbotapi.NewKeyboardButton(ButtonTodayRank),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(ButtonSweep),
			tgbotapi.NewKeyboardButton(ButtonStats),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(ButtonLogout),
		),
	)

	msg := tgbotapi.NewMessage(chatID, "✅ Админ-панель открыта")
	msg.ReplyMarkup = keyboard
	tg.Send(h.bot, msg)
}

func (h *Handler) ask(userID, chatID int64, state, prompt string) {
	h.service.SetState(userID, state, nil)
	h.sendMessage(chatID, prompt+"\n(«Отмена» — прервать)")
}

// listUsers показывает первые 20 игроков, подходящих под запрос.
//
// Формат строки:
//
//	555 · vasya · +79991234567 · 150 очков · 3/10 · от: petya (2) ⛔
func (h *Handler) listUsers(ctx context.Context, chatID int64, keyword string) {
	list, err := h.accounts.Search(ctx, model.AccountFilter{Keyword: keyword, Limit: 20})
	if err != nil {
		h.sendMessage(chatID, common.UserMessage(err))
		return
	}
	if len(list) == 0 {
		h.sendMessage(chatID, "🤷 Никого не найдено")
		return
	}

	var sb strings.Builder
	sb.WriteString("👥 Игроки\n\n")
	for _, o := range list {
		phone := "—"
		if o.Phone != nil {
			phone = *o.Phone
		}
		sb.WriteString(fmt.Sprintf("%d · %s · %s · %s · %d/%d",
			o.ID, o.Name(), phone, common.FormatPoints(o.Points), o.PlaysToday, quota.DailyLimit))
		if o.InviterName != nil {
			sb.WriteString(" · от: " + *o.InviterName)
		}
		if o.InvitedCount > 0 {
			sb.WriteString(fmt.Sprintf(" (%d)", o.InvitedCount))
		}
		if o.Blocked {
			sb.WriteString(" ⛔")
		}
		sb.WriteString("\n")
	}
	h.sendMessage(chatID, sb.String())
}

func (h *Handler) handleModeration(ctx context.Context, chatID, userID int64, text string, blocked bool) {
	id, ok := parseID(text)
	if !ok {
		h.sendMessage(chatID, "❌ Неверный id. Попробуйте ещё раз.")
		return
	}
	h.service.ClearState(userID)

	if err := h.accounts.SetModeration(ctx, id, blocked); err != nil {
		h.sendMessage(chatID, common.UserMessage(err))
		return
	}
	if blocked {
		h.sendMessage(chatID, fmt.Sprintf("⛔ Игрок %d заблокирован", id))
	} else {
		h.sendMessage(chatID, fmt.Sprintf("✅ Игрок %d разблокирован", id))
	}
}

func (h *Handler) handleBalanceSelect(ctx context.Context, chatID, userID int64, text string) {
	id, ok := parseID(text)
	if !ok {
		h.sendMessage(chatID, "❌ Неверный id. Попробуйте ещё раз.")
		return
	}
	acc, err := h.accounts.Get(ctx, id)
	if err != nil {
		h.service.ClearState(userID)
		h.sendMessage(chatID, common.UserMessage(err))
		return
	}

	h.service.SetState(userID, StateBalanceValue, acc.ID)
	h.sendMessage(chatID, fmt.Sprintf(
		"Игрок %s: %s, игр сегодня %d.\nВведите новые значения: <очки> <игры>",
		acc.Name(), common.FormatPoints(acc.Points), acc.PlaysToday))
}

func (h *Handler) handleBalanceValue(ctx context.Context, chatID, userID int64, state *AdminState, text string) {
	id, _ := state.Data.(int64)
	points, plays, ok := parseBalance(text)
	if !ok {
		h.sendMessage(chatID, "❌ Формат: <очки> <игры>, например: 150 3")
		return
	}
	h.service.ClearState(userID)

	if err := h.accounts.OverrideBalance(ctx, id, points, plays); err != nil {
		h.sendMessage(chatID, common.UserMessage(err))
		return
	}
	acc, err := h.accounts.Get(ctx, id)
	if err != nil {
		h.sendMessage(chatID, common.UserMessage(err))
		return
	}
	h.sendMessage(chatID, fmt.Sprintf("✅ %s: %s, игр сегодня %d",
		acc.Name(), common.FormatPoints(acc.Points), acc.PlaysToday))
}

func (h *Handler) handleDeleteSelect(ctx context.Context, chatID, userID int64, text string) {
	id, ok := parseID(text)
	if !ok {
		h.sendMessage(chatID, "❌ Неверный id. Попробуйте ещё раз.")
		return
	}
	acc, err := h.accounts.Get(ctx, id)
	if err != nil {
		h.service.ClearState(userID)
		h.sendMessage(chatID, common.UserMessage(err))
		return
	}
	h.service.SetState(userID, StateDeleteConfirm, acc.ID)
	h.sendMessage(chatID, fmt.Sprintf("Удалить %s (%d) вместе с историей игр? Напишите «да».", acc.Name(), acc.ID))
}

func (h *Handler) handleDeleteConfirm(ctx context.Context, chatID, userID int64, state *AdminState, text string) {
	h.service.ClearState(userID)
	if !strings.EqualFold(text, "да") {
		h.sendMessage(chatID, "↩️ Удаление отменено")
		return
	}
	id, _ := state.Data.(int64)
	if err := h.accounts.Delete(ctx, id); err != nil {
		h.sendMessage(chatID, common.UserMessage(err))
		return
	}
	h.sendMessage(chatID, fmt.Sprintf("🗑 Игрок %d удалён", id))
}

func (h *Handler) handlePlaysSelect(ctx context.Context, chatID, userID int64, text string) {
	id, ok := parseID(text)
	if !ok {
		h.sendMessage(chatID, "❌ Неверный id. Попробуйте ещё раз.")
		return
	}
	h.service.ClearState(userID)

	plays, err := h.games.History(ctx, id, 20)
	if err != nil {
		h.sendMessage(chatID, common.UserMessage(err))
		return
	}
	if len(plays) == 0 {
		h.sendMessage(chatID, fmt.Sprintf("📜 Игрок %d ещё не играл", id))
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📜 Игры %d\n\n", id))
	for _, p := range plays {
		sb.WriteString(fmt.Sprintf("%s  %d:%d  %s  %s\n",
			common.FormatDateTime(p.OccurredAt, h.loc.Location()), p.PlayerRoll, p.HouseRoll,
			ledger.OutcomeTitle(p.Outcome), common.FormatPointsDelta(p.PointsDelta)))
	}
	h.sendMessage(chatID, sb.String())
}

func (h *Handler) showTodayRank(ctx context.Context, chatID int64) {
	entries, err := h.games.TodayRanking(ctx, 20)
	if err != nil {
		h.sendMessage(chatID, common.UserMessage(err))
		return
	}
	if len(entries) == 0 {
		h.sendMessage(chatID, "📊 Сегодня ещё никто не играл")
		return
	}
	var sb strings.Builder
	sb.WriteString("📊 Рейтинг дня\n\n")
	for i, e := range entries {
		sb.WriteString(fmt.Sprintf("%d. %s (%d) — %s, игр %d\n",
			i+1, e.Name(), e.AccountID, common.FormatPoints(e.Points), e.PlaysToday))
	}
	h.sendMessage(chatID, sb.String())
}

func (h *Handler) runSweep(ctx context.Context, chatID int64) {
	n, err := h.sweeper.Sweep(ctx)
	if err != nil {
		h.sendMessage(chatID, common.UserMessage(err))
		return
	}
	h.sendMessage(chatID, fmt.Sprintf("🔄 Сброшено дневных лимитов: %d", n))
}

func (h *Handler) showStats(ctx context.Context, chatID int64) {
	st, err := h.accounts.Stats(ctx)
	if err != nil {
		h.sendMessage(chatID, common.UserMessage(err))
		return
	}
	h.sendMessage(chatID, fmt.Sprintf(
		"📈 Статистика\n\nВсего игроков: %d\nС телефоном: %d\nЗаблокировано: %d\nОчков в игре: %s",
		st.Total, st.Verified, st.Blocked, common.FormatNumber(st.TotalPoints)))
}

func (h *Handler) sendMessage(chatID int64, text string) {
	tg.SendText(h.bot, chatID, text)
}

func parseID(text string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// parseBalance разбирает "<очки> <игры>".
func parseBalance(text string) (int64, int, bool) {
	fields := strings.Fields(text)
	if len(fields) != 2 {
		return 0, 0, false
	}
	points, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	plays, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, false
	}
	return points, plays, true
}
