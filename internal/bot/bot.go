// Package bot содержит главный модуль бота — запуск polling, фильтрацию
// и маршрутизацию апдейтов к обработчикам фич.
package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/dice-bot/internal/bot/filters"
	"serotonyl.ru/dice-bot/internal/bot/middleware"
	"serotonyl.ru/dice-bot/internal/bot/tg"
	"serotonyl.ru/dice-bot/internal/config"
	"serotonyl.ru/dice-bot/internal/features/accounts"
	"serotonyl.ru/dice-bot/internal/features/admin"
	"serotonyl.ru/dice-bot/internal/features/ledger"
)

// Bot — главная структура бота, объединяющая все компоненты.
type Bot struct {
	api    *tgbotapi.BotAPI
	sender tg.Sender
	cfg    *config.Config

	chatFilter  *filters.ChatFilter
	rateLimiter *middleware.RateLimiter

	accountsHandler *accounts.Handler
	ledgerHandler   *ledger.Handler
	adminHandler    *admin.Handler

	parser *CommandParser

	// ограничитель параллелизма обработки апдейтов
	inflight chan struct{}
}

// New создаёт новый экземпляр бота со всеми зависимостями.
// api нужен только для polling; ответы уходят через sender.
func New(
	api *tgbotapi.BotAPI,
	sender tg.Sender,
	cfg *config.Config,
	accountsHandler *accounts.Handler,
	ledgerHandler *ledger.Handler,
	adminHandler *admin.Handler,
	chatFilter *filters.ChatFilter,
) *Bot {
	maxInFlight := cfg.BotMaxInflight
	if maxInFlight <= 0 {
		maxInFlight = 64
	}

	return &Bot{
		api:             api,
		sender:          sender,
		cfg:             cfg,
		chatFilter:      chatFilter,
		rateLimiter:     middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow),
		accountsHandler: accountsHandler,
		ledgerHandler:   ledgerHandler,
		adminHandler:    adminHandler,
		parser:          NewCommandParser(),
		inflight:        make(chan struct{}, maxInFlight),
	}
}

// Start запускает polling обновлений от Telegram и блокируется до отмены ctx.
func (b *Bot) Start(ctx context.Context) {
	defer b.rateLimiter.Close()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.cfg.BotUpdateTimeoutSeconds
	u.AllowedUpdates = []string{"message", "callback_query"}

	updates := b.api.GetUpdatesChan(u)

	log.WithFields(log.Fields{
		"max_inflight": cap(b.inflight),
		"timeout_sec":  b.cfg.BotUpdateTimeoutSeconds,
	}).Info("Бот запущен и ожидает сообщения...")

	for {
		select {
		case <-ctx.Done():
			log.Info("Бот останавливается (ctx done)...")
			b.api.StopReceivingUpdates()
			return

		case update, ok := <-updates:
			if !ok {
				log.Info("Канал updates закрыт, бот остановлен")
				return
			}

			// лимит параллелизма
			b.inflight <- struct{}{}
			go func(upd tgbotapi.Update) {
				defer func() { <-b.inflight }()
				b.handleUpdate(ctx, upd)
			}(update)
		}
	}
}

// handleUpdate обрабатывает одно обновление от Telegram.
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer middleware.RecoverFromPanic(update.UpdateID)

	if update.CallbackQuery != nil {
		b.handleCallback(ctx, update.CallbackQuery)
		return
	}

	message := update.Message
	if message == nil {
		return
	}

	middleware.LogMessage(message)

	if !b.chatFilter.CheckAccess(message) {
		return
	}

	chatID := message.Chat.ID
	userID := message.From.ID

	if !b.rateLimiter.Allow(userID) {
		log.WithField("user_id", userID).Debug("rate limited")
		return
	}

	// Контакт для привязки телефона
	if message.Contact != nil {
		if b.chatFilter.AllowsContact(message) {
			b.accountsHandler.HandleContact(ctx, message)
		}
		return
	}

	if message.Text == "" {
		return
	}

	// В DM проверяем админ-панель
	if message.Chat.IsPrivate() {
		if b.adminHandler.HandleAdminMessage(ctx, chatID, userID, message.Text) {
			return
		}
	}

	cmd, args, isCommand := b.parser.ParseCommand(message.Text)
	if !isCommand {
		return
	}
	log.WithFields(log.Fields{
		"cmd":  cmd,
		"args": args,
	}).Debug("parsed command")

	b.routeCommand(ctx, message, cmd, args)
}

// handleCallback обрабатывает нажатие inline-кнопок.
func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	middleware.LogCallback(cb)

	if cb.From == nil || cb.Message == nil {
		return
	}
	// Фильтр проверяет чат сообщения с кнопкой и того, кто нажал
	probe := &tgbotapi.Message{Chat: cb.Message.Chat, From: cb.From}
	if !b.chatFilter.CheckAccess(probe) {
		return
	}
	if !b.rateLimiter.Allow(cb.From.ID) {
		if _, err := b.sender.Request(tgbotapi.NewCallback(cb.ID, "⏳ Не так быстро")); err != nil {
			log.WithError(err).Debug("Не удалось ответить на callback")
		}
		return
	}

	switch cb.Data {
	case ledger.CallbackPlay:
		b.ledgerHandler.HandlePlayCallback(ctx, cb)
	default:
		if _, err := b.sender.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
			log.WithError(err).Debug("Не удалось ответить на callback")
		}
	}
}

// routeCommand маршрутизирует команду к нужному обработчику.
func (b *Bot) routeCommand(ctx context.Context, message *tgbotapi.Message, cmd string, args []string) {
	chatID := message.Chat.ID
	userID := message.From.ID
	private := message.Chat.IsPrivate()

	switch cmd {
	case "start":
		if !private {
			b.accountsHandler.HandleHelp(chatID)
			return
		}
		payload := ""
		if len(args) > 0 {
			payload = args[0]
		}
		b.accountsHandler.HandleStart(ctx, chatID, userID, payload)

	case "help", "помощь":
		b.accountsHandler.HandleHelp(chatID)

	case "bind", "телефон":
		if private {
			b.accountsHandler.HandleBind(chatID)
		} else {
			b.sendMessage(chatID, "📱 Привязать телефон можно в личных сообщениях бота.")
		}

	case "play", "dice", "кости", "кубик":
		b.ledgerHandler.HandlePlay(ctx, chatID, userID)

	case "history", "игры":
		b.ledgerHandler.HandleHistory(ctx, chatID, userID)

	case "rank", "top", "топ":
		b.accountsHandler.HandleRank(ctx, chatID)

	case "today", "день":
		b.ledgerHandler.HandleTodayRank(ctx, chatID, b.cfg.LeaderboardSize)

	case "invitees", "рефералы":
		b.accountsHandler.HandleInvitees(ctx, chatID, userID)

	case "me", "профиль":
		b.accountsHandler.HandleProfile(ctx, chatID, userID)

	case "login":
		if private {
			b.adminHandler.HandleLogin(ctx, chatID, userID)
		}
	}
}

// sendMessage — утилита для отправки сообщений.
func (b *Bot) sendMessage(chatID int64, text string) {
	tg.SendText(b.sender, chatID, text)
}

// CommandParser парсит команды с префиксами /, ! и .
type CommandParser struct {
	validPrefixes []string
}

// NewCommandParser создаёт парсер команд.
func NewCommandParser() *CommandParser {
	return &CommandParser{
		validPrefixes: []string{"/", "!", "."},
	}
}

// ParseCommand разбирает текст на команду и аргументы.
// Суффикс "@имя_бота" у команды отбрасывается.
func (p *CommandParser) ParseCommand(text string) (string, []string, bool) {
	text = strings.TrimSpace(text)

	hasPrefix := false
	for _, prefix := range p.validPrefixes {
		if strings.HasPrefix(text, prefix) {
			text = strings.TrimPrefix(text, prefix)
			hasPrefix = true
			break
		}
	}

	if !hasPrefix {
		return "", nil, false
	}

	parts := strings.Fields(text)
	if len(parts) == 0 {
		return "", nil, false
	}

	command := strings.ToLower(parts[0])
	if i := strings.IndexByte(command, '@'); i >= 0 {
		command = command[:i]
	}
	if command == "" {
		return "", nil, false
	}

	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}

	return command, args, true
}
