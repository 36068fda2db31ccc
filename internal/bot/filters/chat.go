// Package filters решает, в каких чатах бот отвечает.
package filters

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
)

// ChatFilter пропускает личные сообщения и, если задан, игровой чат.
type ChatFilter struct {
	gameChatID int64
}

// NewChatFilter создаёт фильтр. При gameChatID = 0 только личка.
func NewChatFilter(gameChatID int64) *ChatFilter {
	return &ChatFilter{gameChatID: gameChatID}
}

// AllowsContact — контакт принимаем только в личке.
func (f *ChatFilter) AllowsContact(message *tgbotapi.Message) bool {
	return f.CheckAccess(message) && message.Chat.IsPrivate()
}

// CheckAccess проверяет, отвечать ли на сообщение.
func (f *ChatFilter) CheckAccess(message *tgbotapi.Message) bool {
	if message == nil || message.Chat == nil {
		log.WithField("component", "ChatFilter").Warn("nil message/chat")
		return false
	}
	if message.From == nil {
		log.WithFields(log.Fields{
			"component": "ChatFilter",
			"chat_id":   message.Chat.ID,
			"chat_type": message.Chat.Type,
		}).Debug("nil message.From (service/channel message?)")
		return false
	}
	if message.From.IsBot {
		return false
	}

	logger := log.WithFields(log.Fields{
		"component": "ChatFilter",
		"chat_id":   message.Chat.ID,
		"chat_type": message.Chat.Type,
		"user_id":   message.From.ID,
	})

	if message.Chat.IsPrivate() {
		return true
	}
	if f.gameChatID != 0 && message.Chat.ID == f.gameChatID {
		logger.Debug("allow: game chat")
		return true
	}

	logger.Debug("deny: not private and not game chat")
	return false
}
