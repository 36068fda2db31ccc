// Package tg — тонкая обёртка над Telegram Bot API для обработчиков фич:
// интерфейс отправки, уведомления пользователям и запись сообщений в тестах.
package tg

import (
	"context"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
)

// Sender — то, что нужно обработчикам от *tgbotapi.BotAPI.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

var _ Sender = (*tgbotapi.BotAPI)(nil)

// SendText отправляет текст и логирует ошибку.
func SendText(s Sender, chatID int64, text string) {
	Send(s, tgbotapi.NewMessage(chatID, text))
}

// Send отправляет готовое сообщение и логирует ошибку.
func Send(s Sender, msg tgbotapi.MessageConfig) {
	if _, err := s.Send(msg); err != nil {
		log.WithError(err).WithField("chat_id", msg.ChatID).Error("Ошибка отправки сообщения")
	}
}

// Notifier доставляет уведомления пользователям в личку.
type Notifier struct {
	sender Sender
}

// NewNotifier создаёт уведомитель.
func NewNotifier(sender Sender) *Notifier {
	return &Notifier{sender: sender}
}

// Notify отправляет сообщение. Ошибку возвращает вызывающему:
// тот решает, логировать ли её.
func (n *Notifier) Notify(ctx context.Context, userID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := n.sender.Send(tgbotapi.NewMessage(userID, text))
	return err
}

// Recorder — Sender для тестов: запоминает отправленное.
type Recorder struct {
	mu       sync.Mutex
	Messages []tgbotapi.MessageConfig
	Requests []tgbotapi.Chattable
	Err      error
}

func (r *Recorder) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return tgbotapi.Message{}, r.Err
	}
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		r.Messages = append(r.Messages, m)
	} else {
		r.Requests = append(r.Requests, c)
	}
	return tgbotapi.Message{}, nil
}

func (r *Recorder) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	r.Requests = append(r.Requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

// Last — последнее отправленное сообщение (пустое, если не было).
func (r *Recorder) Last() tgbotapi.MessageConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Messages) == 0 {
		return tgbotapi.MessageConfig{}
	}
	return r.Messages[len(r.Messages)-1]
}

// Texts — тексты всех сообщений в порядке отправки.
func (r *Recorder) Texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.Messages))
	for _, m := range r.Messages {
		out = append(out, m.Text)
	}
	return out
}
