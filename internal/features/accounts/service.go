// Package accounts — service.go содержит бизнес-логику аккаунтов:
// привязку телефона, вход через Telegram, профиль, рейтинг и
// модерацию.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/dice-bot/internal/common"
	"serotonyl.ru/dice-bot/internal/features/identity"
	"serotonyl.ru/dice-bot/internal/features/quota"
	"serotonyl.ru/dice-bot/internal/features/referral"
	"serotonyl.ru/dice-bot/internal/model"
)

// Store — то, что нужно сервису от хранилища.
type Store interface {
	GetAccount(ctx context.Context, id int64) (*model.Account, error)
	UpsertOnBind(ctx context.Context, p model.BindParams) (*model.Account, bool, error)
	SetModeration(ctx context.Context, id int64, blocked bool) error
	OverrideBalance(ctx context.Context, id int64, points int64, playsToday int, day time.Time) error
	DeleteAccount(ctx context.Context, id int64) error
	ListTopByPoints(ctx context.Context, limit int) ([]*model.Account, error)
	ListReferredBy(ctx context.Context, id int64) ([]*model.InviteeSummary, error)
	SearchAccounts(ctx context.Context, f model.AccountFilter) ([]*model.AccountOverview, error)
	Stats(ctx context.Context) (*model.Stats, error)
}

// Notifier доставляет сообщения пользователям. Ошибки доставки
// не влияют на результат операции.
type Notifier interface {
	Notify(ctx context.Context, userID int64, text string) error
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, int64, string) error { return nil }

// BindRequest — данные привязки телефона.
type BindRequest struct {
	ID          int64
	DisplayName string
	Phone       string
	InviterID   *int64
	// NotifyUser — отправить пользователю подтверждение через Notifier.
	// Бот отвечает сам и ставит false.
	NotifyUser bool
}

// BindResult — итог привязки.
type BindResult struct {
	Account    *model.Account
	Created    bool
	Attributed bool
}

// Profile — аккаунт с остатком игр и числом приглашённых.
type Profile struct {
	Account   *model.Account
	Remaining int
	Limit     int
	Invited   int
}

// Service — сервис аккаунтов.
type Service struct {
	store     Store
	referrals *referral.Service
	tracker   *quota.Tracker
	notifier  Notifier
}

// NewService создаёт сервис. notifier может быть nil.
func NewService(store Store, referrals *referral.Service, tracker *quota.Tracker, notifier Notifier) *Service {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Service{store: store, referrals: referrals, tracker: tracker, notifier: notifier}
}

// Bind привязывает телефон к аккаунту, создавая его при необходимости.
//
// Пригласившего записывает отдельный условный UPDATE (referral.Attribute):
// он один решает, записана ли связь сейчас, поэтому при гонке двух
// привязок уведомление пригласившему уходит ровно один раз.
// Неизвестный пригласивший отбрасывается с записью в лог: привязка
// телефона важнее реферала. Уже записанный referredBy не меняется.
func (s *Service) Bind(ctx context.Context, req BindRequest) (*BindResult, error) {
	phone, err := NormalizePhone(req.Phone)
	if err != nil {
		return nil, err
	}

	acc, created, err := s.store.UpsertOnBind(ctx, model.BindParams{
		ID:          req.ID,
		DisplayName: model.StrPtr(strings.TrimSpace(req.DisplayName)),
		Phone:       &phone,
	})
	if err != nil {
		return nil, fmt.Errorf("привязка телефона %d: %w", req.ID, err)
	}

	res := &BindResult{Account: acc, Created: created}

	if inviter := req.InviterID; inviter != nil && *inviter != req.ID {
		attributed, err := s.referrals.Attribute(ctx, acc.ID, *inviter)
		switch {
		case errors.Is(err, common.ErrInviterNotFound):
			log.WithFields(log.Fields{
				"user_id":    req.ID,
				"inviter_id": *inviter,
			}).Warn("Пригласивший не найден, реферал не записан")
		case err != nil:
			// телефон уже привязан; повторный Bind безопасен и допишет реферала
			return nil, fmt.Errorf("реферал для %d: %w", req.ID, err)
		case attributed:
			res.Attributed = true
			id := *inviter
			acc.ReferredBy = &id
		}
	}

	log.WithFields(log.Fields{
		"user_id":    acc.ID,
		"created":    created,
		"attributed": res.Attributed,
	}).Info("Телефон привязан")

	if req.NotifyUser {
		s.notify(ctx, acc.ID, BindConfirmation(acc, created))
	}
	if res.Attributed {
		s.notify(ctx, *req.InviterID, fmt.Sprintf("🎉 По вашей ссылке зарегистрировался %s!", acc.Name()))
	}
	return res, nil
}

// Login создаёт аккаунт по подтверждённой личности Telegram
// или обновляет имя существующего.
func (s *Service) Login(ctx context.Context, ident *identity.Identity) (*model.Account, bool, error) {
	acc, created, err := s.store.UpsertOnBind(ctx, model.BindParams{
		ID:          ident.ID,
		DisplayName: model.StrPtr(ident.DisplayName()),
	})
	if err != nil {
		return nil, false, fmt.Errorf("вход %d: %w", ident.ID, err)
	}
	if created {
		log.WithField("user_id", acc.ID).Info("Аккаунт создан при входе")
	}
	return acc, created, nil
}

// Get возвращает аккаунт.
func (s *Service) Get(ctx context.Context, id int64) (*model.Account, error) {
	return s.store.GetAccount(ctx, id)
}

// Profile возвращает аккаунт, остаток игр и число приглашённых.
func (s *Service) Profile(ctx context.Context, id int64) (*Profile, error) {
	acc, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	invitees, err := s.store.ListReferredBy(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Profile{
		Account:   acc,
		Remaining: s.tracker.Remaining(acc),
		Limit:     s.tracker.Limit(),
		Invited:   len(invitees),
	}, nil
}

// Leaderboard — лучшие по очкам.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]*model.Account, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.store.ListTopByPoints(ctx, limit)
}

// SetModeration блокирует или разблокирует аккаунт.
func (s *Service) SetModeration(ctx context.Context, id int64, blocked bool) error {
	if err := s.store.SetModeration(ctx, id, blocked); err != nil {
		return err
	}
	log.WithFields(log.Fields{"user_id": id, "blocked": blocked}).Warn("Изменён статус модерации")
	return nil
}

// OverrideBalance задаёт очки и счётчик игр на сегодня вручную.
// Счётчик приводится к [0, лимит].
func (s *Service) OverrideBalance(ctx context.Context, id int64, points int64, playsToday int) error {
	plays := s.tracker.Clamp(playsToday)
	if err := s.store.OverrideBalance(ctx, id, points, plays, s.tracker.Today()); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"user_id": id,
		"points":  points,
		"plays":   plays,
	}).Warn("Баланс изменён вручную")
	return nil
}

// Delete удаляет аккаунт вместе с историей игр.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.store.DeleteAccount(ctx, id); err != nil {
		return err
	}
	log.WithField("user_id", id).Warn("Аккаунт удалён")
	return nil
}

// Search ищет аккаунты для админки.
func (s *Service) Search(ctx context.Context, f model.AccountFilter) ([]*model.AccountOverview, error) {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.store.SearchAccounts(ctx, f)
}

// Stats — сводка по аккаунтам.
func (s *Service) Stats(ctx context.Context) (*model.Stats, error) {
	return s.store.Stats(ctx)
}

func (s *Service) notify(ctx context.Context, userID int64, text string) {
	if err := s.notifier.Notify(ctx, userID, text); err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("Не удалось отправить уведомление")
	}
}

// BindConfirmation — текст подтверждения привязки.
func BindConfirmation(acc *model.Account, created bool) string {
	if created {
		return fmt.Sprintf("✅ Телефон привязан, %s! Добро пожаловать в игру.\n🎲 Бросить кубик: /play", acc.Name())
	}
	return fmt.Sprintf("✅ Телефон обновлён, %s.", acc.Name())
}

// NormalizePhone приводит номер к единому виду "+79991234567":
// убирает пробелы, скобки и дефисы и всегда ставит ведущий плюс.
// Telegram присылает контакт то с плюсом, то без, а уникальность
// телефона проверяется по строке.
func NormalizePhone(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	var sb strings.Builder
	sb.WriteByte('+')
	for i, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			sb.WriteRune(r)
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return "", common.ErrInvalidPhone
		}
	}
	phone := sb.String()
	if digits := len(phone) - 1; digits < 7 || digits > 15 {
		return "", common.ErrInvalidPhone
	}
	return phone, nil
}

// IsRejection — ожидаемый отказ, который показываем пользователю как есть.
func IsRejection(err error) bool {
	for _, target := range []error{
		common.ErrInvalidPhone, common.ErrConflict, common.ErrBlocked,
		common.ErrAccountNotFound, common.ErrInviterNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
