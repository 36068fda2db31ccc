// Package referral — реферальные связи между игроками.
//
// Связь одноуровневая и неизменяемая: referredBy ставится один раз,
// поэтому циклы невозможны.
package referral

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/dice-bot/internal/common"
	"serotonyl.ru/dice-bot/internal/model"
)

// PayloadPrefix — префикс deep-link /start ref_<id>.
const PayloadPrefix = "ref_"

// Store — то, что нужно резолверу от хранилища.
type Store interface {
	GetAccount(ctx context.Context, id int64) (*model.Account, error)
	AttachReferral(ctx context.Context, id, referrerID int64) (bool, error)
	ListReferredBy(ctx context.Context, id int64) ([]*model.InviteeSummary, error)
}

// Service — резолвер рефералов.
type Service struct {
	store Store
}

// NewService создаёт резолвер.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Attribute записывает, кто пригласил аккаунт.
// Самоприглашение и повторная привязка ничего не меняют.
// Возвращает true, если связь записана сейчас.
func (s *Service) Attribute(ctx context.Context, accountID, inviterID int64) (bool, error) {
	if accountID == inviterID {
		return false, nil
	}
	if _, err := s.store.GetAccount(ctx, inviterID); err != nil {
		if errors.Is(err, common.ErrAccountNotFound) {
			return false, fmt.Errorf("пригласивший %d: %w", inviterID, common.ErrInviterNotFound)
		}
		return false, err
	}

	changed, err := s.store.AttachReferral(ctx, accountID, inviterID)
	if err != nil {
		return false, err
	}
	if changed {
		log.WithFields(log.Fields{
			"account_id": accountID,
			"inviter_id": inviterID,
		}).Info("Записан реферал")
	}
	return changed, nil
}

// ListInvitees — приглашённые в порядке регистрации.
func (s *Service) ListInvitees(ctx context.Context, accountID int64) ([]*model.InviteeSummary, error) {
	return s.store.ListReferredBy(ctx, accountID)
}

// ParseInviter разбирает payload вида "ref_123" или "123".
func ParseInviter(payload string) (int64, bool) {
	payload = strings.TrimSpace(payload)
	payload = strings.TrimPrefix(payload, PayloadPrefix)
	if payload == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(payload, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// InviteLink — ссылка-приглашение для бота.
func InviteLink(botUsername string, accountID int64) string {
	return fmt.Sprintf("https://t.me/%s?start=%s%d", botUsername, PayloadPrefix, accountID)
}
