// Package admin — service.go содержит логику аутентификации, управления сессиями
// и state-машину для пошаговых админ-действий.
package admin

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/dice-bot/internal/common"
	"serotonyl.ru/dice-bot/internal/model"
	"serotonyl.ru/dice-bot/internal/storage"
)

// Service управляет доступом к админ-панели.
type Service struct {
	store        storage.AdminStore
	isAdmin      func(userID int64) bool
	passwordHash string
	clock        common.Clock

	states   map[int64]*AdminState // Состояния диалогов (in-memory)
	statesMu sync.RWMutex
}

// NewService создаёт сервис админ-панели.
// isAdmin решает, кому вообще показывать панель (обычно cfg.IsAdmin).
func NewService(store storage.AdminStore, isAdmin func(int64) bool, passwordHash string, clock common.Clock) *Service {
	return &Service{
		store:        store,
		isAdmin:      isAdmin,
		passwordHash: passwordHash,
		clock:        clock,
		states:       make(map[int64]*AdminState),
	}
}

// IsAdmin — есть ли у пользователя доступ к панели.
func (s *Service) IsAdmin(userID int64) bool {
	return s.isAdmin != nil && s.isAdmin(userID)
}

// VerifyPassword проверяет пароль администратора и открывает сессию на 24 часа.
// 3 неудачные попытки за час блокируют вход на час.
func (s *Service) VerifyPassword(ctx context.Context, userID int64, password string) error {
	if !s.IsAdmin(userID) {
		return common.ErrNotAdmin
	}

	now := s.clock.Now()
	attempts, err := s.store.CountFailedAdminAttempts(ctx, userID, now.Add(-LockoutWindow))
	if err != nil {
		return err
	}
	if attempts >= MaxFailedAttempts {
		return common.ErrTooManyAttempts
	}

	match := s.passwordHash != "" && verifyArgon2id(password, s.passwordHash)

	if err := s.store.LogAdminAttempt(ctx, userID, match, now); err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Не удалось записать попытку входа")
	}

	if !match {
		log.WithField("user_id", userID).Warn("Неверный пароль админки")
		return common.ErrWrongPassword
	}

	token, err := generateSecureToken()
	if err != nil {
		return err
	}
	if err := s.store.DeactivateAdminSessions(ctx, userID); err != nil {
		return err
	}
	session := &model.AdminSession{
		UserID:          userID,
		SessionToken:    token,
		AuthenticatedAt: now,
		ExpiresAt:       now.Add(SessionTTL),
	}
	if err := s.store.CreateAdminSession(ctx, session); err != nil {
		return fmt.Errorf("ошибка создания сессии: %w", err)
	}

	log.WithField("user_id", userID).Info("Вход в админ-панель")
	return nil
}

// HasActiveSession проверяет, есть ли у пользователя активная сессия.
func (s *Service) HasActiveSession(ctx context.Context, userID int64) bool {
	session, err := s.store.GetActiveAdminSession(ctx, userID, s.clock.Now())
	return err == nil && session != nil
}

// Touch обновляет время последней активности.
func (s *Service) Touch(ctx context.Context, userID int64) {
	if err := s.store.TouchAdminSession(ctx, userID, s.clock.Now()); err != nil {
		log.WithError(err).WithField("user_id", userID).Debug("Не удалось обновить активность сессии")
	}
}

// Logout закрывает все сессии админа.
func (s *Service) Logout(ctx context.Context, userID int64) error {
	s.ClearState(userID)
	return s.store.DeactivateAdminSessions(ctx, userID)
}

// GetState возвращает текущее состояние диалога.
func (s *Service) GetState(userID int64) *AdminState {
	s.statesMu.RLock()
	defer s.statesMu.RUnlock()

	state, ok := s.states[userID]
	if !ok {
		return nil
	}
	if s.clock.Now().After(state.ExpiresAt) {
		return nil
	}
	return state
}

// SetState устанавливает состояние диалога с 5-минутным таймаутом.
func (s *Service) SetState(userID int64, stateName string, data any) {
	s.statesMu.Lock()
	defer s.statesMu.Unlock()

	s.states[userID] = &AdminState{
		State:     stateName,
		Data:      data,
		ExpiresAt: s.clock.Now().Add(StateTTL),
	}
}

// ClearState сбрасывает состояние диалога.
func (s *Service) ClearState(userID int64) {
	s.statesMu.Lock()
	defer s.statesMu.Unlock()
	delete(s.states, userID)
}
