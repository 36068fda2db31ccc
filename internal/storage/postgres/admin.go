package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"serotonyl.ru/dice-bot/internal/common"
	"serotonyl.ru/dice-bot/internal/model"
)

// CreateAdminSession создаёт новую сессию администратора.
func (s *Storage) CreateAdminSession(ctx context.Context, session *model.AdminSession) error {
	query := `
		INSERT INTO admin_sessions (user_id, session_token, expires_at, is_active)
		VALUES ($1, $2, $3, TRUE)
		RETURNING id
	`
	err := s.pool.QueryRow(ctx, query, session.UserID, session.SessionToken, session.ExpiresAt).Scan(&session.ID)
	if err != nil {
		return fmt.Errorf("ошибка создания сессии: %w", wrapErr("create session", err))
	}
	return nil
}

// GetActiveAdminSession возвращает последнюю активную сессию пользователя.
func (s *Storage) GetActiveAdminSession(ctx context.Context, userID int64, now time.Time) (*model.AdminSession, error) {
	query := `
		SELECT id, user_id, session_token, authenticated_at, expires_at, last_activity, is_active
		FROM admin_sessions
		WHERE user_id = $1 AND is_active = TRUE AND expires_at > $2
		ORDER BY authenticated_at DESC
		LIMIT 1
	`
	var sess model.AdminSession
	err := s.pool.QueryRow(ctx, query, userID, now).Scan(
		&sess.ID, &sess.UserID, &sess.SessionToken, &sess.AuthenticatedAt,
		&sess.ExpiresAt, &sess.LastActivity, &sess.IsActive,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrSessionExpired
	}
	if err != nil {
		return nil, wrapErr("get session", err)
	}
	return &sess, nil
}

// DeactivateAdminSessions закрывает все сессии пользователя.
func (s *Storage) DeactivateAdminSessions(ctx context.Context, userID int64) error {
	_, err := s.pool.Exec(ctx, `UPDATE admin_sessions SET is_active = FALSE WHERE user_id = $1`, userID)
	return wrapErr("deactivate sessions", err)
}

// TouchAdminSession обновляет время последней активности.
func (s *Storage) TouchAdminSession(ctx context.Context, userID int64, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE admin_sessions SET last_activity = $2 WHERE user_id = $1 AND is_active = TRUE`,
		userID, at)
	return wrapErr("touch session", err)
}

// LogAdminAttempt записывает попытку входа.
func (s *Storage) LogAdminAttempt(ctx context.Context, userID int64, success bool, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO admin_login_attempts (user_id, success, attempt_time) VALUES ($1, $2, $3)`,
		userID, success, at)
	return wrapErr("log attempt", err)
}

// CountFailedAdminAttempts — число неудачных попыток начиная с since.
func (s *Storage) CountFailedAdminAttempts(ctx context.Context, userID int64, since time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM admin_login_attempts
		WHERE user_id = $1 AND success = FALSE AND attempt_time >= $2
	`, userID, since).Scan(&count)
	if err != nil {
		return 0, wrapErr("count attempts", err)
	}
	return count, nil
}
