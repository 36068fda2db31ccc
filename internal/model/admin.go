package model

import "time"

// AdminSession открывается после ввода пароля в личке с ботом.
// Токен наружу не отдаётся: сессия привязана к Telegram id.
type AdminSession struct {
	ID              int64     `db:"id"`
	UserID          int64     `db:"user_id"`
	SessionToken    string    `db:"session_token"`
	AuthenticatedAt time.Time `db:"authenticated_at"`
	ExpiresAt       time.Time `db:"expires_at"`
	LastActivity    time.Time `db:"last_activity"`
	IsActive        bool      `db:"is_active"`
}

// ActiveAt — действует ли сессия в момент now.
func (s *AdminSession) ActiveAt(now time.Time) bool {
	return s.IsActive && now.Before(s.ExpiresAt)
}
