// Package model описывает данные, общие для хранилища и фич:
// аккаунт игрока, запись об игре, сессии админки.
package model

import "time"

// Account — игрок. ID совпадает с Telegram user id.
type Account struct {
	ID          int64      `db:"id" json:"id"`
	DisplayName *string    `db:"display_name" json:"displayName,omitempty"`
	Phone       *string    `db:"phone" json:"phone,omitempty"`
	Points      int64      `db:"points" json:"points"`
	PlaysToday  int        `db:"plays_today" json:"playsToday"`
	QuotaDay    *time.Time `db:"quota_day" json:"quotaDay,omitempty"`
	ReferredBy  *int64     `db:"referred_by" json:"referredBy,omitempty"`
	Blocked     bool       `db:"blocked" json:"blocked"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
	LastPlayAt  *time.Time `db:"last_play_at" json:"lastPlayAt,omitempty"`
}

// Name возвращает имя для показа другим игрокам.
// Телефон наружу не отдаём никогда.
func (a *Account) Name() string {
	if a.DisplayName != nil && *a.DisplayName != "" {
		return *a.DisplayName
	}
	return "Аноним"
}

// IsVerified — привязан ли телефон.
func (a *Account) IsVerified() bool {
	return a.Phone != nil && *a.Phone != ""
}

// Clone возвращает глубокую копию аккаунта.
func (a *Account) Clone() *Account {
	c := *a
	if a.DisplayName != nil {
		v := *a.DisplayName
		c.DisplayName = &v
	}
	if a.Phone != nil {
		v := *a.Phone
		c.Phone = &v
	}
	if a.QuotaDay != nil {
		v := *a.QuotaDay
		c.QuotaDay = &v
	}
	if a.ReferredBy != nil {
		v := *a.ReferredBy
		c.ReferredBy = &v
	}
	if a.LastPlayAt != nil {
		v := *a.LastPlayAt
		c.LastPlayAt = &v
	}
	return &c
}

// BindParams — данные для создания или обновления аккаунта при привязке.
type BindParams struct {
	ID          int64
	DisplayName *string
	Phone       *string
	ReferrerID  *int64
}

// InviteeSummary — приглашённый игрок в списке рефералов.
type InviteeSummary struct {
	ID          int64     `json:"id"`
	DisplayName *string   `json:"displayName,omitempty"`
	Points      int64     `json:"points"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Name — имя приглашённого для показа.
func (i *InviteeSummary) Name() string {
	if i.DisplayName != nil && *i.DisplayName != "" {
		return *i.DisplayName
	}
	return "Аноним"
}

// AccountFilter — фильтр поиска аккаунтов в админке.
type AccountFilter struct {
	Keyword string // подстрока имени или телефона
	Blocked *bool  // nil — все
	Limit   int
	Offset  int
}

// AccountOverview — строка списка аккаунтов в админке.
type AccountOverview struct {
	Account
	InviterName  *string `json:"inviterName,omitempty"`
	InvitedCount int     `json:"invitedCount"`
}

// Stats — сводка по всем аккаунтам.
type Stats struct {
	Total       int   `json:"total"`
	Verified    int   `json:"verified"`
	Blocked     int   `json:"blocked"`
	TotalPoints int64 `json:"totalPoints"`
}

// StrPtr — утилита для опциональных строк: пустая строка становится nil.
func StrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
