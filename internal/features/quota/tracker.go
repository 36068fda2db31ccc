// Package quota отвечает за дневной лимит игр.
//
// У аккаунта два состояния: актуальный (quotaDay == сегодня) и
// устаревший (quotaDay в прошлом или не задан). Устаревший счётчик
// при первом обращении сбрасывается в 0 с quotaDay = сегодня.
// Дополнительно раз в сутки запускается массовый сброс (Sweeper).
package quota

import (
	"time"

	"serotonyl.ru/dice-bot/internal/common"
	"serotonyl.ru/dice-bot/internal/model"
)

// DailyLimit — сколько игр доступно в день.
const DailyLimit = 10

// Tracker — чистая логика лимита, без хранилища.
type Tracker struct {
	limit int
	clock common.Clock
}

// NewTracker создаёт трекер со стандартным лимитом.
func NewTracker(clock common.Clock) *Tracker {
	return &Tracker{limit: DailyLimit, clock: clock}
}

// Limit — дневной лимит.
func (t *Tracker) Limit() int { return t.limit }

// Now — текущее время по часам трекера.
func (t *Tracker) Now() time.Time { return t.clock.Now() }

// Today — сегодняшняя дата в поясе приложения.
func (t *Tracker) Today() time.Time { return common.Today(t.clock) }

// IsStale — счётчик относится не к сегодняшнему дню.
func (t *Tracker) IsStale(a *model.Account) bool {
	return a.QuotaDay == nil || !common.DateOf(*a.QuotaDay).Equal(t.Today())
}

// Reconcile сбрасывает устаревший счётчик в 0 и ставит quotaDay = сегодня.
// Возвращает true, если сброс был.
func (t *Tracker) Reconcile(a *model.Account) bool {
	if !t.IsStale(a) {
		return false
	}
	today := t.Today()
	a.PlaysToday = 0
	a.QuotaDay = &today
	return true
}

// PlaysToday — сколько игр сыграно сегодня, с учётом ленивого сброса.
func (t *Tracker) PlaysToday(a *model.Account) int {
	if t.IsStale(a) {
		return 0
	}
	return a.PlaysToday
}

// Remaining — сколько игр осталось сегодня. Аккаунт не меняется.
func (t *Tracker) Remaining(a *model.Account) int {
	left := t.limit - t.PlaysToday(a)
	if left < 0 {
		return 0
	}
	return left
}

// CanPlay — есть ли ещё игры на сегодня.
func (t *Tracker) CanPlay(a *model.Account) bool {
	return t.Remaining(a) > 0
}

// Clamp приводит ручное значение счётчика к [0, limit].
func (t *Tracker) Clamp(plays int) int {
	if plays < 0 {
		return 0
	}
	if plays > t.limit {
		return t.limit
	}
	return plays
}
