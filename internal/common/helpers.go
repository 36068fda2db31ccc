// Package common содержит общие утилиты, используемые во всём проекте.
// Сюда входят: русская плюрализация, форматирование чисел, работа с датами.
package common

import (
	"math"
	"time"

	log "github.com/sirupsen/logrus"
)

// Clock — источник текущего времени. В тестах подменяется на фиксированный.
type Clock interface {
	Now() time.Time
}

// LocalClock отдаёт время в часовом поясе приложения.
type LocalClock struct {
	loc *time.Location
}

// NewLocalClock создаёт часы для заданного пояса.
func NewLocalClock(loc *time.Location) *LocalClock {
	if loc == nil {
		loc = time.Local
	}
	return &LocalClock{loc: loc}
}

// Now возвращает текущее время в поясе приложения.
func (c *LocalClock) Now() time.Time {
	return time.Now().In(c.loc)
}

// Location возвращает часовой пояс часов.
func (c *LocalClock) Location() *time.Location {
	return c.loc
}

// FixedClock всегда возвращает одно и то же время (для тестов и CLI).
type FixedClock struct {
	T time.Time
}

// Now возвращает зафиксированное время.
func (c FixedClock) Now() time.Time {
	return c.T
}

// LoadLocation загружает часовой пояс по имени.
// Если не удалось, используем UTC+3 вручную, как для Москвы.
func LoadLocation(name string) *time.Location {
	if name == "" || name == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.WithError(err).WithField("tz", name).Warn("Не удалось загрузить часовой пояс, используем UTC+3")
		return time.FixedZone("MSK", 3*60*60)
	}
	return loc
}

// DateOf возвращает календарную дату t (в её собственном поясе)
// в виде полуночи UTC. Так даты одинаково сравниваются в памяти и в БД (DATE).
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Today — текущая календарная дата по часам clock.
func Today(clock Clock) time.Time {
	return DateOf(clock.Now())
}

// PluralizePoints возвращает правильную форму слова «очко» для числа n.
//
// Правила русского языка:
//   - n%10==1 И n%100!=11 → "очко" (1, 21, 31, 101, ...)
//   - n%10 в [2,3,4] И n%100 НЕ в [12,13,14] → "очка" (2, 3, 4, 22, 23, ...)
//   - Остальные случаи → "очков" (0, 5-20, 25-30, 100, ...)
func PluralizePoints(n int64) string {
	return pluralize(n, "очко", "очка", "очков")
}

// PluralizePlays возвращает форму слова «игра».
func PluralizePlays(n int) string {
	return pluralize(int64(n), "игра", "игры", "игр")
}

// PluralizeInvitees возвращает форму слова «приглашённый».
func PluralizeInvitees(n int) string {
	return pluralize(int64(n), "приглашённый", "приглашённых", "приглашённых")
}

func pluralize(n int64, one, few, many string) string {
	absN := int64(math.Abs(float64(n)))
	lastDigit := absN % 10
	lastTwoDigits := absN % 100

	if lastDigit == 1 && lastTwoDigits != 11 {
		return one
	}
	if lastDigit >= 2 && lastDigit <= 4 && (lastTwoDigits < 12 || lastTwoDigits > 14) {
		return few
	}
	return many
}

// FormatDateTime форматирует время в формат "02.01.2006 15:04" в поясе loc.
func FormatDateTime(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format("02.01.2006 15:04")
}
