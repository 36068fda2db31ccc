package quota

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// SweepStore — массовый сброс счётчиков в хранилище.
type SweepStore interface {
	SweepQuotas(ctx context.Context, today time.Time) (int64, error)
}

// Sweeper обнуляет счётчики всех аккаунтов с прошедшим quotaDay.
// Идемпотентен: повторный запуск в тот же день ничего не меняет.
type Sweeper struct {
	store   SweepStore
	tracker *Tracker
}

// NewSweeper создаёт сервис массового сброса.
func NewSweeper(store SweepStore, tracker *Tracker) *Sweeper {
	return &Sweeper{store: store, tracker: tracker}
}

// Sweep выполняет сброс и возвращает число затронутых аккаунтов.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	today := s.tracker.Today()
	n, err := s.store.SweepQuotas(ctx, today)
	if err != nil {
		return 0, fmt.Errorf("сброс лимитов: %w", err)
	}
	log.WithFields(log.Fields{
		"day":   today.Format("2006-01-02"),
		"reset": n,
	}).Info("Дневные лимиты сброшены")
	return n, nil
}
