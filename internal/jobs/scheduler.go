// Package jobs управляет фоновыми задачами (cron).
// scheduler.go настраивает расписание: ежедневный сброс дневных лимитов
// игр в полночь по часовому поясу приложения.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// DailySweepSpec — каждый день в 00:00.
const DailySweepSpec = "0 0 * * *"

// Sweeper — массовый сброс лимитов (quota.Sweeper).
type Sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron    *cron.Cron
	sweeper Sweeper
	loc     *time.Location
}

// NewScheduler создаёт планировщик в заданном часовом поясе.
func NewScheduler(sweeper Sweeper, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(loc)),
		sweeper: sweeper,
		loc:     loc,
	}
}

// Start запускает все фоновые задачи. Перед запуском расписания
// выполняет один сброс, чтобы догнать пропущенную полночь.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(DailySweepSpec, func() { s.RunSweep(ctx) }); err != nil {
		return fmt.Errorf("расписание сброса: %w", err)
	}

	s.RunSweep(ctx)

	s.cron.Start()
	log.WithField("location", s.loc.String()).Info("Планировщик задач запущен")
	return nil
}

// RunSweep выполняет сброс лимитов и пишет результат в лог.
func (s *Scheduler) RunSweep(ctx context.Context) {
	log.Info("[CRON] Ежедневный сброс лимитов")
	if _, err := s.sweeper.Sweep(ctx); err != nil {
		log.WithError(err).Error("[CRON] Ошибка сброса")
	}
}

// Next — время следующего запуска сброса (нулевое, если не запущен).
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Stop останавливает планировщик и ждёт завершения запущенных задач.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}
