package ledger

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/dice-bot/internal/common"
	"serotonyl.ru/dice-bot/internal/features/quota"
	"serotonyl.ru/dice-bot/internal/model"
	"serotonyl.ru/dice-bot/internal/storage"
)

// HistoryLimit — сколько последних игр отдаём по умолчанию.
const HistoryLimit = 100

// Store — то, что нужно движку от хранилища.
type Store interface {
	storage.PlayStore
	GetAccount(ctx context.Context, id int64) (*model.Account, error)
}

// Result — итог одной игры.
type Result struct {
	RecordID    int64         `json:"recordId"`
	PlayerRoll  int           `json:"playerRoll"`
	HouseRoll   int           `json:"houseRoll"`
	Outcome     model.Outcome `json:"outcome"`
	PointsDelta int64         `json:"pointsDelta"`
	Points      int64         `json:"points"`
	Remaining   int           `json:"remaining"`
	Message     string        `json:"message"`
}

// Status — состояние игрока без изменения данных.
type Status struct {
	Account   *model.Account
	Remaining int
	Limit     int
}

// Service — движок игр.
type Service struct {
	store   Store
	tracker *quota.Tracker
	roller  Roller
}

// NewService создаёт движок. Если roller == nil, используется CryptoRoller.
func NewService(store Store, tracker *quota.Tracker, roller Roller) *Service {
	if roller == nil {
		roller = CryptoRoller{}
	}
	return &Service{store: store, tracker: tracker, roller: roller}
}

// Tracker — трекер лимита, которым пользуется движок.
func (s *Service) Tracker() *quota.Tracker { return s.tracker }

// Play проводит одну игру для аккаунта.
//
// Всё выполняется в одной транзакции: блокировка строки аккаунта,
// ленивый сброс устаревшего счётчика, проверка лимита, запись в журнал
// и изменение баланса. Любая ошибка откатывает всё целиком.
func (s *Service) Play(ctx context.Context, accountID int64) (*Result, error) {
	var res *Result

	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		acc, err := tx.LockAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if acc.Blocked {
			return common.ErrBlocked
		}

		if s.tracker.IsStale(acc) {
			today := s.tracker.Today()
			if err := tx.ResetQuota(ctx, acc.ID, today); err != nil {
				return err
			}
			s.tracker.Reconcile(acc)
		}
		if !s.tracker.CanPlay(acc) {
			return common.ErrQuotaExceeded
		}

		player, house := s.roller.Roll(), s.roller.Roll()
		if !ValidRoll(player) || !ValidRoll(house) {
			return fmt.Errorf("некорректный бросок %d/%d", player, house)
		}
		outcome, delta := Judge(player, house)
		now := s.tracker.Now()

		rec := &model.PlayRecord{
			AccountID:   acc.ID,
			PlayerRoll:  player,
			HouseRoll:   house,
			Outcome:     outcome,
			PointsDelta: delta,
			OccurredAt:  now,
		}
		if err := tx.InsertPlayRecord(ctx, rec); err != nil {
			return err
		}

		updated, err := tx.AdjustBalance(ctx, acc.ID, delta, 1, s.tracker.Limit(), now)
		if err != nil {
			return err
		}

		res = &Result{
			RecordID:    rec.ID,
			PlayerRoll:  player,
			HouseRoll:   house,
			Outcome:     outcome,
			PointsDelta: delta,
			Points:      updated.Points,
			Remaining:   s.tracker.Limit() - updated.PlaysToday,
			Message:     OutcomeMessage(player, house, outcome, delta),
		}
		return nil
	})
	if err != nil {
		if !isRejection(err) {
			log.WithError(err).WithField("account_id", accountID).Error("Ошибка игры")
		}
		return nil, fmt.Errorf("игра %d: %w", accountID, err)
	}

	log.WithFields(log.Fields{
		"account_id": accountID,
		"player":     res.PlayerRoll,
		"house":      res.HouseRoll,
		"outcome":    res.Outcome,
		"points":     res.Points,
		"remaining":  res.Remaining,
	}).Info("Игра в кости")

	return res, nil
}

// Status возвращает баланс и остаток игр на сегодня.
func (s *Service) Status(ctx context.Context, accountID int64) (*Status, error) {
	acc, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &Status{
		Account:   acc,
		Remaining: s.tracker.Remaining(acc),
		Limit:     s.tracker.Limit(),
	}, nil
}

// History — последние игры аккаунта, новые первыми.
func (s *Service) History(ctx context.Context, accountID int64, limit int) ([]*model.PlayRecord, error) {
	if limit <= 0 || limit > HistoryLimit {
		limit = HistoryLimit
	}
	if _, err := s.store.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return s.store.ListPlays(ctx, accountID, limit)
}

// TodayRanking — рейтинг тех, кто играл сегодня, по очкам.
func (s *Service) TodayRanking(ctx context.Context, limit int) ([]*model.DailyRankEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.store.TodayRanking(ctx, s.tracker.Today(), limit)
}

// isRejection — ожидаемый отказ, а не сбой.
func isRejection(err error) bool {
	return errors.Is(err, common.ErrBlocked) ||
		errors.Is(err, common.ErrQuotaExceeded) ||
		errors.Is(err, common.ErrAccountNotFound)
}
