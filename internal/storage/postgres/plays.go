package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"serotonyl.ru/dice-bot/internal/common"
	"serotonyl.ru/dice-bot/internal/model"
	"serotonyl.ru/dice-bot/internal/storage"
)

// InTx выполняет fn в транзакции READ COMMITTED.
// Ошибка fn или коммита откатывает все изменения.
func (s *Storage) InTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return wrapErr("begin", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapErr("commit", err)
	}
	return nil
}

// pgTx — операции игры поверх pgx.Tx.
type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockAccount(ctx context.Context, id int64) (*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`
	a, err := scanAccount(t.tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, wrapErr("lock account", err)
	}
	return a, nil
}

func (t *pgTx) ResetQuota(ctx context.Context, id int64, day time.Time) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE accounts SET plays_today = 0, quota_day = $2, updated_at = NOW()
		WHERE id = $1
	`, id, day)
	return wrapErr("reset quota", err)
}

// AdjustBalance — проверка лимита и инкремент одним условным UPDATE.
func (t *pgTx) AdjustBalance(ctx context.Context, id int64, pointsDelta int64, playsDelta, limit int, at time.Time) (*model.Account, error) {
	query := `
		UPDATE accounts
		SET plays_today = plays_today + $3,
			points = points + $2,
			last_play_at = $5,
			updated_at = NOW()
		WHERE id = $1 AND plays_today + $3 <= $4
		RETURNING ` + accountColumns
	a, err := scanAccount(t.tx.QueryRow(ctx, query, id, pointsDelta, playsDelta, limit, at))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("adjust balance %d: %w", id, common.ErrQuotaExceeded)
	}
	if err != nil {
		return nil, wrapErr("adjust balance", err)
	}
	return a, nil
}

func (t *pgTx) InsertPlayRecord(ctx context.Context, rec *model.PlayRecord) error {
	occurredAt := rec.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO play_records (account_id, player_roll, house_roll, outcome, points_delta, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, occurred_at
	`, rec.AccountID, rec.PlayerRoll, rec.HouseRoll, string(rec.Outcome), rec.PointsDelta, occurredAt,
	).Scan(&rec.ID, &rec.OccurredAt)
	return wrapErr("insert play record", err)
}

// ListPlays — последние игры аккаунта, новые сверху.
func (s *Storage) ListPlays(ctx context.Context, accountID int64, limit int) ([]*model.PlayRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, account_id, player_roll, house_roll, outcome, points_delta, occurred_at
		FROM play_records
		WHERE account_id = $1
		ORDER BY occurred_at DESC, id DESC
		LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, wrapErr("list plays", err)
	}
	defer rows.Close()

	var out []*model.PlayRecord
	for rows.Next() {
		var p model.PlayRecord
		var outcome string
		if err := rows.Scan(&p.ID, &p.AccountID, &p.PlayerRoll, &p.HouseRoll, &outcome, &p.PointsDelta, &p.OccurredAt); err != nil {
			return nil, wrapErr("scan play", err)
		}
		p.Outcome = model.Outcome(outcome)
		out = append(out, &p)
	}
	return out, wrapErr("list plays", rows.Err())
}

// TodayRanking — рейтинг среди тех, кто играл в день day.
func (s *Storage) TodayRanking(ctx context.Context, day time.Time, limit int) ([]*model.DailyRankEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, display_name, points, plays_today
		FROM accounts
		WHERE quota_day = $1 AND plays_today > 0
		ORDER BY points DESC, id ASC
		LIMIT $2
	`, day, limit)
	if err != nil {
		return nil, wrapErr("today ranking", err)
	}
	defer rows.Close()

	var out []*model.DailyRankEntry
	for rows.Next() {
		var e model.DailyRankEntry
		if err := rows.Scan(&e.AccountID, &e.DisplayName, &e.Points, &e.PlaysToday); err != nil {
			return nil, wrapErr("scan ranking", err)
		}
		out = append(out, &e)
	}
	return out, wrapErr("today ranking", rows.Err())
}
