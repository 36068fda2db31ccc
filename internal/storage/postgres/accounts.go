package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"serotonyl.ru/dice-bot/internal/common"
	"serotonyl.ru/dice-bot/internal/model"
)

const accountColumns = `id, display_name, phone, points, plays_today, quota_day,
	referred_by, blocked, created_at, last_play_at`

// accountColumnsWithAlias — те же колонки с префиксом таблицы (для JOIN).
func accountColumnsWithAlias(alias string) string {
	cols := strings.Split(strings.Join(strings.Fields(accountColumns), ""), ",")
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

func accountScanTargets(a *model.Account) []any {
	return []any{
		&a.ID, &a.DisplayName, &a.Phone, &a.Points, &a.PlaysToday, &a.QuotaDay,
		&a.ReferredBy, &a.Blocked, &a.CreatedAt, &a.LastPlayAt,
	}
}

func scanAccount(row pgx.Row) (*model.Account, error) {
	var a model.Account
	if err := row.Scan(accountScanTargets(&a)...); err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAccount возвращает аккаунт по Telegram ID.
func (s *Storage) GetAccount(ctx context.Context, id int64) (*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	a, err := scanAccount(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, wrapErr("get account", err)
	}
	return a, nil
}

// UpsertOnBind — одна условная вставка:
//   - новый аккаунт создаётся с нулевым балансом;
//   - у существующего обновляются имя и телефон, referred_by остаётся первым записанным;
//   - заблокированный аккаунт не трогаем (нет строки в RETURNING → ErrBlocked);
//   - чужой телефон упирается в uq_accounts_phone → ErrConflict.
func (s *Storage) UpsertOnBind(ctx context.Context, p model.BindParams) (*model.Account, bool, error) {
	query := `
		INSERT INTO accounts (id, display_name, phone, referred_by)
		VALUES ($1, $2, $3, NULLIF($4::BIGINT, $1))
		ON CONFLICT (id) DO UPDATE SET
			display_name = COALESCE(EXCLUDED.display_name, accounts.display_name),
			phone        = COALESCE(EXCLUDED.phone, accounts.phone),
			referred_by  = COALESCE(accounts.referred_by, EXCLUDED.referred_by),
			updated_at   = NOW()
		WHERE NOT accounts.blocked
		RETURNING ` + accountColumns + `, (xmax = 0) AS created
	`
	var a model.Account
	var created bool
	targets := append(accountScanTargets(&a), &created)

	err := s.pool.QueryRow(ctx, query, p.ID, p.DisplayName, p.Phone, p.ReferrerID).Scan(targets...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("upsert account %d: %w", p.ID, common.ErrBlocked)
	}
	if err != nil {
		return nil, false, wrapErr("upsert account", err)
	}
	return &a, created, nil
}

// AttachReferral записывает пригласившего, только если поле ещё пустое.
func (s *Storage) AttachReferral(ctx context.Context, id, referrerID int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE accounts SET referred_by = $2, updated_at = NOW()
		WHERE id = $1 AND referred_by IS NULL AND id <> $2
	`, id, referrerID)
	if err != nil {
		return false, wrapErr("attach referral", err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}
	if err := s.ensureExists(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (s *Storage) ensureExists(ctx context.Context, id int64) error {
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM accounts WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return wrapErr("check account", err)
	}
	if !exists {
		return fmt.Errorf("account %d: %w", id, common.ErrAccountNotFound)
	}
	return nil
}

// execOne выполняет UPDATE/DELETE по id и возвращает ErrAccountNotFound, если строки нет.
func (s *Storage) execOne(ctx context.Context, op string, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return wrapErr(op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, common.ErrAccountNotFound)
	}
	return nil
}

// SetModeration блокирует или разблокирует аккаунт.
func (s *Storage) SetModeration(ctx context.Context, id int64, blocked bool) error {
	return s.execOne(ctx, "set moderation",
		`UPDATE accounts SET blocked = $2, updated_at = NOW() WHERE id = $1`, id, blocked)
}

// OverrideBalance — ручная правка очков и счётчика игр администратором.
func (s *Storage) OverrideBalance(ctx context.Context, id int64, points int64, playsToday int, day time.Time) error {
	return s.execOne(ctx, "override balance", `
		UPDATE accounts
		SET points = $2, plays_today = $3, quota_day = $4, updated_at = NOW()
		WHERE id = $1
	`, id, points, playsToday, day)
}

// DeleteAccount удаляет аккаунт вместе с историей игр (ON DELETE CASCADE).
func (s *Storage) DeleteAccount(ctx context.Context, id int64) error {
	return s.execOne(ctx, "delete account", `DELETE FROM accounts WHERE id = $1`, id)
}

// ListTopByPoints — общий рейтинг по очкам.
func (s *Storage) ListTopByPoints(ctx context.Context, limit int) ([]*model.Account, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+accountColumns+` FROM accounts
		ORDER BY points DESC, id ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, wrapErr("list top", err)
	}
	defer rows.Close()

	var out []*model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, wrapErr("scan top", err)
		}
		out = append(out, a)
	}
	return out, wrapErr("list top", rows.Err())
}

// ListReferredBy — все приглашённые аккаунтом id в порядке регистрации.
func (s *Storage) ListReferredBy(ctx context.Context, id int64) ([]*model.InviteeSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, display_name, points, created_at
		FROM accounts
		WHERE referred_by = $1
		ORDER BY created_at ASC, id ASC
	`, id)
	if err != nil {
		return nil, wrapErr("list invitees", err)
	}
	defer rows.Close()

	var out []*model.InviteeSummary
	for rows.Next() {
		var i model.InviteeSummary
		if err := rows.Scan(&i.ID, &i.DisplayName, &i.Points, &i.CreatedAt); err != nil {
			return nil, wrapErr("scan invitee", err)
		}
		out = append(out, &i)
	}
	return out, wrapErr("list invitees", rows.Err())
}

// SearchAccounts — список для админки: поиск по имени/телефону/id,
// фильтр по блокировке, имя пригласившего и число приглашённых.
func (s *Storage) SearchAccounts(ctx context.Context, f model.AccountFilter) ([]*model.AccountOverview, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT ` + accountColumnsWithAlias("a") + `,
			inv.display_name,
			(SELECT COUNT(*) FROM accounts c WHERE c.referred_by = a.id) AS invited_count
		FROM accounts a
		LEFT JOIN accounts inv ON inv.id = a.referred_by
		WHERE ($1 = ''
				OR a.id::TEXT = $1
				OR a.display_name ILIKE '%' || $1 || '%'
				OR a.phone LIKE '%' || $1 || '%')
			AND ($2::BOOLEAN IS NULL OR a.blocked = $2)
		ORDER BY a.created_at DESC, a.id DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := s.pool.Query(ctx, query, strings.TrimSpace(f.Keyword), f.Blocked, limit, f.Offset)
	if err != nil {
		return nil, wrapErr("search accounts", err)
	}
	defer rows.Close()

	var out []*model.AccountOverview
	for rows.Next() {
		var row model.AccountOverview
		targets := append(accountScanTargets(&row.Account), &row.InviterName, &row.InvitedCount)
		if err := rows.Scan(targets...); err != nil {
			return nil, wrapErr("scan account overview", err)
		}
		out = append(out, &row)
	}
	return out, wrapErr("search accounts", rows.Err())
}

// Stats — сводные цифры для админки.
func (s *Storage) Stats(ctx context.Context) (*model.Stats, error) {
	var st model.Stats
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE phone IS NOT NULL),
			COUNT(*) FILTER (WHERE blocked),
			COALESCE(SUM(points), 0)
		FROM accounts
	`).Scan(&st.Total, &st.Verified, &st.Blocked, &st.TotalPoints)
	if err != nil {
		return nil, wrapErr("stats", err)
	}
	return &st, nil
}

// SweepQuotas обнуляет счётчики за прошедшие дни. Повторный запуск ничего не меняет,
// а quota_day никогда не уменьшается.
func (s *Storage) SweepQuotas(ctx context.Context, today time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE accounts
		SET plays_today = 0, quota_day = $1, updated_at = NOW()
		WHERE quota_day IS NULL OR quota_day < $1
	`, today)
	if err != nil {
		return 0, wrapErr("sweep quotas", err)
	}
	return tag.RowsAffected(), nil
}
