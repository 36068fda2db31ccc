// Package memory — хранилище в памяти процесса.
// Используется в тестах и при STORAGE_TYPE=memory для локального запуска.
// Все операции сериализуются одним мьютексом; транзакция копит изменения
// и применяет их только при успешном завершении.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"serotonyl.ru/dice-bot/internal/common"
	"serotonyl.ru/dice-bot/internal/model"
	"serotonyl.ru/dice-bot/internal/storage"
)

var _ storage.Storage = (*Storage)(nil)

type loginAttempt struct {
	userID  int64
	at      time.Time
	success bool
}

// Storage хранит всё в map и срезах.
type Storage struct {
	mu    sync.Mutex
	clock common.Clock

	accounts map[int64]*model.Account
	seq      map[int64]uint64 // порядок создания, для стабильной сортировки
	nextSeq  uint64

	plays      []*model.PlayRecord
	nextPlayID int64

	sessions      []*model.AdminSession
	nextSessionID int64
	attempts      []loginAttempt
}

// New создаёт пустое хранилище с системными часами.
func New() *Storage {
	return NewWithClock(common.NewLocalClock(time.UTC))
}

// NewWithClock создаёт пустое хранилище с заданными часами.
func NewWithClock(clock common.Clock) *Storage {
	return &Storage{
		clock:    clock,
		accounts: make(map[int64]*model.Account),
		seq:      make(map[int64]uint64),
	}
}

func (s *Storage) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Storage) Close() {}

// --- Аккаунты ---

func (s *Storage) GetAccount(ctx context.Context, id int64) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, common.ErrAccountNotFound
	}
	return a.Clone(), nil
}

func (s *Storage) UpsertOnBind(ctx context.Context, p model.BindParams) (*model.Account, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.accounts[p.ID]
	if ok && existing.Blocked {
		return nil, false, common.ErrBlocked
	}
	if p.Phone != nil {
		for id, a := range s.accounts {
			if id != p.ID && a.Phone != nil && *a.Phone == *p.Phone {
				return nil, false, common.ErrConflict
			}
		}
	}

	ref := p.ReferrerID
	if ref != nil && *ref == p.ID {
		ref = nil
	}

	if !ok {
		a := &model.Account{
			ID:          p.ID,
			DisplayName: p.DisplayName,
			Phone:       p.Phone,
			ReferredBy:  ref,
			CreatedAt:   s.clock.Now(),
		}
		a = a.Clone()
		s.accounts[p.ID] = a
		s.nextSeq++
		s.seq[p.ID] = s.nextSeq
		return a.Clone(), true, nil
	}

	if p.DisplayName != nil {
		v := *p.DisplayName
		existing.DisplayName = &v
	}
	if p.Phone != nil {
		v := *p.Phone
		existing.Phone = &v
	}
	if existing.ReferredBy == nil && ref != nil {
		v := *ref
		existing.ReferredBy = &v
	}
	return existing.Clone(), false, nil
}

func (s *Storage) AttachReferral(ctx context.Context, id, referrerID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return false, common.ErrAccountNotFound
	}
	if id == referrerID || a.ReferredBy != nil {
		return false, nil
	}
	a.ReferredBy = &referrerID
	return true, nil
}

func (s *Storage) SetModeration(ctx context.Context, id int64, blocked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return common.ErrAccountNotFound
	}
	a.Blocked = blocked
	return nil
}

func (s *Storage) OverrideBalance(ctx context.Context, id int64, points int64, playsToday int, day time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return common.ErrAccountNotFound
	}
	a.Points = points
	a.PlaysToday = playsToday
	a.QuotaDay = &day
	return nil
}

func (s *Storage) DeleteAccount(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[id]; !ok {
		return common.ErrAccountNotFound
	}
	delete(s.accounts, id)
	delete(s.seq, id)

	kept := s.plays[:0]
	for _, p := range s.plays {
		if p.AccountID != id {
			kept = append(kept, p)
		}
	}
	s.plays = kept
	return nil
}

func (s *Storage) ListTopByPoints(ctx context.Context, limit int) ([]*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*model.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Points != out[j].Points {
			return out[i].Points > out[j].Points
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Storage) ListReferredBy(ctx context.Context, id int64) ([]*model.InviteeSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var found []*model.Account
	for _, a := range s.accounts {
		if a.ReferredBy != nil && *a.ReferredBy == id {
			found = append(found, a)
		}
	}
	s.sortByCreation(found)

	out := make([]*model.InviteeSummary, 0, len(found))
	for _, a := range found {
		c := a.Clone()
		out = append(out, &model.InviteeSummary{
			ID:          c.ID,
			DisplayName: c.DisplayName,
			Points:      c.Points,
			CreatedAt:   c.CreatedAt,
		})
	}
	return out, nil
}

func (s *Storage) SearchAccounts(ctx context.Context, f model.AccountFilter) ([]*model.AccountOverview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kw := strings.ToLower(strings.TrimSpace(f.Keyword))
	var found []*model.Account
	for _, a := range s.accounts {
		if f.Blocked != nil && a.Blocked != *f.Blocked {
			continue
		}
		if kw != "" && !matchesKeyword(a, kw) {
			continue
		}
		found = append(found, a)
	}
	s.sortByCreation(found)
	// новые сверху
	for i, j := 0, len(found)-1; i < j; i, j = i+1, j-1 {
		found[i], found[j] = found[j], found[i]
	}

	if f.Offset > 0 {
		if f.Offset >= len(found) {
			found = nil
		} else {
			found = found[f.Offset:]
		}
	}
	if f.Limit > 0 && len(found) > f.Limit {
		found = found[:f.Limit]
	}

	out := make([]*model.AccountOverview, 0, len(found))
	for _, a := range found {
		row := &model.AccountOverview{Account: *a.Clone()}
		if a.ReferredBy != nil {
			if inv, ok := s.accounts[*a.ReferredBy]; ok && inv.DisplayName != nil {
				name := *inv.DisplayName
				row.InviterName = &name
			}
		}
		for _, other := range s.accounts {
			if other.ReferredBy != nil && *other.ReferredBy == a.ID {
				row.InvitedCount++
			}
		}
		out = append(out, row)
	}
	return out, nil
}

func matchesKeyword(a *model.Account, kw string) bool {
	if strconv.FormatInt(a.ID, 10) == kw {
		return true
	}
	if a.DisplayName != nil && strings.Contains(strings.ToLower(*a.DisplayName), kw) {
		return true
	}
	return a.Phone != nil && strings.Contains(*a.Phone, kw)
}

func (s *Storage) Stats(ctx context.Context) (*model.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := &model.Stats{Total: len(s.accounts)}
	for _, a := range s.accounts {
		if a.IsVerified() {
			st.Verified++
		}
		if a.Blocked {
			st.Blocked++
		}
		st.TotalPoints += a.Points
	}
	return st, nil
}

func (s *Storage) SweepQuotas(ctx context.Context, today time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, a := range s.accounts {
		if a.QuotaDay == nil || a.QuotaDay.Before(today) {
			d := today
			a.PlaysToday = 0
			a.QuotaDay = &d
			n++
		}
	}
	return n, nil
}

// sortByCreation сортирует по времени создания, при равенстве по порядку вставки.
func (s *Storage) sortByCreation(accs []*model.Account) {
	sort.SliceStable(accs, func(i, j int) bool {
		if !accs[i].CreatedAt.Equal(accs[j].CreatedAt) {
			return accs[i].CreatedAt.Before(accs[j].CreatedAt)
		}
		return s.seq[accs[i].ID] < s.seq[accs[j].ID]
	})
}

// --- Игры ---

// InTx держит мьютекс хранилища всё время выполнения fn,
// поэтому внутри fn нельзя вызывать другие методы Storage.
func (s *Storage) InTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", common.ErrStoreUnavailable, err)
	}

	tx := &memTx{s: s, staged: make(map[int64]*model.Account)}
	if err := fn(tx); err != nil {
		return err
	}

	for id, a := range tx.staged {
		if _, ok := s.accounts[id]; ok {
			s.accounts[id] = a
		}
	}
	s.plays = append(s.plays, tx.plays...)
	return nil
}

func (s *Storage) ListPlays(ctx context.Context, accountID int64, limit int) ([]*model.PlayRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*model.PlayRecord
	for i := len(s.plays) - 1; i >= 0; i-- {
		p := s.plays[i]
		if p.AccountID != accountID {
			continue
		}
		c := *p
		out = append(out, &c)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Storage) TodayRanking(ctx context.Context, day time.Time, limit int) ([]*model.DailyRankEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*model.DailyRankEntry
	for _, a := range s.accounts {
		if a.QuotaDay == nil || !a.QuotaDay.Equal(day) || a.PlaysToday == 0 {
			continue
		}
		c := a.Clone()
		out = append(out, &model.DailyRankEntry{
			AccountID:   c.ID,
			DisplayName: c.DisplayName,
			Points:      c.Points,
			PlaysToday:  c.PlaysToday,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Points != out[j].Points {
			return out[i].Points > out[j].Points
		}
		return out[i].AccountID < out[j].AccountID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memTx struct {
	s      *Storage
	staged map[int64]*model.Account
	plays  []*model.PlayRecord
}

func (t *memTx) get(id int64) (*model.Account, error) {
	if a, ok := t.staged[id]; ok {
		return a, nil
	}
	base, ok := t.s.accounts[id]
	if !ok {
		return nil, common.ErrAccountNotFound
	}
	a := base.Clone()
	t.staged[id] = a
	return a, nil
}

func (t *memTx) LockAccount(ctx context.Context, id int64) (*model.Account, error) {
	a, err := t.get(id)
	if err != nil {
		return nil, err
	}
	return a.Clone(), nil
}

func (t *memTx) ResetQuota(ctx context.Context, id int64, day time.Time) error {
	a, err := t.get(id)
	if err != nil {
		return err
	}
	a.PlaysToday = 0
	a.QuotaDay = &day
	return nil
}

func (t *memTx) AdjustBalance(ctx context.Context, id int64, pointsDelta int64, playsDelta, limit int, at time.Time) (*model.Account, error) {
	a, err := t.get(id)
	if err != nil {
		return nil, err
	}
	if a.PlaysToday+playsDelta > limit {
		return nil, common.ErrQuotaExceeded
	}
	a.PlaysToday += playsDelta
	a.Points += pointsDelta
	a.LastPlayAt = &at
	return a.Clone(), nil
}

func (t *memTx) InsertPlayRecord(ctx context.Context, rec *model.PlayRecord) error {
	if _, err := t.get(rec.AccountID); err != nil {
		return err
	}
	if !rec.Outcome.Valid() {
		return fmt.Errorf("некорректный исход игры %q", rec.Outcome)
	}
	t.s.nextPlayID++
	rec.ID = t.s.nextPlayID
	if rec.OccurredAt.IsZero() {
		rec.OccurredAt = t.s.clock.Now()
	}
	c := *rec
	t.plays = append(t.plays, &c)
	return nil
}

// --- Админка ---

func (s *Storage) CreateAdminSession(ctx context.Context, sess *model.AdminSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSessionID++
	c := *sess
	c.ID = s.nextSessionID
	c.IsActive = true
	if c.AuthenticatedAt.IsZero() {
		c.AuthenticatedAt = s.clock.Now()
	}
	c.LastActivity = c.AuthenticatedAt
	s.sessions = append(s.sessions, &c)
	sess.ID = c.ID
	return nil
}

func (s *Storage) GetActiveAdminSession(ctx context.Context, userID int64, now time.Time) (*model.AdminSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.sessions) - 1; i >= 0; i-- {
		sess := s.sessions[i]
		if sess.UserID == userID && sess.ActiveAt(now) {
			c := *sess
			return &c, nil
		}
	}
	return nil, common.ErrSessionExpired
}

func (s *Storage) DeactivateAdminSessions(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sess := range s.sessions {
		if sess.UserID == userID {
			sess.IsActive = false
		}
	}
	return nil
}

func (s *Storage) TouchAdminSession(ctx context.Context, userID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.IsActive {
			sess.LastActivity = at
		}
	}
	return nil
}

func (s *Storage) LogAdminAttempt(ctx context.Context, userID int64, success bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempts = append(s.attempts, loginAttempt{userID: userID, at: at, success: success})
	return nil
}

func (s *Storage) CountFailedAdminAttempts(ctx context.Context, userID int64, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, a := range s.attempts {
		if a.userID == userID && !a.success && !a.at.Before(since) {
			n++
		}
	}
	return n, nil
}
