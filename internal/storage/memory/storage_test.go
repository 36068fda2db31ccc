package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"serotonyl.ru/dice-bot/internal/common"
	"serotonyl.ru/dice-bot/internal/model"
	"serotonyl.ru/dice-bot/internal/storage"
)

type StorageSuite struct {
	suite.Suite
	storage *Storage
	ctx     context.Context
	today   time.Time
}

func TestStorageSuite(t *testing.T) {
	suite.Run(t, new(StorageSuite))
}

func (s *StorageSuite) SetupTest() {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.storage = NewWithClock(common.FixedClock{T: now})
	s.ctx = context.Background()
	s.today = common.DateOf(now)
}

func (s *StorageSuite) bind(id int64, phone string, ref *int64) *model.Account {
	a, _, err := s.storage.UpsertOnBind(s.ctx, model.BindParams{
		ID: id, Phone: model.StrPtr(phone), ReferrerID: ref,
	})
	s.Require().NoError(err)
	return a
}

func ptr(v int64) *int64 { return &v }

func (s *StorageSuite) TestGetAccountNotFound() {
	_, err := s.storage.GetAccount(s.ctx, 42)
	s.ErrorIs(err, common.ErrAccountNotFound)
}

func (s *StorageSuite) TestUpsertCreatesThenUpdates() {
	a, created, err := s.storage.UpsertOnBind(s.ctx, model.BindParams{
		ID: 555, DisplayName: model.StrPtr("vasya"), Phone: model.StrPtr("1234567890"), ReferrerID: ptr(111),
	})
	s.Require().NoError(err)
	s.True(created)
	s.Equal(int64(0), a.Points)
	s.Equal(int64(111), *a.ReferredBy)

	a, created, err = s.storage.UpsertOnBind(s.ctx, model.BindParams{
		ID: 555, Phone: model.StrPtr("0987654321"), ReferrerID: ptr(222),
	})
	s.Require().NoError(err)
	s.False(created)
	s.Equal("0987654321", *a.Phone)
	s.Equal("vasya", *a.DisplayName)
	s.Equal(int64(111), *a.ReferredBy)
}

func (s *StorageSuite) TestUpsertDropsSelfReferral() {
	a := s.bind(7, "700", ptr(7))
	s.Nil(a.ReferredBy)
}

func (s *StorageSuite) TestUpsertPhoneConflict() {
	s.bind(1, "111", nil)
	_, _, err := s.storage.UpsertOnBind(s.ctx, model.BindParams{ID: 2, Phone: model.StrPtr("111")})
	s.ErrorIs(err, common.ErrConflict)

	_, err = s.storage.GetAccount(s.ctx, 2)
	s.ErrorIs(err, common.ErrAccountNotFound)
}

func (s *StorageSuite) TestUpsertRejectsBlocked() {
	s.bind(1, "111", nil)
	s.Require().NoError(s.storage.SetModeration(s.ctx, 1, true))

	_, _, err := s.storage.UpsertOnBind(s.ctx, model.BindParams{ID: 1, Phone: model.StrPtr("222")})
	s.ErrorIs(err, common.ErrBlocked)

	a, err := s.storage.GetAccount(s.ctx, 1)
	s.Require().NoError(err)
	s.Equal("111", *a.Phone)
}

func (s *StorageSuite) TestAttachReferralFirstWriteWins() {
	s.bind(1, "1", nil)

	changed, err := s.storage.AttachReferral(s.ctx, 1, 10)
	s.Require().NoError(err)
	s.True(changed)

	changed, err = s.storage.AttachReferral(s.ctx, 1, 20)
	s.Require().NoError(err)
	s.False(changed)

	a, _ := s.storage.GetAccount(s.ctx, 1)
	s.Equal(int64(10), *a.ReferredBy)

	_, err = s.storage.AttachReferral(s.ctx, 99, 10)
	s.ErrorIs(err, common.ErrAccountNotFound)
}

func (s *StorageSuite) TestListReferredByCreationOrder() {
	s.bind(3, "3", ptr(100))
	s.bind(1, "1", ptr(100))
	s.bind(2, "2", ptr(200))

	invitees, err := s.storage.ListReferredBy(s.ctx, 100)
	s.Require().NoError(err)
	s.Require().Len(invitees, 2)
	s.Equal(int64(3), invitees[0].ID)
	s.Equal(int64(1), invitees[1].ID)
}

func (s *StorageSuite) TestTxRollbackOnError() {
	s.bind(1, "1", nil)
	boom := errors.New("boom")

	err := s.storage.InTx(s.ctx, func(tx storage.Tx) error {
		s.Require().NoError(tx.InsertPlayRecord(s.ctx, &model.PlayRecord{
			AccountID: 1, PlayerRoll: 6, HouseRoll: 1, Outcome: model.OutcomeWin, PointsDelta: 10,
		}))
		_, err := tx.AdjustBalance(s.ctx, 1, 10, 1, 10, time.Now())
		s.Require().NoError(err)
		return boom
	})
	s.ErrorIs(err, boom)

	a, _ := s.storage.GetAccount(s.ctx, 1)
	s.Equal(int64(0), a.Points)
	s.Equal(0, a.PlaysToday)

	plays, err := s.storage.ListPlays(s.ctx, 1, 100)
	s.Require().NoError(err)
	s.Empty(plays)
}

func (s *StorageSuite) TestAdjustBalanceRespectsLimit() {
	s.bind(1, "1", nil)
	s.Require().NoError(s.storage.OverrideBalance(s.ctx, 1, 0, 10, s.today))

	err := s.storage.InTx(s.ctx, func(tx storage.Tx) error {
		_, err := tx.AdjustBalance(s.ctx, 1, 10, 1, 10, time.Now())
		return err
	})
	s.ErrorIs(err, common.ErrQuotaExceeded)
}

func (s *StorageSuite) TestSweepQuotasIsIdempotent() {
	s.bind(1, "1", nil)
	s.bind(2, "2", nil)
	yesterday := s.today.AddDate(0, 0, -1)
	s.Require().NoError(s.storage.OverrideBalance(s.ctx, 1, 0, 7, yesterday))
	s.Require().NoError(s.storage.OverrideBalance(s.ctx, 2, 0, 3, s.today))

	n, err := s.storage.SweepQuotas(s.ctx, s.today)
	s.Require().NoError(err)
	s.Equal(int64(1), n)

	n, err = s.storage.SweepQuotas(s.ctx, s.today)
	s.Require().NoError(err)
	s.Equal(int64(0), n)

	a1, _ := s.storage.GetAccount(s.ctx, 1)
	a2, _ := s.storage.GetAccount(s.ctx, 2)
	s.Equal(0, a1.PlaysToday)
	s.True(a1.QuotaDay.Equal(s.today))
	s.Equal(3, a2.PlaysToday)
}

func (s *StorageSuite) TestSearchAndStats() {
	s.bind(1, "79990001122", nil)
	a, _, err := s.storage.UpsertOnBind(s.ctx, model.BindParams{ID: 2, DisplayName: model.StrPtr("Petya")})
	s.Require().NoError(err)
	s.False(a.IsVerified())
	s.bind(3, "79995554433", ptr(1))
	s.Require().NoError(s.storage.SetModeration(s.ctx, 3, true))

	rows, err := s.storage.SearchAccounts(s.ctx, model.AccountFilter{Keyword: "7999"})
	s.Require().NoError(err)
	s.Len(rows, 2)

	blocked := true
	rows, err = s.storage.SearchAccounts(s.ctx, model.AccountFilter{Blocked: &blocked})
	s.Require().NoError(err)
	s.Require().Len(rows, 1)
	s.Equal(int64(3), rows[0].ID)

	rows, err = s.storage.SearchAccounts(s.ctx, model.AccountFilter{Keyword: "1"})
	s.Require().NoError(err)
	s.Require().NotEmpty(rows)
	for _, r := range rows {
		if r.ID == 1 {
			s.Equal(1, r.InvitedCount)
		}
	}

	st, err := s.storage.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(3, st.Total)
	s.Equal(2, st.Verified)
	s.Equal(1, st.Blocked)
}

func (s *StorageSuite) TestDeleteCascadesPlays() {
	s.bind(1, "1", nil)
	s.Require().NoError(s.storage.InTx(s.ctx, func(tx storage.Tx) error {
		return tx.InsertPlayRecord(s.ctx, &model.PlayRecord{
			AccountID: 1, PlayerRoll: 2, HouseRoll: 2, Outcome: model.OutcomeDraw,
		})
	}))

	s.Require().NoError(s.storage.DeleteAccount(s.ctx, 1))
	plays, _ := s.storage.ListPlays(s.ctx, 1, 0)
	s.Empty(plays)
	s.ErrorIs(s.storage.DeleteAccount(s.ctx, 1), common.ErrAccountNotFound)
}

func (s *StorageSuite) TestAdminSessions() {
	now := time.Now()
	_, err := s.storage.GetActiveAdminSession(s.ctx, 1, now)
	s.ErrorIs(err, common.ErrSessionExpired)

	s.Require().NoError(s.storage.CreateAdminSession(s.ctx, &model.AdminSession{
		UserID: 1, SessionToken: "t", ExpiresAt: now.Add(time.Hour),
	}))
	sess, err := s.storage.GetActiveAdminSession(s.ctx, 1, now)
	s.Require().NoError(err)
	s.Equal("t", sess.SessionToken)

	_, err = s.storage.GetActiveAdminSession(s.ctx, 1, now.Add(2*time.Hour))
	s.ErrorIs(err, common.ErrSessionExpired)

	s.Require().NoError(s.storage.DeactivateAdminSessions(s.ctx, 1))
	_, err = s.storage.GetActiveAdminSession(s.ctx, 1, now)
	s.ErrorIs(err, common.ErrSessionExpired)

	s.Require().NoError(s.storage.LogAdminAttempt(s.ctx, 1, false, now.Add(-2*time.Hour)))
	s.Require().NoError(s.storage.LogAdminAttempt(s.ctx, 1, false, now))
	s.Require().NoError(s.storage.LogAdminAttempt(s.ctx, 1, true, now))
	n, err := s.storage.CountFailedAdminAttempts(s.ctx, 1, now.Add(-time.Hour))
	s.Require().NoError(err)
	s.Equal(1, n)
}
