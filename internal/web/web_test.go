package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"serotonyl.ru/dice-bot/internal/common"
	"serotonyl.ru/dice-bot/internal/config"
	"serotonyl.ru/dice-bot/internal/features/accounts"
	"serotonyl.ru/dice-bot/internal/features/identity"
	"serotonyl.ru/dice-bot/internal/features/ledger"
	"serotonyl.ru/dice-bot/internal/features/quota"
	"serotonyl.ru/dice-bot/internal/features/referral"
	"serotonyl.ru/dice-bot/internal/model"
	"serotonyl.ru/dice-bot/internal/storage/memory"
	"serotonyl.ru/dice-bot/internal/web/session"
)

const botToken = "123456:TEST-token"

var testNow = time.Unix(1700000000, 0).UTC()

type WebSuite struct {
	suite.Suite
	ctx      context.Context
	mini     *miniredis.Miniredis
	store    *memory.Storage
	verifier *identity.Verifier
	tokens   *session.Tokens
	server   *Server
}

func (s *WebSuite) SetupTest() {
	s.ctx = context.Background()
	s.mini = miniredis.RunT(s.T())
	clock := common.FixedClock{T: testNow}

	cfg := &config.Config{
		WebAddr:           ":0",
		WebPendingBindTTL: 15 * time.Minute,
		LeaderboardSize:   10,
	}
	s.store = memory.NewWithClock(clock)
	tracker := quota.NewTracker(clock)
	referrals := referral.NewService(s.store)
	acc := accounts.NewService(s.store, referrals, tracker, nil)
	games := ledger.NewService(s.store, tracker, ledger.NewSequenceRoller(6, 1))
	s.verifier = identity.NewVerifier(botToken, 24*time.Hour, clock)
	s.tokens = session.NewTokens("0123456789abcdef-secret", time.Hour, clock)
	pending := session.NewRedisStoreWithClient(redis.NewClient(&redis.Options{Addr: s.mini.Addr()}))

	s.server = NewServer(cfg, acc, games, referrals, s.verifier, pending, s.tokens, s.store, clock, "dice_bot")
}

func (s *WebSuite) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (s *WebSuite) authed(method, path string, userID int64) *httptest.ResponseRecorder {
	token, _, err := s.tokens.Issue(userID)
	s.Require().NoError(err)
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	return s.do(req)
}

func (s *WebSuite) loginForm(id string) url.Values {
	fields := map[string]string{
		"id":         id,
		"first_name": "Вася",
		"username":   "vasya" + id,
		"auth_date":  "1699999000",
	}
	fields["hash"] = s.verifier.Sign(fields)
	form := url.Values{}
	for k, v := range fields {
		form.Set(k, v)
	}
	return form
}

func (s *WebSuite) submitBind(phone, inviter string) *httptest.ResponseRecorder {
	path := "/bind/submit"
	if inviter != "" {
		path += "?inviter=" + inviter
	}
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(url.Values{"phone": {phone}}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.do(req)
}

func (s *WebSuite) auth(form url.Values, cookies []*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/auth", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return s.do(req)
}

func decode[T any](s *WebSuite, rec *httptest.ResponseRecorder) T {
	var v T
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type errorBody struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		Remaining *int   `json:"remaining"`
	} `json:"error"`
}

func (s *WebSuite) TestHealth() {
	rec := s.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	s.Equal(http.StatusOK, rec.Code)

	s.mini.Close()
	rec = s.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	s.Equal(http.StatusServiceUnavailable, rec.Code)
}

func (s *WebSuite) TestBindThenLogin() {
	_, _, err := s.store.UpsertOnBind(s.ctx, model.BindParams{ID: 777, DisplayName: model.StrPtr("inviter")})
	s.Require().NoError(err)

	rec := s.submitBind("+7 (999) 000-00-00", "777")
	s.Require().Equal(http.StatusAccepted, rec.Code, rec.Body.String())
	cookies := rec.Result().Cookies()
	s.Require().NotEmpty(cookies)
	s.Equal(bindCookie, cookies[0].Name)

	rec = s.auth(s.loginForm("555"), cookies)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[struct {
		Token   string `json:"token"`
		Created bool   `json:"created"`
		Bound   bool   `json:"bound"`
	}](s, rec)
	s.NotEmpty(resp.Token)
	s.True(resp.Created)
	s.True(resp.Bound)

	acc, err := s.store.GetAccount(s.ctx, 555)
	s.Require().NoError(err)
	s.Equal("+79990000000", *acc.Phone)
	s.Require().NotNil(acc.ReferredBy)
	s.Equal(int64(777), *acc.ReferredBy)

	// привязка одноразовая
	rec = s.auth(s.loginForm("555"), cookies)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.False(decode[struct {
		Bound bool `json:"bound"`
	}](s, rec).Bound)

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer "+resp.Token)
	rec = s.do(req)
	s.Require().Equal(http.StatusOK, rec.Code)
	me := decode[meResponse](s, rec)
	s.Equal(int64(555), me.ID)
	s.Equal(quota.DailyLimit, me.Remaining)
	s.Equal("https://t.me/dice_bot?start=ref_555", me.InviteLink)

	rec = s.authed(http.MethodGet, "/api/invitees", 777)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal(1, decode[struct {
		Count int `json:"count"`
	}](s, rec).Count)
}

func (s *WebSuite) TestLoginWithoutBindCreatesAccount() {
	rec := s.auth(s.loginForm("42"), nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	acc, err := s.store.GetAccount(s.ctx, 42)
	s.Require().NoError(err)
	s.Nil(acc.Phone)

	var sessionSet bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookie && c.Value != "" {
			sessionSet = true
		}
	}
	s.True(sessionSet)
}

func (s *WebSuite) TestAuthJSON() {
	fields := map[string]string{"id": "43", "first_name": "Петя", "auth_date": "1699999000"}
	hash := s.verifier.Sign(fields)
	body := `{"id":43,"first_name":"Петя","auth_date":1699999000,"hash":"` + hash + `"}`

	req := httptest.NewRequest(http.MethodPost, "/auth", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := s.do(req)
	s.Equal(http.StatusOK, rec.Code, rec.Body.String())
}

func (s *WebSuite) TestAuthRejectsBadSignature() {
	form := s.loginForm("555")
	form.Set("first_name", "Hacker")

	rec := s.auth(form, nil)
	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Equal("unauthorized", decode[errorBody](s, rec).Error.Code)

	_, err := s.store.GetAccount(s.ctx, 555)
	s.ErrorIs(err, common.ErrAccountNotFound)
}

func (s *WebSuite) TestBindValidation() {
	s.Equal(http.StatusBadRequest, s.submitBind("12", "").Code)
	s.Equal(http.StatusBadRequest, s.submitBind("+79990000000", "abc").Code)
	s.Equal(http.StatusBadRequest, s.submitBind("+79990000000", "-5").Code)
}

func (s *WebSuite) TestBindConflict() {
	_, _, err := s.store.UpsertOnBind(s.ctx, model.BindParams{ID: 1, Phone: model.StrPtr("+79990000000")})
	s.Require().NoError(err)

	rec := s.submitBind("+79990000000", "")
	s.Require().Equal(http.StatusAccepted, rec.Code)
	rec = s.auth(s.loginForm("2"), rec.Result().Cookies())
	s.Equal(http.StatusConflict, rec.Code)
	s.Equal("conflict", decode[errorBody](s, rec).Error.Code)
}

func (s *WebSuite) TestAPIRequiresSession() {
	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/me", nil))
	s.Equal(http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/dice/play", nil)
	req.Header.Set("Authorization", "Bearer nope")
	s.Equal(http.StatusUnauthorized, s.do(req).Code)

	req = httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Basic abc")
	s.Equal(http.StatusUnauthorized, s.do(req).Code)
}

func (s *WebSuite) TestSessionCookieIsAccepted() {
	_, _, err := s.store.UpsertOnBind(s.ctx, model.BindParams{ID: 9})
	s.Require().NoError(err)
	token, _, err := s.tokens.Issue(9)
	s.Require().NoError(err)

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: token})
	s.Equal(http.StatusOK, s.do(req).Code)
}

func (s *WebSuite) TestPlayUntilQuota() {
	_, _, err := s.store.UpsertOnBind(s.ctx, model.BindParams{ID: 555})
	s.Require().NoError(err)

	for i := 1; i <= quota.DailyLimit; i++ {
		rec := s.authed(http.MethodPost, "/api/dice/play", 555)
		s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
		res := decode[ledger.Result](s, rec)
		s.Equal(6, res.PlayerRoll)
		s.Equal(1, res.HouseRoll)
		s.Equal(model.OutcomeWin, res.Outcome)
		s.Equal(int64(10*i), res.Points)
		s.Equal(quota.DailyLimit-i, res.Remaining)
	}

	rec := s.authed(http.MethodPost, "/api/dice/play", 555)
	s.Equal(http.StatusForbidden, rec.Code)
	body := decode[errorBody](s, rec)
	s.Equal("quota_exceeded", body.Error.Code)
	s.Require().NotNil(body.Error.Remaining)
	s.Equal(0, *body.Error.Remaining)

	rec = s.authed(http.MethodGet, "/api/dice/plays?limit=3", 555)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Len(decode[struct {
		Plays []model.PlayRecord `json:"plays"`
	}](s, rec).Plays, 3)

	s.Equal(http.StatusBadRequest, s.authed(http.MethodGet, "/api/dice/plays?limit=x", 555).Code)
}

func (s *WebSuite) TestPlayErrors() {
	rec := s.authed(http.MethodPost, "/api/dice/play", 404)
	s.Equal(http.StatusNotFound, rec.Code)

	_, _, err := s.store.UpsertOnBind(s.ctx, model.BindParams{ID: 13})
	s.Require().NoError(err)
	s.Require().NoError(s.store.SetModeration(s.ctx, 13, true))
	rec = s.authed(http.MethodPost, "/api/dice/play", 13)
	s.Equal(http.StatusForbidden, rec.Code)
	s.Equal("blocked", decode[errorBody](s, rec).Error.Code)
}

func (s *WebSuite) TestRankHidesPhones() {
	_, _, err := s.store.UpsertOnBind(s.ctx, model.BindParams{ID: 1, DisplayName: model.StrPtr("a"), Phone: model.StrPtr("+71111111111")})
	s.Require().NoError(err)
	s.Require().NoError(s.store.OverrideBalance(s.ctx, 1, 50, 0, common.DateOf(testNow)))

	rec := s.authed(http.MethodGet, "/api/rank", 1)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.NotContains(rec.Body.String(), "+7111")
	rank := decode[struct {
		Rank []rankEntry `json:"rank"`
	}](s, rec).Rank
	s.Require().Len(rank, 1)
	s.Equal(1, rank[0].Place)
	s.Equal(int64(50), rank[0].Points)

	s.Equal(http.StatusOK, s.authed(http.MethodGet, "/api/rank?period=today", 1).Code)
	s.Equal(http.StatusBadRequest, s.authed(http.MethodGet, "/api/rank?period=week", 1).Code)
}

func TestWebSuite(t *testing.T) {
	suite.Run(t, new(WebSuite))
}
