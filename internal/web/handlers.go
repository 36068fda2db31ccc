package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/dice-bot/internal/common"
	"serotonyl.ru/dice-bot/internal/features/accounts"
	"serotonyl.ru/dice-bot/internal/features/identity"
	"serotonyl.ru/dice-bot/internal/features/referral"
	"serotonyl.ru/dice-bot/internal/web/session"
)

const maxListLimit = 100

// meResponse — профиль текущего игрока.
type meResponse struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	Phone      *string `json:"phone,omitempty"`
	Points     int64   `json:"points"`
	PlaysToday int     `json:"playsToday"`
	Remaining  int     `json:"remaining"`
	Limit      int     `json:"limit"`
	Blocked    bool    `json:"blocked"`
	ReferredBy *int64  `json:"referredBy,omitempty"`
	Invited    int     `json:"invited"`
	InviteLink string  `json:"inviteLink,omitempty"`
}

// rankEntry — строка рейтинга. Телефон не отдаётся.
type rankEntry struct {
	Place  int    `json:"place"`
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Points int64  `json:"points"`
	Plays  *int   `json:"playsToday,omitempty"`
}

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.store.Ping(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	if err := s.pending.Ping(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleBindSubmit сохраняет телефон до входа через Telegram.
func (s *Server) handleBindSubmit(c *gin.Context) {
	var body struct {
		Phone string `json:"phone" form:"phone"`
	}
	if err := c.ShouldBind(&body); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_request", "не удалось разобрать запрос")
		return
	}

	phone, err := accounts.NormalizePhone(body.Phone)
	if err != nil {
		writeError(c, err)
		return
	}

	var inviterID *int64
	if raw := c.Query("inviter"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			abortWithError(c, http.StatusBadRequest, "invalid_request", "некорректный inviter")
			return
		}
		inviterID = &id
	}

	sid := uuid.NewString()
	ttl := s.cfg.WebPendingBindTTL
	pending := &session.PendingBind{Phone: phone, InviterID: inviterID, CreatedAt: s.clock.Now()}
	if err := s.pending.PutBind(c.Request.Context(), sid, pending, ttl); err != nil {
		writeError(c, err)
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(bindCookie, sid, int(ttl/time.Second), "/", "", false, true)
	c.JSON(http.StatusAccepted, gin.H{
		"status":    "pending",
		"expiresIn": int(ttl / time.Second),
	})
}

// handleAuth проверяет данные Telegram Login Widget, завершает
// незавершённую привязку (если есть) и выдаёт токен сессии.
func (s *Server) handleAuth(c *gin.Context) {
	fields, err := authFields(c)
	if err != nil {
		writeError(c, err)
		return
	}

	ident, err := s.verifier.Authenticate(fields)
	if err != nil {
		log.WithError(err).Info("Отклонён вход через Telegram")
		writeError(c, err)
		return
	}

	ctx := c.Request.Context()
	var (
		pending *session.PendingBind
		found   bool
	)
	if sid, err := c.Cookie(bindCookie); err == nil && sid != "" {
		pending, found, err = s.pending.TakeBind(ctx, sid)
		if err != nil {
			writeError(c, err)
			return
		}
		c.SetCookie(bindCookie, "", -1, "/", "", false, true)
	}

	var created bool
	if found {
		res, err := s.accounts.Bind(ctx, accounts.BindRequest{
			ID:          ident.ID,
			DisplayName: ident.DisplayName(),
			Phone:       pending.Phone,
			InviterID:   pending.InviterID,
			NotifyUser:  true,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		created = res.Created
	} else {
		_, created, err = s.accounts.Login(ctx, ident)
		if err != nil {
			writeError(c, err)
			return
		}
	}

	token, expires, err := s.tokens.Issue(ident.ID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookie, token, int(s.tokens.TTL()/time.Second), "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{
		"token":     token,
		"expiresAt": expires.UTC(),
		"created":   created,
		"bound":     found,
	})
}

func (s *Server) handleLogout(c *gin.Context) {
	c.SetCookie(sessionCookie, "", -1, "/", "", false, true)
	c.Status(http.StatusNoContent)
}

// authFields достаёт поля виджета из JSON-тела или формы/query.
func authFields(c *gin.Context) (map[string]string, error) {
	if strings.HasPrefix(c.ContentType(), "application/json") {
		dec := json.NewDecoder(c.Request.Body)
		dec.UseNumber()
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil {
			return nil, errors.Join(common.ErrAuthenticationFailed, err)
		}
		return identity.FieldsFromJSON(obj)
	}
	if err := c.Request.ParseForm(); err != nil {
		return nil, errors.Join(common.ErrAuthenticationFailed, err)
	}
	return identity.FieldsFromValues(c.Request.Form), nil
}

func (s *Server) handleMe(c *gin.Context) {
	p, err := s.accounts.Profile(c.Request.Context(), currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	acc := p.Account
	resp := meResponse{
		ID:         acc.ID,
		Name:       acc.Name(),
		Phone:      acc.Phone,
		Points:     acc.Points,
		PlaysToday: acc.PlaysToday,
		Remaining:  p.Remaining,
		Limit:      p.Limit,
		Blocked:    acc.Blocked,
		ReferredBy: acc.ReferredBy,
		Invited:    p.Invited,
	}
	if s.botUsername != "" {
		resp.InviteLink = referral.InviteLink(s.botUsername, acc.ID)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handlePlay(c *gin.Context) {
	res, err := s.games.Play(c.Request.Context(), currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handlePlays(c *gin.Context) {
	limit, ok := queryLimit(c, 20)
	if !ok {
		return
	}
	plays, err := s.games.History(c.Request.Context(), currentUser(c), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"plays": plays})
}

// handleRank — общий рейтинг по очкам или, с period=today, среди
// сыгравших сегодня.
func (s *Server) handleRank(c *gin.Context) {
	limit, ok := queryLimit(c, s.cfg.LeaderboardSize)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	entries := make([]rankEntry, 0, limit)
	switch c.DefaultQuery("period", "all") {
	case "all":
		top, err := s.accounts.Leaderboard(ctx, limit)
		if err != nil {
			writeError(c, err)
			return
		}
		for i, a := range top {
			entries = append(entries, rankEntry{Place: i + 1, ID: a.ID, Name: a.Name(), Points: a.Points})
		}
	case "today":
		top, err := s.games.TodayRanking(ctx, limit)
		if err != nil {
			writeError(c, err)
			return
		}
		for i, e := range top {
			plays := e.PlaysToday
			entries = append(entries, rankEntry{Place: i + 1, ID: e.AccountID, Name: e.Name(), Points: e.Points, Plays: &plays})
		}
	default:
		abortWithError(c, http.StatusBadRequest, "invalid_request", "period: all или today")
		return
	}
	c.JSON(http.StatusOK, gin.H{"rank": entries})
}

func (s *Server) handleInvitees(c *gin.Context) {
	ctx := c.Request.Context()
	id := currentUser(c)
	if _, err := s.accounts.Get(ctx, id); err != nil {
		writeError(c, err)
		return
	}
	invitees, err := s.referrals.ListInvitees(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(invitees), "invitees": invitees})
}

// queryLimit читает ?limit=; при ошибке уже ответил 400.
func queryLimit(c *gin.Context, def int) (int, bool) {
	if def <= 0 {
		def = 10
	}
	raw := c.Query("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		abortWithError(c, http.StatusBadRequest, "invalid_request", "limit должен быть положительным числом")
		return 0, false
	}
	if n > maxListLimit {
		n = maxListLimit
	}
	return n, true
}
