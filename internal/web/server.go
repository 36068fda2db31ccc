// Package web — HTTP-фронтенд игры: привязка телефона через сайт,
// вход через Telegram Login Widget и JSON API для игры.
package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/dice-bot/internal/common"
	"serotonyl.ru/dice-bot/internal/config"
	"serotonyl.ru/dice-bot/internal/features/accounts"
	"serotonyl.ru/dice-bot/internal/features/identity"
	"serotonyl.ru/dice-bot/internal/features/ledger"
	"serotonyl.ru/dice-bot/internal/features/referral"
	"serotonyl.ru/dice-bot/internal/web/session"
)

const (
	bindCookie    = "bind_sid"
	sessionCookie = "dice_session"
	ctxUserID     = "user_id"
	ctxRequestID  = "request_id"
)

// Pinger — то, что проверяет /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server — HTTP-сервер веб-фронтенда.
type Server struct {
	cfg *config.Config

	accounts  *accounts.Service
	games     *ledger.Service
	referrals *referral.Service
	verifier  *identity.Verifier
	pending   session.Store
	tokens    *session.Tokens
	store     Pinger
	clock     common.Clock

	botUsername string

	router *gin.Engine
	http   *http.Server
}

// NewServer собирает роутер со всеми маршрутами.
func NewServer(
	cfg *config.Config,
	accountsService *accounts.Service,
	games *ledger.Service,
	referrals *referral.Service,
	verifier *identity.Verifier,
	pending session.Store,
	tokens *session.Tokens,
	store Pinger,
	clock common.Clock,
	botUsername string,
) *Server {
	s := &Server{
		cfg:         cfg,
		accounts:    accountsService,
		games:       games,
		referrals:   referrals,
		verifier:    verifier,
		pending:     pending,
		tokens:      tokens,
		store:       store,
		clock:       clock,
		botUsername: botUsername,
	}
	s.router = s.routes()
	return s
}

// Handler — http.Handler сервера (для тестов и встраивания).
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() *gin.Engine {
	if log.GetLevel() < log.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(RequestID(), RequestLogger(), Recovery())

	router.GET("/health", s.handleHealth)
	router.POST("/bind/submit", s.handleBindSubmit)
	router.POST("/auth", s.handleAuth)
	router.POST("/logout", s.handleLogout)

	api := router.Group("/api")
	api.Use(AuthMiddleware(s.tokens))
	{
		api.GET("/me", s.handleMe)
		api.POST("/dice/play", s.handlePlay)
		api.GET("/dice/plays", s.handlePlays)
		api.GET("/rank", s.handleRank)
		api.GET("/invitees", s.handleInvitees)
	}

	return router
}

// Start слушает адрес из конфига и блокируется до отмены ctx,
// после чего корректно останавливает сервер.
func (s *Server) Start(ctx context.Context) error {
	s.http = &http.Server{
		Addr:              s.cfg.WebAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", s.cfg.WebAddr).Info("Веб-сервер запущен")
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("Веб-сервер остановлен")
	return nil
}
