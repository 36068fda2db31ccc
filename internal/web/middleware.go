package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/dice-bot/internal/web/session"
)

// RequestID присваивает запросу id (или берёт X-Request-ID клиента).
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxRequestID, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// RequestLogger пишет каждый запрос в logrus.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithFields(log.Fields{
			"request_id": c.GetString(ctxRequestID),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency":    time.Since(start).String(),
		})
		if uid, ok := c.Get(ctxUserID); ok {
			entry = entry.WithField("user_id", uid)
		}

		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			entry.Error("HTTP-запрос")
		case status >= http.StatusBadRequest:
			entry.Info("HTTP-запрос")
		default:
			entry.Debug("HTTP-запрос")
		}
	}
}

// Recovery перехватывает панику обработчика и отвечает 500.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.WithFields(log.Fields{
					"request_id": c.GetString(ctxRequestID),
					"path":       c.Request.URL.Path,
					"panic":      r,
				}).Error("Паника в обработчике HTTP")
				abortWithError(c, http.StatusInternalServerError, "internal", "внутренняя ошибка")
			}
		}()
		c.Next()
	}
}

// AuthMiddleware пропускает только запросы с действующим токеном сессии.
// Токен берётся из Authorization: Bearer, иначе из cookie.
func AuthMiddleware(tokens *session.Tokens) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ""
		if header := c.GetHeader("Authorization"); header != "" {
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				abortWithError(c, http.StatusUnauthorized, "unauthorized", "неверный заголовок Authorization")
				return
			}
			token = strings.TrimSpace(parts[1])
		} else if cookie, err := c.Cookie(sessionCookie); err == nil {
			token = cookie
		}

		if token == "" {
			abortWithError(c, http.StatusUnauthorized, "unauthorized", "нужна авторизация")
			return
		}

		claims, err := tokens.Parse(token)
		if err != nil {
			writeError(c, err)
			c.Abort()
			return
		}

		c.Set(ctxUserID, claims.UserID)
		c.Next()
	}
}

// currentUser — id аккаунта из AuthMiddleware.
func currentUser(c *gin.Context) int64 {
	return c.GetInt64(ctxUserID)
}
