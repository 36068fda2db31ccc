package web

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/dice-bot/internal/common"
)

type apiError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Remaining *int   `json:"remaining,omitempty"`
}

func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": apiError{Code: code, Message: message}})
}

// statusOf сопоставляет ошибку движка HTTP-статусу и коду.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, common.ErrAuthenticationFailed):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, common.ErrQuotaExceeded):
		return http.StatusForbidden, "quota_exceeded"
	case errors.Is(err, common.ErrBlocked):
		return http.StatusForbidden, "blocked"
	case errors.Is(err, common.ErrAccountNotFound):
		return http.StatusNotFound, "account_not_found"
	case errors.Is(err, common.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, common.ErrInvalidPhone), errors.Is(err, common.ErrInviterNotFound):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, common.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// writeError отвечает ошибкой в формате {"error": {code, message}}.
func writeError(c *gin.Context, err error) {
	status, code := statusOf(err)
	body := apiError{Code: code, Message: common.UserMessage(err)}
	if code == "quota_exceeded" {
		zero := 0
		body.Remaining = &zero
	}
	if status >= http.StatusInternalServerError {
		log.WithError(err).WithField("path", c.Request.URL.Path).Error("Ошибка обработки запроса")
	}
	c.JSON(status, gin.H{"error": body})
}
