package session

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"serotonyl.ru/dice-bot/internal/common"
)

const issuer = "dice-bot"

// Claims — содержимое токена веб-сессии.
type Claims struct {
	UserID int64 `json:"uid"`
	jwt.RegisteredClaims
}

// Tokens выпускает и проверяет токены веб-сессий (HS256).
type Tokens struct {
	secret []byte
	ttl    time.Duration
	clock  common.Clock
}

// NewTokens создаёт выпускающего токены.
func NewTokens(secret string, ttl time.Duration, clock common.Clock) *Tokens {
	return &Tokens{secret: []byte(secret), ttl: ttl, clock: clock}
}

// TTL — срок жизни токена.
func (t *Tokens) TTL() time.Duration { return t.ttl }

// Issue выпускает токен для аккаунта.
func (t *Tokens) Issue(userID int64) (string, time.Time, error) {
	now := t.clock.Now()
	expires := now.Add(t.ttl)
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("подпись токена: %w", err)
	}
	return signed, expires, nil
}

// Parse проверяет подпись и срок токена.
// Любая ошибка возвращается как ErrAuthenticationFailed.
func (t *Tokens) Parse(token string) (*Claims, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(tok *jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.clock.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("токен истёк: %w", common.ErrAuthenticationFailed)
		}
		return nil, fmt.Errorf("токен: %w", common.ErrAuthenticationFailed)
	}
	if !parsed.Valid || claims.UserID <= 0 {
		return nil, common.ErrAuthenticationFailed
	}
	return &claims, nil
}
