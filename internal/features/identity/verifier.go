// Package identity проверяет данные входа через Telegram Login Widget.
//
// Подпись: из полей убирается hash, остальные сортируются по ключу и
// склеиваются строками "key=value" через "\n". Ключ HMAC-SHA256:
// SHA-256 от токена бота. Подпись сравнивается за постоянное время.
package identity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"serotonyl.ru/dice-bot/internal/common"
)

const (
	fieldHash     = "hash"
	fieldID       = "id"
	fieldAuthDate = "auth_date"

	// допустимое расхождение часов для auth_date из будущего
	clockSkew = time.Minute
)

// Identity — проверенный пользователь Telegram.
type Identity struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
	PhotoURL  string
	AuthDate  time.Time
}

// DisplayName — @username, иначе имя и фамилия.
func (i *Identity) DisplayName() string {
	if i.Username != "" {
		return i.Username
	}
	return strings.TrimSpace(i.FirstName + " " + i.LastName)
}

// Verifier проверяет подписи одного бота.
type Verifier struct {
	secret [sha256.Size]byte
	maxAge time.Duration
	clock  common.Clock
}

// NewVerifier создаёт проверяющего. maxAge == 0 отключает проверку свежести.
func NewVerifier(botToken string, maxAge time.Duration, clock common.Clock) *Verifier {
	return &Verifier{
		secret: sha256.Sum256([]byte(botToken)),
		maxAge: maxAge,
		clock:  clock,
	}
}

// Sign считает подпись для набора полей (поле hash игнорируется).
func (v *Verifier) Sign(fields map[string]string) string {
	return hex.EncodeToString(v.mac(fields))
}

func (v *Verifier) mac(fields map[string]string) []byte {
	m := hmac.New(sha256.New, v.secret[:])
	m.Write([]byte(DataCheckString(fields)))
	return m.Sum(nil)
}

// DataCheckString собирает строку для подписи.
func DataCheckString(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k == fieldHash {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+fields[k])
	}
	return strings.Join(lines, "\n")
}

// Verify проверяет только подпись: hash должен совпасть побайтно
// с hex в нижнем регистре, как его выдаёт Telegram.
// Любая ошибка оборачивает common.ErrAuthenticationFailed.
func (v *Verifier) Verify(fields map[string]string) error {
	provided, ok := fields[fieldHash]
	if !ok || provided == "" {
		return fmt.Errorf("нет поля hash: %w", common.ErrAuthenticationFailed)
	}
	want := hex.EncodeToString(v.mac(fields))
	if !hmac.Equal([]byte(want), []byte(provided)) {
		return fmt.Errorf("подпись не совпала: %w", common.ErrAuthenticationFailed)
	}
	return nil
}

// Authenticate проверяет подпись и свежесть, затем разбирает поля.
func (v *Verifier) Authenticate(fields map[string]string) (*Identity, error) {
	if err := v.Verify(fields); err != nil {
		return nil, err
	}

	id, err := strconv.ParseInt(fields[fieldID], 10, 64)
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("некорректный id: %w", common.ErrAuthenticationFailed)
	}

	ident := &Identity{
		ID:        id,
		Username:  fields["username"],
		FirstName: fields["first_name"],
		LastName:  fields["last_name"],
		PhotoURL:  fields["photo_url"],
	}

	if raw, ok := fields[fieldAuthDate]; ok {
		ts, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("некорректный auth_date: %w", common.ErrAuthenticationFailed)
		}
		ident.AuthDate = time.Unix(ts, 0)
	}

	if v.maxAge > 0 {
		if ident.AuthDate.IsZero() {
			return nil, fmt.Errorf("нет auth_date: %w", common.ErrAuthenticationFailed)
		}
		now := v.clock.Now()
		if now.Sub(ident.AuthDate) > v.maxAge {
			return nil, fmt.Errorf("данные входа устарели: %w", common.ErrAuthenticationFailed)
		}
		if ident.AuthDate.Sub(now) > clockSkew {
			return nil, fmt.Errorf("auth_date из будущего: %w", common.ErrAuthenticationFailed)
		}
	}
	return ident, nil
}

// FieldsFromValues берёт первое значение каждого ключа формы/query.
func FieldsFromValues(values url.Values) map[string]string {
	out := make(map[string]string, len(values))
	for k, vs := range values {
		if len(vs) > 0 {
			out[k] = vs[0]
		}
	}
	return out
}

// FieldsFromJSON приводит JSON-объект к плоскому набору строк.
// Числа пишутся без экспоненты и лишних нулей, как их отдаёт Telegram.
func FieldsFromJSON(obj map[string]any) (map[string]string, error) {
	out := make(map[string]string, len(obj))
	for k, raw := range obj {
		switch v := raw.(type) {
		case nil:
			continue
		case string:
			out[k] = v
		case json.Number:
			out[k] = v.String()
		case float64:
			out[k] = strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(v)
		default:
			return nil, fmt.Errorf("поле %q: неподдерживаемый тип %T: %w", k, raw, common.ErrAuthenticationFailed)
		}
	}
	return out, nil
}
