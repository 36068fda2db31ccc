// Package common — errors.go определяет ошибки, общие для всех модулей.
// Обработчики (бот, веб) различают их через errors.Is и показывают
// пользователю понятное сообщение, см. UserMessage.
package common

import "errors"

// Ошибки движка аккаунтов и игр
var (
	// ErrAuthenticationFailed — подпись Telegram не сошлась или данные устарели
	ErrAuthenticationFailed = errors.New("не удалось подтвердить вход через Telegram")
	// ErrAccountNotFound — аккаунт не найден
	ErrAccountNotFound = errors.New("аккаунт не найден")
	// ErrBlocked — аккаунт заблокирован модератором
	ErrBlocked = errors.New("аккаунт заблокирован")
	// ErrQuotaExceeded — дневной лимит игр исчерпан
	ErrQuotaExceeded = errors.New("лимит игр на сегодня исчерпан")
	// ErrConflict — телефон уже привязан к другому аккаунту
	ErrConflict = errors.New("этот телефон уже привязан к другому аккаунту")
	// ErrStoreUnavailable — хранилище недоступно, операцию можно повторить
	ErrStoreUnavailable = errors.New("хранилище временно недоступно")
)

// Ошибки привязки и рефералов
var (
	// ErrInvalidPhone — телефон не похож на номер
	ErrInvalidPhone = errors.New("некорректный номер телефона")
	// ErrInviterNotFound — пригласивший не зарегистрирован
	ErrInviterNotFound = errors.New("пригласивший пользователь не найден")
)

// Ошибки админки
var (
	// ErrNotAdmin — пользователь не является администратором
	ErrNotAdmin = errors.New("у вас нет прав администратора")
	// ErrWrongPassword — неверный пароль
	ErrWrongPassword = errors.New("неверный пароль")
	// ErrTooManyAttempts — слишком много неудачных попыток входа
	ErrTooManyAttempts = errors.New("слишком много попыток, подождите 1 час")
	// ErrSessionExpired — сессия истекла
	ErrSessionExpired = errors.New("сессия истекла, авторизуйтесь заново")
)

// UserMessage возвращает текст для пользователя по ошибке движка.
// Для неизвестных ошибок общий текст без деталей.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuthenticationFailed):
		return "🔐 Не удалось подтвердить вход через Telegram. Попробуйте ещё раз."
	case errors.Is(err, ErrAccountNotFound):
		return "🤷 Аккаунт не найден. Сначала привяжите телефон: /bind"
	case errors.Is(err, ErrBlocked):
		return "⛔ Ваш аккаунт заблокирован."
	case errors.Is(err, ErrQuotaExceeded):
		return "⏳ На сегодня игры закончились. Возвращайтесь завтра!"
	case errors.Is(err, ErrConflict):
		return "📵 Этот номер уже привязан к другому аккаунту."
	case errors.Is(err, ErrInvalidPhone):
		return "📵 Некорректный номер телефона."
	case errors.Is(err, ErrInviterNotFound):
		return "🤷 Пригласивший пользователь не найден."
	case errors.Is(err, ErrStoreUnavailable):
		return "🛠 Сервис временно недоступен, попробуйте чуть позже."
	case errors.Is(err, ErrNotAdmin), errors.Is(err, ErrWrongPassword),
		errors.Is(err, ErrTooManyAttempts), errors.Is(err, ErrSessionExpired):
		return "❌ " + err.Error()
	default:
		return "❌ Что-то пошло не так, попробуйте позже."
	}
}
