// Package admin реализует админ-панель в личных сообщениях бота:
// вход по паролю, сессии и пошаговые действия с аккаунтами.
// models.go описывает состояние диалога с админом.
package admin

import "time"

// AdminState — состояние диалога с админом (конечный автомат).
// Панель работает по шагам: выбор действия → ввод id игрока → ввод значения.
type AdminState struct {
	State     string    // Текущее состояние ("", "awaiting_password", "block_select", ...)
	Data      any       // Данные контекста (выбранный игрок)
	ExpiresAt time.Time // Когда состояние истекает (5 минут)
}

// Возможные состояния админ-диалога
const (
	StateNone             = ""                  // Нет активного состояния
	StateAwaitingPassword = "awaiting_password" // Ждём пароль
	StateSearchQuery      = "search_query"      // Ждём строку поиска
	StateBlockSelect      = "block_select"      // Ждём id для блокировки
	StateUnblockSelect    = "unblock_select"    // Ждём id для разблокировки
	StateBalanceSelect    = "balance_select"    // Ждём id для правки баланса
	StateBalanceValue     = "balance_value"     // Ждём "очки игры"
	StateDeleteSelect     = "delete_select"     // Ждём id для удаления
	StateDeleteConfirm    = "delete_confirm"    // Ждём подтверждение удаления
	StatePlaysSelect      = "plays_select"      // Ждём id для истории игр
)

// Кнопки клавиатуры панели
const (
	ButtonUsers     = "👥 Игроки"
	ButtonSearch    = "🔍 Поиск"
	ButtonBlock     = "⛔ Заблокировать"
	ButtonUnblock   = "✅ Разблокировать"
	ButtonBalance   = "💰 Изменить баланс"
	ButtonDelete    = "🗑 Удалить"
	ButtonPlays     = "📜 Игры игрока"
	ButtonTodayRank = "📊 Рейтинг дня"
	ButtonSweep     = "🔄 Сбросить лимиты"
	ButtonStats     = "📈 Статистика"
	ButtonLogout    = "🚪 Выйти"
)

// StateTTL — сколько живёт шаг диалога.
const StateTTL = 5 * time.Minute

// SessionTTL — сколько живёт сессия после ввода пароля.
const SessionTTL = 24 * time.Hour

// MaxFailedAttempts — сколько неудачных попыток допускается за LockoutWindow.
const (
	MaxFailedAttempts = 3
	LockoutWindow     = time.Hour
)
