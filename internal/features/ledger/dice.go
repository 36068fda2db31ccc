// Package ledger — игра в кости и журнал игр.
//
// Одна игра: игрок и бот бросают по кубику, больший выигрывает.
// Победа +10 очков, поражение −5, ничья 0. Запись в журнал и изменение
// баланса выполняются одной транзакцией.
package ledger

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"

	"serotonyl.ru/dice-bot/internal/common"
	"serotonyl.ru/dice-bot/internal/model"
)

// Очки за исход
const (
	WinPoints  int64 = 10
	LossPoints int64 = -5
	DrawPoints int64 = 0
)

// DieFaces — число граней кубика.
const DieFaces = 6

// Roller выдаёт значение кубика от 1 до 6.
type Roller interface {
	Roll() int
}

// CryptoRoller бросает кубик через crypto/rand.
type CryptoRoller struct{}

func (CryptoRoller) Roll() int {
	n, err := rand.Int(rand.Reader, big.NewInt(DieFaces))
	if err != nil {
		// crypto/rand на поддерживаемых ОС не возвращает ошибок
		panic(fmt.Sprintf("crypto/rand: %v", err))
	}
	return int(n.Int64()) + 1
}

// SequenceRoller отдаёт заранее заданные значения по кругу.
// Используется в тестах и для воспроизведения игр.
type SequenceRoller struct {
	mu     sync.Mutex
	values []int
	pos    int
}

// NewSequenceRoller создаёт ролл с фиксированной последовательностью.
func NewSequenceRoller(values ...int) *SequenceRoller {
	return &SequenceRoller{values: values}
}

func (r *SequenceRoller) Roll() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.values) == 0 {
		return 1
	}
	v := r.values[r.pos%len(r.values)]
	r.pos++
	return v
}

// Judge сравнивает броски и возвращает исход и изменение очков.
func Judge(playerRoll, houseRoll int) (model.Outcome, int64) {
	switch {
	case playerRoll > houseRoll:
		return model.OutcomeWin, WinPoints
	case playerRoll < houseRoll:
		return model.OutcomeLoss, LossPoints
	default:
		return model.OutcomeDraw, DrawPoints
	}
}

// ValidRoll — значение в пределах кубика.
func ValidRoll(v int) bool {
	return v >= 1 && v <= DieFaces
}

// OutcomeMessage — текст результата для игрока.
func OutcomeMessage(playerRoll, houseRoll int, outcome model.Outcome, delta int64) string {
	head := fmt.Sprintf("🎲 Вы: %d, бот: %d.", playerRoll, houseRoll)
	switch outcome {
	case model.OutcomeWin:
		return fmt.Sprintf("%s 🎉 Победа! %s", head, common.FormatPointsDelta(delta))
	case model.OutcomeLoss:
		return fmt.Sprintf("%s 😔 Поражение. %s", head, common.FormatPointsDelta(delta))
	default:
		return fmt.Sprintf("%s 🤝 Ничья, очки не изменились.", head)
	}
}

// OutcomeTitle — короткое название исхода для списков.
func OutcomeTitle(o model.Outcome) string {
	switch o {
	case model.OutcomeWin:
		return "победа"
	case model.OutcomeLoss:
		return "поражение"
	default:
		return "ничья"
	}
}
