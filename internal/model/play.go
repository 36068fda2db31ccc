package model

import "time"

// Outcome — результат одной игры с точки зрения игрока.
type Outcome string

const (
	OutcomeWin  Outcome = "win"
	OutcomeLoss Outcome = "loss"
	OutcomeDraw Outcome = "draw"
)

// Valid проверяет, что значение из допустимого набора.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeWin, OutcomeLoss, OutcomeDraw:
		return true
	}
	return false
}

// PlayRecord — неизменяемая запись об игре.
type PlayRecord struct {
	ID          int64     `db:"id" json:"id"`
	AccountID   int64     `db:"account_id" json:"accountId"`
	PlayerRoll  int       `db:"player_roll" json:"playerRoll"`
	HouseRoll   int       `db:"house_roll" json:"houseRoll"`
	Outcome     Outcome   `db:"outcome" json:"outcome"`
	PointsDelta int64     `db:"points_delta" json:"pointsDelta"`
	OccurredAt  time.Time `db:"occurred_at" json:"occurredAt"`
}

// DailyRankEntry — строка рейтинга среди тех, кто играл сегодня.
type DailyRankEntry struct {
	AccountID   int64   `json:"accountId"`
	DisplayName *string `json:"displayName,omitempty"`
	Points      int64   `json:"points"`
	PlaysToday  int     `json:"playsToday"`
}

// Name — имя для показа.
func (e *DailyRankEntry) Name() string {
	if e.DisplayName != nil && *e.DisplayName != "" {
		return *e.DisplayName
	}
	return "Аноним"
}
