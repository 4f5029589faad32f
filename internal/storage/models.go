package storage

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"price-high-alerts/internal/breakthrough"
)

// BreakthroughEvent captures an emitted breakthrough for auditing.
type BreakthroughEvent struct {
	ID          uuid.UUID       `json:"id"`
	AlertID     int64           `json:"alert_id"`
	AlertName   string          `json:"alert_name"`
	Symbol      string          `json:"symbol"`
	Timeframe   string          `json:"timeframe"`
	Mode        string          `json:"mode"`
	Price       decimal.Decimal `json:"price"`
	HighPrice   decimal.Decimal `json:"high_price"`
	HighAt      time.Time       `json:"high_at"`
	BreakPct    decimal.Decimal `json:"break_pct"`
	Channels    []string        `json:"channels"`
	TriggeredAt time.Time       `json:"triggered_at"`
}

// NewBreakthroughEvent converts a detector result into an audit row.
func NewBreakthroughEvent(alert breakthrough.WatchState, result breakthrough.Result, channels []string, at time.Time) BreakthroughEvent {
	return BreakthroughEvent{
		ID:          uuid.New(),
		AlertID:     alert.ID,
		AlertName:   alert.Name,
		Symbol:      result.Symbol,
		Timeframe:   string(result.Timeframe),
		Mode:        alert.Mode(),
		Price:       decimal.NewFromFloat(result.CurrentPrice),
		HighPrice:   decimal.NewFromFloat(result.TimeframeHigh),
		HighAt:      result.HighTime(),
		BreakPct:    decimal.NewFromFloat(result.BreakPercentage).Round(4),
		Channels:    channels,
		TriggeredAt: at.UTC(),
	}
}
