package breakthrough

import (
	"time"

	"price-high-alerts/internal/highs"
)

// WatchState is the per-alert configuration and the state used to suppress repeats.
type WatchState struct {
	ID                 int64           `json:"id"`
	Name               string          `json:"name"`
	Symbol             string          `json:"symbol,omitempty"`
	Timeframe          highs.Timeframe `json:"timeframe"`
	WatchAllSymbols    bool            `json:"watchAllSymbols"`
	MinBreakPercentage float64         `json:"minBreakPercentage"`
	LastCheckPrice     *float64        `json:"lastCheckPrice,omitempty"`
	LastTriggeredTime  *time.Time      `json:"lastTriggeredTime,omitempty"`
	Enabled            bool            `json:"enabled"`
}

// Mode labels the evaluation mode for logs and metrics.
func (w WatchState) Mode() string {
	if w.WatchAllSymbols {
		return "multi"
	}
	return "single"
}

// Cooldown is the minimum gap between two notifications of one alert.
// Shorter look-backs re-alert faster.
func Cooldown(tf highs.Timeframe) time.Duration {
	window := tf.Spec().Window
	switch {
	case window <= 0:
		return 30 * time.Minute
	case window <= 10*time.Minute:
		return time.Minute
	case window <= time.Hour:
		return 5 * time.Minute
	default:
		return 30 * time.Minute
	}
}

// ShouldSkipCheck reports whether the alert is still cooling down at now.
func ShouldSkipCheck(state WatchState, now time.Time) bool {
	if state.LastTriggeredTime == nil {
		return false
	}
	return now.Sub(*state.LastTriggeredTime) < Cooldown(state.Timeframe)
}
