package highs

import (
	"math"
	"strings"
	"time"
)

// Record is the high-water mark of one symbol over one timeframe.
// Timestamps are epoch milliseconds so snapshots round-trip exactly.
type Record struct {
	Symbol            string    `json:"symbol"`
	Timeframe         Timeframe `json:"timeframe"`
	CurrentPrice      float64   `json:"currentPrice"`
	HighPrice         float64   `json:"highPrice"`
	HighTimestamp     int64     `json:"highTimestamp"`
	DistancePercent   float64   `json:"distancePercent"`
	NeededGainPercent float64   `json:"neededGainPercent"`
	LastUpdated       int64     `json:"lastUpdated"`
}

// NewRecord derives the distance fields from current and high.
func NewRecord(symbol string, tf Timeframe, current, high float64, highAt, collectedAt time.Time) Record {
	distance := DistancePercent(current, high)
	return Record{
		Symbol:            symbol,
		Timeframe:         tf,
		CurrentPrice:      current,
		HighPrice:         high,
		HighTimestamp:     highAt.UnixMilli(),
		DistancePercent:   distance,
		NeededGainPercent: NeededGainPercent(distance),
		LastUpdated:       collectedAt.UnixMilli(),
	}
}

// DistancePercent is (current - high) / high * 100, or 0 without a usable high.
func DistancePercent(current, high float64) float64 {
	if high <= 0 {
		return 0
	}
	return (current - high) / high * 100
}

// NeededGainPercent is the rise required to reach the high again.
func NeededGainPercent(distance float64) float64 {
	if distance >= 0 {
		return 0
	}
	return math.Abs(distance)
}

// RecordKey formats the cache key "SYMBOL:timeframe".
func RecordKey(symbol string, tf Timeframe) string {
	return symbol + ":" + string(tf)
}

// SplitKey is the inverse of RecordKey.
func SplitKey(key string) (string, Timeframe, bool) {
	idx := strings.LastIndexByte(key, ':')
	if idx <= 0 || idx == len(key)-1 {
		return "", "", false
	}
	return key[:idx], Timeframe(key[idx+1:]), true
}

// Key returns the record's cache key.
func (r Record) Key() string {
	return RecordKey(r.Symbol, r.Timeframe)
}

// HighTime returns HighTimestamp as a time.
func (r Record) HighTime() time.Time {
	return time.UnixMilli(r.HighTimestamp).UTC()
}

// UpdatedAt returns LastUpdated as a time.
func (r Record) UpdatedAt() time.Time {
	return time.UnixMilli(r.LastUpdated).UTC()
}
