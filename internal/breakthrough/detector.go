package breakthrough

import (
	"sort"
	"time"

	"price-high-alerts/internal/highs"
)

// HighLookup is the read side of the highs cache the detector needs.
type HighLookup interface {
	Query(symbol string, tf highs.Timeframe) (highs.Record, bool)
	Records(tf highs.Timeframe) []highs.Record
}

var _ HighLookup = (*highs.Store)(nil)

// Result is one evaluation of a live price against a cached high. It is never stored.
type Result struct {
	Symbol          string          `json:"symbol"`
	Timeframe       highs.Timeframe `json:"timeframe"`
	CurrentPrice    float64         `json:"currentPrice"`
	TimeframeHigh   float64         `json:"timeframeHigh"`
	HighTimestamp   int64           `json:"highTimestamp"`
	IsBreakthrough  bool            `json:"isBreakthrough"`
	BreakAmount     float64         `json:"breakAmount"`
	BreakPercentage float64         `json:"breakPercentage"`
}

// HighTime returns HighTimestamp as a time.
func (r Result) HighTime() time.Time {
	return time.UnixMilli(r.HighTimestamp).UTC()
}

// IsBreakthrough fires when price is above high and the previous observation
// was not. A nil lastCheck counts as "not yet above".
func IsBreakthrough(price, high float64, lastCheck *float64) bool {
	return price > high && (lastCheck == nil || *lastCheck <= high)
}

// Detector evaluates live prices against the cached highs. It holds no state;
// callers persist LastCheckPrice after every evaluation.
type Detector struct {
	highs HighLookup
}

// NewDetector binds a detector to a cache.
func NewDetector(lookup HighLookup) *Detector {
	return &Detector{highs: lookup}
}

// Evaluate computes the full result. ok is false only when nothing is cached.
func (d *Detector) Evaluate(symbol string, price float64, tf highs.Timeframe, lastCheck *float64) (Result, bool) {
	record, ok := d.highs.Query(symbol, tf)
	if !ok {
		return Result{}, false
	}
	result := newResult(record, price)
	result.IsBreakthrough = IsBreakthrough(price, record.HighPrice, lastCheck)
	return result, true
}

// Check returns a result only when a breakthrough should fire now.
func (d *Detector) Check(symbol string, price float64, tf highs.Timeframe, lastCheck *float64) *Result {
	result, ok := d.Evaluate(symbol, price, tf, lastCheck)
	if !ok || !result.IsBreakthrough {
		return nil
	}
	return &result
}

// CheckMulti scans every cached symbol of tf and returns those trading above
// their high by at least minBreakPct, largest break first. Prices missing from
// prices fall back to the cached current price.
func (d *Detector) CheckMulti(tf highs.Timeframe, minBreakPct float64, prices map[string]float64) []Result {
	var out []Result
	for _, record := range d.highs.Records(tf) {
		price, ok := prices[record.Symbol]
		if !ok {
			price = record.CurrentPrice
		}
		if price <= record.HighPrice {
			continue
		}
		result := newResult(record, price)
		result.IsBreakthrough = true
		out = append(out, result)
	}
	out = AboveThreshold(out, minBreakPct)
	SortByBreak(out)
	return out
}

// AboveThreshold keeps results whose break percentage is at least minPct.
func AboveThreshold(results []Result, minPct float64) []Result {
	out := results[:0:0]
	for _, r := range results {
		if r.BreakPercentage >= minPct {
			out = append(out, r)
		}
	}
	return out
}

// SortByBreak orders results by descending break percentage.
func SortByBreak(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].BreakPercentage != results[j].BreakPercentage {
			return results[i].BreakPercentage > results[j].BreakPercentage
		}
		return results[i].Symbol < results[j].Symbol
	})
}

func newResult(record highs.Record, price float64) Result {
	amount := price - record.HighPrice
	var pct float64
	if record.HighPrice > 0 {
		pct = amount / record.HighPrice * 100
	}
	return Result{
		Symbol:          record.Symbol,
		Timeframe:       record.Timeframe,
		CurrentPrice:    price,
		TimeframeHigh:   record.HighPrice,
		HighTimestamp:   record.HighTimestamp,
		BreakAmount:     amount,
		BreakPercentage: pct,
	}
}
