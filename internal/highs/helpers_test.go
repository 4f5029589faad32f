package highs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"price-high-alerts/internal/fetcher"
)

var testNow = time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

type peak struct {
	at   time.Time
	high float64
}

// fakeSource serves a flat candle history at baseHigh with one optional peak per symbol.
type fakeSource struct {
	mu         sync.Mutex
	live       map[string]float64
	peaks      map[string]peak
	baseHigh   float64
	listed     []string
	fail       map[string]bool
	flakyLive  int
	pageCalls  map[string]int
	liveCalls  int
	listCalled int
	onLive     func(symbol string)
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		live:      map[string]float64{},
		peaks:     map[string]peak{},
		baseHigh:  90,
		fail:      map[string]bool{},
		pageCalls: map[string]int{},
	}
}

var _ fetcher.CandleSource = (*fakeSource)(nil)

func intervalStep(interval string) time.Duration {
	switch interval {
	case "1h":
		return time.Hour
	case "4h":
		return 4 * time.Hour
	default:
		return 24 * time.Hour
	}
}

func (f *fakeSource) GetCandles(_ context.Context, symbol, interval string, start, end time.Time, limit int) ([]fetcher.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pageCalls[symbol+"|"+interval]++
	if f.fail[symbol] {
		return nil, errors.New("source unavailable")
	}

	step := intervalStep(interval)
	p, hasPeak := f.peaks[symbol]
	var out []fetcher.Candle
	for t := start; !t.After(end) && len(out) < limit; t = t.Add(step) {
		closeAt := t.Add(step - time.Millisecond)
		high := f.baseHigh
		if hasPeak && !p.at.Before(t) && p.at.Before(t.Add(step)) {
			high = p.high
		}
		out = append(out, fetcher.Candle{
			OpenTime:  t,
			Open:      high - 1,
			High:      high,
			Low:       high - 2,
			Close:     high - 1,
			Volume:    1,
			CloseTime: closeAt,
		})
	}
	return out, nil
}

func (f *fakeSource) GetLivePrice(_ context.Context, symbol string) (float64, error) {
	if f.onLive != nil {
		f.onLive(symbol)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.liveCalls++
	if f.flakyLive > 0 {
		f.flakyLive--
		return 0, errors.New("temporary failure")
	}
	price, ok := f.live[symbol]
	if !ok {
		return 0, fmt.Errorf("%w: %s", fetcher.ErrNoPrice, symbol)
	}
	return price, nil
}

func (f *fakeSource) ListTrackedSymbols(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalled++
	return f.listed, nil
}

func (f *fakeSource) calls(symbol, interval string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pageCalls[symbol+"|"+interval]
}

func testRecord(symbol string, tf Timeframe, current, high float64) Record {
	return NewRecord(symbol, tf, current, high, testNow.Add(-48*time.Hour), testNow)
}
