package highs

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"price-high-alerts/internal/fetcher"
)

func newTestCollector(src fetcher.CandleSource, mutate func(*CollectorOptions)) *Collector {
	opts := CollectorOptions{Now: fixedNow}
	if mutate != nil {
		mutate(&opts)
	}
	return NewCollector(src, opts, nil, zerolog.Nop())
}

func TestBuildRecordMonotonicHigh(t *testing.T) {
	closeAt := testNow.Add(-time.Hour)
	cases := []struct {
		name     string
		live     float64
		candles  []fetcher.Candle
		wantHigh float64
		wantAt   time.Time
	}{
		{
			name:     "live price is the max",
			live:     110,
			candles:  []fetcher.Candle{{High: 100, CloseTime: closeAt}, {High: 105, CloseTime: closeAt}},
			wantHigh: 110,
			wantAt:   testNow,
		},
		{
			name:     "candle sets the high",
			live:     80,
			candles:  []fetcher.Candle{{High: 100, CloseTime: closeAt.Add(-time.Hour)}, {High: 120, CloseTime: closeAt}, {High: 90}},
			wantHigh: 120,
			wantAt:   closeAt,
		},
		{
			name:     "equal candle does not displace live price",
			live:     100,
			candles:  []fetcher.Candle{{High: 100, CloseTime: closeAt}},
			wantHigh: 100,
			wantAt:   testNow,
		},
		{
			name:     "no candles",
			live:     42,
			wantHigh: 42,
			wantAt:   testNow,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			record := BuildRecord("BTCUSDT", Week, tc.live, tc.candles, testNow)
			assert.Equal(t, tc.wantHigh, record.HighPrice)
			assert.Equal(t, tc.wantAt.UnixMilli(), record.HighTimestamp)
			assert.GreaterOrEqual(t, record.HighPrice, record.CurrentPrice)
			assert.LessOrEqual(t, record.DistancePercent, 0.0)
			assert.Equal(t, -record.DistancePercent, record.NeededGainPercent)
			for _, c := range tc.candles {
				assert.GreaterOrEqual(t, record.HighPrice, c.High)
			}
		})
	}
}

func TestCollectorPaginatesEveryTimeframe(t *testing.T) {
	src := newFakeSource()
	src.live["BTCUSDT"] = 95
	src.peaks["BTCUSDT"] = peak{at: testNow.Add(-72 * time.Hour), high: 120}

	c := newTestCollector(src, func(o *CollectorOptions) { o.PageLimit = 100 })
	records, err := c.CollectSymbol(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.Len(t, records, 5)

	// 169 hourly candles over seven days with a page ceiling of 100.
	assert.Equal(t, 2, src.calls("BTCUSDT", "1h"))
	assert.Equal(t, 1, src.liveCalls)

	for _, record := range records {
		assert.Equal(t, 120.0, record.HighPrice, record.Timeframe)
		assert.Equal(t, 95.0, record.CurrentPrice)
		assert.InDelta(t, -20.8333, record.DistancePercent, 0.001)
		assert.Equal(t, testNow.UnixMilli(), record.LastUpdated)
	}
}

func TestCollectorWindowExcludesOldPeak(t *testing.T) {
	src := newFakeSource()
	src.live["ETHUSDT"] = 150
	src.peaks["ETHUSDT"] = peak{at: testNow.Add(-100 * 24 * time.Hour), high: 200}

	c := newTestCollector(src, nil)
	records, err := c.CollectSymbol(context.Background(), "ETHUSDT")
	require.NoError(t, err)

	byTF := map[Timeframe]Record{}
	for _, r := range records {
		byTF[r.Timeframe] = r
	}
	assert.Equal(t, 150.0, byTF[Week].HighPrice)
	assert.Equal(t, testNow.UnixMilli(), byTF[Week].HighTimestamp)
	assert.Equal(t, 150.0, byTF[Month].HighPrice)
	assert.Equal(t, 200.0, byTF[HalfYear].HighPrice)
	assert.Equal(t, 200.0, byTF[Year].HighPrice)
	assert.Equal(t, 200.0, byTF[AllTime].HighPrice)
	assert.Zero(t, byTF[Week].DistancePercent)
}

func TestCollectorIsolatesFailures(t *testing.T) {
	src := newFakeSource()
	src.live["BTCUSDT"] = 95
	src.live["BADUSDT"] = 1
	src.live["ETHUSDT"] = 95
	src.fail["BADUSDT"] = true

	c := newTestCollector(src, func(o *CollectorOptions) { o.GroupSize = 2 })
	result := c.Collect(context.Background(), []string{"BTCUSDT", "BADUSDT", "ETHUSDT"})

	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, result.Succeeded)
	assert.Equal(t, []string{"BADUSDT"}, result.Failed)
	assert.Len(t, result.Records, 10)
	for _, r := range result.Records {
		assert.NotEqual(t, "BADUSDT", r.Symbol)
	}
}

func TestCollectorMissingLivePriceFailsSymbol(t *testing.T) {
	src := newFakeSource()
	c := newTestCollector(src, nil)

	result := c.Collect(context.Background(), []string{"NOPEUSDT"})
	assert.Empty(t, result.Records)
	assert.Equal(t, []string{"NOPEUSDT"}, result.Failed)
}

func TestCollectorRetries(t *testing.T) {
	src := newFakeSource()
	src.live["BTCUSDT"] = 95
	src.flakyLive = 2

	noRetry := newTestCollector(src, nil)
	_, err := noRetry.CollectSymbol(context.Background(), "BTCUSDT")
	require.Error(t, err)

	src.flakyLive = 2
	withRetry := newTestCollector(src, func(o *CollectorOptions) { o.Retries = 2 })
	records, err := withRetry.CollectSymbol(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Len(t, records, 5)
}

func TestCollectorStopsOnCancelledContext(t *testing.T) {
	src := newFakeSource()
	src.live["BTCUSDT"] = 95

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := newTestCollector(src, nil)
	result := c.Collect(ctx, []string{"BTCUSDT"})
	assert.Empty(t, result.Succeeded)
	assert.Empty(t, result.Records)
}

func TestCollectorFinishesInFlightGroupAfterCancel(t *testing.T) {
	src := newFakeSource()
	src.live["AAAUSDT"] = 1
	src.live["BBBUSDT"] = 2
	src.live["CCCUSDT"] = 3

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src.onLive = func(string) { cancel() }

	c := newTestCollector(src, func(o *CollectorOptions) { o.GroupSize = 2 })
	result := c.Collect(ctx, []string{"AAAUSDT", "BBBUSDT", "CCCUSDT"})
	assert.ElementsMatch(t, []string{"AAAUSDT", "BBBUSDT"}, result.Succeeded)
	assert.Empty(t, result.Failed)
	assert.Len(t, result.Records, 10)
	assert.Zero(t, src.calls("CCCUSDT", "1d"))
}
