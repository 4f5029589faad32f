package breakthrough

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"price-high-alerts/internal/highs"
)

var testNow = time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)

func newFixtureStore(records ...highs.Record) *highs.Store {
	store := highs.NewStore(highs.StoreOptions{Now: func() time.Time { return testNow }}, zerolog.Nop())
	store.Replace(records)
	return store
}

func cached(symbol string, tf highs.Timeframe, current, high float64) highs.Record {
	return highs.NewRecord(symbol, tf, current, high, testNow.Add(-24*time.Hour), testNow)
}

func ptr(v float64) *float64 { return &v }

func TestCheckScenarioFreshBreak(t *testing.T) {
	d := NewDetector(newFixtureStore(cached("ABCUSDT", highs.Week, 95, 100)))

	result := d.Check("ABCUSDT", 105, highs.Week, nil)
	require.NotNil(t, result)
	assert.True(t, result.IsBreakthrough)
	assert.Equal(t, 100.0, result.TimeframeHigh)
	assert.InDelta(t, 5.0, result.BreakAmount, 1e-9)
	assert.InDelta(t, 5.0, result.BreakPercentage, 1e-9)
}

func TestCheckScenarioAlreadyAbove(t *testing.T) {
	d := NewDetector(newFixtureStore(cached("ABCUSDT", highs.Week, 95, 100)))

	assert.Nil(t, d.Check("ABCUSDT", 105, highs.Week, ptr(102)))

	result, ok := d.Evaluate("ABCUSDT", 105, highs.Week, ptr(102))
	require.True(t, ok)
	assert.False(t, result.IsBreakthrough)
}

func TestCheckUnknownSymbolIsSilent(t *testing.T) {
	d := NewDetector(newFixtureStore())
	assert.Nil(t, d.Check("NOPEUSDT", 1e9, highs.Week, nil))
	_, ok := d.Evaluate("NOPEUSDT", 1, highs.Week, nil)
	assert.False(t, ok)
}

func TestCheckDedupSequence(t *testing.T) {
	const high = 100.0
	d := NewDetector(newFixtureStore(cached("ABCUSDT", highs.Week, 95, high)))

	prices := []float64{high - 1, high + 1, high + 2, high - 1, high + 3}
	var fired []int
	var last *float64
	for i, p := range prices {
		if d.Check("ABCUSDT", p, highs.Week, last) != nil {
			fired = append(fired, i+1)
		}
		last = ptr(p)
	}
	assert.Equal(t, []int{2, 5}, fired)
}

func TestCheckPriceEqualToHighDoesNotFire(t *testing.T) {
	d := NewDetector(newFixtureStore(cached("ABCUSDT", highs.Week, 95, 100)))
	assert.Nil(t, d.Check("abc", 100, highs.Week, nil))
	assert.NotNil(t, d.Check("abc", 100.5, highs.Week, ptr(100)))
}

func TestCheckMultiThresholdAndOrder(t *testing.T) {
	d := NewDetector(newFixtureStore(
		cached("AAAUSDT", highs.Year, 90, 100),
		cached("BBBUSDT", highs.Year, 90, 100),
		cached("CCCUSDT", highs.Year, 90, 100),
		cached("DDDUSDT", highs.Year, 90, 100),
		cached("EEEUSDT", highs.Week, 90, 100),
	))
	prices := map[string]float64{
		"AAAUSDT": 102,   // exactly 2%
		"BBBUSDT": 101.9, // below threshold
		"CCCUSDT": 110,
		"DDDUSDT": 99,
		"EEEUSDT": 150,
	}

	results := d.CheckMulti(highs.Year, 2, prices)
	require.Len(t, results, 2)
	assert.Equal(t, "CCCUSDT", results[0].Symbol)
	assert.Equal(t, "AAAUSDT", results[1].Symbol)
	for _, r := range results {
		assert.True(t, r.IsBreakthrough)
		assert.Equal(t, highs.Year, r.Timeframe)
	}
}

func TestCheckMultiFallsBackToCachedPrice(t *testing.T) {
	d := NewDetector(newFixtureStore(cached("AAAUSDT", highs.Month, 90, 100)))
	assert.Empty(t, d.CheckMulti(highs.Month, 0, nil))

	store := newFixtureStore()
	store.Upsert(highs.Record{Symbol: "STALEUSDT", Timeframe: highs.Month, CurrentPrice: 120, HighPrice: 100})
	results := NewDetector(store).CheckMulti(highs.Month, 0, map[string]float64{})
	require.Len(t, results, 1)
	assert.InDelta(t, 20.0, results[0].BreakPercentage, 1e-9)
}

func TestCooldown(t *testing.T) {
	for _, tf := range highs.Timeframes() {
		assert.Equal(t, 30*time.Minute, Cooldown(tf), tf)
	}

	triggered := testNow.Add(-10 * time.Minute)
	state := WatchState{Timeframe: highs.Week, LastTriggeredTime: &triggered}
	assert.True(t, ShouldSkipCheck(state, testNow))
	assert.False(t, ShouldSkipCheck(state, testNow.Add(25*time.Minute)))
	assert.False(t, ShouldSkipCheck(WatchState{Timeframe: highs.Week}, testNow))
}

func TestSuppressorReportsOncePerCrossing(t *testing.T) {
	ctx := context.Background()
	s := NewSuppressor(NewMemorySet())
	above := func(pcts map[string]float64) []Result {
		var out []Result
		for symbol, pct := range pcts {
			out = append(out, Result{Symbol: symbol, BreakPercentage: pct, IsBreakthrough: true})
		}
		return out
	}

	first, err := s.Filter(ctx, "alert-1", above(map[string]float64{"AAA": 3, "BBB": 0.5}), 1)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, "AAA", first[0].Symbol)

	// AAA still above: suppressed. BBB crosses the threshold: reported.
	second, err := s.Filter(ctx, "alert-1", above(map[string]float64{"AAA": 4, "BBB": 1.5}), 1)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "BBB", second[0].Symbol)

	// AAA drops below its high, then breaks again.
	_, err = s.Filter(ctx, "alert-1", above(map[string]float64{"BBB": 2}), 1)
	require.NoError(t, err)
	third, err := s.Filter(ctx, "alert-1", above(map[string]float64{"AAA": 2, "BBB": 2}), 1)
	require.NoError(t, err)
	require.Len(t, third, 1)
	assert.Equal(t, "AAA", third[0].Symbol)

	other, err := s.Filter(ctx, "alert-2", above(map[string]float64{"AAA": 2}), 1)
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

func TestFormatMessage(t *testing.T) {
	r := Result{
		Symbol:          "ABCUSDT",
		Timeframe:       highs.Week,
		CurrentPrice:    105,
		TimeframeHigh:   100,
		HighTimestamp:   testNow.UnixMilli(),
		BreakAmount:     5,
		BreakPercentage: 5,
	}
	single := FormatMessage("abc watch", highs.Week, []Result{r}, 0)
	assert.Contains(t, single, "ABCUSDT broke its 1 Week high")
	assert.Contains(t, single, "Price: 105.0000")
	assert.Contains(t, single, "+5.00%")
	assert.Contains(t, single, "Alert: abc watch")

	many := FormatMessage("", highs.AllTime, []Result{r, r, r}, 2)
	assert.Contains(t, many, "3 symbols above their All Time high")
	assert.Contains(t, many, "... and 1 more")

	assert.Equal(t, "0.00001234", FormatPrice(0.00001234))
	assert.Equal(t, "65000.10", FormatPrice(65000.1))
	assert.Equal(t, "-1.50%", FormatPercent(-1.5))
}
