package highs

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rankingFixture(t *testing.T) *Store {
	t.Helper()
	store := newTestStore(t, fixedNow)
	store.Replace([]Record{
		testRecord("AAAUSDT", Week, 95, 100),  // -5
		testRecord("BBBUSDT", Week, 100, 100), // 0
		testRecord("CCCUSDT", Week, 99, 100),  // -1
		testRecord("DDDUSDT", Week, 103, 100), // +3
		testRecord("EEEUSDT", Week, 90, 100),  // -10
		testRecord("AAAUSDT", Month, 50, 100),
	})
	return store
}

func symbolsOf(entries []RankingEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Symbol)
	}
	return out
}

func TestRankOrdersByAbsoluteDistance(t *testing.T) {
	store := rankingFixture(t)

	all := store.Rank(Week, 0)
	assert.Equal(t, []string{"BBBUSDT", "CCCUSDT", "DDDUSDT", "AAAUSDT", "EEEUSDT"}, symbolsOf(all))
	for i := 1; i < len(all); i++ {
		assert.LessOrEqual(t, math.Abs(all[i-1].DistancePercent), math.Abs(all[i].DistancePercent))
	}

	assert.Len(t, store.Rank(Week, 3), 3)
	assert.Len(t, store.Rank(Week, 100), 5)
	assert.Len(t, store.Rank(Month, 10), 1)
	assert.Empty(t, store.Rank(Year, 10))
}

func TestRankFurthest(t *testing.T) {
	store := rankingFixture(t)
	assert.Equal(t, []string{"EEEUSDT", "AAAUSDT"}, symbolsOf(store.RankFurthest(Week, 2)))
}

func TestAboveHigh(t *testing.T) {
	store := rankingFixture(t)
	above := store.AboveHigh(Week)
	require.Len(t, above, 1)
	assert.Equal(t, "DDDUSDT", above[0].Symbol)
	assert.InDelta(t, 3.0, above[0].DistancePercent, 1e-9)
	assert.Zero(t, above[0].NeededGainPercent)
}
