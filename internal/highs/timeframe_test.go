package highs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeframe(t *testing.T) {
	for _, in := range []string{"1w", "1M", " 6m ", "1Y", "ALL"} {
		tf, err := ParseTimeframe(in)
		require.NoError(t, err, in)
		assert.True(t, tf.Valid())
	}
	for _, in := range []string{"", "2w", "1d", "forever"} {
		_, err := ParseTimeframe(in)
		assert.Error(t, err, in)
	}
}

func TestTimeframeStartTime(t *testing.T) {
	assert.Equal(t, testNow.Add(-7*24*time.Hour), Week.StartTime(testNow))
	assert.Equal(t, testNow.Add(-365*24*time.Hour), Year.StartTime(testNow))
	assert.Equal(t, FuturesLaunch, AllTime.StartTime(testNow))
	assert.Equal(t, "4h", Month.Spec().Interval)
	assert.Equal(t, "6 Months", HalfYear.DisplayName())
}

func TestRecordKeyRoundTrip(t *testing.T) {
	symbol, tf, ok := SplitKey(RecordKey("BTCUSDT", AllTime))
	require.True(t, ok)
	assert.Equal(t, "BTCUSDT", symbol)
	assert.Equal(t, AllTime, tf)

	_, _, ok = SplitKey("nocolon")
	assert.False(t, ok)
}
