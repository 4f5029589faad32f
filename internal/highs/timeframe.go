package highs

import (
	"fmt"
	"strings"
	"time"
)

// Timeframe is one of the fixed look-back windows.
type Timeframe string

const (
	Week     Timeframe = "1w"
	Month    Timeframe = "1m"
	HalfYear Timeframe = "6m"
	Year     Timeframe = "1y"
	AllTime  Timeframe = "all"
)

// FuturesLaunch anchors the all-time window: the first USDⓈ-M perpetual listing.
var FuturesLaunch = time.Date(2019, time.September, 8, 0, 0, 0, 0, time.UTC)

// TimeframeSpec maps a timeframe to its candle granularity and window.
// Window is zero for AllTime.
type TimeframeSpec struct {
	Interval    string
	Window      time.Duration
	DisplayName string
}

const day = 24 * time.Hour

var timeframeSpecs = map[Timeframe]TimeframeSpec{
	Week:     {Interval: "1h", Window: 7 * day, DisplayName: "1 Week"},
	Month:    {Interval: "4h", Window: 30 * day, DisplayName: "1 Month"},
	HalfYear: {Interval: "1d", Window: 180 * day, DisplayName: "6 Months"},
	Year:     {Interval: "1d", Window: 365 * day, DisplayName: "1 Year"},
	AllTime:  {Interval: "1d", DisplayName: "All Time"},
}

// Timeframes returns every timeframe in collection order.
func Timeframes() []Timeframe {
	return []Timeframe{Week, Month, HalfYear, Year, AllTime}
}

// ParseTimeframe accepts a timeframe code, case-insensitively.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(strings.ToLower(strings.TrimSpace(s)))
	if !tf.Valid() {
		return "", fmt.Errorf("unknown timeframe %q (want one of 1w, 1m, 6m, 1y, all)", s)
	}
	return tf, nil
}

// Valid reports whether tf is a known timeframe.
func (tf Timeframe) Valid() bool {
	_, ok := timeframeSpecs[tf]
	return ok
}

// Spec returns the configuration tuple for tf.
func (tf Timeframe) Spec() TimeframeSpec {
	return timeframeSpecs[tf]
}

// DisplayName is the human-readable label used in notifications.
func (tf Timeframe) DisplayName() string {
	if spec, ok := timeframeSpecs[tf]; ok {
		return spec.DisplayName
	}
	return string(tf)
}

// StartTime is the beginning of the window ending at now.
func (tf Timeframe) StartTime(now time.Time) time.Time {
	spec := tf.Spec()
	if spec.Window <= 0 {
		return FuturesLaunch
	}
	return now.Add(-spec.Window)
}

func (tf Timeframe) String() string {
	return string(tf)
}
