package breakthrough

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"price-high-alerts/internal/highs"
)

// FormatPrice renders a price with precision scaled to its magnitude.
func FormatPrice(p float64) string {
	d := decimal.NewFromFloat(p)
	abs := d.Abs()
	switch {
	case abs.GreaterThanOrEqual(decimal.NewFromInt(1000)):
		return d.StringFixed(2)
	case abs.GreaterThanOrEqual(decimal.NewFromInt(1)):
		return d.StringFixed(4)
	default:
		return d.Round(8).String()
	}
}

// FormatPercent renders a signed percentage with two decimals.
func FormatPercent(p float64) string {
	d := decimal.NewFromFloat(p)
	if d.IsPositive() {
		return "+" + d.StringFixed(2) + "%"
	}
	return d.StringFixed(2) + "%"
}

// FormatResult is the one-alert message body.
func FormatResult(name string, r Result) string {
	b := strings.Builder{}
	b.WriteString(fmt.Sprintf("[Breakthrough] %s broke its %s high\n", r.Symbol, r.Timeframe.DisplayName()))
	if name != "" {
		b.WriteString(fmt.Sprintf("Alert: %s\n", name))
	}
	b.WriteString(fmt.Sprintf("Price: %s\n", FormatPrice(r.CurrentPrice)))
	b.WriteString(fmt.Sprintf("Previous high: %s (%s UTC)\n", FormatPrice(r.TimeframeHigh), r.HighTime().Format(time.DateTime)))
	b.WriteString(fmt.Sprintf("Break: %s (%s)\n", FormatPrice(r.BreakAmount), FormatPercent(r.BreakPercentage)))
	return b.String()
}

// FormatMessage renders a multi-symbol report, truncated to maxRows rows
// when maxRows > 0.
func FormatMessage(name string, tf highs.Timeframe, results []Result, maxRows int) string {
	if len(results) == 1 {
		return FormatResult(name, results[0])
	}
	b := strings.Builder{}
	b.WriteString(fmt.Sprintf("[Breakthrough] %d symbols above their %s high\n", len(results), tf.DisplayName()))
	if name != "" {
		b.WriteString(fmt.Sprintf("Alert: %s\n", name))
	}
	shown := results
	if maxRows > 0 && len(shown) > maxRows {
		shown = shown[:maxRows]
	}
	for i, r := range shown {
		b.WriteString(fmt.Sprintf("%d. %s %s (high %s, %s)\n",
			i+1, r.Symbol, FormatPrice(r.CurrentPrice), FormatPrice(r.TimeframeHigh), FormatPercent(r.BreakPercentage)))
	}
	if hidden := len(results) - len(shown); hidden > 0 {
		b.WriteString(fmt.Sprintf("... and %d more\n", hidden))
	}
	return b.String()
}
