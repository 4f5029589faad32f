package app

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"price-high-alerts/internal/highs"
)

// Export writes a timeframe ranking as CSV and/or a PNG bar chart.
func (a *App) Export(_ context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxRows = a.Config.ResolveMaxRows(opts.MaxRows)

	store, err := a.loadStore()
	if err != nil {
		return err
	}

	entries := store.Rank(opts.Timeframe, opts.MaxRows)
	if len(entries) == 0 {
		a.Logger.Info().Str("timeframe", string(opts.Timeframe)).Msg("no records to export")
		return nil
	}
	a.Logger.Info().Str("timeframe", string(opts.Timeframe)).Int("exported", len(entries)).Msg("exporting ranking")

	if opts.CSVPath != "" {
		if err := writeRankingCSV(opts.CSVPath, opts.Timeframe, entries); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		bars := entries
		if limit := a.Config.Export.ChartBars; limit > 0 && len(bars) > limit {
			bars = bars[:limit]
		}
		if err := writeRankingPNG(opts.PNGPath, opts.Timeframe, bars); err != nil {
			return err
		}
	}

	return nil
}

func writeRankingCSV(path string, tf highs.Timeframe, entries []highs.RankingEntry) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"rank", "symbol", "timeframe", "current_price", "high_price", "high_at", "distance_pct", "needed_gain_pct"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for i, e := range entries {
		record := []string{
			strconv.Itoa(i + 1),
			e.Symbol,
			string(tf),
			strconv.FormatFloat(e.CurrentPrice, 'f', -1, 64),
			strconv.FormatFloat(e.HighPrice, 'f', -1, 64),
			e.HighTime().Format(time.RFC3339),
			strconv.FormatFloat(e.DistancePercent, 'f', 4, 64),
			strconv.FormatFloat(e.NeededGainPercent, 'f', 4, 64),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

// writeRankingPNG draws one bar per symbol. Bar height is the gain still
// needed to reach the high, so symbols at or above it render as zero-height.
func writeRankingPNG(path string, tf highs.Timeframe, entries []highs.RankingEntry) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	bars := make([]chart.Value, 0, len(entries))
	for _, e := range entries {
		value := e.NeededGainPercent
		style := chart.Style{FillColor: drawing.ColorFromHex("4a90d9"), StrokeColor: drawing.ColorFromHex("2c5d8f")}
		if e.DistancePercent > 0 {
			value = 0
			style = chart.Style{FillColor: drawing.ColorFromHex("d9534f"), StrokeColor: drawing.ColorFromHex("8f2c2c")}
		}
		bars = append(bars, chart.Value{Label: e.Symbol, Value: value, Style: style})
	}

	graph := chart.BarChart{
		Title:    "Gain needed to reach " + tf.DisplayName() + " high (%)",
		Width:    1280,
		Height:   720,
		BarWidth: barWidth(len(bars)),
		Background: chart.Style{
			Padding: chart.Box{Top: 60, Left: 20, Right: 20, Bottom: 20},
		},
		XAxis: chart.Style{TextRotationDegrees: 90},
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.1f%%")
			},
		},
		Bars: bars,
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func barWidth(n int) int {
	if n <= 0 {
		return 40
	}
	w := 1100 / n
	switch {
	case w > 60:
		return 60
	case w < 8:
		return 8
	default:
		return w
	}
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
