package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"price-high-alerts/internal/breakthrough"
	"price-high-alerts/internal/highs"
	"price-high-alerts/internal/storage"
)

// errNoSnapshot is returned by read-only commands when no fresh snapshot exists.
var errNoSnapshot = errors.New("no usable snapshot; run `collect` first")

func (a *App) loadStore() (*highs.Store, error) {
	store := highs.NewStore(highs.StoreOptions{
		Path:       a.Config.SnapshotPath(),
		MaxAge:     a.Config.Cache.MaxAge,
		QuoteAsset: a.Config.Binance.QuoteAsset,
	}, a.Logger)
	if !store.Load() {
		return nil, errNoSnapshot
	}
	return store, nil
}

// Rank prints the ranking of one timeframe from the snapshot.
func (a *App) Rank(_ context.Context, opts RankOptions) error {
	store, err := a.loadStore()
	if err != nil {
		return err
	}

	var entries []highs.RankingEntry
	if opts.Furthest {
		entries = store.RankFurthest(opts.Timeframe, opts.Limit)
	} else {
		entries = store.Rank(opts.Timeframe, opts.Limit)
	}
	if len(entries) == 0 {
		fmt.Fprintln(os.Stdout, "no records for timeframe")
		return nil
	}
	return writeRanking(os.Stdout, entries)
}

func writeRanking(out io.Writer, entries []highs.RankingEntry) error {
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "#\tSymbol\tPrice\tHigh\tDistance%\tNeeded%\tHigh At (UTC)")
	for i, e := range entries {
		fmt.Fprintf(writer, "%d\t%s\t%s\t%s\t%.2f\t%.2f\t%s\n",
			i+1,
			e.Symbol,
			breakthrough.FormatPrice(e.CurrentPrice),
			breakthrough.FormatPrice(e.HighPrice),
			e.DistancePercent,
			e.NeededGainPercent,
			e.HighTime().Format(time.RFC3339),
		)
	}
	return writer.Flush()
}

// Query prints the cached high of symbol for the given timeframes.
func (a *App) Query(_ context.Context, symbol string, timeframes []highs.Timeframe) error {
	store, err := a.loadStore()
	if err != nil {
		return err
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Timeframe\tPrice\tHigh\tDistance%\tHigh At (UTC)\tUpdated (UTC)")
	found := 0
	for _, tf := range timeframes {
		record, ok := store.Query(symbol, tf)
		if !ok {
			continue
		}
		found++
		fmt.Fprintf(writer, "%s\t%s\t%s\t%.2f\t%s\t%s\n",
			tf.DisplayName(),
			breakthrough.FormatPrice(record.CurrentPrice),
			breakthrough.FormatPrice(record.HighPrice),
			record.DistancePercent,
			record.HighTime().Format(time.RFC3339),
			record.UpdatedAt().Format(time.RFC3339),
		)
	}
	if found == 0 {
		fmt.Fprintf(os.Stdout, "no cached highs for %s\n", strings.ToUpper(symbol))
		return nil
	}
	return writer.Flush()
}

// Stats prints the snapshot summary.
func (a *App) Stats(_ context.Context) error {
	store, err := a.loadStore()
	if err != nil {
		return err
	}
	timeframes := make([]string, 0, len(highs.Timeframes()))
	for _, tf := range highs.Timeframes() {
		timeframes = append(timeframes, fmt.Sprintf("%s=%d", tf, len(store.Records(tf))))
	}
	fmt.Fprintf(os.Stdout, "snapshot:   %s\n", store.Path())
	fmt.Fprintf(os.Stdout, "saved at:   %s\n", store.SavedAt().UTC().Format(time.RFC3339))
	fmt.Fprintf(os.Stdout, "records:    %d\n", store.Len())
	fmt.Fprintf(os.Stdout, "symbols:    %d\n", len(store.Symbols()))
	fmt.Fprintf(os.Stdout, "timeframes: %s\n", strings.Join(timeframes, " "))
	return nil
}

// Events prints recently recorded breakthroughs.
func (a *App) Events(ctx context.Context, limit int) error {
	if a.Config.Database.DSN == "" {
		return errors.New("database not configured; events are only kept by a running service")
	}
	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return err
	}
	store := storage.NewStore(pool)
	defer store.Close()

	events, err := store.ListRecentEvents(ctx, limit)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Fprintln(os.Stdout, "no events found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tAlert\tMode\tSymbol\tTF\tPrice\tHigh\tBreak%\tChannels")
	for _, e := range events {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.TriggeredAt.UTC().Format(time.RFC3339),
			sanitizeInline(e.AlertName),
			e.Mode,
			e.Symbol,
			e.Timeframe,
			e.Price.String(),
			e.HighPrice.String(),
			e.BreakPct.StringFixed(2),
			strings.Join(e.Channels, ","),
		)
	}
	return writer.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
