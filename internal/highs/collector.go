package highs

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"price-high-alerts/internal/fetcher"
	"price-high-alerts/internal/metrics"
)

const (
	defaultGroupSize = 8
	defaultPageLimit = 1000
)

// CollectorOptions tunes pacing of the collection pipeline.
type CollectorOptions struct {
	GroupSize      int
	GroupDelay     time.Duration
	PageDelay      time.Duration
	TimeframeDelay time.Duration
	PageLimit      int
	Retries        int
	RetryDelay     time.Duration
	Timeframes     []Timeframe
	Now            func() time.Time
}

// CollectResult reports one collection run. Records holds only succeeded symbols.
type CollectResult struct {
	Records   []Record
	Succeeded []string
	Failed    []string
	Duration  time.Duration
}

// Collector walks candle history and reduces it to high-water marks.
type Collector struct {
	source  fetcher.CandleSource
	opts    CollectorOptions
	metrics *metrics.Recorder
	logger  zerolog.Logger
}

// NewCollector constructs a collector, applying defaults for unset options.
func NewCollector(source fetcher.CandleSource, opts CollectorOptions, recorder *metrics.Recorder, logger zerolog.Logger) *Collector {
	if opts.GroupSize <= 0 {
		opts.GroupSize = defaultGroupSize
	}
	if opts.PageLimit <= 0 {
		opts.PageLimit = defaultPageLimit
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if len(opts.Timeframes) == 0 {
		opts.Timeframes = Timeframes()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Collector{
		source:  source,
		opts:    opts,
		metrics: recorder,
		logger:  logger.With().Str("component", "collector").Logger(),
	}
}

type symbolOutcome struct {
	symbol  string
	records []Record
	err     error
}

// Collect processes symbols in concurrent groups. A failing symbol is listed
// in Failed and never cancels its siblings. Cancelling ctx stops new groups
// from starting while the group in flight runs to completion. Callers must
// treat the result of a cancelled run as incomplete.
func (c *Collector) Collect(ctx context.Context, symbols []string) CollectResult {
	started := time.Now()
	var result CollectResult

	for offset := 0; offset < len(symbols); offset += c.opts.GroupSize {
		if ctx.Err() != nil {
			c.logger.Warn().Int("remaining", len(symbols)-offset).Msg("collection cancelled, skipping remaining groups")
			break
		}
		if offset > 0 {
			if err := sleepCtx(ctx, c.opts.GroupDelay); err != nil {
				break
			}
		}

		end := offset + c.opts.GroupSize
		if end > len(symbols) {
			end = len(symbols)
		}
		for _, outcome := range c.collectGroup(ctx, symbols[offset:end]) {
			if outcome.err != nil {
				c.logger.Error().Err(outcome.err).Str("symbol", outcome.symbol).Msg("symbol collection failed")
				c.metrics.SymbolCollected("failed")
				result.Failed = append(result.Failed, outcome.symbol)
				continue
			}
			c.metrics.SymbolCollected("success")
			result.Succeeded = append(result.Succeeded, outcome.symbol)
			result.Records = append(result.Records, outcome.records...)
		}

		c.logger.Debug().
			Int("done", end).
			Int("total", len(symbols)).
			Int("failed", len(result.Failed)).
			Msg("collection group finished")
	}

	result.Duration = time.Since(started)
	return result
}

func (c *Collector) collectGroup(ctx context.Context, group []string) []symbolOutcome {
	outcomes := make([]symbolOutcome, len(group))
	// Plain errgroup without WithContext: one failure must not cancel siblings.
	// Members ignore cancellation so a started group always finishes.
	inflight := context.WithoutCancel(ctx)
	var g errgroup.Group
	for i, symbol := range group {
		g.Go(func() error {
			records, err := c.CollectSymbol(inflight, symbol)
			outcomes[i] = symbolOutcome{symbol: symbol, records: records, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// CollectSymbol builds the records of every timeframe for one symbol.
// It is all-or-nothing: any failing timeframe fails the symbol.
func (c *Collector) CollectSymbol(ctx context.Context, symbol string) ([]Record, error) {
	var live float64
	err := c.withRetry(ctx, func() error {
		var err error
		live, err = c.source.GetLivePrice(ctx, symbol)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetch live price: %w", err)
	}

	records := make([]Record, 0, len(c.opts.Timeframes))
	for i, tf := range c.opts.Timeframes {
		if i > 0 {
			if err := sleepCtx(ctx, c.opts.TimeframeDelay); err != nil {
				return nil, err
			}
		}
		now := c.opts.Now()
		candles, err := c.fetchWindow(ctx, symbol, tf, tf.StartTime(now), now)
		if err != nil {
			return nil, fmt.Errorf("collect %s: %w", tf, err)
		}
		records = append(records, BuildRecord(symbol, tf, live, candles, now))
	}
	return records, nil
}

func (c *Collector) fetchWindow(ctx context.Context, symbol string, tf Timeframe, start, end time.Time) ([]fetcher.Candle, error) {
	interval := tf.Spec().Interval
	var all []fetcher.Candle
	cursor := start
	for pages := 0; !cursor.After(end); pages++ {
		if pages > 0 {
			if err := sleepCtx(ctx, c.opts.PageDelay); err != nil {
				return nil, err
			}
		}

		var page []fetcher.Candle
		err := c.withRetry(ctx, func() error {
			var err error
			page, err = c.source.GetCandles(ctx, symbol, interval, cursor, end, c.opts.PageLimit)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("fetch candles page %d: %w", pages+1, err)
		}
		c.metrics.CandlePage(string(tf))
		if len(page) == 0 {
			break
		}
		all = append(all, page...)
		if len(page) < c.opts.PageLimit {
			break
		}

		next := page[len(page)-1].CloseTime.Add(time.Millisecond)
		if !next.After(cursor) {
			return nil, fmt.Errorf("candle cursor did not advance past %s", cursor.UTC().Format(time.RFC3339))
		}
		cursor = next
	}
	return all, nil
}

func (c *Collector) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt <= c.opts.Retries; attempt++ {
		if attempt > 0 {
			if serr := sleepCtx(ctx, c.opts.RetryDelay); serr != nil {
				return err
			}
			c.logger.Debug().Err(err).Int("attempt", attempt).Msg("retrying request")
		}
		if err = fn(); err == nil {
			return nil
		}
	}
	return err
}

// BuildRecord reduces the live price and the candle highs to one record.
// The live price seeds the maximum, so HighPrice >= CurrentPrice always holds.
func BuildRecord(symbol string, tf Timeframe, live float64, candles []fetcher.Candle, collectedAt time.Time) Record {
	high := live
	highAt := collectedAt
	for _, candle := range candles {
		if candle.High > high {
			high = candle.High
			highAt = candle.CloseTime
		}
	}
	return NewRecord(symbol, tf, live, high, highAt, collectedAt)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
