package highs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"price-high-alerts/internal/fetcher"
	"price-high-alerts/internal/metrics"
)

// ErrCollectionRunning is returned when a collection is already in progress.
var ErrCollectionRunning = errors.New("highs: collection already running")

// ServiceOptions selects the tracked universe.
type ServiceOptions struct {
	// Symbols overrides the venue universe when non-empty.
	Symbols    []string
	Blacklist  []string
	QuoteAsset string
}

// RecollectResult mirrors the {success, failed} pair reported to callers.
type RecollectResult struct {
	Success []string `json:"success"`
	Failed  []string `json:"failed"`
}

// Stats summarizes the cache.
type Stats struct {
	IsInitialized bool        `json:"isInitialized"`
	CacheSize     int         `json:"cacheSize"`
	Timeframes    []Timeframe `json:"timeframes"`
	SymbolCount   int         `json:"symbolCount"`
	SavedAt       time.Time   `json:"savedAt"`
}

// Service is the query surface over the store plus collection orchestration.
type Service struct {
	store     *Store
	collector *Collector
	source    fetcher.CandleSource
	opts      ServiceOptions
	metrics   *metrics.Recorder
	logger    zerolog.Logger

	collectMu sync.Mutex
}

// NewService wires a store to its collector.
func NewService(store *Store, collector *Collector, source fetcher.CandleSource, opts ServiceOptions, recorder *metrics.Recorder, logger zerolog.Logger) *Service {
	if opts.QuoteAsset == "" {
		opts.QuoteAsset = fetcher.DefaultQuoteAsset
	}
	return &Service{
		store:     store,
		collector: collector,
		source:    source,
		opts:      opts,
		metrics:   recorder,
		logger:    logger.With().Str("component", "highs").Logger(),
	}
}

// Store exposes the underlying cache for read-only consumers.
func (s *Service) Store() *Store {
	return s.store
}

// Initialize loads a fresh snapshot or falls back to a full collection.
func (s *Service) Initialize(ctx context.Context) (CollectResult, error) {
	if s.store.Load() {
		s.reportSize()
		return CollectResult{}, nil
	}
	s.logger.Info().Msg("no usable snapshot, running full collection")
	return s.CollectAll(ctx)
}

// Universe resolves the tracked symbols: configured list or venue listing, minus the blacklist.
func (s *Service) Universe(ctx context.Context) ([]string, error) {
	symbols := s.opts.Symbols
	if len(symbols) == 0 {
		listed, err := s.source.ListTrackedSymbols(ctx)
		if err != nil {
			return nil, fmt.Errorf("list tracked symbols: %w", err)
		}
		symbols = listed
	}
	return fetcher.FilterSymbols(symbols, s.opts.Blacklist, s.opts.QuoteAsset), nil
}

// CollectAll rebuilds the whole table and persists it.
func (s *Service) CollectAll(ctx context.Context) (CollectResult, error) {
	if !s.collectMu.TryLock() {
		return CollectResult{}, ErrCollectionRunning
	}
	defer s.collectMu.Unlock()

	symbols, err := s.Universe(ctx)
	if err != nil {
		return CollectResult{}, err
	}
	s.logger.Info().Int("symbols", len(symbols)).Msg("full collection started")

	result := s.collector.Collect(ctx, symbols)
	if err := ctx.Err(); err != nil {
		s.logger.Warn().Int("succeeded", len(result.Succeeded)).Msg("full collection cancelled, keeping previous table")
		return CollectResult{}, fmt.Errorf("collect highs: %w", err)
	}
	s.store.Replace(result.Records)
	s.persist()
	s.reportSize()
	s.metrics.CollectDuration("full", result.Duration.Seconds())

	s.logger.Info().
		Int("succeeded", len(result.Succeeded)).
		Int("failed", len(result.Failed)).
		Int("records", len(result.Records)).
		Dur("duration", result.Duration).
		Msg("full collection finished")
	return result, nil
}

// RecollectSymbols re-runs collection for symbols and merges the result.
func (s *Service) RecollectSymbols(ctx context.Context, symbols []string) (RecollectResult, error) {
	targets := fetcher.FilterSymbols(symbols, nil, s.opts.QuoteAsset)
	if len(targets) == 0 {
		return RecollectResult{}, fmt.Errorf("recollect: no symbols given")
	}
	if !s.collectMu.TryLock() {
		return RecollectResult{}, ErrCollectionRunning
	}
	defer s.collectMu.Unlock()

	result := s.collector.Collect(ctx, targets)
	if err := ctx.Err(); err != nil {
		s.logger.Warn().Strs("symbols", targets).Msg("recollection cancelled, keeping previous table")
		return RecollectResult{}, fmt.Errorf("recollect highs: %w", err)
	}
	s.store.UpsertMany(result.Records)
	s.persist()
	s.reportSize()
	s.metrics.CollectDuration("partial", result.Duration.Seconds())

	s.logger.Info().
		Strs("succeeded", result.Succeeded).
		Strs("failed", result.Failed).
		Msg("recollection finished")
	return RecollectResult{Success: nonNil(result.Succeeded), Failed: nonNil(result.Failed)}, nil
}

// QueryHistoricalHigh returns the cached record; absence is not an error.
func (s *Service) QueryHistoricalHigh(symbol string, tf Timeframe) (Record, bool) {
	return s.store.Query(symbol, tf)
}

// GetRankingByProximityToHigh ranks tf closest-first.
func (s *Service) GetRankingByProximityToHigh(tf Timeframe, limit int) []RankingEntry {
	return s.store.Rank(tf, limit)
}

// Stats reports the cache shape.
func (s *Service) Stats() Stats {
	return Stats{
		IsInitialized: s.store.Initialized(),
		CacheSize:     s.store.Len(),
		Timeframes:    Timeframes(),
		SymbolCount:   len(s.store.Symbols()),
		SavedAt:       s.store.SavedAt(),
	}
}

func (s *Service) persist() {
	if err := s.store.Persist(); err != nil {
		s.metrics.SnapshotError()
		s.logger.Error().Err(err).Msg("persist snapshot failed")
	}
}

func (s *Service) reportSize() {
	s.metrics.CacheSize(s.store.Len(), len(s.store.Symbols()))
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
