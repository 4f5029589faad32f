package highs

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"price-high-alerts/internal/fetcher"
)

// DefaultMaxAge is the freshness ceiling of a snapshot.
const DefaultMaxAge = 7 * 24 * time.Hour

// StoreOptions configures the cache store.
type StoreOptions struct {
	Path       string
	MaxAge     time.Duration
	QuoteAsset string
	Now        func() time.Time
}

// Store is the in-memory table of records keyed by "SYMBOL:timeframe".
// Memory is authoritative; the snapshot file only serves recovery.
type Store struct {
	opts   StoreOptions
	logger zerolog.Logger

	mu          sync.RWMutex
	records     map[string]Record
	initialized bool
	savedAt     time.Time
}

// NewStore constructs an empty store.
func NewStore(opts StoreOptions, logger zerolog.Logger) *Store {
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultMaxAge
	}
	if opts.QuoteAsset == "" {
		opts.QuoteAsset = fetcher.DefaultQuoteAsset
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		opts:    opts,
		logger:  logger.With().Str("component", "highs_store").Logger(),
		records: make(map[string]Record),
	}
}

// Load replaces the table with the snapshot on disk. It returns false when
// the file is absent, malformed, of another version or older than MaxAge;
// the table is left untouched in that case.
func (s *Store) Load() bool {
	if s.opts.Path == "" {
		return false
	}
	data, err := os.ReadFile(s.opts.Path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn().Err(err).Str("path", s.opts.Path).Msg("read snapshot failed")
		}
		return false
	}
	snap, err := decodeSnapshot(data)
	if err != nil {
		s.logger.Warn().Err(err).Str("path", s.opts.Path).Msg("snapshot rejected")
		return false
	}
	savedAt := time.UnixMilli(snap.Timestamp)
	if age := s.opts.Now().Sub(savedAt); age > s.opts.MaxAge {
		s.logger.Warn().Dur("age", age).Dur("max_age", s.opts.MaxAge).Msg("snapshot stale")
		return false
	}

	records := make(map[string]Record, len(snap.Cache))
	for key, record := range snap.Cache {
		if !record.Timeframe.Valid() || record.Symbol == "" {
			s.logger.Debug().Str("key", key).Msg("skipping invalid snapshot record")
			continue
		}
		records[record.Key()] = record
	}

	s.mu.Lock()
	s.records = records
	s.initialized = true
	s.savedAt = savedAt
	s.mu.Unlock()

	s.logger.Info().
		Int("records", len(records)).
		Time("saved_at", savedAt).
		Msg("snapshot loaded")
	return true
}

// Query looks up one record after symbol normalization.
func (s *Store) Query(symbol string, tf Timeframe) (Record, bool) {
	key := RecordKey(fetcher.NormalizeSymbol(symbol, s.opts.QuoteAsset), tf)
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[key]
	return record, ok
}

// Upsert writes one record in memory.
func (s *Store) Upsert(record Record) {
	s.mu.Lock()
	s.records[record.Key()] = record
	s.mu.Unlock()
}

// UpsertMany merges records, leaving unrelated keys untouched.
func (s *Store) UpsertMany(records []Record) {
	s.mu.Lock()
	for _, record := range records {
		s.records[record.Key()] = record
	}
	s.mu.Unlock()
}

// Replace swaps the whole table, as after a full collection.
func (s *Store) Replace(records []Record) {
	table := make(map[string]Record, len(records))
	for _, record := range records {
		table[record.Key()] = record
	}
	s.mu.Lock()
	s.records = table
	s.initialized = true
	s.mu.Unlock()
}

// Persist rewrites the snapshot file with every record.
func (s *Store) Persist() error {
	if s.opts.Path == "" {
		return fmt.Errorf("persist snapshot: no path configured")
	}
	now := s.opts.Now()

	s.mu.RLock()
	snap := Snapshot{
		Version:   SnapshotVersion,
		Timestamp: now.UnixMilli(),
		Cache:     make(map[string]Record, len(s.records)),
	}
	for key, record := range s.records {
		snap.Cache[key] = record
	}
	s.mu.RUnlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := writeFileAtomic(s.opts.Path, data); err != nil {
		return err
	}

	s.mu.Lock()
	s.savedAt = now
	s.mu.Unlock()
	s.logger.Debug().Int("records", len(snap.Cache)).Str("path", s.opts.Path).Msg("snapshot written")
	return nil
}

// Records returns the records of tf in no particular order.
func (s *Store) Records(tf Timeframe) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0, len(s.records)/len(timeframeSpecs)+1)
	for _, record := range s.records {
		if record.Timeframe == tf {
			out = append(out, record)
		}
	}
	return out
}

// All returns a copy of the whole table.
func (s *Store) All() map[string]Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Record, len(s.records))
	for key, record := range s.records {
		out[key] = record
	}
	return out
}

// Len is the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Symbols returns the distinct symbols, sorted.
func (s *Store) Symbols() []string {
	s.mu.RLock()
	seen := make(map[string]struct{})
	for _, record := range s.records {
		seen[record.Symbol] = struct{}{}
	}
	s.mu.RUnlock()

	out := make([]string, 0, len(seen))
	for symbol := range seen {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

// Initialized reports whether the table was loaded or fully collected.
func (s *Store) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// SavedAt is the timestamp of the last snapshot loaded or written.
func (s *Store) SavedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.savedAt
}

// Path is the snapshot file location.
func (s *Store) Path() string {
	return s.opts.Path
}
