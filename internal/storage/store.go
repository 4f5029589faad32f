package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"price-high-alerts/internal/breakthrough"
	"price-high-alerts/internal/config"
	"price-high-alerts/internal/fetcher"
	"price-high-alerts/internal/highs"
)

// Backend bundles the stores selected by configuration.
// Locker is nil without a database.
type Backend struct {
	Alerts AlertStore
	Events EventStore
	Locker AdvisoryLocker
	PG     *Store
}

// Close releases the database pool when one is open.
func (b *Backend) Close() {
	if b == nil {
		return
	}
	b.PG.Close()
}

// Open connects to PostgreSQL when a DSN is set, otherwise falls back to an
// in-memory store. Configured watches are upserted into either backend.
func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Backend, error) {
	log := logger.With().Str("component", "storage").Logger()

	watches, err := WatchesFromConfig(cfg.Breakthrough.Watches, cfg.Binance.QuoteAsset)
	if err != nil {
		return nil, err
	}

	if cfg.Database.DSN == "" {
		log.Warn().Int("watches", len(watches)).Msg("database dsn empty, alert state kept in memory")
		mem := NewMemoryStore(watches)
		return &Backend{Alerts: mem, Events: mem}, nil
	}

	pool, err := NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	pg := NewStore(pool)
	for _, w := range watches {
		if _, err := pg.UpsertAlert(ctx, w); err != nil {
			pg.Close()
			return nil, fmt.Errorf("seed watch %q: %w", w.Name, err)
		}
	}
	log.Info().Int("watches", len(watches)).Msg("postgres storage ready")
	return &Backend{Alerts: pg, Events: pg, Locker: pg, PG: pg}, nil
}

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// WatchesFromConfig converts configured watches into enabled alert states.
// Unnamed watches are named after their target and timeframe.
func WatchesFromConfig(watches []config.WatchConfig, quote string) ([]breakthrough.WatchState, error) {
	out := make([]breakthrough.WatchState, 0, len(watches))
	for i, w := range watches {
		tf, err := highs.ParseTimeframe(w.Timeframe)
		if err != nil {
			return nil, fmt.Errorf("breakthrough.watches[%d]: %w", i, err)
		}
		state := breakthrough.WatchState{
			Name:               strings.TrimSpace(w.Name),
			Timeframe:          tf,
			WatchAllSymbols:    w.WatchAll,
			MinBreakPercentage: w.MinBreakPercentage,
			Enabled:            true,
		}
		if !w.WatchAll {
			state.Symbol = fetcher.NormalizeSymbol(w.Symbol, quote)
		}
		if state.Name == "" {
			target := state.Symbol
			if state.WatchAllSymbols {
				target = "all"
			}
			state.Name = fmt.Sprintf("%s-%s", strings.ToLower(target), tf)
		}
		out = append(out, state)
	}
	return out, nil
}
