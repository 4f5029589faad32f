package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"price-high-alerts/internal/breakthrough"
	"price-high-alerts/internal/highs"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrAlertNotFound indicates no alert matched the given id.
	ErrAlertNotFound = errors.New("storage: alert not found")
)

const (
	listAlertsSQL = `SELECT
        id,
        name,
        symbol,
        timeframe,
        watch_all,
        min_break_pct,
        last_check_price,
        last_triggered_at,
        enabled
    FROM breakthrough_alerts
    WHERE enabled
    ORDER BY id;`

	insertAlertSQL = `INSERT INTO breakthrough_alerts (
        name,
        symbol,
        timeframe,
        watch_all,
        min_break_pct,
        enabled
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    ON CONFLICT (name) DO UPDATE
    SET symbol        = EXCLUDED.symbol,
        timeframe     = EXCLUDED.timeframe,
        watch_all     = EXCLUDED.watch_all,
        min_break_pct = EXCLUDED.min_break_pct,
        enabled       = EXCLUDED.enabled
    RETURNING id;`

	updateAlertStateSQL = `UPDATE breakthrough_alerts
    SET last_check_price  = $2,
        last_triggered_at = COALESCE($3, last_triggered_at),
        updated_at        = now()
    WHERE id = $1;`

	insertEventSQL = `INSERT INTO breakthrough_events (
        id,
        alert_id,
        alert_name,
        symbol,
        timeframe,
        mode,
        price,
        high_price,
        high_at,
        break_pct,
        channels,
        triggered_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
    );`

	listRecentEventsSQL = `SELECT
        id,
        alert_id,
        alert_name,
        symbol,
        timeframe,
        mode,
        price,
        high_price,
        high_at,
        break_pct,
        channels,
        triggered_at
    FROM breakthrough_events
    ORDER BY triggered_at DESC
    LIMIT $1;`

	deleteEventsBeforeSQL = `DELETE FROM breakthrough_events WHERE triggered_at < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// AlertStore owns breakthrough watch configuration and its check state.
type AlertStore interface {
	ListAlerts(ctx context.Context) ([]breakthrough.WatchState, error)
	UpsertAlert(ctx context.Context, alert breakthrough.WatchState) (breakthrough.WatchState, error)
	UpdateAlertState(ctx context.Context, id int64, lastCheck *float64, triggeredAt *time.Time) error
}

// EventStore audits emitted breakthroughs.
type EventStore interface {
	InsertEvent(ctx context.Context, event BreakthroughEvent) error
	ListRecentEvents(ctx context.Context, limit int) ([]BreakthroughEvent, error)
	DeleteEventsBefore(ctx context.Context, olderThan time.Time) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store implements every storage interface on PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ AlertStore     = (*Store)(nil)
	_ EventStore     = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// A failed unlock is released with the session when the connection is recycled.
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// ListAlerts returns the enabled alerts ordered by id.
func (s *Store) ListAlerts(ctx context.Context) ([]breakthrough.WatchState, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listAlertsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]breakthrough.WatchState, 0)
	for rows.Next() {
		alert, scanErr := scanAlert(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		alerts = append(alerts, alert)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// UpsertAlert creates or updates an alert keyed by name.
func (s *Store) UpsertAlert(ctx context.Context, alert breakthrough.WatchState) (breakthrough.WatchState, error) {
	pool, err := s.getPool()
	if err != nil {
		return breakthrough.WatchState{}, err
	}

	var symbol any
	if alert.Symbol != "" {
		symbol = alert.Symbol
	}

	row := pool.QueryRow(ctx, insertAlertSQL,
		alert.Name,
		symbol,
		string(alert.Timeframe),
		alert.WatchAllSymbols,
		decimal.NewFromFloat(alert.MinBreakPercentage).String(),
		alert.Enabled,
	)
	if scanErr := row.Scan(&alert.ID); scanErr != nil {
		return breakthrough.WatchState{}, fmt.Errorf("upsert alert: %w", scanErr)
	}
	return alert, nil
}

// UpdateAlertState records the last observed price and, when set, the trigger time.
func (s *Store) UpdateAlertState(ctx context.Context, id int64, lastCheck *float64, triggeredAt *time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var price any
	if lastCheck != nil {
		price = decimal.NewFromFloat(*lastCheck).String()
	}
	var triggered any
	if triggeredAt != nil {
		triggered = triggeredAt.UTC()
	}

	cmdTag, execErr := pool.Exec(ctx, updateAlertStateSQL, id, price, triggered)
	if execErr != nil {
		return fmt.Errorf("update alert state: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrAlertNotFound
	}
	return nil
}

// InsertEvent persists a breakthrough emission.
func (s *Store) InsertEvent(ctx context.Context, event BreakthroughEvent) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var alertID any
	if event.AlertID != 0 {
		alertID = event.AlertID
	}

	_, execErr := pool.Exec(ctx, insertEventSQL,
		event.ID,
		alertID,
		event.AlertName,
		event.Symbol,
		event.Timeframe,
		event.Mode,
		event.Price.String(),
		event.HighPrice.String(),
		event.HighAt,
		event.BreakPct.String(),
		event.Channels,
		event.TriggeredAt,
	)
	if execErr != nil {
		return fmt.Errorf("insert breakthrough event: %w", execErr)
	}
	return nil
}

// ListRecentEvents lists the most recent breakthroughs.
func (s *Store) ListRecentEvents(ctx context.Context, limit int) ([]BreakthroughEvent, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentEventsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent events: %w", queryErr)
	}
	defer rows.Close()

	events := make([]BreakthroughEvent, 0, limit)
	for rows.Next() {
		event, scanErr := scanEvent(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		events = append(events, event)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return events, nil
}

// DeleteEventsBefore prunes the audit table.
func (s *Store) DeleteEventsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteEventsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete events before: %w", execErr)
	}
	return nil
}

func scanAlert(rows pgx.Rows) (breakthrough.WatchState, error) {
	var (
		alert       breakthrough.WatchState
		symbol      *string
		timeframe   string
		minBreakStr string
		lastCheck   *string
		triggeredAt *time.Time
	)
	if err := rows.Scan(
		&alert.ID,
		&alert.Name,
		&symbol,
		&timeframe,
		&alert.WatchAllSymbols,
		&minBreakStr,
		&lastCheck,
		&triggeredAt,
		&alert.Enabled,
	); err != nil {
		return breakthrough.WatchState{}, err
	}

	tf, err := highs.ParseTimeframe(timeframe)
	if err != nil {
		return breakthrough.WatchState{}, fmt.Errorf("alert %d: %w", alert.ID, err)
	}
	alert.Timeframe = tf
	if symbol != nil {
		alert.Symbol = *symbol
	}

	minBreak, err := decimal.NewFromString(minBreakStr)
	if err != nil {
		return breakthrough.WatchState{}, fmt.Errorf("parse min break pct: %w", err)
	}
	alert.MinBreakPercentage = minBreak.InexactFloat64()

	if lastCheck != nil {
		price, err := decimal.NewFromString(*lastCheck)
		if err != nil {
			return breakthrough.WatchState{}, fmt.Errorf("parse last check price: %w", err)
		}
		value := price.InexactFloat64()
		alert.LastCheckPrice = &value
	}
	if triggeredAt != nil {
		at := triggeredAt.UTC()
		alert.LastTriggeredTime = &at
	}
	return alert, nil
}

func scanEvent(rows pgx.Rows) (BreakthroughEvent, error) {
	var (
		event                          BreakthroughEvent
		alertID                        *int64
		priceStr, highStr, breakPctStr string
	)
	if err := rows.Scan(
		&event.ID,
		&alertID,
		&event.AlertName,
		&event.Symbol,
		&event.Timeframe,
		&event.Mode,
		&priceStr,
		&highStr,
		&event.HighAt,
		&breakPctStr,
		&event.Channels,
		&event.TriggeredAt,
	); err != nil {
		return BreakthroughEvent{}, err
	}
	if alertID != nil {
		event.AlertID = *alertID
	}

	var err error
	if event.Price, err = decimal.NewFromString(priceStr); err != nil {
		return BreakthroughEvent{}, fmt.Errorf("parse price: %w", err)
	}
	if event.HighPrice, err = decimal.NewFromString(highStr); err != nil {
		return BreakthroughEvent{}, fmt.Errorf("parse high price: %w", err)
	}
	if event.BreakPct, err = decimal.NewFromString(breakPctStr); err != nil {
		return BreakthroughEvent{}, fmt.Errorf("parse break pct: %w", err)
	}
	return event, nil
}
