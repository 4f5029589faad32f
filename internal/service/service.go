package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"price-high-alerts/internal/alerting"
	"price-high-alerts/internal/breakthrough"
	"price-high-alerts/internal/fetcher"
	"price-high-alerts/internal/metrics"
	"price-high-alerts/internal/scheduler"
	"price-high-alerts/internal/storage"
)

const pruneEvery = 24 * time.Hour

// Options tune the breakthrough monitor.
type Options struct {
	LockKey          int64
	AlertsOn         bool
	Channels         []string
	MaxResultsPerMsg int
	EventRetention   time.Duration
	Now              func() time.Time
}

// Dependencies are the collaborators of the monitor. Suppressor and Locker are optional.
type Dependencies struct {
	Scheduler  *scheduler.Scheduler
	Detector   *breakthrough.Detector
	Prices     fetcher.PriceBoard
	Alerts     storage.AlertStore
	Events     storage.EventStore
	Notifier   alerting.Notifier
	Suppressor *breakthrough.Suppressor
	Locker     storage.AdvisoryLocker
	Metrics    *metrics.Recorder
}

// Service polls live prices and fires breakthrough alerts.
type Service struct {
	deps   Dependencies
	opts   Options
	logger zerolog.Logger

	lastPrune time.Time
}

// New constructs the monitoring service.
func New(opts Options, deps Dependencies, logger zerolog.Logger) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		deps:   deps,
		opts:   opts,
		logger: logger.With().Str("component", "service").Logger(),
	}
}

// Run begins the polling loop.
func (s *Service) Run(ctx context.Context) error {
	if s.deps.Scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.deps.Scheduler.Run(ctx, s.ProcessTick)
}

// ProcessTick 执行单次轮询: 拉取实时价格并逐个评估告警。
func (s *Service) ProcessTick(ctx context.Context, tick time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("tick", tick).Msg("skip tick because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	started := time.Now()
	defer func() { s.deps.Metrics.TickDuration(time.Since(started).Seconds()) }()

	return s.executeTick(ctx, tick)
}

func (s *Service) executeTick(ctx context.Context, tick time.Time) error {
	alerts, err := s.deps.Alerts.ListAlerts(ctx)
	if err != nil {
		return fmt.Errorf("list alerts: %w", err)
	}
	if len(alerts) == 0 {
		s.logger.Debug().Time("tick", tick).Msg("no enabled alerts")
		return nil
	}

	prices, err := s.deps.Prices.LivePrices(ctx)
	if err != nil {
		return fmt.Errorf("fetch live prices: %w", err)
	}

	now := s.opts.Now()
	fired := 0
	for _, alert := range alerts {
		if breakthrough.ShouldSkipCheck(alert, now) {
			s.logger.Debug().Str("alert", alert.Name).Msg("alert cooling down")
			continue
		}
		if alert.WatchAllSymbols {
			fired += s.evaluateMulti(ctx, alert, prices, now)
		} else {
			fired += s.evaluateSingle(ctx, alert, prices, now)
		}
	}

	s.prune(ctx, now)

	s.logger.Info().
		Time("tick", tick).
		Int("alerts", len(alerts)).
		Int("prices", len(prices)).
		Int("fired", fired).
		Msg("tick evaluated")
	return nil
}

func (s *Service) evaluateSingle(ctx context.Context, alert breakthrough.WatchState, prices map[string]float64, now time.Time) int {
	price, ok := prices[alert.Symbol]
	if !ok {
		s.logger.Warn().Str("alert", alert.Name).Str("symbol", alert.Symbol).Msg("no live price for symbol")
		return 0
	}

	result := s.deps.Detector.Check(alert.Symbol, price, alert.Timeframe, alert.LastCheckPrice)

	var triggeredAt *time.Time
	if result != nil {
		s.dispatch(ctx, alert, []breakthrough.Result{*result}, now)
		triggeredAt = &now
	}

	// LastCheckPrice is written after every evaluation, fired or not.
	if err := s.deps.Alerts.UpdateAlertState(ctx, alert.ID, &price, triggeredAt); err != nil {
		s.logger.Error().Err(err).Str("alert", alert.Name).Msg("failed to persist alert state")
	}
	if result == nil {
		return 0
	}
	return 1
}

// suppressionKey follows the alert row, so edits that keep the row keep the set.
func suppressionKey(alert breakthrough.WatchState) string {
	return "alert-" + strconv.FormatInt(alert.ID, 10)
}

func (s *Service) evaluateMulti(ctx context.Context, alert breakthrough.WatchState, prices map[string]float64, now time.Time) int {
	var results []breakthrough.Result
	if s.deps.Suppressor != nil {
		above := s.deps.Detector.CheckMulti(alert.Timeframe, 0, prices)
		filtered, err := s.deps.Suppressor.Filter(ctx, suppressionKey(alert), above, alert.MinBreakPercentage)
		if err != nil {
			s.logger.Error().Err(err).Str("alert", alert.Name).Msg("suppression unavailable, skipping alert")
			return 0
		}
		results = filtered
	} else {
		results = s.deps.Detector.CheckMulti(alert.Timeframe, alert.MinBreakPercentage, prices)
	}
	if len(results) == 0 {
		return 0
	}

	s.dispatch(ctx, alert, results, now)
	if err := s.deps.Alerts.UpdateAlertState(ctx, alert.ID, alert.LastCheckPrice, &now); err != nil {
		s.logger.Error().Err(err).Str("alert", alert.Name).Msg("failed to persist alert state")
	}
	return len(results)
}

func (s *Service) dispatch(ctx context.Context, alert breakthrough.WatchState, results []breakthrough.Result, now time.Time) {
	for _, r := range results {
		s.deps.Metrics.Breakthrough(string(r.Timeframe), alert.Mode())
		s.logger.Info().
			Str("alert", alert.Name).
			Str("symbol", r.Symbol).
			Str("timeframe", string(r.Timeframe)).
			Float64("price", r.CurrentPrice).
			Float64("high", r.TimeframeHigh).
			Float64("break_pct", r.BreakPercentage).
			Msg("breakthrough detected")

		if s.deps.Events != nil {
			event := storage.NewBreakthroughEvent(alert, r, s.opts.Channels, now)
			if err := s.deps.Events.InsertEvent(ctx, event); err != nil {
				s.logger.Error().Err(err).Str("symbol", r.Symbol).Msg("failed to persist breakthrough event")
			}
		}
	}

	if !s.opts.AlertsOn || s.deps.Notifier == nil {
		return
	}
	note := alerting.Notification{
		AlertID:     alert.ID,
		AlertName:   alert.Name,
		Timeframe:   alert.Timeframe,
		Mode:        alert.Mode(),
		Results:     results,
		TriggeredAt: now,
		MaxRows:     s.opts.MaxResultsPerMsg,
	}
	if err := s.deps.Notifier.Notify(ctx, note); err != nil {
		s.logger.Error().Err(err).Str("alert", alert.Name).Msg("failed to dispatch alert")
	}
}

func (s *Service) prune(ctx context.Context, now time.Time) {
	if s.opts.EventRetention <= 0 || s.deps.Events == nil || now.Sub(s.lastPrune) < pruneEvery {
		return
	}
	s.lastPrune = now
	if err := s.deps.Events.DeleteEventsBefore(ctx, now.Add(-s.opts.EventRetention)); err != nil {
		s.logger.Error().Err(err).Msg("failed to prune breakthrough events")
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.opts.LockKey == 0 || s.deps.Locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.deps.Locker.TryAdvisoryLock(ctx, s.opts.LockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
