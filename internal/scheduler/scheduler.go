package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked on every aligned interval with the tick's bucket time.
type TickFunc func(ctx context.Context, tick time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Interval     time.Duration
	AlignToStart bool
	StartupDelay time.Duration
	// RunImmediately fires one tick before waiting for the first boundary.
	RunImmediately bool
}

// Scheduler drives the breakthrough polling loop. Ticks never overlap: the
// next boundary is computed after the previous tick returns, and boundaries
// that passed while a tick was running are skipped.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
	now    func() time.Time
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Scheduler{
		opts:   opts,
		logger: logger.With().Str("component", "scheduler").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Run blocks, invoking tick at each interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		if err := s.wait(ctx, s.opts.StartupDelay); err != nil {
			return err
		}
	}

	if s.opts.RunImmediately {
		s.execute(ctx, tick, s.now())
	}

	for {
		next := s.nextTick(s.now())
		s.logger.Debug().Time("next_tick", next).Msg("waiting for next tick")
		if err := s.wait(ctx, next.Sub(s.now())); err != nil {
			return err
		}
		s.execute(ctx, tick, s.bucketStart(next))
	}
}

func (s *Scheduler) execute(ctx context.Context, tick TickFunc, at time.Time) {
	started := time.Now()
	if err := tick(ctx, at); err != nil {
		s.logger.Error().Err(err).Time("tick", at).Msg("tick execution failed")
		return
	}
	if elapsed := time.Since(started); elapsed > s.opts.Interval {
		s.logger.Warn().Dur("elapsed", elapsed).Dur("interval", s.opts.Interval).Msg("tick overran its interval")
	}
}

func (s *Scheduler) wait(ctx context.Context, d time.Duration) error {
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

func (s *Scheduler) nextTick(now time.Time) time.Time {
	if !s.opts.AlignToStart {
		return now.Add(s.opts.Interval)
	}
	bucket := now.Truncate(s.opts.Interval)
	if !bucket.After(now) {
		bucket = bucket.Add(s.opts.Interval)
	}
	return bucket
}

func (s *Scheduler) bucketStart(t time.Time) time.Time {
	if !s.opts.AlignToStart {
		return t
	}
	return t.Truncate(s.opts.Interval)
}
