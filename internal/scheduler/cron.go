package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is a cron-triggered unit of work.
type Job func(ctx context.Context) error

// CronRunner runs jobs on standard five-field cron specs. A job still running
// when its next slot arrives is skipped.
type CronRunner struct {
	cron   *cron.Cron
	logger zerolog.Logger
}

// NewCronRunner constructs a runner in UTC.
func NewCronRunner(logger zerolog.Logger) *CronRunner {
	log := logger.With().Str("component", "cron").Logger()
	adapter := cronLogger{logger: log}
	return &CronRunner{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(adapter),
			cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
		),
		logger: log,
	}
}

// Add registers job under spec. ctx is passed to every invocation.
func (r *CronRunner) Add(ctx context.Context, name, spec string, job Job) error {
	_, err := r.cron.AddFunc(spec, func() {
		r.logger.Info().Str("job", name).Msg("cron job started")
		if err := job(ctx); err != nil {
			r.logger.Error().Err(err).Str("job", name).Msg("cron job failed")
			return
		}
		r.logger.Info().Str("job", name).Msg("cron job finished")
	})
	if err != nil {
		return fmt.Errorf("add cron job %s (%q): %w", name, spec, err)
	}
	return nil
}

// Run starts the cron loop and blocks until ctx is cancelled, then waits for
// running jobs to finish.
func (r *CronRunner) Run(ctx context.Context) error {
	r.cron.Start()
	<-ctx.Done()
	<-r.cron.Stop().Done()
	return ctx.Err()
}

// ValidateSpec reports whether spec parses as a five-field cron expression.
func ValidateSpec(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("parse cron spec %q: %w", spec, err)
	}
	return nil
}

type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
