package alerting

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"price-high-alerts/internal/metrics"
)

// Channel is a named delivery target.
type Channel struct {
	Name     string
	Notifier Notifier
}

// MultiNotifier fans a notification out to every channel. A failing channel
// does not prevent delivery to the others.
type MultiNotifier struct {
	channels []Channel
	metrics  *metrics.Recorder
	logger   zerolog.Logger
}

// NewMultiNotifier constructs a fan-out notifier.
func NewMultiNotifier(channels []Channel, recorder *metrics.Recorder, logger zerolog.Logger) *MultiNotifier {
	return &MultiNotifier{
		channels: channels,
		metrics:  recorder,
		logger:   logger.With().Str("component", "alert_dispatch").Logger(),
	}
}

// Names lists the configured channel names.
func (m *MultiNotifier) Names() []string {
	names := make([]string, 0, len(m.channels))
	for _, c := range m.channels {
		names = append(names, c.Name)
	}
	return names
}

func (m *MultiNotifier) Notify(ctx context.Context, note Notification) error {
	var errs []error
	for _, c := range m.channels {
		if err := c.Notifier.Notify(ctx, note); err != nil {
			m.metrics.NotifyError(c.Name)
			m.logger.Error().Err(err).Str("channel", c.Name).Str("alert", note.AlertName).Msg("failed to dispatch alert")
			errs = append(errs, fmt.Errorf("%s: %w", c.Name, err))
		}
	}
	return errors.Join(errs...)
}

var _ Notifier = (*MultiNotifier)(nil)
