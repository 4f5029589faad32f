package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// BreakthroughEvent is the JSON payload published per symbol.
type BreakthroughEvent struct {
	EventID         string  `json:"eventId"`
	AlertID         int64   `json:"alertId,omitempty"`
	AlertName       string  `json:"alertName"`
	Mode            string  `json:"mode"`
	Symbol          string  `json:"symbol"`
	Timeframe       string  `json:"timeframe"`
	CurrentPrice    float64 `json:"currentPrice"`
	TimeframeHigh   float64 `json:"timeframeHigh"`
	HighTimestamp   int64   `json:"highTimestamp"`
	BreakAmount     float64 `json:"breakAmount"`
	BreakPercentage float64 `json:"breakPercentage"`
	TriggeredAt     int64   `json:"triggeredAt"`
}

// KafkaPublisher emits one message per breakthrough, keyed by symbol.
type KafkaPublisher struct {
	writer MessageWriter
	topic  string
	logger zerolog.Logger
}

// NewKafkaWriter builds a synchronous writer for the topic.
func NewKafkaWriter(brokers []string, topic string, writeTimeout time.Duration) (*kafka.Writer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		WriteTimeout: writeTimeout,
		BatchTimeout: 50 * time.Millisecond,
	}, nil
}

// NewKafkaPublisher wraps a writer.
func NewKafkaPublisher(writer MessageWriter, topic string, logger zerolog.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: writer,
		topic:  topic,
		logger: logger.With().Str("component", "alert_kafka").Logger(),
	}
}

func (p *KafkaPublisher) Notify(ctx context.Context, note Notification) error {
	if len(note.Results) == 0 {
		return nil
	}
	at := note.TriggeredAt
	if at.IsZero() {
		at = time.Now()
	}

	msgs := make([]kafka.Message, 0, len(note.Results))
	for _, r := range note.Results {
		event := BreakthroughEvent{
			EventID:         uuid.NewString(),
			AlertID:         note.AlertID,
			AlertName:       note.AlertName,
			Mode:            note.Mode,
			Symbol:          r.Symbol,
			Timeframe:       string(r.Timeframe),
			CurrentPrice:    r.CurrentPrice,
			TimeframeHigh:   r.TimeframeHigh,
			HighTimestamp:   r.HighTimestamp,
			BreakAmount:     r.BreakAmount,
			BreakPercentage: r.BreakPercentage,
			TriggeredAt:     at.UnixMilli(),
		}
		value, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("marshal breakthrough event: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(r.Symbol),
			Value: value,
			Time:  at,
			Headers: []kafka.Header{
				{Key: "event_id", Value: []byte(event.EventID)},
			},
		})
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish breakthrough events: %w", err)
	}
	p.logger.Debug().Str("topic", p.topic).Int("messages", len(msgs)).Msg("breakthrough events published")
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

var _ Notifier = (*KafkaPublisher)(nil)
