package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"price-high-alerts/internal/breakthrough"
	"price-high-alerts/internal/highs"
)

func testNote() Notification {
	return Notification{
		AlertID:   3,
		AlertName: "btc-weekly",
		Timeframe: highs.Week,
		Mode:      "single",
		Results: []breakthrough.Result{{
			Symbol:          "BTCUSDT",
			Timeframe:       highs.Week,
			CurrentPrice:    105,
			TimeframeHigh:   100,
			HighTimestamp:   time.Date(2024, 5, 30, 0, 0, 0, 0, time.UTC).UnixMilli(),
			IsBreakthrough:  true,
			BreakAmount:     5,
			BreakPercentage: 5,
		}},
		TriggeredAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]any)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/bottoken/sendMessage") {
			t.Fatalf("path should contain sendMessage, got %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), testNote()); err != nil {
		t.Fatalf("telegram notify should succeed: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("unexpected chat_id: %#v", received)
	}
	text, _ := received["text"].(string)
	if !strings.Contains(text, "BTCUSDT broke its 1 Week high") {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), testNote()); err == nil {
		t.Fatal("ok=false should return an error")
	}
}

func TestTelegramNotifierStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "description": "chat not found"})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	err := notifier.Notify(context.Background(), testNote())
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("expected description in error, got %v", err)
	}
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaPublisherWritesOneMessagePerResult(t *testing.T) {
	w := &fakeWriter{}
	pub := NewKafkaPublisher(w, "breakthroughs", testLogger())

	note := testNote()
	second := note.Results[0]
	second.Symbol = "ETHUSDT"
	note.Results = append(note.Results, second)

	if err := pub.Notify(context.Background(), note); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(w.msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(w.msgs))
	}
	if string(w.msgs[1].Key) != "ETHUSDT" {
		t.Fatalf("unexpected key %q", w.msgs[1].Key)
	}

	var event BreakthroughEvent
	if err := json.Unmarshal(w.msgs[0].Value, &event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if event.EventID == "" || event.Symbol != "BTCUSDT" || event.BreakPercentage != 5 || event.AlertName != "btc-weekly" {
		t.Fatalf("unexpected event %+v", event)
	}
	if event.TriggeredAt != note.TriggeredAt.UnixMilli() {
		t.Fatalf("unexpected triggeredAt %d", event.TriggeredAt)
	}
}

type countingNotifier struct {
	calls int
	err   error
}

func (c *countingNotifier) Notify(context.Context, Notification) error {
	c.calls++
	return c.err
}

func TestMultiNotifierContinuesAfterFailure(t *testing.T) {
	failing := &countingNotifier{err: errors.New("boom")}
	ok := &countingNotifier{}
	multi := NewMultiNotifier([]Channel{{Name: "telegram", Notifier: failing}, {Name: "kafka", Notifier: ok}}, nil, testLogger())

	err := multi.Notify(context.Background(), testNote())
	if err == nil || !strings.Contains(err.Error(), "telegram: boom") {
		t.Fatalf("expected joined error, got %v", err)
	}
	if failing.calls != 1 || ok.calls != 1 {
		t.Fatalf("every channel should be called once, got %d and %d", failing.calls, ok.calls)
	}
	if got := multi.Names(); len(got) != 2 || got[1] != "kafka" {
		t.Fatalf("unexpected names %v", got)
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
