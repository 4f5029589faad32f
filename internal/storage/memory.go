package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"price-high-alerts/internal/breakthrough"
)

const memoryEventCap = 500

// MemoryStore keeps alerts and recent events in process memory.
// Check state is lost on restart.
type MemoryStore struct {
	mu     sync.Mutex
	nextID int64
	alerts map[int64]breakthrough.WatchState
	events []BreakthroughEvent
}

var (
	_ AlertStore = (*MemoryStore)(nil)
	_ EventStore = (*MemoryStore)(nil)
)

// NewMemoryStore seeds the store with alerts; ids are assigned in order.
func NewMemoryStore(seed []breakthrough.WatchState) *MemoryStore {
	m := &MemoryStore{alerts: make(map[int64]breakthrough.WatchState)}
	for _, alert := range seed {
		_, _ = m.UpsertAlert(context.Background(), alert)
	}
	return m
}

func (m *MemoryStore) ListAlerts(context.Context) ([]breakthrough.WatchState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]breakthrough.WatchState, 0, len(m.alerts))
	for _, alert := range m.alerts {
		if alert.Enabled {
			out = append(out, alert)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) UpsertAlert(_ context.Context, alert breakthrough.WatchState) (breakthrough.WatchState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, existing := range m.alerts {
		if existing.Name == alert.Name && alert.Name != "" {
			alert.ID = id
			alert.LastCheckPrice = existing.LastCheckPrice
			alert.LastTriggeredTime = existing.LastTriggeredTime
			m.alerts[id] = alert
			return alert, nil
		}
	}
	m.nextID++
	alert.ID = m.nextID
	m.alerts[alert.ID] = alert
	return alert, nil
}

func (m *MemoryStore) UpdateAlertState(_ context.Context, id int64, lastCheck *float64, triggeredAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	alert, ok := m.alerts[id]
	if !ok {
		return ErrAlertNotFound
	}
	if lastCheck != nil {
		v := *lastCheck
		alert.LastCheckPrice = &v
	} else {
		alert.LastCheckPrice = nil
	}
	if triggeredAt != nil {
		t := *triggeredAt
		alert.LastTriggeredTime = &t
	}
	m.alerts[id] = alert
	return nil
}

func (m *MemoryStore) InsertEvent(_ context.Context, event BreakthroughEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	if len(m.events) > memoryEventCap {
		m.events = append([]BreakthroughEvent(nil), m.events[len(m.events)-memoryEventCap:]...)
	}
	return nil
}

func (m *MemoryStore) ListRecentEvents(_ context.Context, limit int) ([]BreakthroughEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]BreakthroughEvent, 0, len(m.events))
	for i := len(m.events) - 1; i >= 0; i-- {
		out = append(out, m.events[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) DeleteEventsBefore(_ context.Context, olderThan time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.events[:0]
	for _, event := range m.events {
		if !event.TriggeredAt.Before(olderThan) {
			kept = append(kept, event)
		}
	}
	m.events = kept
	return nil
}
