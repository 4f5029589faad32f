package breakthrough

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// TriggeredSet remembers, per alert, which symbols were already reported
// during their current stay above the high.
type TriggeredSet interface {
	Members(ctx context.Context, alertKey string) (map[string]struct{}, error)
	Replace(ctx context.Context, alertKey string, symbols []string) error
}

// Suppressor gives multi-symbol alerts the same once-per-crossing semantics
// single-symbol alerts get from LastCheckPrice.
type Suppressor struct {
	set TriggeredSet
}

// NewSuppressor wraps a triggered set.
func NewSuppressor(set TriggeredSet) *Suppressor {
	return &Suppressor{set: set}
}

// Filter takes every symbol currently above its high (any break size) and
// returns those to report now: at least minPct and not reported before.
// Symbols that fell back under their high are forgotten and re-arm.
func (s *Suppressor) Filter(ctx context.Context, alertKey string, above []Result, minPct float64) ([]Result, error) {
	previous, err := s.set.Members(ctx, alertKey)
	if err != nil {
		return nil, fmt.Errorf("load triggered symbols: %w", err)
	}

	var report []Result
	keep := make([]string, 0, len(above))
	for _, r := range above {
		if _, seen := previous[r.Symbol]; seen {
			keep = append(keep, r.Symbol)
			continue
		}
		if r.BreakPercentage >= minPct {
			report = append(report, r)
			keep = append(keep, r.Symbol)
		}
	}
	sort.Strings(keep)

	if err := s.set.Replace(ctx, alertKey, keep); err != nil {
		return nil, fmt.Errorf("save triggered symbols: %w", err)
	}
	SortByBreak(report)
	return report, nil
}

// MemorySet is a process-local TriggeredSet.
type MemorySet struct {
	mu   sync.Mutex
	sets map[string]map[string]struct{}
}

// NewMemorySet constructs an empty set.
func NewMemorySet() *MemorySet {
	return &MemorySet{sets: make(map[string]map[string]struct{})}
}

func (m *MemorySet) Members(_ context.Context, alertKey string) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]struct{}, len(m.sets[alertKey]))
	for symbol := range m.sets[alertKey] {
		out[symbol] = struct{}{}
	}
	return out, nil
}

func (m *MemorySet) Replace(_ context.Context, alertKey string, symbols []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(symbols) == 0 {
		delete(m.sets, alertKey)
		return nil
	}
	set := make(map[string]struct{}, len(symbols))
	for _, symbol := range symbols {
		set[symbol] = struct{}{}
	}
	m.sets[alertKey] = set
	return nil
}

var _ TriggeredSet = (*MemorySet)(nil)
