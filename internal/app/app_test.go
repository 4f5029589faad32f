package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"price-high-alerts/internal/config"
	"price-high-alerts/internal/highs"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	cfg := &config.Config{
		Cache:  config.CacheConfig{DataDir: t.TempDir(), SnapshotFile: "highs.json", MaxAge: time.Hour},
		Export: config.ExportConfig{MaxRows: 10, ChartBars: 5},
	}
	cfg.Breakthrough.MaxResultsPerMsg = 20

	now := time.Now()
	store := highs.NewStore(highs.StoreOptions{Path: cfg.SnapshotPath(), MaxAge: time.Hour}, zerolog.Nop())
	store.Replace([]highs.Record{
		highs.NewRecord("AAAUSDT", highs.Week, 90, 100, now.Add(-time.Hour), now),
		highs.NewRecord("BBBUSDT", highs.Week, 50, 100, now.Add(-time.Hour), now),
		highs.NewRecord("CCCUSDT", highs.Week, 99, 100, now.Add(-time.Hour), now),
	})
	if err := store.Persist(); err != nil {
		t.Fatalf("persist snapshot: %v", err)
	}
	return NewApp(cfg, zerolog.Nop())
}

func TestExportWritesRankingCSVAndPNG(t *testing.T) {
	a := newTestApp(t)
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "out", "ranking.csv")
	pngPath := filepath.Join(dir, "out", "ranking.png")

	err := a.Export(context.Background(), ExportOptions{Timeframe: highs.Week, CSVPath: csvPath, PNGPath: pngPath, MaxRows: 2})
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	f, err := os.Open(csvPath)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	if rows[1][1] != "CCCUSDT" || rows[2][1] != "AAAUSDT" {
		t.Fatalf("unexpected order: %v", rows[1:])
	}

	info, err := os.Stat(pngPath)
	if err != nil {
		t.Fatalf("stat png: %v", err)
	}
	if info.Size() == 0 {
		t.Fatal("png is empty")
	}
}

func TestExportRequiresTarget(t *testing.T) {
	a := newTestApp(t)
	if err := a.Export(context.Background(), ExportOptions{Timeframe: highs.Week}); err == nil {
		t.Fatal("expected error without --csv or --png")
	}
}

func TestReadCommandsNeedSnapshot(t *testing.T) {
	cfg := &config.Config{Cache: config.CacheConfig{DataDir: t.TempDir(), SnapshotFile: "missing.json", MaxAge: time.Hour}}
	a := NewApp(cfg, zerolog.Nop())
	if err := a.Stats(context.Background()); err != errNoSnapshot {
		t.Fatalf("expected errNoSnapshot, got %v", err)
	}
}

func TestWriteRanking(t *testing.T) {
	var buf bytes.Buffer
	entries := []highs.RankingEntry{{Symbol: "AAAUSDT", CurrentPrice: 90, HighPrice: 100, DistancePercent: -10, NeededGainPercent: 11.1111}}
	if err := writeRanking(&buf, entries); err != nil {
		t.Fatalf("write ranking: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "AAAUSDT") || !strings.Contains(out, "-10.00") || !strings.Contains(out, "11.11") {
		t.Fatalf("unexpected table:\n%s", out)
	}
}

func TestNewNotifierFallsBackToLog(t *testing.T) {
	a := NewApp(&config.Config{}, zerolog.Nop())
	a.Config.Alerting.Channels = []string{"telegram"}

	notifier, closeFn, err := a.newNotifier(nil)
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}
	defer closeFn()
	if names := notifier.Names(); len(names) != 1 || names[0] != "log" {
		t.Fatalf("expected log fallback, got %v", names)
	}

	a.Config.Alerting.Channels = []string{"pager"}
	if _, _, err := a.newNotifier(nil); err == nil {
		t.Fatal("unknown channel should fail")
	}
}

func TestNewSuppressorSelection(t *testing.T) {
	a := NewApp(&config.Config{}, zerolog.Nop())

	s, closeFn, err := a.newSuppressor(context.Background())
	if err != nil || s != nil {
		t.Fatalf("suppression off should yield nil, got %v %v", s, err)
	}
	closeFn()

	a.Config.Breakthrough.SuppressRepeats = true
	a.Config.Breakthrough.TriggeredStore = "memory"
	s, closeFn, err = a.newSuppressor(context.Background())
	if err != nil || s == nil {
		t.Fatalf("expected memory suppressor, got %v %v", s, err)
	}
	closeFn()
}
