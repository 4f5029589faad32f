package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "app:\n  name: test\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Collector.GroupSize != 8 {
		t.Fatalf("group size default should be 8, got %d", cfg.Collector.GroupSize)
	}
	if cfg.Collector.GroupDelay != 800*time.Millisecond {
		t.Fatalf("group delay default should be 800ms, got %s", cfg.Collector.GroupDelay)
	}
	if cfg.Collector.PageLimit != 1000 {
		t.Fatalf("page limit default should be 1000, got %d", cfg.Collector.PageLimit)
	}
	if cfg.Cache.MaxAge != 7*24*time.Hour {
		t.Fatalf("snapshot max age default should be 7 days, got %s", cfg.Cache.MaxAge)
	}
	if got := cfg.SnapshotPath(); got != filepath.Join("data/cache", "historical_highs.json") {
		t.Fatalf("unexpected snapshot path %s", got)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("HIGHWATCHER_COLLECTOR_GROUP_SIZE", "4")
	t.Setenv("HIGHWATCHER_ALERTING_KAFKA_BROKERS", "a:9092,b:9092")

	cfg, err := Load(writeConfig(t, "app:\n  name: test\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Collector.GroupSize != 4 {
		t.Fatalf("env should override group size, got %d", cfg.Collector.GroupSize)
	}
	if len(cfg.Alerting.Kafka.Brokers) != 2 {
		t.Fatalf("comma separated brokers should decode into a slice, got %v", cfg.Alerting.Kafka.Brokers)
	}
}

func TestLoadWatches(t *testing.T) {
	body := `
breakthrough:
  watches:
    - name: btc-weekly
      symbol: btc
      timeframe: 1w
    - name: all-yearly
      watch_all: true
      timeframe: 1y
      min_break_pct: 1.5
`
	cfg, err := Load(writeConfig(t, body))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Breakthrough.Watches) != 2 {
		t.Fatalf("expected two watches, got %d", len(cfg.Breakthrough.Watches))
	}
	if !cfg.Breakthrough.Watches[1].WatchAll || cfg.Breakthrough.Watches[1].MinBreakPercentage != 1.5 {
		t.Fatalf("watch-all entry decoded incorrectly: %+v", cfg.Breakthrough.Watches[1])
	}
}

func TestValidate(t *testing.T) {
	cfg, err := Load(writeConfig(t, "app:\n  name: test\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	bad := *cfg
	bad.Collector.GroupSize = 0
	if err := bad.Validate(); err == nil {
		t.Fatal("zero group size should fail validation")
	}

	bad = *cfg
	bad.Breakthrough.TriggeredStore = "disk"
	if err := bad.Validate(); err == nil {
		t.Fatal("unknown triggered store should fail validation")
	}

	bad = *cfg
	bad.Alerting.Telegram.Enabled = true
	if err := bad.Validate(); err == nil {
		t.Fatal("telegram without credentials should fail validation")
	}

	bad = *cfg
	bad.Breakthrough.Watches = []WatchConfig{{Timeframe: "1w"}}
	if err := bad.Validate(); err == nil {
		t.Fatal("single-symbol watch without a symbol should fail validation")
	}
}

func TestResolveMaxRows(t *testing.T) {
	cfg := &Config{Export: ExportConfig{MaxRows: 50}}
	if cfg.ResolveMaxRows(0) != 50 {
		t.Fatal("zero override should use config value")
	}
	if cfg.ResolveMaxRows(5) != 5 {
		t.Fatal("positive override should win")
	}
}
