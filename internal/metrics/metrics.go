package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "highwatcher"

// Recorder exposes collection and breakthrough metrics. A nil *Recorder is a no-op.
type Recorder struct {
	symbolsCollected *prometheus.CounterVec
	candlePages      *prometheus.CounterVec
	collectDuration  *prometheus.HistogramVec
	cacheRecords     prometheus.Gauge
	cacheSymbols     prometheus.Gauge
	usedWeight       prometheus.Gauge
	breakthroughs    *prometheus.CounterVec
	tickDuration     prometheus.Histogram
	notifyErrors     *prometheus.CounterVec
	snapshotErrors   prometheus.Counter
}

// New registers the recorder's collectors on reg.
func New(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		symbolsCollected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collector",
			Name:      "symbols_total",
			Help:      "Symbols processed by the collection pipeline by outcome",
		}, []string{"outcome"}),
		candlePages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collector",
			Name:      "candle_pages_total",
			Help:      "Candle pages requested per timeframe",
		}, []string{"timeframe"}),
		collectDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "collector",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of collection runs",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"kind"}),
		cacheRecords: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "records",
			Help:      "High-water-mark records held in memory",
		}),
		cacheSymbols: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "symbols",
			Help:      "Distinct symbols held in memory",
		}),
		usedWeight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "binance",
			Name:      "used_weight_1m",
			Help:      "Last reported rolling request weight",
		}),
		breakthroughs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "breakthrough",
			Name:      "events_total",
			Help:      "Breakthrough events fired",
		}, []string{"timeframe", "mode"}),
		tickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "breakthrough",
			Name:      "tick_duration_seconds",
			Help:      "Duration of a polling tick",
			Buckets:   prometheus.DefBuckets,
		}),
		notifyErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerting",
			Name:      "errors_total",
			Help:      "Notification delivery failures",
		}, []string{"channel"}),
		snapshotErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "snapshot_errors_total",
			Help:      "Failed snapshot writes",
		}),
	}
}

func (r *Recorder) SymbolCollected(outcome string) {
	if r == nil {
		return
	}
	r.symbolsCollected.WithLabelValues(outcome).Inc()
}

func (r *Recorder) CandlePage(timeframe string) {
	if r == nil {
		return
	}
	r.candlePages.WithLabelValues(timeframe).Inc()
}

func (r *Recorder) CollectDuration(kind string, seconds float64) {
	if r == nil {
		return
	}
	r.collectDuration.WithLabelValues(kind).Observe(seconds)
}

func (r *Recorder) CacheSize(records, symbols int) {
	if r == nil {
		return
	}
	r.cacheRecords.Set(float64(records))
	r.cacheSymbols.Set(float64(symbols))
}

func (r *Recorder) UsedWeight(weight int) {
	if r == nil {
		return
	}
	r.usedWeight.Set(float64(weight))
}

func (r *Recorder) Breakthrough(timeframe, mode string) {
	if r == nil {
		return
	}
	r.breakthroughs.WithLabelValues(timeframe, mode).Inc()
}

func (r *Recorder) TickDuration(seconds float64) {
	if r == nil {
		return
	}
	r.tickDuration.Observe(seconds)
}

func (r *Recorder) NotifyError(channel string) {
	if r == nil {
		return
	}
	r.notifyErrors.WithLabelValues(channel).Inc()
}

func (r *Recorder) SnapshotError() {
	if r == nil {
		return
	}
	r.snapshotErrors.Inc()
}
