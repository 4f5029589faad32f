package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"price-high-alerts/internal/alerting"
	"price-high-alerts/internal/breakthrough"
	"price-high-alerts/internal/config"
	"price-high-alerts/internal/fetcher"
	"price-high-alerts/internal/highs"
	"price-high-alerts/internal/httpapi"
	"price-high-alerts/internal/metrics"
	"price-high-alerts/internal/scheduler"
	"price-high-alerts/internal/service"
	"price-high-alerts/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newBinance(recorder *metrics.Recorder) *fetcher.Binance {
	cfg := a.Config.Binance
	return fetcher.NewBinance(fetcher.BinanceOptions{
		BaseURL:           cfg.BaseURL,
		Timeout:           cfg.RequestTimeout,
		UserAgent:         cfg.UserAgent,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
		QuoteAsset:        cfg.QuoteAsset,
		OnUsedWeight:      recorder.UsedWeight,
	}, a.Logger)
}

func (a *App) newHighs(source fetcher.CandleSource, recorder *metrics.Recorder) *highs.Service {
	cc := a.Config.Collector
	store := highs.NewStore(highs.StoreOptions{
		Path:       a.Config.SnapshotPath(),
		MaxAge:     a.Config.Cache.MaxAge,
		QuoteAsset: a.Config.Binance.QuoteAsset,
	}, a.Logger)
	collector := highs.NewCollector(source, highs.CollectorOptions{
		GroupSize:      cc.GroupSize,
		GroupDelay:     cc.GroupDelay,
		PageDelay:      cc.PageDelay,
		TimeframeDelay: cc.TimeframeDelay,
		PageLimit:      cc.PageLimit,
		Retries:        cc.Retries,
		RetryDelay:     cc.RetryDelay,
	}, recorder, a.Logger)
	return highs.NewService(store, collector, source, highs.ServiceOptions{
		Symbols:    cc.Symbols,
		Blacklist:  cc.Blacklist,
		QuoteAsset: a.Config.Binance.QuoteAsset,
	}, recorder, a.Logger)
}

// newNotifier fans out to the configured channels. Unusable channels are
// skipped with a warning; with none left alerts go to the log.
func (a *App) newNotifier(recorder *metrics.Recorder) (*alerting.MultiNotifier, func(), error) {
	cfg := a.Config.Alerting
	var channels []alerting.Channel
	closers := []func(){}

	for _, name := range cfg.Channels {
		switch name {
		case "telegram":
			if !cfg.Telegram.Enabled {
				a.Logger.Warn().Msg("telegram channel listed but alerting.telegram.enabled is false")
				continue
			}
			tg := cfg.Telegram
			channels = append(channels, alerting.Channel{
				Name:     name,
				Notifier: alerting.NewTelegramNotifier(tg.BotToken, tg.ChatID, tg.APIBase, tg.Timeout, a.Logger),
			})
		case "kafka":
			if !cfg.Kafka.Enabled {
				a.Logger.Warn().Msg("kafka channel listed but alerting.kafka.enabled is false")
				continue
			}
			writer, err := alerting.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.WriteTimeout)
			if err != nil {
				return nil, nil, err
			}
			publisher := alerting.NewKafkaPublisher(writer, cfg.Kafka.Topic, a.Logger)
			closers = append(closers, func() {
				if err := publisher.Close(); err != nil {
					a.Logger.Error().Err(err).Msg("close kafka publisher")
				}
			})
			channels = append(channels, alerting.Channel{Name: name, Notifier: publisher})
		case "log":
			channels = append(channels, alerting.Channel{Name: name, Notifier: alerting.NewLogNotifier(a.Logger)})
		default:
			return nil, nil, fmt.Errorf("unknown alerting channel %q", name)
		}
	}

	if len(channels) == 0 {
		a.Logger.Warn().Msg("no alerting channel usable, breakthroughs go to the log")
		channels = append(channels, alerting.Channel{Name: "log", Notifier: alerting.NewLogNotifier(a.Logger)})
	}

	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	return alerting.NewMultiNotifier(channels, recorder, a.Logger), closeAll, nil
}

func (a *App) newSuppressor(ctx context.Context) (*breakthrough.Suppressor, func(), error) {
	cfg := a.Config.Breakthrough
	if !cfg.SuppressRepeats {
		return nil, func() {}, nil
	}
	if cfg.TriggeredStore != "redis" {
		return breakthrough.NewSuppressor(breakthrough.NewMemorySet()), func() {}, nil
	}

	client, err := storage.NewRedisClient(ctx, a.Config.Redis)
	if err != nil {
		return nil, nil, err
	}
	set := storage.NewRedisTriggeredSet(client, a.Config.Redis.Prefix, cfg.TriggeredTTL)
	closer := func() {
		if err := client.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("close redis client")
		}
	}
	return breakthrough.NewSuppressor(set), closer, nil
}

func newRegistry() (*prometheus.Registry, *metrics.Recorder) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.New(reg)
}

// Run loads or builds the highs cache, then runs the breakthrough poller,
// the HTTP API and the scheduled refresh until interrupted.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg, recorder := newRegistry()
	binance := a.newBinance(recorder)
	highSvc := a.newHighs(binance, recorder)

	if _, err := highSvc.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize highs cache: %w", err)
	}

	backend, err := storage.Open(ctx, a.Config, a.Logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	notifier, closeNotifier, err := a.newNotifier(recorder)
	if err != nil {
		return err
	}
	defer closeNotifier()

	suppressor, closeSuppressor, err := a.newSuppressor(ctx)
	if err != nil {
		return err
	}
	defer closeSuppressor()

	detector := breakthrough.NewDetector(highSvc.Store())
	g, gctx := errgroup.WithContext(ctx)

	if a.Config.Breakthrough.Enabled {
		sched := scheduler.New(scheduler.Options{
			Interval:     a.Config.Scheduler.Interval,
			AlignToStart: a.Config.Scheduler.AlignToBucket,
			StartupDelay: a.Config.Scheduler.StartupDelay,
		}, a.Logger)
		svc := service.New(service.Options{
			LockKey:          a.Config.Scheduler.AdvisoryLockKey,
			AlertsOn:         a.Config.Alerting.Enabled,
			Channels:         notifier.Names(),
			MaxResultsPerMsg: a.Config.Breakthrough.MaxResultsPerMsg,
			EventRetention:   a.Config.Breakthrough.EventRetention,
		}, service.Dependencies{
			Scheduler:  sched,
			Detector:   detector,
			Prices:     binance,
			Alerts:     backend.Alerts,
			Events:     backend.Events,
			Notifier:   notifier,
			Suppressor: suppressor,
			Locker:     backend.Locker,
			Metrics:    recorder,
		}, a.Logger)
		g.Go(func() error { return svc.Run(gctx) })
	} else {
		a.Logger.Warn().Msg("breakthrough monitoring disabled")
	}

	if a.Config.HTTP.Enabled {
		handler := httpapi.NewHandler(highSvc, detector, binance, backend.Events, a.Logger)
		server := httpapi.NewServer(handler, httpapi.ServerOptions{
			Addr:            a.Config.HTTP.Addr,
			ShutdownTimeout: a.Config.HTTP.ShutdownTimeout,
			Gatherer:        reg,
		}, a.Logger)
		g.Go(func() error { return server.Run(gctx) })
	}

	if spec := a.Config.Collector.RefreshCron; spec != "" {
		runner := scheduler.NewCronRunner(a.Logger)
		err := runner.Add(gctx, "refresh-highs", spec, func(ctx context.Context) error {
			_, err := highSvc.CollectAll(ctx)
			return err
		})
		if err != nil {
			return err
		}
		g.Go(func() error { return runner.Run(gctx) })
	}

	a.Logger.Info().
		Int("records", highSvc.Store().Len()).
		Bool("alerts", a.Config.Alerting.Enabled).
		Strs("channels", notifier.Names()).
		Msg("starting monitoring service")

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}

// RankOptions configure the rank command.
type RankOptions struct {
	Timeframe highs.Timeframe
	Limit     int
	Furthest  bool
}

// ExportOptions hold parameters for exporting a ranking.
type ExportOptions struct {
	Timeframe highs.Timeframe
	PNGPath   string
	CSVPath   string
	MaxRows   int
}

// SimulateOptions configure a one-off breakthrough evaluation.
type SimulateOptions struct {
	Symbol    string
	Timeframe highs.Timeframe
	Price     float64
	LastCheck *float64
	Notify    bool
}
