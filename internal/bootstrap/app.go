// Package bootstrap assembles the lease engine process from configuration
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lease_engine/internal/core"
	"lease_engine/internal/engine"
	"lease_engine/internal/infrastructure/alarms"
	"lease_engine/internal/infrastructure/health"
	"lease_engine/internal/infrastructure/metrics"
	"lease_engine/internal/infrastructure/pricefeed"
	"lease_engine/internal/infrastructure/server"
	"lease_engine/internal/infrastructure/swap"
	"lease_engine/internal/store"
	"lease_engine/pkg/concurrency"
	"lease_engine/pkg/finance"
	"lease_engine/pkg/logging"
	"lease_engine/pkg/retry"
	"lease_engine/pkg/telemetry"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// App holds the wired process
type App struct {
	Cfg       *Config
	Logger    *logging.ZapLogger
	Telemetry *telemetry.Telemetry
	Store     store.Store
	Feed      *pricefeed.Feed
	Engine    *engine.LeaseEngine
	Health    *health.HealthManager

	timeAlarms  *alarms.TimeAlarms
	priceAlarms *alarms.PriceAlarms
	swap        *swap.PaperSwap
	pools       []*concurrency.WorkerPool
	api         *server.Server
	metrics     *metrics.Server
}

// Runner is a component that blocks until its context ends
type Runner interface {
	Run(ctx context.Context) error
}

// NewApp loads the configuration and wires every component
func NewApp(configPath string) (*App, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return NewAppFromConfig(cfg)
}

// NewAppFromConfig wires every component from an already validated config
func NewAppFromConfig(cfg *Config) (*App, error) {
	a := &App{Cfg: cfg}

	if cfg.Telemetry.EnableMetrics {
		var out io.Writer
		if cfg.Telemetry.StdoutExport {
			out = os.Stdout
		}
		tel, err := telemetry.SetupWithOptions(cfg.App.Name, telemetry.Options{TraceWriter: out, LogWriter: out})
		if err != nil {
			return nil, fmt.Errorf("telemetry: %w", err)
		}
		a.Telemetry = tel
	}

	logger, err := InitLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	a.Logger = logger

	registry, err := cfg.Registry()
	if err != nil {
		return nil, fmt.Errorf("currencies: %w", err)
	}
	terms, err := leaseTerms(cfg)
	if err != nil {
		return nil, fmt.Errorf("lease terms: %w", err)
	}

	st, err := OpenStore(cfg)
	if err != nil {
		return nil, err
	}
	a.Store = st

	a.Feed = pricefeed.New(pricefeed.Options{
		URL:            cfg.PriceFeed.URL,
		APIKey:         cfg.PriceFeed.APIKey.Reveal(),
		Freshness:      cfg.PriceFeed.Freshness,
		ReconnectDelay: cfg.PriceFeed.ReconnectDelay,
		PingInterval:   cfg.PriceFeed.PingInterval,
	}, registry, logger)
	for asset, raw := range cfg.PriceFeed.StaticPrices {
		price, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("static price %s: %w", asset, err)
		}
		if err := a.Feed.SetStatic(finance.Ticker(asset), price); err != nil {
			return nil, fmt.Errorf("static price %s: %w", asset, err)
		}
	}

	// Settlements re-enter the engine, so the swap never shares the alarm pool
	alarmPool := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "AlarmPool",
		MaxWorkers:  cfg.Concurrency.AlarmPoolSize,
		MaxCapacity: cfg.Concurrency.AlarmPoolBuffer,
	}, logger)
	swapPool := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "SwapPool",
		MaxWorkers:  cfg.Swap.PoolSize,
		MaxCapacity: cfg.Concurrency.AlarmPoolBuffer,
		NonBlocking: true,
	}, logger)
	a.pools = []*concurrency.WorkerPool{alarmPool, swapPool}

	dispatch := alarms.DispatchConfig{
		Rate:  cfg.Alarms.DispatchRate,
		Burst: cfg.Alarms.DispatchBurst,
		Retry: retry.RetryPolicy{
			MaxAttempts:    cfg.Alarms.RetryAttempts + 1,
			InitialBackoff: cfg.Alarms.RetryDelay,
			MaxBackoff:     cfg.Alarms.RetryDelay * 4,
		},
	}
	limiter := alarms.NewLimiter(dispatch)

	// The engine needs the alarm services and the services deliver to the engine
	var eng *engine.LeaseEngine
	onTime := func(ctx context.Context, id string) error {
		_, err := eng.HandleTimeAlarm(ctx, id)
		return err
	}
	onPrice := func(ctx context.Context, id string) error {
		_, err := eng.HandlePriceAlarm(ctx, id)
		return err
	}
	a.timeAlarms = alarms.NewTimeAlarms(
		alarms.NewDispatcher("time", onTime, alarmPool, limiter, dispatch, logger),
		cfg.Alarms.RearmDelay, logger)
	a.priceAlarms = alarms.NewPriceAlarms(
		alarms.NewDispatcher("price", onPrice, alarmPool, limiter, dispatch, logger), logger)
	a.Feed.OnUpdate(a.priceAlarms.OnPrice)

	a.swap = swap.NewPaperSwap(a.Feed, swapPool, cfg.Swap.Latency, logger)

	eng, err = engine.New(engine.Config{
		Terms:       terms,
		Registry:    registry,
		PriceRetry:  retry.DefaultPolicy,
		BreakerWait: 10 * time.Second,
	}, st, a.Feed, a.timeAlarms, a.priceAlarms, a.swap, logger)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	a.Engine = eng
	a.swap.OnCompleted(func(ctx context.Context, id string, res core.SwapResult) error {
		_, err := eng.OnLiquidationCompleted(ctx, id, res)
		return err
	})

	a.Health = health.NewHealthManager(logger)
	a.Health.Register("store", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		return st.Ping(ctx)
	})
	a.Health.Register("price_feed", a.Feed.Health)

	if cfg.Server.Enabled {
		a.api = server.NewServer(server.Config{
			Addr:         cfg.Server.Addr,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}, eng, a.Health, logger)
	}
	if cfg.Telemetry.EnableMetrics {
		a.metrics = metrics.NewServer(cfg.Telemetry.MetricsPort, logger)
	}

	return a, nil
}

// OpenStore opens the configured lease store
func OpenStore(cfg *Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		st, err := store.NewSQLiteStore(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("store: %w", err)
		}
		return st, nil
	default:
		return store.NewMemoryStore(), nil
	}
}

func leaseTerms(cfg *Config) (engine.Terms, error) {
	spec, err := cfg.Spec()
	if err != nil {
		return engine.Terms{}, err
	}
	interest, margin, err := cfg.Rates()
	if err != nil {
		return engine.Terms{}, err
	}
	return engine.Terms{
		Spec:           spec,
		AnnualInterest: interest,
		AnnualMargin:   margin,
		DuePeriod:      cfg.Lease.DuePeriod,
		GracePeriod:    cfg.Lease.GracePeriod,
	}, nil
}

// Run serves until SIGINT or SIGTERM
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts the background services, restores open leases and
// blocks until ctx ends or a service fails.
func (a *App) RunContext(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	a.Logger.Info("Starting lease engine", "name", a.Cfg.App.Name, "lpn", a.Cfg.App.Lpn, "store", a.Cfg.Store.Driver)

	for _, r := range []Runner{a.timeAlarms, a.priceAlarms, a.swap} {
		r := r
		g.Go(func() error {
			return r.Run(ctx)
		})
	}

	a.Feed.Start()
	if a.metrics != nil {
		a.metrics.Start()
	}

	g.Go(func() error {
		if err := a.Engine.Start(ctx); err != nil {
			return fmt.Errorf("restore leases: %w", err)
		}
		if a.api != nil {
			a.api.Start()
		}
		<-ctx.Done()
		return nil
	})

	err := g.Wait()
	a.shutdown()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error("Lease engine stopped with error", "error", err)
		return err
	}

	a.Logger.Info("Lease engine shut down gracefully")
	return nil
}

func (a *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if a.api != nil {
		if err := a.api.Stop(ctx); err != nil {
			a.Logger.Warn("API server shutdown failed", "error", err)
		}
	}
	if a.metrics != nil {
		if err := a.metrics.Stop(ctx); err != nil {
			a.Logger.Warn("Metrics server shutdown failed", "error", err)
		}
	}
	a.Feed.Stop()
	for _, p := range a.pools {
		p.Stop()
	}
	if err := a.Store.Close(); err != nil {
		a.Logger.Warn("Store close failed", "error", err)
	}
	if a.Telemetry != nil {
		if err := a.Telemetry.Shutdown(ctx); err != nil {
			a.Logger.Warn("Telemetry shutdown failed", "error", err)
		}
	}
	_ = a.Logger.Sync()
}
