package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/okian/migrisk/internal/adapters/artifacts"
	"github.com/okian/migrisk/internal/adapters/http/api"
	"github.com/okian/migrisk/internal/adapters/http/swagger"
	"github.com/okian/migrisk/internal/adapters/store"
	app "github.com/okian/migrisk/internal/app"
	"github.com/okian/migrisk/internal/config"
	"github.com/okian/migrisk/internal/domain/ensemble"
	"github.com/okian/migrisk/pkg/logger"
	"github.com/okian/migrisk/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 20 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

// dotenvFiles are loaded in order; earlier files win because godotenv
// never overrides variables that are already set.
var dotenvFiles = []string{".env.local", ".env"}

func main() {
	if err := loadDotenv(dotenvFiles...); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "failed to load .env: "+err.Error())
		os.Exit(1)
	}

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		stop()
		os.Exit(1)
	}
}

// loadDotenv loads each file that exists into the process environment.
func loadDotenv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

// run loads configuration, builds the service and serves HTTP until ctx
// ends, then drains the ingestion queue.
func run(ctx context.Context) error {
	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	arts, err := artifacts.Load(cfg.ModelsPath)
	if err != nil {
		return fmt.Errorf("failed to load model artifacts: %w", err)
	}
	scorer, err := ensemble.NewScorer(arts, ensemble.WithModelVersion(cfg.ModelVersion))
	if err != nil {
		return fmt.Errorf("failed to build scorer: %w", err)
	}

	st, err := newStore(ctx, cfg, log)
	if err != nil {
		return err
	}

	svc := app.New(scorer, st,
		app.WithLogger(log.Named("service")),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithModelVersion(cfg.ModelVersion),
	)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}

	handler, err := newHandler(ctx, cfg, svc, log)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info(gctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		startSystemMetricsUpdater(gctx)
		return nil
	})
	g.Go(func() error {
		startServiceMetricsUpdater(gctx, svc)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info(gctx, "shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), time.Duration(cfg.ShutdownTimeoutS)*time.Second)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown failed: %w", err))
		}
		if err := svc.Stop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("service shutdown failed: %w", err))
		}
		return errors.Join(errs...)
	})

	err = g.Wait()
	log.Info(ctx, "server stopped")
	return err
}

// newStore returns the Firebase store when store_url is set, otherwise an
// in-process store.
func newStore(ctx context.Context, cfg *config.Config, log logger.Logger) (store.EventStore, error) {
	if cfg.StoreURL == "" {
		log.Warn(ctx, "store_url not set; events are kept in memory and lost on restart")
		return store.NewMemoryStore(), nil
	}

	opts := []store.Option{
		store.WithAuthToken(cfg.StoreAuthToken),
		store.WithTimeout(time.Duration(cfg.StoreTimeoutMS) * time.Millisecond),
		store.WithBreakerFailures(uint32(cfg.StoreBreakerFailures)), //nolint:gosec // validated positive
		store.WithLogger(log.Named("store")),
	}
	if cfg.StoreRatePerSec > 0 {
		burst := int(cfg.StoreRatePerSec)
		if burst < 1 {
			burst = 1
		}
		opts = append(opts, store.WithRateLimit(cfg.StoreRatePerSec, burst))
	}

	fb, err := store.NewFirebaseStore(cfg.StoreURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create event store: %w", err)
	}
	log.Info(ctx, "using firebase event store", logger.String("store_url", cfg.StoreURL))
	return fb, nil
}

// newHandler builds the chi router with the API and its docs.
func newHandler(ctx context.Context, cfg *config.Config, svc *app.Service, log logger.Logger) (http.Handler, error) {
	r := chi.NewRouter()

	apiServer := api.NewServer(svc,
		api.WithLogger(log.Named("api")),
		api.WithMiddlewareConfig(api.MiddlewareConfig{
			CORSAllowedOrigins: cfg.CORSAllowedOrigins,
			CORSMaxAge:         api.DefaultMiddlewareConfig().CORSMaxAge,
			RateLimitRequests:  cfg.RateLimitRequests,
			RateLimitWindow:    time.Duration(cfg.RateLimitWindowS) * time.Second,
		}),
	)
	apiServer.Register(ctx, r)

	if err := swagger.Register(ctx, r); err != nil {
		return nil, fmt.Errorf("failed to register api docs: %w", err)
	}
	return r, nil
}

// startSystemMetricsUpdater updates process metrics until ctx ends.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater updates service metrics until ctx ends.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(svc)
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

// updateServiceMetrics publishes queue and worker figures from service stats.
func updateServiceMetrics(svc *app.Service) {
	stats := svc.GetStats()
	metrics.UpdateQueueSize(stats.QueueLength)
	metrics.UpdateQueueCapacity(stats.QueueCapacity)
	if stats.QueueCapacity > 0 {
		metrics.UpdateQueueUtilization(float64(stats.QueueLength) / float64(stats.QueueCapacity))
	}
	if stats.Started {
		metrics.UpdateWorkerActiveCount(stats.Workers)
	}
}
