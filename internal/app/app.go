package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/poppopjmp/spiderfoot-sub001/internal/config"
	"github.com/poppopjmp/spiderfoot-sub001/internal/database"
	"github.com/poppopjmp/spiderfoot-sub001/internal/event"
	"github.com/poppopjmp/spiderfoot-sub001/internal/export"
	"github.com/poppopjmp/spiderfoot-sub001/internal/handler"
	"github.com/poppopjmp/spiderfoot-sub001/internal/metrics"
	"github.com/poppopjmp/spiderfoot-sub001/internal/provider"
	"github.com/poppopjmp/spiderfoot-sub001/internal/repository"
	"github.com/poppopjmp/spiderfoot-sub001/internal/retention"
	"github.com/poppopjmp/spiderfoot-sub001/internal/router"
	"github.com/poppopjmp/spiderfoot-sub001/internal/service"
)

// App wires the retention engine, its stores and the HTTP surface.
type App struct {
	cfg        *config.Config
	db         *database.DB
	server     *http.Server
	engine     *retention.Engine
	sweeper    *retention.Sweeper
	aggregator *retention.Aggregator
	bus        *event.InMemoryBus

	sweepCancel context.CancelFunc
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := database.New(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, err
	}

	if err := db.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	ruleRepo := repository.NewRuleRepository(db.Pool)
	runRepo := repository.NewRunRepository(db.Pool)
	resources := provider.NewPostgresProvider(db.Pool)

	sink, err := buildSink(ctx, cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	bus := event.NewBus()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	engine := retention.NewEngine(ruleRepo, runRepo, resources, sink, bus, m, retention.Config{
		MaxConcurrentRuns: cfg.MaxConcurrentRuns,
		RunTimeout:        cfg.RunTimeout,
	})

	sweeper := retention.NewSweeper(engine, cfg.SweepSchedule)

	aggregator := retention.NewAggregator(ruleRepo, runRepo)
	aggregator.Watch(bus)

	svc := service.NewRetentionService(ruleRepo, runRepo, engine, aggregator, sweeper, bus)

	handlers := router.Handlers{
		Rules: handler.NewRulesHandler(svc),
		Runs:  handler.NewRunsHandler(svc),
		Stats: handler.NewStatsHandler(svc),
	}

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router.New(cfg, db, registry, handlers),
		ReadHeaderTimeout: cfg.ServerReadHeaderTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	return &App{
		cfg:        cfg,
		db:         db,
		server:     server,
		engine:     engine,
		sweeper:    sweeper,
		aggregator: aggregator,
		bus:        bus,
	}, nil
}

func buildSink(ctx context.Context, cfg *config.Config) (export.Sink, error) {
	switch cfg.ExportSink {
	case "s3":
		return export.NewS3Sink(ctx, export.S3Config{
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			Prefix:       cfg.S3Prefix,
			Endpoint:     cfg.S3Endpoint,
			UsePathStyle: cfg.S3PathStyle,
		})
	default:
		return export.NewFSSink(cfg.ExportRoot)
	}
}

// Start runs the HTTP server and the sweep scheduler. It blocks until the
// server stops.
func (a *App) Start() error {
	sweepCtx, cancel := context.WithCancel(context.Background())
	a.sweepCancel = cancel

	if err := a.sweeper.Start(sweepCtx); err != nil {
		cancel()
		return err
	}

	slog.Info("server starting", "port", a.cfg.ServerPort, "export_sink", a.cfg.ExportSink)
	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

// Shutdown stops accepting traffic, lets in-flight runs finalize and
// releases every resource.
func (a *App) Shutdown(ctx context.Context) error {
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	err := a.server.Shutdown(shutdownCtx)

	if a.sweepCancel != nil {
		a.sweepCancel()
	}
	a.sweeper.Stop()
	a.engine.Stop()
	a.aggregator.Close()
	a.bus.Close()
	a.db.Close()

	slog.Info("shutdown complete")
	return err
}
