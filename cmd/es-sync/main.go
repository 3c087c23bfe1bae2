package main

// @title           ES Sync API
// @version         1.0
// @description     Keeps search indexes in step with relational form tables. Trigger syncs, poll or stream their progress, and inspect the configured sources.

// @host      localhost:8080
// @BasePath  /api/v1
// @schemes   http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT Bearer token. Format: "Bearer {token}"

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/h10086733/es-admin-sub000/internal/adapters/driven/auth"
	"github.com/h10086733/es-admin-sub000/internal/adapters/driven/catalog"
	"github.com/h10086733/es-admin-sub000/internal/adapters/driven/elasticsearch"
	"github.com/h10086733/es-admin-sub000/internal/adapters/driven/memory"
	"github.com/h10086733/es-admin-sub000/internal/adapters/driven/metrics"
	redisadapter "github.com/h10086733/es-admin-sub000/internal/adapters/driven/redis"
	"github.com/h10086733/es-admin-sub000/internal/adapters/driven/sqlstore"
	"github.com/h10086733/es-admin-sub000/internal/adapters/driving/http"
	"github.com/h10086733/es-admin-sub000/internal/config"
	"github.com/h10086733/es-admin-sub000/internal/core/ports/driven"
	"github.com/h10086733/es-admin-sub000/internal/core/ports/driving"
	"github.com/h10086733/es-admin-sub000/internal/core/services"
)

var version = "dev"

func main() {
	// serve (default): HTTP API plus scheduler
	// sync [source...]: run one pass for the given sources (or all) and exit
	mode := "serve"
	var args []string
	if len(os.Args) > 1 {
		mode = os.Args[1]
		args = os.Args[2:]
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	logger.Info("es-sync starting", "version", version, "mode", mode)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// ===== Relational store =====
	dbConfig := sqlstore.Config{
		Driver:          sqlstore.Driver(cfg.DBDriver),
		URL:             cfg.DatabaseURL,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}
	db, err := sqlstore.Connect(ctx, dbConfig)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("database connected", "driver", db.Driver())
	rowStore := sqlstore.NewRowStore(db)

	// ===== Search cluster =====
	searchConfig := elasticsearch.DefaultConfig(cfg.SearchURL)
	searchConfig.Username = cfg.SearchUsername
	searchConfig.Password = cfg.SearchPassword
	searchIndex, err := elasticsearch.NewSearchIndex(searchConfig)
	if err != nil {
		log.Fatalf("Invalid search configuration: %v", err)
	}
	if err := searchIndex.HealthCheck(ctx); err != nil {
		logger.Warn("search health check failed, syncs will fail until the cluster is reachable", "error", err)
	} else {
		logger.Info("search cluster connected", "url", cfg.SearchURL)
	}

	// ===== Source catalog =====
	sources, err := catalog.Load(cfg.SourcesFile)
	if err != nil {
		log.Fatalf("Failed to load sources: %v", err)
	}

	// ===== Distributed lock (Redis if configured, otherwise database locks) =====
	lock, closeLock := newLock(ctx, cfg, db, logger)
	defer closeLock()

	recorder := metrics.NewPrometheusRecorder()

	orchestrator := services.NewSyncOrchestrator(services.SyncOrchestratorConfig{
		Catalog: sources,
		Store:   rowStore,
		Index:   searchIndex,
		Lock:    lock,
		Metrics: recorder,
		Reference: services.ReferenceConfig{
			Table:      cfg.ReferenceTable,
			IDColumn:   cfg.ReferenceIDColumn,
			NameColumn: cfg.ReferenceNameColumn,
		},
		IndexPrefix:            cfg.IndexPrefix,
		BatchSize:              cfg.BatchSize,
		BulkSize:               cfg.BulkSize,
		MaxConsecutiveFailures: cfg.BulkMaxConsecutiveFailures,
		ScrollPageSize:         cfg.ScrollPageSize,
		ProgressLogEvery:       cfg.ProgressLogEvery,
		Logger:                 logger,
	})

	switch mode {
	case "serve":
		runServe(ctx, cfg, logger, serveDeps{
			catalog:      sources,
			orchestrator: orchestrator,
			lock:         lock,
			recorder:     recorder,
			checks: map[string]http.Pinger{
				"database": db,
				"search":   http.PingerFunc(searchIndex.HealthCheck),
				"lock":     lock,
			},
		})
	case "sync":
		if err := runOnce(ctx, orchestrator, args, logger); err != nil {
			logger.Error("sync failed", "error", err)
			os.Exit(1)
		}
	default:
		log.Fatalf("Unknown mode: %s (use: serve or sync)", mode)
	}
}

// newLock picks the lock backend. The returned func releases backend resources.
func newLock(ctx context.Context, cfg *config.Config, db *sqlstore.DB, logger *slog.Logger) (driven.DistributedLock, func()) {
	if cfg.RedisURL != "" {
		client, err := redisadapter.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		logger.Info("using Redis distributed lock")
		return redisadapter.NewLock(redisadapter.LockConfig{Client: client}), func() { client.Close() }
	}

	lock := sqlstore.NewAdvisoryLock(db)
	if err := lock.Ping(ctx); err != nil {
		logger.Warn("database locks unavailable, falling back to in-process lock", "error", err)
		return memory.NewLock(), func() {}
	}
	logger.Info("using database advisory lock", "driver", db.Driver())
	return lock, func() {}
}

type serveDeps struct {
	catalog      *catalog.Catalog
	orchestrator driving.SyncOrchestrator
	lock         driven.DistributedLock
	recorder     *metrics.PrometheusRecorder
	checks       map[string]http.Pinger
}

func runServe(ctx context.Context, cfg *config.Config, logger *slog.Logger, deps serveDeps) {
	// Runs outlive the request that started them but not the process
	runCtx, cancelRuns := context.WithCancel(context.Background())
	defer cancelRuns()

	tracker := services.NewTaskTracker(services.TaskTrackerConfig{
		Orchestrator: deps.orchestrator,
		BaseContext:  runCtx,
		Retention:    cfg.TaskRetention,
		Logger:       logger,
	})

	var scheduler *services.Scheduler
	if cfg.SchedulerEnabled {
		scheduler = services.NewScheduler(services.SchedulerConfig{
			Catalog:      deps.catalog,
			Tracker:      tracker,
			Lock:         deps.lock,
			Logger:       logger,
			Interval:     cfg.SchedulerInterval,
			LockRequired: true,
		})
		if err := scheduler.Start(ctx); err != nil {
			log.Fatalf("Failed to start scheduler: %v", err)
		}
		logger.Info("scheduler enabled", "interval", cfg.SchedulerInterval)
	} else {
		logger.Info("scheduler disabled via SCHEDULER_ENABLED=false")
	}

	var verifier *auth.Verifier
	if cfg.JWTSecret != "" {
		verifier = auth.NewVerifier(cfg.JWTSecret)
	} else {
		logger.Warn("JWT_SECRET not set, API endpoints are unauthenticated")
	}

	httpConfig := http.DefaultConfig()
	httpConfig.Port = cfg.Port
	httpConfig.Version = version
	httpConfig.StreamIdleTimeout = cfg.StreamIdleTimeout
	httpConfig.Logger = logger

	httpDeps := http.Deps{
		Catalog: deps.catalog,
		Tracker: tracker,
		Metrics: deps.recorder.Handler(),
		Checks:  deps.checks,
	}
	if verifier != nil {
		httpDeps.Verifier = verifier
	}
	server := http.NewServer(httpConfig, httpDeps)

	// SIGHUP reloads the source catalog; a bad file keeps the current sources
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				if err := deps.catalog.Reload(); err != nil {
					logger.Error("failed to reload sources", "error", err)
					continue
				}
				logger.Info("sources reloaded")
			}
		}
	}()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("API server starting", "port", cfg.Port)
		serverErr <- server.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping")
	case err := <-serverErr:
		if err != nil {
			logger.Error("server error", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	if scheduler != nil {
		scheduler.Stop()
	}

	// Give in-flight runs the rest of the grace period, then cancel them
	done := make(chan struct{})
	go func() {
		tracker.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("cancelling unfinished sync runs")
		cancelRuns()
		<-done
	}
	logger.Info("stopped")
}

// runOnce syncs the named sources, or every source, in the foreground.
func runOnce(ctx context.Context, orchestrator driving.SyncOrchestrator, args []string, logger *slog.Logger) error {
	full := false
	var ids []string
	for _, arg := range args {
		if arg == "--full" {
			full = true
			continue
		}
		ids = append(ids, arg)
	}

	if len(ids) == 0 {
		results, err := orchestrator.SyncAll(ctx, full)
		if err != nil {
			return err
		}
		var failed []string
		for _, r := range results {
			logger.Info("sync finished", "source_id", r.SourceID, "success", r.Success, "processed", r.Count(), "message", r.Message)
			if !r.Success {
				failed = append(failed, r.SourceID)
			}
		}
		if len(failed) > 0 {
			return fmt.Errorf("%d of %d sources failed: %v", len(failed), len(results), failed)
		}
		return nil
	}

	var errs []error
	for _, id := range ids {
		result, err := orchestrator.SyncSource(ctx, id, driving.SyncOptions{FullSync: full})
		if err != nil {
			errs = append(errs, fmt.Errorf("source %s: %w", id, err))
			continue
		}
		logger.Info("sync finished", "source_id", id, "success", result.Success, "processed", result.Count(),
			"rate", fmt.Sprintf("%.1f rows/s", result.Rate), "message", result.Message)
		if !result.Success {
			errs = append(errs, fmt.Errorf("source %s: %s", id, result.Message))
		}
	}
	return errors.Join(errs...)
}
