// ProcureSight - Dispute-risk scoring for public procurements.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensource-finance/procuresight/internal/api"
	"github.com/opensource-finance/procuresight/internal/assess"
	"github.com/opensource-finance/procuresight/internal/bus"
	"github.com/opensource-finance/procuresight/internal/cache"
	"github.com/opensource-finance/procuresight/internal/config"
	"github.com/opensource-finance/procuresight/internal/domain"
	"github.com/opensource-finance/procuresight/internal/repository"
	"github.com/opensource-finance/procuresight/internal/rules"
	"github.com/opensource-finance/procuresight/internal/sample"
	"github.com/opensource-finance/procuresight/internal/telemetry"
	"github.com/opensource-finance/procuresight/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	envFile := flag.String("env", ".env", "Environment file to load before reading PROCURESIGHT_* variables")
	seed := flag.Bool("seed", false, "Import the generated demo corpus before serving")
	importPath := flag.String("import", "", "Import a fixture JSON file before serving")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	slog.Info("starting procuresight",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"async_worker", cfg.Engine.AsyncWorker,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	tel, err := telemetry.Setup(ctx, cfg.Tracing, Version, logger)
	if err != nil {
		slog.Error("failed to initialize telemetry", "error", err)
		os.Exit(1)
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := tel.Shutdown(flushCtx); err != nil {
			slog.Warn("telemetry flush failed", "error", err)
		}
	}()

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	if err := importFixture(ctx, repo, *seed, *importPath); err != nil {
		slog.Error("failed to import fixture", "error", err)
		os.Exit(1)
	}

	catalog, err := loadCatalog(cfg.Engine.CatalogPath)
	if err != nil {
		slog.Error("failed to load compliance catalog", "error", err, "path", cfg.Engine.CatalogPath)
		os.Exit(1)
	}

	assessor, err := assess.New(catalog, cfg.Engine, logger)
	if err != nil {
		slog.Error("failed to initialize assessor", "error", err)
		os.Exit(1)
	}

	snap, err := repo.LoadSnapshot(ctx)
	switch {
	case errors.Is(err, repository.ErrEmpty):
		slog.Warn("no snapshot imported - start with --seed or --import, then POST /admin/reload")
	case err != nil:
		slog.Error("failed to load snapshot", "error", err)
		os.Exit(1)
	default:
		if err := assessor.Load(snap); err != nil {
			slog.Error("failed to load snapshot", "error", err, "version", snap.Version)
			os.Exit(1)
		}
		slog.Info("snapshot loaded",
			"version", snap.Version,
			"records", snap.Len(),
			"rules_count", assessor.Engine().RulesCount(),
		)
	}

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type, "two_phase", cfg.Cache.EnableTwoPhase)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	var asyncWorker *worker.Worker
	if cfg.Engine.AsyncWorker {
		asyncWorker = worker.NewWorker(busImpl, assessor, cacheImpl, logger)
		workerCfg := worker.Config{
			WorkerCount: cfg.Engine.WorkerConcurrency,
			CacheTTL:    cfg.Engine.AssessmentTTL,
		}
		if err := asyncWorker.Start(workerCfg); err != nil {
			slog.Error("failed to start async worker", "error", err)
			asyncWorker = nil
		} else {
			slog.Info("async worker started", "workers", cfg.Engine.WorkerConcurrency)
		}
	}

	srv := api.NewServer(cfg.Server, api.Deps{
		Assessor: assessor,
		Source:   repo,
		Cache:    cacheImpl,
		Bus:      busImpl,
		CacheTTL: cfg.Engine.AssessmentTTL,
		Version:  Version,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("procuresight is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version, assessor.Version())

	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop the worker before the bus it consumes from.
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("procuresight shutdown complete")
}

func newLogger(cfg domain.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// importFixture replaces the stored snapshot when --seed or --import is set.
// --import wins when both are given.
func importFixture(ctx context.Context, repo *repository.SQLRepository, seed bool, path string) error {
	var (
		f   *domain.Fixture
		err error
	)
	switch {
	case path != "":
		f, err = repository.ReadFixtureFile(path)
		if err != nil {
			return err
		}
	case seed:
		f = sample.Fixture(sample.DefaultSize)
	default:
		return nil
	}

	if err := repo.Import(ctx, f); err != nil {
		return err
	}
	slog.Info("fixture imported", "version", f.Version, "records", len(f.Records))
	return nil
}

func loadCatalog(path string) (*rules.Catalog, error) {
	if path == "" {
		return rules.DefaultCatalog()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return rules.LoadCatalog(data)
}

func printBanner(cfg *domain.Config, version, snapshot string) {
	if snapshot == "" {
		snapshot = "(none)"
	}
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║              PROCURESIGHT                 ║")
	fmt.Println("  ║     Procurement Dispute-Risk Engine       ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Snapshot: %s\n", snapshot)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    GET  /procurements/{id}/assessment    - Full risk assessment")
	fmt.Println("    POST /procurements/{id}/assessment    - Queue an assessment")
	fmt.Println("    GET  /procurements/{id}/contributions - Feature attribution")
	fmt.Println("    GET  /procurements/{id}/findings      - Compliance findings")
	fmt.Println("    GET  /procurements/{id}/quality       - Quality rubric")
	fmt.Println("    GET  /procurements/{id}/actions       - Recommendations")
	fmt.Println("    GET  /procurements/{id}/comparables   - Similar procurements")
	fmt.Println("    GET  /comparables                     - Ad-hoc comparable search")
	fmt.Println("    GET  /sectors/{sector}/benchmark      - Sector benchmark")
	fmt.Println("    GET  /buyers/{name}/benchmark         - Buyer vs sector")
	fmt.Println("    GET  /rules                           - Compliance rules")
	fmt.Println("    POST /rules/validate                  - Validate a watch rule")
	fmt.Println("    POST /admin/reload                    - Reload the snapshot")
	fmt.Println("    GET  /health                          - Health check")
	fmt.Println()
}
