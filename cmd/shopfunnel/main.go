package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kiln-data/shopfunnel/internal/bronze"
	corecfg "github.com/kiln-data/shopfunnel/internal/core/config"
	"github.com/kiln-data/shopfunnel/internal/core/storage/postgres"
	"github.com/kiln-data/shopfunnel/internal/migrations"
	"github.com/kiln-data/shopfunnel/internal/pipeline"
	"github.com/kiln-data/shopfunnel/internal/projection"
	"github.com/kiln-data/shopfunnel/internal/server"
)

func main() {
	configPath := flag.String("config", "shopfunnel.yaml", "Path to configuration file")
	runOnce := flag.Bool("once", false, "Run one pipeline pass and exit")
	flag.Parse()

	// 0. Initialize Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 1. Load Configuration
	cfg, err := corecfg.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded config", "config", cfg)

	// 2. Initialize Storage (PostgreSQL)
	dbAdapter, err := postgres.NewAdapter(
		cfg.Database.DSN,
		cfg.Database.MaxOpenConns,
		cfg.Database.MaxIdleConns,
	)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer dbAdapter.Close()

	// 2.1. Run Database Migrations
	if err := migrations.RunMigrations(dbAdapter.DB(), cfg.Database.AutoMigrate); err != nil {
		slog.Error("Failed to run database migrations", "error", err)
		os.Exit(1)
	}

	// 3. Initialize Pipeline
	rawStore := bronze.NewFileStore(cfg.Bronze.Path)
	eventStore := postgres.NewEventAdapter(dbAdapter.DB())
	itemStore := postgres.NewItemAdapter(dbAdapter.DB())
	factStore := postgres.NewFactAdapter(dbAdapter.DB())
	dimStore := postgres.NewDimensionAdapter(dbAdapter.DB())

	history := pipeline.NewHistory(0)
	pipe := pipeline.New(rawStore, eventStore, itemStore, factStore, dimStore, history, pipeline.Options{
		SessionGap: cfg.Pipeline.SessionGapDuration(),
		BatchSize:  cfg.Pipeline.BatchSize,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Single-pass mode for backfills and cron-driven deployments.
	if *runOnce || cfg.Pipeline.RunOnce {
		if _, err := pipe.Run(ctx); err != nil {
			slog.Error("Pipeline run failed", "error", err)
			os.Exit(1)
		}
		return
	}

	// 4. Initialize Projection (query API)
	projectionSvc := projection.NewService(postgres.NewProjectionAdapter(dbAdapter.DB()), history)

	// 5. Start Services
	runner := pipeline.NewRunner(pipe, cfg.Pipeline.IntervalDuration())
	runnerDone := make(chan error, 1)
	go func() {
		runnerDone <- runner.Start(ctx)
	}()

	// Signal handler triggers the shutdown sequence below.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		select {
		case <-quit:
			slog.Info("Signal received, shutting down...")
		case err := <-runnerDone:
			if err != nil {
				slog.Error("Pipeline runner stopped with error", "error", err)
			}
		}
		cancel()
	}()

	if cfg.Server.Enabled {
		srv := server.New(fmtAddr(cfg.Server.Host, cfg.Server.Port), dbAdapter.DB(), cfg.Server.Mode)
		projectionSvc.RegisterRoutes(srv.Engine)

		// HTTP server blocks until ctx is cancelled.
		if err := srv.Run(ctx); err != nil {
			slog.Error("Server stopped with error", "error", err)
		}
	} else {
		<-ctx.Done()
	}

	slog.Info("Shutdown complete")
}

func fmtAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
