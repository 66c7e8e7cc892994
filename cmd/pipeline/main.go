package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/shiplinehq/shipline/internal/batch"
	"github.com/shiplinehq/shipline/internal/ingest"
	"github.com/shiplinehq/shipline/internal/pipeline"
	"github.com/shiplinehq/shipline/internal/rules"
	"github.com/shiplinehq/shipline/pkg/config"
	"github.com/shiplinehq/shipline/pkg/db"
	"github.com/shiplinehq/shipline/pkg/logger"
	"github.com/shiplinehq/shipline/pkg/metrics"
	"github.com/shiplinehq/shipline/pkg/migrate"
	"github.com/shiplinehq/shipline/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "pipeline"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	snapshotPath := flag.String("snapshot", "", "path to the order snapshot CSV")
	flag.Parse()
	if *snapshotPath == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "pipeline",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	met := metrics.NewPipelineMetrics(prometheus.DefaultRegisterer)

	lock, err := pipeline.NewRunLock(logg, redisClient, cfg.App.Env, cfg.Pipeline.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create run lock", err)
		os.Exit(1)
	}

	loader, err := batch.New(logg, met, batch.OptionsFromConfig(cfg.Batch))
	if err != nil {
		logg.Error(context.Background(), "failed to create batch loader", err)
		os.Exit(1)
	}

	ingestor, err := ingest.NewIngestor(logg, dbClient, loader, ingest.DefaultColumnMapping())
	if err != nil {
		logg.Error(context.Background(), "failed to create ingestor", err)
		os.Exit(1)
	}

	rulesLoader, err := rules.NewLoader(dbClient.DB())
	if err != nil {
		logg.Error(context.Background(), "failed to create rules loader", err)
		os.Exit(1)
	}

	service, err := pipeline.New(logg, dbClient, lock, rulesLoader, ingestor, loader, met, cfg.Pipeline)
	if err != nil {
		logg.Error(context.Background(), "failed to create pipeline service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"snapshot": *snapshotPath,
	})

	ops := newOpsServer(logg, cfg.App.OpsAddr, dbClient, redisClient)
	ops.Start(ctx)
	defer ops.Stop()

	logg.Info(ctx, "starting pipeline run")
	report, err := service.Run(ctx, newCSVSource(*snapshotPath))
	if err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "pipeline run failed", err)
		os.Exit(1)
	}

	if report != nil {
		failed := 0
		for _, stage := range report.Stages {
			failed += stage.ChunksFailed
		}
		if failed > 0 {
			logg.Warn(ctx, fmt.Sprintf("run finished with %d failed chunks, consider a re-run", failed))
		}
	}
	logg.Info(ctx, "pipeline run finished")
}
