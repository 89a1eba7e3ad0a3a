package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cvtailor/cvtailor/internal/activities/scan"
	"github.com/cvtailor/cvtailor/internal/browser"
	"github.com/cvtailor/cvtailor/internal/config"
	"github.com/cvtailor/cvtailor/internal/formscan"
	"github.com/cvtailor/cvtailor/internal/repository/postgres"
	rediscache "github.com/cvtailor/cvtailor/internal/repository/redis"
	"github.com/cvtailor/cvtailor/internal/storage"
	"github.com/cvtailor/cvtailor/internal/temporal"
	"github.com/cvtailor/cvtailor/internal/workflows"
)

func main() {
	_ = godotenv.Load()

	// The worker never calls an LLM, so the provider keys are not required
	cfg, err := config.LoadWithDefaults()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(string(cfg.Env))
	defer logger.Sync()

	logger.Info("Starting cvtailor worker",
		zap.String("version", cfg.App.Version),
		zap.String("environment", string(cfg.Env)),
		zap.String("temporal_address", cfg.Temporal.Address()),
		zap.String("namespace", cfg.Temporal.Namespace),
		zap.String("task_queue", cfg.Temporal.TaskQueue),
	)

	c, err := temporal.NewClient(cfg.Temporal, logger)
	if err != nil {
		logger.Fatal("Failed to create Temporal client", zap.Error(err))
	}
	defer c.Close()

	logger.Info("Connected to Temporal server")

	b, err := browser.Launch(cfg.Browser, logger)
	if err != nil {
		logger.Fatal("Failed to launch browser", zap.Error(err))
	}
	defer b.Close()

	activityCfg := scan.Config{
		Open:    scan.BrowserOpener(b),
		Scanner: formscan.NewScanner(cfg.Scan.Options(), logger),
	}

	// Optional collaborators
	if cfg.Database.Enabled {
		db, err := postgres.New(cfg.Database)
		if err != nil {
			logger.Warn("Failed to connect to database, scan history disabled", zap.Error(err))
		} else {
			defer db.Close()
			activityCfg.History = postgres.NewRepositories(db.DB).Scans
		}
	}

	cache, err := rediscache.New(cfg.Redis)
	if err != nil {
		logger.Warn("Failed to connect to Redis, batch scans run without resumes", zap.Error(err))
	} else {
		defer cache.Close()
		activityCfg.Resumes = cache
	}

	if cfg.S3.Enabled {
		snapshots, err := storage.NewSnapshotStore(cfg.S3)
		if err != nil {
			logger.Warn("Failed to create snapshot store, archiving disabled", zap.Error(err))
		} else {
			activityCfg.Snapshots = snapshots
		}
	}

	scanActivity, err := scan.NewActivity(activityCfg, logger)
	if err != nil {
		logger.Fatal("Failed to create scan activity", zap.Error(err))
	}

	// Pages of one batch are scanned in order, so activity concurrency only
	// spreads separate batches over the browser.
	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     cfg.Temporal.WorkerCount,
		MaxConcurrentWorkflowTaskExecutionSize: cfg.Temporal.WorkerCount,
	})

	w.RegisterWorkflow(workflows.BatchScanWorkflow)
	scan.RegisterActivities(w, scanActivity)

	logger.Info("Registered workflows and activities",
		zap.Int("activity_count", 1),
		zap.Int("workflow_count", 1),
	)

	workerErrors := make(chan error, 1)
	go func() {
		workerErrors <- w.Run(worker.InterruptCh())
	}()

	logger.Info("Worker started successfully",
		zap.String("task_queue", cfg.Temporal.TaskQueue),
	)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-workerErrors:
		if err != nil {
			logger.Fatal("Worker error", zap.Error(err))
		}

	case sig := <-shutdown:
		logger.Info("Shutdown signal received", zap.String("signal", sig.String()))
		w.Stop()
		logger.Info("Worker stopped gracefully")
	}
}

func initLogger(env string) *zap.Logger {
	var zapCfg zap.Config
	if env == string(config.EnvProduction) {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	logger, err := zapCfg.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}

	return logger
}
