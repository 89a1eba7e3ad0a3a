package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cvtailor/cvtailor/internal/api"
	"github.com/cvtailor/cvtailor/internal/config"
	"github.com/cvtailor/cvtailor/internal/formscan"
	"github.com/cvtailor/cvtailor/internal/llm"
	"github.com/cvtailor/cvtailor/internal/observability"
	"github.com/cvtailor/cvtailor/internal/repository/postgres"
	rediscache "github.com/cvtailor/cvtailor/internal/repository/redis"
	"github.com/cvtailor/cvtailor/internal/storage"
	"github.com/cvtailor/cvtailor/internal/temporal"
)

func main() {
	// A missing .env is fine; the environment may already be set
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := initLogger(string(cfg.Env), cfg.LogLevel)
	defer logger.Sync()

	logger.Info("Starting cvtailor API",
		zap.String("version", cfg.App.Version),
		zap.String("environment", string(cfg.Env)),
	)

	metrics := observability.NewMetrics("cvtailor")
	routerCfg := api.RouterConfig{
		Metrics:        metrics,
		Logger:         logger,
		ScanTimeout:    cfg.Scan.Timeout,
		ScanCacheTTL:   cfg.Redis.ScanCacheTTL,
		MaxBatchURLs:   cfg.Scan.MaxBatchURLs,
		MaxRequestSize: cfg.Server.MaxRequestSize,
		RequestTimeout: cfg.Server.WriteTimeout,
		EnableCORS:     cfg.Security.CORSEnabled,
		AllowedOrigins: cfg.Security.CORSAllowedOrigins,
	}
	if cfg.RateLimits.Enabled {
		routerCfg.RateLimit = cfg.RateLimits.RequestsPerMin
	}

	// Connect to PostgreSQL (optional scan history)
	if cfg.Database.Enabled {
		db, err := postgres.New(cfg.Database)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()
		logger.Info("Connected to PostgreSQL",
			zap.String("host", cfg.Database.Host),
			zap.Int("port", cfg.Database.Port),
		)
		routerCfg.DB = db
		routerCfg.History = postgres.NewRepositories(db.DB).Scans
	}

	// Connect to Redis (optional)
	cache, err := rediscache.New(cfg.Redis)
	if err != nil {
		logger.Warn("Failed to connect to Redis, caching and resume store disabled", zap.Error(err))
	} else {
		defer cache.Close()
		logger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr()))
		routerCfg.Cache = cache
	}

	// Connect to MinIO (optional snapshot archive)
	if cfg.S3.Enabled {
		snapshots, err := storage.NewSnapshotStore(cfg.S3)
		if err != nil {
			logger.Fatal("Failed to create snapshot store", zap.Error(err))
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = snapshots.EnsureBucket(ctx)
		cancel()
		if err != nil {
			logger.Warn("Snapshot bucket unavailable, archiving disabled", zap.Error(err))
		} else {
			routerCfg.Snapshots = snapshots
			logger.Info("Snapshot archive ready", zap.String("bucket", cfg.S3.Bucket))
		}
	}

	// Connect to Temporal (optional batch scans)
	if cfg.Temporal.Enabled {
		temporalClient, err := temporal.NewClient(cfg.Temporal, logger)
		if err != nil {
			logger.Warn("Failed to connect to Temporal, batch scans disabled", zap.Error(err))
		} else {
			defer temporalClient.Close()
			logger.Info("Connected to Temporal",
				zap.String("address", cfg.Temporal.Address()),
				zap.String("namespace", cfg.Temporal.Namespace),
			)
			routerCfg.Temporal = temporalClient
			routerCfg.TaskQueue = temporalClient.TaskQueue()
		}
	}

	// LLM provider for /api/tailor
	var rdb *redis.Client
	if cache != nil {
		rdb = cache.Client()
	}
	provider, err := llm.NewProvider(cfg, rdb, metrics, logger)
	if err != nil {
		logger.Fatal("Failed to create LLM provider", zap.Error(err))
	}
	routerCfg.LLM = provider
	logger.Info("LLM provider ready",
		zap.String("provider", provider.Name()),
		zap.String("model", provider.Model()),
	)

	routerCfg.Scanner = formscan.NewScanner(cfg.Scan.Options(), logger, formscan.WithRecorder(metrics))
	router := api.NewRouter(routerCfg)

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("API server listening", zap.String("addr", server.Addr))
		if cfg.Security.TLSEnabled {
			serverErrors <- server.ListenAndServeTLS(cfg.Security.TLSCertFile, cfg.Security.TLSKeyFile)
			return
		}
		serverErrors <- server.ListenAndServe()
	}()

	// Wait for shutdown signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server error", zap.Error(err))
		}

	case sig := <-shutdown:
		logger.Info("Shutdown signal received", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Graceful shutdown failed, forcing close", zap.Error(err))
			server.Close()
		}

		logger.Info("Server stopped gracefully")
	}
}

// initLogger creates a configured zap logger
func initLogger(env, level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if env == string(config.EnvProduction) {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapCfg.Level = zap.NewAtomicLevelAt(zapLevel)

	logger, err := zapCfg.Build()
	if err != nil {
		// Fall back to basic logger
		logger, _ = zap.NewProduction()
	}

	return logger
}
