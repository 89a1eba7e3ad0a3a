package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/cvtailor/cvtailor/internal/api/handlers"
	"github.com/cvtailor/cvtailor/internal/api/middleware"
	"github.com/cvtailor/cvtailor/internal/domain"
	"github.com/cvtailor/cvtailor/internal/formscan"
	"github.com/cvtailor/cvtailor/internal/llm"
	"github.com/cvtailor/cvtailor/internal/observability"
	rediscache "github.com/cvtailor/cvtailor/internal/repository/redis"
	"github.com/cvtailor/cvtailor/internal/storage"
	"github.com/cvtailor/cvtailor/pkg/httputil"
)

// HealthChecker reports whether a dependency is reachable
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Router holds the HTTP router and its dependencies
type Router struct {
	chi.Router
	logger *zap.Logger
}

// RouterConfig contains configuration for the router. Nil dependencies
// disable the routes that need them.
type RouterConfig struct {
	Scanner *formscan.Scanner
	History domain.ScanRepository
	DB      HealthChecker
	Cache   *rediscache.Cache
	// Snapshots is nil when MinIO is disabled
	Snapshots *storage.SnapshotStore
	Temporal  handlers.WorkflowClient
	TaskQueue string
	LLM       llm.Provider
	Metrics   *observability.Metrics
	Logger    *zap.Logger

	ScanTimeout    time.Duration
	ScanCacheTTL   time.Duration
	MaxBatchURLs   int
	MaxRequestSize int64
	RequestTimeout time.Duration

	EnableCORS     bool
	AllowedOrigins []string
	RateLimit      int
}

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(cfg RouterConfig) *Router {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}

	r := chi.NewRouter()

	// Base middleware stack
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewLoggingMiddleware(cfg.Logger).Handler)
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.HTTPMiddleware)
	}
	// inside logging and metrics so a recovered panic is still logged and counted
	r.Use(middleware.NewRecoveryMiddleware(cfg.Logger).WithBareError("/api/tailor", handlers.TailorErrorMessage).Handler)
	r.Use(chimw.Timeout(cfg.RequestTimeout))
	if cfg.MaxRequestSize > 0 {
		r.Use(maxBytes(cfg.MaxRequestSize))
	}

	// CORS configuration. The extension calls from chrome-extension:// origins.
	if cfg.EnableCORS {
		origins := cfg.AllowedOrigins
		if len(origins) == 0 {
			origins = []string{"*"}
		}
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
			MaxAge:         300,
		}))
	}

	// Rate limiting (if Redis is available)
	if cfg.Cache != nil && cfg.RateLimit > 0 {
		r.Use(middleware.NewRateLimitMiddleware(cfg.Cache, cfg.RateLimit, rediscache.RateLimitWindow, cfg.Logger).Handler)
	}

	// Health check endpoints
	r.Get("/health", healthHandler)
	r.Get("/ready", readyHandler(cfg))
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler())
	}

	var (
		scanCache handlers.ScanCache
		resumes   handlers.ResumeStore
		snapshots handlers.SnapshotArchiver
		archive   handlers.SnapshotReader
	)
	if cfg.Cache != nil {
		scanCache = cfg.Cache
		resumes = cfg.Cache
	}
	if cfg.Snapshots != nil {
		snapshots = cfg.Snapshots
		archive = cfg.Snapshots
	}

	scanHandler := handlers.NewScanHandler(handlers.ScanHandlerConfig{
		Scanner:   cfg.Scanner,
		Cache:     scanCache,
		CacheTTL:  cfg.ScanCacheTTL,
		Resumes:   resumes,
		History:   cfg.History,
		Snapshots: snapshots,
		Metrics:   cacheRecorder(cfg.Metrics),
		Timeout:   cfg.ScanTimeout,
		Logger:    cfg.Logger,
	})
	historyHandler := handlers.NewHistoryHandler(cfg.History, cfg.Logger)
	resumeHandler := handlers.NewResumeHandler(resumes, cfg.Logger)
	batchHandler := handlers.NewBatchHandler(cfg.Temporal, cfg.TaskQueue, cfg.MaxBatchURLs, workflowRecorder(cfg.Metrics), cfg.Logger)
	snapshotHandler := handlers.NewSnapshotHandler(archive, cfg.Logger)
	tailorHandler := handlers.NewTailorHandler(cfg.LLM, cfg.Logger)

	// Original proxy path used by the extension popup
	r.Post("/api/tailor", tailorHandler.Tailor)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/forms", func(r chi.Router) {
			r.Post("/scan", scanHandler.Scan)
			r.Post("/prefill", scanHandler.Prefill)
		})

		r.Route("/scans", func(r chi.Router) {
			r.Get("/", historyHandler.List)
			r.Get("/stats", historyHandler.Stats)
			r.Post("/batch", batchHandler.Start)
			r.Get("/batch/{id}", batchHandler.Progress)
			r.Get("/{id}", historyHandler.Get)
		})

		r.Route("/resumes", func(r chi.Router) {
			r.Put("/{id}", resumeHandler.Put)
			r.Get("/{id}", resumeHandler.Get)
		})

		r.Route("/snapshots", func(r chi.Router) {
			r.Get("/", snapshotHandler.List)
			r.Get("/*", snapshotHandler.Get)
			r.Delete("/*", snapshotHandler.Delete)
		})
	})

	return &Router{
		Router: r,
		logger: cfg.Logger,
	}
}

// cacheRecorder and workflowRecorder keep a nil *Metrics from becoming a
// non-nil interface.
func cacheRecorder(m *observability.Metrics) handlers.CacheRecorder {
	if m == nil {
		return nil
	}
	return m
}

func workflowRecorder(m *observability.Metrics) handlers.WorkflowRecorder {
	if m == nil {
		return nil
	}
	return m
}

func maxBytes(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}

// healthHandler returns basic health status
func healthHandler(w http.ResponseWriter, r *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "cvtailor-api",
	})
}

// readyHandler checks if all configured dependencies are reachable
func readyHandler(cfg RouterConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		checks := make(map[string]string)
		allHealthy := true

		check := func(name string, c HealthChecker) {
			if c == nil {
				checks[name] = "not configured"
				return
			}
			if err := c.Health(ctx); err != nil {
				checks[name] = "unhealthy: " + err.Error()
				allHealthy = false
				return
			}
			checks[name] = "healthy"
		}

		check("database", cfg.DB)
		var redisCheck HealthChecker
		if cfg.Cache != nil {
			redisCheck = cfg.Cache
		}
		check("redis", redisCheck)

		if cfg.Temporal != nil {
			checks["temporal"] = "healthy"
		} else {
			checks["temporal"] = "not configured"
		}
		if cfg.LLM != nil {
			checks["llm"] = cfg.LLM.Name()
		} else {
			checks["llm"] = "not configured"
		}

		status := http.StatusOK
		statusText := "ready"
		if !allHealthy {
			status = http.StatusServiceUnavailable
			statusText = "not ready"
		}

		httputil.JSON(w, status, map[string]any{
			"status": statusText,
			"checks": checks,
		})
	}
}
