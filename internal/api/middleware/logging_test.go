package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cvtailor/cvtailor/internal/domain"
)

func observed() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core), logs
}

// snapshotRouter mirrors the archive routes, whose paths embed hostnames
func snapshotRouter(logger *zap.Logger, status int) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(NewLoggingMiddleware(logger).Handler)
	r.Get("/api/v1/snapshots/*", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`<html></html>`))
	})
	return r
}

func TestLoggingMiddleware_Levels(t *testing.T) {
	tests := []struct {
		status int
		level  zapcore.Level
	}{
		{http.StatusOK, zapcore.InfoLevel},
		{http.StatusNotFound, zapcore.WarnLevel},
		{http.StatusBadGateway, zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			logger, logs := observed()
			rec := httptest.NewRecorder()
			snapshotRouter(logger, tt.status).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/snapshots/jobs.example.com/2026-07-05/1.html", nil))

			entries := logs.FilterMessage("HTTP request").All()
			require.Len(t, entries, 1)
			assert.Equal(t, tt.level, entries[0].Level)
			fields := entries[0].ContextMap()
			assert.Equal(t, int64(tt.status), fields["status"])
			assert.Equal(t, int64(len(`<html></html>`)), fields["bytes"])
		})
	}
}

func TestLoggingMiddleware_RouteAndPath(t *testing.T) {
	logger, logs := observed()
	rec := httptest.NewRecorder()

	snapshotRouter(logger, http.StatusOK).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/snapshots/jobs.example.com/2026-07-05/1.html", nil))

	fields := logs.FilterMessage("HTTP request").All()[0].ContextMap()
	assert.Equal(t, "/api/v1/snapshots/*", fields["route"])
	assert.Equal(t, "/api/v1/snapshots/jobs.example.com/2026-07-05/1.html", fields["path"])
	assert.Equal(t, http.MethodGet, fields["method"])
}

func TestLoggingMiddleware_RequestID(t *testing.T) {
	t.Run("chi id is logged and echoed", func(t *testing.T) {
		logger, logs := observed()
		rec := httptest.NewRecorder()

		snapshotRouter(logger, http.StatusOK).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/snapshots/a/b/c.html", nil))

		id := rec.Header().Get("X-Request-ID")
		require.NotEmpty(t, id)
		assert.Equal(t, id, logs.All()[0].ContextMap()["request_id"])
	})

	t.Run("client header without chi", func(t *testing.T) {
		logger, _ := observed()
		h := NewLoggingMiddleware(logger).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		req := httptest.NewRequest(http.MethodPost, "/api/tailor", nil)
		req.Header.Set("X-Request-ID", "extension-42")
		rec := httptest.NewRecorder()

		h.ServeHTTP(rec, req)

		assert.Equal(t, "extension-42", rec.Header().Get("X-Request-ID"))
	})

	t.Run("generated when absent", func(t *testing.T) {
		id1, id2 := generateRequestID(), generateRequestID()
		assert.NotEqual(t, id1, id2)
		assert.Len(t, id1, 23)
		assert.Equal(t, 14, strings.Index(id1, "-"))
	})
}

func TestRecoveryMiddleware(t *testing.T) {
	panicking := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("nil resume details")
	})

	t.Run("envelope by default", func(t *testing.T) {
		logger, logs := observed()
		rec := httptest.NewRecorder()

		NewRecoveryMiddleware(logger).Handler(panicking).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/forms/scan", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		var env struct {
			Success bool `json:"success"`
			Error   struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
		assert.False(t, env.Success)
		assert.Equal(t, domain.ErrCodeInternal, env.Error.Code)

		entries := logs.FilterMessage("Panic recovered").All()
		require.Len(t, entries, 1)
		assert.Equal(t, "nil resume details", entries[0].ContextMap()["error"])
	})

	t.Run("bare body on tailor", func(t *testing.T) {
		logger, _ := observed()
		m := NewRecoveryMiddleware(logger).WithBareError("/api/tailor", "Failed to tailor CV")
		rec := httptest.NewRecorder()

		m.Handler(panicking).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/tailor", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.JSONEq(t, `{"error":"Failed to tailor CV"}`, rec.Body.String())
	})

	t.Run("abort handler is re-raised", func(t *testing.T) {
		logger, _ := observed()
		h := NewRecoveryMiddleware(logger).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic(http.ErrAbortHandler)
		}))

		assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		})
	})
}

func TestRecoveryInsideLogging(t *testing.T) {
	logger, logs := observed()
	r := chi.NewRouter()
	r.Use(NewLoggingMiddleware(logger).Handler)
	r.Use(NewRecoveryMiddleware(logger).WithBareError("/api/tailor", "Failed to tailor CV").Handler)
	r.Post("/api/tailor", func(w http.ResponseWriter, r *http.Request) {
		panic("provider returned nil")
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/tailor", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	entries := logs.FilterMessage("HTTP request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	assert.Equal(t, int64(http.StatusInternalServerError), entries[0].ContextMap()["status"])
	assert.Equal(t, "/api/tailor", entries[0].ContextMap()["route"])
}
