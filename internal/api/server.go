// Package api exposes pools, settings and the research agent over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/yourorg/defi-yield-agent/internal/agent"
	"github.com/yourorg/defi-yield-agent/internal/cache"
	"github.com/yourorg/defi-yield-agent/internal/metrics"
	"github.com/yourorg/defi-yield-agent/internal/model"
	"github.com/yourorg/defi-yield-agent/internal/scheduler"
	"github.com/yourorg/defi-yield-agent/internal/store"
)

const version = "1.0.0"

// PoolStore is the persistence the API reads and writes
type PoolStore interface {
	ListPools(ctx context.Context, q store.PoolQuery) ([]model.Pool, error)
	CountPools(ctx context.Context, f store.PoolFilter) (int, error)
	GetPool(ctx context.Context, id string) (*model.Pool, error)
	PoolStats(ctx context.Context) (model.PoolStats, error)
	GetAISettings(ctx context.Context, userID string) (*model.AISettings, error)
	SaveAISettings(ctx context.Context, settings model.AISettings) (*model.AISettings, error)
	Ping(ctx context.Context) error
}

// Agent answers research questions
type Agent interface {
	Answer(ctx context.Context, req agent.Request) (*agent.Answer, error)
	Stream(ctx context.Context, req agent.Request) <-chan agent.Event
}

// RefreshStatus reports on the background refresh
type RefreshStatus interface {
	Running() bool
	LastReport() (scheduler.CycleReport, bool)
}

// Config holds the HTTP-level settings
type Config struct {
	// Bound applied to store-backed handlers
	RequestTimeout time.Duration

	// Agent limiter, requests per second and burst
	RateLimitRPS   float64
	RateLimitBurst int

	EnableMetrics bool
}

// Deps are the collaborators a Server routes to
type Deps struct {
	Store    PoolStore
	Cache    cache.StatsCache
	Agent    Agent
	Refresh  RefreshStatus
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
}

// Server is the HTTP API
type Server struct {
	cfg       Config
	deps      Deps
	router    *mux.Router
	limiter   *rate.Limiter
	startedAt time.Time
}

// NewServer builds the router. A nil Cache disables stats caching.
func NewServer(cfg Config, deps Deps) *Server {
	if deps.Cache == nil {
		deps.Cache = cache.NoopCache{}
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}

	s := &Server{
		cfg:       cfg,
		deps:      deps,
		router:    mux.NewRouter(),
		startedAt: time.Now(),
	}
	if cfg.RateLimitRPS > 0 {
		burst := cfg.RateLimitBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst)
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	s.router.Handle("/metrics", s.metricsHandler()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/pools", s.handleListPools).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/pools/stats", s.handlePoolStats).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/pools/{id}", s.handleGetPool).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/agent", s.handleAgent).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/settings/ai", s.handleGetSettings).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/settings/ai", s.handleSaveSettings).Methods(http.MethodPost)

	s.router.Use(s.corsMiddleware)
	s.router.Use(s.metricsMiddleware)
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) metricsHandler() http.Handler {
	if !s.cfg.EnableMetrics {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "Metrics disabled", http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})
}

// handleHealth reports whether the store is reachable
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	status, code := "OK", http.StatusOK
	if err := s.deps.Store.Ping(ctx); err != nil {
		logrus.WithError(err).Warn("Health check failed")
		status, code = "DEGRADED", http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]interface{}{
		"status":    status,
		"version":   version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleStatus reports uptime and the last refresh cycle
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":  "operational",
		"uptime":  time.Since(s.startedAt).Round(time.Second).String(),
		"version": version,
	}

	if s.deps.Refresh != nil {
		refresh := map[string]interface{}{
			"running": s.deps.Refresh.Running(),
		}
		if report, ok := s.deps.Refresh.LastReport(); ok {
			refresh["last_cycle"] = report
		}
		status["refresh"] = refresh
	}

	writeJSON(w, http.StatusOK, status)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Debug("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
