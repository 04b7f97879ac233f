// Package main is the entry point for the DeFi yield research service: it keeps a
// refreshed, risk-scored pool table and answers questions about it through an LLM agent.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/defi-yield-agent/internal/agent"
	"github.com/yourorg/defi-yield-agent/internal/api"
	"github.com/yourorg/defi-yield-agent/internal/config"
	"github.com/yourorg/defi-yield-agent/internal/enrich"
	"github.com/yourorg/defi-yield-agent/internal/fetch"
	"github.com/yourorg/defi-yield-agent/internal/llm"
	"github.com/yourorg/defi-yield-agent/internal/metrics"
	"github.com/yourorg/defi-yield-agent/internal/scheduler"
	"github.com/yourorg/defi-yield-agent/internal/store"
	"github.com/yourorg/defi-yield-agent/internal/tracing"
)

// main is the entry point for the application
func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file loaded")
	}

	// Configure logging
	setupLogging()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}

	if err := run(cfg); err != nil {
		logrus.Fatalf("Server failed: %v", err)
	}
}

// run wires every component, serves until SIGINT/SIGTERM and shuts down in reverse order
func run(cfg config.Config) error {
	shutdownTracing := tracing.InitTracer(cfg)
	defer shutdownTracing()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	st, err := store.Open(ctx, store.Options{
		Driver: cfg.DBDriver,
		DSN:    cfg.DatabaseURL,
	})
	cancel()
	if err != nil {
		return err
	}
	defer st.Close()

	statsCache := newStatsCache(cfg)
	defer closeStatsCache(statsCache)

	enricher := enrich.New(fetch.NewClient(cfg),
		enrich.WithMaxPools(cfg.MaxPools),
		enrich.WithMetrics(m),
	)

	refresher := scheduler.New(enricher, st, scheduler.Options{
		Spec:      cfg.RefreshCron,
		BatchSize: cfg.BatchSize,
		Metrics:   m,
		OnRefresh: func(ctx context.Context) {
			if err := statsCache.Invalidate(ctx); err != nil {
				logrus.WithError(err).Warn("Failed to invalidate stats cache")
			}
		},
	})
	if err := refresher.Start(); err != nil {
		return err
	}
	defer refresher.Stop()

	orchestrator := agent.New(st, st, llm.NewService(), agent.Options{
		DefaultAPIKey: cfg.DefaultAPIKey,
		StageDelay:    cfg.AgentStageDelay,
		Metrics:       m,
	})

	apiServer := api.NewServer(api.Config{
		RequestTimeout: cfg.RequestTimeout,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		EnableMetrics:  cfg.EnableMetrics,
	}, api.Deps{
		Store:    st,
		Cache:    statsCache,
		Agent:    orchestrator,
		Refresh:  refresher,
		Metrics:  m,
		Gatherer: registry,
	})

	// Configure server with timeouts; agent completions need the long write timeout
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      apiServer.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logrus.WithFields(logrus.Fields{
			"port":       cfg.Port,
			"db_driver":  cfg.DBDriver,
			"cache":      cfg.RedisAddr != "",
			"metrics":    cfg.EnableMetrics,
			"refresh":    cfg.RefreshCron,
			"batch_size": cfg.BatchSize,
		}).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return err
	}

	logrus.Info("Server shutting down...")
	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return err
	}

	logrus.Info("Server stopped")
	return nil
}
