package main

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/defi-yield-agent/internal/cache"
	"github.com/yourorg/defi-yield-agent/internal/config"
)

// setupLogging configures the logging for the application
func setupLogging() {
	logFormat := strings.ToLower(os.Getenv("LOG_FORMAT"))
	logLevel := strings.ToLower(os.Getenv("LOG_LEVEL"))

	// Set log formatter based on environment
	switch logFormat {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	logrus.Info("Logging configured")
}

// newStatsCache returns a Redis-backed stats cache, or a no-op one when Redis is
// not configured or not reachable at startup
func newStatsCache(cfg config.Config) cache.StatsCache {
	if cfg.RedisAddr == "" {
		return cache.NoopCache{}
	}

	rc := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.StatsCacheTTL)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rc.Ping(ctx); err != nil {
		logrus.WithError(err).WithField("addr", cfg.RedisAddr).Warn("Redis unavailable, stats caching disabled")
		_ = rc.Close()
		return cache.NoopCache{}
	}

	logrus.WithField("addr", cfg.RedisAddr).Info("Stats cache connected")
	return rc
}

func closeStatsCache(c cache.StatsCache) {
	if rc, ok := c.(*cache.RedisCache); ok {
		_ = rc.Close()
	}
}
