/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the fleet finance engine server. Handles
  configuration, dependency injection, the overdue cron schedule, and
  graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration from environment
  2. Configure structured logging
  3. Initialize SQLite store
  4. Wire handler (services, method catalog cache)
  5. Start overdue sweep scheduler
  6. Start server with graceful shutdown

ENVIRONMENT:
  PORT           HTTP server port (default: 8080)
  DB_PATH        SQLite database path (default: finance.db)
                 Use ":memory:" for an in-memory database
  LOG_LEVEL      logrus level (default: info)
  REDIS_ADDR     Redis address for the method catalog cache;
                 empty uses the in-process cache
  OVERDUE_CRON   Cron spec for the overdue sweep (default: 0 1 * * *)
  OVERDUE_SWEEP  "false" disables the scheduled sweep
  CORS_ORIGINS   Comma-separated allowed origins

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the cron scheduler, waiting for a running sweep
  4. Close database connection
  5. Exit

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - api/scheduler.go: Overdue sweep
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fleetops/finance-engine/api"
	"github.com/fleetops/finance-engine/config"
	"github.com/fleetops/finance-engine/methods"
	"github.com/fleetops/finance-engine/store/sqlite"
)

func main() {
	cfg := config.NewConfig()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize database")
	}
	defer store.Close()

	var cache methods.Cache
	if cfg.RedisAddr != "" {
		redisCache := methods.NewRedisCache(cfg.RedisAddr)
		defer redisCache.Close()
		cache = redisCache
		log.WithField("addr", cfg.RedisAddr).Info("using redis catalog cache")
	} else {
		cache = methods.NewMemoryCache()
	}

	handler := api.NewHandler(store, cache, log)
	router := api.NewRouter(handler, strings.Split(cfg.CORSOrigins, ","))

	var scheduler *api.Scheduler
	if cfg.SweepEnabled {
		scheduler, err = api.NewScheduler(store, log, cfg.OverdueCron)
		if err != nil {
			log.WithError(err).Fatal("failed to create overdue scheduler")
		}
		scheduler.Start()
		log.WithField("cron", cfg.OverdueCron).Info("overdue sweep scheduled")
	}

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("port", cfg.Port).Info("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Fatal("server forced to shutdown")
	}
	if scheduler != nil {
		scheduler.Stop()
	}

	log.Info("server stopped")
}
