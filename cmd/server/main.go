/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the assignment scheduling server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (file + SCHEDULER_* environment)
  2. Build the logger
  3. Initialize SQLite store
  4. Seed the working-hours policy from a file (optional) and watch it
  5. Create the assignment service, handler and router
  6. Start the season monitor and the HTTP server

COMMAND-LINE FLAGS:
  -config  YAML config file (default: $SCHEDULER_CONFIG, none)
  -port    HTTP server port, overrides the config
  -db      SQLite database path, overrides the config
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (http.shutdown_timeout)
  3. Stop the season monitor and the policy watcher
  4. Close database connection

EXAMPLES:
  # Run with a config file
  ./server -config=/etc/scheduler/scheduler.yaml

  # Run with in-memory database on another port
  ./server -db=":memory:" -port=3000

  # Seed the policy from a file and reload it on change
  SCHEDULER_POLICY_FILE=./policy.yaml SCHEDULER_WATCH_POLICY=true ./server

SEE ALSO:
  - config/config.go: Configuration sources and environment variables
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/assignment-engine/api"
	"github.com/warp/assignment-engine/assignment"
	"github.com/warp/assignment-engine/config"
	"github.com/warp/assignment-engine/logging"
	"github.com/warp/assignment-engine/observability"
	"github.com/warp/assignment-engine/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Flags
	configPath := flag.String("config", os.Getenv(config.EnvConfigPath), "YAML config file")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *port != 0 {
		cfg.HTTP.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	// Initialize store
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer store.Close()
	logger.Info("database ready", "path", cfg.Database.Path)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Policy file
	if cfg.Policy.File != "" {
		watcher := config.NewPolicyWatcher(cfg.Policy.File, store, logger)
		if err := watcher.Seed(ctx); err != nil {
			return err
		}
		if cfg.Policy.Watch {
			go func() {
				if err := watcher.Run(ctx); err != nil {
					logger.Error("policy watcher stopped", "error", err)
				}
			}()
		}
	}

	metrics := observability.NewMetrics()
	service := assignment.NewService(store,
		assignment.WithLogger(logger),
		assignment.WithMetrics(metrics),
	)

	monitor := api.NewSeasonMonitor(service.Policy(), metrics, logger)
	monitor.Start()
	defer monitor.Stop()

	handler := api.NewHandler(store, service, logger)
	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Metrics:        metrics,
	})

	// Create server
	server := &http.Server{
		Addr:         cfg.HTTP.ListenAddr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for interrupt signal
	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server", "timeout", cfg.HTTP.ShutdownTimeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	logger.Info("server stopped")
	return nil
}
