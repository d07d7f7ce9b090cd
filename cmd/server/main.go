// Package main implements the entry point for the taskhive server, which
// runs the task management core and its periodic sweeps against Postgres.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"

	"github.com/taskhive/taskhive/internal/config"
	"github.com/taskhive/taskhive/internal/platform/logger"
)

// main loads configuration, wires the application and runs the HTTP server
// until a shutdown signal arrives.
func main() {
	if err := run(); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}
}

// run is the testable body of main. It returns instead of exiting so
// initialization failures carry their cause.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger := logger.Setup(cfg.Server.LogLevel)

	slog.Info("Server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"scheduler_enabled", cfg.Scheduler.Enabled,
		"scheduler_timezone", cfg.Scheduler.Timezone,
		"redis_guard", cfg.Redis.Addr != "")

	app, err := newApplication(cfg, appLogger)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	return app.startHTTPServer(context.Background(), app.setupRouter())
}
