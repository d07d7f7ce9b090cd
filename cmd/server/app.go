package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/taskhive/taskhive/internal/config"
	"github.com/taskhive/taskhive/internal/membership"
	"github.com/taskhive/taskhive/internal/notify"
	"github.com/taskhive/taskhive/internal/platform/clock"
	"github.com/taskhive/taskhive/internal/platform/postgres"
	"github.com/taskhive/taskhive/internal/scheduler"
	"github.com/taskhive/taskhive/internal/service/lifecycle"
	"github.com/taskhive/taskhive/internal/service/quorum"
	"github.com/taskhive/taskhive/internal/service/recurring"
	"github.com/taskhive/taskhive/internal/service/reminder"
	"github.com/taskhive/taskhive/internal/service/report"
)

// application holds the wired dependencies of the running server.
type application struct {
	config *config.Config
	logger *slog.Logger

	db    *sql.DB
	redis *redis.Client
	loc   *time.Location

	directory membership.Directory
	notifier  notify.Notifier
	deduper   *notify.Deduper

	lifecycleService lifecycle.Service
	reminderService  *reminder.Service
	reportService    report.Service
	recurringService recurring.Service
	quorumService    quorum.Service

	jobs   []scheduler.Job
	runner *scheduler.Runner
}

// newApplication connects to the database, runs migrations and wires the
// stores, services and job runner.
func newApplication(cfg *config.Config, log *slog.Logger) (*application, error) {
	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := postgres.RunMigrations(db, log); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	loc, err := time.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load scheduler timezone %q: %w", cfg.Scheduler.Timezone, err)
	}
	clk := clock.NewSystem(loc)

	var redisClient *redis.Client
	var guard notify.Guard
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: cfg.Redis.Timeout,
		})
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			return nil, fmt.Errorf("failed to ping redis: %w", err)
		}
		guard = notify.NewRedisGuard(redisClient, cfg.Redis.KeyPrefix)
		log.Info("using redis notification guard", "addr", cfg.Redis.Addr)
	} else {
		guard = notify.NewMemoryGuard(clk)
		log.Info("using in-memory notification guard")
	}

	notifier := notify.NewLogNotifier(log)
	deduper := notify.NewDeduper(notifier, guard, log)

	taskStore := postgres.NewPostgresTaskStore(db, log)
	templateStore := postgres.NewPostgresTemplateStore(db, log)
	groupStore := postgres.NewPostgresGroupStore(db, log)
	directory := postgres.NewPostgresMemberDirectory(db, log)

	lifecycleService := lifecycle.NewService(taskStore, db, notifier, deduper, clk, log)
	reminderService := reminder.NewService(taskStore, groupStore, db, deduper, clk, log)
	reportService := report.NewService(taskStore, groupStore, directory, deduper, clk, log)
	recurringService := recurring.NewService(templateStore, taskStore, groupStore, db, deduper, clk, log)
	quorumService := quorum.NewService(groupStore, taskStore, db, directory, notifier, clk, log)

	jobs := scheduler.DefaultJobs(scheduler.Deps{
		Lifecycle: lifecycleService,
		Reminder:  reminderService,
		Report:    reportService,
		Recurring: recurringService,
		Groups:    groupStore,
	})
	runner, err := scheduler.NewRunner(jobs, loc, clk, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create job runner: %w", err)
	}

	return &application{
		config:           cfg,
		logger:           log,
		db:               db,
		redis:            redisClient,
		loc:              loc,
		directory:        directory,
		notifier:         notifier,
		deduper:          deduper,
		lifecycleService: lifecycleService,
		reminderService:  reminderService,
		reportService:    reportService,
		recurringService: recurringService,
		quorumService:    quorumService,
		jobs:             jobs,
		runner:           runner,
	}, nil
}

// cleanup releases resources held by the application. Safe to call once
// during shutdown.
func (app *application) cleanup() {
	app.runner.Stop()
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("failed to close redis client", "error", err)
		}
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error("failed to close database connection", "error", err)
	}
}
