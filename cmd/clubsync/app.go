package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/runclub/clubsync/internal/api"
	"github.com/runclub/clubsync/internal/config"
	"github.com/runclub/clubsync/internal/credentials"
	"github.com/runclub/clubsync/internal/database"
	"github.com/runclub/clubsync/internal/events"
	"github.com/runclub/clubsync/internal/metrics"
	"github.com/runclub/clubsync/internal/strava"
	"github.com/runclub/clubsync/internal/syncer"
)

// store is everything the service persists, backed by PostgreSQL or memory.
type store interface {
	api.UserStore
	api.ActivityStore
	api.RunStore
	credentials.Store
	syncer.Store
	syncer.Reporter
	Ping(ctx context.Context) error
}

// app is the wired object graph shared by the subcommands.
type app struct {
	cfg          config.Config
	logger       *slog.Logger
	db           *sql.DB
	store        store
	oauth        *strava.OAuthClient
	metrics      *metrics.Collector
	producer     *events.KafkaProducer
	orchestrator *syncer.Orchestrator
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	if err := cfg.Strava.Validate(); err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}

	logger.Info("Database configuration", "database", cfg.Database.Redacted())
	if cfg.Database.URL == "" {
		logger.Warn("DATABASE_URL not set, using in-memory store")
		a.store = database.NewMemoryStore()
	} else {
		dbCfg := database.DefaultConfig()
		dbCfg.URL = cfg.Database.URL
		dbCfg.MaxConnections = cfg.Database.MaxConnections
		dbCfg.MaxIdleConnections = cfg.Database.MaxIdleConnections

		db, err := database.Connect(ctx, dbCfg, logger)
		if err != nil {
			return nil, err
		}
		if err := database.EnsureSchema(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		logger.Info("Database connected")
		a.db = db
		a.store = database.NewStore(db)
	}

	collector, err := metrics.New()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	a.metrics = collector
	if a.db != nil {
		if err := collector.WatchDB(a.db, "clubsync"); err != nil {
			a.Close()
			return nil, fmt.Errorf("watch database pool: %w", err)
		}
	}

	a.oauth = strava.NewOAuthClient(strava.OAuthConfig{
		ClientID:     cfg.Strava.ClientID,
		ClientSecret: cfg.Strava.ClientSecret,
		RedirectURL:  cfg.Strava.RedirectURL,
		AuthURL:      cfg.Strava.AuthURL,
		TokenURL:     cfg.Strava.TokenURL,
		Timeout:      cfg.Strava.RequestTimeout,
	})

	retry := strava.DefaultRetryPolicy()
	retry.MaxRetries = cfg.Strava.RateLimitRetries
	client := strava.NewClient(strava.ClientConfig{
		BaseURL:        cfg.Strava.APIBaseURL,
		PageSize:       cfg.Strava.PageSize,
		RequestTimeout: cfg.Strava.RequestTimeout,
		Retry:          retry,
	}, logger)

	reporters := []syncer.Reporter{a.store, a.metrics}
	if len(cfg.Kafka.Brokers) > 0 {
		a.producer = events.NewKafkaProducer(cfg.Kafka.Brokers)
		reporters = append(reporters, events.NewPublisher(a.producer, cfg.Kafka.Topic))
		logger.Info("Publishing sync events", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	a.orchestrator = syncer.NewOrchestrator(syncer.Config{
		Store:            a.store,
		Tokens:           credentials.NewVault(a.store, a.oauth, logger),
		Source:           client,
		Reporters:        reporters,
		Observers:        []syncer.SweepObserver{a.metrics},
		SweepConcurrency: cfg.Sync.SweepConcurrency,
	}, logger)

	return a, nil
}

// Close releases the database pool and the event producer.
func (a *app) Close() {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("Failed to close event producer", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("Failed to close database", "error", err)
		}
	}
}
