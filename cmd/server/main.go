// Eventroller - Distributed Event Aggregation and Review
// Copyright 2026 The Eventroller Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventroller/eventroller

// Package main is the entry point for the Eventroller server.
//
// Eventroller aggregates organizing events from heterogeneous CRM vendors
// into one canonical store, reconciles host identity across sources, flags
// likely duplicate events, and keeps a durable review log with a fast
// in-process state cache for moderation clients.
//
// Startup order:
//
//  1. Configuration (koanf: defaults, config file, environment)
//  2. Logging (zerolog)
//  3. Database (DuckDB, schema ensured at open)
//  4. Pub/sub (watermill gochannel), syncer, review service, scheduler
//  5. Source provisioning from static config
//  6. Supervisor tree (suture): sync loops, dedupe subscriber, HTTP server
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/eventroller/eventroller/internal/api"
	"github.com/eventroller/eventroller/internal/config"
	"github.com/eventroller/eventroller/internal/database"
	"github.com/eventroller/eventroller/internal/dedupe"
	"github.com/eventroller/eventroller/internal/logging"
	"github.com/eventroller/eventroller/internal/review"
	"github.com/eventroller/eventroller/internal/scheduler"
	"github.com/eventroller/eventroller/internal/supervisor"
	"github.com/eventroller/eventroller/internal/syncer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Config errors are reported with the default logger.
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Int("sources", len(cfg.Sources)).
		Bool("incremental_dedupe", cfg.Dedupe.Incremental).
		Msg("Configuration loaded")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Msg("Database initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// In-process pub/sub carries source.updated from sync passes to the
	// dedupe subscriber.
	pubsub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})

	sync := syncer.New(db, cfg, pubsub)
	reviews := review.NewService(db, cfg, sync)
	sched := scheduler.New(db, sync, cfg)
	detector := dedupe.New(db)

	if err := sched.Provision(ctx); err != nil {
		logging.Fatal().Err(err).Msg("Failed to provision configured sources")
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.Router(api.NewHandler(cfg, db, reviews, sched, sync)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Bridge zerolog to slog for sutureslog.
	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.Config{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})

	tree.AddSyncService(scheduler.NewHourlyLoop(sched))
	tree.AddSyncService(scheduler.NewDailyLoop(sched))
	if cfg.Dedupe.Incremental {
		tree.AddSyncService(supervisor.NewFuncService("dedupe-listener",
			func(ctx context.Context) error {
				return detector.Listen(ctx, pubsub)
			}))
		logging.Info().Msg("Incremental dedupe subscriber enabled")
	}
	tree.AddAPIService(supervisor.NewHTTPService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Drain until the supervisor finishes shutting down.
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Server stopped")
}
