package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blackmichael/devlog-feed/internal/config"
	"github.com/blackmichael/devlog-feed/internal/domain"
	"github.com/blackmichael/devlog-feed/internal/engagement"
	"github.com/blackmichael/devlog-feed/internal/firehose"
	"github.com/blackmichael/devlog-feed/internal/httpserver"
	"github.com/blackmichael/devlog-feed/internal/spam"
	"github.com/blackmichael/devlog-feed/internal/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load(os.Getenv("DEVLOGFEED_CONFIG"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up store (implements the post, engagement, spam, and cursor ports)
	store, err := sqlite.NewStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()
	logger.Info("opened database", "path", cfg.Database.Path)

	params := cfg.ScoringParams()
	service := domain.NewCurationService(
		params,
		cfg.Scoring.PromoDomains,
		cfg.FeedURI(),
		store,
		store,
		store,
		logger,
	)

	detector := spam.NewDetector(store, cfg.SpamWindow(), cfg.Spam.RepostThreshold, logger)
	tracker := engagement.NewTracker(
		store,
		detector,
		params,
		time.Duration(cfg.Engagement.BufferWindowSeconds)*time.Second,
		cfg.Engagement.BufferMaxEvents,
		logger,
	)

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Start the firehose subscriber in the background
	subscriber := firehose.NewSubscriber(cfg.Firehose.URL, service, tracker, logger)
	go func() {
		if err := subscriber.Start(ctx); err != nil && ctx.Err() == nil {
			logger.Error("firehose subscriber exited with error", "error", err)
		}
	}()

	// Start background maintenance
	maxAge := time.Duration(cfg.Retention.MaxAgeHours * float64(time.Hour))
	go service.StartCleanupJob(ctx,
		time.Duration(cfg.Retention.CleanupIntervalMinutes)*time.Minute,
		maxAge,
		cfg.Retention.MaxRows,
	)
	go service.StartRescoreJob(ctx,
		time.Duration(cfg.Retention.RescoreIntervalMinutes)*time.Minute,
		maxAge,
	)
	go tracker.StartFlushJob(ctx, time.Duration(cfg.Engagement.FlushIntervalSeconds)*time.Second)
	go detector.StartSweepJob(ctx, cfg.SpamWindow())

	// Start the HTTP server
	server := httpserver.NewServer(cfg, service, tracker, logger)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server exited with error", "error", err)
		}
	}()

	logger.Info("server started", "port", cfg.Server.Port, "hostname", cfg.Server.Hostname, "feed", cfg.FeedURI())

	// Wait for shutdown signal
	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)
	cancel()

	if err := server.Shutdown(context.Background()); err != nil {
		logger.Error("error shutting down http server", "error", err)
	}

	return nil
}
