package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"log/slog"

	"github.com/learnsl/enrollbot/internal/config"
	"github.com/learnsl/enrollbot/internal/database"
	"github.com/learnsl/enrollbot/internal/directory"
	"github.com/learnsl/enrollbot/internal/engine"
	"github.com/learnsl/enrollbot/internal/httpapi"
	"github.com/learnsl/enrollbot/internal/lms"
	"github.com/learnsl/enrollbot/internal/logger"
	"github.com/learnsl/enrollbot/internal/messenger"
	"github.com/learnsl/enrollbot/internal/observability"
	"github.com/learnsl/enrollbot/internal/store"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("enrollbot: %v", err)
	}
}

func run() error {
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	log.Printf("loading config: %s", cfgPath)
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(cfg); err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() {
		if err := logger.Shutdown(); err != nil {
			log.Printf("logger shutdown error: %v", err)
		}
	}()

	startedAt := time.Now()

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()

	if err := database.RunMigrations(cfg.Database); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	pg := store.NewPostgresStore(db)

	metrics := observability.NewMetrics("enrollbot")

	sender := messenger.NewTwilioSender(cfg.Twilio)
	dispatcher := messenger.NewDispatcher(sender, messenger.Options{
		OnFailure: metrics.SendFailures.Inc,
	})
	defer dispatcher.Close()

	scheduler := messenger.NewScheduler(dispatcher)
	defer scheduler.Close()

	eng := engine.New(
		pg,
		directory.New(cfg.Directory),
		lms.New(cfg.LMS),
		pg,
		dispatcher,
		scheduler,
		metrics,
		engine.Options{
			SupportContact:   cfg.Bot.SupportContact,
			FollowUpDelay:    cfg.Twilio.FollowUpDelay,
			FollowUpBody:     cfg.Twilio.FollowUpBody,
			FollowUpMediaURL: cfg.Twilio.FollowUpMediaURL,
		},
	)

	api := httpapi.New(eng, pg, metrics)
	srv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           api,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	logger.L.With("component", "app").Info("app ready",
		slog.String("event", "ready"),
		slog.String("listen", cfg.Server.Listen),
		slog.Duration("duration", logger.Took(startedAt)),
	)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.L.With("component", "app").Info("shutting down...",
		slog.String("event", "shutdown"),
	)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
