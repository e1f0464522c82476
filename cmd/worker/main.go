package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/afterdarksys/servicedesk/internal/config"
	"github.com/afterdarksys/servicedesk/internal/notify"
	"github.com/afterdarksys/servicedesk/internal/pkg/logger"
	"github.com/afterdarksys/servicedesk/internal/store"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	zapLogger, err := logger.New(cfg.LogLevel, cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	st, err := store.New(&cfg.Database)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zapLogger.Info("Starting notification worker",
		zap.String("environment", cfg.Environment),
		zap.Duration("poll_interval", cfg.Worker.PollInterval),
		zap.Int("batch_size", cfg.Worker.BatchSize),
	)

	worker := notify.NewWorker(st.Notifications, notify.NewSMTPSender(cfg.SMTP), zapLogger,
		cfg.Worker.PollInterval, cfg.Worker.BatchSize)
	worker.Run(ctx)

	zapLogger.Info("Worker stopped")
}
