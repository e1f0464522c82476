package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/afterdarksys/servicedesk/internal/api"
	"github.com/afterdarksys/servicedesk/internal/api/handlers"
	"github.com/afterdarksys/servicedesk/internal/auth"
	"github.com/afterdarksys/servicedesk/internal/config"
	"github.com/afterdarksys/servicedesk/internal/pkg/logger"
	"github.com/afterdarksys/servicedesk/internal/policy"
	"github.com/afterdarksys/servicedesk/internal/ratelimit"
	"github.com/afterdarksys/servicedesk/internal/render"
	"github.com/afterdarksys/servicedesk/internal/storage"
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

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	var limiter ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.NewRedisLimiter(redisClient, ratelimit.Limits{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			RequestsPerHour:   cfg.RateLimit.RequestsPerHour,
		})
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 15*time.Second)
	bucket, err := storage.NewBucket(startCtx, cfg.Storage)
	cancelStart()
	if err != nil {
		zapLogger.Fatal("Failed to open attachment storage", zap.Error(err))
	}

	enforcer, err := policy.NewEnforcer()
	if err != nil {
		zapLogger.Fatal("Failed to load access policy", zap.Error(err))
	}

	jwtService := auth.NewJWTService(cfg.JWT.SecretKey, cfg.JWT.Issuer, cfg.JWT.AccessTokenDuration)

	h := handlers.New(handlers.Deps{
		Tickets:       st.Tickets,
		Messages:      st.Messages,
		Attachments:   st.Attachments,
		Resources:     st.Resources,
		Hours:         st.Hours,
		Events:        st.Events,
		Notifications: st.Notifications,
		Projects:      st.Projects,
		Users:         st.Users,
		Files:         bucket,
		Policy:        enforcer,
		Renderer:      render.NewMarkdown(),
		Logger:        zapLogger,

		MessagePageSize: cfg.Workflow.MessagePageSize,
		MaxUploadBytes:  cfg.Workflow.MaxUploadBytes,
		BaseURL:         cfg.SMTP.BaseURL,
		ReadyChecks: map[string]handlers.Checker{
			"database": st.Ping,
			"redis": func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		},
	})

	// Create router
	router, err := api.NewRouter(cfg, zapLogger, h, jwtService, limiter)
	if err != nil {
		zapLogger.Fatal("Failed to create router", zap.Error(err))
	}

	// Create server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		zapLogger.Info("Starting API server",
			zap.String("port", cfg.Port),
			zap.String("environment", cfg.Environment),
			zap.Bool("rate_limit", limiter != nil),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info("Server exited gracefully")
}
