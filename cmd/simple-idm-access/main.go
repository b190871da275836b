package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/tendant/simple-idm-access/idm"
	"github.com/tendant/simple-idm-access/internal/config"
	"github.com/tendant/simple-idm-access/internal/httputil"
	"github.com/tendant/simple-idm-access/internal/notification"
	"github.com/tendant/simple-idm-access/internal/outbox"
	"github.com/tendant/simple-idm-access/pkg/auth"
	"github.com/tendant/simple-idm-access/pkg/repository"
)

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	// Setup logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// Connect to database
	db, dialect, err := repository.NewDB(ctx, repository.Config{
		Driver:   cfg.DBDriver,
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		DBName:   cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
		Path:     cfg.SQLitePath,
	})
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	logger.Info("connected to database", "driver", dialect)

	hasher, err := auth.NewHasher(cfg.HashAlgorithm, cfg.BcryptCost)
	if err != nil {
		return err
	}
	mfaKey, err := cfg.MFAKey()
	if err != nil {
		return err
	}

	emailService := notification.NewEmailService(notification.EmailConfig{
		Host:           cfg.SMTPHost,
		Port:           cfg.SMTPPort,
		User:           cfg.SMTPUser,
		Password:       cfg.SMTPPassword,
		From:           cfg.SMTPFrom,
		FromName:       cfg.SMTPFromName,
		SupportContact: cfg.SupportContact,
	}, logger)
	if emailService.Enabled() {
		logger.Info("email service enabled")
	}

	// Notices go through Redis when configured so they survive restarts.
	var sender idm.PasswordChangedSender = emailService
	relayDone := make(chan struct{})
	if cfg.HasRedis() {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}

		queue := outbox.NewRedisQueue(client, cfg.RedisQueueKey, cfg.RedisPollEvery, logger)
		sender = queue
		go func() {
			defer close(relayDone)
			_ = queue.Run(ctx, emailService)
		}()
		logger.Info("redis notification queue enabled", "key", cfg.RedisQueueKey)
	} else {
		close(relayDone)
	}

	core, err := idm.New(ctx, idm.Config{
		DB:          db,
		Dialect:     dialect,
		AutoMigrate: true,
		JWTSecret:   cfg.JWTSecret,
		JWTIssuer:   cfg.JWTIssuer,
		Hasher:      hasher,
		EmailRules: auth.EmailRules{
			Strict:          cfg.Validation.StrictEmailValidation,
			BlockDisposable: cfg.Validation.BlockDisposableEmail,
		},
		MFAEncryptionKey: mfaKey,
		MFAIssuer:        cfg.MFAIssuer,
		PasswordChanged:  sender,
		Outbox: idm.OutboxConfig{
			BufferSize:  cfg.Outbox.BufferSize,
			Workers:     cfg.Outbox.Workers,
			DropIfFull:  cfg.Outbox.DropIfFull,
			TaskTimeout: cfg.Outbox.TaskTimeout,
		},
		RateLimit:       cfg.RateLimit,
		SecurityHeaders: cfg.SecurityHeaders,
		MaxRequestBytes: cfg.MaxRequestBytes,
		Cookie:          httputil.DefaultCookieConfig(),
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.ServerAddr, cfg.ServerPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      core.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		core.Close()
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	core.Close()
	<-relayDone
	return nil
}
