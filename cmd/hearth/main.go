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

	"github.com/dukerupert/hearth/internal/auth"
	"github.com/dukerupert/hearth/internal/blob"
	"github.com/dukerupert/hearth/internal/config"
	"github.com/dukerupert/hearth/internal/database"
	"github.com/dukerupert/hearth/internal/email"
	"github.com/dukerupert/hearth/internal/logging"
	"github.com/dukerupert/hearth/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "hearth:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return err
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	blobs, err := openBlobs(cfg, logger)
	if err != nil {
		return err
	}

	mailer := email.NewClient(cfg.Email.PostmarkToken, cfg.Email.FromAddress, cfg.BaseURL)
	if !mailer.Configured() {
		logger.Info("postmark not configured, invitations will not be e-mailed")
	}

	srv := server.New(db, server.Options{
		Tokens:      auth.NewTokenIssuer(cfg.JWTSecret, "hearth", cfg.TokenTTL),
		Blobs:       blobs,
		Mailer:      mailer,
		CORSOrigins: cfg.CORSOrigins,
		Logger:      logger,
		TrustProxy:  cfg.TrustProxy,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go cleanupLoop(ctx, srv)
	srv.Scheduler().Start(ctx)
	defer srv.Scheduler().Stop()

	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("hearth listening", "addr", cfg.Addr, "db", cfg.DBPath)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func openBlobs(cfg *config.Config, logger *slog.Logger) (blob.Store, error) {
	if cfg.S3.Enabled() {
		logger.Info("attachments in s3", "bucket", cfg.S3.Bucket, "endpoint", cfg.S3.Endpoint)
		return blob.NewS3(blob.S3Config{
			Endpoint:  cfg.S3.Endpoint,
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
		}), nil
	}
	dir, err := blob.NewDir(cfg.BlobDir)
	if err != nil {
		return nil, fmt.Errorf("open blob dir: %w", err)
	}
	logger.Info("attachments on disk", "dir", cfg.BlobDir)
	return dir, nil
}

// cleanupLoop drops stale rate limiter entries until ctx ends.
func cleanupLoop(ctx context.Context, srv *server.Server) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			srv.RateLimiter().Cleanup()
		case <-ctx.Done():
			return
		}
	}
}
