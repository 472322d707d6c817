package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"drive/internal/server/api"
	"drive/internal/server/auth"
	"drive/internal/server/config"
	"drive/internal/server/database"
	"drive/internal/server/events"
	"drive/internal/server/service"
	"drive/internal/server/storage"
)

// backend is the store chosen by configuration. health is nil for the memory store.
type backend struct {
	store  database.Store
	health api.HealthChecker
	close  func()
}

func openPostgres(ctx context.Context, cfg *config.Config) (*database.DB, error) {
	db, err := database.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.RunMigrations(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Info("database migrations complete")
	return db, nil
}

func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	if cfg.Database.Backend == "memory" {
		slog.Warn("using in-memory database, data is lost on exit")
		return &backend{store: database.NewMemoryStore(), close: func() {}}, nil
	}

	db, err := openPostgres(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &backend{store: database.NewRepository(db), health: db, close: db.Close}, nil
}

func openBlobStore(ctx context.Context, cfg *config.Config) (storage.BlobStore, error) {
	var blobs storage.BlobStore
	switch cfg.Storage.Backend {
	case "minio":
		s, err := storage.NewMinioStore(storage.MinioConfig{
			Endpoint:  cfg.Minio.Endpoint,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			Bucket:    cfg.Minio.Bucket,
			UseSSL:    cfg.Minio.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		blobs = s
	default:
		blobs = storage.NewFileSystemStore(cfg.Storage.Path)
	}

	if err := blobs.EnsureReady(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize blob storage: %w", err)
	}
	slog.Info("blob storage initialized", "backend", cfg.Storage.Backend)
	return blobs, nil
}

func openPublisher(cfg *config.Config) (events.Publisher, error) {
	if cfg.NATS.URL == "" {
		slog.Info("event publishing disabled")
		return events.NopPublisher{}, nil
	}
	p, err := events.NewNATSPublisher(cfg.NATS.URL)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func newClassifier(cfg *config.Config) (*service.Classifier, error) {
	rules := make([]service.CategoryRule, len(cfg.Categories))
	for i, r := range cfg.Categories {
		rules[i] = service.CategoryRule{Extension: r.Extension, Category: database.Category(r.Category)}
	}
	return service.NewClassifier(rules)
}

func runServe(cfg *config.Config) error {
	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"database", cfg.Database.Backend,
		"storage", cfg.Storage.Backend,
		"max_file_size", cfg.Quota.MaxFileSizeBytes,
		"max_owner_storage", cfg.Quota.MaxOwnerStorageBytes,
		"strict_quota", cfg.Quota.Strict,
	)

	ctx := context.Background()

	be, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer be.close()

	blobs, err := openBlobStore(ctx, cfg)
	if err != nil {
		return err
	}

	publisher, err := openPublisher(cfg)
	if err != nil {
		return err
	}
	defer publisher.Close()

	classifier, err := newClassifier(cfg)
	if err != nil {
		return fmt.Errorf("invalid category table: %w", err)
	}

	authn, err := auth.LoadStaticProvider(cfg.Auth.UsersFile)
	if err != nil {
		return err
	}

	quota := service.NewQuota(be.store, service.QuotaLimits{
		MaxFileSizeBytes:     cfg.Quota.MaxFileSizeBytes,
		MaxOwnerStorageBytes: cfg.Quota.MaxOwnerStorageBytes,
		Strict:               cfg.Quota.Strict,
	})
	svc := service.NewHierarchyService(be.store, blobs, quota, classifier, publisher)
	usage := service.NewUsageReporter(be.store, quota)

	// Start integrity monitor
	monitorCtx, monitorCancel := context.WithCancel(context.Background())
	var monitor *service.IntegrityMonitor
	if cfg.Integrity.Interval > 0 {
		monitor = service.NewIntegrityMonitor(be.store, cfg.Integrity.Interval)
		monitor.Start(monitorCtx)
	}

	// Setup HTTP router
	handler := api.NewHandler(svc, usage, be.health)
	e := api.SetupRouter(handler, authn, cfg)

	// Start server in a goroutine
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Server.Port)
		slog.Info("starting server", "addr", addr, "base_url", cfg.Server.BaseURL)
		if err := e.Start(addr); err != nil {
			slog.Info("server stopped", "reason", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutting down", "signal", sig)

	// Stop accepting new requests, finish in-flight with 30s timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	monitorCancel()
	if monitor != nil {
		monitor.Wait()
	}

	slog.Info("server exited cleanly")
	return nil
}

func runCheck(ctx context.Context, cfg *config.Config, out io.Writer) error {
	be, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer be.close()

	report, err := service.NewIntegrityMonitor(be.store, 0).Sweep(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}
	if len(report.Problems) > 0 {
		return fmt.Errorf("%d integrity problems found", len(report.Problems))
	}
	return nil
}
