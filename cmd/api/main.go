package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/abduss/swiftshare/internal/account"
	"github.com/abduss/swiftshare/internal/blob"
	"github.com/abduss/swiftshare/internal/code"
	"github.com/abduss/swiftshare/internal/config"
	"github.com/abduss/swiftshare/internal/logger"
	"github.com/abduss/swiftshare/internal/metastore"
	"github.com/abduss/swiftshare/internal/metrics"
	"github.com/abduss/swiftshare/internal/server"
	"github.com/abduss/swiftshare/internal/share"
	"github.com/abduss/swiftshare/internal/storage"
	"github.com/abduss/swiftshare/internal/transform"
)

func main() {
	_ = godotenv.Load()

	zl, err := logger.Init()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		zl.Fatal("load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zl); err != nil {
		zl.Fatal("swiftshare exited", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, zl *zap.Logger) error {
	var checks []server.Check

	var pool *pgxpool.Pool
	if cfg.NeedsPostgres() {
		p, err := storage.NewPostgresPool(ctx, cfg.Postgres, zl)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer p.Close()
		pool = p
		checks = append(checks, server.Check{Name: "postgres", Pinger: pool})
	}

	meta, err := openMetadata(ctx, cfg, pool, zl)
	if err != nil {
		return err
	}
	defer meta.Close()
	checks = append(checks, server.Check{Name: "metadata", Pinger: meta})

	blobs, err := openBlobs(ctx, cfg, zl)
	if err != nil {
		return err
	}
	checks = append(checks, server.Check{Name: "storage", Pinger: blobs})

	gen, err := code.NewGenerator(cfg.Share.CodeLength, cfg.Share.CodeAlphabet)
	if err != nil {
		return fmt.Errorf("code generator: %w", err)
	}

	metrics.InitMetrics()
	collector, err := metrics.NewCollector(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("register share metrics: %w", err)
	}

	// zip output of incompressible input can exceed the upload slightly
	artifactLimit := cfg.Share.MaxUploadBytes + cfg.Share.MaxUploadBytes/64 + 64<<10
	opts := []share.Option{
		share.WithTTL(cfg.Share.TTL),
		share.WithMaxSize(artifactLimit),
		share.WithMaxCodeAttempts(cfg.Share.MaxCodeAttempts),
		share.WithLogger(zl.Named("share")),
		share.WithObserver(collector),
	}
	manager := share.NewManager(meta, blobs, gen, opts...)
	service := share.NewService(meta, blobs, gen, opts...)
	sweeper := share.NewSweeper(manager, share.SweeperConfig{
		Interval:     cfg.Share.SweepInterval,
		SweepOnStart: cfg.Share.SweepOnStart,
		OrphanGrace:  cfg.Share.OrphanGrace,
	})

	var accounts *account.Service
	if cfg.Accounts.Enabled {
		repo := account.NewRepository(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			return err
		}
		accounts = account.NewService(repo, cfg.Auth)
	}

	router := server.NewRouter(server.Dependencies{
		Config: cfg,
		Logger: zl,
		Checks: checks,
		Shares: share.HTTPConfig{
			Manager:        manager,
			Service:        service,
			Transformer:    transform.New(0),
			MaxUploadBytes: cfg.Share.MaxUploadBytes,
			Logger:         zl.Named("http"),
		},
		Accounts: accounts,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.Run(ctx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		zl.Info("SwiftShare API listening",
			zap.String("addr", cfg.Server.Address()),
			zap.String("storage", cfg.Share.StorageBackend),
			zap.String("metadata", cfg.Share.MetadataBackend),
			zap.Duration("ttl", cfg.Share.TTL),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		runErr = fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	zl.Info("shutting down gracefully")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zl.Warn("shutdown error", zap.Error(err))
	}
	if runErr != nil {
		// the sweeper only stops on ctx, which the serve failure did not cancel
		return runErr
	}
	wg.Wait()
	return nil
}

func openMetadata(ctx context.Context, cfg config.Config, pool *pgxpool.Pool, zl *zap.Logger) (metastore.Store, error) {
	switch cfg.Share.MetadataBackend {
	case config.MetadataSQLite:
		db, err := storage.OpenSQLite(cfg.Share.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		store, err := metastore.NewSQLiteStore(db)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite metadata: %w", err)
		}
		return store, nil
	case config.MetadataPostgres:
		store := metastore.NewPostgresStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return store, nil
	case config.MetadataRedis:
		client, err := storage.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		return metastore.NewRedisStore(client, cfg.Redis.Key, zl.Named("metastore")), nil
	default:
		store, err := metastore.OpenFileStore(cfg.Share.MetadataPath, zl.Named("metastore"))
		if err != nil {
			return nil, fmt.Errorf("open metadata file: %w", err)
		}
		return store, nil
	}
}

func openBlobs(ctx context.Context, cfg config.Config, zl *zap.Logger) (blob.Store, error) {
	if cfg.Share.StorageBackend == config.StorageMinIO {
		client, err := storage.NewMinIOClient(cfg.MinIO)
		if err != nil {
			return nil, fmt.Errorf("connect minio: %w", err)
		}
		if err := storage.EnsureBucket(ctx, client, cfg.MinIO); err != nil {
			return nil, fmt.Errorf("ensure bucket: %w", err)
		}
		return blob.NewMinIOStore(client, cfg.MinIO.Bucket, cfg.MinIO.Prefix), nil
	}

	store, err := blob.NewDiskStore(cfg.Share.StorageRoot, zl.Named("blob"))
	if err != nil {
		return nil, fmt.Errorf("open storage root: %w", err)
	}
	return store, nil
}
