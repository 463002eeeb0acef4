package container

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/garyjia/billed/internal/application/dispatcher"
	"github.com/garyjia/billed/internal/application/port"
	"github.com/garyjia/billed/internal/config"
	"github.com/garyjia/billed/internal/infrastructure/messaging/natsbus"
	"github.com/garyjia/billed/internal/infrastructure/metrics"
	"github.com/garyjia/billed/internal/infrastructure/persistence/repository"
	"github.com/garyjia/billed/internal/infrastructure/resilience"
	"github.com/garyjia/billed/internal/infrastructure/storage"
	"github.com/garyjia/billed/internal/infrastructure/store/local"
	"github.com/garyjia/billed/internal/infrastructure/store/remote"
	"github.com/garyjia/billed/pkg/database"
)

// StoreBundle is what the configured store mode provides
type StoreBundle struct {
	// Store backs the pages, nil in "none" mode
	Store port.Store
	// Local is set in "local" mode and served under /api
	Local    *local.Store
	Receipts port.ReceiptStorage
	DB       *database.DB
	Breaker  *resilience.Breaker
}

// ProvideDatabase opens the database and applies the embedded migrations
func ProvideDatabase(cfg *config.DatabaseConfig, logger *zap.Logger) (*database.DB, error) {
	if cfg.Path != database.MemoryPath {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	if err := database.NewMigrator(db, logger).Run(context.Background(), database.Migrations); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// ProvideReceiptStorage creates the receipts directory and its storage
func ProvideReceiptStorage(cfg *config.StorageConfig, logger *zap.Logger) (port.ReceiptStorage, error) {
	if err := os.MkdirAll(cfg.ReceiptsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create receipts directory: %w", err)
	}
	return storage.NewReceiptFileStorage(cfg.ReceiptsDir, logger), nil
}

// ProvideDispatcher creates the event dispatcher and subscribes the metrics to every event
func ProvideDispatcher(m *metrics.Metrics, logger *zap.Logger) dispatcher.Dispatcher {
	disp := dispatcher.NewDispatcher(
		dispatcher.WithLogger(&zapLoggerAdapter{logger: logger.Named("dispatcher")}),
	)
	disp.SubscribeAll("metrics", m.HandleEvent)
	return disp
}

// ProvideEventForwarder connects to NATS and forwards every event there.
// It returns a nil connection when no NATS URL is configured.
func ProvideEventForwarder(cfg *config.NATSConfig, disp dispatcher.Dispatcher, logger *zap.Logger) (*nats.Conn, error) {
	if cfg.URL == "" {
		logger.Info("NATS not configured, events stay in process")
		return nil, nil
	}

	natsLogger := &zapLoggerAdapter{logger: logger.Named("nats")}
	conn, err := natsbus.Connect(cfg.URL, natsbus.Options{
		ReconnectWait: cfg.ReconnectWait,
		MaxReconnects: cfg.MaxReconnects,
	}, natsLogger)
	if err != nil {
		return nil, err
	}

	forwarder := natsbus.NewForwarder(conn, cfg.SubjectPrefix, natsLogger)
	disp.SubscribeAll("nats", forwarder.Handle)
	logger.Info("Forwarding events to NATS", zap.String("url", cfg.URL), zap.String("prefix", cfg.SubjectPrefix))
	return conn, nil
}

// ProvideStore builds the store selected by cfg.Store.Mode
func ProvideStore(cfg *config.Config, disp dispatcher.Dispatcher, m *metrics.Metrics, logger *zap.Logger) (*StoreBundle, error) {
	switch cfg.Store.Mode {
	case config.StoreModeLocal:
		db, err := ProvideDatabase(&cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		receipts, err := ProvideReceiptStorage(&cfg.Storage, logger)
		if err != nil {
			db.Close()
			return nil, err
		}
		repo := repository.NewBillRepository(db.DB, logger)
		store := local.NewStore(repo, receipts, disp, cfg.Storage.PublicBaseURL, &zapLoggerAdapter{logger: logger.Named("store")})
		return &StoreBundle{Store: store, Local: store, Receipts: receipts, DB: db}, nil

	case config.StoreModeRemote:
		storeLogger := &zapLoggerAdapter{logger: logger.Named("store")}
		breaker := resilience.NewBreaker(resilience.Config{
			Enabled:          cfg.Store.Breaker.Enabled,
			MinRequests:      cfg.Store.Breaker.MinRequests,
			FailureRatio:     cfg.Store.Breaker.FailureRatio,
			OpenTimeout:      cfg.Store.Breaker.OpenTimeout,
			HalfOpenMaxCalls: cfg.Store.Breaker.HalfOpenMaxCalls,
		}, storeLogger,
			resilience.WithClassifier(remote.IsServerFailure),
			resilience.WithStateListener(m.OnBreakerStateChange),
		)
		store, err := remote.NewStore(remote.Config{
			BaseURL:   cfg.Store.BaseURL,
			Timeout:   cfg.Store.Timeout,
			RateLimit: cfg.Store.RateLimit,
			Burst:     cfg.Store.Burst,
		}, storeLogger, remote.WithBreaker(breaker), remote.WithObserver(m))
		if err != nil {
			return nil, err
		}
		return &StoreBundle{Store: store, Breaker: breaker}, nil

	case config.StoreModeNone:
		logger.Info("No store configured, bill lists stay empty")
		return &StoreBundle{}, nil

	default:
		return nil, fmt.Errorf("unknown store mode %q", cfg.Store.Mode)
	}
}
