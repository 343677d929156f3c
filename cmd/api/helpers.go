package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pwannenmacher/ConfReview/internal/config"
	"github.com/pwannenmacher/ConfReview/internal/database"
	"github.com/pwannenmacher/ConfReview/internal/repository"
)

func getContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

// openedStore is a repository set plus the connection behind it
type openedStore struct {
	*repository.Store
	health func(context.Context) error
	close  func() error
}

func (s *openedStore) HealthCheck(ctx context.Context) error { return s.health(ctx) }

func (s *openedStore) Close() error { return s.close() }

// openStore connects the backend selected by STORE_DRIVER
func openStore(cfg *config.Config) (*openedStore, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		ctx, cancel := getContext(30 * time.Second)
		defer cancel()

		db, err := database.New(ctx, &cfg.Database)
		if err != nil {
			return nil, err
		}
		slog.Info("Database connection established")

		if cfg.Database.AutoMigrate {
			if err := database.RunMigrations(cfg.Database.DSN()); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("failed to run migrations: %w", err)
			}
			slog.Info("Database migrations completed")
		}

		return &openedStore{
			Store:  repository.NewPostgresStore(db.DB),
			health: db.HealthCheck,
			close:  db.Close,
		}, nil

	case config.StoreDriverMongo:
		ctx, cancel := getContext(cfg.Mongo.ConnectTimeout + 10*time.Second)
		defer cancel()

		m, err := database.NewMongo(ctx, &cfg.Mongo)
		if err != nil {
			return nil, err
		}
		slog.Info("Mongo connection established", "database", cfg.Mongo.Database)

		store, err := repository.NewMongoStore(ctx, m.DB)
		if err != nil {
			_ = m.Close(context.Background())
			return nil, err
		}

		return &openedStore{
			Store:  store,
			health: m.HealthCheck,
			close: func() error {
				ctx, cancel := getContext(5 * time.Second)
				defer cancel()
				return m.Close(ctx)
			},
		}, nil

	case config.StoreDriverMemory:
		slog.Warn("Using the in-memory store; data is lost on restart")
		return &openedStore{
			Store:  repository.NewMemoryStore(),
			health: func(context.Context) error { return nil },
			close:  func() error { return nil },
		}, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
