package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jimmystore/catalog/internal/catalog"
	"github.com/jimmystore/catalog/internal/config"
	"github.com/jimmystore/catalog/internal/db"
	"github.com/jimmystore/catalog/internal/images"
	"github.com/jimmystore/catalog/internal/mongostore"
	"github.com/jimmystore/catalog/internal/store"
)

// records is the selected item backend.
type records struct {
	items     catalog.Repository
	jwtSecret func(context.Context) (string, error)
	close     func()
}

func openRecords(ctx context.Context, cfg *config.Config) (*records, error) {
	switch cfg.DBBackend {
	case config.BackendMongo:
		ms, err := mongostore.Connect(ctx, cfg.MongoURL, cfg.DBName)
		if err != nil {
			return nil, fmt.Errorf("connecting to mongo: %w", err)
		}
		slog.Info("database ready", "backend", "mongo", "db", cfg.DBName)
		return &records{
			items:     ms.Items(),
			jwtSecret: ms.JWTSecret,
			close: func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := ms.Close(ctx); err != nil {
					slog.Error("failed to disconnect from mongo", "error", err)
				}
			},
		}, nil

	default:
		database, err := db.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		if err := db.EnsureSchema(database); err != nil {
			database.Close()
			return nil, fmt.Errorf("ensuring database schema: %w", err)
		}
		slog.Info("database ready", "backend", "sqlite", "path", cfg.SQLitePath)
		return &records{
			items: store.NewItems(database),
			jwtSecret: func(ctx context.Context) (string, error) {
				return store.GetJWTSecret(ctx, database)
			},
			close: func() { closeDB(database) },
		}, nil
	}
}

func closeDB(database *sql.DB) {
	if err := database.Close(); err != nil {
		slog.Error("failed to close database", "error", err)
	}
}

// imageBackend is an image store that can also serve its files.
type imageBackend interface {
	images.Store
	Handler() http.Handler
}

func openImages(ctx context.Context, cfg *config.Config) (imageBackend, error) {
	switch cfg.ImageBackend {
	case config.ImagesMinIO:
		bucket, err := images.NewBucket(ctx, images.BucketConfig{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("opening image bucket: %w", err)
		}
		slog.Info("image store ready", "backend", "minio", "bucket", cfg.MinIOBucket)
		return bucket, nil

	default:
		disk, err := images.NewDisk(cfg.UploadsDir)
		if err != nil {
			return nil, fmt.Errorf("opening uploads directory: %w", err)
		}
		slog.Info("image store ready", "backend", "disk", "dir", disk.Root())
		return disk, nil
	}
}
