package store

import (
	"context"

	appconfig "github.com/avetisov/mediascribe/internal/config"
)

// New selects the durability backend for job records. The file backend is
// the default: zero external dependencies, full-store rewrite on every
// mutation, survives process restarts on its own.
func New(ctx context.Context, cfg appconfig.Config) (Store, error) {
	switch cfg.StoreBackend {
	case "redis":
		return NewRedisStore(cfg.RedisURL)
	case "postgres", "pg":
		return NewPostgresStore(ctx, cfg.DatabaseURL)
	case "file", "":
		return NewFileStore(cfg.StoreFile)
	default:
		return NewFileStore(cfg.StoreFile)
	}
}

func BackendType(cfg appconfig.Config) string {
	switch cfg.StoreBackend {
	case "redis":
		return "Redis"
	case "postgres", "pg":
		return "PostgreSQL"
	default:
		return "JSON file"
	}
}
