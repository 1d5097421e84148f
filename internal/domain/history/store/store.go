package store

import (
	"context"
	stderrors "errors"
	"time"

	"formula-ocr-server/internal/domain/history/model"
)

// ErrNotFound is returned by Get for unknown or expired ids.
var ErrNotFound = stderrors.New("recognition record not found")

// Store persists recognition history.
type Store interface {
	Save(ctx context.Context, record model.Record) error
	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]model.Record, error)
	Get(ctx context.Context, id string) (model.Record, error)
	Stats(ctx context.Context) (map[string]any, error)
	Close(ctx context.Context) error
}

// Config describes the high level store selection parameters.
type Config struct {
	Driver string
	// Capacity bounds the memory ring and the redis index list.
	Capacity int
	TTL      time.Duration
	Redis    *RedisConfig
}

// RedisConfig captures connection options.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
}

const defaultCapacity = 200

func capacityOf(cfg Config) int {
	if cfg.Capacity <= 0 {
		return defaultCapacity
	}
	return cfg.Capacity
}
