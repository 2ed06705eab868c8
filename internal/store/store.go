/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package store persists session queues keyed by guild id.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/tonelist/internal/config"
	"github.com/friendsincode/tonelist/internal/models"
)

// ErrNotFound is returned by Get and Delete for a key with no queue.
var ErrNotFound = errors.New("queue not found")

// Store is a keyed queue repository. Operations on distinct keys are
// independent; there is no compare-and-swap, so callers serialize their own
// read-modify-write sequences.
type Store interface {
	Get(ctx context.Context, key string) (*models.Queue, error)
	Set(ctx context.Context, key string, q *models.Queue) (*models.Queue, error)
	Delete(ctx context.Context, key string) error
}

// Open builds the backend selected by cfg. database is only used by the sql
// backend and may be nil otherwise.
func Open(cfg *config.Config, database *gorm.DB, logger zerolog.Logger) (Store, error) {
	switch cfg.StoreBackend {
	case config.StoreMemory, "":
		return NewMemory(), nil
	case config.StoreRedis:
		return NewRedis(RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.QueueTTL,
		}, logger)
	case config.StoreSQL:
		if database == nil {
			return nil, fmt.Errorf("sql store requires a database connection")
		}
		return NewSQL(database), nil
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.StoreBackend)
	}
}

func checkKey(key string) error {
	if key == "" {
		return fmt.Errorf("empty store key")
	}
	return nil
}
