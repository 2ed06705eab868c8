/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/tonelist/internal/models"
	"github.com/friendsincode/tonelist/internal/telemetry"
)

// KeyQueue prefixes every queue key; the guild id is appended.
const KeyQueue = "tonelist:queue:"

// RedisConfig contains Redis store configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration // 0 disables expiry
}

// Redis stores queues as JSON values.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedis connects and pings the server. Unlike a cache, a queue store
// cannot silently degrade, so a failed ping is an error.
func NewRedis(cfg RedisConfig, logger zerolog.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis store: %w", err)
	}

	logger.Info().Str("addr", cfg.Addr).Msg("Redis session store initialized")

	return NewRedisFromClient(client, cfg.TTL, logger), nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *Redis {
	return &Redis{
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "store").Str("backend", "redis").Logger(),
	}
}

func (r *Redis) Get(ctx context.Context, key string) (*models.Queue, error) {
	data, err := r.client.Get(ctx, KeyQueue+key).Bytes()
	if errors.Is(err, redis.Nil) {
		record("redis", "get", ErrNotFound)
		return nil, ErrNotFound
	}
	if err != nil {
		record("redis", "get", err)
		return nil, fmt.Errorf("get queue %s: %w", key, err)
	}

	var q models.Queue
	if err := json.Unmarshal(data, &q); err != nil {
		r.logger.Warn().Err(err).Str("guild_id", key).Msg("corrupt queue value")
		record("redis", "get", err)
		return nil, fmt.Errorf("decode queue %s: %w", key, err)
	}
	if q.Tracks == nil {
		q.Tracks = []models.Track{}
	}
	record("redis", "get", nil)
	return &q, nil
}

func (r *Redis) Set(ctx context.Context, key string, q *models.Queue) (*models.Queue, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	stored := q.Clone()
	if stored == nil {
		stored = &models.Queue{}
	}
	if stored.Tracks == nil {
		stored.Tracks = []models.Track{}
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("marshal queue: %w", err)
	}

	if err := r.client.Set(ctx, KeyQueue+key, data, r.ttl).Err(); err != nil {
		record("redis", "set", err)
		return nil, fmt.Errorf("set queue %s: %w", key, err)
	}
	record("redis", "set", nil)
	return stored, nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	n, err := r.client.Del(ctx, KeyQueue+key).Result()
	if err != nil {
		record("redis", "delete", err)
		return fmt.Errorf("delete queue %s: %w", key, err)
	}
	if n == 0 {
		record("redis", "delete", ErrNotFound)
		return ErrNotFound
	}
	record("redis", "delete", nil)
	return nil
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}

func record(backend, op string, err error) {
	result := "ok"
	switch {
	case errors.Is(err, ErrNotFound):
		result = "not_found"
	case err != nil:
		result = "error"
	}
	telemetry.StoreOperations.WithLabelValues(backend, op, result).Inc()
}
