/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"sync"
	"time"

	"github.com/friendsincode/tonelist/internal/events"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisBus fans events out to other nodes over Redis pub/sub. Local
// subscribers are served by an in-process bus, so the bus keeps working
// when Redis is unreachable.
type RedisBus struct {
	client *redis.Client
	local  *events.Bus
	logger zerolog.Logger
	nodeID string

	mu       sync.Mutex
	channels map[events.EventType]*redis.PubSub
	refs     map[events.EventType]int

	// Circuit breaker state
	useFallback bool
	failCount   int
	maxFails    int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// RedisConfig contains Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	DialTimeout time.Duration
	MaxFailures int
}

// DefaultRedisConfig returns default Redis configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:        "localhost:6379",
		DialTimeout: 5 * time.Second,
		MaxFailures: 5,
	}
}

// NewRedisBus creates a Redis-backed event bus. An unreachable server is
// logged and the bus degrades to local delivery only.
func NewRedisBus(cfg RedisConfig, nodeID string, logger zerolog.Logger) *RedisBus {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	ctx, cancel := context.WithCancel(context.Background())
	rb := &RedisBus{
		local:    events.NewBus(),
		logger:   logger.With().Str("component", "eventbus").Str("backend", "redis").Logger(),
		nodeID:   nodeID,
		channels: make(map[events.EventType]*redis.PubSub),
		refs:     make(map[events.EventType]int),
		maxFails: cfg.MaxFailures,
		ctx:      ctx,
		cancel:   cancel,
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	pingCtx, pingCancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer pingCancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		rb.logger.Warn().Err(err).Str("addr", cfg.Addr).Msg("redis unavailable, events stay on this node")
		_ = client.Close()
		rb.useFallback = true
		return rb
	}

	rb.client = client
	rb.logger.Info().Str("addr", cfg.Addr).Str("node_id", nodeID).Msg("redis event bus initialized")
	return rb
}

// Subscribe registers a subscriber for an event type.
func (rb *RedisBus) Subscribe(eventType events.EventType) events.Subscriber {
	sub := rb.local.Subscribe(eventType)

	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.refs[eventType]++
	if rb.useFallback || rb.channels[eventType] != nil {
		return sub
	}

	pubsub := rb.client.Subscribe(rb.ctx, channelName(eventType))
	rb.channels[eventType] = pubsub
	rb.wg.Add(1)
	go rb.receive(eventType, pubsub)
	return sub
}

func (rb *RedisBus) receive(eventType events.EventType, pubsub *redis.PubSub) {
	defer rb.wg.Done()
	ch := pubsub.Channel()
	for {
		select {
		case <-rb.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			decoded, err := unmarshalMessage([]byte(msg.Payload))
			if err != nil {
				rb.logger.Error().Err(err).Msg("dropping malformed redis event")
				continue
			}
			if decoded.NodeID == rb.nodeID {
				continue
			}
			rb.local.Publish(eventType, decoded.Payload)
		}
	}
}

// Publish delivers payload to local subscribers and to every other node.
func (rb *RedisBus) Publish(eventType events.EventType, payload events.Payload) {
	rb.local.Publish(eventType, payload)

	rb.mu.Lock()
	fallback := rb.useFallback
	rb.mu.Unlock()
	if fallback {
		return
	}

	data, err := marshalMessage(eventType, payload, rb.nodeID)
	if err != nil {
		rb.logger.Error().Err(err).Msg("failed to marshal event")
		return
	}

	ctx, cancel := context.WithTimeout(rb.ctx, 2*time.Second)
	defer cancel()
	if err := rb.client.Publish(ctx, channelName(eventType), data).Err(); err != nil {
		rb.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to publish to redis")
		rb.handleFailure()
		return
	}

	rb.mu.Lock()
	rb.failCount = 0
	rb.mu.Unlock()
}

// Unsubscribe removes a subscriber and drops the Redis subscription once
// nobody on this node listens to eventType.
func (rb *RedisBus) Unsubscribe(eventType events.EventType, sub events.Subscriber) {
	rb.local.Unsubscribe(eventType, sub)

	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.refs[eventType] > 0 {
		rb.refs[eventType]--
	}
	if rb.refs[eventType] > 0 {
		return
	}
	if pubsub := rb.channels[eventType]; pubsub != nil {
		_ = pubsub.Close()
		delete(rb.channels, eventType)
	}
}

// Fallback reports whether the bus is delivering locally only.
func (rb *RedisBus) Fallback() bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.useFallback
}

// Close stops all receivers and closes the Redis connection.
func (rb *RedisBus) Close() error {
	rb.cancel()

	rb.mu.Lock()
	for eventType, pubsub := range rb.channels {
		_ = pubsub.Close()
		delete(rb.channels, eventType)
	}
	client := rb.client
	rb.client = nil
	rb.useFallback = true
	rb.mu.Unlock()

	rb.wg.Wait()
	if client != nil {
		return client.Close()
	}
	return nil
}

// handleFailure trips the circuit breaker after maxFails consecutive
// publish errors.
func (rb *RedisBus) handleFailure() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.failCount++
	if rb.failCount >= rb.maxFails && !rb.useFallback {
		rb.logger.Warn().Int("fail_count", rb.failCount).Msg("redis failure threshold reached, events stay on this node")
		rb.useFallback = true
	}
}
