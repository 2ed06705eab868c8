/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"sync"
	"time"

	"github.com/friendsincode/tonelist/internal/events"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL           string
	Token         string
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns default NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		MaxReconnects: 10,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// NATSBus fans events out over NATS subjects. Like RedisBus it keeps an
// in-process bus for local delivery and degrades to it when NATS is down.
type NATSBus struct {
	conn   *nats.Conn
	local  *events.Bus
	logger zerolog.Logger
	nodeID string

	mu   sync.Mutex
	subs map[events.EventType]*nats.Subscription
	refs map[events.EventType]int
}

// NewNATSBus connects to NATS. Connection failure is logged and the bus
// serves local subscribers only.
func NewNATSBus(cfg NATSConfig, nodeID string, logger zerolog.Logger) *NATSBus {
	nb := &NATSBus{
		local:  events.NewBus(),
		logger: logger.With().Str("component", "eventbus").Str("backend", "nats").Logger(),
		nodeID: nodeID,
		subs:   make(map[events.EventType]*nats.Subscription),
		refs:   make(map[events.EventType]int),
	}

	opts := []nats.Option{
		nats.Name("tonelist-" + nodeID),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			nb.logger.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			nb.logger.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		nb.logger.Warn().Err(err).Str("url", cfg.URL).Msg("nats unavailable, events stay on this node")
		return nb
	}
	nb.conn = conn
	nb.logger.Info().Str("url", cfg.URL).Str("node_id", nodeID).Msg("nats event bus initialized")
	return nb
}

// Subscribe registers a subscriber for an event type.
func (nb *NATSBus) Subscribe(eventType events.EventType) events.Subscriber {
	sub := nb.local.Subscribe(eventType)

	nb.mu.Lock()
	defer nb.mu.Unlock()
	nb.refs[eventType]++
	if nb.conn == nil || nb.subs[eventType] != nil {
		return sub
	}

	natsSub, err := nb.conn.Subscribe(channelName(eventType), func(msg *nats.Msg) {
		decoded, err := unmarshalMessage(msg.Data)
		if err != nil {
			nb.logger.Error().Err(err).Msg("dropping malformed nats event")
			return
		}
		if decoded.NodeID == nb.nodeID {
			return
		}
		nb.local.Publish(eventType, decoded.Payload)
	})
	if err != nil {
		nb.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("nats subscribe failed")
		return sub
	}
	nb.subs[eventType] = natsSub
	return sub
}

// Publish delivers payload to local subscribers and to every other node.
func (nb *NATSBus) Publish(eventType events.EventType, payload events.Payload) {
	nb.local.Publish(eventType, payload)

	nb.mu.Lock()
	conn := nb.conn
	nb.mu.Unlock()
	if conn == nil {
		return
	}

	data, err := marshalMessage(eventType, payload, nb.nodeID)
	if err != nil {
		nb.logger.Error().Err(err).Msg("failed to marshal event")
		return
	}
	if err := conn.Publish(channelName(eventType), data); err != nil {
		nb.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to publish to nats")
	}
}

// Unsubscribe removes a subscriber.
func (nb *NATSBus) Unsubscribe(eventType events.EventType, sub events.Subscriber) {
	nb.local.Unsubscribe(eventType, sub)

	nb.mu.Lock()
	defer nb.mu.Unlock()
	if nb.refs[eventType] > 0 {
		nb.refs[eventType]--
	}
	if nb.refs[eventType] > 0 {
		return
	}
	if natsSub := nb.subs[eventType]; natsSub != nil {
		_ = natsSub.Unsubscribe()
		delete(nb.subs, eventType)
	}
}

// Connected reports whether the bus currently reaches a NATS server.
func (nb *NATSBus) Connected() bool {
	nb.mu.Lock()
	defer nb.mu.Unlock()
	return nb.conn != nil && nb.conn.IsConnected()
}

// Close drains in-flight messages and closes the connection.
func (nb *NATSBus) Close() error {
	nb.mu.Lock()
	conn := nb.conn
	nb.conn = nil
	nb.subs = make(map[events.EventType]*nats.Subscription)
	nb.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Drain()
}
