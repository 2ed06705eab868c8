/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"io"

	"github.com/friendsincode/tonelist/internal/config"
	"github.com/friendsincode/tonelist/internal/events"
	"github.com/rs/zerolog"
)

// Bus is a broker that holds network resources.
type Bus interface {
	events.Broker
	io.Closer
}

type localBus struct{ *events.Bus }

func (localBus) Close() error { return nil }

// New builds the event bus selected by cfg.EventBusBackend.
func New(cfg *config.Config, logger zerolog.Logger) Bus {
	nodeID := cfg.NodeID
	if nodeID == "" {
		nodeID = NodeID()
	}

	switch cfg.EventBusBackend {
	case config.EventBusRedis:
		rc := DefaultRedisConfig()
		rc.Addr = cfg.RedisAddr
		rc.Password = cfg.RedisPassword
		rc.DB = cfg.RedisDB
		return NewRedisBus(rc, nodeID, logger)
	case config.EventBusNATS:
		nc := DefaultNATSConfig()
		if cfg.NATSURL != "" {
			nc.URL = cfg.NATSURL
		}
		return NewNATSBus(nc, nodeID, logger)
	default:
		return localBus{events.NewBus()}
	}
}
