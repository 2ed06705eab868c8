/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/friendsincode/tonelist/internal/events"
	"github.com/google/uuid"
)

// channelPrefix namespaces every distributed event channel or subject.
const channelPrefix = "tonelist.events."

// message is the envelope shared by the Redis and NATS buses.
type message struct {
	MessageID string           `json:"message_id"`
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
}

func marshalMessage(eventType events.EventType, payload events.Payload, nodeID string) ([]byte, error) {
	return json.Marshal(message{
		MessageID: uuid.NewString(),
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		NodeID:    nodeID,
	})
}

func unmarshalMessage(data []byte) (*message, error) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal event message: %w", err)
	}
	return &msg, nil
}

// NodeID returns an identifier unique to this process, used to drop echoes
// of events this node published itself.
func NodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "tonelist"
	}
	return host + "-" + uuid.NewString()[:8]
}

func channelName(eventType events.EventType) string {
	return channelPrefix + string(eventType)
}
