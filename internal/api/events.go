/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"time"

	ws "nhooyr.io/websocket"

	"github.com/friendsincode/tonelist/internal/auth"
	"github.com/friendsincode/tonelist/internal/events"
	"github.com/friendsincode/tonelist/internal/telemetry"
)

const pingInterval = 15 * time.Second

type streamEvent struct {
	Type    events.EventType `json:"type"`
	Payload events.Payload   `json:"payload"`
}

// handleEvents streams session events over a websocket. ?types= narrows
// the event types and ?guild= narrows to one guild.
func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	eventTypes := parseEventTypes(r.URL.Query().Get("types"))
	if len(eventTypes) == 0 {
		eventTypes = events.SessionEvents
	}
	guild := r.URL.Query().Get("guild")
	if guild != "" {
		if err := a.authorize(r.Context(), guild); err != nil {
			status, code, msg := authFailure(err)
			writeError(w, status, code, msg)
			return
		}
	}
	claims, _ := auth.ClaimsFromContext(r.Context())

	conn, err := ws.Accept(w, r, &ws.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		a.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	telemetry.EventSubscribers.Inc()
	defer telemetry.EventSubscribers.Dec()

	ctx := conn.CloseRead(r.Context())
	merged := a.subscribe(ctx, eventTypes)

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(ws.StatusNormalClosure, "")
			return
		case <-ticker.C:
			if err := conn.Write(ctx, ws.MessageText, []byte(`{"type":"ping"}`)); err != nil {
				return
			}
		case ev := <-merged:
			if !a.visible(claims, guild, ev.Payload) {
				continue
			}
			if err := writeEvent(ctx, conn, ev); err != nil {
				a.logger.Debug().Err(err).Msg("websocket write failed")
				return
			}
		}
	}
}

// subscribe fans every subscriber into one channel until ctx ends.
func (a *API) subscribe(ctx context.Context, eventTypes []events.EventType) <-chan streamEvent {
	merged := make(chan streamEvent, 32)
	for _, eventType := range eventTypes {
		sub := a.bus.Subscribe(eventType)
		go func(eventType events.EventType, sub events.Subscriber) {
			defer a.bus.Unsubscribe(eventType, sub)
			for {
				select {
				case <-ctx.Done():
					return
				case payload, ok := <-sub:
					if !ok {
						return
					}
					select {
					case merged <- streamEvent{Type: eventType, Payload: payload}:
					case <-ctx.Done():
						return
					}
				}
			}
		}(eventType, sub)
	}
	return merged
}

// visible reports whether the caller may see an event about the payload's guild.
func (a *API) visible(claims *auth.Claims, guild string, payload events.Payload) bool {
	guildID, _ := payload["guild_id"].(string)
	if guild != "" && guildID != guild {
		return false
	}
	if !a.authEnabled() {
		return true
	}
	return claims.CanAccess(guildID)
}

func writeEvent(ctx context.Context, conn *ws.Conn, ev streamEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return conn.Write(ctx, ws.MessageText, data)
}

func parseEventTypes(raw string) []events.EventType {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]events.EventType, 0, len(parts))
	for _, part := range parts {
		eventType := events.EventType(strings.TrimSpace(part))
		if slices.Contains(events.SessionEvents, eventType) && !slices.Contains(out, eventType) {
			out = append(out, eventType)
		}
	}
	return out
}
