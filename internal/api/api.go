/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/friendsincode/tonelist/internal/auth"
	"github.com/friendsincode/tonelist/internal/dispatch"
	"github.com/friendsincode/tonelist/internal/events"
	"github.com/friendsincode/tonelist/internal/logbuffer"
)

const maxBodyBytes = 1 << 20

// API exposes HTTP handlers.
type API struct {
	dispatcher *dispatch.Dispatcher
	bus        events.Broker
	jwtSecret  []byte
	members    auth.MembershipChecker
	logs       *logbuffer.Buffer
	logger     zerolog.Logger
}

// New creates the API router wrapper. An empty jwtSecret disables
// authentication; members may be nil.
func New(dispatcher *dispatch.Dispatcher, bus events.Broker, jwtSecret []byte, members auth.MembershipChecker, logger zerolog.Logger) *API {
	a := &API{
		dispatcher: dispatcher,
		bus:        bus,
		jwtSecret:  jwtSecret,
		members:    members,
		logger:     logger.With().Str("component", "api").Logger(),
	}
	if !a.authEnabled() {
		a.logger.Warn().Msg("no JWT signing key configured, API authentication disabled")
	}
	return a
}

// SetLogBuffer enables GET /api/v1/logs.
func (a *API) SetLogBuffer(buf *logbuffer.Buffer) {
	a.logs = buf
}

func (a *API) authEnabled() bool { return len(a.jwtSecret) > 0 }

type commandRequest struct {
	ChannelID       string `json:"channel_id"`
	NotifyChannelID string `json:"notify_channel_id"`
	Query           string `json:"query"`
	Index           *int   `json:"index"`
}

// Routes mounts API routes on provided router.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)

		r.Group(func(pr chi.Router) {
			if a.authEnabled() {
				pr.Use(auth.Middleware(a.jwtSecret))
			}

			pr.Get("/events", a.handleEvents)
			pr.Post("/actions", a.handleRPC)
			if a.logs != nil {
				pr.Get("/logs", a.handleLogs)
			}

			pr.Route("/guilds/{guildID}", func(r chi.Router) {
				r.Use(a.requireGuildAccess)
				r.Get("/queue", a.handleCommand(dispatch.CmdQueue))
				for _, cmd := range dispatch.Commands {
					if cmd == dispatch.CmdQueue {
						continue
					}
					r.Post("/"+string(cmd), a.handleCommand(cmd))
				}
			})
		})
	})
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleCommand(cmd dispatch.Command) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body commandRequest
		if r.Method != http.MethodGet {
			if err := decodeBody(w, r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_json", "Request body must be a JSON object")
				return
			}
		}

		res, err := a.dispatcher.Dispatch(r.Context(), dispatch.SurfaceHTTP, cmd, dispatch.Args{
			GuildID:         chi.URLParam(r, "guildID"),
			ChannelID:       body.ChannelID,
			NotifyChannelID: body.NotifyChannelID,
			Query:           body.Query,
			Index:           body.Index,
		})
		if err != nil {
			se := dispatch.Lookup(err)
			writeError(w, se.Status, se.Code, dispatch.Text(err))
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// decodeBody reads a JSON object. An empty body decodes to the zero value.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (a *API) requireGuildAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := a.authorize(r.Context(), chi.URLParam(r, "guildID")); err != nil {
			status, code, msg := authFailure(err)
			writeError(w, status, code, msg)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authorize checks the caller's access to guildID.
func (a *API) authorize(ctx context.Context, guildID string) error {
	if !a.authEnabled() {
		return nil
	}
	claims, _ := auth.ClaimsFromContext(ctx)
	return auth.Authorize(ctx, claims, guildID, a.members)
}

func authFailure(err error) (status int, code, message string) {
	switch {
	case errors.Is(err, auth.ErrForbidden), errors.Is(err, auth.ErrNotMember):
		return http.StatusForbidden, "forbidden", "You do not have access to this server"
	default:
		return http.StatusInternalServerError, "internal", "Internal error"
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}
