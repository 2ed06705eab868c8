/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package auth

import (
	"context"
	"errors"
	"net/http"
	"path"
	"slices"
	"strings"
)

var (
	// ErrForbidden means the caller's token does not cover the guild.
	ErrForbidden = errors.New("guild access denied")
	// ErrNotMember means the user is not in the guild.
	ErrNotMember = errors.New("user is not a member of the guild")
)

// MembershipChecker confirms a user belongs to a guild the bot can see.
type MembershipChecker interface {
	IsMember(ctx context.Context, guildID, userID string) (bool, error)
}

// Middleware validates JWT Bearer tokens and injects claims into the
// request context.
func Middleware(jwtSecret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				unauthorized(w)
				return
			}
			claims, err := Parse(jwtSecret, token)
			if err != nil || claims == nil {
				unauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// Authorize checks that claims cover guildID. When checker is set and the
// token names a user, the user must also be a member of the guild; wildcard
// service tokens skip that check.
func Authorize(ctx context.Context, claims *Claims, guildID string, checker MembershipChecker) error {
	if !claims.CanAccess(guildID) {
		return ErrForbidden
	}
	if checker == nil || claims.UserID == "" || slices.Contains(claims.Guilds, AllGuilds) {
		return nil
	}
	ok, err := checker.IsMember(ctx, guildID, claims.UserID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotMember
	}
	return nil
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","message":"You must be logged in to perform this action"}`))
}

func extractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}

	// Browser WebSocket clients cannot set arbitrary Authorization headers.
	// Allow query-token auth only for the events WebSocket upgrade endpoint.
	if isWebSocketUpgrade(r) && path.Clean(r.URL.Path) == "/api/v1/events" {
		if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
			return token
		}
	}
	return ""
}

func isWebSocketUpgrade(r *http.Request) bool {
	if r == nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(r.Header.Get("Upgrade")), "websocket")
}
