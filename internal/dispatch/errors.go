/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package dispatch

import (
	"errors"
	"net/http"

	"github.com/friendsincode/tonelist/internal/playback"
)

// SurfaceError is how one error kind looks on every surface.
type SurfaceError struct {
	Status  int    // HTTP status
	Code    string // HTTP error body code
	RPCCode int    // JSON-RPC error code
	Text    string // interactive reply and error message
}

// JSON-RPC 2.0 reserved codes.
const (
	RPCParseError     = -32700
	RPCInvalidRequest = -32600
	RPCMethodNotFound = -32601
	RPCInvalidParams  = -32602
	RPCInternalError  = -32603
)

var surfaceErrors = [...]SurfaceError{
	playback.KindInternal: {
		Status: http.StatusInternalServerError, Code: "internal", RPCCode: RPCInternalError,
		Text: "Internal error",
	},
	playback.KindInvalidArgument: {
		Status: http.StatusBadRequest, Code: "invalid_argument", RPCCode: RPCInvalidParams,
		Text: "Invalid request",
	},
	playback.KindAlreadyConnected: {
		Status: http.StatusConflict, Code: "already_connected", RPCCode: -32001,
		Text: "Already connected to a voice channel in this server",
	},
	playback.KindNotConnected: {
		Status: http.StatusConflict, Code: "not_connected", RPCCode: -32002,
		Text: "Not connected to a voice channel",
	},
	playback.KindNotPlaying: {
		Status: http.StatusConflict, Code: "not_playing", RPCCode: -32003,
		Text: "Nothing is playing",
	},
	playback.KindQueueNotFound: {
		Status: http.StatusNotFound, Code: "queue_not_found", RPCCode: -32004,
		Text: "There is no queue for this server",
	},
	playback.KindGuildNotFound: {
		Status: http.StatusNotFound, Code: "guild_not_found", RPCCode: -32005,
		Text: "Server not found",
	},
	playback.KindChannelNotFound: {
		Status: http.StatusNotFound, Code: "channel_not_found", RPCCode: -32006,
		Text: "Voice channel not found",
	},
	playback.KindInvalidIndex: {
		Status: http.StatusBadRequest, Code: "invalid_index", RPCCode: -32007,
		Text: "There is no track at that position",
	},
	playback.KindNoMatches: {
		Status: http.StatusNotFound, Code: "no_matches", RPCCode: -32008,
		Text: "No tracks matched the query",
	},
	playback.KindResolutionFailed: {
		Status: http.StatusBadGateway, Code: "resolution_failed", RPCCode: -32009,
		Text: "Could not look up tracks, try again later",
	},
	playback.KindCannotRemoveCurrent: {
		Status: http.StatusConflict, Code: "cannot_remove_current", RPCCode: -32010,
		Text: "That track is playing, use skip instead",
	},
}

// Every kind needs an entry and every entry needs a kind.
var (
	_ [len(surfaceErrors) - int(playback.KindCount)]struct{}
	_ [int(playback.KindCount) - len(surfaceErrors)]struct{}
)

// Lookup returns the surface representation of err.
func Lookup(err error) SurfaceError {
	kind := playback.KindOf(err)
	if kind < 0 || int(kind) >= len(surfaceErrors) {
		kind = playback.KindInternal
	}
	return surfaceErrors[kind]
}

// Text is the user-facing message for err. Invalid-argument errors name the
// offending argument; internal errors never leak their cause.
func Text(err error) string {
	se := Lookup(err)
	var pe *playback.Error
	if playback.KindOf(err) == playback.KindInvalidArgument && errors.As(err, &pe) && pe.Err != nil {
		return se.Text + ": " + pe.Err.Error()
	}
	return se.Text
}
