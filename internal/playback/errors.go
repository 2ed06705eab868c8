/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import (
	"errors"
	"fmt"

	"github.com/friendsincode/tonelist/internal/store"
	"github.com/friendsincode/tonelist/internal/voice"
)

// Kind classifies every error the Service returns.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidArgument
	KindAlreadyConnected
	KindNotConnected
	KindNotPlaying
	KindQueueNotFound
	KindGuildNotFound
	KindChannelNotFound
	KindInvalidIndex
	KindNoMatches
	KindResolutionFailed
	KindCannotRemoveCurrent

	// KindCount is the number of kinds. Keep it last.
	KindCount
)

var kindNames = [KindCount]string{
	KindInternal:            "internal",
	KindInvalidArgument:     "invalid_argument",
	KindAlreadyConnected:    "already_connected",
	KindNotConnected:        "not_connected",
	KindNotPlaying:          "not_playing",
	KindQueueNotFound:       "queue_not_found",
	KindGuildNotFound:       "guild_not_found",
	KindChannelNotFound:     "channel_not_found",
	KindInvalidIndex:        "invalid_index",
	KindNoMatches:           "no_matches",
	KindResolutionFailed:    "resolution_failed",
	KindCannotRemoveCurrent: "cannot_remove_current",
}

func (k Kind) String() string {
	if k < 0 || k >= KindCount {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// Error is the only error type that leaves the Service.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of err. Errors not produced by the Service are
// KindInternal.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}

func newError(op string, kind Kind, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// classify maps lower-layer failures onto kinds at the Service boundary.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return newError(op, KindQueueNotFound, err)
	case errors.Is(err, voice.ErrGuildNotFound):
		return newError(op, KindGuildNotFound, err)
	case errors.Is(err, voice.ErrChannelNotFound):
		return newError(op, KindChannelNotFound, err)
	case errors.Is(err, voice.ErrNotPlaying):
		return newError(op, KindNotPlaying, err)
	default:
		return newError(op, KindInternal, err)
	}
}
