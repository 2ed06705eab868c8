/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package voice

// ConnectionState is the lifecycle state of a voice connection.
type ConnectionState string

const (
	StateDisconnected    ConnectionState = "disconnected"
	StateConnecting      ConnectionState = "connecting"
	StateReady           ConnectionState = "ready"
	StateSignallingRetry ConnectionState = "signalling"
	StateDestroyed       ConnectionState = "destroyed"
)

// PlayerState is what the audio player is doing.
type PlayerState string

const (
	PlayerIdle    PlayerState = "idle"
	PlayerPlaying PlayerState = "playing"
	PlayerPaused  PlayerState = "paused"
)

// Connecting -> Connecting is the full reset after a handshake timeout.
var validTransitions = map[ConnectionState][]ConnectionState{
	StateDisconnected: {
		StateConnecting,
		StateSignallingRetry,
		StateDestroyed,
	},
	StateConnecting: {
		StateConnecting,
		StateReady,
		StateSignallingRetry,
		StateDisconnected,
		StateDestroyed,
	},
	StateSignallingRetry: {
		StateConnecting,
		StateReady,
		StateDisconnected,
		StateDestroyed,
	},
	StateReady: {
		StateConnecting,
		StateSignallingRetry,
		StateDisconnected,
		StateDestroyed,
	},
}

func isValidTransition(from, to ConnectionState) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// handshaking reports whether s waits on the handshake watchdog.
func (s ConnectionState) handshaking() bool {
	return s == StateConnecting || s == StateSignallingRetry
}

// SignalKind enumerates what a Transport reports.
type SignalKind int

const (
	SignalConnecting SignalKind = iota
	SignalSignalling
	SignalReady
	SignalDisconnected
	SignalTrackStart
	SignalTrackEnd
	SignalTrackError
)

func (k SignalKind) String() string {
	switch k {
	case SignalConnecting:
		return "connecting"
	case SignalSignalling:
		return "signalling"
	case SignalReady:
		return "ready"
	case SignalDisconnected:
		return "disconnected"
	case SignalTrackStart:
		return "track_start"
	case SignalTrackEnd:
		return "track_end"
	case SignalTrackError:
		return "track_error"
	default:
		return "unknown"
	}
}

// Signal is a raw transport notification. Payload identifies the track a
// player signal refers to; empty means "whatever is current".
type Signal struct {
	Kind    SignalKind
	Payload string
	Reason  string
	Err     error
}

// EventKind enumerates what a Connection reports to its owner.
type EventKind int

const (
	EventTrackEnd EventKind = iota
	EventTrackError
	EventExit
	EventStateChange
)

func (k EventKind) String() string {
	switch k {
	case EventTrackEnd:
		return "track_end"
	case EventTrackError:
		return "track_error"
	case EventExit:
		return "exit"
	case EventStateChange:
		return "state_change"
	default:
		return "unknown"
	}
}
