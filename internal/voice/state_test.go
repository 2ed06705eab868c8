/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package voice

import "testing"

func TestIsValidTransition(t *testing.T) {
	tests := []struct {
		name  string
		from  ConnectionState
		to    ConnectionState
		valid bool
	}{
		{"disconnected to connecting", StateDisconnected, StateConnecting, true},
		{"disconnected to signalling", StateDisconnected, StateSignallingRetry, true},
		{"disconnected to ready invalid", StateDisconnected, StateReady, false},
		{"disconnected to destroyed", StateDisconnected, StateDestroyed, true},

		{"connecting to ready", StateConnecting, StateReady, true},
		{"connecting reset", StateConnecting, StateConnecting, true},
		{"connecting to disconnected", StateConnecting, StateDisconnected, true},

		{"signalling to connecting", StateSignallingRetry, StateConnecting, true},
		{"signalling to ready", StateSignallingRetry, StateReady, true},
		{"signalling to itself invalid", StateSignallingRetry, StateSignallingRetry, false},

		{"ready to disconnected", StateReady, StateDisconnected, true},
		{"ready to signalling", StateReady, StateSignallingRetry, true},
		{"ready to ready invalid", StateReady, StateReady, false},
		{"ready to destroyed", StateReady, StateDestroyed, true},

		{"destroyed to connecting invalid", StateDestroyed, StateConnecting, false},
		{"destroyed to ready invalid", StateDestroyed, StateReady, false},
		{"destroyed to disconnected invalid", StateDestroyed, StateDisconnected, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isValidTransition(tt.from, tt.to); got != tt.valid {
				t.Errorf("isValidTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.valid)
			}
		})
	}
}

func TestEveryStateCanBeDestroyed(t *testing.T) {
	for from := range validTransitions {
		if !isValidTransition(from, StateDestroyed) {
			t.Errorf("%s cannot reach destroyed", from)
		}
	}
}
