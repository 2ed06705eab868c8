/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package lavalink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/friendsincode/tonelist/internal/models"
	"github.com/friendsincode/tonelist/internal/voice"
)

const voicePushTimeout = 5 * time.Second

// Link is one guild's player on the node. It implements voice.Transport.
type Link struct {
	client    *Client
	guildID   string
	channelID string
	signals   chan voice.Signal
	done      chan struct{}

	mu           sync.Mutex
	token        string
	endpoint     string
	voiceSession string
	pushed       bool
	closed       bool
	// joined is set once Discord confirmed the bot in channelID. Leave
	// updates before that belong to a previous link for the guild.
	joined bool
	// dropped is set after a Disconnected signal until new credentials
	// restart the handshake.
	dropped bool
	// failed is the encoded track whose trailing TrackEnd is swallowed
	// because its failure was already reported.
	failed string
}

func newLink(c *Client, guildID, channelID string) *Link {
	return &Link{
		client:    c,
		guildID:   guildID,
		channelID: channelID,
		signals:   make(chan voice.Signal, 16),
		done:      make(chan struct{}),
	}
}

func (l *Link) Signals() <-chan voice.Signal { return l.signals }

// Open asks the gateway to join. Ready follows once Discord has sent both
// voice updates and the node accepted them.
func (l *Link) Open(ctx context.Context) error {
	l.send(voice.Signal{Kind: voice.SignalConnecting})
	if err := l.client.gateway.JoinVoice(ctx, l.guildID, l.channelID); err != nil {
		return fmt.Errorf("join voice channel: %w", err)
	}
	return nil
}

func (l *Link) Play(ctx context.Context, track models.Track) error {
	encoded := track.Payload
	return l.client.updatePlayer(ctx, l.guildID, playerUpdate{Track: &trackUpdate{Encoded: &encoded}})
}

func (l *Link) Stop(ctx context.Context) error {
	return l.client.updatePlayer(ctx, l.guildID, playerUpdate{Track: &trackUpdate{}})
}

// Close destroys the player and leaves the channel.
func (l *Link) Close(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.done)
	l.mu.Unlock()

	l.client.unregister(l)

	var errs []error
	if err := l.client.destroyPlayer(ctx, l.guildID); err != nil && !errors.Is(err, ErrNotReady) {
		errs = append(errs, fmt.Errorf("destroy player: %w", err))
	}
	if err := l.client.gateway.LeaveVoice(ctx, l.guildID); err != nil {
		errs = append(errs, fmt.Errorf("leave voice channel: %w", err))
	}
	return errors.Join(errs...)
}

// send never blocks past Close.
func (l *Link) send(sig voice.Signal) {
	select {
	case <-l.done:
		return
	default:
	}
	select {
	case l.signals <- sig:
	case <-l.done:
	}
}

func (l *Link) serverUpdate(token, endpoint string) {
	if endpoint == "" {
		l.drop("voice server unavailable")
		return
	}
	l.mu.Lock()
	resignal := l.pushed
	restart := l.dropped
	l.dropped = false
	l.token = token
	l.endpoint = endpoint
	l.mu.Unlock()

	switch {
	case restart:
		l.send(voice.Signal{Kind: voice.SignalConnecting})
	case resignal:
		l.send(voice.Signal{Kind: voice.SignalSignalling})
	}
	l.pushVoice()
}

func (l *Link) stateUpdate(channelID, sessionID string) {
	l.mu.Lock()
	if channelID == "" {
		joined := l.joined
		l.mu.Unlock()
		if !joined {
			l.client.logger.Debug().Str("guild_id", l.guildID).Msg("ignoring leave from previous voice session")
			return
		}
		l.drop("removed from voice channel")
		return
	}
	l.joined = true
	restart := l.dropped
	l.dropped = false
	l.channelID = channelID
	l.voiceSession = sessionID
	l.mu.Unlock()

	if restart {
		l.send(voice.Signal{Kind: voice.SignalConnecting})
	}
	l.pushVoice()
}

// drop reports a lost link and marks it for a Connecting signal on recovery.
func (l *Link) drop(reason string) {
	l.mu.Lock()
	l.dropped = true
	l.mu.Unlock()
	l.send(voice.Signal{Kind: voice.SignalDisconnected, Reason: reason})
}

// pushVoice sends the voice credentials to the node once all three are known.
func (l *Link) pushVoice() {
	l.mu.Lock()
	if l.closed || l.token == "" || l.endpoint == "" || l.voiceSession == "" {
		l.mu.Unlock()
		return
	}
	update := voiceUpdate{Token: l.token, Endpoint: l.endpoint, SessionID: l.voiceSession}
	l.pushed = true
	l.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), voicePushTimeout)
		defer cancel()
		if err := l.client.updatePlayer(ctx, l.guildID, playerUpdate{Voice: &update}); err != nil {
			l.client.logger.Warn().Err(err).Str("guild_id", l.guildID).Msg("voice update rejected")
			return
		}
		l.send(voice.Signal{Kind: voice.SignalReady})
	}()
}

// handleEvent maps node events to transport signals.
func (l *Link) handleEvent(msg message) {
	encoded := ""
	if msg.Track != nil {
		encoded = msg.Track.Encoded
	}

	switch msg.Type {
	case eventTrackStart:
		l.send(voice.Signal{Kind: voice.SignalTrackStart, Payload: encoded})

	case eventTrackEnd:
		switch msg.Reason {
		case "replaced", "cleanup":
			return
		}
		l.mu.Lock()
		reported := encoded != "" && l.failed == encoded
		if reported {
			l.failed = ""
		}
		l.mu.Unlock()
		if reported {
			return
		}
		if msg.Reason == "loadFailed" {
			l.send(voice.Signal{Kind: voice.SignalTrackError, Payload: encoded, Reason: msg.Reason, Err: errors.New("track failed to load")})
			return
		}
		l.send(voice.Signal{Kind: voice.SignalTrackEnd, Payload: encoded, Reason: msg.Reason})

	case eventTrackException:
		cause := "track exception"
		if msg.Exception != nil && msg.Exception.Message != "" {
			cause = msg.Exception.Message
		}
		l.fail(encoded, "exception", errors.New(cause))

	case eventTrackStuck:
		l.fail(encoded, "stuck", fmt.Errorf("track stuck for %dms", msg.ThresholdMS))

	case eventSocketClosed:
		l.mu.Lock()
		pushed := l.pushed
		l.mu.Unlock()
		if !pushed {
			// the node is closing a socket of the player this link replaced
			return
		}
		l.drop(fmt.Sprintf("voice websocket closed (%d)", msg.Code))
	}
}

func (l *Link) fail(encoded, reason string, err error) {
	l.mu.Lock()
	l.failed = encoded
	l.mu.Unlock()
	l.send(voice.Signal{Kind: voice.SignalTrackError, Payload: encoded, Reason: reason, Err: err})
}
