/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package voice

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/tonelist/internal/models"
	"github.com/friendsincode/tonelist/internal/telemetry"
)

var (
	// ErrDestroyed is returned for any operation on a torn down connection.
	ErrDestroyed = errors.New("connection destroyed")

	// ErrNotPlaying indicates there is no loaded track to stop.
	ErrNotPlaying = errors.New("nothing playing")

	// ErrAlreadyStarted indicates Connect was called twice.
	ErrAlreadyStarted = errors.New("connection already started")

	// ErrGuildNotFound and ErrChannelNotFound are returned by a Dialer that
	// cannot locate the voice target.
	ErrGuildNotFound   = errors.New("guild not found")
	ErrChannelNotFound = errors.New("channel not found")

	errTooManyResets = errors.New("handshake reset limit reached")
)

// Transport is one live link to a voice channel and its player.
type Transport interface {
	// Open starts the voice handshake.
	Open(ctx context.Context) error
	Play(ctx context.Context, track models.Track) error
	Stop(ctx context.Context) error
	// Close tears the link down completely.
	Close(ctx context.Context) error
	Signals() <-chan Signal
}

// Dialer creates transports.
type Dialer interface {
	Dial(ctx context.Context, sessionID, channelID string) (Transport, error)
}

// Event is reported on Connection.Events.
type Event struct {
	Kind      EventKind
	SessionID string
	Track     *models.Track
	Err       error
	From, To  ConnectionState
}

// Options bound the connection's waits.
type Options struct {
	HandshakeTimeout time.Duration
	ReconnectTimeout time.Duration
	// MaxResets caps consecutive rebuilds without reaching Ready.
	MaxResets int
}

// DefaultOptions match the documented 5s handshake and reconnect windows.
func DefaultOptions() Options {
	return Options{
		HandshakeTimeout: 5 * time.Second,
		ReconnectTimeout: 5 * time.Second,
		MaxResets:        5,
	}
}

// Connection owns the state machine for one session's voice link.
type Connection struct {
	sessionID string
	channelID string
	dialer    Dialer
	opts      Options
	logger    zerolog.Logger
	events    chan Event

	mu        sync.Mutex
	state     ConnectionState
	player    PlayerState
	current   *models.Track
	transport Transport
	resets    int
	started   bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Disconnected connection. Nothing happens until Connect.
func New(sessionID, channelID string, dialer Dialer, opts Options, logger zerolog.Logger) *Connection {
	def := DefaultOptions()
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = def.HandshakeTimeout
	}
	if opts.ReconnectTimeout <= 0 {
		opts.ReconnectTimeout = def.ReconnectTimeout
	}
	if opts.MaxResets <= 0 {
		opts.MaxResets = def.MaxResets
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		sessionID: sessionID,
		channelID: channelID,
		dialer:    dialer,
		opts:      opts,
		logger:    logger.With().Str("component", "voice").Str("guild_id", sessionID).Logger(),
		events:    make(chan Event, 16),
		state:     StateDisconnected,
		player:    PlayerIdle,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// SessionID returns the owning session.
func (c *Connection) SessionID() string { return c.sessionID }

// ChannelID returns the voice channel this connection was built for.
func (c *Connection) ChannelID() string { return c.channelID }

// Events delivers track, exit and state notifications.
func (c *Connection) Events() <-chan Event { return c.events }

// Done is closed when the event loop has exited.
func (c *Connection) Done() <-chan struct{} { return c.done }

// State returns the current connection state.
func (c *Connection) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Player returns the current player state.
func (c *Connection) Player() PlayerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.player
}

// Current returns the loaded track, if any.
func (c *Connection) Current() *models.Track {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	t := *c.current
	return &t
}

// Live reports whether the connection can still be used.
func (c *Connection) Live() bool {
	return c.State() != StateDestroyed
}

// Connect dials a transport and starts the handshake. A connection whose
// Connect fails is destroyed.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.state == StateDestroyed:
		c.mu.Unlock()
		return ErrDestroyed
	case c.started:
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	c.mu.Unlock()

	tr, err := c.open(ctx)
	if err != nil {
		c.abort()
		return err
	}

	c.mu.Lock()
	if c.state == StateDestroyed {
		c.mu.Unlock()
		c.closeQuietly(tr)
		close(c.done)
		return ErrDestroyed
	}
	c.transport = tr
	from, ok := c.transitionLocked(StateConnecting)
	c.mu.Unlock()

	if ok {
		c.emit(Event{Kind: EventStateChange, From: from, To: StateConnecting})
	}

	go c.run(tr.Signals())
	return nil
}

// abort marks a connection that never started its loop as destroyed.
func (c *Connection) abort() {
	c.mu.Lock()
	c.state = StateDestroyed
	c.mu.Unlock()
	c.cancel()
	close(c.done)
}

func (c *Connection) open(ctx context.Context) (Transport, error) {
	tr, err := c.dialer.Dial(ctx, c.sessionID, c.channelID)
	if err != nil {
		return nil, fmt.Errorf("dial voice: %w", err)
	}
	if err := tr.Open(ctx); err != nil {
		c.closeQuietly(tr)
		return nil, fmt.Errorf("open voice: %w", err)
	}
	return tr, nil
}

// Play loads track into the player. While the transport is being rebuilt
// the track is only recorded; the rebuilt transport starts it.
func (c *Connection) Play(ctx context.Context, track models.Track) error {
	c.mu.Lock()
	if c.state == StateDestroyed {
		c.mu.Unlock()
		return ErrDestroyed
	}
	tr := c.transport
	loaded := track
	c.current = &loaded
	c.player = PlayerPlaying
	c.mu.Unlock()

	if tr == nil {
		c.logger.Debug().Str("track", track.Identifier).Msg("track deferred until the connection is rebuilt")
		return nil
	}

	if err := tr.Play(ctx, track); err != nil {
		c.mu.Lock()
		if c.current == &loaded {
			c.current = nil
			c.player = PlayerIdle
		}
		c.mu.Unlock()
		return fmt.Errorf("play %s: %w", track.Identifier, err)
	}
	return nil
}

// Stop ends the current track. The resulting TrackEnd event is what advances
// the queue.
func (c *Connection) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateDestroyed {
		c.mu.Unlock()
		return ErrDestroyed
	}
	if c.current == nil {
		c.mu.Unlock()
		return ErrNotPlaying
	}
	tr := c.transport
	c.mu.Unlock()

	if tr == nil {
		return fmt.Errorf("stop: transport is being rebuilt")
	}
	if err := tr.Stop(ctx); err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	return nil
}

// Destroy tears the connection down. It is safe to call more than once.
func (c *Connection) Destroy(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateDestroyed {
		c.mu.Unlock()
		return nil
	}
	from := c.state
	c.state = StateDestroyed
	c.player = PlayerIdle
	c.current = nil
	started := c.started
	c.mu.Unlock()

	c.logTransition(from, StateDestroyed)
	c.cancel()

	if started {
		select {
		case <-c.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return c.closeTransport(ctx)
}

func (c *Connection) closeTransport(ctx context.Context) error {
	c.mu.Lock()
	tr := c.transport
	c.transport = nil
	c.mu.Unlock()

	if tr == nil {
		return nil
	}
	if err := tr.Close(ctx); err != nil {
		return fmt.Errorf("close transport: %w", err)
	}
	return nil
}

func (c *Connection) closeQuietly(tr Transport) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tr.Close(ctx); err != nil {
		c.logger.Debug().Err(err).Msg("transport close failed")
	}
}

// run is the event loop. Only run touches the watchdog timers.
func (c *Connection) run(sigs <-chan Signal) {
	defer close(c.done)

	var handshake, reconnect *time.Timer
	arm := func(t **time.Timer, d time.Duration) {
		if *t != nil {
			(*t).Stop()
		}
		*t = time.NewTimer(d)
	}
	disarm := func(t **time.Timer) {
		if *t != nil {
			(*t).Stop()
			*t = nil
		}
	}
	defer disarm(&handshake)
	defer disarm(&reconnect)

	arm(&handshake, c.opts.HandshakeTimeout)

	for {
		select {
		case <-c.ctx.Done():
			return

		case sig, ok := <-sigs:
			if !ok {
				sigs = nil
				sig = Signal{Kind: SignalDisconnected, Reason: "transport closed"}
			}
			switch c.handleSignal(sig) {
			case wantHandshake:
				disarm(&reconnect)
				if handshake == nil {
					arm(&handshake, c.opts.HandshakeTimeout)
				}
			case wantReady:
				disarm(&handshake)
				disarm(&reconnect)
			case wantReconnect:
				disarm(&handshake)
				arm(&reconnect, c.opts.ReconnectTimeout)
			}

		case <-timerC(handshake):
			handshake = nil
			if !c.State().handshaking() {
				continue
			}
			c.logger.Warn().Dur("timeout", c.opts.HandshakeTimeout).Msg("voice handshake timed out, rebuilding connection")
			tr, err := c.reset()
			if err != nil {
				c.fatal(err)
				return
			}
			sigs = tr.Signals()
			arm(&handshake, c.opts.HandshakeTimeout)

		case <-timerC(reconnect):
			reconnect = nil
			if c.State() != StateDisconnected {
				continue
			}
			c.fatal(fmt.Errorf("no reconnect within %s", c.opts.ReconnectTimeout))
			return
		}
	}
}

func timerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

type timerAction int

const (
	keepTimers timerAction = iota
	wantHandshake
	wantReady
	wantReconnect
)

func (c *Connection) handleSignal(sig Signal) timerAction {
	switch sig.Kind {
	case SignalConnecting:
		if c.State() == StateConnecting {
			return keepTimers
		}
		if c.moveTo(StateConnecting) {
			return wantHandshake
		}
	case SignalSignalling:
		if c.State() == StateSignallingRetry {
			return keepTimers
		}
		if c.moveTo(StateSignallingRetry) {
			return wantHandshake
		}
	case SignalReady:
		if c.State() == StateDisconnected {
			// the transport recovered without announcing a new handshake
			c.moveTo(StateConnecting)
		}
		if c.moveTo(StateReady) {
			c.mu.Lock()
			c.resets = 0
			c.mu.Unlock()
			return wantReady
		}
	case SignalDisconnected:
		if c.State() == StateDisconnected {
			return keepTimers
		}
		c.logger.Warn().Str("reason", sig.Reason).Msg("voice connection dropped")
		if c.moveTo(StateDisconnected) {
			return wantReconnect
		}
	case SignalTrackStart:
		c.mu.Lock()
		if c.current != nil && c.matches(sig.Payload) {
			c.player = PlayerPlaying
		}
		c.mu.Unlock()
	case SignalTrackEnd, SignalTrackError:
		c.trackFinished(sig)
	}
	return keepTimers
}

// matches reports whether payload names the current track. Caller holds c.mu.
func (c *Connection) matches(payload string) bool {
	return payload == "" || payload == c.current.Payload
}

// trackFinished emits at most one end event per loaded track.
func (c *Connection) trackFinished(sig Signal) {
	c.mu.Lock()
	if c.current == nil || !c.matches(sig.Payload) {
		c.mu.Unlock()
		c.logger.Debug().Str("signal", sig.Kind.String()).Msg("ignoring stale track signal")
		return
	}
	track := *c.current
	c.current = nil
	c.player = PlayerIdle
	c.mu.Unlock()

	ev := Event{Kind: EventTrackEnd, Track: &track}
	if sig.Kind == SignalTrackError {
		ev.Kind = EventTrackError
		ev.Err = sig.Err
		c.logger.Warn().Err(sig.Err).Str("track", track.Identifier).Msg("track failed")
	}
	c.emit(ev)
}

// reset closes the current transport and dials a fresh one.
func (c *Connection) reset() (Transport, error) {
	c.mu.Lock()
	c.resets++
	attempt := c.resets
	old := c.transport
	c.transport = nil
	c.mu.Unlock()

	if attempt > c.opts.MaxResets {
		if old != nil {
			c.closeQuietly(old)
		}
		return nil, errTooManyResets
	}
	telemetry.ConnectionResets.Inc()

	if old != nil {
		c.closeQuietly(old)
	}

	ctx, cancel := context.WithTimeout(c.ctx, c.opts.HandshakeTimeout)
	defer cancel()

	tr, err := c.open(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.state == StateDestroyed {
		c.mu.Unlock()
		c.closeQuietly(tr)
		return nil, ErrDestroyed
	}
	c.transport = tr
	// current may have been set by Play while the dial was in flight
	var track *models.Track
	if c.current != nil {
		t := *c.current
		track = &t
	}
	from, ok := c.transitionLocked(StateConnecting)
	c.mu.Unlock()
	if ok {
		c.emit(Event{Kind: EventStateChange, From: from, To: StateConnecting})
	}

	c.logger.Info().Int("attempt", attempt).Msg("voice connection rebuilt")

	if track != nil {
		if err := tr.Play(ctx, *track); err != nil {
			c.logger.Warn().Err(err).Str("track", track.Identifier).Msg("failed to reload track after reset")
			c.trackFinished(Signal{Kind: SignalTrackError, Payload: track.Payload, Err: err})
		}
	}
	return tr, nil
}

// fatal tears down from inside the loop and reports Exit.
func (c *Connection) fatal(cause error) {
	c.mu.Lock()
	if c.state == StateDestroyed {
		c.mu.Unlock()
		return
	}
	from := c.state
	c.state = StateDestroyed
	c.player = PlayerIdle
	c.current = nil
	c.mu.Unlock()

	c.logTransition(from, StateDestroyed)
	c.logger.Error().Err(cause).Msg("voice connection lost")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := c.closeTransport(ctx); err != nil {
		c.logger.Debug().Err(err).Msg("transport close failed")
	}
	cancel()

	c.emit(Event{Kind: EventExit, Err: cause, From: from, To: StateDestroyed})
	c.cancel()
}

// moveTo applies a transition and reports it.
func (c *Connection) moveTo(to ConnectionState) bool {
	c.mu.Lock()
	from, ok := c.transitionLocked(to)
	c.mu.Unlock()
	if ok {
		c.emit(Event{Kind: EventStateChange, From: from, To: to})
	}
	return ok
}

func (c *Connection) transitionLocked(to ConnectionState) (ConnectionState, bool) {
	from := c.state
	if !isValidTransition(from, to) {
		c.logger.Warn().
			Str("from", string(from)).
			Str("to", string(to)).
			Msg("rejected invalid state transition")
		return from, false
	}
	c.state = to
	c.logTransition(from, to)
	return from, true
}

func (c *Connection) logTransition(from, to ConnectionState) {
	telemetry.ConnectionTransitions.WithLabelValues(string(from), string(to)).Inc()
	c.logger.Info().
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("state transition")
}

// emit never blocks past Destroy.
func (c *Connection) emit(ev Event) {
	ev.SessionID = c.sessionID
	select {
	case c.events <- ev:
	case <-c.ctx.Done():
	}
}
