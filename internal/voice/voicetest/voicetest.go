// Package voicetest provides an in-memory voice transport for tests.
package voicetest

import (
	"context"
	"sync"

	"github.com/friendsincode/tonelist/internal/models"
	"github.com/friendsincode/tonelist/internal/voice"
)

// Transport records calls and lets tests inject signals.
type Transport struct {
	ChannelID string

	// AutoReady emits SignalReady from Open.
	AutoReady bool
	// StopEndsTrack emits SignalTrackEnd for the current track from Stop.
	StopEndsTrack bool
	PlayErr       error

	signals chan voice.Signal

	mu      sync.Mutex
	plays   []models.Track
	stops   int
	opened  bool
	closed  bool
	current string
}

// NewTransport returns a transport with a generous signal buffer.
func NewTransport() *Transport {
	return &Transport{signals: make(chan voice.Signal, 64)}
}

func (t *Transport) Open(context.Context) error {
	t.mu.Lock()
	t.opened = true
	t.mu.Unlock()
	if t.AutoReady {
		t.Send(voice.Signal{Kind: voice.SignalReady})
	}
	return nil
}

func (t *Transport) Play(_ context.Context, track models.Track) error {
	if t.PlayErr != nil {
		return t.PlayErr
	}
	t.mu.Lock()
	t.plays = append(t.plays, track)
	t.current = track.Payload
	t.mu.Unlock()
	return nil
}

func (t *Transport) Stop(context.Context) error {
	t.mu.Lock()
	t.stops++
	payload := t.current
	t.current = ""
	t.mu.Unlock()
	if t.StopEndsTrack && payload != "" {
		t.Send(voice.Signal{Kind: voice.SignalTrackEnd, Payload: payload, Reason: "stopped"})
	}
	return nil
}

func (t *Transport) Close(context.Context) error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return nil
}

func (t *Transport) Signals() <-chan voice.Signal { return t.signals }

// Send injects a signal.
func (t *Transport) Send(sig voice.Signal) { t.signals <- sig }

// Finish ends the current track as if it played to completion.
func (t *Transport) Finish() {
	t.mu.Lock()
	payload := t.current
	t.current = ""
	t.mu.Unlock()
	t.Send(voice.Signal{Kind: voice.SignalTrackEnd, Payload: payload, Reason: "finished"})
}

// Fail reports a playback error for the current track.
func (t *Transport) Fail(err error) {
	t.mu.Lock()
	payload := t.current
	t.current = ""
	t.mu.Unlock()
	t.Send(voice.Signal{Kind: voice.SignalTrackError, Payload: payload, Err: err})
}

// Plays returns every track passed to Play.
func (t *Transport) Plays() []models.Track {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.Track, len(t.plays))
	copy(out, t.plays)
	return out
}

// Stops returns the number of Stop calls.
func (t *Transport) Stops() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stops
}

// Closed reports whether Close was called.
func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Dialer hands out Transports and remembers them.
type Dialer struct {
	// Err, when set, is returned from Dial.
	Err error
	// Configure runs on every new transport before it is returned; n counts
	// dials from zero.
	Configure func(t *Transport, n int)
	// Hold, when set, runs before dial n without the dialer's lock, so a
	// test can block a dial in flight.
	Hold func(n int)

	mu    sync.Mutex
	dials []*Transport
}

// NewDialer returns a dialer whose transports become Ready on Open and end
// their track when stopped.
func NewDialer() *Dialer {
	return &Dialer{Configure: func(t *Transport, _ int) {
		t.AutoReady = true
		t.StopEndsTrack = true
	}}
}

func (d *Dialer) Dial(_ context.Context, _, channelID string) (voice.Transport, error) {
	if d.Hold != nil {
		d.mu.Lock()
		n := len(d.dials)
		d.mu.Unlock()
		d.Hold(n)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return nil, d.Err
	}
	t := NewTransport()
	t.ChannelID = channelID
	if d.Configure != nil {
		d.Configure(t, len(d.dials))
	}
	d.dials = append(d.dials, t)
	return t, nil
}

// Count returns how many transports were dialed.
func (d *Dialer) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dials)
}

// Last returns the most recently dialed transport, or nil.
func (d *Dialer) Last() *Transport {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.dials) == 0 {
		return nil
	}
	return d.dials[len(d.dials)-1]
}
