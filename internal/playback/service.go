/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package playback owns every guild session: its queue, its voice
// connection and the rules that keep the two consistent.
package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/tonelist/internal/events"
	"github.com/friendsincode/tonelist/internal/models"
	"github.com/friendsincode/tonelist/internal/store"
	"github.com/friendsincode/tonelist/internal/telemetry"
	"github.com/friendsincode/tonelist/internal/voice"
)

// Resolver turns a free-text query or URI into tracks.
type Resolver interface {
	Resolve(ctx context.Context, query string) ([]models.Track, error)
}

// Notifier posts a message to a text channel.
type Notifier interface {
	Notify(ctx context.Context, channelID, text string) error
}

// Options tunes the Service's timers.
type Options struct {
	IdleTimeout   time.Duration
	NotifyTimeout time.Duration
	// EventTimeout bounds the store I/O done while handling a connection event.
	EventTimeout time.Duration
	Voice        voice.Options
}

// DefaultOptions returns production timer values.
func DefaultOptions() Options {
	return Options{
		IdleTimeout:   300 * time.Second,
		NotifyTimeout: 10 * time.Second,
		EventTimeout:  10 * time.Second,
		Voice:         voice.DefaultOptions(),
	}
}

// Deps are the Service's collaborators. Notifier and Bus may be nil.
type Deps struct {
	Store    store.Store
	Resolver Resolver
	Dialer   voice.Dialer
	Notifier Notifier
	Bus      events.Broker
}

// Service is the playback orchestrator.
type Service struct {
	store    store.Store
	resolver Resolver
	dialer   voice.Dialer
	notifier Notifier
	bus      events.Broker
	opts     Options
	logger   zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*session

	wg sync.WaitGroup
}

// session is the per-guild serialization point. mu guards every
// read-modify-write of the guild's queue and the fields below.
type session struct {
	guildID string

	mu      sync.Mutex
	conn    *voice.Connection
	idle    *time.Timer
	idleGen uint64
}

// NewService creates an orchestrator.
func NewService(deps Deps, opts Options, logger zerolog.Logger) *Service {
	def := DefaultOptions()
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = def.IdleTimeout
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = def.NotifyTimeout
	}
	if opts.EventTimeout <= 0 {
		opts.EventTimeout = def.EventTimeout
	}
	return &Service{
		store:    deps.Store,
		resolver: deps.Resolver,
		dialer:   deps.Dialer,
		notifier: deps.Notifier,
		bus:      deps.Bus,
		opts:     opts,
		logger:   logger.With().Str("component", "playback").Logger(),
		sessions: make(map[string]*session),
	}
}

// lookup returns the guild's session, creating it when create is set.
func (s *Service) lookup(guildID string, create bool) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.sessions[guildID]
	if sess == nil && create {
		sess = &session{guildID: guildID}
		s.sessions[guildID] = sess
	}
	return sess
}

// acquire returns the guild's session with its mu held. A session pruned
// while the caller waited for mu is never returned. With create unset a
// missing session yields nil.
func (s *Service) acquire(guildID string, create bool) *session {
	for {
		sess := s.lookup(guildID, create)
		if sess == nil {
			return nil
		}
		sess.mu.Lock()
		s.mu.Lock()
		current := s.sessions[guildID] == sess
		s.mu.Unlock()
		if current {
			return sess
		}
		sess.mu.Unlock()
	}
}

// release prunes sess if it holds nothing and unlocks it.
func (s *Service) release(sess *session) {
	s.prune(sess)
	sess.mu.Unlock()
}

// prune forgets a session with no connection and no idle timer. The queue
// itself lives in the store. Caller holds sess.mu.
func (s *Service) prune(sess *session) {
	if sess.conn != nil || sess.idle != nil {
		return
	}
	s.mu.Lock()
	if s.sessions[sess.guildID] == sess {
		delete(s.sessions, sess.guildID)
	}
	s.mu.Unlock()
}

// liveConn returns the session's connection if it can still be used.
// Caller holds sess.mu.
func (sess *session) liveConn() *voice.Connection {
	if sess == nil || sess.conn == nil || !sess.conn.Live() {
		return nil
	}
	return sess.conn
}

// load reads the guild's queue. found is false when no record exists.
func (s *Service) load(ctx context.Context, guildID string) (q *models.Queue, found bool, err error) {
	q, err = s.store.Get(ctx, guildID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return &models.Queue{}, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("load queue: %w", err)
	}
	return q, true, nil
}

// loadOrCreate reads the guild's queue, persisting an empty one if none exists.
func (s *Service) loadOrCreate(ctx context.Context, guildID string) (*models.Queue, error) {
	q, found, err := s.load(ctx, guildID)
	if err != nil || found {
		return q, err
	}
	return s.save(ctx, guildID, q)
}

func (s *Service) save(ctx context.Context, guildID string, q *models.Queue) (*models.Queue, error) {
	saved, err := s.store.Set(ctx, guildID, q)
	if err != nil {
		return nil, fmt.Errorf("save queue: %w", err)
	}
	return saved, nil
}

// connect creates, starts and watches a connection for sess. Caller holds sess.mu.
func (s *Service) connect(ctx context.Context, sess *session, channelID string) (*voice.Connection, error) {
	conn := voice.New(sess.guildID, channelID, s.dialer, s.opts.Voice, s.logger)
	if err := conn.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", channelID, err)
	}
	if sess.conn != nil {
		// replaced a connection that died before its exit was handled
		telemetry.ActiveConnections.Dec()
	}
	sess.conn = conn
	telemetry.ActiveConnections.Inc()

	s.wg.Add(1)
	go s.watch(sess, conn)
	return conn, nil
}

// dropConn destroys sess's connection. Caller holds sess.mu.
func (s *Service) dropConn(ctx context.Context, sess *session) {
	conn := sess.conn
	if conn == nil {
		return
	}
	sess.conn = nil
	s.cancelIdle(sess)
	telemetry.ActiveConnections.Dec()
	if err := conn.Destroy(ctx); err != nil {
		s.logger.Warn().Err(err).Str("guild_id", sess.guildID).Msg("connection teardown incomplete")
	}
}

// playHead starts q's head on conn. Heads the player rejects are dropped
// from q. changed reports whether q lost tracks. Caller holds sess.mu.
func (s *Service) playHead(ctx context.Context, sess *session, conn *voice.Connection, q *models.Queue) (changed bool) {
	for {
		head, ok := q.Head()
		if !ok {
			return changed
		}
		err := conn.Play(ctx, head)
		if err == nil {
			s.nowPlaying(sess.guildID, q.BoundChannel, head)
			return changed
		}
		if errors.Is(err, voice.ErrDestroyed) {
			return changed
		}
		s.logger.Warn().Err(err).Str("guild_id", sess.guildID).Str("track", head.Identifier).Msg("skipping unplayable track")
		q.Tracks = q.Tracks[1:]
		changed = true
	}
}

// nowPlaying publishes the track change and, when the queue has a bound
// channel, announces it there in the background.
func (s *Service) nowPlaying(guildID, channelID string, track models.Track) {
	s.publish(events.EventNowPlaying, events.Payload{
		"guild_id":   guildID,
		"identifier": track.Identifier,
		"title":      track.Title,
		"uri":        track.URI,
	})
	if channelID == "" || s.notifier == nil {
		return
	}

	text := "Now playing: " + track.Title
	if track.Author != "" {
		text += " by " + track.Author
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.NotifyTimeout)
		defer cancel()
		if err := s.notifier.Notify(ctx, channelID, text); err != nil {
			telemetry.NotificationsFailed.Inc()
			s.logger.Warn().Err(err).Str("guild_id", guildID).Str("channel_id", channelID).Msg("now playing notification failed")
		}
	}()
}

func (s *Service) publish(eventType events.EventType, payload events.Payload) {
	if s.bus != nil {
		s.bus.Publish(eventType, payload)
	}
}

func (s *Service) publishQueue(guildID string, q *models.Queue) {
	s.publish(events.EventQueueUpdated, events.Payload{
		"guild_id": guildID,
		"length":   q.Len(),
	})
}

// armIdle starts sess's idle-disconnect timer. Caller holds sess.mu.
func (s *Service) armIdle(sess *session) {
	s.cancelIdle(sess)
	gen := sess.idleGen
	sess.idle = time.AfterFunc(s.opts.IdleTimeout, func() { s.idleExpired(sess, gen) })
}

// cancelIdle stops a pending idle timer. Caller holds sess.mu.
func (s *Service) cancelIdle(sess *session) {
	sess.idleGen++
	if sess.idle != nil {
		sess.idle.Stop()
		sess.idle = nil
	}
}

func (s *Service) idleExpired(sess *session, gen uint64) {
	sess.mu.Lock()
	defer s.release(sess)
	if sess.idleGen != gen {
		return
	}
	sess.idle = nil

	conn := sess.liveConn()
	if conn == nil || conn.Player() != voice.PlayerIdle {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.EventTimeout)
	defer cancel()

	q, found, err := s.load(ctx, sess.guildID)
	if err != nil {
		s.logger.Error().Err(err).Str("guild_id", sess.guildID).Msg("idle check failed")
		return
	}
	if q.Len() > 0 {
		return
	}

	s.logger.Info().Str("guild_id", sess.guildID).Dur("idle", s.opts.IdleTimeout).Msg("leaving idle session")
	s.dropConn(ctx, sess)
	if found {
		if err := s.store.Delete(ctx, sess.guildID); err != nil && !errors.Is(err, store.ErrNotFound) {
			s.logger.Error().Err(err).Str("guild_id", sess.guildID).Msg("failed to delete idle queue")
		}
	}
	s.publish(events.EventSessionEnded, events.Payload{"guild_id": sess.guildID, "reason": "idle"})
}

// watch consumes conn's events until the connection is gone.
func (s *Service) watch(sess *session, conn *voice.Connection) {
	defer s.wg.Done()
	for {
		select {
		case ev := <-conn.Events():
			s.handleEvent(sess, conn, ev)
		case <-conn.Done():
			for {
				select {
				case ev := <-conn.Events():
					s.handleEvent(sess, conn, ev)
				default:
					return
				}
			}
		}
	}
}

func (s *Service) handleEvent(sess *session, conn *voice.Connection, ev voice.Event) {
	if ev.Kind == voice.EventStateChange {
		s.publish(events.EventConnectionState, events.Payload{
			"guild_id": sess.guildID,
			"from":     string(ev.From),
			"to":       string(ev.To),
		})
		return
	}

	sess.mu.Lock()
	defer s.release(sess)
	if sess.conn != conn {
		return
	}

	switch ev.Kind {
	case voice.EventTrackEnd, voice.EventTrackError:
		s.advance(sess, conn)
	case voice.EventExit:
		s.logger.Warn().Err(ev.Err).Str("guild_id", sess.guildID).Msg("voice connection exited, queue kept")
		sess.conn = nil
		s.cancelIdle(sess)
		telemetry.ActiveConnections.Dec()
		s.publish(events.EventSessionEnded, events.Payload{"guild_id": sess.guildID, "reason": "connection_lost"})
	}
}

// advance pops the finished head and starts the next track, or tears the
// session down when nothing is left. Caller holds sess.mu.
func (s *Service) advance(sess *session, conn *voice.Connection) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.EventTimeout)
	defer cancel()

	q, found, err := s.load(ctx, sess.guildID)
	if err != nil {
		telemetry.QueueAdvances.WithLabelValues("error").Inc()
		s.logger.Error().Err(err).Str("guild_id", sess.guildID).Msg("queue advance failed")
		return
	}
	if q.Len() > 0 {
		q.Tracks = q.Tracks[1:]
	}
	s.playHead(ctx, sess, conn, q)

	if q.Len() == 0 {
		telemetry.QueueAdvances.WithLabelValues("drained").Inc()
		s.dropConn(ctx, sess)
		if found {
			if err := s.store.Delete(ctx, sess.guildID); err != nil && !errors.Is(err, store.ErrNotFound) {
				s.logger.Error().Err(err).Str("guild_id", sess.guildID).Msg("failed to delete drained queue")
			}
		}
		s.publish(events.EventSessionEnded, events.Payload{"guild_id": sess.guildID, "reason": "queue_drained"})
		return
	}

	if _, err := s.save(ctx, sess.guildID, q); err != nil {
		telemetry.QueueAdvances.WithLabelValues("error").Inc()
		s.logger.Error().Err(err).Str("guild_id", sess.guildID).Msg("failed to persist advanced queue")
		return
	}
	telemetry.QueueAdvances.WithLabelValues("advanced").Inc()
	s.publishQueue(sess.guildID, q)
}

// Close destroys every connection and waits for background work.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.mu.Lock()
		s.dropConn(ctx, sess)
		sess.mu.Unlock()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
