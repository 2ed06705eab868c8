/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/friendsincode/tonelist/internal/events"
	"github.com/friendsincode/tonelist/internal/models"
	"github.com/friendsincode/tonelist/internal/telemetry"
	"github.com/friendsincode/tonelist/internal/voice"
)

// JoinRequest asks the bot into a voice channel.
type JoinRequest struct {
	GuildID         string
	ChannelID       string
	NotifyChannelID string
}

// EnqueueRequest resolves Query and appends the results.
type EnqueueRequest struct {
	GuildID         string
	ChannelID       string
	NotifyChannelID string
	Query           string
}

// SessionResult describes a session after an operation.
type SessionResult struct {
	GuildID   string
	ChannelID string
	Queue     *models.Queue
}

// EnqueueResult adds the tracks the query resolved to.
type EnqueueResult struct {
	SessionResult
	Added []models.Track
}

// RemoveResult carries the removed track.
type RemoveResult struct {
	Removed models.Track
	Queue   *models.Queue
}

// SkipResult carries the track that was stopped.
type SkipResult struct {
	Skipped models.Track
	Queue   *models.Queue
}

// LeaveResult names the connection that was torn down.
type LeaveResult struct {
	GuildID   string
	ChannelID string
}

// ConnectionInfo is a snapshot of a live connection.
type ConnectionInfo struct {
	ChannelID string
	State     voice.ConnectionState
	Player    voice.PlayerState
	Current   *models.Track
}

// QueueResult is a read-only view of a session.
type QueueResult struct {
	GuildID    string
	Queue      *models.Queue
	Connection *ConnectionInfo
}

func requireGuild(op, guildID string) error {
	if guildID == "" {
		return newError(op, KindInvalidArgument, errors.New("guild id is required"))
	}
	return nil
}

// Join connects the session to req.ChannelID and resumes its queue.
func (s *Service) Join(ctx context.Context, req JoinRequest) (*SessionResult, error) {
	const op = "join"
	if err := requireGuild(op, req.GuildID); err != nil {
		return nil, err
	}
	if req.ChannelID == "" {
		return nil, newError(op, KindInvalidArgument, errors.New("channel id is required"))
	}

	sess := s.acquire(req.GuildID, true)
	defer s.release(sess)

	if sess.liveConn() != nil {
		return nil, newError(op, KindAlreadyConnected, nil)
	}

	q, err := s.loadOrCreate(ctx, req.GuildID)
	if err != nil {
		return nil, classify(op, err)
	}
	if q.BoundChannel == "" && req.NotifyChannelID != "" {
		q.BoundChannel = req.NotifyChannelID
		if q, err = s.save(ctx, req.GuildID, q); err != nil {
			return nil, classify(op, err)
		}
	}

	conn, err := s.connect(ctx, sess, req.ChannelID)
	if err != nil {
		return nil, classify(op, err)
	}
	s.cancelIdle(sess)

	if q.Len() > 0 && conn.Player() == voice.PlayerIdle {
		if s.playHead(ctx, sess, conn, q) {
			if q, err = s.save(ctx, req.GuildID, q); err != nil {
				return nil, classify(op, err)
			}
		}
	}
	if q.Len() == 0 {
		s.armIdle(sess)
	}

	s.logger.Info().Str("guild_id", req.GuildID).Str("channel_id", req.ChannelID).Int("queued", q.Len()).Msg("joined voice channel")
	s.publish(events.EventSessionJoined, events.Payload{"guild_id": req.GuildID, "channel_id": req.ChannelID})
	return &SessionResult{GuildID: req.GuildID, ChannelID: req.ChannelID, Queue: q.Clone()}, nil
}

// Enqueue resolves req.Query and appends every track to the queue,
// connecting first when the session has no connection.
func (s *Service) Enqueue(ctx context.Context, req EnqueueRequest) (*EnqueueResult, error) {
	const op = "enqueue"
	if err := requireGuild(op, req.GuildID); err != nil {
		return nil, err
	}
	if req.Query == "" {
		return nil, newError(op, KindInvalidArgument, errors.New("query is required"))
	}

	tracks, err := s.resolve(ctx, req.Query)
	if err != nil {
		return nil, newError(op, KindResolutionFailed, err)
	}
	if len(tracks) == 0 {
		return nil, newError(op, KindNoMatches, nil)
	}

	sess := s.acquire(req.GuildID, true)
	defer s.release(sess)

	q, err := s.loadOrCreate(ctx, req.GuildID)
	if err != nil {
		return nil, classify(op, err)
	}

	conn := sess.liveConn()
	created := false
	if conn == nil {
		if req.ChannelID == "" {
			return nil, newError(op, KindInvalidArgument, errors.New("channel id is required to connect"))
		}
		if conn, err = s.connect(ctx, sess, req.ChannelID); err != nil {
			return nil, classify(op, err)
		}
		created = true
	}
	s.cancelIdle(sess)

	q.Tracks = append(q.Tracks, tracks...)
	if q.BoundChannel == "" {
		q.BoundChannel = req.NotifyChannelID
	}
	if player := conn.Player(); player != voice.PlayerPlaying && player != voice.PlayerPaused {
		s.playHead(ctx, sess, conn, q)
	}

	saved, err := s.save(ctx, req.GuildID, q)
	if err != nil {
		if created {
			s.dropConn(ctx, sess)
		}
		return nil, classify(op, err)
	}
	if saved.Len() == 0 {
		s.armIdle(sess)
	}

	s.publishQueue(req.GuildID, saved)
	return &EnqueueResult{
		SessionResult: SessionResult{GuildID: req.GuildID, ChannelID: conn.ChannelID(), Queue: saved.Clone()},
		Added:         tracks,
	}, nil
}

func (s *Service) resolve(ctx context.Context, query string) (tracks []models.Track, err error) {
	ctx, span := telemetry.StartSpan(ctx, "playback.resolve", attribute.String("query", query))
	defer func() {
		span.SetAttributes(attribute.Int("tracks", len(tracks)))
		telemetry.EndSpan(span, err)
	}()

	start := time.Now()
	tracks, err = s.resolver.Resolve(ctx, query)
	result := "ok"
	switch {
	case err != nil:
		result = "error"
	case len(tracks) == 0:
		result = "empty"
	}
	telemetry.TrackResolveDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
	return tracks, err
}

// Remove deletes the track at index. The head is the playing track and
// cannot be removed; use Skip.
func (s *Service) Remove(ctx context.Context, guildID string, index int) (*RemoveResult, error) {
	const op = "remove"
	if err := requireGuild(op, guildID); err != nil {
		return nil, err
	}

	sess := s.acquire(guildID, true)
	defer s.release(sess)

	q, _, err := s.load(ctx, guildID)
	if err != nil {
		return nil, classify(op, err)
	}
	if index < 0 || index >= q.Len() {
		return nil, newError(op, KindInvalidIndex, nil)
	}
	if index == 0 {
		return nil, newError(op, KindCannotRemoveCurrent, nil)
	}
	removed := q.Tracks[index]
	q.Tracks = append(q.Tracks[:index], q.Tracks[index+1:]...)
	saved, err := s.save(ctx, guildID, q)
	if err != nil {
		return nil, classify(op, err)
	}

	s.publishQueue(guildID, saved)
	return &RemoveResult{Removed: removed, Queue: saved.Clone()}, nil
}

// Skip stops the current track. The queue advances when the player
// reports the track ended.
func (s *Service) Skip(ctx context.Context, guildID string) (*SkipResult, error) {
	const op = "skip"
	if err := requireGuild(op, guildID); err != nil {
		return nil, err
	}

	sess := s.acquire(guildID, false)
	if sess == nil {
		return nil, newError(op, KindNotConnected, nil)
	}
	defer s.release(sess)

	conn := sess.liveConn()
	if conn == nil {
		return nil, newError(op, KindNotConnected, nil)
	}
	current := conn.Current()
	if current == nil {
		return nil, newError(op, KindNotPlaying, nil)
	}
	if err := conn.Stop(ctx); err != nil {
		return nil, classify(op, err)
	}

	q, _, err := s.load(ctx, guildID)
	if err != nil {
		return nil, classify(op, err)
	}
	return &SkipResult{Skipped: *current, Queue: q.Clone()}, nil
}

// Shuffle permutes every track after the head.
func (s *Service) Shuffle(ctx context.Context, guildID string) (*models.Queue, error) {
	const op = "shuffle"
	if err := requireGuild(op, guildID); err != nil {
		return nil, err
	}

	sess := s.acquire(guildID, true)
	defer s.release(sess)

	q, err := s.loadOrCreate(ctx, guildID)
	if err != nil {
		return nil, classify(op, err)
	}
	shuffleTail(q.Tracks, rand.IntN)
	saved, err := s.save(ctx, guildID, q)
	if err != nil {
		return nil, classify(op, err)
	}

	s.publishQueue(guildID, saved)
	return saved.Clone(), nil
}

// shuffleTail applies Fisher-Yates to tracks[1:]. intn(n) returns a value
// in [0, n).
func shuffleTail(tracks []models.Track, intn func(int) int) {
	for i := len(tracks) - 1; i > 1; i-- {
		j := 1 + intn(i)
		tracks[i], tracks[j] = tracks[j], tracks[i]
	}
}

// Leave destroys the session's connection. The queue is kept.
func (s *Service) Leave(ctx context.Context, guildID string) (*LeaveResult, error) {
	const op = "leave"
	if err := requireGuild(op, guildID); err != nil {
		return nil, err
	}

	sess := s.acquire(guildID, false)
	if sess == nil {
		return nil, newError(op, KindNotConnected, nil)
	}
	defer s.release(sess)

	conn := sess.liveConn()
	if conn == nil {
		return nil, newError(op, KindNotConnected, nil)
	}
	s.dropConn(ctx, sess)

	s.logger.Info().Str("guild_id", guildID).Str("channel_id", conn.ChannelID()).Msg("left voice channel")
	s.publish(events.EventSessionLeft, events.Payload{"guild_id": guildID, "channel_id": conn.ChannelID()})
	return &LeaveResult{GuildID: guildID, ChannelID: conn.ChannelID()}, nil
}

// Queue returns the session's queue and connection snapshot.
func (s *Service) Queue(ctx context.Context, guildID string) (*QueueResult, error) {
	const op = "queue"
	if err := requireGuild(op, guildID); err != nil {
		return nil, err
	}

	sess := s.acquire(guildID, true)
	defer s.release(sess)

	q, err := s.loadOrCreate(ctx, guildID)
	if err != nil {
		return nil, classify(op, err)
	}
	res := &QueueResult{GuildID: guildID, Queue: q.Clone()}
	if conn := sess.liveConn(); conn != nil {
		res.Connection = &ConnectionInfo{
			ChannelID: conn.ChannelID(),
			State:     conn.State(),
			Player:    conn.Player(),
			Current:   conn.Current(),
		}
	}
	return res, nil
}

// FindOrCreateQueue returns the guild's queue, persisting an empty one
// on first use.
func (s *Service) FindOrCreateQueue(ctx context.Context, guildID string) (*models.Queue, error) {
	const op = "find_or_create_queue"
	if err := requireGuild(op, guildID); err != nil {
		return nil, err
	}

	sess := s.acquire(guildID, true)
	defer s.release(sess)

	q, err := s.loadOrCreate(ctx, guildID)
	if err != nil {
		return nil, classify(op, err)
	}
	return q.Clone(), nil
}
