/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package dispatch turns surface requests into orchestrator calls.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/tonelist/internal/models"
	"github.com/friendsincode/tonelist/internal/playback"
	"github.com/friendsincode/tonelist/internal/telemetry"
)

// Command names one orchestrator operation.
type Command string

const (
	CmdJoin    Command = "join"
	CmdLeave   Command = "leave"
	CmdEnqueue Command = "enqueue"
	CmdRemove  Command = "remove"
	CmdSkip    Command = "skip"
	CmdShuffle Command = "shuffle"
	CmdQueue   Command = "queue"
)

// Commands lists every command in display order.
var Commands = []Command{CmdJoin, CmdLeave, CmdEnqueue, CmdRemove, CmdSkip, CmdShuffle, CmdQueue}

// ParseCommand maps a surface name onto a Command.
func ParseCommand(name string) (Command, bool) {
	for _, c := range Commands {
		if string(c) == name {
			return c, true
		}
	}
	return "", false
}

// Surface names the entry point for metrics and logs.
type Surface string

const (
	SurfaceInteractive Surface = "interactive"
	SurfaceHTTP        Surface = "http"
	SurfaceRPC         Surface = "rpc"
)

// Args is the normalized request every surface produces.
type Args struct {
	GuildID         string
	ChannelID       string
	NotifyChannelID string
	Query           string
	Index           *int
}

// Orchestrator is the subset of playback.Service dispatch drives.
type Orchestrator interface {
	Join(ctx context.Context, req playback.JoinRequest) (*playback.SessionResult, error)
	Leave(ctx context.Context, guildID string) (*playback.LeaveResult, error)
	Enqueue(ctx context.Context, req playback.EnqueueRequest) (*playback.EnqueueResult, error)
	Remove(ctx context.Context, guildID string, index int) (*playback.RemoveResult, error)
	Skip(ctx context.Context, guildID string) (*playback.SkipResult, error)
	Shuffle(ctx context.Context, guildID string) (*models.Queue, error)
	Queue(ctx context.Context, guildID string) (*playback.QueueResult, error)
}

// Connection is the JSON view of a live connection.
type Connection struct {
	ChannelID string        `json:"channel_id"`
	State     string        `json:"state"`
	Player    string        `json:"player"`
	Current   *models.Track `json:"current,omitempty"`
}

// Result is a successful command outcome.
type Result struct {
	Command    Command        `json:"command"`
	GuildID    string         `json:"guild_id"`
	ChannelID  string         `json:"channel_id,omitempty"`
	Message    string         `json:"message"`
	Queue      *models.Queue  `json:"queue,omitempty"`
	Track      *models.Track  `json:"track,omitempty"`
	Added      []models.Track `json:"added,omitempty"`
	Connection *Connection    `json:"connection,omitempty"`
}

// Dispatcher validates Args and calls exactly one orchestrator operation.
type Dispatcher struct {
	orch   Orchestrator
	logger zerolog.Logger
}

// New creates a Dispatcher.
func New(orch Orchestrator, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{orch: orch, logger: logger.With().Str("component", "dispatch").Logger()}
}

// Dispatch runs cmd. Every returned error carries a playback.Kind.
func (d *Dispatcher) Dispatch(ctx context.Context, surface Surface, cmd Command, args Args) (*Result, error) {
	start := time.Now()
	res, err := d.dispatch(ctx, cmd, args)

	outcome := "ok"
	if err != nil {
		outcome = playback.KindOf(err).String()
	}
	telemetry.CommandsTotal.WithLabelValues(string(surface), string(cmd), outcome).Inc()

	ev := d.logger.Debug()
	if playback.KindOf(err) == playback.KindInternal && err != nil {
		ev = d.logger.Error().Err(err)
	}
	ev.Str("surface", string(surface)).
		Str("command", string(cmd)).
		Str("guild_id", args.GuildID).
		Str("outcome", outcome).
		Dur("duration", time.Since(start)).
		Msg("command dispatched")
	return res, err
}

func invalid(cmd Command, format string, a ...any) error {
	return &playback.Error{Kind: playback.KindInvalidArgument, Op: string(cmd), Err: fmt.Errorf(format, a...)}
}

// Validate checks args for cmd without touching the orchestrator.
func Validate(cmd Command, args Args) error {
	if _, ok := ParseCommand(string(cmd)); !ok {
		return invalid(cmd, "unknown command %q", cmd)
	}
	if args.GuildID == "" {
		return invalid(cmd, "guild id is required")
	}
	switch cmd {
	case CmdJoin, CmdEnqueue:
		if args.ChannelID == "" {
			return invalid(cmd, "voice channel is required")
		}
	}
	switch cmd {
	case CmdEnqueue:
		if args.Query == "" {
			return invalid(cmd, "query is required")
		}
	case CmdRemove:
		if args.Index == nil {
			return invalid(cmd, "index is required")
		}
	}
	return nil
}

func (d *Dispatcher) dispatch(ctx context.Context, cmd Command, args Args) (*Result, error) {
	if err := Validate(cmd, args); err != nil {
		return nil, err
	}

	res := &Result{Command: cmd, GuildID: args.GuildID}
	switch cmd {
	case CmdJoin:
		out, err := d.orch.Join(ctx, playback.JoinRequest{
			GuildID:         args.GuildID,
			ChannelID:       args.ChannelID,
			NotifyChannelID: args.NotifyChannelID,
		})
		if err != nil {
			return nil, err
		}
		res.ChannelID = out.ChannelID
		res.Queue = out.Queue
		res.Message = "Joined the voice channel"

	case CmdLeave:
		out, err := d.orch.Leave(ctx, args.GuildID)
		if err != nil {
			return nil, err
		}
		res.ChannelID = out.ChannelID
		res.Message = "Left the voice channel"

	case CmdEnqueue:
		out, err := d.orch.Enqueue(ctx, playback.EnqueueRequest{
			GuildID:         args.GuildID,
			ChannelID:       args.ChannelID,
			NotifyChannelID: args.NotifyChannelID,
			Query:           args.Query,
		})
		if err != nil {
			return nil, err
		}
		res.ChannelID = out.ChannelID
		res.Queue = out.Queue
		res.Added = out.Added
		res.Message = EnqueuedText(out.Added)

	case CmdRemove:
		out, err := d.orch.Remove(ctx, args.GuildID, *args.Index)
		if err != nil {
			return nil, err
		}
		res.Queue = out.Queue
		res.Track = &out.Removed
		res.Message = "Removed " + out.Removed.Title

	case CmdSkip:
		out, err := d.orch.Skip(ctx, args.GuildID)
		if err != nil {
			return nil, err
		}
		res.Queue = out.Queue
		res.Track = &out.Skipped
		res.Message = "Skipped " + out.Skipped.Title

	case CmdShuffle:
		q, err := d.orch.Shuffle(ctx, args.GuildID)
		if err != nil {
			return nil, err
		}
		res.Queue = q
		res.Message = "Shuffled queue"

	case CmdQueue:
		out, err := d.orch.Queue(ctx, args.GuildID)
		if err != nil {
			return nil, err
		}
		res.Queue = out.Queue
		if c := out.Connection; c != nil {
			res.ChannelID = c.ChannelID
			res.Connection = &Connection{
				ChannelID: c.ChannelID,
				State:     string(c.State),
				Player:    string(c.Player),
				Current:   c.Current,
			}
		}
		res.Message = QueueText(out.Queue)

	default:
		return nil, errors.New("unreachable")
	}
	return res, nil
}
