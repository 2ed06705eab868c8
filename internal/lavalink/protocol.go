/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package lavalink

import (
	"encoding/json"

	"github.com/friendsincode/tonelist/internal/models"
)

// LoadType is the kind of result /v4/loadtracks returned.
type LoadType string

const (
	LoadTrack    LoadType = "track"
	LoadPlaylist LoadType = "playlist"
	LoadSearch   LoadType = "search"
	LoadEmpty    LoadType = "empty"
	LoadError    LoadType = "error"
)

// Track is a Lavalink track object.
type Track struct {
	Encoded string    `json:"encoded"`
	Info    TrackInfo `json:"info"`
}

type TrackInfo struct {
	Identifier string  `json:"identifier"`
	IsSeekable bool    `json:"isSeekable"`
	Author     string  `json:"author"`
	Length     int64   `json:"length"`
	IsStream   bool    `json:"isStream"`
	Position   int64   `json:"position"`
	Title      string  `json:"title"`
	URI        *string `json:"uri"`
	SourceName string  `json:"sourceName"`
}

// Model converts the track. The encoded string is carried as the opaque payload.
func (t Track) Model() models.Track {
	out := models.Track{
		Identifier: t.Info.Identifier,
		Title:      t.Info.Title,
		Author:     t.Info.Author,
		DurationMS: t.Info.Length,
		IsStream:   t.Info.IsStream,
		Payload:    t.Encoded,
	}
	if t.Info.URI != nil {
		out.URI = *t.Info.URI
	}
	return out
}

// LoadResult is the raw loadtracks response. Data depends on LoadType.
type LoadResult struct {
	LoadType LoadType        `json:"loadType"`
	Data     json.RawMessage `json:"data"`
}

type playlist struct {
	Info struct {
		Name          string `json:"name"`
		SelectedTrack int    `json:"selectedTrack"`
	} `json:"info"`
	Tracks []Track `json:"tracks"`
}

// Exception is reported by failed loads and track exceptions.
type Exception struct {
	Message  string `json:"message"`
	Severity string `json:"severity"`
	Cause    string `json:"cause"`
}

// message is any frame received on the websocket.
type message struct {
	Op string `json:"op"`

	// ready
	Resumed   bool   `json:"resumed"`
	SessionID string `json:"sessionId"`

	// playerUpdate, event
	GuildID string       `json:"guildId"`
	State   *playerState `json:"state,omitempty"`

	// event
	Type        string     `json:"type"`
	Track       *Track     `json:"track,omitempty"`
	Reason      string     `json:"reason"`
	Exception   *Exception `json:"exception,omitempty"`
	ThresholdMS int64      `json:"thresholdMs"`
	Code        int        `json:"code"`
	ByRemote    bool       `json:"byRemote"`
}

type playerState struct {
	Time      int64 `json:"time"`
	Position  int64 `json:"position"`
	Connected bool  `json:"connected"`
	Ping      int   `json:"ping"`
}

const (
	opReady        = "ready"
	opPlayerUpdate = "playerUpdate"
	opStats        = "stats"
	opEvent        = "event"

	eventTrackStart     = "TrackStartEvent"
	eventTrackEnd       = "TrackEndEvent"
	eventTrackException = "TrackExceptionEvent"
	eventTrackStuck     = "TrackStuckEvent"
	eventSocketClosed   = "WebSocketClosedEvent"
)

type voiceUpdate struct {
	Token     string `json:"token"`
	Endpoint  string `json:"endpoint"`
	SessionID string `json:"sessionId"`
}

// trackUpdate with a nil Encoded stops the player.
type trackUpdate struct {
	Encoded *string `json:"encoded"`
}

type playerUpdate struct {
	Track *trackUpdate `json:"track,omitempty"`
	Voice *voiceUpdate `json:"voice,omitempty"`
}

type errorBody struct {
	Status  int    `json:"status"`
	Error   string `json:"error"`
	Message string `json:"message"`
	Path    string `json:"path"`
}
