/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"time"
)

// Track is a resolved, playable unit of audio.
type Track struct {
	Identifier string `json:"identifier"`
	URI        string `json:"uri,omitempty"`
	Title      string `json:"title"`
	Author     string `json:"author,omitempty"`
	DurationMS int64  `json:"duration_ms"`
	IsStream   bool   `json:"is_stream"`
	// Payload is the player-specific encoded track. It is never inspected.
	Payload string `json:"payload"`
}

// Duration returns the track length.
func (t Track) Duration() time.Duration {
	return time.Duration(t.DurationMS) * time.Millisecond
}

// Queue is the ordered track list of one session. Tracks[0] is the track
// currently loaded in the player.
type Queue struct {
	BoundChannel string  `json:"bound_channel,omitempty"`
	Tracks       []Track `json:"tracks"`
}

// Clone returns a deep copy of q.
func (q *Queue) Clone() *Queue {
	if q == nil {
		return nil
	}
	out := &Queue{BoundChannel: q.BoundChannel}
	if q.Tracks != nil {
		out.Tracks = make([]Track, len(q.Tracks))
		copy(out.Tracks, q.Tracks)
	}
	return out
}

// Head returns the first track, if any.
func (q *Queue) Head() (Track, bool) {
	if q == nil || len(q.Tracks) == 0 {
		return Track{}, false
	}
	return q.Tracks[0], true
}

// Len returns the number of queued tracks.
func (q *Queue) Len() int {
	if q == nil {
		return 0
	}
	return len(q.Tracks)
}

// QueueRecord is the persisted row for a queue in the SQL store.
type QueueRecord struct {
	GuildID      string  `gorm:"type:varchar(32);primaryKey"`
	BoundChannel string  `gorm:"type:varchar(32)"`
	Tracks       []Track `gorm:"serializer:json;type:text"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TableName pins the table name.
func (QueueRecord) TableName() string { return "queues" }

// Queue converts the record back to a Queue.
func (r *QueueRecord) Queue() *Queue {
	q := &Queue{BoundChannel: r.BoundChannel, Tracks: r.Tracks}
	if q.Tracks == nil {
		q.Tracks = []Track{}
	}
	return q
}
