/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package store

import (
	"context"
	"sync"

	"github.com/friendsincode/tonelist/internal/models"
)

// Memory is a process-local Store. Queues are copied on the way in and out.
type Memory struct {
	mu     sync.RWMutex
	queues map[string]*models.Queue
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{queues: make(map[string]*models.Queue)}
}

func (m *Memory) Get(_ context.Context, key string) (*models.Queue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	q, ok := m.queues[key]
	if !ok {
		return nil, ErrNotFound
	}
	return q.Clone(), nil
}

func (m *Memory) Set(_ context.Context, key string, q *models.Queue) (*models.Queue, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}

	stored := q.Clone()
	if stored == nil {
		stored = &models.Queue{}
	}
	if stored.Tracks == nil {
		stored.Tracks = []models.Track{}
	}

	m.mu.Lock()
	m.queues[key] = stored
	m.mu.Unlock()

	return stored.Clone(), nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.queues[key]; !ok {
		return ErrNotFound
	}
	delete(m.queues, key)
	return nil
}

// Len reports the number of stored queues.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.queues)
}
