/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/friendsincode/tonelist/internal/models"
)

// SQL stores one row per guild through gorm.
type SQL struct {
	db *gorm.DB
}

// NewSQL expects the queues table to be migrated already (see db.Migrate).
func NewSQL(db *gorm.DB) *SQL {
	return &SQL{db: db}
}

func (s *SQL) Get(ctx context.Context, key string) (*models.Queue, error) {
	var rec models.QueueRecord
	err := s.db.WithContext(ctx).Where("guild_id = ?", key).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		record("sql", "get", ErrNotFound)
		return nil, ErrNotFound
	}
	if err != nil {
		record("sql", "get", err)
		return nil, fmt.Errorf("get queue %s: %w", key, err)
	}
	record("sql", "get", nil)
	return rec.Queue(), nil
}

func (s *SQL) Set(ctx context.Context, key string, q *models.Queue) (*models.Queue, error) {
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

	rec := models.QueueRecord{
		GuildID:      key,
		BoundChannel: stored.BoundChannel,
		Tracks:       stored.Tracks,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "guild_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"bound_channel", "tracks", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		record("sql", "set", err)
		return nil, fmt.Errorf("set queue %s: %w", key, err)
	}
	record("sql", "set", nil)
	return stored, nil
}

func (s *SQL) Delete(ctx context.Context, key string) error {
	res := s.db.WithContext(ctx).Where("guild_id = ?", key).Delete(&models.QueueRecord{})
	if res.Error != nil {
		record("sql", "delete", res.Error)
		return fmt.Errorf("delete queue %s: %w", key, res.Error)
	}
	if res.RowsAffected == 0 {
		record("sql", "delete", ErrNotFound)
		return ErrNotFound
	}
	record("sql", "delete", nil)
	return nil
}
