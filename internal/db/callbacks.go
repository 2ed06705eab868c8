/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"errors"
	"time"

	"github.com/friendsincode/tonelist/internal/telemetry"
	"gorm.io/gorm"
)

const (
	_startTime = "gorm:start_time"
)

// RegisterCallbacks registers telemetry callbacks for GORM operations.
func RegisterCallbacks(db *gorm.DB) error {
	cb := db.Callback()
	hooks := []struct {
		op     string
		before func(name string, fn func(*gorm.DB)) error
		after  func(name string, fn func(*gorm.DB)) error
	}{
		{"query", cb.Query().Before("gorm:query").Register, cb.Query().After("gorm:query").Register},
		{"create", cb.Create().Before("gorm:create").Register, cb.Create().After("gorm:create").Register},
		{"update", cb.Update().Before("gorm:update").Register, cb.Update().After("gorm:update").Register},
		{"delete", cb.Delete().Before("gorm:delete").Register, cb.Delete().After("gorm:delete").Register},
	}

	for _, h := range hooks {
		if err := h.before("telemetry:before_"+h.op, beforeCallback); err != nil {
			return err
		}
		if err := h.after("telemetry:after_"+h.op, afterCallback(h.op)); err != nil {
			return err
		}
	}
	return nil
}

// beforeCallback records the start time before a database operation.
func beforeCallback(db *gorm.DB) {
	db.InstanceSet(_startTime, time.Now())
}

// afterCallback creates a callback that records metrics after a database operation.
func afterCallback(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		startTimeValue, exists := db.InstanceGet(_startTime)
		if !exists {
			return
		}

		startTime, ok := startTimeValue.(time.Time)
		if !ok {
			return
		}

		duration := time.Since(startTime).Seconds()

		tableName := db.Statement.Table
		if tableName == "" {
			tableName = "unknown"
		}

		telemetry.DatabaseQueryDuration.WithLabelValues(operation, tableName).Observe(duration)

		if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
			telemetry.DatabaseErrorsTotal.WithLabelValues(operation, "query_error").Inc()
		}
	}
}

// UpdateConnectionMetrics samples the connection pool. The server calls it
// from a ticker.
func UpdateConnectionMetrics(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}

	stats := sqlDB.Stats()
	telemetry.DatabaseConnectionsActive.Set(float64(stats.OpenConnections))
}
