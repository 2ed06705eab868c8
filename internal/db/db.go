/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/friendsincode/tonelist/internal/config"
)

// Connect establishes a gorm DB connection for the configured backend and
// applies the schema.
func Connect(cfg *config.Config, log zerolog.Logger) (*gorm.DB, error) {
	return Open(cfg.DBBackend, cfg.DBDSN, log)
}

// Open opens dsn with the driver for backend.
func Open(backend config.DatabaseBackend, dsn string, log zerolog.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch backend {
	case config.DatabasePostgres:
		dialector = postgres.Open(dsn)
	case config.DatabaseMySQL:
		dialector = mysql.Open(dsn)
	case config.DatabaseSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unknown database backend: %s", backend)
	}

	level := logger.Warn
	if log.GetLevel() <= zerolog.DebugLevel {
		level = logger.Info
	}

	database, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", backend, err)
	}

	sqlDB, err := database.DB()
	if err != nil {
		return nil, err
	}

	if backend == config.DatabaseSQLite {
		// A single writer avoids SQLITE_BUSY under concurrent sessions.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetMaxOpenConns(20)
	}
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := RegisterCallbacks(database); err != nil {
		return nil, fmt.Errorf("register callbacks: %w", err)
	}

	if err := Migrate(database); err != nil {
		return nil, err
	}

	log.Info().Str("backend", string(backend)).Msg("database connected")
	return database, nil
}

// Close releases database resources.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
