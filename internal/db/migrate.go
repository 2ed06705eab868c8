/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/friendsincode/tonelist/internal/models"
)

// Migrate applies database schema migrations using GORM auto-migrate.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(&models.QueueRecord{}); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}
