/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/friendsincode/tonelist/internal/config"
	"github.com/friendsincode/tonelist/internal/db"
	"github.com/friendsincode/tonelist/internal/models"
)

var resetForce bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Drop every persisted guild queue",
	Long: `Drop and re-create the queue table of the sql session store.

Only applies when TONELIST_STORE_BACKEND=sql. Run it while no tonelist
instance is serving, otherwise live sessions write their queues back.

Examples:
  # Interactive reset (will prompt for confirmation)
  tonelist reset

  # Force reset without confirmation
  tonelist reset --force
`,
	RunE: runReset,
}

func init() {
	resetCmd.Flags().BoolVarP(&resetForce, "force", "f", false, "Skip confirmation prompt")
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	if cfg.StoreBackend != config.StoreSQL {
		return errors.New("reset needs the sql store backend")
	}

	if !resetForce {
		fmt.Printf("This deletes every queued track of every guild in %s.\n", cfg.DBBackend)
		fmt.Print("Type 'yes' to confirm reset: ")
		reader := bufio.NewReader(os.Stdin)
		response, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}
		if strings.TrimSpace(strings.ToLower(response)) != "yes" {
			fmt.Println("Reset cancelled.")
			return nil
		}
	}

	database, err := db.Connect(cfg, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer func() { _ = db.Close(database) }()

	logger.Info().Msg("dropping queue table")
	if err := database.Migrator().DropTable(&models.QueueRecord{}); err != nil {
		return fmt.Errorf("drop queues: %w", err)
	}
	if err := db.Migrate(database); err != nil {
		return err
	}

	logger.Info().Msg("queue store reset")
	return nil
}
