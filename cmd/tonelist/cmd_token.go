/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/tonelist/internal/auth"
)

var (
	tokenUser   string
	tokenGuilds []string
	tokenTTL    time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an API token",
	Long: `Issue a signed token for the HTTP and JSON-RPC control API.

Examples:
  # Token for one guild, valid for a day
  tonelist token --user 1234 --guilds 5678 --ttl 24h

  # Operator token covering every guild (also unlocks /api/v1/logs)
  tonelist token --user ops --guilds '*'
`,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "Discord user id the token acts for")
	tokenCmd.Flags().StringSliceVar(&tokenGuilds, "guilds", nil, "Guild ids the token may control ('*' for all)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 30*24*time.Hour, "Token lifetime")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	if cfg.JWTSigningKey == "" {
		return errors.New("TONELIST_JWT_SIGNING_KEY is not set; the API runs without auth")
	}
	if tokenUser == "" || len(tokenGuilds) == 0 {
		return errors.New("--user and --guilds are required")
	}
	if tokenTTL <= 0 {
		return errors.New("--ttl must be positive")
	}

	token, err := auth.Issue([]byte(cfg.JWTSigningKey), auth.Claims{UserID: tokenUser, Guilds: tokenGuilds}, tokenTTL)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
