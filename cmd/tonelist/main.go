/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/friendsincode/tonelist/internal/config"
	"github.com/friendsincode/tonelist/internal/logbuffer"
	"github.com/friendsincode/tonelist/internal/logging"
	"github.com/friendsincode/tonelist/internal/server"
	"github.com/friendsincode/tonelist/internal/telemetry"
	"github.com/friendsincode/tonelist/internal/version"
)

var (
	logger    zerolog.Logger
	cfg       *config.Config
	logBuffer *logbuffer.Buffer
)

var rootCmd = &cobra.Command{
	Use:   "tonelist",
	Short: "Tonelist - Discord music bot",
	Long:  "Tonelist plays queued tracks into Discord voice channels through a Lavalink node.",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Connect to Discord and Lavalink and serve the control API",
	RunE:  runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.String())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration (called by commands that need it)
func loadConfig() error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logBuffer = logbuffer.New(cfg.LogBufferSize)
	logger = logging.Setup(cfg.Environment, cfg.LogLevel, logbuffer.NewWriter(logBuffer))
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	logger.Info().Str("version", version.String()).Msg("tonelist starting")

	tracerProvider, err := telemetry.InitTracer(context.Background(), telemetry.TracerConfig{
		ServiceName:    "tonelist",
		ServiceVersion: version.String(),
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TracingEnabled,
		SampleRate:     cfg.TracingSampleRate,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown tracer provider")
		}
	}()

	srv, err := server.New(cfg, logBuffer, logger)
	if err != nil {
		return fmt.Errorf("initialize server: %w", err)
	}
	if err := srv.Start(); err != nil {
		_ = srv.Close()
		return fmt.Errorf("start server: %w", err)
	}

	httpServer := srv.HTTPServer()

	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down gracefully...")

	timeoutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(timeoutCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	if err := srv.Close(); err != nil {
		logger.Error().Err(err).Msg("shutdown cleanup failed")
	}

	logger.Info().Msg("tonelist stopped")
	return nil
}
