/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures zerolog for the process.
func Setup(environment, level string, sinks ...io.Writer) zerolog.Logger {
	return SetupWithWriter(environment, level, os.Stdout, sinks...)
}

// SetupWithWriter configures zerolog to write to out. Production output is
// JSON, everything else uses the console writer. Sinks always receive JSON.
func SetupWithWriter(environment, level string, out io.Writer, sinks ...io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	lvl := zerolog.InfoLevel
	if environment == "development" {
		lvl = zerolog.DebugLevel
	}
	if level != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(level)); err == nil {
			lvl = parsed
		}
	}

	writer := out
	if !strings.EqualFold(environment, "production") {
		writer = zerolog.ConsoleWriter{Out: out}
	}
	if len(sinks) > 0 {
		writer = zerolog.MultiLevelWriter(append([]io.Writer{writer}, sinks...)...)
	}

	logger := zerolog.New(writer).With().Timestamp().Logger().Level(lvl)
	log.Logger = logger
	return logger
}
