// Copyright 2023 StreamNative, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logging routes log/slog through zerolog. Logs go to stderr so that values
// printed on stdout stay machine readable.
package logging

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
	slogzerolog "github.com/samber/slog-zerolog/v2"
)

const DefaultLogLevel = slog.LevelInfo

var (
	// LogLevel Used for flags.
	LogLevel = DefaultLogLevel
	// LogJSON Used for flags.
	LogJSON bool
)

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	//nolint
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
}

// ParseLogLevel accepts the slog level names in any case, with an optional offset
// such as "debug+2". Unknown names yield LevelInfo and an error.
func ParseLogLevel(levelStr string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(levelStr)); err != nil {
		return slog.LevelInfo, errors.Wrapf(err, "unknown level string: '%s', defaulting to LevelInfo", levelStr)
	}
	return level, nil
}

// NewLogger builds a slog logger writing to w. Console output is meant for a
// terminal, JSON output for log collectors.
func NewLogger(w io.Writer, level slog.Level, json bool) *slog.Logger {
	var zerologLogger zerolog.Logger
	if json {
		zerologLogger = zerolog.New(w)
	} else {
		zerologLogger = zerolog.New(zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.StampMicro,
		})
	}
	zerologLogger = zerologLogger.With().Timestamp().Stack().Logger()

	return slog.New(
		slogzerolog.Option{
			Level:  level,
			Logger: &zerologLogger,
		}.NewZerologHandler(),
	)
}

// ConfigureLogger installs the process wide logger from LogLevel and LogJSON.
func ConfigureLogger() {
	slog.SetDefault(NewLogger(os.Stderr, LogLevel, LogJSON))
}
