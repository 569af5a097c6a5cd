// Package logger builds the zerolog logger handed to every component.
package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

type Config struct {
	Level      string // trace, debug, info, warn, error, fatal, panic, disabled
	Format     string // json or console
	Output     string // stdout, stderr, or file path
	TimeFormat string
}

// New creates a logger. The returned closer releases a log file and is a
// no-op for the standard streams.
func New(cfg Config) (zerolog.Logger, func() error, error) {
	nop := func() error { return nil }

	level := zerolog.InfoLevel
	if cfg.Level != "" {
		l, err := zerolog.ParseLevel(cfg.Level)
		if err != nil {
			return zerolog.Nop(), nop, fmt.Errorf("invalid log level: %w", err)
		}
		level = l
	}

	var output io.Writer
	closer := nop
	switch cfg.Output {
	case "", "stderr":
		output = os.Stderr
	case "stdout":
		output = os.Stdout
	default:
		file, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return zerolog.Nop(), nop, fmt.Errorf("could not open log file: %w", err)
		}
		output, closer = file, file.Close
	}

	if cfg.TimeFormat == "" {
		cfg.TimeFormat = time.RFC3339
	}

	switch cfg.Format {
	case "", "console":
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: cfg.TimeFormat}
	case "json":
	default:
		_ = closer()
		return zerolog.Nop(), nop, fmt.Errorf("invalid log format: %s", cfg.Format)
	}

	log := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()
	return log, closer, nil
}
