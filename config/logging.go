package config

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger builds the process logger: a console writer for development or
// when format is "console", JSON lines otherwise.
func NewLogger(cfg LogConfig, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stdout
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Format == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(w)
	}

	return logger.Level(level).With().Timestamp().Logger()
}

// Logger is a convenience wrapper around NewLogger for a loaded Config. In
// production the format is forced to JSON.
func (c *Config) Logger() zerolog.Logger {
	logCfg := c.Log
	if !c.IsDevelopment() {
		logCfg.Format = "json"
	}
	return NewLogger(logCfg, os.Stdout)
}
