package config

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SetupLogger configures the global zerolog logger
func SetupLogger(config LoggingConfig) {
	SetupLoggerWithWriter(config, os.Stdout)
}

// SetupLoggerWithWriter configures the global logger to write to w (for testing)
func SetupLoggerWithWriter(config LoggingConfig, w io.Writer) {
	// Set global log level
	level, err := zerolog.ParseLevel(config.Level)
	if err != nil || config.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Configure logger output
	switch config.Format {
	case "console", "combined":
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339})
	default:
		log.Logger = zerolog.New(w)
	}

	// Add timestamp
	log.Logger = log.With().Timestamp().Logger()
}
