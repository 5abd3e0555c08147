package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Global logger instance. Disabled until Initialize runs, which keeps
// library consumers and tests quiet by default.
var (
	Log = zerolog.Nop()
)

// Initialize sets up the global logger with configuration.
// When logFile is non-empty, output is duplicated to that file.
func Initialize(level string, pretty bool, logFile string) {
	// Parse log level
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	var out io.Writer = os.Stdout
	if pretty {
		// Pretty console output for development
		out = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	} else {
		// JSON output for production
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	}

	if logFile != "" {
		f, ferr := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if ferr != nil {
			log.Warn().Err(ferr).Str("path", logFile).Msg("Failed to open log file, logging to stdout only")
		} else {
			out = zerolog.MultiLevelWriter(out, f)
		}
	}

	// Set global logger
	Log = zerolog.New(out).With().
		Timestamp().
		Str("service", "matchmaker").
		Logger()

	Log.Info().
		Str("level", logLevel.String()).
		Bool("pretty", pretty).
		Msg("Logger initialized")
}

// GetLogger returns the global logger instance
func GetLogger() *zerolog.Logger {
	return &Log
}

// Engine creates a logger for matchmaker engine events
func Engine() *zerolog.Logger {
	l := Log.With().Str("component", "engine").Logger()
	return &l
}

// Control creates a logger for node control protocol events
func Control() *zerolog.Logger {
	l := Log.With().Str("component", "control").Logger()
	return &l
}

// WebSocket creates a logger for WebSocket events
func WebSocket() *zerolog.Logger {
	l := Log.With().Str("component", "websocket").Logger()
	return &l
}

// HTTP creates a logger for HTTP request events
func HTTP() *zerolog.Logger {
	l := Log.With().Str("component", "http").Logger()
	return &l
}

// Health creates a logger for health supervisor events
func Health() *zerolog.Logger {
	l := Log.With().Str("component", "health").Logger()
	return &l
}

// Session creates a logger for session store events
func Session() *zerolog.Logger {
	l := Log.With().Str("component", "session").Logger()
	return &l
}
