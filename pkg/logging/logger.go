// Package logging configures zerolog for the portal API clients.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output instead of JSON.
	Pretty bool

	// Output defaults to os.Stderr.
	Output io.Writer

	// Service is added to every entry as the "service" field when set.
	Service string
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures and installs the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	ctx := zerolog.New(output).With().Timestamp()
	if cfg.Service != "" {
		ctx = ctx.Str("service", cfg.Service)
	}
	logger := ctx.Logger()

	log.Logger = logger

	return logger
}

// ParseLevel converts a level name to zerolog.Level. Unknown names map to info.
func ParseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(string(level))) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a child of the global logger tagged with component.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: request flow details
//   - ETag cache hits and conditional requests
//   - quota updates while healthy
//   - individual Jira pages
//
// Info: normal operation
//   - "Waiting <n>ms before retry..." and successful retries
//   - completed paged fetches
//   - server startup/shutdown
//
// Warn: throttling that does not fail the request yet
//   - primary and secondary rate limit hits
//   - exhausted GitHub quota
//   - cache errors (request continues uncached)
//
// Error: failures returned to the caller
//   - exhausted retries
//   - GitHub transport errors
//   - failed Jira pages
//   - recovered panics in scheduled operations
//
// Context Fields:
//   - component: scheduler, github-client, jira-client, ratelimit
//   - service: portal-proxy on entries from the proxy binary itself
//   - attempt / max_attempts: retry bookkeeping
//   - wait: backoff before the next attempt
//   - class: rate limit class (primary, secondary, other)
//   - endpoint, status: upstream request path and HTTP status
//   - page, issues: Jira pagination progress
