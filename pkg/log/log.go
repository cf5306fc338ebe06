package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the package-level logger. Init must run before any component
// calls WithComponent; until then Logger is zerolog's zero value, which
// writes nowhere.
var Logger zerolog.Logger

// Level is the configured minimum severity.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds the logging setup read from the environment at startup.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init sets the global level and output format. Every component that logs
// (broker, tracker, supervisor, control loop, reconnect supervisor, main)
// derives its own logger from Logger via WithComponent when it is
// constructed, so this must run once before any component starts.
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case InfoLevel:
		level = zerolog.InfoLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

// WithComponent returns a child logger tagged with which of C1-C7 is
// logging (e.g. "supervisor", "tracker", "control"). Per-event fields like
// tenant_key and instance_id are attached inline at each call site instead
// of through dedicated factories, since which fields apply varies event by
// event: a tick failure carries no tenant_key, a pool-creation failure does.
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}
