// Package glog is the structured logging package shared by the broker,
// topology manager, and out-of-process transport. It wraps zerolog the way
// the pack's cuemby-warren repo wraps it for its own services: a
// package-level Init, and per-component child loggers.
package glog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Level mirrors the subset of zerolog levels operators configure.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config controls the process-wide logger built by Init.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Logger is the process-wide base logger. The package's init sets it to an
// info-level console logger; components should still hold their own child
// logger rather than reference this directly.
var Logger zerolog.Logger

// Init configures the process-wide logger. The package's own init calls it
// once with an info-level console default; cmd/gatewayd calls it again at
// startup with the operator's flags. Child loggers obtained before a later
// Init keep the output writer they were built from.
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
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
		Logger = zerolog.New(zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	}
}

// Component returns a child logger tagged with the given component name.
// Used by broker, topology, and transport so log lines can be filtered by
// subsystem without each one managing its own zerolog.Logger construction.
func Component(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}

// Module returns a child logger tagged with both component and module name,
// used by the broker's per-module worker and the out-of-process proxy.
func Module(component, moduleName string) zerolog.Logger {
	return Logger.With().Str("component", component).Str("module", moduleName).Logger()
}

func init() {
	// A safe default so tests and library consumers that never call Init
	// still get console output instead of a silently discarded logger.
	Init(Config{Level: InfoLevel})
}
