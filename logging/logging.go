// Package logging wraps zerolog with the fields the destination
// collaborator (destination/gormjob) attaches to its log lines, grounded on
// gokit's logger package — the core dispatcher itself prefers capitan
// signals over direct logging, matching the teacher library's convention
// of signals-over-logging inside the engine.
package logging

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Config controls how a Logger is built.
type Config struct {
	Level   string `yaml:"level" mapstructure:"level"`
	Format  string `yaml:"format" mapstructure:"format"`
	NoColor bool   `yaml:"no_color" mapstructure:"no_color"`
}

// DefaultConfig returns an info-level, console-formatted config.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "console"}
}

// Logger wraps zerolog.Logger with the component tag a collaborator
// (destination/gormjob) attaches to its lines.
type Logger struct {
	zl zerolog.Logger
}

// New builds a Logger for component from cfg.
func New(cfg Config, component string) *Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var zl zerolog.Logger
	if strings.EqualFold(cfg.Format, "console") {
		zl = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, NoColor: cfg.NoColor})
	} else {
		zl = zerolog.New(os.Stdout)
	}
	zl = zl.With().Timestamp().Str("component", component).Logger().Level(level)
	return &Logger{zl: zl}
}

// WithField returns a Logger with an additional field attached to every
// subsequent line.
func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{zl: l.zl.With().Interface(key, value).Logger()}
}

// Info logs an info-level message.
func (l *Logger) Info(msg string) { l.zl.Info().Msg(msg) }

// Warn logs a warn-level message.
func (l *Logger) Warn(msg string) { l.zl.Warn().Msg(msg) }

// Error logs an error-level message with err attached.
func (l *Logger) Error(err error, msg string) { l.zl.Error().Err(err).Msg(msg) }

// Underlying returns the wrapped zerolog.Logger for callers that need the
// full zerolog API.
func (l *Logger) Underlying() zerolog.Logger { return l.zl }
