// Package logging provides zerolog-based structured logging for Bagwatch.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logging configuration.
type Config struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string
	// Format is the output format: json or console.
	Format string
	// Output is the writer for log output. Defaults to os.Stderr.
	Output io.Writer
}

var (
	log zerolog.Logger
	mu  sync.RWMutex
)

func init() {
	Init(Config{Level: "info", Format: "console"})
}

// Init configures the global logger. Safe to call more than once; the last
// call wins.
func Init(cfg Config) {
	mu.Lock()
	defer mu.Unlock()

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	log = zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// Logger returns the global logger.
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// With returns the global logger tagged with a component name.
func With(component string) zerolog.Logger {
	return Logger().With().Str("component", component).Logger()
}

// Debug starts a debug-level log event.
func Debug() *zerolog.Event {
	l := Logger()
	return l.Debug()
}

// Info starts an info-level log event.
func Info() *zerolog.Event {
	l := Logger()
	return l.Info()
}

// Warn starts a warn-level log event.
func Warn() *zerolog.Event {
	l := Logger()
	return l.Warn()
}

// Error starts an error-level log event.
func Error() *zerolog.Event {
	l := Logger()
	return l.Error()
}
