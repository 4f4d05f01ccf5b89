// Package logging builds the zerolog.Logger threaded through Engine and its
// subsystems (SPEC_FULL.md §2.1). Grounded on allaspectsdev-tokenman's
// internal/daemon/daemon.go Run: a zerolog.ConsoleWriter for foreground/TTY
// output, parseLogLevel's string-to-Level mapping, and a "service" field
// identifying the component, adapted here into a constructor rather than
// mutating the global log.Logger, since Engine threads its logger
// explicitly instead of relying on the package-level default.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// New builds a logger writing to w (typically os.Stderr) at the given
// level, console-formatted when w is a terminal. service names the
// subsystem (e.g. "engine", "store", "govern", "loader") as a "component"
// field on every event.
func New(w io.Writer, level string, service string) zerolog.Logger {
	out := w
	if f, ok := w.(*os.File); ok && isTerminal(f) {
		out = zerolog.ConsoleWriter{Out: f, TimeFormat: "15:04:05"}
	}
	return zerolog.New(out).Level(ParseLevel(level)).With().
		Timestamp().
		Str("component", service).
		Logger()
}

// ParseLevel converts a config/flag string to a zerolog.Level, defaulting
// to Info for an empty or unrecognized value.
func ParseLevel(level string) zerolog.Level {
	switch level {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "info", "":
		return zerolog.InfoLevel
	default:
		return zerolog.InfoLevel
	}
}
