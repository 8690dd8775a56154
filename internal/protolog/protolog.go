// Package protolog builds the per-target logger used by every protocol
// operation. Each connection attempt gets its own logger with the target
// context (protocol, host, port, hostname) attached once, so log lines
// cannot drift out of sync with the connection they describe.
package protolog

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Level is the process-wide log level. Verbose tooling flips this to
// DebugLevel before any connections are made.
var Level = zerolog.InfoLevel

// New returns a logger bound to a single target. The context fields are
// immutable for the lifetime of the logger; a new target means a new
// logger, never mutation of an existing one.
func New(protocol, host string, port int, hostname string) zerolog.Logger {
	w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	return zerolog.New(w).Level(Level).With().
		Timestamp().
		Str("protocol", protocol).
		Str("host", host).
		Int("port", port).
		Str("hostname", hostname).
		Logger()
}
