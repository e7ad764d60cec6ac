// Package logs builds the go-kit loggers used throughout the sequencer.
package logs

import (
	"io"
	"os"
	"strings"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// New returns a logger writing to w (stdout if nil) in the requested format (logfmt or json),
// filtered at the requested level (debug, info, warn, error).
func New(w io.Writer, format, lvl string) kitlog.Logger {
	if w == nil {
		w = os.Stdout
	}
	var logger kitlog.Logger
	switch strings.ToLower(format) {
	case "json":
		logger = kitlog.NewJSONLogger(kitlog.NewSyncWriter(w))
	default:
		logger = kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(w))
	}
	logger = kitlog.With(logger, "ts", kitlog.DefaultTimestampUTC)
	return level.NewFilter(logger, levelOption(lvl))
}

// Nop returns a logger which drops everything.
func Nop() kitlog.Logger {
	return kitlog.NewNopLogger()
}

// OrNop returns the logger, or a no-op logger if it is nil.
func OrNop(l kitlog.Logger) kitlog.Logger {
	if l == nil {
		return Nop()
	}
	return l
}

// Subsystem tags the logger with the subsystem key used in every log line.
func Subsystem(l kitlog.Logger, subsys string) kitlog.Logger {
	return kitlog.With(OrNop(l), "subsys", subsys)
}

func levelOption(lvl string) level.Option {
	switch strings.ToLower(lvl) {
	case "debug":
		return level.AllowDebug()
	case "warn", "warning":
		return level.AllowWarn()
	case "error":
		return level.AllowError()
	default:
		return level.AllowInfo()
	}
}
