// Package logger configures the process-wide zerolog logger.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
)

// Log is the global logger instance.
var Log zerolog.Logger

func init() {
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	zerolog.TimeFieldFormat = time.RFC3339Nano
	Log = New(os.Stderr, zerolog.InfoLevel)
}

// New returns a console logger writing to w at level.
func New(w io.Writer, level zerolog.Level) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: "2006-01-02 15:04:05",
	}
	return zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// ParseLevel is zerolog.ParseLevel with "" meaning info.
func ParseLevel(s string) (zerolog.Level, error) {
	if s == "" {
		return zerolog.InfoLevel, nil
	}
	return zerolog.ParseLevel(s)
}

// Setup points Log at w with the configured level. verbose forces debug.
func Setup(w io.Writer, levelStr string, verbose bool) {
	level, err := ParseLevel(levelStr)
	if err != nil {
		Log.Warn().Str("level", levelStr).Msg("invalid log level, defaulting to info")
		level = zerolog.InfoLevel
	}
	if verbose && level > zerolog.DebugLevel {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	Log = New(w, level)
}

// Printer adapts a zerolog logger to the Printf seam the engine packages
// accept. zerolog's own Printf logs at debug level; Printer logs at Level.
type Printer struct {
	Logger zerolog.Logger
	Level  zerolog.Level
}

// Infof returns a Printer logging through Log at info level.
func Infof() Printer { return Printer{Logger: Log, Level: zerolog.InfoLevel} }

func (p Printer) Printf(format string, v ...any) {
	p.Logger.WithLevel(p.Level).Msgf(format, v...)
}
