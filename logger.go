package authclient

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LoggerOptions controls NewZerolog.
type LoggerOptions struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	Level string
	// Pretty enables console output instead of JSON.
	Pretty bool
	// Output defaults to os.Stderr.
	Output io.Writer
}

// NewZerolog builds a zerolog.Logger with timestamps and callers.
func NewZerolog(opts LoggerOptions) zerolog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	if opts.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).
		Level(parseLevel(opts.Level)).
		With().
		Timestamp().
		Str("component", "authclient").
		Logger()
}

// ZerologLogger adapts zerolog to Logger. Args are key/value pairs.
type ZerologLogger struct {
	log zerolog.Logger
}

var _ Logger = ZerologLogger{}

// NewZerologLogger wraps l.
func NewZerologLogger(l zerolog.Logger) ZerologLogger {
	return ZerologLogger{log: l}
}

func (z ZerologLogger) Debug(msg string, args ...any) { withFields(z.log.Debug(), args).Msg(msg) }
func (z ZerologLogger) Info(msg string, args ...any)  { withFields(z.log.Info(), args).Msg(msg) }
func (z ZerologLogger) Warn(msg string, args ...any)  { withFields(z.log.Warn(), args).Msg(msg) }
func (z ZerologLogger) Error(msg string, args ...any) { withFields(z.log.Error(), args).Msg(msg) }

func withFields(e *zerolog.Event, args []any) *zerolog.Event {
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = "arg"
		}
		if i+1 >= len(args) {
			e = e.Interface("extra", args[i])
			break
		}
		switch v := args[i+1].(type) {
		case error:
			e = e.AnErr(key, v)
		case string:
			e = e.Str(key, v)
		default:
			e = e.Interface(key, v)
		}
	}
	return e
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
