package observability

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// Logger is a zerolog logger whose events carry the trace and span of the
// context they are created from
type Logger struct {
	base zerolog.Logger
}

// NewLogger builds the process logger from LOG_LEVEL, LOG_FORMAT and LOG_OUTPUT
func NewLogger(config Config) *Logger {
	var out io.Writer = os.Stdout
	if config.LogOutput == "stderr" {
		out = os.Stderr
	}
	return newLogger(out, config)
}

func newLogger(out io.Writer, config Config) *Logger {
	if config.LogFormat == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(config.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	fields := zerolog.New(out).Level(level).With().Timestamp()
	if config.ServiceName != "" {
		fields = fields.Str("service", config.ServiceName)
	}
	if config.ServiceVersion != "" {
		fields = fields.Str("version", config.ServiceVersion)
	}
	if config.Environment != "" {
		fields = fields.Str("environment", config.Environment)
	}

	return &Logger{base: fields.Logger()}
}

// traced adds trace_id and span_id when ctx carries a valid span
func (l *Logger) traced(ctx context.Context) *zerolog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return &l.base
	}
	logger := l.base.With().
		Str("trace_id", sc.TraceID().String()).
		Str("span_id", sc.SpanID().String()).
		Logger()
	return &logger
}

func (l *Logger) Debug(ctx context.Context) *zerolog.Event {
	return l.traced(ctx).Debug()
}

func (l *Logger) Info(ctx context.Context) *zerolog.Event {
	return l.traced(ctx).Info()
}

func (l *Logger) Warn(ctx context.Context) *zerolog.Event {
	return l.traced(ctx).Warn()
}

func (l *Logger) Error(ctx context.Context) *zerolog.Event {
	return l.traced(ctx).Error()
}

// Fatal exits the process once the event is sent
func (l *Logger) Fatal(ctx context.Context) *zerolog.Event {
	return l.traced(ctx).Fatal()
}

// handleOTelError reports exporter and SDK errors through the service log
func (l *Logger) handleOTelError(err error) {
	l.base.Warn().Err(err).Str("source", "otel_sdk").Msg("OpenTelemetry SDK error")
}
