package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "INFO"
	}
}

// ParseLogLevel parses a level name, defaulting to info
func ParseLogLevel(level string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

var slogLevels = map[LogLevel]slog.Level{
	DebugLevel: slog.LevelDebug,
	InfoLevel:  slog.LevelInfo,
	WarnLevel:  slog.LevelWarn,
	ErrorLevel: slog.LevelError,
}

// Logger emits JSON lines through slog. Loggers are immutable; the With
// methods return a derived logger.
type Logger struct {
	logger *slog.Logger
}

// NewLogger creates a JSON logger writing to output (stdout when nil)
func NewLogger(level LogLevel, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}
	handler := slog.NewJSONHandler(output, &slog.HandlerOptions{Level: slogLevels[level]})
	return &Logger{logger: slog.New(handler)}
}

// NopLogger discards everything. Used by components constructed without a logger.
func NopLogger() *Logger {
	return NewLogger(ErrorLevel, io.Discard)
}

func (l *Logger) with(args ...interface{}) *Logger {
	if len(args) == 0 {
		return l
	}
	return &Logger{logger: l.logger.With(args...)}
}

// WithField adds a field to the logger context
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.with(key, value)
}

// WithFields adds multiple fields to the logger context
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return l.with(args...)
}

// WithError adds err under "error". A nil error returns l unchanged.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.with("error", err.Error())
}

func (l *Logger) Debug(message string) { l.logger.Debug(message) }
func (l *Logger) Info(message string)  { l.logger.Info(message) }
func (l *Logger) Warn(message string)  { l.logger.Warn(message) }
func (l *Logger) Error(message string) { l.logger.Error(message) }

// Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

// RequestScope holds the identifiers attached to every log line and access
// decision emitted while serving one request.
type RequestScope struct {
	RequestID    string
	UserID       string
	EscalationID string
	TenantID     string
}

func (s RequestScope) fields() []interface{} {
	var args []interface{}
	for _, kv := range [][2]string{
		{"request_id", s.RequestID},
		{"user_id", s.UserID},
		{"escalation_id", s.EscalationID},
		{"tenant_id", s.TenantID},
	} {
		if kv[1] != "" {
			args = append(args, kv[0], kv[1])
		}
	}
	return args
}

type scopeKey struct{}

// ScopeFrom returns the request scope stored on ctx
func ScopeFrom(ctx context.Context) RequestScope {
	if s, ok := ctx.Value(scopeKey{}).(RequestScope); ok {
		return s
	}
	return RequestScope{}
}

func updateScope(ctx context.Context, fn func(*RequestScope)) context.Context {
	s := ScopeFrom(ctx)
	fn(&s)
	return context.WithValue(ctx, scopeKey{}, s)
}

// WithRequestID records the request id on ctx
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return updateScope(ctx, func(s *RequestScope) { s.RequestID = requestID })
}

// GetRequestID returns the request id recorded on ctx
func GetRequestID(ctx context.Context) string {
	return ScopeFrom(ctx).RequestID
}

// WithCaller records the authenticated user and, for assumed-tenant
// credentials, the escalation id.
func WithCaller(ctx context.Context, userID, escalationID string) context.Context {
	return updateScope(ctx, func(s *RequestScope) {
		s.UserID = userID
		s.EscalationID = escalationID
	})
}

// WithTenantID records the resolved tenant on ctx
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return updateScope(ctx, func(s *RequestScope) { s.TenantID = tenantID })
}

// FromContext derives a logger from base carrying the request scope and, when
// a span is recording, its trace and span ids.
func FromContext(ctx context.Context, base *Logger) *Logger {
	if base == nil {
		base = NopLogger()
	}
	logger := base.with(ScopeFrom(ctx).fields()...)

	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return logger
	}
	sc := span.SpanContext()
	return logger.with("trace_id", sc.TraceID().String(), "span_id", sc.SpanID().String())
}
