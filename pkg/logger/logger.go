// Package logger configures log/slog for the notifier and provides
// attribute helpers so every component logs the same keys.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Format selects the slog handler.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Options configures New.
type Options struct {
	Level  slog.Level
	Format Format
	Output io.Writer

	// AddSource adds file:line to every record.
	AddSource bool

	// Service is attached to every record as "service".
	Service string
}

// DefaultOptions returns info-level JSON on stdout.
func DefaultOptions() Options {
	return Options{
		Level:  slog.LevelInfo,
		Format: FormatJSON,
		Output: os.Stdout,
	}
}

// ParseLevel parses a level name. Unknown names map to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseFormat parses a format name. Anything but "text" is JSON.
func ParseFormat(s string) Format {
	if strings.EqualFold(strings.TrimSpace(s), string(FormatText)) {
		return FormatText
	}
	return FormatJSON
}

// New builds a *slog.Logger from opts.
func New(opts Options) *slog.Logger {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     opts.Level,
		AddSource: opts.AddSource,
	}

	var handler slog.Handler
	if opts.Format == FormatText {
		handler = slog.NewTextHandler(opts.Output, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(opts.Output, handlerOpts)
	}

	log := slog.New(handler)
	if opts.Service != "" {
		log = log.With(slog.String("service", opts.Service))
	}
	return log
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 4}))
}

// ══════════════════════════════════════════════════════════════════════════════
// CONTEXT PROPAGATION
// ══════════════════════════════════════════════════════════════════════════════

type contextKey struct{}

// WithContext stores l in ctx.
func WithContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// FromContext returns the logger stored in ctx, else fallback, else slog.Default().
func FromContext(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(contextKey{}).(*slog.Logger); ok && l != nil {
			return l
		}
	}
	if fallback != nil {
		return fallback
	}
	return slog.Default()
}

// ══════════════════════════════════════════════════════════════════════════════
// ATTRIBUTES
// ══════════════════════════════════════════════════════════════════════════════

func ChatID(id string) slog.Attr       { return slog.String("chat_id", id) }
func MessageID(id string) slog.Attr    { return slog.String("message_id", id) }
func InvocationID(id string) slog.Attr { return slog.String("invocation_id", id) }
func UserID(id string) slog.Attr       { return slog.String("user_id", id) }
func Source(name string) slog.Attr     { return slog.String("source", name) }
func Component(name string) slog.Attr  { return slog.String("component", name) }
func Stage(name string) slog.Attr      { return slog.String("stage", name) }

func CorrelationID(id string) slog.Attr { return slog.String("correlation_id", id) }

func RecipientCount(n int) slog.Attr { return slog.Int("recipient_count", n) }
func AddressCount(n int) slog.Attr   { return slog.Int("address_count", n) }
func SuccessCount(n int) slog.Attr   { return slog.Int("success_count", n) }
func FailureCount(n int) slog.Attr   { return slog.Int("failure_count", n) }

func Latency(d time.Duration) slog.Attr { return slog.Duration("latency", d) }

// Err returns an "error" attribute. A nil error yields an empty attr, which
// slog drops.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("error", err.Error())
}
