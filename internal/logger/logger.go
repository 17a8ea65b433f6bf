// Package logger builds the zerolog logger used by the daemon and carries
// request-scoped fields through context.
package logger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Config struct {
	Level     string
	Console   bool
	SampleN   int
	Component string
	Display   string
}

type ctxKey string

const (
	ctxRequestID ctxKey = "request_id"
	ctxDisplay   ctxKey = "display"
	ctxComponent ctxKey = "component"
	ctxSource    ctxKey = "source"
)

// fields copied from context onto every record, in this order
var ctxFields = []ctxKey{ctxRequestID, ctxDisplay, ctxComponent, ctxSource}

func withValue(ctx context.Context, k ctxKey, v string) context.Context {
	if v == "" {
		return ctx
	}
	return context.WithValue(ctx, k, v)
}

func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = NewID()
	}
	return context.WithValue(ctx, ctxRequestID, id)
}

func WithDisplay(ctx context.Context, display string) context.Context {
	return withValue(ctx, ctxDisplay, display)
}

func WithComponent(ctx context.Context, component string) context.Context {
	return withValue(ctx, ctxComponent, component)
}

// WithSource tags where a control-plane call came from (http, kafka, restore).
func WithSource(ctx context.Context, source string) context.Context {
	return withValue(ctx, ctxSource, source)
}

func RequestID(ctx context.Context) string {
	s, _ := ctx.Value(ctxRequestID).(string)
	return s
}

func Source(ctx context.Context) string {
	s, _ := ctx.Value(ctxSource).(string)
	return s
}

func NewID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

func safeUint32(n int) uint32 {
	if n <= 0 {
		return 0
	}
	if uint64(n) > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(n)
}

func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

func Build(cfg Config, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.TimestampFieldName = "timestamp"
	zerolog.LevelFieldName = "level"
	zerolog.MessageFieldName = "msg"

	if cfg.Console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	base := zerolog.New(out).Level(ParseLevel(cfg.Level))
	if cfg.SampleN > 0 {
		base = base.Sample(&zerolog.BasicSampler{N: safeUint32(cfg.SampleN)})
	}

	zc := base.With().Timestamp()
	if cfg.Component != "" {
		zc = zc.Str("component", cfg.Component)
	}
	if cfg.Display != "" {
		zc = zc.Str("display", cfg.Display)
	}
	return zc.Logger()
}

// FromContext returns a child of parent with the context fields applied.
func FromContext(ctx context.Context, parent *zerolog.Logger) *zerolog.Logger {
	base := zerolog.Nop()
	if parent != nil {
		base = *parent
	}
	w := base.With()
	for _, k := range ctxFields {
		if s, ok := ctx.Value(k).(string); ok && s != "" {
			w = w.Str(string(k), s)
		}
	}
	l := w.Logger()
	return &l
}
