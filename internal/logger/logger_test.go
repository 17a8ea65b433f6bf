package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("bad json line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestBuild_StaticFieldsAndLevel(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "warn", Component: "refreshd", Display: "0"}, &buf)

	zl.Info().Msg("dropped")
	zl.Warn().Msg("kept")

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("got %d lines want 1: %s", len(lines), buf.String())
	}
	l := lines[0]
	if l["msg"] != "kept" || l["level"] != "warn" || l["component"] != "refreshd" || l["display"] != "0" {
		t.Fatalf("unexpected record: %v", l)
	}
	if _, ok := l["timestamp"]; !ok {
		t.Fatalf("missing timestamp: %v", l)
	}
}

func TestSlogBridge_ContextFieldsAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "debug"}, &buf)
	log := NewSlog(&zl).With("tier", "override").WithGroup("policy")

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithSource(ctx, "http")
	ctx = WithDisplay(ctx, "")

	log.InfoContext(ctx, "policy updated",
		"max_fps", 90.0,
		"allowed", 2,
		"took", 3*time.Millisecond,
		"err", errors.New("boom"))

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("got %d lines want 1", len(lines))
	}
	l := lines[0]
	if l["request_id"] != "req-1" || l["source"] != "http" {
		t.Fatalf("context fields missing: %v", l)
	}
	if _, ok := l["display"]; ok {
		t.Fatalf("empty display must not be set: %v", l)
	}
	if l["tier"] != "override" {
		t.Fatalf("With attrs missing: %v", l)
	}
	if l["policy.max_fps"] != 90.0 || l["policy.allowed"] != 2.0 || l["policy.err"] != "boom" {
		t.Fatalf("grouped attrs missing: %v", l)
	}
}

func TestSlogBridge_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "info"}, &buf)
	log := NewSlog(&zl)

	log.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug record written at info level: %s", buf.String())
	}
	log.Error("shown")
	if !strings.Contains(buf.String(), `"level":"error"`) {
		t.Fatalf("error record missing: %s", buf.String())
	}
}

func TestWithRequestID_GeneratesWhenEmpty(t *testing.T) {
	ctx := WithRequestID(context.Background(), "")
	if id := RequestID(ctx); len(id) != 16 {
		t.Fatalf("generated id=%q want 16 hex chars", id)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]string{"DEBUG": "debug", " warning ": "warn", "error": "error", "bogus": "info"}
	for in, want := range cases {
		if got := ParseLevel(in).String(); got != want {
			t.Fatalf("ParseLevel(%q)=%s want %s", in, got, want)
		}
	}
}
