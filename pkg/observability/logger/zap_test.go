package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"

	"github.com/nimburion/couchconnector/pkg/config"
)

func newBufferedLogger(t *testing.T, level LogLevel) (*ZapLogger, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	l, err := NewZapLogger(Config{Level: level, Format: JSONFormat, Output: buf})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	return l, buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		entry := map[string]interface{}{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid json log line %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestZapLogger_LogLevels(t *testing.T) {
	tests := []struct {
		name     string
		logLevel LogLevel
		logFunc  func(Logger)
		expected bool
	}{
		{
			name:     "debug level logs debug",
			logLevel: DebugLevel,
			logFunc:  func(l Logger) { l.Debug("debug message") },
			expected: true,
		},
		{
			name:     "info level does not log debug",
			logLevel: InfoLevel,
			logFunc:  func(l Logger) { l.Debug("debug message") },
			expected: false,
		},
		{
			name:     "warn level does not log info",
			logLevel: WarnLevel,
			logFunc:  func(l Logger) { l.Info("info message") },
			expected: false,
		},
		{
			name:     "error level logs error",
			logLevel: ErrorLevel,
			logFunc:  func(l Logger) { l.Error("error message") },
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, buf := newBufferedLogger(t, tt.logLevel)
			tt.logFunc(l)
			_ = l.Sync()
			if got := buf.Len() > 0; got != tt.expected {
				t.Errorf("expected output=%v, got %q", tt.expected, buf.String())
			}
		})
	}
}

func TestZapLogger_StructuredFields(t *testing.T) {
	l, buf := newBufferedLogger(t, InfoLevel)
	l.Info("document saved", "database", "crm", "doc_id", "a1", "attempt", 2)
	_ = l.Sync()

	entries := decodeLines(t, buf)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry["message"] != "document saved" {
		t.Errorf("unexpected message %v", entry["message"])
	}
	if entry["database"] != "crm" || entry["doc_id"] != "a1" {
		t.Errorf("missing structured fields: %v", entry)
	}
	if entry["attempt"] != float64(2) {
		t.Errorf("expected attempt=2, got %v", entry["attempt"])
	}
}

func TestZapLogger_WithAndContext(t *testing.T) {
	l, buf := newBufferedLogger(t, InfoLevel)

	child := l.With("component", "connector")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x0a, 0x0b},
		SpanID:     trace.SpanID{0x01},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)
	child.WithContext(ctx).Info("tagged")
	l.WithContext(context.Background()).Info("untagged")
	_ = l.Sync()

	entries := decodeLines(t, buf)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0]["component"] != "connector" || entries[0]["trace_id"] != sc.TraceID().String() {
		t.Errorf("expected component and trace_id fields, got %v", entries[0])
	}
	if entries[0]["span_id"] != sc.SpanID().String() {
		t.Errorf("expected span_id %s, got %v", sc.SpanID(), entries[0]["span_id"])
	}
	if _, ok := entries[1]["trace_id"]; ok {
		t.Errorf("expected no trace_id on untagged entry, got %v", entries[1])
	}
	if _, ok := entries[1]["component"]; ok {
		t.Errorf("parent logger must not inherit child fields, got %v", entries[1])
	}
}

func TestZapLogger_WithContextNil(t *testing.T) {
	l := NewNop()
	//nolint:staticcheck // nil context is handled explicitly
	if got := l.WithContext(nil); got != l {
		t.Errorf("expected the same logger for a nil context, got %v", got)
	}
}

func TestNewNop(t *testing.T) {
	l := NewNop()
	l.Info("discarded", "k", "v")
	if l.With("k", "v") == nil {
		t.Fatal("expected child logger")
	}
}

func TestFromObservability(t *testing.T) {
	cfg, err := FromObservability(config.ObservabilityConfig{LogLevel: "WARNING", LogFormat: "console"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Level != WarnLevel || cfg.Format != TextFormat {
		t.Errorf("unexpected config %+v", cfg)
	}

	if _, err := FromObservability(config.ObservabilityConfig{LogLevel: "loud"}); err == nil {
		t.Error("expected error for invalid level")
	}
	if _, err := FromObservability(config.ObservabilityConfig{LogFormat: "xml"}); err == nil {
		t.Error("expected error for invalid format")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    LogLevel
		wantErr bool
	}{
		{"debug", DebugLevel, false},
		{"info", InfoLevel, false},
		{"warn", WarnLevel, false},
		{"warning", WarnLevel, false},
		{"error", ErrorLevel, false},
		{"trace", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLogLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLogLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
