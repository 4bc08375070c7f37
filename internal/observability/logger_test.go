package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name  string
		cfg   Config
		level string
		want  bool
	}{
		{"info level logs info", Config{Level: "info"}, "info", true},
		{"info level drops debug", Config{Level: "info"}, "debug", false},
		{"debug level logs debug", Config{Level: "debug"}, "debug", true},
		{"error level drops warn", Config{Level: "error"}, "warn", false},
		{"warn level logs error", Config{Level: "warn"}, "error", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			tt.cfg.Output = buf
			logger := NewLogger(tt.cfg)

			switch tt.level {
			case "debug":
				logger.Debug("node realized")
			case "info":
				logger.Info("node realized")
			case "warn":
				logger.Warn("node realized")
			case "error":
				logger.Error("node realized")
			}

			if got := strings.Contains(buf.String(), "node realized"); got != tt.want {
				t.Errorf("expected message presence=%v, got=%v, output=%s", tt.want, got, buf.String())
			}
		})
	}
}

func TestLoggerTextFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewLogger(Config{Level: "info", Format: "text", Output: buf})

	logger.Info("planned", "nodes", 8)

	if out := buf.String(); !strings.Contains(out, "nodes=8") {
		t.Errorf("expected 'nodes=8' in output, got: %s", out)
	}
}

func TestLoggerWithComponent(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewLogger(Config{Level: "info", Format: "json", Output: buf}).WithComponent("builder")

	logger.Info("test message", "node_id", "dev-vpc")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON log: %v, output: %s", err, buf.String())
	}
	if entry["component"] != "builder" {
		t.Errorf("expected component='builder', got=%v", entry["component"])
	}
	if entry["node_id"] != "dev-vpc" {
		t.Errorf("expected node_id='dev-vpc', got=%v", entry["node_id"])
	}
}

func TestLoggerContextFields(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewLogger(Config{Level: "debug", Format: "json", Output: buf})

	ctx := WithRunID(context.Background(), "run-123")
	ctx = WithComponent(ctx, "planner")
	logger.DebugContext(ctx, "test message")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON log: %v", err)
	}
	if entry["run_id"] != "run-123" {
		t.Errorf("expected run_id='run-123', got=%v", entry["run_id"])
	}
	if entry["component"] != "planner" {
		t.Errorf("expected component='planner', got=%v", entry["component"])
	}
}

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	if got := RunIDFromContext(WithRunID(ctx, "")); got != "" {
		t.Errorf("empty run id stored: %q", got)
	}
	if got := ComponentFromContext(WithComponent(ctx, "")); got != "" {
		t.Errorf("empty component stored: %q", got)
	}
	if got := RunIDFromContext(nil); got != "" { //nolint:staticcheck // testing nil context handling
		t.Errorf("expected empty run id for nil context, got %q", got)
	}
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	logger.Error("dropped")
	logger.With("k", "v").InfoContext(context.Background(), "dropped")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"invalid", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("CORENET_LOG_LEVEL", "debug")
	t.Setenv("CORENET_LOG_FORMAT", "text")

	cfg := ConfigFromEnv()
	if cfg.Level != "debug" || cfg.Format != "text" {
		t.Errorf("ConfigFromEnv() = %+v", cfg)
	}
}
