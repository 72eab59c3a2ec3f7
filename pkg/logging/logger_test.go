package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		name   string
		level  string
		enable slog.Level
	}{
		{"debug level", "debug", slog.LevelDebug},
		{"warn level", "warn", slog.LevelWarn},
		{"warning alias", "WARNING", slog.LevelWarn},
		{"default info", "", slog.LevelInfo},
	}

	ctx := context.Background()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := New(tt.level)
			if !logger.Enabled(ctx, tt.enable) {
				t.Fatalf("expected level %s to be enabled", tt.enable)
			}
		})
	}
}

func TestDefaultLogger(t *testing.T) {
	logger := Default()
	ctx := context.Background()
	if !logger.Enabled(ctx, slog.LevelInfo) {
		t.Error("Default() should enable info level")
	}
	if logger.Enabled(ctx, slog.LevelDebug) {
		t.Error("Default() should not enable debug level")
	}
	if logger == Default() {
		t.Error("Default() returned the same instance twice")
	}
}

func TestWithOrgTagsRecords(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter("info", &buf).WithOrg("org-42")
	logger.Info("appointment booked", "appointment_id", "a-1")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if record["org_id"] != "org-42" {
		t.Fatalf("expected org_id attribute, got %v", record["org_id"])
	}
	if record["msg"] != "appointment booked" {
		t.Fatalf("unexpected msg %v", record["msg"])
	}
}

func TestWithOrgNilReceiver(t *testing.T) {
	var logger *Logger
	if logger.WithOrg("org-1") == nil {
		t.Fatal("expected a usable logger from nil receiver")
	}
}
