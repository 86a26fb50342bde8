package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestBuild_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := build(Options{Level: "info"}, &buf)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	logger.Debug("hidden")
	logger.Info("prediction served", zap.String("app", "ev-range"))
	logger.Sync()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["msg"] != "prediction served" || entry["app"] != "ev-range" {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestBuild_Invalid(t *testing.T) {
	if _, err := build(Options{Level: "loud"}, &bytes.Buffer{}); err == nil {
		t.Error("expected error for bad level")
	}
	if _, err := build(Options{Format: "xml"}, &bytes.Buffer{}); err == nil {
		t.Error("expected error for bad format")
	}
}

func TestBuild_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "service.log")
	logger, err := build(Options{Format: "console", File: path}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	logger.Warn("model unavailable")
	logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "model unavailable") {
		t.Errorf("log file missing entry: %q", data)
	}
}

func TestFor(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	For(context.Background(), base).Info("no id")
	For(WithRequestID(context.Background(), "req-1"), base).Info("with id")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if _, ok := entries[0].ContextMap()["request_id"]; ok {
		t.Error("unexpected request_id without one in context")
	}
	if got := entries[1].ContextMap()["request_id"]; got != "req-1" {
		t.Errorf("request_id = %v, want req-1", got)
	}
}
