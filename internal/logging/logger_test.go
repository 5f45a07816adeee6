package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestInitDebugWritesJSONL(t *testing.T) {
	Shutdown()

	dir := t.TempDir()
	Init(Config{
		Debug:  true,
		LogDir: dir,
	})
	defer Shutdown()

	l := Logger()
	if l == nil {
		t.Fatal("expected non-nil logger after Init")
	}

	l.Info("test_message", "key", "value")

	data, err := os.ReadFile(filepath.Join(dir, "arcade.log"))
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("log file is empty")
	}

	record := firstRecord(t, data)
	if record["msg"] != "test_message" {
		t.Errorf("expected msg=test_message, got %v", record["msg"])
	}
	if record["key"] != "value" {
		t.Errorf("expected key=value, got %v", record["key"])
	}
}

func TestInitNonDebugDiscards(t *testing.T) {
	Shutdown()

	Init(Config{
		Debug: false,
	})
	defer Shutdown()

	l := Logger()
	if l == nil {
		t.Fatal("expected non-nil logger even in non-debug mode")
	}
	l.Info("this goes nowhere")
}

func TestForComponentTagsRecords(t *testing.T) {
	Shutdown()

	dir := t.TempDir()
	Init(Config{
		Debug:  true,
		LogDir: dir,
	})
	defer Shutdown()

	cl := ForComponent(CompMonitor)
	cl.Info("ready_transition", "from", "busy", "to", "ready")

	data, err := os.ReadFile(filepath.Join(dir, "arcade.log"))
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}

	record := firstRecord(t, data)
	if record["component"] != CompMonitor {
		t.Errorf("expected component=%s, got %v", CompMonitor, record["component"])
	}
}

func TestForComponentBeforeInit(t *testing.T) {
	Shutdown()

	// Package-level loggers are created before Init; they must pick up the
	// real handler once Init runs.
	early := ForComponent(CompTmux)

	dir := t.TempDir()
	Init(Config{
		Debug:  true,
		LogDir: dir,
	})
	defer Shutdown()

	early.Info("late_bound")

	data, err := os.ReadFile(filepath.Join(dir, "arcade.log"))
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !containsMsg(data, "late_bound") {
		t.Error("logger created before Init did not write after Init")
	}
}

func TestLevelFiltering(t *testing.T) {
	Shutdown()

	dir := t.TempDir()
	Init(Config{
		Debug:  true,
		LogDir: dir,
		Level:  "warn",
	})
	defer Shutdown()

	l := Logger()
	l.Info("should_be_filtered")
	l.Warn("should_appear")

	data, err := os.ReadFile(filepath.Join(dir, "arcade.log"))
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}

	if containsMsg(data, "should_be_filtered") {
		t.Error("info message should have been filtered at warn level")
	}
	if !containsMsg(data, "should_appear") {
		t.Error("warn message should have appeared")
	}
}

func TestRecentLogs(t *testing.T) {
	Shutdown()

	dir := t.TempDir()
	Init(Config{
		Debug:          true,
		LogDir:         dir,
		RingBufferSize: 2048,
	})
	defer Shutdown()

	Logger().Info("ring_test_message")

	if !bytes.Contains(RecentLogs(), []byte("ring_test_message")) {
		t.Error("ring buffer missing logged message")
	}
}

func firstRecord(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var record map[string]any
	for i, b := range data {
		if b == '\n' {
			if err := json.Unmarshal(data[:i], &record); err != nil {
				t.Fatalf("failed to parse JSONL: %v (data: %s)", err, string(data[:i]))
			}
			return record
		}
	}
	t.Fatal("no complete JSONL line found")
	return nil
}

// containsMsg checks if JSONL data contains a record with the given msg field.
func containsMsg(data []byte, msg string) bool {
	start := 0
	for i, b := range data {
		if b == '\n' {
			var record map[string]any
			if err := json.Unmarshal(data[start:i], &record); err == nil {
				if record["msg"] == msg {
					return true
				}
			}
			start = i + 1
		}
	}
	return false
}
