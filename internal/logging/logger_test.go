package logging

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"
)

func TestLoggerWritesToBuffer(t *testing.T) {
	buffer := NewLogBuffer(10)
	logger := NewLoggerWithOutput(buffer, LevelInfo, io.Discard)

	logger.Info("started", map[string]string{"root": "/notes"})

	entries := buffer.List()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Level != LevelInfo {
		t.Fatalf("expected info level, got %q", entry.Level)
	}
	if entry.Message != "started" {
		t.Fatalf("expected message started, got %q", entry.Message)
	}
	if entry.Context["root"] != "/notes" {
		t.Fatalf("expected context root=/notes, got %v", entry.Context)
	}
}

func TestLoggerFiltersByLevel(t *testing.T) {
	buffer := NewLogBuffer(10)
	logger := NewLoggerWithOutput(buffer, LevelWarning, io.Discard)

	logger.Info("info", nil)
	logger.Warn("warn", nil)

	entries := buffer.List()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Level != LevelWarning {
		t.Fatalf("expected warning level, got %q", entries[0].Level)
	}
}

func TestLoggerStreamDeliversAllEntries(t *testing.T) {
	logger := NewLoggerWithOutput(NewLogBuffer(50), LevelInfo, io.Discard)
	output, cancel := logger.Subscribe()
	defer cancel()

	const total = 200
	done := make(chan struct{})
	go func() {
		for i := 0; i < total; i++ {
			logger.Info("message", nil)
		}
		close(done)
	}()

	received := 0
	deadline := time.After(2 * time.Second)
	for received < total {
		select {
		case <-output:
			received++
		case <-deadline:
			t.Fatalf("timed out after receiving %d entries", received)
		}
	}

	<-done
}

func TestLoggerNamedAddsCategory(t *testing.T) {
	buffer := NewLogBuffer(10)
	logger := NewLoggerWithOutput(buffer, LevelDebug, io.Discard).Named("watcher")

	logger.Debug("armed", map[string]string{"root": "/notes"})

	entries := buffer.List()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Context[FieldCategory] != "watcher" {
		t.Fatalf("expected category watcher, got %v", entries[0].Context)
	}
	if entries[0].Context[FieldSource] != "backend" {
		t.Fatalf("expected source backend, got %v", entries[0].Context)
	}
	if entries[0].Context["root"] != "/notes" {
		t.Fatalf("expected call fields to survive, got %v", entries[0].Context)
	}
}

func TestLoggerTextOutputFormat(t *testing.T) {
	var out bytes.Buffer
	logger := NewLoggerWithOutput(nil, LevelInfo, &out)

	logger.Warn("watch failed", map[string]string{"root": "/a b", "error": "boom"})

	line := out.String()
	if !strings.Contains(line, `level=warning msg="watch failed" error="boom" root="/a b"`) {
		t.Fatalf("unexpected output line: %q", line)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		" INFO ":  LevelInfo,
		"warn":    LevelWarning,
		"warning": LevelWarning,
		"error":   LevelError,
	}
	for input, want := range cases {
		got, ok := ParseLevel(input)
		if !ok || got != want {
			t.Fatalf("ParseLevel(%q) = %q, %v; want %q", input, got, ok, want)
		}
	}
	if _, ok := ParseLevel("loud"); ok {
		t.Fatalf("expected unknown level to be rejected")
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	var logger *Logger
	logger.Info("ignored", nil)
	if logger.Enabled(LevelError) {
		t.Fatalf("expected nil logger to be disabled")
	}
	ch, cancel := logger.Subscribe()
	defer cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel from nil logger")
	}
}
