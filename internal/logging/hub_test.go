package logging

import (
	"testing"
	"time"
)

func TestLogHubBroadcast(t *testing.T) {
	hub := NewLogHub()
	ch, cancel := hub.Subscribe(1)
	defer cancel()

	entry := LogEntry{Message: "hello"}
	hub.Broadcast(entry)

	select {
	case got := <-ch:
		if got.Message != "hello" {
			t.Fatalf("expected message hello, got %q", got.Message)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("timed out waiting for log entry")
	}
}

func TestLogHubClose(t *testing.T) {
	hub := NewLogHub()
	ch, cancel := hub.Subscribe(1)
	cancel()
	hub.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("expected channel closed")
		}
	default:
	}
}

func TestLogHubSubscriberCount(t *testing.T) {
	hub := NewLogHub()
	_, cancelA := hub.Subscribe(1)
	_, cancelB := hub.Subscribe(1)
	if got := hub.SubscriberCount(); got != 2 {
		t.Fatalf("expected 2 subscribers, got %d", got)
	}
	cancelA()
	cancelB()
	if got := hub.SubscriberCount(); got != 0 {
		t.Fatalf("expected 0 subscribers, got %d", got)
	}
}
