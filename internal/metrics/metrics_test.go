package metrics

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRegistryRecordsOperations(t *testing.T) {
	registry := &Registry{}
	registry.RecordOperation("create_file", 2*time.Millisecond, nil)
	registry.RecordOperation("create_file", time.Millisecond, errors.New("boom"))
	registry.RecordOperation("", time.Millisecond, nil)

	snapshot := registry.Snapshot()
	if snapshot.Operations["create_file"] != 2 {
		t.Fatalf("expected 2 create_file operations, got %d", snapshot.Operations["create_file"])
	}
	if snapshot.OperationFailures["create_file"] != 1 {
		t.Fatalf("expected 1 create_file failure, got %d", snapshot.OperationFailures["create_file"])
	}
	if snapshot.Operations["unknown"] != 1 {
		t.Fatalf("expected blank name to be recorded as unknown, got %v", snapshot.Operations)
	}

	var output bytes.Buffer
	if err := registry.WritePrometheus(&output); err != nil {
		t.Fatalf("write metrics: %v", err)
	}
	body := output.String()
	if !strings.Contains(body, "inkwell_operation_duration_seconds_count{operation=\"create_file\"} 2") {
		t.Fatalf("expected operation count, got %q", body)
	}
	if !strings.Contains(body, "inkwell_operation_failures_total{operation=\"create_file\"} 1") {
		t.Fatalf("expected operation failures, got %q", body)
	}
}

func TestRegistryWatcherCounters(t *testing.T) {
	registry := &Registry{}
	registry.IncWatcherEvent()
	registry.IncWatcherEvent()
	registry.IncWatcherNotification()
	registry.AddWatcherCoalesced(3)
	registry.AddWatcherCoalesced(0)
	registry.IncWatcherError()
	registry.IncWatcherRearm()
	registry.SetWatchedDirs(4)

	snapshot := registry.Snapshot()
	if snapshot.WatcherEvents != 2 || snapshot.WatcherNotifications != 1 {
		t.Fatalf("unexpected watcher counters: %+v", snapshot)
	}
	if snapshot.WatcherCoalesced != 3 || snapshot.WatcherErrors != 1 || snapshot.WatcherRearms != 1 {
		t.Fatalf("unexpected watcher counters: %+v", snapshot)
	}

	var output bytes.Buffer
	if err := registry.WritePrometheus(&output); err != nil {
		t.Fatalf("write metrics: %v", err)
	}
	if !strings.Contains(output.String(), "inkwell_watcher_directories 4") {
		t.Fatalf("expected watched directories gauge, got %q", output.String())
	}
}

func TestRegistryEscapesLabels(t *testing.T) {
	registry := &Registry{}
	registry.IncEventPublished(`we"ird`, `a\b`)

	var output bytes.Buffer
	if err := registry.WritePrometheus(&output); err != nil {
		t.Fatalf("write metrics: %v", err)
	}
	want := `inkwell_events_published_total{bus="we\"ird",type="a\\b"} 1`
	if !strings.Contains(output.String(), want) {
		t.Fatalf("expected %q in %q", want, output.String())
	}
}

func TestNilRegistryIsSafe(t *testing.T) {
	var registry *Registry
	registry.RecordOperation("x", 0, nil)
	registry.IncWatcherEvent()
	registry.IncEventDropped("bus", "type")
	if err := registry.WritePrometheus(&bytes.Buffer{}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if snapshot := registry.Snapshot(); len(snapshot.Operations) != 0 {
		t.Fatalf("expected empty snapshot, got %+v", snapshot)
	}
}
