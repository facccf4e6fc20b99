package metrics

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type Registry struct {
	watcherEvents        atomic.Int64
	watcherNotifications atomic.Int64
	watcherCoalesced     atomic.Int64
	watcherErrors        atomic.Int64
	watcherRearms        atomic.Int64
	watchedDirs          atomic.Int64

	operations  sync.Map
	eventCounts sync.Map
	subscribers sync.Map
}

type operationStats struct {
	count         atomic.Int64
	failures      atomic.Int64
	durationNanos atomic.Int64
}

type eventKey struct {
	bus       string
	eventType string
}

type eventStats struct {
	published atomic.Int64
	dropped   atomic.Int64
}

type subscriberStats struct {
	filtered   atomic.Int64
	unfiltered atomic.Int64
}

var Default = &Registry{}

// RecordOperation tracks one workspace operation and whether it failed.
func (r *Registry) RecordOperation(name string, duration time.Duration, err error) {
	if r == nil {
		return
	}
	if strings.TrimSpace(name) == "" {
		name = "unknown"
	}
	stats := r.operationStats(name)
	stats.count.Add(1)
	stats.durationNanos.Add(duration.Nanoseconds())
	if err != nil {
		stats.failures.Add(1)
	}
}

func (r *Registry) IncWatcherEvent() {
	if r == nil {
		return
	}
	r.watcherEvents.Add(1)
}

func (r *Registry) IncWatcherNotification() {
	if r == nil {
		return
	}
	r.watcherNotifications.Add(1)
}

func (r *Registry) AddWatcherCoalesced(count int64) {
	if r == nil || count <= 0 {
		return
	}
	r.watcherCoalesced.Add(count)
}

func (r *Registry) IncWatcherError() {
	if r == nil {
		return
	}
	r.watcherErrors.Add(1)
}

func (r *Registry) IncWatcherRearm() {
	if r == nil {
		return
	}
	r.watcherRearms.Add(1)
}

func (r *Registry) SetWatchedDirs(count int) {
	if r == nil {
		return
	}
	r.watchedDirs.Store(int64(count))
}

func (r *Registry) IncEventPublished(bus, eventType string) {
	if r == nil {
		return
	}
	r.eventStats(bus, eventType).published.Add(1)
}

func (r *Registry) IncEventDropped(bus, eventType string) {
	if r == nil {
		return
	}
	r.eventStats(bus, eventType).dropped.Add(1)
}

func (r *Registry) SetEventSubscriberCounts(bus string, filtered, unfiltered int) {
	if r == nil {
		return
	}
	value, _ := r.subscribers.LoadOrStore(bus, &subscriberStats{})
	stats := value.(*subscriberStats)
	stats.filtered.Store(int64(filtered))
	stats.unfiltered.Store(int64(unfiltered))
}

// Snapshot is a point-in-time view used by the status endpoint.
type Snapshot struct {
	WatcherEvents        int64            `json:"watcher_events"`
	WatcherNotifications int64            `json:"watcher_notifications"`
	WatcherCoalesced     int64            `json:"watcher_coalesced"`
	WatcherErrors        int64            `json:"watcher_errors"`
	WatcherRearms        int64            `json:"watcher_rearms"`
	WatchedDirs          int64            `json:"watched_dirs"`
	Operations           map[string]int64 `json:"operations"`
	OperationFailures    map[string]int64 `json:"operation_failures"`
}

func (r *Registry) Snapshot() Snapshot {
	snapshot := Snapshot{
		Operations:        map[string]int64{},
		OperationFailures: map[string]int64{},
	}
	if r == nil {
		return snapshot
	}
	snapshot.WatcherEvents = r.watcherEvents.Load()
	snapshot.WatcherNotifications = r.watcherNotifications.Load()
	snapshot.WatcherCoalesced = r.watcherCoalesced.Load()
	snapshot.WatcherErrors = r.watcherErrors.Load()
	snapshot.WatcherRearms = r.watcherRearms.Load()
	snapshot.WatchedDirs = r.watchedDirs.Load()
	for _, name := range r.operationNames() {
		stats := r.operationStats(name)
		snapshot.Operations[name] = stats.count.Load()
		snapshot.OperationFailures[name] = stats.failures.Load()
	}
	return snapshot
}

func (r *Registry) WritePrometheus(writer io.Writer) error {
	if r == nil {
		return nil
	}

	writeCounter(writer, "inkwell_watcher_events_total", "Structural filesystem events accepted by the watcher", r.watcherEvents.Load())
	writeCounter(writer, "inkwell_watcher_notifications_total", "Change notifications emitted by the watcher", r.watcherNotifications.Load())
	writeCounter(writer, "inkwell_watcher_coalesced_total", "Watcher events folded into an earlier notification", r.watcherCoalesced.Load())
	writeCounter(writer, "inkwell_watcher_errors_total", "Errors reported by the filesystem watcher", r.watcherErrors.Load())
	writeCounter(writer, "inkwell_watcher_rearms_total", "Watcher rearms after a root switch", r.watcherRearms.Load())
	writeGauge(writer, "inkwell_watcher_directories", "Directories currently watched", r.watchedDirs.Load())

	operationNames := r.operationNames()
	sort.Strings(operationNames)

	writeHelp(writer, "inkwell_operation_duration_seconds", "Workspace operation duration in seconds")
	fmt.Fprintln(writer, "# TYPE inkwell_operation_duration_seconds summary")
	writeHelp(writer, "inkwell_operation_failures_total", "Workspace operation failures")
	fmt.Fprintln(writer, "# TYPE inkwell_operation_failures_total counter")

	for _, name := range operationNames {
		stats := r.operationStats(name)
		label := formatLabel(name)
		durationSeconds := float64(stats.durationNanos.Load()) / float64(time.Second)
		fmt.Fprintf(writer, "inkwell_operation_duration_seconds_sum{operation=%s} %.6f\n", label, durationSeconds)
		fmt.Fprintf(writer, "inkwell_operation_duration_seconds_count{operation=%s} %d\n", label, stats.count.Load())
		fmt.Fprintf(writer, "inkwell_operation_failures_total{operation=%s} %d\n", label, stats.failures.Load())
	}

	keys := r.eventKeys()
	writeHelp(writer, "inkwell_events_published_total", "Events published on a bus")
	fmt.Fprintln(writer, "# TYPE inkwell_events_published_total counter")
	writeHelp(writer, "inkwell_events_dropped_total", "Events dropped for slow subscribers")
	fmt.Fprintln(writer, "# TYPE inkwell_events_dropped_total counter")
	for _, key := range keys {
		value, _ := r.eventCounts.Load(key)
		stats := value.(*eventStats)
		labels := fmt.Sprintf("bus=%s,type=%s", formatLabel(key.bus), formatLabel(key.eventType))
		fmt.Fprintf(writer, "inkwell_events_published_total{%s} %d\n", labels, stats.published.Load())
		fmt.Fprintf(writer, "inkwell_events_dropped_total{%s} %d\n", labels, stats.dropped.Load())
	}

	buses := r.subscriberBuses()
	writeHelp(writer, "inkwell_event_subscribers", "Live subscribers per bus")
	fmt.Fprintln(writer, "# TYPE inkwell_event_subscribers gauge")
	for _, bus := range buses {
		value, _ := r.subscribers.Load(bus)
		stats := value.(*subscriberStats)
		label := formatLabel(bus)
		fmt.Fprintf(writer, "inkwell_event_subscribers{bus=%s,filtered=\"true\"} %d\n", label, stats.filtered.Load())
		fmt.Fprintf(writer, "inkwell_event_subscribers{bus=%s,filtered=\"false\"} %d\n", label, stats.unfiltered.Load())
	}

	return nil
}

func (r *Registry) operationStats(name string) *operationStats {
	value, _ := r.operations.LoadOrStore(name, &operationStats{})
	return value.(*operationStats)
}

func (r *Registry) eventStats(bus, eventType string) *eventStats {
	if strings.TrimSpace(eventType) == "" {
		eventType = "unknown"
	}
	value, _ := r.eventCounts.LoadOrStore(eventKey{bus: bus, eventType: eventType}, &eventStats{})
	return value.(*eventStats)
}

func (r *Registry) operationNames() []string {
	if r == nil {
		return nil
	}
	var names []string
	r.operations.Range(func(key, value interface{}) bool {
		if name, ok := key.(string); ok {
			names = append(names, name)
		}
		return true
	})
	return names
}

func (r *Registry) eventKeys() []eventKey {
	var keys []eventKey
	r.eventCounts.Range(func(key, value interface{}) bool {
		if typed, ok := key.(eventKey); ok {
			keys = append(keys, typed)
		}
		return true
	})
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].bus != keys[j].bus {
			return keys[i].bus < keys[j].bus
		}
		return keys[i].eventType < keys[j].eventType
	})
	return keys
}

func (r *Registry) subscriberBuses() []string {
	var buses []string
	r.subscribers.Range(func(key, value interface{}) bool {
		if name, ok := key.(string); ok {
			buses = append(buses, name)
		}
		return true
	})
	sort.Strings(buses)
	return buses
}

func writeHelp(writer io.Writer, metric, help string) {
	fmt.Fprintf(writer, "# HELP %s %s\n", metric, help)
}

func writeCounter(writer io.Writer, metric, help string, value int64) {
	writeHelp(writer, metric, help)
	fmt.Fprintf(writer, "# TYPE %s counter\n", metric)
	fmt.Fprintf(writer, "%s %d\n", metric, value)
}

func writeGauge(writer io.Writer, metric, help string, value int64) {
	writeHelp(writer, metric, help)
	fmt.Fprintf(writer, "# TYPE %s gauge\n", metric)
	fmt.Fprintf(writer, "%s %d\n", metric, value)
}

func formatLabel(value string) string {
	escaped := strings.ReplaceAll(value, "\\", "\\\\")
	escaped = strings.ReplaceAll(escaped, "\"", "\\\"")
	return fmt.Sprintf("\"%s\"", escaped)
}
