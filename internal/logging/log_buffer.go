package logging

import (
	"sync"

	"inkwell/internal/buffer"
)

type LogBuffer struct {
	mu      sync.Mutex
	entries *buffer.Ring[LogEntry]
}

func NewLogBuffer(size int) *LogBuffer {
	return &LogBuffer{
		entries: buffer.NewRing[LogEntry](size),
	}
}

func (b *LogBuffer) Add(entry LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.entries == nil {
		return
	}

	b.entries.Add(entry)
}

func (b *LogBuffer) List() []LogEntry {
	return b.Recent(0, "")
}

// Recent returns up to limit of the newest entries at or above minLevel.
// An empty minLevel keeps every level.
func (b *LogBuffer) Recent(limit int, minLevel Level) []LogEntry {
	b.mu.Lock()
	all := b.entries.List()
	b.mu.Unlock()

	if minLevel == "" && limit <= 0 {
		return all
	}
	filtered := make([]LogEntry, 0, len(all))
	for _, entry := range all {
		if minLevel != "" && !LevelAtLeast(entry.Level, minLevel) {
			continue
		}
		filtered = append(filtered, entry)
	}
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}
	return filtered
}
