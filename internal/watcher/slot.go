package watcher

import (
	"errors"
	"sync"

	"inkwell/internal/metrics"
)

var ErrSlotClosed = errors.New("watcher slot closed")

// Slot owns at most one armed Watcher. Rearm always releases the previous
// watcher before arming the next, even when arming fails.
type Slot struct {
	mutex   sync.Mutex
	options Options
	current *Watcher
	closed  bool
}

func NewSlot(options Options) *Slot {
	if options.Registry == nil {
		options.Registry = metrics.Default
	}
	return &Slot{options: options}
}

// Rearm replaces the current watcher with one armed on root. onChange receives
// the root the reporting watcher was armed on, so callers can ignore reports
// for a root that is no longer active. A nil Watcher with a nil error means
// root does not exist yet and the slot is unarmed.
func (slot *Slot) Rearm(root string, onChange func(root string)) (*Watcher, error) {
	slot.mutex.Lock()
	defer slot.mutex.Unlock()

	_ = slot.releaseLocked()
	if slot.closed {
		return nil, ErrSlotClosed
	}

	slot.options.Registry.IncWatcherRearm()
	watcher, err := Arm(root, slot.options, func() {
		if onChange != nil {
			onChange(root)
		}
	})
	if err != nil {
		return nil, err
	}
	slot.current = watcher
	return watcher, nil
}

// Current returns the armed root, if any.
func (slot *Slot) Current() (string, bool) {
	slot.mutex.Lock()
	defer slot.mutex.Unlock()
	if slot.current == nil {
		return "", false
	}
	return slot.current.Root(), true
}

func (slot *Slot) Metrics() Metrics {
	slot.mutex.Lock()
	defer slot.mutex.Unlock()
	return slot.current.Metrics()
}

// Close releases the current watcher and refuses later rearms.
func (slot *Slot) Close() error {
	slot.mutex.Lock()
	defer slot.mutex.Unlock()
	slot.closed = true
	return slot.releaseLocked()
}

func (slot *Slot) releaseLocked() error {
	if slot.current == nil {
		return nil
	}
	err := slot.current.Close()
	slot.current = nil
	return err
}
