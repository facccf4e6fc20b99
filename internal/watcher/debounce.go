package watcher

import (
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"inkwell/internal/fsutil"
)

const structuralOps = fsnotify.Create | fsnotify.Remove | fsnotify.Rename | fsnotify.Chmod

// isStructural drops pure in-place writes; everything that changes the tree
// or its metadata counts.
func isStructural(op fsnotify.Op) bool {
	return op&structuralOps != 0
}

// observe classifies one event and keeps directory watches in step with the
// tree. It reports whether the event should lead to a notification.
func (watcher *Watcher) observe(event fsnotify.Event) bool {
	if !isStructural(event.Op) {
		return false
	}
	if fsutil.HasHiddenComponent(watcher.dir, event.Name) {
		return false
	}
	atomic.AddUint64(&watcher.eventsAccepted, 1)
	watcher.registry.IncWatcherEvent()

	switch {
	case event.Has(fsnotify.Create):
		watcher.watchCreated(event.Name)
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		watcher.forget(event.Name)
	}
	return true
}

// drain empties the queue with non-blocking receives. With a settle window it
// keeps absorbing until the queue has stayed empty for that long. It returns
// false if the watcher was closed meanwhile.
func (watcher *Watcher) drain() bool {
	var timer *time.Timer
	if watcher.options.Settle > 0 {
		timer = time.NewTimer(watcher.options.Settle)
		defer timer.Stop()
	}

	absorb := func(event fsnotify.Event) {
		if watcher.observe(event) {
			watcher.addCoalesced(1)
		}
		if timer != nil {
			timer.Reset(watcher.options.Settle)
		}
	}

	for {
		select {
		case <-watcher.done:
			return false
		case event := <-watcher.queue:
			absorb(event)
			continue
		case err := <-watcher.errors:
			watcher.handleError(err)
			continue
		default:
		}

		if timer == nil {
			return true
		}
		select {
		case <-watcher.done:
			return false
		case event := <-watcher.queue:
			absorb(event)
		case err := <-watcher.errors:
			watcher.handleError(err)
		case <-timer.C:
			return true
		}
	}
}
