package watcher

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"inkwell/internal/logging"
	"inkwell/internal/metrics"
)

// DefaultSettle is long enough to fold the events of one save or a scripted
// burst of writes into a single notification.
const DefaultSettle = 75 * time.Millisecond

// NoSettle disables the settle window.
const NoSettle time.Duration = -1

const (
	defaultQueueSize  = 256
	defaultMaxWatches = 8192
	errorQueueSize    = 16
)

var ErrMaxWatchesExceeded = errors.New("max watches exceeded")

// Arm starts watching root and calls onChange once per burst of structural
// changes. A root that does not exist yet is not an error: Arm returns a nil
// Watcher and the caller stays unarmed.
func Arm(root string, options Options, onChange func()) (*Watcher, error) {
	info, err := os.Stat(root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch root %q is not a directory", root)
	}

	dir, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, err
	}

	source, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	watcher := newWatcher(root, options, onChange)
	watcher.watcher = source
	watcher.dir = dir

	if err := source.Add(dir); err != nil {
		_ = source.Close()
		return nil, err
	}
	watcher.watched[dir] = struct{}{}
	watcher.addRecursiveWatches(dir)
	watcher.registry.SetWatchedDirs(watcher.watchedCount())

	watcher.startForwarder(source)
	watcher.start()
	watcher.logInfo("watcher armed", map[string]string{
		"root":         root,
		"watched_dirs": strconv.Itoa(watcher.watchedCount()),
	})
	return watcher, nil
}

func newWatcher(root string, options Options, onChange func()) *Watcher {
	logger := options.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	registry := options.Registry
	if registry == nil {
		registry = metrics.Default
	}
	queueSize := options.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	switch {
	case options.Settle == 0:
		options.Settle = DefaultSettle
	case options.Settle < 0:
		options.Settle = 0
	}
	if options.MaxWatches <= 0 {
		options.MaxWatches = defaultMaxWatches
	}
	if onChange == nil {
		onChange = func() {}
	}
	return &Watcher{
		root:     root,
		dir:      root,
		onChange: onChange,
		options:  options,
		logger:   logger,
		registry: registry,
		watched:  make(map[string]struct{}),
		queue:    make(chan fsnotify.Event, queueSize),
		errors:   make(chan error, errorQueueSize),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

func (watcher *Watcher) start() {
	go watcher.run()
}

// Root returns the directory this watcher was armed on.
func (watcher *Watcher) Root() string {
	if watcher == nil {
		return ""
	}
	return watcher.root
}

// Close releases the registration and waits for the listener to exit, so no
// onChange call starts after Close returns. It must not be called from
// inside onChange.
func (watcher *Watcher) Close() error {
	if watcher == nil {
		return nil
	}

	watcher.mutex.Lock()
	if watcher.closed {
		watcher.mutex.Unlock()
		return nil
	}
	watcher.closed = true
	watcher.mutex.Unlock()

	close(watcher.done)
	var err error
	if watcher.watcher != nil {
		err = watcher.watcher.Close()
	}
	<-watcher.stopped
	watcher.registry.SetWatchedDirs(0)
	watcher.logDebug("watcher closed", map[string]string{"root": watcher.root})
	return err
}

func (watcher *Watcher) run() {
	defer close(watcher.stopped)
	for {
		select {
		case <-watcher.done:
			return
		case err := <-watcher.errors:
			watcher.handleError(err)
		case event := <-watcher.queue:
			if !watcher.observe(event) {
				continue
			}
			if !watcher.drain() {
				return
			}
			watcher.notify()
		}
	}
}

// startForwarder moves native events into the queue. It never blocks on a
// full queue: a queued event already guarantees a notification.
func (watcher *Watcher) startForwarder(source *fsnotify.Watcher) {
	if source == nil {
		return
	}

	go func() {
		for {
			select {
			case event, ok := <-source.Events:
				if !ok {
					return
				}
				atomic.AddUint64(&watcher.eventsReceived, 1)
				select {
				case watcher.queue <- event:
				default:
					watcher.addCoalesced(1)
				}
			case err, ok := <-source.Errors:
				if !ok {
					return
				}
				select {
				case watcher.errors <- err:
				default:
					atomic.AddUint64(&watcher.errorCount, 1)
					watcher.registry.IncWatcherError()
				}
			case <-watcher.done:
				return
			}
		}
	}()
}

func (watcher *Watcher) notify() {
	select {
	case <-watcher.done:
		return
	default:
	}
	atomic.AddUint64(&watcher.notifications, 1)
	watcher.registry.IncWatcherNotification()
	watcher.onChange()
}

func (watcher *Watcher) handleError(err error) {
	if err == nil {
		return
	}
	atomic.AddUint64(&watcher.errorCount, 1)
	watcher.registry.IncWatcherError()
	fields := map[string]string{
		"root":  watcher.root,
		"error": err.Error(),
	}
	if errors.Is(err, fsnotify.ErrEventOverflow) {
		watcher.logWarn("watcher queue overflowed; changes may be missed until the next event", fields)
		return
	}
	watcher.logWarn("watcher error", fields)
}

func (watcher *Watcher) addCoalesced(count uint64) {
	atomic.AddUint64(&watcher.eventsCoalesced, count)
	watcher.registry.AddWatcherCoalesced(int64(count))
}

func (watcher *Watcher) logInfo(message string, fields map[string]string) {
	watcher.logger.Info(message, withWatcherFields(fields))
}

func (watcher *Watcher) logWarn(message string, fields map[string]string) {
	watcher.logger.Warn(message, withWatcherFields(fields))
}

func (watcher *Watcher) logDebug(message string, fields map[string]string) {
	watcher.logger.Debug(message, withWatcherFields(fields))
}

func withWatcherFields(fields map[string]string) map[string]string {
	merged := make(map[string]string, len(fields)+2)
	merged[logging.FieldCategory] = "watcher"
	merged[logging.FieldSource] = "backend"
	for key, value := range fields {
		merged[key] = value
	}
	return merged
}

// Metrics reports current watcher stats.
func (watcher *Watcher) Metrics() Metrics {
	if watcher == nil {
		return Metrics{}
	}
	return Metrics{
		Root:            watcher.root,
		WatchedDirs:     watcher.watchedCount(),
		EventsReceived:  atomic.LoadUint64(&watcher.eventsReceived),
		EventsAccepted:  atomic.LoadUint64(&watcher.eventsAccepted),
		EventsCoalesced: atomic.LoadUint64(&watcher.eventsCoalesced),
		Notifications:   atomic.LoadUint64(&watcher.notifications),
		Errors:          atomic.LoadUint64(&watcher.errorCount),
	}
}
