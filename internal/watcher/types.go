package watcher

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"inkwell/internal/logging"
	"inkwell/internal/metrics"
)

// Options controls watcher behavior.
type Options struct {
	Logger   *logging.Logger
	Registry *metrics.Registry
	// Settle keeps absorbing events until the queue has been quiet this long.
	// Zero selects DefaultSettle; NoSettle notifies as soon as the queue drains.
	Settle     time.Duration
	QueueSize  int
	MaxWatches int
}

// Metrics reports watcher counters since it was armed.
type Metrics struct {
	Root            string `json:"root"`
	WatchedDirs     int    `json:"watched_dirs"`
	EventsReceived  uint64 `json:"events_received"`
	EventsAccepted  uint64 `json:"events_accepted"`
	EventsCoalesced uint64 `json:"events_coalesced"`
	Notifications   uint64 `json:"notifications"`
	Errors          uint64 `json:"errors"`
}

// Watcher is one armed registration on a single root.
type Watcher struct {
	root     string
	// dir is root with symlinks resolved; native events are reported under it.
	dir      string
	watcher  *fsnotify.Watcher
	onChange func()
	options  Options
	logger   *logging.Logger
	registry *metrics.Registry

	mutex   sync.Mutex
	watched map[string]struct{}
	limited bool
	closed  bool

	queue   chan fsnotify.Event
	errors  chan error
	done    chan struct{}
	stopped chan struct{}

	eventsReceived  uint64
	eventsAccepted  uint64
	eventsCoalesced uint64
	notifications   uint64
	errorCount      uint64
}
