package event

import (
	"context"
	"fmt"
	"os"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"inkwell/internal/buffer"
	"inkwell/internal/logging"
	"inkwell/internal/metrics"
)

const defaultSubscriberBufferSize = 64
const defaultDropWarningThreshold = 0.01
const defaultDropWarningInterval = 30 * time.Second

type BusOptions struct {
	Name                 string
	SubscriberBufferSize int
	MaxSubscribers       int
	DropWarningThreshold float64
	DropWarningInterval  time.Duration
	HistorySize          int
	Registry             *metrics.Registry
	Logger               *logging.Logger
}

// Bus fans events out to subscribers without ever blocking the publisher.
// A subscriber whose buffer is full misses the event and the drop is counted.
type Bus[T any] struct {
	mu          sync.Mutex
	subscribers map[uint64]subscription[T]
	nextSubID   uint64
	closed      bool
	closeOnce   sync.Once
	options     BusOptions
	registry    *metrics.Registry
	logger      *logging.Logger
	published   atomic.Int64
	dropped     atomic.Int64
	lastWarning atomic.Int64
	history     *buffer.Ring[T]
}

type typedEvent interface {
	Type() string
}

// Stats summarises delivery for a bus.
type Stats struct {
	Name        string `json:"name"`
	Published   int64  `json:"published"`
	Dropped     int64  `json:"dropped"`
	Subscribers int    `json:"subscribers"`
}

func NewBus[T any](ctx context.Context, opts BusOptions) *Bus[T] {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.SubscriberBufferSize <= 0 {
		opts.SubscriberBufferSize = defaultSubscriberBufferSize
	}
	if opts.DropWarningThreshold <= 0 {
		opts.DropWarningThreshold = defaultDropWarningThreshold
	}
	if opts.DropWarningInterval <= 0 {
		opts.DropWarningInterval = defaultDropWarningInterval
	}
	bus := &Bus[T]{
		subscribers: make(map[uint64]subscription[T]),
		options:     opts,
		registry:    opts.Registry,
		logger:      opts.Logger,
	}
	if opts.HistorySize > 0 {
		bus.history = buffer.NewRing[T](opts.HistorySize)
	}
	if bus.registry == nil {
		bus.registry = metrics.Default
	}
	if done := ctx.Done(); done != nil {
		go func() {
			<-done
			bus.Close()
		}()
	}
	return bus
}

func (b *Bus[T]) Subscribe() (<-chan T, func()) {
	return b.SubscribeFiltered(nil)
}

func (b *Bus[T]) SubscribeFiltered(filter func(T) bool) (<-chan T, func()) {
	if b == nil {
		ch := make(chan T)
		close(ch)
		return ch, func() {}
	}

	ch := make(chan T, b.options.SubscriberBufferSize)
	id := atomic.AddUint64(&b.nextSubID, 1)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	if b.options.MaxSubscribers > 0 && len(b.subscribers) >= b.options.MaxSubscribers {
		b.mu.Unlock()
		close(ch)
		b.warn("subscriber limit reached", map[string]string{
			"limit": fmt.Sprintf("%d", b.options.MaxSubscribers),
		})
		return ch, func() {}
	}
	b.subscribers[id] = subscription[T]{id: id, ch: ch, filter: filter}
	filtered, unfiltered := b.countSubscribersLocked()
	b.mu.Unlock()

	b.setSubscriberCounts(filtered, unfiltered)

	cancel := func() {
		b.removeSubscriber(id)
	}

	return ch, cancel
}

func (b *Bus[T]) SubscribeTypes(eventTypes ...string) (<-chan T, func()) {
	typeSet := make(map[string]struct{}, len(eventTypes))
	for _, eventType := range eventTypes {
		if eventType == "" {
			continue
		}
		typeSet[eventType] = struct{}{}
	}
	if len(typeSet) == 0 {
		ch := make(chan T)
		close(ch)
		return ch, func() {}
	}

	filter := func(event T) bool {
		typed, ok := any(event).(typedEvent)
		if !ok {
			return false
		}
		_, matched := typeSet[typed.Type()]
		return matched
	}

	return b.SubscribeFiltered(filter)
}

func (b *Bus[T]) Publish(event T) {
	if b == nil {
		return
	}
	if isNil(event) {
		return
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	if b.history != nil {
		b.history.Add(event)
	}
	subscribers := make([]subscription[T], 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		subscribers = append(subscribers, sub)
	}
	b.mu.Unlock()

	eventType := b.eventType(event)
	b.incPublished(eventType)
	if debugEventsEnabled {
		b.debug("event published", map[string]string{"type": eventType})
	}

	for _, sub := range subscribers {
		if !b.filterAllows(sub, event) {
			continue
		}
		b.sendToSubscriber(sub, event, eventType)
	}
}

func (b *Bus[T]) Close() {
	if b == nil {
		return
	}
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		subscribers := b.subscribers
		b.subscribers = make(map[uint64]subscription[T])
		b.mu.Unlock()

		for _, sub := range subscribers {
			close(sub.ch)
		}
		b.setSubscriberCounts(0, 0)
	})
}

// History returns up to count of the most recent events, oldest first.
func (b *Bus[T]) History(count int) []T {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.history == nil {
		return nil
	}
	return b.history.Last(count)
}

func (b *Bus[T]) Stats() Stats {
	if b == nil {
		return Stats{}
	}
	return Stats{
		Name:        b.busName(),
		Published:   b.published.Load(),
		Dropped:     b.dropped.Load(),
		Subscribers: b.SubscriberCount(),
	}
}

type subscription[T any] struct {
	id     uint64
	ch     chan T
	filter func(T) bool
}

func (b *Bus[T]) sendToSubscriber(sub subscription[T], event T, eventType string) {
	delivered := b.safeSend(sub, func() bool {
		select {
		case sub.ch <- event:
			return true
		default:
			return false
		}
	})
	if !delivered {
		b.incDropped(eventType)
	}
}

// safeSend guards against a subscriber cancelling between snapshot and send.
func (b *Bus[T]) safeSend(sub subscription[T], send func() bool) (delivered bool) {
	defer func() {
		if recover() != nil {
			b.removeSubscriber(sub.id)
			delivered = false
		}
	}()
	return send()
}

func (b *Bus[T]) removeSubscriber(id uint64) {
	if b == nil {
		return
	}
	var ch chan T
	var filtered int
	var unfiltered int
	removed := false
	b.mu.Lock()
	if existing, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		ch = existing.ch
		removed = true
	}
	if removed {
		filtered, unfiltered = b.countSubscribersLocked()
	}
	b.mu.Unlock()

	if removed && ch != nil {
		close(ch)
	}
	if removed {
		b.setSubscriberCounts(filtered, unfiltered)
	}
}

func (b *Bus[T]) filterAllows(sub subscription[T], event T) (allowed bool) {
	if sub.filter == nil {
		return true
	}
	defer func() {
		if recover() != nil {
			b.warn("subscriber filter panicked", nil)
			b.removeSubscriber(sub.id)
			allowed = false
		}
	}()
	return sub.filter(event)
}

func (b *Bus[T]) countSubscribersLocked() (filtered int, unfiltered int) {
	for _, sub := range b.subscribers {
		if sub.filter == nil {
			unfiltered++
		} else {
			filtered++
		}
	}
	return filtered, unfiltered
}

func (b *Bus[T]) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

func (b *Bus[T]) busName() string {
	if b.options.Name == "" {
		return "event_bus"
	}
	return b.options.Name
}

func (b *Bus[T]) eventType(event T) string {
	typed, ok := any(event).(typedEvent)
	if !ok {
		return "unknown"
	}
	value := typed.Type()
	if value == "" {
		return "unknown"
	}
	return value
}

func (b *Bus[T]) incPublished(eventType string) {
	b.published.Add(1)
	b.registry.IncEventPublished(b.busName(), eventType)
}

func (b *Bus[T]) incDropped(eventType string) {
	b.dropped.Add(1)
	b.registry.IncEventDropped(b.busName(), eventType)
	b.maybeWarnDropRate()
}

func (b *Bus[T]) setSubscriberCounts(filtered, unfiltered int) {
	b.registry.SetEventSubscriberCounts(b.busName(), filtered, unfiltered)
}

func (b *Bus[T]) maybeWarnDropRate() {
	threshold := b.options.DropWarningThreshold
	if threshold <= 0 {
		return
	}
	published := b.published.Load()
	if published == 0 {
		return
	}
	dropped := b.dropped.Load()
	if dropped == 0 {
		return
	}
	rate := float64(dropped) / float64(published)
	if rate < threshold {
		return
	}
	now := time.Now()
	lastNanos := b.lastWarning.Load()
	if lastNanos > 0 {
		last := time.Unix(0, lastNanos)
		if now.Sub(last) < b.options.DropWarningInterval {
			return
		}
	}
	if !b.lastWarning.CompareAndSwap(lastNanos, now.UnixNano()) {
		return
	}
	b.warn("event drop rate exceeded", map[string]string{
		"rate":      fmt.Sprintf("%.2f%%", rate*100),
		"dropped":   fmt.Sprintf("%d", dropped),
		"published": fmt.Sprintf("%d", published),
	})
}

func (b *Bus[T]) warn(message string, fields map[string]string) {
	if b.logger == nil {
		return
	}
	b.logger.Warn(message, b.fields(fields))
}

func (b *Bus[T]) debug(message string, fields map[string]string) {
	if b.logger == nil {
		return
	}
	b.logger.Debug(message, b.fields(fields))
}

func (b *Bus[T]) fields(extra map[string]string) map[string]string {
	fields := map[string]string{
		logging.FieldCategory: "event",
		"bus":                 b.busName(),
	}
	for key, value := range extra {
		fields[key] = value
	}
	return fields
}

var debugEventsEnabled = isEventDebugEnabled()

func isEventDebugEnabled() bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv("INKWELL_EVENT_DEBUG")))
	switch value {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func isNil[T any](value T) bool {
	kind := reflect.ValueOf(value)
	if !kind.IsValid() {
		return true
	}
	switch kind.Kind() {
	case reflect.Chan, reflect.Func, reflect.Map, reflect.Pointer, reflect.Interface, reflect.Slice:
		return kind.IsNil()
	default:
		return false
	}
}
