package event

import "time"

// Event represents a typed event with an occurrence timestamp.
type Event interface {
	Type() string
	Timestamp() time.Time
}

// Publisher is the send side of a bus. Both Bus and MockBus satisfy it.
type Publisher[T any] interface {
	Publish(event T)
}

// TypedSubscriber receives only events whose Type matches one of eventTypes.
type TypedSubscriber[T any] interface {
	SubscribeTypes(eventTypes ...string) (<-chan T, func())
}
