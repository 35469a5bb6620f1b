package changefeed

// Broker delivers row-level change events to subscribers. Delivery is
// at-least-once and in publish order per channel; handlers must tolerate
// duplicates.
type Broker interface {
	// Publish sends payload to the channel's subscribers
	Publish(payload []byte, channel string) error
	// Subscribe registers a handler for every channel matching pattern.
	// Patterns may end with '*' for prefix matching.
	Subscribe(pattern string, h Handler) error
	// Unsubscribe removes the handlers for the given patterns
	Unsubscribe(patterns ...string) error
	// Close closes subscriptions
	Close() error
}

// Handler is a callback that processes events delivered to subscribers.
type Handler func(ev *Event)

// Event is one delivered change record
type Event struct {
	Channel string
	Payload []byte
}
