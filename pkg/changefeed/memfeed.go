package changefeed

import (
	"errors"
	"strings"
	"sync"
)

// memFeed is an in-process Broker for single-node deployments and
// tests. A single dispatcher goroutine delivers events in publish
// order, asynchronously from the publisher, matching the delivery
// semantics of the redis-backed feed.
type memFeed struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	queue    chan *Event
	done     chan struct{}
	closed   bool
}

// NewMemFeed returns an in-process Broker.
func NewMemFeed() Broker {
	mf := &memFeed{
		handlers: make(map[string]Handler),
		queue:    make(chan *Event, 256),
		done:     make(chan struct{}),
	}
	go mf.dispatch()
	return mf
}

func (mf *memFeed) dispatch() {
	for {
		select {
		case <-mf.done:
			return
		case ev := <-mf.queue:
			mf.mu.RLock()
			var matched []Handler
			for pattern, h := range mf.handlers {
				if patternMatch(pattern, ev.Channel) {
					matched = append(matched, h)
				}
			}
			mf.mu.RUnlock()
			for _, h := range matched {
				h(ev)
			}
		}
	}
}

func (mf *memFeed) Publish(payload []byte, channel string) error {
	mf.mu.RLock()
	closed := mf.closed
	mf.mu.RUnlock()
	if closed {
		return errors.New("feed closed")
	}
	mf.queue <- &Event{Channel: channel, Payload: payload}
	return nil
}

func (mf *memFeed) Subscribe(pattern string, h Handler) error {
	mf.mu.Lock()
	mf.handlers[pattern] = h
	mf.mu.Unlock()
	return nil
}

func (mf *memFeed) Unsubscribe(patterns ...string) error {
	mf.mu.Lock()
	for _, p := range patterns {
		delete(mf.handlers, p)
	}
	mf.mu.Unlock()
	return nil
}

// patternMatch supports the broker's single wildcard form: a trailing
// '*' matches any channel with that prefix, anything else is an exact
// channel name.
func patternMatch(pattern, channel string) bool {
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(channel, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == channel
}

func (mf *memFeed) Close() error {
	mf.mu.Lock()
	defer mf.mu.Unlock()
	if mf.closed {
		return nil
	}
	mf.closed = true
	close(mf.done)
	mf.handlers = make(map[string]Handler)
	return nil
}
