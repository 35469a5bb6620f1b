package changefeed

import (
	"sync"

	"github.com/go-redis/redis/v7"
)

// redisFeed implements Broker on redis pub/sub, one pattern
// subscription per registered handler.
type redisFeed struct {
	client *redis.Client
	pubSub *redis.PubSub
	sync.RWMutex
	handlers map[string]Handler
}

// NewRedisFeed returns a Broker backed by redis pub/sub.
func NewRedisFeed(r *redis.Client) Broker {
	rf := &redisFeed{
		client:   r,
		pubSub:   r.Subscribe(),
		handlers: make(map[string]Handler),
	}
	go rf.serve()
	return rf
}

// serve delivers sequentially so subscribers observe events in
// publish order per channel.
func (rf *redisFeed) serve() {
	for msg := range rf.pubSub.Channel() {
		rf.RLock()
		handler, exists := rf.handlers[msg.Pattern]
		rf.RUnlock()
		if exists {
			handler(&Event{
				Channel: msg.Channel,
				Payload: []byte(msg.Payload),
			})
		}
	}
}

func (rf *redisFeed) Close() error {
	return rf.pubSub.Close()
}

func (rf *redisFeed) Publish(payload []byte, channel string) error {
	return rf.client.Publish(channel, string(payload)).Err()
}

func (rf *redisFeed) Subscribe(pattern string, h Handler) error {
	err := rf.pubSub.PSubscribe(pattern)
	if err != nil {
		return err
	}
	rf.Lock()
	rf.handlers[pattern] = h
	rf.Unlock()
	return nil
}

func (rf *redisFeed) Unsubscribe(patterns ...string) error {
	if len(patterns) == 0 {
		return nil
	}
	rf.Lock()
	for _, p := range patterns {
		delete(rf.handlers, p)
	}
	rf.Unlock()
	return rf.pubSub.PUnsubscribe(patterns...)
}
