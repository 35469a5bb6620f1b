package websocket

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"beatsync.fm/model"
)

// Channels keeps the in-process registry of live connections per room,
// the push half of the listener path.
type Channels interface {
	Subscribe(m *model.Member, channels ...string)
	Unsubscribe(m *model.Member, channels ...string)
	GetSubscribers(channel string) []*model.Member
}

type (
	channels struct {
		sync.Mutex
		storage map[string]map[string]*model.Member
	}

	// Request is a client-to-server ws frame.
	Request struct {
		ID       string                 `json:"id"`
		UserID   string                 `json:"user_id"`
		RoomCode string                 `json:"room_code"`
		Method   string                 `json:"method"`
		SentAt   time.Time              `json:"sent_at"`
		Params   map[string]interface{} `json:"params"`
	}

	// Response acknowledges a Request by id.
	Response struct {
		ID     string                 `json:"id"`
		Result map[string]interface{} `json:"result"`
	}
)

func NewChannels() Channels {
	return &channels{
		storage: make(map[string]map[string]*model.Member),
	}
}

func (h *channels) Subscribe(m *model.Member, chans ...string) {
	h.Lock()
	for _, ch := range chans {
		_, exists := h.storage[ch]
		if !exists {
			h.storage[ch] = make(map[string]*model.Member)
		}
		h.storage[ch][m.GetID()] = m
	}
	h.Unlock()
}

func (h *channels) Unsubscribe(m *model.Member, chans ...string) {
	h.Lock()
	for _, ch := range chans {
		_, exists := h.storage[ch]
		if exists {
			delete(h.storage[ch], m.GetID())
		}
	}
	h.Unlock()
}

func (h *channels) GetSubscribers(channel string) []*model.Member {
	var result []*model.Member
	h.Lock()
	subscribers, channelExists := h.storage[channel]
	h.Unlock()
	if channelExists {
		for _, s := range subscribers {
			result = append(result, s)
		}
	}
	return result
}

func (r *Request) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("invalid request id")
	}

	switch r.Method {
	case "chat_message":
		content, ok := r.Params["content"].(string)
		if !ok || strings.TrimSpace(content) == "" {
			return fmt.Errorf("invalid '%s' request, param 'content' is required and must be string", r.Method)
		}
	default:
		return fmt.Errorf("invalid request method: '%s'", r.Method)
	}

	return nil
}
