package service

import (
	"sync"
	"time"
)

const (
	EventConversationCreated = "conversation.created"
	EventConversationLoaded  = "conversation.loaded"
	EventConversationDeleted = "conversation.deleted"
	EventMessageAppended     = "message.appended"
	EventRespondingChanged   = "responding.changed"
	EventErrorChanged        = "error.changed"
	EventNotification        = "notification"
	EventAuthRequired        = "auth.required"
	EventLoggedIn            = "auth.login"
	EventLoggedOut           = "auth.logout"
)

// Event is a state change the presentation layer can react to.
type Event struct {
	Name           string                 `json:"event"`
	ConversationID string                 `json:"conversationId,omitempty"`
	Data           map[string]interface{} `json:"data,omitempty"`
	TS             int64                  `json:"ts"`
}

// Hub fans events out to subscribers. Subscribers are called synchronously
// and must not block.
type Hub struct {
	mu   sync.RWMutex
	subs map[int]func(Event)
	next int
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]func(Event))}
}

func (h *Hub) Subscribe(fn func(Event)) (unsubscribe func()) {
	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = fn
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
}

func (h *Hub) Publish(ev Event) {
	if h == nil {
		return
	}
	if ev.TS == 0 {
		ev.TS = time.Now().UnixMilli()
	}

	h.mu.RLock()
	subs := make([]func(Event), 0, len(h.subs))
	for _, fn := range h.subs {
		subs = append(subs, fn)
	}
	h.mu.RUnlock()

	for _, fn := range subs {
		fn(ev)
	}
}
