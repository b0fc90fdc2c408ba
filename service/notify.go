package service

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"finchat/model"
)

const (
	NotificationSuccess = "success"
	NotificationError   = "error"
	NotificationInfo    = "info"

	maxNotifications = 20
)

type Notification struct {
	ID         string        `json:"id"`
	Type       string        `json:"type"`
	Message    string        `json:"message"`
	Duration   time.Duration `json:"-"`
	DurationMs int64         `json:"duration"`
	CreatedAt  time.Time     `json:"createdAt"`
}

func (n Notification) expired(now time.Time) bool {
	return now.Sub(n.CreatedAt) >= n.Duration
}

// NotificationDuration is how long a notice for the given error kind stays visible.
func NotificationDuration(kind string) time.Duration {
	switch kind {
	case "ValidationError":
		return 5 * time.Second
	case "NetworkError":
		return 8 * time.Second
	case "AuthError":
		return 10 * time.Second
	default:
		return 6 * time.Second
	}
}

// Notifier keeps the transient notices shown next to the chat.
type Notifier struct {
	mu    sync.Mutex
	items []Notification
	hub   *Hub
	now   func() time.Time
}

func NewNotifier(hub *Hub, now func() time.Time) *Notifier {
	if now == nil {
		now = time.Now
	}
	return &Notifier{hub: hub, now: now}
}

func (n *Notifier) Push(typ, message string, d time.Duration) Notification {
	note := Notification{
		ID:         uuid.New().String(),
		Type:       typ,
		Message:    message,
		Duration:   d,
		DurationMs: d.Milliseconds(),
		CreatedAt:  n.now(),
	}

	n.mu.Lock()
	n.items = append(n.items, note)
	if len(n.items) > maxNotifications {
		n.items = n.items[len(n.items)-maxNotifications:]
	}
	n.mu.Unlock()

	n.hub.Publish(Event{
		Name: EventNotification,
		Data: map[string]interface{}{
			"id":       note.ID,
			"type":     note.Type,
			"message":  note.Message,
			"duration": note.DurationMs,
		},
	})
	return note
}

func (n *Notifier) Error(err error) Notification {
	return n.Push(NotificationError, model.UserMessage(err), NotificationDuration(model.Kind(err)))
}

// Active drops expired notices and returns the rest, oldest first.
func (n *Notifier) Active() []Notification {
	now := n.now()

	n.mu.Lock()
	defer n.mu.Unlock()

	kept := n.items[:0]
	for _, note := range n.items {
		if !note.expired(now) {
			kept = append(kept, note)
		}
	}
	n.items = kept
	return append([]Notification{}, kept...)
}
