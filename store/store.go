// Package store holds the normalized chat state: the message table and the
// conversation index that orders message ids per conversation.
package store

import (
	"time"

	"github.com/google/uuid"

	"finchat/model"
)

// Store is the Message Store and Conversation Index. Implementations make every
// mutation a single indivisible update and hand out copies only.
type Store interface {
	CreateConversation(userID string) (string, error)
	// AppendMessage returns ErrNotFound for an unknown conversation.
	AppendMessage(conversationID, text string, sender model.Sender) (*model.Message, error)
	// ListMessages returns an empty slice for an unknown conversation.
	ListMessages(conversationID string) ([]*model.Message, error)
	// DeleteConversation is idempotent.
	DeleteConversation(conversationID string) error

	GetConversation(conversationID string) (*model.Conversation, error)
	ListConversations(userID string) ([]*model.Conversation, error)
	RestoreConversation(conv *model.Conversation, messages []*model.Message) error
	EvictIdle(before time.Time) ([]string, error)
}

type Option func(*options)

type options struct {
	now   func() time.Time
	newID func() string
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithIDs replaces the uuid generator.
func WithIDs(newID func() string) Option {
	return func(o *options) {
		o.newID = newID
	}
}

func buildOptions(opts []Option) options {
	o := options{
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// nextTimestamp keeps message timestamps non-decreasing within a conversation.
func nextTimestamp(now time.Time, last *time.Time) time.Time {
	if last != nil && now.Before(*last) {
		return *last
	}
	return now
}
