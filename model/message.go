package model

import (
	"fmt"
	"strings"
	"time"
)

type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderAI
}

// Message is a single utterance of a conversation. It is never mutated after creation.
type Message struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	ConversationID string    `gorm:"size:36;index:idx_conversation_id_seq" json:"conversationId"`
	Seq            int       `gorm:"index:idx_conversation_id_seq" json:"-"`
	Text           string    `gorm:"type:text" json:"text"`
	Sender         Sender    `gorm:"type:varchar(16)" json:"sender"`
	Timestamp      time.Time `json:"timestamp"`
}

func (Message) TableName() string {
	return "messages"
}

// NewMessage builds a message with all required fields present.
func NewMessage(id, conversationID, text string, sender Sender, ts time.Time) (*Message, error) {
	if id == "" || conversationID == "" {
		return nil, fmt.Errorf("message requires id and conversation id: %w", ErrInvalidInput)
	}
	if !sender.Valid() {
		return nil, fmt.Errorf("unknown sender %q: %w", sender, ErrInvalidInput)
	}
	if strings.TrimSpace(text) == "" {
		return nil, &ValidationError{Reason: ReasonEmpty}
	}
	return &Message{
		ID:             id,
		ConversationID: conversationID,
		Text:           text,
		Sender:         sender,
		Timestamp:      ts,
	}, nil
}
