package model

import "time"

// Conversation is an ordered thread of messages between one user and the assistant.
type Conversation struct {
	ID              string     `gorm:"primaryKey;size:36" json:"id"`
	UserID          string     `gorm:"size:255;index" json:"userId"`
	MessageIDs      []string   `gorm:"-" json:"messageIds"`
	CreatedAt       time.Time  `json:"createdAt"`
	LastMessageTime *time.Time `json:"lastMessageTime"`
	// LastActivity is CreatedAt until the first message lands.
	LastActivity time.Time `gorm:"index" json:"-"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// Clone returns a copy that shares no memory with c.
func (c *Conversation) Clone() *Conversation {
	out := *c
	out.MessageIDs = append([]string(nil), c.MessageIDs...)
	if c.LastMessageTime != nil {
		t := *c.LastMessageTime
		out.LastMessageTime = &t
	}
	return &out
}
