package model

import "time"

// LocalItem is one key of the persisted client state (token, userId, csrf-token).
type LocalItem struct {
	Key       string    `gorm:"primaryKey;size:64" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (LocalItem) TableName() string {
	return "local_storage"
}

// Local storage keys.
const (
	KeyToken     = "token"
	KeyUserID    = "userId"
	KeyCSRFToken = "csrf-token"
)
