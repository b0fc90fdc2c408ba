package store

import (
	"errors"
	"fmt"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"finchat/model"
)

// LocalStorage is the persisted client state: auth token, user id and CSRF token.
type LocalStorage interface {
	GetItem(key string) (string, bool)
	SetItem(key, value string) error
	RemoveItem(keys ...string) error
}

type MemoryLocalStorage struct {
	mu    sync.RWMutex
	items map[string]string
}

func NewMemoryLocalStorage() *MemoryLocalStorage {
	return &MemoryLocalStorage{items: make(map[string]string)}
}

func (s *MemoryLocalStorage) GetItem(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	return v, ok
}

func (s *MemoryLocalStorage) SetItem(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = value
	return nil
}

func (s *MemoryLocalStorage) RemoveItem(keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.items, k)
	}
	return nil
}

// SQLLocalStorage survives restarts when a database is configured.
type SQLLocalStorage struct {
	db *gorm.DB
}

func NewSQLLocalStorage(db *gorm.DB) (*SQLLocalStorage, error) {
	if err := db.AutoMigrate(&model.LocalItem{}); err != nil {
		return nil, fmt.Errorf("failed to migrate local storage: %w", err)
	}
	return &SQLLocalStorage{db: db}, nil
}

func (s *SQLLocalStorage) GetItem(key string) (string, bool) {
	var item model.LocalItem
	if err := s.db.Where("`key` = ?", key).First(&item).Error; err != nil {
		return "", false
	}
	return item.Value, true
}

func (s *SQLLocalStorage) SetItem(key, value string) error {
	item := model.LocalItem{Key: key, Value: value}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&item).Error
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

func (s *SQLLocalStorage) RemoveItem(keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	err := s.db.Where("`key` IN ?", keys).Delete(&model.LocalItem{}).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to remove items: %w", err)
	}
	return nil
}
