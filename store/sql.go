package store

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"finchat/model"
)

// SQL keeps the chat state in a gorm database (MySQL or SQLite).
type SQL struct {
	db   *gorm.DB
	mu   sync.Mutex // serializes appends so seq numbers stay dense
	opts options
}

func NewSQL(db *gorm.DB, opts ...Option) (*SQL, error) {
	if err := model.Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate chat tables: %w", err)
	}
	return &SQL{db: db, opts: buildOptions(opts)}, nil
}

func (s *SQL) CreateConversation(userID string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", fmt.Errorf("user id is required: %w", model.ErrInvalidInput)
	}

	now := s.opts.now()
	conv := &model.Conversation{
		ID:           s.opts.newID(),
		UserID:       userID,
		CreatedAt:    now,
		LastActivity: now,
	}
	if err := s.db.Create(conv).Error; err != nil {
		return "", fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv.ID, nil
}

func (s *SQL) AppendMessage(conversationID, text string, sender model.Sender) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var msg *model.Message
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var conv model.Conversation
		if err := tx.Where("id = ?", conversationID).First(&conv).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return model.ErrNotFound
			}
			return fmt.Errorf("database query failed: %w", err)
		}

		var count int64
		if err := tx.Model(&model.Message{}).Where("conversation_id = ?", conversationID).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to count messages: %w", err)
		}

		ts := nextTimestamp(s.opts.now(), conv.LastMessageTime)
		m, err := model.NewMessage(s.opts.newID(), conversationID, text, sender, ts)
		if err != nil {
			return err
		}
		m.Seq = int(count)

		if err := tx.Create(m).Error; err != nil {
			return fmt.Errorf("failed to create message: %w", err)
		}
		if err := tx.Model(&model.Conversation{}).Where("id = ?", conversationID).
			Updates(map[string]interface{}{"last_message_time": ts, "last_activity": ts}).Error; err != nil {
			return fmt.Errorf("failed to update conversation: %w", err)
		}
		msg = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *SQL) ListMessages(conversationID string) ([]*model.Message, error) {
	msgs := []*model.Message{}
	if err := s.db.Where("conversation_id = ?", conversationID).Order("seq ASC").Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return msgs, nil
}

func (s *SQL) DeleteConversation(conversationID string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return deleteConversationTx(tx, conversationID)
	})
}

func deleteConversationTx(tx *gorm.DB, conversationID string) error {
	if err := tx.Where("conversation_id = ?", conversationID).Delete(&model.Message{}).Error; err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	if err := tx.Where("id = ?", conversationID).Delete(&model.Conversation{}).Error; err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}

func (s *SQL) GetConversation(conversationID string) (*model.Conversation, error) {
	var conv model.Conversation
	if err := s.db.Where("id = ?", conversationID).First(&conv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	if err := s.loadMessageIDs(&conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (s *SQL) ListConversations(userID string) ([]*model.Conversation, error) {
	convs := []*model.Conversation{}
	err := s.db.Where("user_id = ?", userID).
		Order("last_activity DESC").
		Order("created_at DESC").
		Order("id ASC").
		Find(&convs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	for _, conv := range convs {
		if err := s.loadMessageIDs(conv); err != nil {
			return nil, err
		}
	}
	return convs, nil
}

func (s *SQL) loadMessageIDs(conv *model.Conversation) error {
	ids := []string{}
	if err := s.db.Model(&model.Message{}).Where("conversation_id = ?", conv.ID).
		Order("seq ASC").Pluck("id", &ids).Error; err != nil {
		return fmt.Errorf("failed to load message ids: %w", err)
	}
	conv.MessageIDs = ids
	return nil
}

func (s *SQL) RestoreConversation(conv *model.Conversation, messages []*model.Message) error {
	if conv == nil || conv.ID == "" || strings.TrimSpace(conv.UserID) == "" {
		return fmt.Errorf("conversation id and user id are required: %w", model.ErrInvalidInput)
	}
	restored, msgs, err := prepareRestore(conv, messages, s.opts.now())
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Transaction(func(tx *gorm.DB) error {
		if len(msgs) > 0 {
			ids := make([]string, 0, len(msgs))
			for _, m := range msgs {
				ids = append(ids, m.ID)
			}
			var foreign int64
			if err := tx.Model(&model.Message{}).
				Where("id IN ? AND conversation_id <> ?", ids, conv.ID).
				Count(&foreign).Error; err != nil {
				return fmt.Errorf("database query failed: %w", err)
			}
			if foreign > 0 {
				return fmt.Errorf("message ids belong to another conversation: %w", model.ErrInvalidInput)
			}
		}

		if err := deleteConversationTx(tx, conv.ID); err != nil {
			return err
		}
		if err := tx.Create(restored).Error; err != nil {
			return fmt.Errorf("failed to create conversation: %w", err)
		}
		if len(msgs) > 0 {
			if err := tx.Create(&msgs).Error; err != nil {
				return fmt.Errorf("failed to create messages: %w", err)
			}
		}
		return nil
	})
}

func (s *SQL) EvictIdle(before time.Time) ([]string, error) {
	ids := []string{}
	if err := s.db.Model(&model.Conversation{}).Where("last_activity < ?", before).
		Order("id ASC").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to find idle conversations: %w", err)
	}
	for _, id := range ids {
		if err := s.DeleteConversation(id); err != nil {
			return nil, err
		}
	}
	return ids, nil
}
