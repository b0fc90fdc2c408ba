package store

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"finchat/model"
)

// Memory keeps the chat state in process. It is the default backend.
type Memory struct {
	mu            sync.RWMutex
	messages      map[string]*model.Message
	conversations map[string]*model.Conversation
	opts          options
}

func NewMemory(opts ...Option) *Memory {
	return &Memory{
		messages:      make(map[string]*model.Message),
		conversations: make(map[string]*model.Conversation),
		opts:          buildOptions(opts),
	}
}

func (s *Memory) CreateConversation(userID string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", fmt.Errorf("user id is required: %w", model.ErrInvalidInput)
	}

	now := s.opts.now()
	conv := &model.Conversation{
		ID:           s.opts.newID(),
		UserID:       userID,
		MessageIDs:   []string{},
		CreatedAt:    now,
		LastActivity: now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversations[conv.ID] = conv
	return conv.ID, nil
}

func (s *Memory) AppendMessage(conversationID, text string, sender model.Sender) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, model.ErrNotFound
	}

	ts := nextTimestamp(s.opts.now(), conv.LastMessageTime)
	msg, err := model.NewMessage(s.opts.newID(), conversationID, text, sender, ts)
	if err != nil {
		return nil, err
	}
	msg.Seq = len(conv.MessageIDs)

	s.messages[msg.ID] = msg
	conv.MessageIDs = append(conv.MessageIDs, msg.ID)
	conv.LastMessageTime = &ts
	conv.LastActivity = ts

	out := *msg
	return &out, nil
}

func (s *Memory) ListMessages(conversationID string) ([]*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return []*model.Message{}, nil
	}

	out := make([]*model.Message, 0, len(conv.MessageIDs))
	for _, id := range conv.MessageIDs {
		if m, ok := s.messages[id]; ok {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Memory) DeleteConversation(conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleteLocked(conversationID)
	return nil
}

func (s *Memory) deleteLocked(conversationID string) {
	conv, ok := s.conversations[conversationID]
	if !ok {
		return
	}
	for _, id := range conv.MessageIDs {
		delete(s.messages, id)
	}
	delete(s.conversations, conversationID)
}

func (s *Memory) GetConversation(conversationID string) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, model.ErrNotFound
	}
	return conv.Clone(), nil
}

func (s *Memory) ListConversations(userID string) ([]*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*model.Conversation{}
	for _, conv := range s.conversations {
		if conv.UserID == userID {
			out = append(out, conv.Clone())
		}
	}
	sortByActivity(out)
	return out, nil
}

func (s *Memory) RestoreConversation(conv *model.Conversation, messages []*model.Message) error {
	if conv == nil || conv.ID == "" || strings.TrimSpace(conv.UserID) == "" {
		return fmt.Errorf("conversation id and user id are required: %w", model.ErrInvalidInput)
	}
	restored, msgs, err := prepareRestore(conv, messages, s.opts.now())
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range msgs {
		if other, ok := s.messages[m.ID]; ok && other.ConversationID != conv.ID {
			return fmt.Errorf("message %s belongs to another conversation: %w", m.ID, model.ErrInvalidInput)
		}
	}

	s.deleteLocked(conv.ID)
	for _, m := range msgs {
		s.messages[m.ID] = m
	}
	s.conversations[restored.ID] = restored
	return nil
}

func (s *Memory) EvictIdle(before time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted []string
	for id, conv := range s.conversations {
		if conv.LastActivity.Before(before) {
			evicted = append(evicted, id)
		}
	}
	for _, id := range evicted {
		s.deleteLocked(id)
	}
	sort.Strings(evicted)
	return evicted, nil
}

// prepareRestore copies the inputs, orders messages chronologically and
// rebuilds the conversation's id list from them. An empty conversation with
// no creation time is stamped with now.
func prepareRestore(conv *model.Conversation, messages []*model.Message, now time.Time) (*model.Conversation, []*model.Message, error) {
	msgs := make([]*model.Message, 0, len(messages))
	seen := make(map[string]bool, len(messages))
	for _, m := range messages {
		if m == nil {
			continue
		}
		if seen[m.ID] {
			return nil, nil, fmt.Errorf("duplicate message id %s: %w", m.ID, model.ErrInvalidInput)
		}
		seen[m.ID] = true
		nm, err := model.NewMessage(m.ID, conv.ID, m.Text, m.Sender, m.Timestamp)
		if err != nil {
			return nil, nil, err
		}
		msgs = append(msgs, nm)
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})

	out := conv.Clone()
	out.MessageIDs = make([]string, 0, len(msgs))
	for i, m := range msgs {
		m.Seq = i
		out.MessageIDs = append(out.MessageIDs, m.ID)
	}
	if out.CreatedAt.IsZero() {
		if len(msgs) > 0 {
			out.CreatedAt = msgs[0].Timestamp
		} else {
			out.CreatedAt = now
		}
	}
	out.LastMessageTime = nil
	out.LastActivity = out.CreatedAt
	if len(msgs) > 0 {
		last := msgs[len(msgs)-1].Timestamp
		out.LastMessageTime = &last
		out.LastActivity = last
	}
	return out, msgs, nil
}

func sortByActivity(convs []*model.Conversation) {
	sort.Slice(convs, func(i, j int) bool {
		a, b := convs[i], convs[j]
		if !a.LastActivity.Equal(b.LastActivity) {
			return a.LastActivity.After(b.LastActivity)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
