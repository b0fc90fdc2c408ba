package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"finchat/api"
	"finchat/lib"
	"finchat/model"
	"finchat/store"
)

// Transport reaches the chat backend. api.ChatAPI and api.LLMChat implement it.
type Transport interface {
	SendMessage(ctx context.Context, userID string, req api.ChatRequest) (*api.ChatResponse, error)
	GetConversationHistory(ctx context.Context, conversationID string) (*api.History, error)
	DeleteConversation(ctx context.Context, conversationID string) error
}

type ChatOptions struct {
	// SendInterval is the minimum gap after a successful send before the same
	// conversation accepts another one.
	SendInterval time.Duration
	// Timeout bounds a single transport call. Zero leaves it to the transport.
	Timeout time.Duration
	Now     func() time.Time
}

// SendResult is the outcome of one send cycle. UserMessage is set as soon as
// the user's text was appended, even when the reply then failed.
type SendResult struct {
	UserMessage *model.Message `json:"userMessage,omitempty"`
	AIMessage   *model.Message `json:"aiMessage,omitempty"`
}

// State is the read-only view of the controller for the presentation layer.
type State struct {
	ActiveConversationID string         `json:"activeConversationId"`
	Responding           []string       `json:"responding"`
	LastError            string         `json:"lastError"`
	Notifications        []Notification `json:"notifications"`
}

// ChatService is the session controller: it runs send/receive cycles against the
// transport and is the only writer of the message store.
type ChatService struct {
	store     store.Store
	transport Transport
	hub       *Hub
	notifier  *Notifier
	logger    logrus.FieldLogger
	opts      ChatOptions

	mu        sync.Mutex
	inFlight  map[string]bool
	lastSend  map[string]time.Time
	lastError string
	active    string
}

func NewChatService(st store.Store, transport Transport, hub *Hub, notifier *Notifier, logger logrus.FieldLogger, opts ChatOptions) *ChatService {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SendInterval < 0 {
		opts.SendInterval = 0
	}
	return &ChatService{
		store:     st,
		transport: transport,
		hub:       hub,
		notifier:  notifier,
		logger:    logger,
		opts:      opts,
		inFlight:  make(map[string]bool),
		lastSend:  make(map[string]time.Time),
	}
}

func (s *ChatService) CreateConversation(ctx context.Context, userID string) (*model.Conversation, error) {
	id, err := s.store.CreateConversation(userID)
	if err != nil {
		return nil, s.fail(id, err)
	}
	conv, err := s.store.GetConversation(id)
	if err != nil {
		return nil, s.fail(id, err)
	}

	s.logger.WithFields(logrus.Fields{"conversation_id": id, "user_id": userID}).Info("conversation created")
	s.hub.Publish(Event{Name: EventConversationCreated, ConversationID: id})
	return conv, nil
}

// Send runs one send/receive cycle: validate, sanitize, gate, append the user
// message, call the transport and append the reply.
func (s *ChatService) Send(ctx context.Context, conversationID, rawText string) (*SendResult, error) {
	log := s.logger.WithField("conversation_id", conversationID)

	s.mu.Lock()
	conv, err := s.admitLocked(conversationID, rawText)
	cleared := false
	if err == nil {
		s.inFlight[conversationID] = true
		cleared = s.setLastErrorLocked("")
	}
	s.mu.Unlock()

	if cleared {
		s.publishError("")
	}
	if errors.Is(err, model.ErrBusy) {
		log.Info("send rejected, reply pending")
		return nil, err
	}
	if err != nil {
		return nil, s.fail(conversationID, err)
	}
	text := lib.Sanitize(rawText)

	s.publishResponding(conversationID, true)
	defer func() {
		s.mu.Lock()
		delete(s.inFlight, conversationID)
		s.mu.Unlock()
		s.publishResponding(conversationID, false)
	}()

	userMsg, err := s.store.AppendMessage(conversationID, text, model.SenderUser)
	if err != nil {
		return nil, s.fail(conversationID, err)
	}
	s.publishMessage(userMsg)
	result := &SendResult{UserMessage: userMsg}

	callCtx := ctx
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := s.transport.SendMessage(callCtx, conv.UserID, api.ChatRequest{
		Text:           text,
		ConversationID: conversationID,
		Timestamp:      userMsg.Timestamp.UnixMilli(),
		MessageID:      userMsg.ID,
	})
	if err != nil {
		return result, s.fail(conversationID, classify(err))
	}
	log.WithField("latency", time.Since(start)).Info("reply received")

	reply, err := lib.ReplyToText(resp.Response)
	if err != nil {
		return result, s.fail(conversationID, &model.ServerError{Op: "sendMessage", Status: http.StatusBadGateway, Body: err.Error()})
	}
	reply = lib.Sanitize(reply)
	if reply == "" {
		return result, s.fail(conversationID, &model.ServerError{Op: "sendMessage", Status: http.StatusBadGateway, Body: "empty reply"})
	}

	aiMsg, err := s.store.AppendMessage(conversationID, reply, model.SenderAI)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			log.Info("conversation deleted while awaiting reply, reply discarded")
			return result, fmt.Errorf("reply discarded: %w", err)
		}
		return result, s.fail(conversationID, err)
	}
	s.publishMessage(aiMsg)
	result.AIMessage = aiMsg

	s.mu.Lock()
	s.lastSend[conversationID] = s.opts.Now()
	cleared = s.setLastErrorLocked("")
	s.mu.Unlock()
	if cleared {
		s.publishError("")
	}

	return result, nil
}

// admitLocked runs the checks that precede the Sending state, in order:
// validation, the per-conversation rate gate, the busy gate and existence.
// s.mu must be held.
func (s *ChatService) admitLocked(conversationID, rawText string) (*model.Conversation, error) {
	if err := lib.ValidateMessage(rawText); err != nil {
		return nil, err
	}

	now := s.opts.Now()
	if last, ok := s.lastSend[conversationID]; ok && now.Sub(last) < s.opts.SendInterval {
		return nil, model.ErrRateLimited
	}
	if s.inFlight[conversationID] {
		return nil, model.ErrBusy
	}
	return s.store.GetConversation(conversationID)
}

// classify turns untyped transport failures into the error taxonomy.
func classify(err error) error {
	var (
		ne *model.NetworkError
		se *model.ServerError
	)
	switch {
	case errors.As(err, &ne), errors.As(err, &se):
		return err
	case errors.Is(err, model.ErrRateLimited), errors.Is(err, model.ErrLoginRequired):
		return err
	default:
		// timeouts, cancellations and anything else without a response
		return &model.NetworkError{Op: "transport", Err: err}
	}
}

func (s *ChatService) ListMessages(conversationID string) ([]*model.Message, error) {
	return s.store.ListMessages(conversationID)
}

func (s *ChatService) GetConversation(conversationID string) (*model.Conversation, error) {
	return s.store.GetConversation(conversationID)
}

func (s *ChatService) ListConversations(userID string) ([]*model.Conversation, error) {
	return s.store.ListConversations(userID)
}

// DeleteConversation removes the conversation locally, then asks the backend to
// forget it. A missing remote copy is not an error.
func (s *ChatService) DeleteConversation(ctx context.Context, conversationID string) error {
	if err := s.store.DeleteConversation(conversationID); err != nil {
		return s.fail(conversationID, err)
	}
	s.forget(conversationID)
	s.hub.Publish(Event{Name: EventConversationDeleted, ConversationID: conversationID})

	if err := s.transport.DeleteConversation(ctx, conversationID); err != nil {
		var se *model.ServerError
		if !errors.As(err, &se) || se.Status != http.StatusNotFound {
			return s.fail(conversationID, classify(err))
		}
	}
	s.notifier.Push(NotificationSuccess, "Conversation deleted successfully", NotificationDuration(""))
	return nil
}

// LoadHistory replaces the local copy of a conversation with the backend's.
// An empty remote history leaves an existing local conversation untouched.
func (s *ChatService) LoadHistory(ctx context.Context, conversationID, userID string) (*model.Conversation, error) {
	if strings.TrimSpace(conversationID) == "" || strings.TrimSpace(userID) == "" {
		return nil, s.fail(conversationID, fmt.Errorf("conversation id and user id are required: %w", model.ErrInvalidInput))
	}

	// the conversation counts as responding until the restore lands, so no
	// send can append messages the restore would then overwrite
	s.mu.Lock()
	if s.inFlight[conversationID] {
		s.mu.Unlock()
		return nil, model.ErrBusy
	}
	s.inFlight[conversationID] = true
	s.mu.Unlock()

	s.publishResponding(conversationID, true)
	defer func() {
		s.mu.Lock()
		delete(s.inFlight, conversationID)
		s.mu.Unlock()
		s.publishResponding(conversationID, false)
	}()

	history, err := s.transport.GetConversationHistory(ctx, conversationID)
	if err != nil {
		return nil, s.fail(conversationID, classify(err))
	}

	existing, err := s.store.GetConversation(conversationID)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return nil, s.fail(conversationID, err)
	}
	if existing != nil && existing.UserID != userID {
		return nil, s.fail(conversationID, model.ErrNotFound)
	}
	if existing != nil && len(history.Messages) == 0 {
		return existing, nil
	}

	msgs := make([]*model.Message, 0, len(history.Messages))
	for _, hm := range history.Messages {
		text := hm.Text
		if hm.Sender == model.SenderAI {
			if text, err = lib.ReplyToText(text); err != nil {
				s.logger.Warnf("history message %s not converted, %s", hm.ID, err)
				text = hm.Text
			}
		}
		text = lib.Sanitize(text)
		if hm.ID == "" || text == "" || !hm.Sender.Valid() {
			s.logger.Warnf("history message %q of %s skipped", hm.ID, conversationID)
			continue
		}
		msgs = append(msgs, &model.Message{
			ID:        hm.ID,
			Text:      text,
			Sender:    hm.Sender,
			Timestamp: time.UnixMilli(hm.Timestamp),
		})
	}

	conv := &model.Conversation{ID: conversationID, UserID: userID}
	if existing != nil {
		conv.CreatedAt = existing.CreatedAt
	}
	if err := s.store.RestoreConversation(conv, msgs); err != nil {
		return nil, s.fail(conversationID, err)
	}

	s.hub.Publish(Event{
		Name:           EventConversationLoaded,
		ConversationID: conversationID,
		Data:           map[string]interface{}{"messages": len(msgs)},
	})
	return s.store.GetConversation(conversationID)
}

// EvictIdle drops conversations without activity for longer than ttl.
func (s *ChatService) EvictIdle(ttl time.Duration) ([]string, error) {
	evicted, err := s.store.EvictIdle(s.opts.Now().Add(-ttl))
	if err != nil {
		return nil, err
	}
	for _, id := range evicted {
		s.forget(id)
		s.hub.Publish(Event{Name: EventConversationDeleted, ConversationID: id})
	}
	return evicted, nil
}

func (s *ChatService) forget(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lastSend, conversationID)
	if s.active == conversationID {
		s.active = ""
	}
}

func (s *ChatService) SetActiveConversation(conversationID string) error {
	if _, err := s.store.GetConversation(conversationID); err != nil {
		return err
	}
	s.mu.Lock()
	s.active = conversationID
	s.mu.Unlock()
	return nil
}

func (s *ChatService) ActiveConversation() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *ChatService) IsResponding(conversationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight[conversationID]
}

func (s *ChatService) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

func (s *ChatService) ClearError() {
	s.mu.Lock()
	cleared := s.setLastErrorLocked("")
	s.mu.Unlock()
	if cleared {
		s.publishError("")
	}
}

func (s *ChatService) State() State {
	s.mu.Lock()
	st := State{
		ActiveConversationID: s.active,
		Responding:           make([]string, 0, len(s.inFlight)),
		LastError:            s.lastError,
	}
	for id := range s.inFlight {
		st.Responding = append(st.Responding, id)
	}
	s.mu.Unlock()

	sort.Strings(st.Responding)
	st.Notifications = s.notifier.Active()
	return st
}

// fail records err as the user facing last error and raises a notice.
func (s *ChatService) fail(conversationID string, err error) error {
	msg := model.UserMessage(err)

	s.mu.Lock()
	changed := s.setLastErrorLocked(msg)
	s.mu.Unlock()
	if changed {
		s.publishError(msg)
	}

	s.notifier.Error(err)
	s.logger.WithFields(logrus.Fields{
		"conversation_id": conversationID,
		"kind":            model.Kind(err),
	}).Warnf("chat operation failed, %s", err)
	return err
}

// setLastErrorLocked reports whether the slot changed. s.mu must be held;
// publish after unlocking.
func (s *ChatService) setLastErrorLocked(msg string) bool {
	if s.lastError == msg {
		return false
	}
	s.lastError = msg
	return true
}

func (s *ChatService) publishError(msg string) {
	s.hub.Publish(Event{Name: EventErrorChanged, Data: map[string]interface{}{"lastError": msg}})
}

func (s *ChatService) publishResponding(conversationID string, responding bool) {
	s.hub.Publish(Event{
		Name:           EventRespondingChanged,
		ConversationID: conversationID,
		Data:           map[string]interface{}{"isResponding": responding},
	})
}

func (s *ChatService) publishMessage(m *model.Message) {
	s.hub.Publish(Event{
		Name:           EventMessageAppended,
		ConversationID: m.ConversationID,
		Data: map[string]interface{}{
			"id":        m.ID,
			"text":      m.Text,
			"sender":    m.Sender,
			"timestamp": m.Timestamp.UnixMilli(),
		},
	})
}
