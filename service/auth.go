package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"finchat/lib"
	"finchat/model"
	"finchat/store"
)

// Session is the signed-in user as far as this client knows.
type Session struct {
	UserID    string     `json:"userId"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// AuthService keeps the credentials issued by the external auth service in
// local storage. It never verifies signatures; the backend does.
type AuthService struct {
	storage store.LocalStorage
	hub     *Hub
	logger  logrus.FieldLogger
	now     func() time.Time
}

func NewAuthService(storage store.LocalStorage, hub *Hub, logger logrus.FieldLogger) *AuthService {
	return &AuthService{storage: storage, hub: hub, logger: logger, now: time.Now}
}

// Login stores token and user id. The user id may be omitted when the token carries one.
func (a *AuthService) Login(token, userID string) (*Session, error) {
	token = strings.TrimSpace(token)
	userID = strings.TrimSpace(userID)

	td, err := lib.InspectToken(token, a.now())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidInput, err)
	}
	switch {
	case userID == "" && td.UserID == "":
		return nil, fmt.Errorf("user id is required: %w", model.ErrInvalidInput)
	case userID == "":
		userID = td.UserID
	case td.UserID != "" && td.UserID != userID:
		return nil, fmt.Errorf("token belongs to another user: %w", model.ErrInvalidInput)
	}

	if err := a.storage.SetItem(model.KeyToken, token); err != nil {
		return nil, err
	}
	if err := a.storage.SetItem(model.KeyUserID, userID); err != nil {
		return nil, err
	}

	a.logger.Infof("user %s logged in", userID)
	a.hub.Publish(Event{Name: EventLoggedIn, Data: map[string]interface{}{"userId": userID}})
	return &Session{UserID: userID, ExpiresAt: td.ExpiresAt}, nil
}

func (a *AuthService) Logout() error {
	userID, _ := a.storage.GetItem(model.KeyUserID)
	if err := a.storage.RemoveItem(model.KeyToken, model.KeyUserID); err != nil {
		return err
	}
	a.logger.Infof("user %s logged out", userID)
	a.hub.Publish(Event{Name: EventLoggedOut})
	return nil
}

// Current returns the stored session, or ErrLoginRequired when there is none
// or its token can no longer be used. Unusable credentials are cleared.
func (a *AuthService) Current() (*Session, error) {
	token, ok := a.storage.GetItem(model.KeyToken)
	if !ok || token == "" {
		return nil, model.ErrLoginRequired
	}
	userID, ok := a.storage.GetItem(model.KeyUserID)
	if !ok || userID == "" {
		return nil, model.ErrLoginRequired
	}

	td, err := lib.InspectToken(token, a.now())
	if err != nil {
		a.logger.Warnf("stored token rejected, %s", err)
		if err := a.storage.RemoveItem(model.KeyToken, model.KeyUserID); err != nil {
			a.logger.Warnf("failed to clear credentials, %s", err)
		}
		a.hub.Publish(Event{Name: EventAuthRequired})
		return nil, model.ErrLoginRequired
	}
	return &Session{UserID: userID, ExpiresAt: td.ExpiresAt}, nil
}
