package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finchat/api"
	"finchat/model"
	"finchat/service"
	"finchat/store"
)

type stubTransport struct {
	reply string
	err   error
}

func (s *stubTransport) SendMessage(ctx context.Context, userID string, req api.ChatRequest) (*api.ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.err != nil {
		return nil, s.err
	}
	return &api.ChatResponse{Response: s.reply}, nil
}

func (s *stubTransport) GetConversationHistory(ctx context.Context, conversationID string) (*api.History, error) {
	return &api.History{Messages: []api.HistoryMessage{
		{ID: "h1", Text: "Earlier question", Sender: model.SenderUser, Timestamp: 1714550400000},
		{ID: "h2", Text: "Earlier answer", Sender: model.SenderAI, Timestamp: 1714550401000},
	}}, nil
}

func (s *stubTransport) DeleteConversation(ctx context.Context, conversationID string) error {
	return nil
}

type testServer struct {
	router    *gin.Engine
	transport *stubTransport
	hub       *service.Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	hub := service.NewHub()
	transport := &stubTransport{reply: "Hi there"}
	chat := service.NewChatService(store.NewMemory(), transport, hub, service.NewNotifier(hub, nil), logger, service.ChatOptions{SendInterval: time.Second})
	auth := service.NewAuthService(store.NewMemoryLocalStorage(), hub, logger)

	router := NewRouter(
		NewAuthController(auth, logger),
		NewChatController(chat, logger),
		NewEventsController(hub, "http://localhost", logger),
		RouterOptions{CORSOrigin: "http://localhost", Logger: logger},
	)
	return &testServer{router: router, transport: transport, hub: hub}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) login(t *testing.T, userID string) {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	w := s.do(t, http.MethodPost, "/v1/session", gin.H{"token": token})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func (s *testServer) createConversation(t *testing.T) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/v1/conversations", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var conv model.Conversation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &conv))
	return conv.ID
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	out := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestConversationRoutesRequireLogin(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/v1/conversations", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Please login first", decode(t, w)["message"])

	w = s.do(t, http.MethodGet, "/v1/session", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/v1/session", gin.H{"token": "garbage"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/v1/session", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSendFlow(t *testing.T) {
	s := newTestServer(t)
	s.login(t, "u1")
	id := s.createConversation(t)

	w := s.do(t, http.MethodPost, "/v1/conversations/"+id+"/messages", gin.H{"text": "Hello"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res service.SendResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "Hello", res.UserMessage.Text)
	assert.Equal(t, "Hi there", res.AIMessage.Text)

	w = s.do(t, http.MethodPost, "/v1/conversations/"+id+"/messages", gin.H{"text": "Again"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "Too many requests. Please wait a moment.", decode(t, w)["error"])

	w = s.do(t, http.MethodGet, "/v1/conversations/"+id+"/messages", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Messages     []model.Message `json:"messages"`
		IsResponding bool            `json:"isResponding"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Messages, 2)
	assert.Equal(t, model.SenderUser, list.Messages[0].Sender)
	assert.Equal(t, model.SenderAI, list.Messages[1].Sender)
	assert.False(t, list.IsResponding)

	w = s.do(t, http.MethodGet, "/v1/state", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Too many requests. Please wait a moment.", decode(t, w)["lastError"])

	w = s.do(t, http.MethodDelete, "/v1/state/error", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = s.do(t, http.MethodGet, "/v1/state", nil)
	assert.Equal(t, "", decode(t, w)["lastError"])
}

func TestSendErrors(t *testing.T) {
	s := newTestServer(t)
	s.login(t, "u1")
	id := s.createConversation(t)

	w := s.do(t, http.MethodPost, "/v1/conversations/"+id+"/messages", gin.H{"text": "a"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, "Message is too short.", body["error"])
	assert.Equal(t, "ValidationError", body["kind"])

	s.transport.err = &model.NetworkError{Op: "sendMessage", Err: context.DeadlineExceeded}
	w = s.do(t, http.MethodPost, "/v1/conversations/"+id+"/messages", gin.H{"text": "Hello"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	body = decode(t, w)
	assert.Equal(t, "Network error. Please check your connection.", body["error"])
	assert.NotNil(t, body["userMessage"])

	s.transport.err = &model.ServerError{Op: "sendMessage", Status: http.StatusInternalServerError}
	w = s.do(t, http.MethodPost, "/v1/conversations/"+id+"/messages", gin.H{"text": "Hello"})
	assert.Equal(t, http.StatusBadGateway, w.Code)

	w = s.do(t, http.MethodPost, "/v1/conversations/missing/messages", gin.H{"text": "Hello"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestConversationsAreScopedToUser(t *testing.T) {
	s := newTestServer(t)
	s.login(t, "u1")
	id := s.createConversation(t)

	s.login(t, "u2")
	w := s.do(t, http.MethodGet, "/v1/conversations/"+id+"/messages", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = s.do(t, http.MethodDelete, "/v1/conversations/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/v1/conversations", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(t, w)["conversations"])
}

func TestDeleteAndHistory(t *testing.T) {
	s := newTestServer(t)
	s.login(t, "u1")
	id := s.createConversation(t)

	w := s.do(t, http.MethodPut, "/v1/conversations/"+id+"/active", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodDelete, "/v1/conversations/"+id, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = s.do(t, http.MethodDelete, "/v1/conversations/"+id, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = s.do(t, http.MethodGet, "/v1/conversations/"+id+"/messages", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPost, "/v1/conversations/remote-7/history", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var conv model.Conversation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &conv))
	assert.Equal(t, []string{"h1", "h2"}, conv.MessageIDs)
	assert.Equal(t, "u1", conv.UserID)

	w = s.do(t, http.MethodGet, "/v1/conversations/remote-7/transcript?format=html", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "Earlier answer")

	w = s.do(t, http.MethodGet, "/v1/conversations/remote-7/transcript?format=doc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessionLogout(t *testing.T) {
	s := newTestServer(t)
	s.login(t, "u1")

	w := s.do(t, http.MethodGet, "/v1/session", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", decode(t, w)["userId"])

	w = s.do(t, http.MethodDelete, "/v1/session", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = s.do(t, http.MethodGet, "/v1/conversations", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMiddleware(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodOptions, "/v1/conversations", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "http://localhost", w.Header().Get("Access-Control-Allow-Origin"))

	w = s.do(t, http.MethodGet, "/v1/state", nil)
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func TestEventStream(t *testing.T) {
	s := newTestServer(t)
	s.login(t, "u1")
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	header := http.Header{"Origin": []string{"http://localhost"}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/v1/events/ws?events="+service.EventConversationCreated), header)
	require.NoError(t, err)
	defer conn.Close()

	s.hub.Publish(service.Event{Name: service.EventErrorChanged})
	s.hub.Publish(service.Event{Name: service.EventConversationCreated, ConversationID: "c1"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev service.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, service.EventConversationCreated, ev.Name)
	assert.Equal(t, "c1", ev.ConversationID)
}

func TestEventStreamRefusesStrangers(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "/v1/events/ws"), nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	s.login(t, "u1")
	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err = websocket.DefaultDialer.Dial(wsURL(srv, "/v1/events/ws"), header)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestStateRequiresLogin(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/v1/state", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = s.do(t, http.MethodDelete, "/v1/state/error", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSendSurvivesCallerHangup(t *testing.T) {
	s := newTestServer(t)
	s.login(t, "u1")
	id := s.createConversation(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/v1/conversations/"+id+"/messages", strings.NewReader(`{"text":"Hello"}`)).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/v1/state", nil)
	assert.Equal(t, "", decode(t, w)["lastError"])
	w = s.do(t, http.MethodGet, "/v1/conversations/"+id+"/messages", nil)
	var list struct {
		Messages []model.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list.Messages, 2)
}

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&model.ValidationError{Reason: model.ReasonEmpty}, http.StatusBadRequest},
		{&model.NetworkError{Op: "x", Err: context.Canceled}, http.StatusServiceUnavailable},
		{&model.ServerError{Op: "x", Status: http.StatusUnauthorized}, http.StatusUnauthorized},
		{&model.ServerError{Op: "x", Status: http.StatusForbidden}, http.StatusBadGateway},
		{model.ErrRateLimited, http.StatusTooManyRequests},
		{model.ErrBusy, http.StatusConflict},
		{model.ErrNotFound, http.StatusNotFound},
		{model.ErrInvalidInput, http.StatusBadRequest},
		{model.ErrLoginRequired, http.StatusUnauthorized},
		{io.EOF, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusOf(tc.err), tc.err.Error())
	}
}
