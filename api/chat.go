package api

import (
	"context"
	"net/http"
	"os"
	"time"

	"finchat/model"
)

type ClientInfo struct {
	Timezone  string `json:"timezone"`
	Language  string `json:"language"`
	UserAgent string `json:"userAgent"`
}

// DefaultClientInfo describes this process the way a browser would describe itself.
func DefaultClientInfo(userAgent string) ClientInfo {
	lang := os.Getenv("LANG")
	if lang == "" {
		lang = "en-US"
	}
	return ClientInfo{
		Timezone:  time.Local.String(),
		Language:  lang,
		UserAgent: userAgent,
	}
}

type ChatRequest struct {
	Text           string     `json:"text"`
	ConversationID string     `json:"conversationId"`
	Timestamp      int64      `json:"timestamp"`
	MessageID      string     `json:"messageId"`
	ClientInfo     ClientInfo `json:"clientInfo"`
}

type ChatResponse struct {
	Response string `json:"response"`
}

type HistoryMessage struct {
	ID        string       `json:"id"`
	Text      string       `json:"text"`
	Sender    model.Sender `json:"sender"`
	Timestamp int64        `json:"timestamp"`
}

type History struct {
	Messages []HistoryMessage `json:"messages"`
}

// ChatAPI is the chat endpoint group of the backend.
type ChatAPI struct {
	client     *Client
	clientInfo ClientInfo
}

func NewChatAPI(client *Client, info ClientInfo) *ChatAPI {
	return &ChatAPI{client: client, clientInfo: info}
}

func (a *ChatAPI) SendMessage(ctx context.Context, userID string, req ChatRequest) (*ChatResponse, error) {
	if req.ClientInfo == (ClientInfo{}) {
		req.ClientInfo = a.clientInfo
	}
	var resp ChatResponse
	if err := a.client.Do(ctx, "sendMessage", http.MethodPost, []string{"chat", userID}, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (a *ChatAPI) GetConversationHistory(ctx context.Context, conversationID string) (*History, error) {
	var history History
	if err := a.client.Do(ctx, "getHistory", http.MethodGet, []string{"chat", "conversations", conversationID}, nil, &history); err != nil {
		return nil, err
	}
	return &history, nil
}

func (a *ChatAPI) DeleteConversation(ctx context.Context, conversationID string) error {
	return a.client.Do(ctx, "deleteConversation", http.MethodDelete, []string{"chat", "conversations", conversationID}, nil, nil)
}
