package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finchat/model"
)

func TestLLMChatSendMessage(t *testing.T) {
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cmpl-1","object":"chat.completion","created":1,"model":"test-model",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"Hi there"}}]}`))
	}))
	defer srv.Close()

	client := openai.NewClient(option.WithBaseURL(srv.URL+"/"), option.WithAPIKey("test"))
	history := func(string) ([]*model.Message, error) {
		return []*model.Message{
			{ID: "m0", Text: "Earlier", Sender: model.SenderUser},
			{ID: "m1", Text: "Hello", Sender: model.SenderUser},
		}, nil
	}
	llm := NewLLMChat(client, "test-model", history)

	resp, err := llm.SendMessage(context.Background(), "u1", ChatRequest{Text: "Hello", ConversationID: "c1", MessageID: "m1"})
	require.NoError(t, err)
	assert.Equal(t, "Hi there", resp.Response)

	assert.Equal(t, "test-model", body["model"])
	msgs, ok := body["messages"].([]interface{})
	require.True(t, ok)
	// system prompt plus the two history entries; the current message is not repeated
	assert.Len(t, msgs, 3)
}

func TestLLMChatServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad request","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	client := openai.NewClient(option.WithBaseURL(srv.URL+"/"), option.WithAPIKey("test"))
	_, err := NewLLMChat(client, "test-model", nil).SendMessage(context.Background(), "u1", ChatRequest{Text: "Hello"})

	var se *model.ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.Status)
}
