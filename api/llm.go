package api

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go"

	"finchat/model"
)

const defaultSystemPrompt = "You are a helpful financial assistant. Answer briefly and never give personalised investment advice."

// LLMChat answers chat requests straight from an OpenAI compatible endpoint,
// for running the dashboard without the chat backend.
type LLMChat struct {
	client     *openai.Client
	model      string
	prompt     string
	history    func(conversationID string) ([]*model.Message, error)
	maxHistory int
}

// NewLLMChat builds the transport. history may be nil; when set, the most recent
// messages of the conversation are sent as context.
func NewLLMChat(client *openai.Client, modelName string, history func(string) ([]*model.Message, error)) *LLMChat {
	return &LLMChat{
		client:     client,
		model:      modelName,
		prompt:     defaultSystemPrompt,
		history:    history,
		maxHistory: 20,
	}
}

func (l *LLMChat) SendMessage(ctx context.Context, userID string, req ChatRequest) (*ChatResponse, error) {
	messages := []openai.ChatCompletionMessageParamUnion{openai.SystemMessage(l.prompt)}

	sentCurrent := false
	if l.history != nil {
		past, err := l.history(req.ConversationID)
		if err != nil {
			return nil, err
		}
		if len(past) > l.maxHistory {
			past = past[len(past)-l.maxHistory:]
		}
		for _, m := range past {
			switch m.Sender {
			case model.SenderUser:
				messages = append(messages, openai.UserMessage(m.Text))
			case model.SenderAI:
				messages = append(messages, openai.AssistantMessage(m.Text))
			}
			if m.ID == req.MessageID {
				sentCurrent = true
			}
		}
	}
	if !sentCurrent {
		messages = append(messages, openai.UserMessage(req.Text))
	}

	completion, err := l.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: openai.F(messages),
		Model:    openai.F(openai.ChatModel(l.model)),
		User:     openai.F(userID),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, &model.ServerError{Op: "sendMessage", Status: apiErr.StatusCode, Body: apiErr.Message}
		}
		return nil, &model.NetworkError{Op: "sendMessage", Err: err}
	}
	if len(completion.Choices) == 0 || strings.TrimSpace(completion.Choices[0].Message.Content) == "" {
		return nil, &model.ServerError{Op: "sendMessage", Status: 502, Body: "invalid response"}
	}
	return &ChatResponse{Response: completion.Choices[0].Message.Content}, nil
}

// GetConversationHistory has nothing to fetch; the local store is the only copy.
func (l *LLMChat) GetConversationHistory(ctx context.Context, conversationID string) (*History, error) {
	return &History{Messages: []HistoryMessage{}}, nil
}

func (l *LLMChat) DeleteConversation(ctx context.Context, conversationID string) error {
	return nil
}
