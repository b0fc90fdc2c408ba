package service

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"

	"finchat/model"
)

const (
	TranscriptMarkdown = "md"
	TranscriptHTML     = "html"
)

var transcriptPolicy = bluemonday.UGCPolicy()

// RenderTranscript renders a conversation as markdown.
func RenderTranscript(conv *model.Conversation, msgs []*model.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Conversation %s\n", conv.ID)
	for _, m := range msgs {
		who := "You"
		if m.Sender == model.SenderAI {
			who = "Assistant"
		}
		fmt.Fprintf(&b, "\n**%s** · %s\n\n%s\n", who, m.Timestamp.UTC().Format("2006-01-02 15:04:05"), m.Text)
	}
	return b.String()
}

// RenderTranscriptHTML converts a markdown transcript to sanitized HTML.
func RenderTranscriptHTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("failed to render transcript: %w", err)
	}
	return transcriptPolicy.Sanitize(buf.String()), nil
}

// Transcript renders a stored conversation in the requested format and
// returns the body with its content type.
func (s *ChatService) Transcript(conversationID, format string) (string, string, error) {
	conv, err := s.store.GetConversation(conversationID)
	if err != nil {
		return "", "", err
	}
	msgs, err := s.store.ListMessages(conversationID)
	if err != nil {
		return "", "", err
	}

	md := RenderTranscript(conv, msgs)
	switch format {
	case "", TranscriptMarkdown:
		return md, "text/markdown; charset=utf-8", nil
	case TranscriptHTML:
		html, err := RenderTranscriptHTML(md)
		if err != nil {
			return "", "", err
		}
		return html, "text/html; charset=utf-8", nil
	default:
		return "", "", fmt.Errorf("unknown transcript format %q: %w", format, model.ErrInvalidInput)
	}
}
