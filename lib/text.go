package lib

import (
	"regexp"
	"strings"
	"unicode/utf8"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"finchat/model"
)

const (
	MinMessageLength = 2
	MaxMessageLength = 500
)

var (
	htmlTag = regexp.MustCompile(`<[a-zA-Z/!][^>]*>`)
	// same set a DOM text node escapes when read back as innerHTML
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
)

// ValidateMessage checks the trimmed text against the length rules.
func ValidateMessage(raw string) error {
	text := strings.TrimSpace(raw)
	n := utf8.RuneCountInString(text)
	switch {
	case n == 0:
		return &model.ValidationError{Reason: model.ReasonEmpty}
	case n < MinMessageLength:
		return &model.ValidationError{Reason: model.ReasonTooShort}
	case n > MaxMessageLength:
		return &model.ValidationError{Reason: model.ReasonTooLong}
	}
	return nil
}

// Sanitize escapes markup so the text renders as plain text. Nothing the user
// typed is dropped, so a validated text stays at least MinMessageLength long.
// It is a display convenience, not a trust boundary.
func Sanitize(text string) string {
	return textEscaper.Replace(strings.TrimSpace(text))
}

// ReplyToText converts an HTML formatted reply to markdown; other replies pass through.
func ReplyToText(reply string) (string, error) {
	if !htmlTag.MatchString(reply) {
		return reply, nil
	}
	content, err := htmltomarkdown.ConvertString(reply)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(content), nil
}
