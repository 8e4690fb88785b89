package forum

import (
	"strings"
	"unicode/utf8"

	"github.com/notepid/twilight_forum/internal/domain"
)

const (
	MaxTopicRunes   = 63
	MaxTitleRunes   = 63
	MaxMessageRunes = 1023
	MaxQueryRunes   = 100

	// notificationExcerptRunes bounds the message text copied into a notification.
	notificationExcerptRunes = 100
)

func validLength(s string, max int) bool {
	n := utf8.RuneCountInString(s)
	return n > 0 && n <= max
}

// ValidateTopic checks an area topic.
func ValidateTopic(topic string) error {
	if !validLength(topic, MaxTopicRunes) {
		return domain.Invalid("topic", "Invalid area topic: must be 1-63 characters")
	}
	return nil
}

// ValidateTitle checks a thread title.
func ValidateTitle(title string) error {
	if !validLength(title, MaxTitleRunes) {
		return domain.Invalid("title", "Invalid thread title: must be 1-63 characters")
	}
	return nil
}

// ValidateMessage checks message text.
func ValidateMessage(text string) error {
	if !validLength(text, MaxMessageRunes) {
		return domain.Invalid("message", "Invalid message: must be 1-1023 characters")
	}
	return nil
}

func validateQuery(query string) (string, error) {
	q := strings.TrimSpace(query)
	if !validLength(q, MaxQueryRunes) {
		return "", domain.Invalid("query", "must be 1-100 characters")
	}
	return q, nil
}

// likePattern builds a substring LIKE pattern with wildcards in s escaped.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

func excerpt(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}
