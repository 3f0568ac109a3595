package chat

import (
	"strings"

	"github.com/eunoia-health/eunoia/backend/internal/model/chat"
)

// ValidationError lists the request fields that were missing or invalid.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "missing required fields: " + strings.Join(e.Fields, ", ")
}

func validateMessage(message chat.Message) error {
	var missing []string
	if message.SessionID == "" {
		missing = append(missing, "sessionId")
	}
	if message.UserID == 0 {
		missing = append(missing, "userId")
	}
	if message.Content == "" {
		missing = append(missing, "content")
	}
	if message.Sender == "" {
		missing = append(missing, "sender")
	}
	if len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}
	return nil
}
