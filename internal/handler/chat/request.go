package chat

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/eunoia-health/eunoia/backend/internal/model/chat"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// flexibleID accepts a user id sent either as a JSON number or a numeric string.
type flexibleID int64

func (id *flexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = 0
		return nil
	}

	raw := string(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
		if raw == "" {
			*id = 0
			return nil
		}
	}

	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("userId must be numeric: %q", raw)
	}
	*id = flexibleID(n)
	return nil
}

type saveMessageRequest struct {
	SessionID string                `json:"sessionId" validate:"required"`
	UserID    flexibleID            `json:"userId" validate:"required"`
	Content   string                `json:"content" validate:"required"`
	Sender    string                `json:"sender" validate:"required"`
	Timestamp string                `json:"timestamp"`
	Metadata  *chat.MessageMetadata `json:"metadata"`
}

func (p saveMessageRequest) toMessage() (chat.Message, error) {
	if p.UserID < 0 {
		return chat.Message{}, errors.New("userId must be positive")
	}

	sender, err := chat.ParseSender(p.Sender)
	if err != nil {
		return chat.Message{}, err
	}

	ts, err := parseTimestamp(strings.TrimSpace(p.Timestamp))
	if err != nil {
		return chat.Message{}, err
	}

	return chat.Message{
		SessionID: strings.TrimSpace(p.SessionID),
		UserID:    int64(p.UserID),
		Content:   p.Content,
		Sender:    sender,
		Timestamp: ts,
		Metadata:  p.Metadata,
	}, nil
}

type startSessionRequest struct {
	UserID flexibleID `json:"userId" validate:"required,gt=0"`
}

// validatePayload returns a client-facing message, or "" when payload is valid.
func validatePayload(payload any) string {
	err := validate.Struct(payload)
	if err == nil {
		return ""
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return "invalid request body"
	}

	var missing, invalid []string
	for _, fe := range fieldErrs {
		if fe.Tag() == "required" {
			missing = append(missing, fe.Field())
		} else {
			invalid = append(invalid, fe.Field())
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return "missing required fields: " + strings.Join(missing, ", ")
	}
	sort.Strings(invalid)
	return "invalid fields: " + strings.Join(invalid, ", ")
}
