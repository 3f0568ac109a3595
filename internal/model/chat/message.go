package chat

import (
	"fmt"
	"strings"
	"time"
)

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// legacySenderAna is the assistant's name as older web clients send it.
const legacySenderAna = "ana"

// ParseSender normalises a wire sender value.
func ParseSender(raw string) (Sender, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(SenderUser):
		return SenderUser, nil
	case string(SenderAssistant), legacySenderAna:
		return SenderAssistant, nil
	default:
		return "", fmt.Errorf("unknown sender %q", raw)
	}
}

// MessageMetadata carries the analysis attached to a single turn.
type MessageMetadata struct {
	MoodDetected     string  `json:"mood_detected,omitempty" bson:"mood_detected,omitempty"`
	SentimentScore   float64 `json:"sentiment_score" bson:"sentiment_score"`
	CrisisIndicators bool    `json:"crisis_indicators,omitempty" bson:"crisis_indicators,omitempty"`
	ResponseTimeMs   int64   `json:"response_time_ms,omitempty" bson:"response_time_ms,omitempty"`
}

// Message persists individual turns of a conversation. Messages are never
// modified after they are stored.
type Message struct {
	ID        string           `json:"id"`
	SessionID string           `json:"sessionId"`
	UserID    int64            `json:"userId"`
	Content   string           `json:"content"`
	Sender    Sender           `json:"sender"`
	Timestamp time.Time        `json:"timestamp"`
	Metadata  *MessageMetadata `json:"metadata,omitempty"`
}

// DailyStats aggregates one calendar day of a user's chat traffic.
type DailyStats struct {
	Date              string  `json:"date"`
	MessageCount      int     `json:"messageCount"`
	UserMessages      int     `json:"userMessages"`
	AssistantMessages int     `json:"assistantMessages"`
	AvgSentiment      float64 `json:"avgSentiment"`
}
