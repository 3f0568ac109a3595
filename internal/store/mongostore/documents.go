package mongostore

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/eunoia-health/eunoia/backend/internal/model/chat"
)

const (
	messagesCollection   = "chat_messages"
	sessionsCollection   = "chat_sessions"
	activitiesCollection = "user_activities"
)

type messageDoc struct {
	ID        primitive.ObjectID    `bson:"_id,omitempty"`
	SessionID string                `bson:"sessionId"`
	UserID    int64                 `bson:"userId"`
	Content   string                `bson:"content"`
	Sender    string                `bson:"sender"`
	Timestamp time.Time             `bson:"timestamp"`
	Metadata  *chat.MessageMetadata `bson:"metadata,omitempty"`
}

type sessionDoc struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	SessionID    string             `bson:"sessionId"`
	UserID       int64              `bson:"userId"`
	StartTime    time.Time          `bson:"startTime"`
	LastActivity time.Time          `bson:"lastActivity"`
	MessageCount int                `bson:"messageCount"`
	Status       string             `bson:"status"`
	Summary      string             `bson:"summary,omitempty"`
	MoodAnalysis *chat.MoodAnalysis `bson:"mood_analysis,omitempty"`
}

type activityDoc struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	UserID       int64              `bson:"userId"`
	ActivityType string             `bson:"activity_type"`
	Timestamp    time.Time          `bson:"timestamp"`
	Details      map[string]any     `bson:"details,omitempty"`
	IPAddress    string             `bson:"ip_address,omitempty"`
	UserAgent    string             `bson:"user_agent,omitempty"`
}

type dailyRow struct {
	ID struct {
		Date string `bson:"date"`
	} `bson:"_id"`
	MessageCount      int      `bson:"messageCount"`
	UserMessages      int      `bson:"userMessages"`
	AssistantMessages int      `bson:"assistantMessages"`
	AvgSentiment      *float64 `bson:"avgSentiment"`
}

func toMessageDoc(m chat.Message) messageDoc {
	return messageDoc{
		SessionID: m.SessionID,
		UserID:    m.UserID,
		Content:   m.Content,
		Sender:    string(m.Sender),
		Timestamp: m.Timestamp,
		Metadata:  m.Metadata,
	}
}

func (d messageDoc) toMessage() chat.Message {
	return chat.Message{
		ID:        d.ID.Hex(),
		SessionID: d.SessionID,
		UserID:    d.UserID,
		Content:   d.Content,
		Sender:    chat.Sender(d.Sender),
		Timestamp: d.Timestamp.UTC(),
		Metadata:  d.Metadata,
	}
}

func toSessionDoc(s chat.Session) sessionDoc {
	return sessionDoc{
		SessionID:    s.SessionID,
		UserID:       s.UserID,
		StartTime:    s.StartTime,
		LastActivity: s.LastActivity,
		MessageCount: s.MessageCount,
		Status:       string(s.Status),
		Summary:      s.Summary,
		MoodAnalysis: s.MoodAnalysis,
	}
}

func (d sessionDoc) toSession() chat.Session {
	return chat.Session{
		SessionID:    d.SessionID,
		UserID:       d.UserID,
		StartTime:    d.StartTime.UTC(),
		LastActivity: d.LastActivity.UTC(),
		MessageCount: d.MessageCount,
		Status:       chat.SessionStatus(d.Status),
		Summary:      d.Summary,
		MoodAnalysis: d.MoodAnalysis,
	}
}

func (d activityDoc) toActivity() chat.Activity {
	return chat.Activity{
		ID:           d.ID.Hex(),
		UserID:       d.UserID,
		ActivityType: chat.ActivityType(d.ActivityType),
		Timestamp:    d.Timestamp.UTC(),
		Details:      d.Details,
		IPAddress:    d.IPAddress,
		UserAgent:    d.UserAgent,
	}
}
