package chat

import "time"

// SessionStatus tracks the lifecycle of a conversation.
type SessionStatus string

const (
	StatusActive SessionStatus = "active"
	StatusEnded  SessionStatus = "ended"
)

// MoodAnalysis summarises the emotional tone of a whole session.
type MoodAnalysis struct {
	OverallSentiment float64  `json:"overall_sentiment" bson:"overall_sentiment"`
	KeyTopics        []string `json:"key_topics" bson:"key_topics"`
	CrisisIndicators []string `json:"crisis_indicators" bson:"crisis_indicators"`
}

// Session captures one conversation between a user and the assistant.
type Session struct {
	SessionID    string        `json:"sessionId"`
	UserID       int64         `json:"userId"`
	StartTime    time.Time     `json:"startTime"`
	LastActivity time.Time     `json:"lastActivity"`
	MessageCount int           `json:"messageCount"`
	Status       SessionStatus `json:"status"`
	Summary      string        `json:"summary,omitempty"`
	MoodAnalysis *MoodAnalysis `json:"mood_analysis,omitempty"`
}

// SessionUpdate lists the fields UpdateSession may overwrite. Nil fields are
// left untouched.
type SessionUpdate struct {
	UserID       *int64
	MessageCount *int
	Status       *SessionStatus
	Summary      *string
	MoodAnalysis *MoodAnalysis
}

// Apply merges the update into s.
func (u SessionUpdate) Apply(s *Session) {
	if u.UserID != nil {
		s.UserID = *u.UserID
	}
	if u.MessageCount != nil {
		s.MessageCount = *u.MessageCount
	}
	if u.Status != nil {
		s.Status = *u.Status
	}
	if u.Summary != nil {
		s.Summary = *u.Summary
	}
	if u.MoodAnalysis != nil {
		analysis := *u.MoodAnalysis
		s.MoodAnalysis = &analysis
	}
}
