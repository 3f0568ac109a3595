// Package memory keeps chat state in process memory. It backs tests and
// local runs without a document database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eunoia-health/eunoia/backend/internal/model/chat"
	"github.com/eunoia-health/eunoia/backend/internal/store"
)

// Store implements store.Repository with maps guarded by one lock.
type Store struct {
	mu         sync.RWMutex
	sessions   map[string]chat.Session
	messages   map[string][]chat.Message
	activities map[int64][]chat.Activity
	now        func() time.Time
}

var _ store.Repository = (*Store)(nil)

// New returns an empty Store. now may be nil.
func New(now func() time.Time) *Store {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Store{
		sessions:   make(map[string]chat.Session),
		messages:   make(map[string][]chat.Message),
		activities: make(map[int64][]chat.Activity),
		now:        now,
	}
}

// SaveMessage appends a message to its session's log.
func (s *Store) SaveMessage(_ context.Context, message chat.Message) (string, error) {
	if err := store.ValidateMessage(message); err != nil {
		return "", err
	}

	message.ID = uuid.NewString()
	if message.Timestamp.IsZero() {
		message.Timestamp = s.now()
	}
	if message.Metadata != nil {
		meta := *message.Metadata
		message.Metadata = &meta
	}

	s.mu.Lock()
	s.messages[message.SessionID] = append(s.messages[message.SessionID], message)
	s.mu.Unlock()

	return message.ID, nil
}

// GetMessages returns up to limit messages oldest first.
func (s *Store) GetMessages(_ context.Context, sessionID string, limit int) ([]chat.Message, error) {
	limit = store.NormalizeLimit(limit, store.DefaultMessageLimit)

	messages := s.sortedMessages(sessionID)
	if len(messages) > limit {
		messages = messages[:limit]
	}
	return messages, nil
}

// ScanMessages visits every message of the session oldest first.
func (s *Store) ScanMessages(ctx context.Context, sessionID string, fn func(chat.Message) error) error {
	for _, message := range s.sortedMessages(sessionID) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(message); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) sortedMessages(sessionID string) []chat.Message {
	s.mu.RLock()
	copied := make([]chat.Message, len(s.messages[sessionID]))
	copy(copied, s.messages[sessionID])
	s.mu.RUnlock()

	sort.SliceStable(copied, func(i, j int) bool {
		return copied[i].Timestamp.Before(copied[j].Timestamp)
	})
	return copied
}

// CreateSession inserts a new session row.
func (s *Store) CreateSession(_ context.Context, session chat.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[session.SessionID]; ok {
		return store.ErrDuplicateSession
	}
	s.sessions[session.SessionID] = cloneSession(session)
	return nil
}

// UpdateSession merges update into an existing row and refreshes its activity.
func (s *Store) UpdateSession(_ context.Context, sessionID string, update chat.SessionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return store.ErrSessionNotFound
	}
	update.Apply(&session)
	session.LastActivity = s.now()
	s.sessions[sessionID] = session
	return nil
}

// EndSession marks a session ended. Ending twice is a no-op success apart
// from the refreshed activity time.
func (s *Store) EndSession(_ context.Context, sessionID string, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return store.ErrSessionNotFound
	}
	session.Status = chat.StatusEnded
	session.LastActivity = s.now()
	if summary != "" {
		session.Summary = summary
	}
	s.sessions[sessionID] = session
	return nil
}

// CloseSession ends an active session under the lock, honouring the idle
// cutoff when one is given.
func (s *Store) CloseSession(_ context.Context, sessionID string, final store.SessionClose) (chat.Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return chat.Session{}, false, store.ErrSessionNotFound
	}
	if session.Status != chat.StatusActive {
		return cloneSession(session), false, nil
	}
	if !final.IdleBefore.IsZero() && !session.LastActivity.Before(final.IdleBefore) {
		return cloneSession(session), false, nil
	}

	session.Status = chat.StatusEnded
	session.LastActivity = s.now()
	if final.Summary != "" {
		session.Summary = final.Summary
	}
	if final.MoodAnalysis != nil {
		session.MoodAnalysis = final.MoodAnalysis
	}
	s.sessions[sessionID] = cloneSession(session)
	return cloneSession(session), true, nil
}

// TouchSession creates or refreshes a session under a single lock.
func (s *Store) TouchSession(_ context.Context, sessionID string, userID int64, at time.Time) (chat.Session, bool, error) {
	if at.IsZero() {
		at = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		session = chat.Session{
			SessionID:    sessionID,
			UserID:       userID,
			StartTime:    at,
			LastActivity: at,
			MessageCount: 1,
			Status:       chat.StatusActive,
		}
		s.sessions[sessionID] = session
		return cloneSession(session), true, nil
	}

	session.UserID = userID
	session.LastActivity = at
	session.MessageCount++
	session.Status = chat.StatusActive
	s.sessions[sessionID] = session
	return cloneSession(session), false, nil
}

// GetSession retrieves a session by identifier.
func (s *Store) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return chat.Session{}, store.ErrSessionNotFound
	}
	return cloneSession(session), nil
}

// ListSessions returns a user's sessions, most recently active first.
func (s *Store) ListSessions(_ context.Context, userID int64, limit int) ([]chat.Session, error) {
	limit = store.NormalizeLimit(limit, store.DefaultSessionLimit)

	s.mu.RLock()
	sessions := make([]chat.Session, 0)
	for _, session := range s.sessions {
		if session.UserID == userID {
			sessions = append(sessions, cloneSession(session))
		}
	}
	s.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].LastActivity.Equal(sessions[j].LastActivity) {
			return sessions[i].SessionID < sessions[j].SessionID
		}
		return sessions[i].LastActivity.After(sessions[j].LastActivity)
	})
	if len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

// ListIdleSessions returns active sessions last touched before the cutoff,
// oldest first.
func (s *Store) ListIdleSessions(_ context.Context, before time.Time, limit int) ([]chat.Session, error) {
	limit = store.NormalizeLimit(limit, store.DefaultMessageLimit)

	s.mu.RLock()
	idle := make([]chat.Session, 0)
	for _, session := range s.sessions {
		if session.Status == chat.StatusActive && session.LastActivity.Before(before) {
			idle = append(idle, cloneSession(session))
		}
	}
	s.mu.RUnlock()

	sort.Slice(idle, func(i, j int) bool {
		return idle[i].LastActivity.Before(idle[j].LastActivity)
	})
	if len(idle) > limit {
		idle = idle[:limit]
	}
	return idle, nil
}

// LogActivity appends an audit record stamped with the current time.
func (s *Store) LogActivity(_ context.Context, activity chat.Activity) (string, error) {
	activity.ID = uuid.NewString()
	activity.Timestamp = s.now()

	s.mu.Lock()
	s.activities[activity.UserID] = append(s.activities[activity.UserID], activity)
	s.mu.Unlock()

	return activity.ID, nil
}

// ListActivity returns a user's audit trail, newest first.
func (s *Store) ListActivity(_ context.Context, userID int64, limit int) ([]chat.Activity, error) {
	limit = store.NormalizeLimit(limit, store.DefaultActivityLimit)

	s.mu.RLock()
	records := s.activities[userID]
	result := make([]chat.Activity, 0, min(len(records), limit))
	for i := len(records) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, records[i])
	}
	s.mu.RUnlock()

	return result, nil
}

// DailyAnalytics groups a user's messages since the given time by UTC day.
func (s *Store) DailyAnalytics(_ context.Context, userID int64, since time.Time) ([]chat.DailyStats, error) {
	type bucket struct {
		stats    chat.DailyStats
		scoreSum float64
		scored   int
	}
	buckets := make(map[string]*bucket)

	s.mu.RLock()
	for _, messages := range s.messages {
		for _, message := range messages {
			if message.UserID != userID || message.Timestamp.Before(since) {
				continue
			}
			day := message.Timestamp.UTC().Format(time.DateOnly)
			b, ok := buckets[day]
			if !ok {
				b = &bucket{stats: chat.DailyStats{Date: day}}
				buckets[day] = b
			}
			b.stats.MessageCount++
			switch message.Sender {
			case chat.SenderUser:
				b.stats.UserMessages++
			case chat.SenderAssistant:
				b.stats.AssistantMessages++
			}
			if message.Metadata != nil {
				b.scoreSum += message.Metadata.SentimentScore
				b.scored++
			}
		}
	}
	s.mu.RUnlock()

	days := make([]chat.DailyStats, 0, len(buckets))
	for _, b := range buckets {
		if b.scored > 0 {
			b.stats.AvgSentiment = b.scoreSum / float64(b.scored)
		}
		days = append(days, b.stats)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })
	return days, nil
}

// Close is a no-op.
func (s *Store) Close(context.Context) error {
	return nil
}

func cloneSession(session chat.Session) chat.Session {
	if session.MoodAnalysis != nil {
		analysis := *session.MoodAnalysis
		analysis.KeyTopics = append([]string(nil), analysis.KeyTopics...)
		analysis.CrisisIndicators = append([]string(nil), analysis.CrisisIndicators...)
		session.MoodAnalysis = &analysis
	}
	return session
}
