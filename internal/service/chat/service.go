package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eunoia-health/eunoia/backend/internal/directory"
	"github.com/eunoia-health/eunoia/backend/internal/model/chat"
	"github.com/eunoia-health/eunoia/backend/internal/service/assistant"
	"github.com/eunoia-health/eunoia/backend/internal/store"
)

var (
	ErrSessionNotFound = store.ErrSessionNotFound
	ErrUserNotFound    = directory.ErrUserNotFound
)

const defaultAnalyticsDays = 30

// HistoryCache caches the per-user session list. Entries are keyed by a
// generation that Invalidate advances, so a list read before a write can
// never be served after it.
type HistoryCache interface {
	Generation(ctx context.Context, userID int64) (int64, error)
	GetSessions(ctx context.Context, userID, gen int64) ([]chat.Session, bool, error)
	SetSessions(ctx context.Context, userID, gen int64, sessions []chat.Session) error
	Invalidate(ctx context.Context, userID int64) error
}

// UserDirectory resolves platform users.
type UserDirectory interface {
	FindActive(ctx context.Context, id int64) (directory.User, error)
}

// Service runs the chat persistence pipeline on top of a repository.
type Service struct {
	repo   store.Repository
	cache  HistoryCache
	users  UserDirectory
	logger *zap.Logger
	now    func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithCache enables history caching.
func WithCache(cache HistoryCache) Option {
	return func(s *Service) { s.cache = cache }
}

// WithDirectory enables user lookups for greetings.
func WithDirectory(users UserDirectory) Option {
	return func(s *Service) { s.users = users }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires the pipeline around repo.
func NewService(repo store.Repository, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		logger: zap.NewNop(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SaveResult reports what SaveMessage wrote.
type SaveResult struct {
	MessageID      string
	Session        chat.Session
	SessionCreated bool
}

// SaveMessage validates and stores one turn, then records the session
// activity with a single atomic upsert.
func (s *Service) SaveMessage(ctx context.Context, message chat.Message) (SaveResult, error) {
	if err := validateMessage(message); err != nil {
		return SaveResult{}, err
	}

	annotate(&message)
	if message.Timestamp.IsZero() {
		message.Timestamp = s.now()
	}

	messageID, err := s.repo.SaveMessage(ctx, message)
	if err != nil {
		return SaveResult{}, fmt.Errorf("save message: %w", err)
	}

	if message.Metadata != nil && message.Metadata.CrisisIndicators {
		s.logger.Warn("crisis indicators detected",
			zap.String("session_id", message.SessionID),
			zap.Int64("user_id", message.UserID),
			zap.String("message_id", messageID))
	}

	session, created, err := s.repo.TouchSession(ctx, message.SessionID, message.UserID, s.now())
	if err != nil {
		return SaveResult{}, fmt.Errorf("touch session: %w", err)
	}

	if created {
		s.logActivity(ctx, chat.Activity{
			UserID:       message.UserID,
			ActivityType: chat.ActivityChatStart,
			Details:      map[string]any{"sessionId": message.SessionID},
		})
	}
	s.invalidate(ctx, message.UserID)

	return SaveResult{MessageID: messageID, Session: session, SessionCreated: created}, nil
}

// Messages returns a session's transcript, oldest first.
func (s *Service) Messages(ctx context.Context, sessionID string) ([]chat.Message, error) {
	messages, err := s.repo.GetMessages(ctx, sessionID, store.DefaultMessageLimit)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	return messages, nil
}

// Sessions returns a user's most recently active sessions.
func (s *Service) Sessions(ctx context.Context, userID int64) ([]chat.Session, error) {
	gen, cacheable := s.generation(ctx, userID)
	if cacheable {
		cached, ok, err := s.cache.GetSessions(ctx, userID, gen)
		if err != nil {
			s.logger.Warn("history cache read failed", zap.Int64("user_id", userID), zap.Error(err))
		} else if ok {
			return cached, nil
		}
	}

	sessions, err := s.repo.ListSessions(ctx, userID, store.DefaultSessionLimit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	if cacheable {
		if err := s.cache.SetSessions(ctx, userID, gen, sessions); err != nil {
			s.logger.Warn("history cache write failed", zap.Int64("user_id", userID), zap.Error(err))
		}
	}
	return sessions, nil
}

// generation must be read before the repository so a concurrent write moves
// the entry this call fills out of reach.
func (s *Service) generation(ctx context.Context, userID int64) (int64, bool) {
	if s.cache == nil {
		return 0, false
	}
	gen, err := s.cache.Generation(ctx, userID)
	if err != nil {
		s.logger.Warn("history cache generation read failed", zap.Int64("user_id", userID), zap.Error(err))
		return 0, false
	}
	return gen, true
}

// ClientInfo describes the caller for the audit trail.
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

// StartResult is returned by StartSession.
type StartResult struct {
	Session  chat.Session
	Greeting string
}

// StartSession issues a new session id for the user and records the start.
func (s *Service) StartSession(ctx context.Context, userID int64, client ClientInfo) (StartResult, error) {
	if userID <= 0 {
		return StartResult{}, &ValidationError{Fields: []string{"userId"}}
	}

	firstName := ""
	if s.users != nil {
		user, err := s.users.FindActive(ctx, userID)
		if err != nil {
			return StartResult{}, err
		}
		firstName = user.FirstName
	}

	now := s.now()
	session := chat.Session{
		UserID:       userID,
		StartTime:    now,
		LastActivity: now,
		Status:       chat.StatusActive,
	}

	var err error
	for attempt := 0; attempt < 2; attempt++ {
		session.SessionID = NewSessionID(now)
		err = s.repo.CreateSession(ctx, session)
		if !errors.Is(err, store.ErrDuplicateSession) {
			break
		}
	}
	if err != nil {
		return StartResult{}, fmt.Errorf("create session: %w", err)
	}

	s.logActivity(ctx, chat.Activity{
		UserID:       userID,
		ActivityType: chat.ActivityChatStart,
		Details:      map[string]any{"sessionId": session.SessionID},
		IPAddress:    client.IPAddress,
		UserAgent:    client.UserAgent,
	})
	s.invalidate(ctx, userID)

	return StartResult{Session: session, Greeting: assistant.Greeting(firstName)}, nil
}

// EndSession closes a session, attaching a mood analysis of its messages.
// Ending an already ended session returns it unchanged.
func (s *Service) EndSession(ctx context.Context, sessionID, summary string) (chat.Session, error) {
	session, _, err := s.closeSession(ctx, sessionID, strings.TrimSpace(summary), time.Time{})
	return session, err
}

// closeSession analyses the whole transcript and ends the session in one
// conditional write. closed is false when the session was already ended or,
// with a non-zero idleBefore, was active again by the time of the write.
func (s *Service) closeSession(ctx context.Context, sessionID, summary string, idleBefore time.Time) (chat.Session, bool, error) {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return chat.Session{}, false, fmt.Errorf("get session: %w", err)
	}
	if session.Status == chat.StatusEnded {
		return session, false, nil
	}

	var mood moodAccumulator
	err = s.repo.ScanMessages(ctx, sessionID, func(message chat.Message) error {
		mood.Add(message)
		return nil
	})
	if err != nil {
		return chat.Session{}, false, fmt.Errorf("scan messages: %w", err)
	}

	session, closed, err := s.repo.CloseSession(ctx, sessionID, store.SessionClose{
		Summary:      summary,
		MoodAnalysis: mood.Result(),
		IdleBefore:   idleBefore,
	})
	if err != nil {
		return chat.Session{}, false, fmt.Errorf("close session: %w", err)
	}
	if !closed {
		return session, false, nil
	}

	s.logActivity(ctx, chat.Activity{
		UserID:       session.UserID,
		ActivityType: chat.ActivityChatEnd,
		Details: map[string]any{
			"sessionId":    sessionID,
			"messageCount": session.MessageCount,
		},
	})
	s.invalidate(ctx, session.UserID)

	return session, true, nil
}

// Activity returns the user's audit trail, newest first.
func (s *Service) Activity(ctx context.Context, userID int64, limit int) ([]chat.Activity, error) {
	activities, err := s.repo.ListActivity(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	return activities, nil
}

// Analytics returns per-day message statistics for the last days days.
func (s *Service) Analytics(ctx context.Context, userID int64, days int) ([]chat.DailyStats, error) {
	if days <= 0 {
		days = defaultAnalyticsDays
	}
	since := s.now().AddDate(0, 0, -days)

	stats, err := s.repo.DailyAnalytics(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("daily analytics: %w", err)
	}
	return stats, nil
}

// ReapIdle ends every active session idle for longer than idleFor. A session
// touched between the listing and the close is left active.
func (s *Service) ReapIdle(ctx context.Context, idleFor time.Duration) (int, error) {
	cutoff := s.now().Add(-idleFor)
	idle, err := s.repo.ListIdleSessions(ctx, cutoff, 0)
	if err != nil {
		return 0, fmt.Errorf("list idle sessions: %w", err)
	}

	var (
		ended int
		errs  []error
	)
	for _, session := range idle {
		_, closed, err := s.closeSession(ctx, session.SessionID, "", cutoff)
		if err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", session.SessionID, err))
			continue
		}
		if closed {
			ended++
		}
	}
	return ended, errors.Join(errs...)
}

func (s *Service) logActivity(ctx context.Context, activity chat.Activity) {
	if _, err := s.repo.LogActivity(ctx, activity); err != nil {
		s.logger.Error("failed to log user activity",
			zap.Int64("user_id", activity.UserID),
			zap.String("activity", string(activity.ActivityType)),
			zap.Error(err))
	}
}

func (s *Service) invalidate(ctx context.Context, userID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		s.logger.Warn("history cache invalidation failed", zap.Int64("user_id", userID), zap.Error(err))
	}
}

// NewSessionID builds a session id of the form session_<unix ms>_<9 chars>.
func NewSessionID(at time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("session_%d_%s", at.UnixMilli(), suffix)
}
