// Package store defines the persistence contracts for chat messages,
// sessions and the user activity audit trail.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eunoia-health/eunoia/backend/internal/model/chat"
)

// Default page sizes.
const (
	DefaultMessageLimit  = 100
	DefaultSessionLimit  = 10
	DefaultActivityLimit = 50
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrDuplicateSession = errors.New("session already exists")
	ErrInvalidMessage   = errors.New("message requires session id, user id and sender")
)

// StorageError reports a failure of the underlying database.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// WrapStorage wraps err as a StorageError unless it is nil or already one of
// the package's sentinel errors.
func WrapStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrDuplicateSession) || errors.Is(err, ErrInvalidMessage) {
		return err
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// MessageStore persists conversation turns.
type MessageStore interface {
	SaveMessage(ctx context.Context, message chat.Message) (string, error)
	// GetMessages returns a session's messages oldest first. An unknown
	// session yields an empty slice.
	GetMessages(ctx context.Context, sessionID string, limit int) ([]chat.Message, error)
	// ScanMessages calls fn for every message of a session, oldest first,
	// without a page cap. A non-nil error from fn stops the scan.
	ScanMessages(ctx context.Context, sessionID string, fn func(chat.Message) error) error
}

// SessionStore tracks one row per conversation.
type SessionStore interface {
	CreateSession(ctx context.Context, session chat.Session) error
	UpdateSession(ctx context.Context, sessionID string, update chat.SessionUpdate) error
	EndSession(ctx context.Context, sessionID string, summary string) error
	// TouchSession atomically creates the session with a message count of one
	// or increments the count and refreshes the last activity.
	TouchSession(ctx context.Context, sessionID string, userID int64, at time.Time) (chat.Session, bool, error)
	GetSession(ctx context.Context, sessionID string) (chat.Session, error)
	ListSessions(ctx context.Context, userID int64, limit int) ([]chat.Session, error)
	ListIdleSessions(ctx context.Context, before time.Time, limit int) ([]chat.Session, error)
	// CloseSession ends an active session in one conditional write. It
	// returns the resulting row and whether this call ended it; a session
	// that is already ended or no longer idle comes back unchanged.
	CloseSession(ctx context.Context, sessionID string, final SessionClose) (chat.Session, bool, error)
}

// ActivityStore appends to the user audit trail.
type ActivityStore interface {
	LogActivity(ctx context.Context, activity chat.Activity) (string, error)
	ListActivity(ctx context.Context, userID int64, limit int) ([]chat.Activity, error)
}

// AnalyticsStore aggregates message traffic.
type AnalyticsStore interface {
	DailyAnalytics(ctx context.Context, userID int64, since time.Time) ([]chat.DailyStats, error)
}

// Repository bundles every store the chat pipeline needs.
type Repository interface {
	MessageStore
	SessionStore
	ActivityStore
	AnalyticsStore
	Close(ctx context.Context) error
}

// SessionClose is the final state written by CloseSession.
type SessionClose struct {
	Summary      string
	MoodAnalysis *chat.MoodAnalysis
	// IdleBefore, when non-zero, closes the session only if its last
	// activity is still before this time.
	IdleBefore time.Time
}

// ValidateMessage checks the fields every stored message must carry. Empty
// content is allowed.
func ValidateMessage(message chat.Message) error {
	if message.SessionID == "" || message.UserID == 0 || message.Sender == "" {
		return ErrInvalidMessage
	}
	return nil
}

// NormalizeLimit substitutes fallback for non-positive limits.
func NormalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	return limit
}
