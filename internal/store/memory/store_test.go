package memory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eunoia-health/eunoia/backend/internal/model/chat"
	"github.com/eunoia-health/eunoia/backend/internal/store"
	"github.com/eunoia-health/eunoia/backend/internal/store/memory"
)

var base = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func fixedClock() func() time.Time {
	return func() time.Time { return base }
}

func TestGetMessagesEmptySession(t *testing.T) {
	s := memory.New(nil)

	messages, err := s.GetMessages(context.Background(), "missing", 0)
	require.NoError(t, err)
	assert.NotNil(t, messages)
	assert.Empty(t, messages)
}

func TestGetMessagesOrderAndLimit(t *testing.T) {
	s := memory.New(nil)
	ctx := context.Background()

	// Saved out of order on purpose.
	for _, offset := range []int{2, 0, 1, 1} {
		_, err := s.SaveMessage(ctx, chat.Message{
			SessionID: "s1",
			UserID:    7,
			Content:   "m",
			Sender:    chat.SenderUser,
			Timestamp: base.Add(time.Duration(offset) * time.Second),
		})
		require.NoError(t, err)
	}

	messages, err := s.GetMessages(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, messages, 4)
	for i := 1; i < len(messages); i++ {
		assert.False(t, messages[i].Timestamp.Before(messages[i-1].Timestamp))
	}

	limited, err := s.GetMessages(ctx, "s1", 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, base, limited[0].Timestamp)
}

func TestSequentialSavesKeepOrder(t *testing.T) {
	s := memory.New(nil)
	ctx := context.Background()

	firstID, err := s.SaveMessage(ctx, chat.Message{SessionID: "s1", UserID: 7, Content: "uno", Sender: chat.SenderUser, Timestamp: base})
	require.NoError(t, err)
	secondID, err := s.SaveMessage(ctx, chat.Message{SessionID: "s1", UserID: 7, Content: "dos", Sender: chat.SenderAssistant, Timestamp: base.Add(time.Millisecond)})
	require.NoError(t, err)

	messages, err := s.GetMessages(ctx, "s1", 100)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, firstID, messages[0].ID)
	assert.Equal(t, secondID, messages[1].ID)
}

func TestSaveMessageValidation(t *testing.T) {
	s := memory.New(nil)
	ctx := context.Background()

	_, err := s.SaveMessage(ctx, chat.Message{UserID: 7, Sender: chat.SenderUser})
	assert.ErrorIs(t, err, store.ErrInvalidMessage)

	// Empty content is accepted at the storage layer.
	id, err := s.SaveMessage(ctx, chat.Message{SessionID: "s1", UserID: 7, Sender: chat.SenderUser})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestCreateSessionDuplicate(t *testing.T) {
	s := memory.New(fixedClock())
	ctx := context.Background()

	session := chat.Session{SessionID: "s1", UserID: 7, Status: chat.StatusActive, StartTime: base, LastActivity: base}
	require.NoError(t, s.CreateSession(ctx, session))
	assert.ErrorIs(t, s.CreateSession(ctx, session), store.ErrDuplicateSession)
}

func TestUpdateSessionMergesAndRefreshes(t *testing.T) {
	now := base
	s := memory.New(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, s.CreateSession(ctx, chat.Session{SessionID: "s1", UserID: 7, Status: chat.StatusActive, StartTime: base, LastActivity: base}))

	now = base.Add(time.Minute)
	count := 5
	require.NoError(t, s.UpdateSession(ctx, "s1", chat.SessionUpdate{MessageCount: &count}))

	got, err := s.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 5, got.MessageCount)
	assert.Equal(t, int64(7), got.UserID)
	assert.Equal(t, now, got.LastActivity)

	assert.ErrorIs(t, s.UpdateSession(ctx, "missing", chat.SessionUpdate{}), store.ErrSessionNotFound)
}

func TestEndSessionIdempotent(t *testing.T) {
	s := memory.New(fixedClock())
	ctx := context.Background()

	require.NoError(t, s.CreateSession(ctx, chat.Session{SessionID: "s1", UserID: 7, Status: chat.StatusActive}))
	require.NoError(t, s.EndSession(ctx, "s1", "resumen"))
	require.NoError(t, s.EndSession(ctx, "s1", ""))

	got, err := s.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, chat.StatusEnded, got.Status)
	assert.Equal(t, "resumen", got.Summary)

	assert.ErrorIs(t, s.EndSession(ctx, "missing", ""), store.ErrSessionNotFound)
}

func TestTouchSessionConcurrentFirstMessages(t *testing.T) {
	s := memory.New(fixedClock())
	ctx := context.Background()

	const writers = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, isNew, err := s.TouchSession(ctx, "fresh", 7, base)
			assert.NoError(t, err)
			if isNew {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	got, err := s.GetSession(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, writers, got.MessageCount)
	assert.Equal(t, chat.StatusActive, got.Status)
}

func TestTouchSessionReactivatesEnded(t *testing.T) {
	s := memory.New(fixedClock())
	ctx := context.Background()

	_, _, err := s.TouchSession(ctx, "s1", 7, base)
	require.NoError(t, err)
	require.NoError(t, s.EndSession(ctx, "s1", ""))

	session, created, err := s.TouchSession(ctx, "s1", 7, base.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, chat.StatusActive, session.Status)
	assert.Equal(t, 2, session.MessageCount)
}

func TestListSessionsNewestFirst(t *testing.T) {
	s := memory.New(fixedClock())
	ctx := context.Background()

	for i, id := range []string{"a", "b", "c"} {
		_, _, err := s.TouchSession(ctx, id, 7, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
	}
	_, _, err := s.TouchSession(ctx, "other", 8, base)
	require.NoError(t, err)

	sessions, err := s.ListSessions(ctx, 7, 2)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "c", sessions[0].SessionID)
	assert.Equal(t, "b", sessions[1].SessionID)
}

func TestListIdleSessions(t *testing.T) {
	s := memory.New(fixedClock())
	ctx := context.Background()

	_, _, _ = s.TouchSession(ctx, "old", 7, base.Add(-time.Hour))
	_, _, _ = s.TouchSession(ctx, "recent", 7, base)
	_, _, _ = s.TouchSession(ctx, "ended", 7, base.Add(-2*time.Hour))
	require.NoError(t, s.EndSession(ctx, "ended", ""))

	idle, err := s.ListIdleSessions(ctx, base.Add(-30*time.Minute), 0)
	require.NoError(t, err)
	require.Len(t, idle, 1)
	assert.Equal(t, "old", idle[0].SessionID)
}

func TestActivityNewestFirst(t *testing.T) {
	now := base
	s := memory.New(func() time.Time { return now })
	ctx := context.Background()

	_, err := s.LogActivity(ctx, chat.Activity{UserID: 7, ActivityType: chat.ActivityChatStart})
	require.NoError(t, err)
	now = base.Add(time.Minute)
	_, err = s.LogActivity(ctx, chat.Activity{UserID: 7, ActivityType: chat.ActivityChatEnd})
	require.NoError(t, err)

	records, err := s.ListActivity(ctx, 7, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, chat.ActivityChatEnd, records[0].ActivityType)
	assert.Equal(t, now, records[0].Timestamp)
}

func TestDailyAnalytics(t *testing.T) {
	s := memory.New(nil)
	ctx := context.Background()

	save := func(at time.Time, sender chat.Sender, score float64) {
		_, err := s.SaveMessage(ctx, chat.Message{
			SessionID: "s1", UserID: 7, Content: "x", Sender: sender, Timestamp: at,
			Metadata: &chat.MessageMetadata{SentimentScore: score},
		})
		require.NoError(t, err)
	}
	save(base, chat.SenderUser, -1)
	save(base.Add(time.Second), chat.SenderAssistant, 0.8)
	save(base.Add(24*time.Hour), chat.SenderUser, 1)
	save(base.Add(-48*time.Hour), chat.SenderUser, 1)

	days, err := s.DailyAnalytics(ctx, 7, base.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, days, 2)
	assert.Equal(t, "2026-03-01", days[0].Date)
	assert.Equal(t, 2, days[0].MessageCount)
	assert.Equal(t, 1, days[0].UserMessages)
	assert.Equal(t, 1, days[0].AssistantMessages)
	assert.InDelta(t, -0.1, days[0].AvgSentiment, 1e-9)
	assert.Equal(t, "2026-03-02", days[1].Date)
}

func TestScanMessagesVisitsEveryMessage(t *testing.T) {
	s := memory.New(nil)
	ctx := context.Background()

	for i := 0; i < store.DefaultMessageLimit+50; i++ {
		_, err := s.SaveMessage(ctx, chat.Message{
			SessionID: "s1",
			UserID:    7,
			Content:   "m",
			Sender:    chat.SenderUser,
			Timestamp: base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	var seen []chat.Message
	err := s.ScanMessages(ctx, "s1", func(m chat.Message) error {
		seen = append(seen, m)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, seen, store.DefaultMessageLimit+50)
	assert.Equal(t, base, seen[0].Timestamp)
	assert.Equal(t, base.Add(149*time.Second), seen[len(seen)-1].Timestamp)
}

func TestCloseSession(t *testing.T) {
	ctx := context.Background()
	later := base.Add(time.Hour)
	s := memory.New(func() time.Time { return later })

	require.NoError(t, s.CreateSession(ctx, chat.Session{
		SessionID: "s1", UserID: 7, StartTime: base, LastActivity: base, Status: chat.StatusActive,
	}))

	_, _, err := s.CloseSession(ctx, "missing", store.SessionClose{})
	assert.ErrorIs(t, err, store.ErrSessionNotFound)

	// Touched at the cutoff, so it is not idle yet.
	session, closed, err := s.CloseSession(ctx, "s1", store.SessionClose{IdleBefore: base})
	require.NoError(t, err)
	assert.False(t, closed)
	assert.Equal(t, chat.StatusActive, session.Status)

	mood := &chat.MoodAnalysis{OverallSentiment: 0.5, KeyTopics: []string{"trabajo"}}
	session, closed, err = s.CloseSession(ctx, "s1", store.SessionClose{
		Summary:      "listo",
		MoodAnalysis: mood,
		IdleBefore:   base.Add(time.Minute),
	})
	require.NoError(t, err)
	assert.True(t, closed)
	assert.Equal(t, chat.StatusEnded, session.Status)
	assert.Equal(t, later, session.LastActivity)
	assert.Equal(t, "listo", session.Summary)
	require.NotNil(t, session.MoodAnalysis)
	assert.Equal(t, 0.5, session.MoodAnalysis.OverallSentiment)

	session, closed, err = s.CloseSession(ctx, "s1", store.SessionClose{Summary: "otra vez"})
	require.NoError(t, err)
	assert.False(t, closed)
	assert.Equal(t, "listo", session.Summary)
}
