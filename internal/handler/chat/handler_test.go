package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/eunoia-health/eunoia/backend/internal/model/chat"
	chatservice "github.com/eunoia-health/eunoia/backend/internal/service/chat"
	"github.com/eunoia-health/eunoia/backend/internal/store"
	"github.com/eunoia-health/eunoia/backend/internal/store/memory"
)

func setupRouter() (*chi.Mux, *memory.Store) {
	repo := memory.New(nil)
	handler := New(chatservice.NewService(repo), nil)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, repo
}

func doJSON(t *testing.T, r http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		payload, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func decode(t *testing.T, resp *httptest.ResponseRecorder, into any) {
	t.Helper()
	if err := json.Unmarshal(resp.Body.Bytes(), into); err != nil {
		t.Fatalf("decode response %q: %v", resp.Body.String(), err)
	}
}

func TestSaveMessageTagsAndTracksSession(t *testing.T) {
	r, repo := setupRouter()

	resp := doJSON(t, r, http.MethodPost, "/chat/save-message", map[string]any{
		"sessionId": "s1",
		"userId":    7,
		"content":   "me siento mal",
		"sender":    "user",
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var body struct {
		Success   bool   `json:"success"`
		MessageID string `json:"messageId"`
	}
	decode(t, resp, &body)
	if !body.Success || body.MessageID == "" {
		t.Fatalf("unexpected body %+v", body)
	}

	messages, err := repo.GetMessages(context.Background(), "s1", 0)
	if err != nil || len(messages) != 1 {
		t.Fatalf("expected one stored message, got %d (%v)", len(messages), err)
	}
	meta := messages[0].Metadata
	if meta == nil || meta.MoodDetected != "negative" || meta.SentimentScore > -1 {
		t.Fatalf("unexpected metadata %+v", meta)
	}

	session, err := repo.GetSession(context.Background(), "s1")
	if err != nil {
		t.Fatalf("expected session s1: %v", err)
	}
	if session.UserID != 7 || session.Status != chat.StatusActive {
		t.Fatalf("unexpected session %+v", session)
	}
}

func TestSaveMessageAcceptsStringUserIDAndLegacySender(t *testing.T) {
	r, repo := setupRouter()

	resp := doJSON(t, r, http.MethodPost, "/chat/save-message", map[string]any{
		"sessionId": "s1",
		"userId":    "7",
		"content":   "Estoy aquí para escucharte.",
		"sender":    "ana",
		"timestamp": "2026-03-01T10:00:00Z",
		"metadata":  map[string]any{"mood_detected": "supportive", "sentiment_score": 0.8},
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	messages, _ := repo.GetMessages(context.Background(), "s1", 0)
	if len(messages) != 1 {
		t.Fatalf("expected one message, got %d", len(messages))
	}
	if messages[0].Sender != chat.SenderAssistant || messages[0].UserID != 7 {
		t.Fatalf("unexpected message %+v", messages[0])
	}
	if messages[0].Metadata.MoodDetected != "supportive" {
		t.Fatalf("client mood should be kept, got %q", messages[0].Metadata.MoodDetected)
	}
}

func TestSaveMessageMissingContent(t *testing.T) {
	r, repo := setupRouter()

	resp := doJSON(t, r, http.MethodPost, "/chat/save-message", map[string]any{
		"sessionId": "s1",
		"userId":    7,
		"sender":    "user",
	})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}

	var body map[string]string
	decode(t, resp, &body)
	if body["error"] != "missing required fields: content" {
		t.Fatalf("unexpected error %q", body["error"])
	}

	if messages, _ := repo.GetMessages(context.Background(), "s1", 0); len(messages) != 0 {
		t.Fatalf("expected nothing written, got %d messages", len(messages))
	}
	if sessions, _ := repo.ListSessions(context.Background(), 7, 0); len(sessions) != 0 {
		t.Fatalf("expected no sessions, got %d", len(sessions))
	}
}

func TestSaveMessageRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"invalid json":   `{"sessionId":`,
		"invalid sender": `{"sessionId":"s1","userId":7,"content":"hola","sender":"bot"}`,
		"text user id":   `{"sessionId":"s1","userId":"seven","content":"hola","sender":"user"}`,
		"bad timestamp":  `{"sessionId":"s1","userId":7,"content":"hola","sender":"user","timestamp":"ayer"}`,
		"missing all":    `{}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			r, _ := setupRouter()
			resp := doJSON(t, r, http.MethodPost, "/chat/save-message", body)
			if resp.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", resp.Code, resp.Body.String())
			}
		})
	}
}

func TestHistory(t *testing.T) {
	r, _ := setupRouter()

	for _, content := range []string{"hola", "me siento mejor"} {
		resp := doJSON(t, r, http.MethodPost, "/chat/save-message", map[string]any{
			"sessionId": "s1", "userId": 7, "content": content, "sender": "user",
		})
		if resp.Code != http.StatusOK {
			t.Fatalf("save failed: %d", resp.Code)
		}
	}

	resp := doJSON(t, r, http.MethodGet, "/chat/history?userId=7", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var sessions struct {
		Sessions []chat.Session `json:"sessions"`
	}
	decode(t, resp, &sessions)
	if len(sessions.Sessions) != 1 || sessions.Sessions[0].SessionID != "s1" {
		t.Fatalf("unexpected sessions %+v", sessions.Sessions)
	}
	if sessions.Sessions[0].MessageCount != 2 {
		t.Fatalf("expected message count 2, got %d", sessions.Sessions[0].MessageCount)
	}

	resp = doJSON(t, r, http.MethodGet, "/chat/history?userId=7&sessionId=s1", nil)
	var messages struct {
		Messages []chat.Message `json:"messages"`
	}
	decode(t, resp, &messages)
	if len(messages.Messages) != 2 || messages.Messages[0].Content != "hola" {
		t.Fatalf("unexpected messages %+v", messages.Messages)
	}

	resp = doJSON(t, r, http.MethodGet, "/chat/history?userId=7&sessionId=unknown", nil)
	if resp.Code != http.StatusOK || !bytes.Contains(resp.Body.Bytes(), []byte(`"messages":[]`)) {
		t.Fatalf("expected empty messages, got %d %s", resp.Code, resp.Body.String())
	}
}

func TestHistoryRequiresUserID(t *testing.T) {
	r, _ := setupRouter()

	for _, target := range []string{"/chat/history", "/chat/history?userId=abc", "/chat/history?userId=-1"} {
		resp := doJSON(t, r, http.MethodGet, target, nil)
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", target, resp.Code)
		}
	}
}

func TestSessionLifecycle(t *testing.T) {
	r, _ := setupRouter()

	resp := doJSON(t, r, http.MethodPost, "/chat/sessions", map[string]any{"userId": 7})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var started struct {
		SessionID string `json:"sessionId"`
		Greeting  string `json:"greeting"`
	}
	decode(t, resp, &started)
	if started.SessionID == "" || started.Greeting == "" {
		t.Fatalf("unexpected start response %+v", started)
	}

	resp = doJSON(t, r, http.MethodPost, "/chat/sessions/"+started.SessionID+"/end", map[string]string{"summary": "breve"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var ended struct {
		Session chat.Session `json:"session"`
	}
	decode(t, resp, &ended)
	if ended.Session.Status != chat.StatusEnded || ended.Session.Summary != "breve" {
		t.Fatalf("unexpected ended session %+v", ended.Session)
	}

	resp = doJSON(t, r, http.MethodPost, "/chat/sessions/"+started.SessionID+"/end", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("ending twice should succeed, got %d", resp.Code)
	}

	resp = doJSON(t, r, http.MethodPost, "/chat/sessions/missing/end", nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}

	resp = doJSON(t, r, http.MethodGet, "/users/7/activity", nil)
	var activity struct {
		Activities []chat.Activity `json:"activities"`
	}
	decode(t, resp, &activity)
	if len(activity.Activities) != 2 || activity.Activities[0].ActivityType != chat.ActivityChatEnd {
		t.Fatalf("unexpected activity %+v", activity.Activities)
	}
}

func TestStartSessionRequiresUser(t *testing.T) {
	r, _ := setupRouter()

	resp := doJSON(t, r, http.MethodPost, "/chat/sessions", `{}`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestAnalytics(t *testing.T) {
	r, _ := setupRouter()

	resp := doJSON(t, r, http.MethodPost, "/chat/save-message", map[string]any{
		"sessionId": "s1", "userId": 7, "content": "feliz", "sender": "user",
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("save failed: %d", resp.Code)
	}

	resp = doJSON(t, r, http.MethodGet, "/chat/analytics?userId=7&days=7", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var body struct {
		Days []chat.DailyStats `json:"days"`
	}
	decode(t, resp, &body)
	if len(body.Days) != 1 || body.Days[0].UserMessages != 1 {
		t.Fatalf("unexpected analytics %+v", body.Days)
	}

	resp = doJSON(t, r, http.MethodGet, "/chat/analytics?userId=7&days=zero", nil)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

type unreachableRepo struct {
	*memory.Store
}

var errUnreachable = errors.New("dial tcp 10.0.0.5:27017: connection refused")

func (unreachableRepo) SaveMessage(context.Context, chat.Message) (string, error) {
	return "", store.WrapStorage("insert message", errUnreachable)
}

func (unreachableRepo) ListSessions(context.Context, int64, int) ([]chat.Session, error) {
	return nil, store.WrapStorage("list sessions", errUnreachable)
}

func (unreachableRepo) GetMessages(context.Context, string, int) ([]chat.Message, error) {
	return nil, store.WrapStorage("find messages", errUnreachable)
}

func TestStorageFailureHidesDetails(t *testing.T) {
	handler := New(chatservice.NewService(unreachableRepo{memory.New(nil)}), nil)
	r := chi.NewRouter()
	handler.RegisterRoutes(r)

	cases := []struct {
		name   string
		method string
		target string
		body   any
	}{
		{
			name:   "save message",
			method: http.MethodPost,
			target: "/chat/save-message",
			body:   map[string]any{"sessionId": "s1", "userId": 7, "content": "hola", "sender": "user"},
		},
		{name: "sessions", method: http.MethodGet, target: "/chat/history?userId=7"},
		{name: "transcript", method: http.MethodGet, target: "/chat/history?userId=7&sessionId=s1"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := doJSON(t, r, tc.method, tc.target, tc.body)
			if resp.Code != http.StatusInternalServerError {
				t.Fatalf("expected 500, got %d: %s", resp.Code, resp.Body.String())
			}
			if strings.Contains(resp.Body.String(), "connection refused") || strings.Contains(resp.Body.String(), "10.0.0.5") {
				t.Fatalf("storage detail leaked: %s", resp.Body.String())
			}

			var body map[string]string
			decode(t, resp, &body)
			if len(body) != 1 || body["error"] != "Internal server error" {
				t.Fatalf("unexpected body %v", body)
			}
		})
	}
}
