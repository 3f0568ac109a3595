package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/eunoia-health/eunoia/backend/internal/model/chat"
)

// APIError is a non-2xx answer from the chat API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("chat api: status %d", e.Status)
	}
	return fmt.Sprintf("chat api: status %d: %s", e.Status, e.Message)
}

// Temporary reports whether retrying the request may succeed.
func (e *APIError) Temporary() bool {
	return e.Status >= http.StatusInternalServerError || e.Status == http.StatusTooManyRequests
}

// StartedSession is the server's answer to a session start.
type StartedSession struct {
	SessionID string    `json:"sessionId"`
	StartTime time.Time `json:"startTime"`
	Greeting  string    `json:"greeting"`
}

// APIClient talks to the chat HTTP API.
type APIClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewAPIClient returns a client for the API rooted at baseURL, e.g.
// "http://localhost:8080/api".
func NewAPIClient(baseURL string, httpClient *http.Client) *APIClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &APIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// SaveMessage persists one message and returns its id.
func (c *APIClient) SaveMessage(ctx context.Context, message chat.Message) (string, error) {
	payload := map[string]any{
		"sessionId": message.SessionID,
		"userId":    message.UserID,
		"content":   message.Content,
		"sender":    message.Sender,
	}
	if !message.Timestamp.IsZero() {
		payload["timestamp"] = message.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	if message.Metadata != nil {
		payload["metadata"] = message.Metadata
	}

	var out struct {
		MessageID string `json:"messageId"`
	}
	if err := c.do(ctx, http.MethodPost, "/chat/save-message", nil, payload, &out); err != nil {
		return "", err
	}
	return out.MessageID, nil
}

// Sessions lists the user's recent sessions.
func (c *APIClient) Sessions(ctx context.Context, userID int64) ([]chat.Session, error) {
	query := url.Values{"userId": {strconv.FormatInt(userID, 10)}}

	var out struct {
		Sessions []chat.Session `json:"sessions"`
	}
	if err := c.do(ctx, http.MethodGet, "/chat/history", query, nil, &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

// Messages loads a session transcript.
func (c *APIClient) Messages(ctx context.Context, userID int64, sessionID string) ([]chat.Message, error) {
	query := url.Values{
		"userId":    {strconv.FormatInt(userID, 10)},
		"sessionId": {sessionID},
	}

	var out struct {
		Messages []chat.Message `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, "/chat/history", query, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// StartSession asks the server for a new session id.
func (c *APIClient) StartSession(ctx context.Context, userID int64) (StartedSession, error) {
	var out StartedSession
	err := c.do(ctx, http.MethodPost, "/chat/sessions", nil, map[string]any{"userId": userID}, &out)
	return out, err
}

// EndSession closes a session.
func (c *APIClient) EndSession(ctx context.Context, sessionID, summary string) (chat.Session, error) {
	var out struct {
		Session chat.Session `json:"session"`
	}
	path := "/chat/sessions/" + url.PathEscape(sessionID) + "/end"
	if err := c.do(ctx, http.MethodPost, path, nil, map[string]string{"summary": summary}, &out); err != nil {
		return chat.Session{}, err
	}
	return out.Session, nil
}

func (c *APIClient) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var payload struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&payload)
		return &APIError{Status: resp.StatusCode, Message: payload.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
