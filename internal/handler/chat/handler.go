package chat

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/eunoia-health/eunoia/backend/internal/model/chat"
	chatService "github.com/eunoia-health/eunoia/backend/internal/service/chat"
	"github.com/eunoia-health/eunoia/backend/pkg/utils"
)

// Handler serves the chat persistence endpoints.
type Handler struct {
	chatSvc *chatService.Service
	logger  *zap.Logger
}

// New creates a chat handler.
func New(chatSvc *chatService.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{chatSvc: chatSvc, logger: logger}
}

// RegisterRoutes mounts the chat routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/chat", func(r chi.Router) {
		r.Post("/save-message", h.handleSaveMessage)
		r.Get("/history", h.handleHistory)
		r.Get("/analytics", h.handleAnalytics)
		r.Post("/sessions", h.handleStartSession)
		r.Post("/sessions/{sessionID}/end", h.handleEndSession)
	})
	r.Get("/users/{userID}/activity", h.handleActivity)
}

func (h *Handler) handleSaveMessage(w http.ResponseWriter, r *http.Request) {
	var payload saveMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := validatePayload(payload); msg != "" {
		utils.RespondError(w, http.StatusBadRequest, msg)
		return
	}

	message, err := payload.toMessage()
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.chatSvc.SaveMessage(r.Context(), message)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"messageId": result.MessageID,
	})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	userID, ok := parseUserID(query.Get("userId"))
	if !ok {
		utils.RespondError(w, http.StatusBadRequest, "userId is required")
		return
	}

	if sessionID := strings.TrimSpace(query.Get("sessionId")); sessionID != "" {
		messages, err := h.chatSvc.Messages(r.Context(), sessionID)
		if err != nil {
			h.respondServiceError(w, err)
			return
		}
		if messages == nil {
			messages = []chat.Message{}
		}
		utils.RespondJSON(w, http.StatusOK, map[string]any{"messages": messages})
		return
	}

	sessions, err := h.chatSvc.Sessions(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	if sessions == nil {
		sessions = []chat.Session{}
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (h *Handler) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var payload startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := validatePayload(payload); msg != "" {
		utils.RespondError(w, http.StatusBadRequest, msg)
		return
	}

	result, err := h.chatSvc.StartSession(r.Context(), int64(payload.UserID), chatService.ClientInfo{
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusCreated, map[string]any{
		"sessionId": result.Session.SessionID,
		"startTime": result.Session.StartTime,
		"greeting":  result.Greeting,
	})
}

func (h *Handler) handleEndSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Summary string `json:"summary"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.chatSvc.EndSession(r.Context(), chi.URLParam(r, "sessionID"), payload.Summary)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{"session": session})
}

func (h *Handler) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	userID, ok := parseUserID(query.Get("userId"))
	if !ok {
		utils.RespondError(w, http.StatusBadRequest, "userId is required")
		return
	}

	days, err := parseLimit(query.Get("days"))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "days must be a positive integer")
		return
	}

	stats, err := h.chatSvc.Analytics(r.Context(), userID, days)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	if stats == nil {
		stats = []chat.DailyStats{}
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"days": stats})
}

func (h *Handler) handleActivity(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(chi.URLParam(r, "userID"))
	if !ok {
		utils.RespondError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}

	activities, err := h.chatSvc.Activity(r.Context(), userID, limit)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	if activities == nil {
		activities = []chat.Activity{}
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"activities": activities})
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	var validation *chatService.ValidationError
	switch {
	case errors.As(err, &validation):
		utils.RespondError(w, http.StatusBadRequest, validation.Error())
	case errors.Is(err, chatService.ErrSessionNotFound):
		utils.RespondError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, chatService.ErrUserNotFound):
		utils.RespondError(w, http.StatusNotFound, "user not found")
	default:
		utils.RespondInternalError(w, h.logger, err)
	}
}

func parseUserID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// parseLimit returns 0 for an empty value so the store default applies.
func parseLimit(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New("invalid limit")
	}
	return n, nil
}

func clientIP(r *http.Request) string {
	addr := r.RemoteAddr
	if i := strings.LastIndex(addr, ":"); i > 0 && !strings.HasSuffix(addr, "]") {
		return strings.Trim(addr[:i], "[]")
	}
	return addr
}

var errInvalidTimestamp = errors.New("timestamp must be RFC 3339")

func parseTimestamp(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, errInvalidTimestamp
	}
	return ts.UTC(), nil
}
