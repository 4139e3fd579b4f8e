package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/calagem/calagem/internal/chatbot"
	"github.com/calagem/calagem/internal/retrieve"
	"github.com/calagem/calagem/internal/session"
	"github.com/calagem/calagem/internal/task"
)

// Question length bounds, inclusive.
const (
	minQuestionLen = 3
	maxQuestionLen = 2000
)

// maxBodyBytes caps the request body well above the question bound.
const maxBodyBytes = 64 << 10

// Chatter runs one conversation turn. *chatbot.Engine satisfies it.
type Chatter interface {
	Chat(ctx context.Context, sessionID, question, choice string) chatbot.Result
}

// chatHandler serves the synchronous and asynchronous chat endpoints.
type chatHandler struct {
	engine   Chatter
	tasks    *task.Runner
	sessions *session.Store
	throttle time.Duration
	logger   *slog.Logger
}

type chatRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id,omitempty"`
	Choice    string `json:"choice,omitempty"`
	Async     bool   `json:"async,omitempty"`
}

type chatResponse struct {
	SessionID string                  `json:"session_id"`
	Answer    string                  `json:"answer"`
	Label     string                  `json:"label,omitempty"`
	Source    string                  `json:"source"`
	Coverage  *retrieve.CoverageStats `json:"coverage,omitempty"`
}

type asyncAccepted struct {
	SessionID string `json:"session_id"`
	TaskID    string `json:"task_id"`
	Status    string `json:"status"`
}

// send handles POST /api/v1/chat.
func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge,
				"body_too_large", "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}

	// Validation happens before any retrieval work, with a specific
	// message per violated rule.
	switch n := len(req.Question); {
	case n == 0:
		writeError(w, http.StatusBadRequest, "question_required", "question is required")
		return
	case n < minQuestionLen:
		writeError(w, http.StatusBadRequest, "question_too_short",
			"question must be at least "+strconv.Itoa(minQuestionLen)+" characters")
		return
	case n > maxQuestionLen:
		writeError(w, http.StatusBadRequest, "question_too_long",
			"question must be at most "+strconv.Itoa(maxQuestionLen)+" characters")
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = session.NewID()
	}

	if !h.sessions.Allow(sessionID, h.throttle) {
		w.Header().Set("Retry-After", strconv.Itoa(int(h.throttle.Seconds())))
		writeError(w, http.StatusTooManyRequests, "throttled",
			"please wait before sending another message")
		return
	}

	if req.Async {
		taskID, err := h.tasks.Submit(sessionID, req.Question, req.Choice)
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, "busy",
				"the service is busy, try again shortly")
			return
		}
		writeJSON(w, http.StatusAccepted, asyncAccepted{
			SessionID: sessionID,
			TaskID:    taskID,
			Status:    string(task.StateProcessing),
		})
		return
	}

	result := h.engine.Chat(r.Context(), sessionID, req.Question, req.Choice)
	writeJSON(w, http.StatusOK, chatResponse{
		SessionID: sessionID,
		Answer:    result.Answer,
		Label:     string(result.Label),
		Source:    result.Source,
		Coverage:  result.Coverage,
	})
}

// status handles GET /api/v1/chat/tasks/{id}. A missing or expired task
// reads as not found, never as an error.
func (h *chatHandler) status(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	s, ok := h.tasks.Status(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"status": "not_found"})
		return
	}
	writeJSON(w, http.StatusOK, s)
}
