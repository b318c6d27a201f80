package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nikhilbhutani/schoolrag/internal/chat"
	"github.com/nikhilbhutani/schoolrag/internal/memory"
)

type Answerer interface {
	GenerateAnswer(ctx context.Context, query string, history []memory.Entry, session string) (*chat.Answer, error)
}

type ChatHandler struct {
	answerer Answerer
}

func NewChatHandler(a Answerer) *ChatHandler {
	return &ChatHandler{answerer: a}
}

type chatRequest struct {
	Message   string         `json:"message"`
	SessionID string         `json:"session_id,omitempty"`
	History   []memory.Entry `json:"history,omitempty"`
}

// Chat answers one question. Provider failures still produce a 200 with a
// canned answer; only malformed requests are rejected.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ans, err := h.answerer.GenerateAnswer(r.Context(), req.Message, req.History, req.SessionID)
	if errors.Is(err, chat.ErrEmptyQuestion) {
		writeError(w, http.StatusBadRequest, "message required")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not answer")
		return
	}

	writeJSON(w, http.StatusOK, ans)
}
