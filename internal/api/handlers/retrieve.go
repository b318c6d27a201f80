package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/nikhilbhutani/schoolrag/internal/guardrails"
	"github.com/nikhilbhutani/schoolrag/internal/rag"
)

// MaxTopK caps the number of chunks one retrieve call may ask for.
const MaxTopK = 20

type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]rag.ContextChunk, error)
}

type RetrieveHandler struct {
	retriever Retriever
}

func NewRetrieveHandler(r Retriever) *RetrieveHandler {
	return &RetrieveHandler{retriever: r}
}

type retrieveRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

// Retrieve returns the ranked chunks and the context block built from them.
func (h *RetrieveHandler) Retrieve(w http.ResponseWriter, r *http.Request) {
	var req retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query required")
		return
	}

	if req.TopK > MaxTopK {
		req.TopK = MaxTopK
	}

	chunks, err := h.retriever.Retrieve(r.Context(), req.Query, req.TopK)
	var v *guardrails.Violation
	if errors.As(err, &v) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": v.Reason, "refusal": v.Refusal})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "retrieval failed")
		return
	}
	if chunks == nil {
		chunks = []rag.ContextChunk{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"chunks":  chunks,
		"count":   len(chunks),
		"context": rag.BuildContext(chunks),
	})
}
