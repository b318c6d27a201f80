package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nikhilbhutani/schoolrag/internal/cache"
)

type CacheHandler struct {
	cache *cache.ResponseCache
}

func NewCacheHandler(c *cache.ResponseCache) *CacheHandler {
	return &CacheHandler{cache: c}
}

func (h *CacheHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.cache.Stats(r.Context()))
}

// InvalidateTag drops every cached answer carrying the tag in the URL.
func (h *CacheHandler) InvalidateTag(w http.ResponseWriter, r *http.Request) {
	tag := chi.URLParam(r, "tag")
	removed := h.cache.InvalidateTag(r.Context(), tag)
	writeJSON(w, http.StatusOK, map[string]any{"tag": tag, "removed": removed})
}
