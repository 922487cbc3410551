package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/engramhq/engram/internal/engine"
	"github.com/engramhq/engram/internal/models"
	"github.com/engramhq/engram/internal/store"
)

type MemoryHandler struct {
	engine *engine.Engine
}

func NewMemoryHandler(eng *engine.Engine) *MemoryHandler {
	return &MemoryHandler{engine: eng}
}

type indexRequest struct {
	UserID   string            `json:"userId"`
	FilePath string            `json:"filePath"`
	Content  string            `json:"content"`
	Source   models.FileSource `json:"source"`
}

// Index handles POST /memory/index
func (h *MemoryHandler) Index(w http.ResponseWriter, r *http.Request) {
	var req indexRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if req.UserID == "" || req.FilePath == "" {
		writeError(w, http.StatusBadRequest, "userId and filePath are required")
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}
	if req.Source == "" {
		req.Source = models.SourceMemory
	}
	if !req.Source.IsValid() {
		writeError(w, http.StatusBadRequest, "invalid source: must be memory, session, or conversation")
		return
	}

	resp, err := h.engine.IndexContent(req.UserID, req.FilePath, req.Content, req.Source)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := http.StatusCreated
	if resp.Unchanged {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

type searchRequest struct {
	UserID       string              `json:"userId"`
	Query        string              `json:"query"`
	MaxResults   int                 `json:"maxResults,omitempty"`
	MinScore     float64             `json:"minScore,omitempty"`
	Sources      []models.FileSource `json:"sources,omitempty"`
	VectorWeight float64             `json:"vectorWeight,omitempty"`
	TextWeight   float64             `json:"textWeight,omitempty"`
}

// Search handles POST /memory/search
func (h *MemoryHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	for _, s := range req.Sources {
		if !s.IsValid() {
			writeError(w, http.StatusBadRequest, "invalid source filter: "+string(s))
			return
		}
	}

	results, err := h.engine.SearchMemory(req.UserID, req.Query, engine.SearchOptions{
		MaxResults:   req.MaxResults,
		MinScore:     req.MinScore,
		Sources:      req.Sources,
		VectorWeight: req.VectorWeight,
		TextWeight:   req.TextWeight,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"count":   len(results),
	})
}

// ListFiles handles GET /memory/files
func (h *MemoryHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	source := models.FileSource(r.URL.Query().Get("source"))
	if source != "" && !source.IsValid() {
		writeError(w, http.StatusBadRequest, "invalid source filter")
		return
	}

	files, err := h.engine.ListMemoryFiles(userID, source)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if files == nil {
		files = []models.MemoryFile{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

// GetContent handles GET /memory/files/content. The file path arrives as a
// query parameter because virtual paths contain slashes.
func (h *MemoryHandler) GetContent(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	path := r.URL.Query().Get("path")
	if userID == "" || path == "" {
		writeError(w, http.StatusBadRequest, "user_id and path are required")
		return
	}
	from, _ := strconv.Atoi(r.URL.Query().Get("from"))
	lines, _ := strconv.Atoi(r.URL.Query().Get("lines"))

	content, err := h.engine.GetMemoryFile(userID, path, from, lines)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "file not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"path":    path,
		"content": content,
	})
}

// DeleteFile handles DELETE /memory/files
func (h *MemoryHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	path := r.URL.Query().Get("path")
	if userID == "" || path == "" {
		writeError(w, http.StatusBadRequest, "user_id and path are required")
		return
	}

	if err := h.engine.DeleteMemoryFile(userID, path); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "file not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CacheStats handles GET /memory/cache/stats
func (h *MemoryHandler) CacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.GetCacheStats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type cacheCleanupRequest struct {
	MaxEntries int `json:"maxEntries,omitempty"`
}

// CacheCleanup handles POST /memory/cache/cleanup
func (h *MemoryHandler) CacheCleanup(w http.ResponseWriter, r *http.Request) {
	var req cacheCleanupRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}

	removed, err := h.engine.CleanupCache(req.MaxEntries)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}
