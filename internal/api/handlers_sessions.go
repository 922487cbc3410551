package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/engramhq/engram/internal/indexer"
	"github.com/engramhq/engram/internal/models"
	"github.com/engramhq/engram/internal/store"
)

type SessionHandler struct {
	indexer *indexer.Indexer
}

func NewSessionHandler(ix *indexer.Indexer) *SessionHandler {
	return &SessionHandler{indexer: ix}
}

type indexSessionRequest struct {
	Session *models.ConversationSession `json:"session"`
	Force   bool                        `json:"force,omitempty"`
}

// Index handles POST /sessions/index
func (h *SessionHandler) Index(w http.ResponseWriter, r *http.Request) {
	var req indexSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if req.Session == nil {
		writeError(w, http.StatusBadRequest, "session is required")
		return
	}
	if req.Session.SessionID == "" || req.Session.UserID == "" {
		writeError(w, http.StatusBadRequest, "session.sessionId and session.userId are required")
		return
	}

	resp, err := h.indexer.IndexConversation(req.Session, indexer.Options{Force: req.Force})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := http.StatusOK
	if resp.Indexed {
		status = http.StatusCreated
	}
	writeJSON(w, status, resp)
}

type batchIndexRequest struct {
	Sessions []*models.ConversationSession `json:"sessions"`
	Force    bool                          `json:"force,omitempty"`
}

// BatchIndex handles POST /sessions/batch
func (h *SessionHandler) BatchIndex(w http.ResponseWriter, r *http.Request) {
	var req batchIndexRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if len(req.Sessions) == 0 {
		writeError(w, http.StatusBadRequest, "sessions array is required")
		return
	}

	results := h.indexer.BatchIndexConversations(req.Sessions, indexer.Options{Force: req.Force})
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// List handles GET /sessions
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	sessions, err := h.indexer.GetIndexedSessions(userID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sessions == nil {
		sessions = []models.IndexedSession{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// Stats handles GET /sessions/stats
func (h *SessionHandler) Stats(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	stats, err := h.indexer.GetIndexingStats(userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// Delete handles DELETE /sessions/{id}
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	if err := h.indexer.DeleteIndexedSession(userID, sessionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetConfig handles GET /users/{userID}/config
func (h *SessionHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	cfg, err := h.indexer.InitializeUserConfig(userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, cfg)
}

type updateConfigRequest struct {
	AutoIndex                  *bool `json:"autoIndex,omitempty"`
	MinMessagesToIndex         *int  `json:"minMessagesToIndex,omitempty"`
	IndexOnSessionEnd          *bool `json:"indexOnSessionEnd,omitempty"`
	ConsolidateOnIndex         *bool `json:"consolidateOnIndex,omitempty"`
	ConsolidationIntervalHours *int  `json:"consolidationIntervalHours,omitempty"`
}

// UpdateConfig handles PUT /users/{userID}/config. Absent fields keep their
// current values.
func (h *SessionHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req updateConfigRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	cfg, err := h.indexer.InitializeUserConfig(userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if req.AutoIndex != nil {
		cfg.AutoIndex = *req.AutoIndex
	}
	if req.MinMessagesToIndex != nil {
		if *req.MinMessagesToIndex < 1 {
			writeError(w, http.StatusBadRequest, "minMessagesToIndex must be at least 1")
			return
		}
		cfg.MinMessagesToIndex = *req.MinMessagesToIndex
	}
	if req.IndexOnSessionEnd != nil {
		cfg.IndexOnSessionEnd = *req.IndexOnSessionEnd
	}
	if req.ConsolidateOnIndex != nil {
		cfg.ConsolidateOnIndex = *req.ConsolidateOnIndex
	}
	if req.ConsolidationIntervalHours != nil {
		if *req.ConsolidationIntervalHours < 1 {
			writeError(w, http.StatusBadRequest, "consolidationIntervalHours must be at least 1")
			return
		}
		cfg.ConsolidationIntervalHours = *req.ConsolidationIntervalHours
	}

	if err := h.indexer.UpdateUserConfig(cfg); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, cfg)
}
