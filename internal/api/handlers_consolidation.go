package api

import (
	"net/http"
	"strconv"

	"github.com/engramhq/engram/internal/consolidator"
	"github.com/engramhq/engram/internal/models"
)

type ConsolidationHandler struct {
	svc *consolidator.Consolidator
}

func NewConsolidationHandler(svc *consolidator.Consolidator) *ConsolidationHandler {
	return &ConsolidationHandler{svc: svc}
}

type consolidateRequest struct {
	UserID           string   `json:"userId"`
	SessionIDs       []string `json:"sessionIds,omitempty"`
	RegenerateMemory *bool    `json:"regenerateMemory,omitempty"`
}

// Run handles POST /consolidation/run. Synchronous: the response carries the
// finished run's counters.
func (h *ConsolidationHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req consolidateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	regenerate := true
	if req.RegenerateMemory != nil {
		regenerate = *req.RegenerateMemory
	}

	result, err := h.svc.Consolidate(req.UserID, consolidator.Options{
		SessionIDs:       req.SessionIDs,
		RegenerateMemory: regenerate,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Jobs handles GET /consolidation/jobs
func (h *ConsolidationHandler) Jobs(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	jobs, err := h.svc.GetJobs(userID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if jobs == nil {
		jobs = []models.ConsolidationJob{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}
