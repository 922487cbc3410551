package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/engramhq/engram/internal/consolidator"
	"github.com/engramhq/engram/internal/models"
	"github.com/engramhq/engram/internal/store"
)

type FactHandler struct {
	svc *consolidator.Consolidator
}

func NewFactHandler(svc *consolidator.Consolidator) *FactHandler {
	return &FactHandler{svc: svc}
}

// List handles GET /facts
func (h *FactHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	factType := models.FactType(r.URL.Query().Get("type"))
	if factType != "" && !factType.IsValid() {
		writeError(w, http.StatusBadRequest, "invalid fact type")
		return
	}
	minImportance, _ := strconv.ParseFloat(r.URL.Query().Get("min_importance"), 64)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	facts, err := h.svc.GetFacts(userID, factType, minImportance, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if facts == nil {
		facts = []models.MemoryFact{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"facts": facts})
}

type factSearchRequest struct {
	UserID        string  `json:"userId"`
	Query         string  `json:"query"`
	Limit         int     `json:"limit,omitempty"`
	MinSimilarity float64 `json:"minSimilarity,omitempty"`
}

// Search handles POST /facts/search
func (h *FactHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req factSearchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if req.UserID == "" || req.Query == "" {
		writeError(w, http.StatusBadRequest, "userId and query are required")
		return
	}

	results, err := h.svc.SearchFacts(req.UserID, req.Query, req.Limit, req.MinSimilarity)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if results == nil {
		results = []consolidator.FactSearchResult{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// Delete handles DELETE /facts/{id}
func (h *FactHandler) Delete(w http.ResponseWriter, r *http.Request) {
	factID := chi.URLParam(r, "id")
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	if err := h.svc.DeleteFact(userID, factID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "fact not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type rescoreRequest struct {
	UserID string `json:"userId"`
}

// Rescore handles POST /facts/rescore
func (h *FactHandler) Rescore(w http.ResponseWriter, r *http.Request) {
	var req rescoreRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	updated, err := h.svc.UpdateImportanceScores(req.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"updated": updated})
}
