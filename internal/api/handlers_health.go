package api

import (
	"net/http"

	"github.com/engramhq/engram/internal/embedding"
	"github.com/engramhq/engram/internal/store"
)

type ServiceCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type HealthResponse struct {
	Status    string       `json:"status"`
	DB        ServiceCheck `json:"db"`
	Ollama    ServiceCheck `json:"ollama"`
	FileCount int          `json:"fileCount"`
}

type HealthHandler struct {
	db     *store.DB
	files  *store.FileStore
	ollama *embedding.OllamaClient
}

func NewHealthHandler(db *store.DB, files *store.FileStore, ollama *embedding.OllamaClient) *HealthHandler {
	return &HealthHandler{db: db, files: files, ollama: ollama}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status: "ok",
	}

	// Check Ollama. Nil when running against the in-process embedder.
	if h.ollama == nil {
		resp.Ollama = ServiceCheck{Status: "disabled"}
	} else if err := h.ollama.HealthCheck(); err != nil {
		resp.Ollama = ServiceCheck{Status: "error", Message: err.Error()}
		resp.Status = "degraded"
	} else {
		resp.Ollama = ServiceCheck{Status: "ok"}
	}

	// Check DB
	count, err := h.files.Count(h.db)
	if err != nil {
		resp.DB = ServiceCheck{Status: "error", Message: err.Error()}
		resp.Status = "degraded"
	} else {
		resp.DB = ServiceCheck{Status: "ok"}
		resp.FileCount = count
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
