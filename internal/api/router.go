package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/engramhq/engram/internal/consolidator"
	"github.com/engramhq/engram/internal/embedding"
	"github.com/engramhq/engram/internal/engine"
	"github.com/engramhq/engram/internal/indexer"
	"github.com/engramhq/engram/internal/scheduler"
	"github.com/engramhq/engram/internal/store"
)

// NewRouter creates the Chi router with all routes and middleware.
func NewRouter(
	db *store.DB,
	files *store.FileStore,
	eng *engine.Engine,
	ix *indexer.Indexer,
	cons *consolidator.Consolidator,
	sched *scheduler.Scheduler,
	ollama *embedding.OllamaClient,
	apiKey string,
	logger *slog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (runs on ALL routes including /health)
	r.Use(CORS)
	r.Use(RequestID)
	r.Use(Logger(logger))
	r.Use(Recovery(logger))

	// Handlers
	healthH := NewHealthHandler(db, files, ollama)
	memoryH := NewMemoryHandler(eng)
	sessionH := NewSessionHandler(ix)
	factH := NewFactHandler(cons)
	consolidationH := NewConsolidationHandler(cons)
	schedulerH := NewSchedulerHandler(sched)

	// Unauthenticated routes
	r.Get("/health", healthH.Health)

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(apiKey))

		r.Route("/memory", func(r chi.Router) {
			r.Post("/index", memoryH.Index)
			r.Post("/search", memoryH.Search)
			r.Get("/files", memoryH.ListFiles)
			r.Get("/files/content", memoryH.GetContent)
			r.Delete("/files", memoryH.DeleteFile)
			r.Get("/cache/stats", memoryH.CacheStats)
			r.Post("/cache/cleanup", memoryH.CacheCleanup)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/index", sessionH.Index)
			r.Post("/batch", sessionH.BatchIndex)
			r.Get("/", sessionH.List)
			r.Get("/stats", sessionH.Stats)
			r.Delete("/{id}", sessionH.Delete)
		})

		r.Route("/users/{userID}/config", func(r chi.Router) {
			r.Get("/", sessionH.GetConfig)
			r.Put("/", sessionH.UpdateConfig)
		})

		r.Route("/facts", func(r chi.Router) {
			r.Get("/", factH.List)
			r.Post("/search", factH.Search)
			r.Post("/rescore", factH.Rescore)
			r.Delete("/{id}", factH.Delete)
		})

		r.Route("/consolidation", func(r chi.Router) {
			r.Post("/run", consolidationH.Run)
			r.Get("/jobs", consolidationH.Jobs)
		})

		r.Route("/scheduler", func(r chi.Router) {
			r.Get("/stats", schedulerH.Stats)
			r.Post("/start", schedulerH.Start)
			r.Post("/stop", schedulerH.Stop)
			r.Post("/tasks/{name}/trigger", schedulerH.Trigger)
			r.Put("/tasks/{name}/interval", schedulerH.UpdateInterval)
		})
	})

	return r
}
