package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/engramhq/engram/internal/scheduler"
)

type SchedulerHandler struct {
	sched *scheduler.Scheduler
}

func NewSchedulerHandler(sched *scheduler.Scheduler) *SchedulerHandler {
	return &SchedulerHandler{sched: sched}
}

// Stats handles GET /scheduler/stats
func (h *SchedulerHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sched.GetStats())
}

// Start handles POST /scheduler/start
func (h *SchedulerHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.sched.Start()
	writeJSON(w, http.StatusOK, h.sched.GetStats())
}

// Stop handles POST /scheduler/stop
func (h *SchedulerHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.sched.Stop()
	writeJSON(w, http.StatusOK, h.sched.GetStats())
}

// Trigger handles POST /scheduler/tasks/{name}/trigger. The task runs
// synchronously; the response reflects its outcome in the counters.
func (h *SchedulerHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if err := h.sched.TriggerTask(name); err != nil {
		switch {
		case errors.Is(err, scheduler.ErrUnknownTask):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, scheduler.ErrTaskRunning):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, h.sched.GetStats())
}

type intervalRequest struct {
	IntervalSeconds int `json:"intervalSeconds"`
}

// UpdateInterval handles PUT /scheduler/tasks/{name}/interval
func (h *SchedulerHandler) UpdateInterval(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req intervalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.IntervalSeconds < 1 {
		writeError(w, http.StatusBadRequest, "intervalSeconds must be at least 1")
		return
	}

	if err := h.sched.UpdateTaskInterval(name, time.Duration(req.IntervalSeconds)*time.Second); err != nil {
		if errors.Is(err, scheduler.ErrUnknownTask) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, h.sched.GetStats())
}
