// Package api implements the operator REST surface from spec §6, plus the
// supplemented health endpoint from SPEC_FULL.md. Routing follows the
// teacher's chi-based internal/handler/rest layout: one file of small
// handlers closing over the collaborators they need, registered onto a
// chi.Router the composition root owns.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vendorflow/taskintake/internal/bus"
	"github.com/vendorflow/taskintake/internal/domain/event"
	"github.com/vendorflow/taskintake/internal/domain/model"
	"github.com/vendorflow/taskintake/internal/ledger"
	"github.com/vendorflow/taskintake/internal/mailbox"
)

func capacityUpdated(date string) *event.CapacityUpdatedEvent { return event.NewCapacityUpdatedEvent(date) }

func queueUpdated() *event.QueueUpdatedEvent { return event.NewQueueUpdatedEvent() }

// TaskCounter mirrors bus.TaskCounter so handlers can fill in the task
// summary's completed/on-hold counts without this package importing
// acceptance directly.
type TaskCounter interface {
	Counts() (completed, onHold int)
}

// Refresher reports the mailbox fleet's per-listener status snapshots, used
// by /api/health. /api/tasks/refresh does not call it.
type Refresher interface {
	Statuses() []mailbox.Status
}

type Handlers struct {
	ledger  *ledger.Ledger
	hub     *bus.Hub
	fleet   Refresher
	counter TaskCounter
}

func NewHandlers(l *ledger.Ledger, hub *bus.Hub, fleet Refresher, counter TaskCounter) *Handlers {
	return &Handlers{ledger: l, hub: hub, fleet: fleet, counter: counter}
}

// Mount registers every route from the §6 table plus /api/health onto r.
func (h *Handlers) Mount(r chi.Router) {
	r.Get("/api/override", h.getOverride)
	r.Post("/api/override", h.postOverride)
	r.Get("/api/capacity", h.getCapacity)
	r.Get("/api/capacity/{date}", h.getCapacityForDate)
	r.Post("/api/capacity/reset", h.postCapacityReset)
	r.Post("/api/capacity/sync", h.postCapacitySync)
	r.Post("/api/release", h.postRelease)
	r.Post("/api/adjust", h.postAdjust)
	r.Get("/api/tasks", h.getTasks)
	r.Post("/api/tasks/refresh", h.postTasksRefresh)
	r.Post("/api/cleanup", h.postCleanup)
	r.Get("/api/health", h.getHealth)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (h *Handlers) getOverride(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ledger.OverrideMap())
}

func (h *Handlers) postOverride(w http.ResponseWriter, r *http.Request) {
	var body map[string]float64
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body) == 0 {
		writeError(w, http.StatusBadRequest, "malformed override body")
		return
	}
	for date, amount := range body {
		if err := h.ledger.SetOverride(date, amount); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		h.hub.Publish(capacityUpdated(date))
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handlers) getCapacity(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ledger.CapacityMap())
}

func (h *Handlers) getCapacityForDate(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	writeJSON(w, http.StatusOK, map[string]float64{"remaining": h.ledger.Remaining(date)})
}

func (h *Handlers) postCapacityReset(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.Reset(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handlers) postCapacitySync(w http.ResponseWriter, r *http.Request) {
	result, err := h.ledger.SyncWithTasks()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for date := range result.After {
		h.hub.Publish(capacityUpdated(date))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":          true,
		"after":            result.After,
		"diff":             result.Diff,
		"deletedOverrides": result.DeletedOverrides,
	})
}

type releaseEntry struct {
	Date   string  `json:"date"`
	Amount float64 `json:"amount"`
}

func (h *Handlers) postRelease(w http.ResponseWriter, r *http.Request) {
	var entries []releaseEntry
	if err := json.NewDecoder(r.Body).Decode(&entries); err != nil {
		writeError(w, http.StatusBadRequest, "body must be an array of {date, amount}")
		return
	}
	plan := make([]model.AllocationEntry, len(entries))
	for i, e := range entries {
		plan[i] = model.AllocationEntry{Date: e.Date, Amount: e.Amount}
	}
	if err := h.ledger.Release(plan); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for _, e := range entries {
		h.hub.Publish(capacityUpdated(e.Date))
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type adjustBody struct {
	Date   string  `json:"date"`
	Amount float64 `json:"amount"`
}

func (h *Handlers) postAdjust(w http.ResponseWriter, r *http.Request) {
	var body adjustBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Date == "" {
		writeError(w, http.StatusBadRequest, "malformed adjust body")
		return
	}
	if err := h.ledger.Adjust(body.Date, body.Amount); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.hub.Publish(capacityUpdated(body.Date))
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handlers) getTasks(w http.ResponseWriter, r *http.Request) {
	tasks, summary := h.ledger.Tasks()
	summary.CompletedCount, summary.OnHoldCount = h.counter.Counts()

	limit, offset := paginationParams(r)
	lastUpdated := time.Time{}
	if len(tasks) > 0 {
		lastUpdated = tasks[len(tasks)-1].AcceptedAt
	}

	page := tasks
	if limit > 0 {
		end := offset + limit
		if offset > len(tasks) {
			offset = len(tasks)
		}
		if end > len(tasks) {
			end = len(tasks)
		}
		page = tasks[offset:end]
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tasks":       page,
		"summary":     summary,
		"lastUpdated": lastUpdated,
	})
}

func paginationParams(r *http.Request) (limit, offset int) {
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		offset, _ = strconv.Atoi(v)
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (h *Handlers) postTasksRefresh(w http.ResponseWriter, r *http.Request) {
	syncResult, syncErr := h.ledger.SyncWithTasks()
	resp := map[string]any{}
	if syncErr != nil {
		resp["syncError"] = syncErr.Error()
	} else {
		for date := range syncResult.After {
			h.hub.Publish(capacityUpdated(date))
		}
		resp["after"] = syncResult.After
		resp["diff"] = syncResult.Diff
		resp["deletedOverrides"] = syncResult.DeletedOverrides
	}
	h.hub.Publish(queueUpdated())
	writeJSON(w, http.StatusOK, resp)
}

type cleanupBody struct {
	Dates []string `json:"dates,omitempty"`
}

func (h *Handlers) postCleanup(w http.ResponseWriter, r *http.Request) {
	var body cleanupBody
	_ = json.NewDecoder(r.Body).Decode(&body)

	today := time.Now().Format("2006-01-02")
	result, err := h.ledger.PruneBefore(today, body.Dates)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"deleted":            result.Deleted,
		"allocationsRemoved": result.AllocationsRemoved,
		"tasksRemoved":       result.TasksRemoved,
	})
}

func (h *Handlers) getHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"mailboxes": h.fleet.Statuses()})
}
