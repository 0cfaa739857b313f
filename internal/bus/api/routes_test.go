package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendorflow/taskintake/internal/bus"
	"github.com/vendorflow/taskintake/internal/domain/bizday"
	"github.com/vendorflow/taskintake/internal/ledger"
	"github.com/vendorflow/taskintake/internal/mailbox"
)

type fakePause struct{ paused bool }

func (p *fakePause) IsPaused() bool { return p.paused }
func (p *fakePause) Toggle() bool   { p.paused = !p.paused; return p.paused }

type fakeCounter struct{ completed, onHold int }

func (c fakeCounter) Counts() (int, int) { return c.completed, c.onHold }

type fakeRefresher struct{ statuses []mailbox.Status }

func (f fakeRefresher) Statuses() []mailbox.Status { return f.statuses }

func newTestHandlers(t *testing.T) (*Handlers, *ledger.Ledger) {
	t.Helper()
	now := time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC)
	l, err := ledger.New(nil,
		ledger.WithDataDir(t.TempDir()),
		ledger.WithDefaultCapacity(5000),
		ledger.WithBusinessDayPredicate(bizday.Weekday{}),
		ledger.WithNow(func() time.Time { return now }),
	)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	status := bus.NewStatusProvider(&fakePause{}, fakeCounter{})
	hub := bus.NewHub(time.Hour, status, logger)
	t.Cleanup(hub.Shutdown)

	h := NewHandlers(l, hub, fakeRefresher{statuses: []mailbox.Status{{Mailbox: "a", State: mailbox.StateOpen}}}, fakeCounter{completed: 3, onHold: 2})
	return h, l
}

func newRouter(h *Handlers) chi.Router {
	r := chi.NewRouter()
	h.Mount(r)
	return r
}

func doJSON(t *testing.T, r chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestPostOverrideThenGetOverride(t *testing.T) {
	h, _ := newTestHandlers(t)
	r := newRouter(h)

	rec := doJSON(t, r, http.MethodPost, "/api/override", map[string]float64{"2026-01-23": 8000})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, r, http.MethodGet, "/api/override", nil)
	var got map[string]float64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 8000.0, got["2026-01-23"])
}

func TestPostOverrideRejectsEmptyBody(t *testing.T) {
	h, _ := newTestHandlers(t)
	r := newRouter(h)

	rec := doJSON(t, r, http.MethodPost, "/api/override", map[string]float64{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetCapacityForDate(t *testing.T) {
	h, l := newTestHandlers(t)
	r := newRouter(h)

	orderID := "1"
	_, err := l.Allocate(1000, "2026-01-23", &orderID, nil)
	require.NoError(t, err)

	rec := doJSON(t, r, http.MethodGet, "/api/capacity/2026-01-23", nil)
	var got map[string]float64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 4000.0, got["remaining"])
}

func TestPostCapacityResetClearsCapacity(t *testing.T) {
	h, l := newTestHandlers(t)
	r := newRouter(h)

	orderID := "1"
	_, err := l.Allocate(1000, "2026-01-23", &orderID, nil)
	require.NoError(t, err)

	rec := doJSON(t, r, http.MethodPost, "/api/capacity/reset", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, l.CapacityMap())
}

func TestPostReleaseDecrementsCapacity(t *testing.T) {
	h, l := newTestHandlers(t)
	r := newRouter(h)

	orderID := "1"
	record, err := l.Allocate(1000, "2026-01-23", &orderID, nil)
	require.NoError(t, err)

	rec := doJSON(t, r, http.MethodPost, "/api/release", record.AllocationPlan)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0.0, l.CapacityMap()["2026-01-23"])
}

func TestPostAdjustRejectsMalformedBody(t *testing.T) {
	h, _ := newTestHandlers(t)
	r := newRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/api/adjust", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostAdjustAppliesDelta(t *testing.T) {
	h, l := newTestHandlers(t)
	r := newRouter(h)

	rec := doJSON(t, r, http.MethodPost, "/api/adjust", map[string]any{"date": "2026-01-23", "amount": 500})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 500.0, l.CapacityMap()["2026-01-23"])
}

func TestGetTasksIncludesCounterSummary(t *testing.T) {
	h, l := newTestHandlers(t)
	r := newRouter(h)

	orderID := "1"
	_, err := l.Allocate(1000, "2026-01-23", &orderID, nil)
	require.NoError(t, err)

	rec := doJSON(t, r, http.MethodGet, "/api/tasks", nil)
	var got struct {
		Tasks   []map[string]any `json:"tasks"`
		Summary struct {
			Total          int `json:"total"`
			CompletedCount int `json:"completedCount"`
			OnHoldCount    int `json:"onHoldCount"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Tasks, 1)
	assert.Equal(t, 1, got.Summary.Total)
	assert.Equal(t, 3, got.Summary.CompletedCount)
	assert.Equal(t, 2, got.Summary.OnHoldCount)
}

func TestGetTasksAppliesPagination(t *testing.T) {
	h, l := newTestHandlers(t)
	r := newRouter(h)

	for i := 0; i < 3; i++ {
		orderID := "1"
		_, err := l.Allocate(100, "2026-01-23", &orderID, nil)
		require.NoError(t, err)
	}

	rec := doJSON(t, r, http.MethodGet, "/api/tasks?limit=1&offset=1", nil)
	var got struct {
		Tasks []map[string]any `json:"tasks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got.Tasks, 1)
}

func TestGetHealthReportsFleetStatuses(t *testing.T) {
	h, _ := newTestHandlers(t)
	r := newRouter(h)

	rec := doJSON(t, r, http.MethodGet, "/api/health", nil)
	var got struct {
		Mailboxes []mailbox.Status `json:"mailboxes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Mailboxes, 1)
	assert.Equal(t, "a", got.Mailboxes[0].Mailbox)
}

func TestPostCleanupRemovesPastEntries(t *testing.T) {
	h, l := newTestHandlers(t)
	r := newRouter(h)

	require.NoError(t, l.SetOverride("2020-01-01", 100))

	rec := doJSON(t, r, http.MethodPost, "/api/cleanup", map[string]any{})
	assert.Equal(t, http.StatusOK, rec.Code)

	var got map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.GreaterOrEqual(t, got["deleted"], 1)
}
