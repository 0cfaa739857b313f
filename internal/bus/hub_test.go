package bus

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendorflow/taskintake/internal/domain/event"
)

type fakeSession struct {
	id     uuid.UUID
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func newFakeSession() *fakeSession { return &fakeSession{id: uuid.New()} }

func (f *fakeSession) ID() uuid.UUID { return f.id }

func (f *fakeSession) Deliver(ctx context.Context, frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSession) received() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

type fakePause struct {
	mu     sync.Mutex
	paused bool
}

func (p *fakePause) IsPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *fakePause) Toggle() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = !p.paused
	return p.paused
}

type fakeCounter struct {
	completed, onHold int
}

func (c fakeCounter) Counts() (completed, onHold int) { return c.completed, c.onHold }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHub(t *testing.T, heartbeat time.Duration) *Hub {
	t.Helper()
	status := NewStatusProvider(&fakePause{}, fakeCounter{completed: 2, onHold: 1})
	h := NewHub(heartbeat, status, testLogger())
	t.Cleanup(h.Shutdown)
	return h
}

func TestHubBroadcastsToEveryRegisteredSession(t *testing.T) {
	h := newTestHub(t, time.Hour)

	a, b := newFakeSession(), newFakeSession()
	h.Register(a)
	h.Register(b)
	assert.Equal(t, 2, h.SessionCount())

	h.Publish(event.NewQueueUpdatedEvent())

	assert.Equal(t, 1, a.received())
	assert.Equal(t, 1, b.received())
}

func TestHubUnregisterClosesAndStopsDelivery(t *testing.T) {
	h := newTestHub(t, time.Hour)

	a := newFakeSession()
	h.Register(a)
	h.Unregister(a.ID())

	assert.True(t, a.closed)
	assert.Equal(t, 0, h.SessionCount())

	h.Publish(event.NewQueueUpdatedEvent())
	assert.Equal(t, 0, a.received())
}

func TestHubMarshalsEachEventOnce(t *testing.T) {
	h := newTestHub(t, time.Hour)
	ev := event.NewCapacityUpdatedEvent("2026-01-23")

	first, err := h.marshal(ev)
	require.NoError(t, err)
	second, err := h.marshal(ev)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.NotNil(t, ev.GetCached(), "marshal must populate the event's cache")

	var decoded struct {
		Type    string                       `json:"type"`
		Payload event.CapacityUpdatedPayload `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(first, &decoded))
	assert.Equal(t, "capacityUpdated", decoded.Type)
	assert.Equal(t, "2026-01-23", decoded.Payload.Date)
}

func TestHubPublishStatusReflectsProviders(t *testing.T) {
	h := newTestHub(t, time.Hour)
	a := newFakeSession()
	h.Register(a)

	h.PublishStatus()

	require.Equal(t, 1, a.received())
	var decoded struct {
		Payload event.UpdateStatusPayload `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(a.frames[0], &decoded))
	assert.Equal(t, 2, decoded.Payload.AcceptedCount)
	assert.Equal(t, 1, decoded.Payload.QueueDepth)
	assert.False(t, decoded.Payload.Paused)
}

func TestHubTogglePauseFlipsStateAndBroadcasts(t *testing.T) {
	h := newTestHub(t, time.Hour)
	a := newFakeSession()
	h.Register(a)

	h.TogglePause()

	require.Equal(t, 1, a.received())
	var decoded struct {
		Payload event.UpdateStatusPayload `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(a.frames[0], &decoded))
	assert.True(t, decoded.Payload.Paused)
}

func TestHubSweepEvictsUnconfirmedSessions(t *testing.T) {
	h := newTestHub(t, 20*time.Millisecond)
	a := newFakeSession()
	h.Register(a)

	assert.Eventually(t, func() bool {
		return h.SessionCount() == 0
	}, time.Second, 5*time.Millisecond)
	assert.True(t, a.closed)
}

func TestHubConfirmAliveKeepsSessionAlive(t *testing.T) {
	h := newTestHub(t, 30*time.Millisecond)
	a := newFakeSession()
	h.Register(a)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				h.ConfirmAlive(a.ID())
			}
		}
	}()

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 1, h.SessionCount())
}
