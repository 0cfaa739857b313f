// Package bus implements spec component E: the dashboard broadcast hub and
// its operator REST/WS surface. It is adapted from the teacher's
// registry.Hub/Celler/Connector actor model, collapsed from "one cell per
// addressable user" to a single flat session set, since every dashboard
// operator receives every broadcast — there is no per-user routing need
// here, just the one global audience the teacher's sync.Map-of-cells
// already supports when collapsed to one cell.
package bus

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vendorflow/taskintake/internal/domain/event"
)

// Session is one connected dashboard client; internal/bus/ws provides the
// only implementation.
type Session interface {
	ID() uuid.UUID
	// Deliver is called by the hub with the already-marshalled event frame.
	// Implementations must not block past their own transport's write
	// buffer; a slow client only ever affects itself.
	Deliver(ctx context.Context, frame []byte) error
	Close() error
}

type sessionEntry struct {
	session     Session
	confirmedAt time.Time
}

// Hub maintains the set of open dashboard sessions and fans events out to
// all of them, swallowing per-session send errors.
type Hub struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*sessionEntry

	heartbeatInterval time.Duration
	logger            *slog.Logger
	stopCh            chan struct{}

	status *StatusProvider
}

func NewHub(heartbeatInterval time.Duration, status *StatusProvider, logger *slog.Logger) *Hub {
	h := &Hub{
		sessions:          make(map[uuid.UUID]*sessionEntry),
		heartbeatInterval: heartbeatInterval,
		logger:            logger,
		stopCh:            make(chan struct{}),
		status:            status,
	}
	go h.runHeartbeat()
	return h
}

// PublishStatus broadcasts the current task counters and pause state, used
// both after a togglePause and on a bare refresh request.
func (h *Hub) PublishStatus() {
	completed, onHold, paused := h.status.current()
	h.Publish(event.NewUpdateStatusEvent(event.UpdateStatusPayload{
		QueueDepth:    onHold,
		AcceptedCount: completed,
		Paused:        paused,
	}))
}

// TogglePause flips the process-wide pause gate and broadcasts the new
// status, per §4.E's client-initiated togglePause message.
func (h *Hub) TogglePause() {
	h.status.pause.Toggle()
	h.PublishStatus()
}

// Register adds a session to the broadcast set.
func (h *Hub) Register(s Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[s.ID()] = &sessionEntry{session: s, confirmedAt: time.Now()}
}

// Unregister removes a session, closing it.
func (h *Hub) Unregister(id uuid.UUID) {
	h.mu.Lock()
	entry, ok := h.sessions[id]
	delete(h.sessions, id)
	h.mu.Unlock()
	if ok {
		_ = entry.session.Close()
	}
}

// ConfirmAlive marks a session as having replied since the last heartbeat
// tick, called by the WS handler when it receives a pong/ping reply.
func (h *Hub) ConfirmAlive(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if entry, ok := h.sessions[id]; ok {
		entry.confirmedAt = time.Now()
	}
}

// Publish satisfies acceptance.BusPublisher: marshal once, fan out to every
// open session under a read-consistent snapshot — the lock is only held to
// enumerate, never across the actual sends.
func (h *Hub) Publish(ev event.Eventer) {
	frame, err := h.marshal(ev)
	if err != nil {
		h.logger.Error("bus: marshal event failed", "err", err, "kind", ev.GetKind())
		return
	}
	h.broadcastFrame(frame)
}

// PublishDiagnostics satisfies mailbox.DiagnosticsPublisher.
func (h *Hub) PublishDiagnostics(mailbox, message string) {
	h.Publish(event.NewDiagnosticsEvent(event.DiagnosticsPayload{Mailbox: mailbox, Message: message, Level: "warn"}))
}

func (h *Hub) marshal(ev event.Eventer) ([]byte, error) {
	if cached := ev.GetCached(); cached != nil {
		return cached, nil
	}
	wire := struct {
		Type    event.Kind `json:"type"`
		Payload any        `json:"payload"`
	}{Type: ev.GetKind(), Payload: ev.GetPayload()}

	buf, err := json.Marshal(wire)
	if err != nil {
		return nil, err
	}
	ev.SetCached(buf)
	return buf, nil
}

func (h *Hub) broadcastFrame(frame []byte) {
	h.mu.RLock()
	sessions := make([]Session, 0, len(h.sessions))
	for _, entry := range h.sessions {
		sessions = append(sessions, entry.session)
	}
	h.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	for _, s := range sessions {
		if err := s.Deliver(ctx, frame); err != nil {
			h.logger.Debug("bus: session send failed, dropping message for it", "session", s.ID(), "err", err)
		}
	}
}

// runHeartbeat wakes every heartbeatInterval and force-closes any session
// that did not confirm since the previous tick. It sends no probe itself;
// the WS handler's pings and the client's replies drive ConfirmAlive.
func (h *Hub) runHeartbeat() {
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.sweepDead()
		}
	}
}

func (h *Hub) sweepDead() {
	cutoff := time.Now().Add(-h.heartbeatInterval)

	h.mu.Lock()
	var dead []uuid.UUID
	for id, entry := range h.sessions {
		if entry.confirmedAt.Before(cutoff) {
			dead = append(dead, id)
		}
	}
	h.mu.Unlock()

	for _, id := range dead {
		h.Unregister(id)
	}
}

// Shutdown closes every open session and stops the heartbeat loop.
func (h *Hub) Shutdown() {
	close(h.stopCh)
	h.mu.Lock()
	sessions := h.sessions
	h.sessions = make(map[uuid.UUID]*sessionEntry)
	h.mu.Unlock()

	for _, entry := range sessions {
		_ = entry.session.Close()
	}
}

// SessionCount reports the number of open dashboard sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}
