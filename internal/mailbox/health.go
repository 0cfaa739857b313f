package mailbox

import (
	"sync"
	"time"
)

// Alert is one notification the health monitor wants surfaced — the
// acceptance/bus layer turns these into diagnostics events on the dashboard.
type Alert struct {
	Mailbox string
	Message string
}

type reconnectEvent struct {
	mailbox string
	at      time.Time
}

const maxReconnectHistory = 500

// HealthMonitor is the per-process singleton injected into every listener.
// It tracks a bounded, cross-mailbox reconnect history and a per-mailbox
// consecutive-health-check-failure counter. Reconnect-storm alerts fire at
// most once per mailbox per alert window; consecutive-failure alerts are not
// rate-limited by the window.
type HealthMonitor struct {
	mu sync.Mutex

	window              time.Duration
	reconnectThreshold  int
	consecutiveThreshold int

	history        []reconnectEvent
	consecFailures map[string]int
	lastAlertAt    map[string]time.Time

	notify func(Alert)
}

func NewHealthMonitor(window time.Duration, reconnectThreshold, consecutiveThreshold int, notify func(Alert)) *HealthMonitor {
	return &HealthMonitor{
		window:               window,
		reconnectThreshold:   reconnectThreshold,
		consecutiveThreshold: consecutiveThreshold,
		consecFailures:       make(map[string]int),
		lastAlertAt:          make(map[string]time.Time),
		notify:               notify,
	}
}

// RecordReconnect logs a reconnect for mailbox and fires an alert if the
// mailbox has reconnected >= reconnectThreshold times within the window and
// its cooldown (also the window) has elapsed.
func (h *HealthMonitor) RecordReconnect(mailbox string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()
	h.history = append(h.history, reconnectEvent{mailbox: mailbox, at: now})
	h.prune(now)

	count := 0
	for _, e := range h.history {
		if e.mailbox == mailbox {
			count++
		}
	}
	if count < h.reconnectThreshold {
		return
	}
	if last, ok := h.lastAlertAt[mailbox]; ok && now.Sub(last) < h.window {
		return
	}
	h.lastAlertAt[mailbox] = now
	if h.notify != nil {
		h.notify(Alert{Mailbox: mailbox, Message: "reconnect storm: mailbox reconnected repeatedly within the alert window"})
	}
}

// prune drops history entries older than the alert window and caps the
// slice at maxReconnectHistory, oldest first. Must be called with mu held.
func (h *HealthMonitor) prune(now time.Time) {
	cutoff := now.Add(-h.window)
	kept := h.history[:0]
	for _, e := range h.history {
		if !e.at.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	h.history = kept
	if len(h.history) > maxReconnectHistory {
		h.history = h.history[len(h.history)-maxReconnectHistory:]
	}
}

// RecordHealthCheck logs the outcome of one periodic no-op health check. A
// healthy check resets the mailbox's consecutive-failure counter; a failing
// one increments it and fires an alert at each multiple of
// consecutiveThreshold.
func (h *HealthMonitor) RecordHealthCheck(mailbox string, healthy bool, checkErr error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if healthy {
		h.consecFailures[mailbox] = 0
		return
	}

	h.consecFailures[mailbox]++
	if h.consecFailures[mailbox]%h.consecutiveThreshold != 0 {
		return
	}
	msg := "health check failing repeatedly"
	if checkErr != nil {
		msg = "health check failing repeatedly: " + checkErr.Error()
	}
	if h.notify != nil {
		h.notify(Alert{Mailbox: mailbox, Message: msg})
	}
}
