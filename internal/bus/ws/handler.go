// Package ws is the dashboard's bidirectional real-time channel, adapted
// from the teacher's internal/handler/ws/delivery.go upgrade→subscribe→pump
// shape, generalized from per-user WS delivery to the bus's flat broadcast
// session set.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vendorflow/taskintake/internal/bus"
)

// writeWait bounds a single WS write; it is independent of the heartbeat
// cadence configured for the hub.
const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type clientMessage struct {
	Type string `json:"type"`
}

// conn is the WS-backed bus.Session. send is buffered so a broadcast never
// blocks on a slow client; if the buffer is full the new frame is dropped
// rather than stalling the publisher.
type conn struct {
	id     uuid.UUID
	ws     *websocket.Conn
	send   chan []byte
	logger *slog.Logger

	closeOnce sync.Once
}

func (c *conn) ID() uuid.UUID { return c.id }

func (c *conn) Deliver(ctx context.Context, frame []byte) error {
	select {
	case c.send <- frame:
		return nil
	default:
		return errSendBufferFull
	}
}

func (c *conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.send)
		_ = c.ws.Close()
	})
	return nil
}

var errSendBufferFull = errors.New("ws: send buffer full")

// Handler upgrades HTTP connections to the dashboard's WS channel. Its ping
// cadence is derived from the hub's own heartbeatInterval so a session never
// gets swept as dead between two of its own pings (see Hub.sweepDead).
type Handler struct {
	hub    *bus.Hub
	logger *slog.Logger

	pongWait   time.Duration
	pingPeriod time.Duration
}

func NewHandler(hub *bus.Hub, heartbeatInterval time.Duration, logger *slog.Logger) *Handler {
	return &Handler{
		hub:        hub,
		logger:     logger,
		pongWait:   heartbeatInterval,
		pingPeriod: heartbeatInterval * 9 / 10,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws: upgrade failed", "err", err)
		return
	}

	c := &conn{
		id:     uuid.New(),
		ws:     wsConn,
		send:   make(chan []byte, 64),
		logger: h.logger,
	}
	h.hub.Register(c)
	h.hub.ConfirmAlive(c.id)

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Handler) writePump(c *conn) {
	ticker := time.NewTicker(h.pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Handler) readPump(c *conn) {
	defer h.hub.Unregister(c.id)

	c.ws.SetReadDeadline(time.Now().Add(h.pongWait))
	c.ws.SetPongHandler(func(string) error {
		h.hub.ConfirmAlive(c.id)
		c.ws.SetReadDeadline(time.Now().Add(h.pongWait))
		return nil
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		h.hub.ConfirmAlive(c.id)

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "ping":
			_ = c.Deliver(context.Background(), []byte(`{"type":"pong"}`))
		case "refresh":
			h.hub.PublishStatus()
		case "togglePause":
			h.hub.TogglePause()
		}
	}
}
