package services

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"payables-relay/internal/metrics"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = (wsPongWait * 9) / 10
	wsSendBufferSize = 64
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// PushHub streams finalization events to connected websocket clients. It
// implements Notifier so it can sit in the fan-out next to the NATS bus.
type PushHub struct {
	mu      sync.RWMutex
	clients map[*pushClient]struct{}
	log     *logrus.Logger
}

type pushClient struct {
	hub  *PushHub
	conn *websocket.Conn
	send chan []byte
}

// NewPushHub creates a PushHub.
func NewPushHub(log *logrus.Logger) *PushHub {
	return &PushHub{
		clients: make(map[*pushClient]struct{}),
		log:     log,
	}
}

// PublishFinalized broadcasts the event to every connected client. A client
// whose send buffer is full is dropped rather than blocking the publisher.
func (h *PushHub) PublishFinalized(event FinalizedEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	h.mu.RLock()
	var stale []*pushClient
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			stale = append(stale, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range stale {
		h.remove(c)
	}
	return nil
}

// ServeWS upgrades an HTTP request into a push subscription.
func (h *PushHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("Websocket upgrade failed")
		return
	}
	c := &pushClient{hub: h, conn: conn, send: make(chan []byte, wsSendBufferSize)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	metrics.WSClientsConnected.Inc()

	go c.writePump()
	go c.readPump()
}

// ClientCount returns the number of connected clients.
func (h *PushHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *PushHub) remove(c *pushClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	if ok {
		metrics.WSClientsConnected.Dec()
		c.conn.Close()
	}
}

// readPump discards inbound frames; the stream is one-way. It exists to
// service pongs and to notice disconnects.
func (c *pushClient) readPump() {
	defer c.hub.remove(c)
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *pushClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.hub.remove(c)
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
