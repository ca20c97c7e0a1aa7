package server

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aceteam-ai/shiftclock/internal/events"
)

const (
	// writeWait bounds a single websocket write
	writeWait = 10 * time.Second

	// pingPeriod keeps idle connections alive through proxies
	pingPeriod = 30 * time.Second

	// sendBuffer is how many events a slow client may lag before it is dropped
	sendBuffer = 32
)

// Hub fans committed time log events out to websocket clients. It is an
// events.Publisher so it can sit directly on the event bus.
type Hub struct {
	mu      sync.RWMutex
	clients map[*hubClient]struct{}
	closed  bool

	debugFunc func(format string, args ...any)
}

type hubClient struct {
	conn  *websocket.Conn
	jobID string // empty receives every job
	send  chan events.Event
}

var _ events.Publisher = (*Hub)(nil)

// NewHub creates an empty hub.
func NewHub(debugFunc func(format string, args ...any)) *Hub {
	return &Hub{
		clients:   make(map[*hubClient]struct{}),
		debugFunc: debugFunc,
	}
}

func (h *Hub) debug(format string, args ...any) {
	if h.debugFunc != nil {
		h.debugFunc(format, args...)
	}
}

// Publish queues e for every matching client. Clients whose buffer is full
// are disconnected rather than blocking the publisher.
func (h *Hub) Publish(_ context.Context, e events.Event) error {
	h.mu.RLock()
	var slow []*hubClient
	for c := range h.clients {
		if c.jobID != "" && c.jobID != e.JobID {
			continue
		}
		select {
		case c.send <- e:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.debug("hub: dropping slow client for job %q", c.jobID)
		h.remove(c)
	}
	return nil
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// serve registers conn and blocks until the peer goes away or the hub closes.
func (h *Hub) serve(conn *websocket.Conn, jobID string) {
	c := &hubClient{conn: conn, jobID: jobID, send: make(chan events.Event, sendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.debug("hub: client connected (job=%q)", jobID)

	go h.readLoop(c)
	h.writeLoop(c)
}

// readLoop discards inbound frames and detects disconnects
func (h *Hub) readLoop(c *hubClient) {
	defer h.remove(c)
	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *hubClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.remove(c)
		c.conn.Close()
	}()

	for {
		select {
		case e, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteJSON(e); err != nil {
				h.debug("hub: write failed: %v", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// remove unregisters c and closes its queue. Only the first call for a
// client has effect; Publish never sends to a client outside the map.
func (h *Hub) remove(c *hubClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	if ok {
		close(c.send)
	}
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*hubClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.remove(c)
	}
}
