// Package realtime pushes JSON messages to users over websocket connections. A user may hold
// several connections; every one of them receives the user's messages.
package realtime

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/NAHIAN-19/project-planner/logging"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 32
)

type client struct {
	id     string
	userID string
	conn   *websocket.Conn
	send   chan []byte
}

type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]map[*client]struct{}
}

// NewHub accepts handshakes whose Origin matches allowedOrigin; "*" accepts any origin.
func NewHub(allowedOrigin string) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowedOrigin == "*" || origin == "" || origin == allowedOrigin
			},
		},
		clients: make(map[string]map[*client]struct{}),
	}
}

// Serve upgrades the request and registers the connection for userID. It returns once the
// connection is registered; the pumps run in their own goroutines.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Logger.Warnf("Event ID: WS_UPGRADE_FAILED, Description: Failed to upgrade connection for user %s: %v", userID, err)
		return err
	}

	c := &client{id: uuid.New().String(), userID: userID, conn: conn, send: make(chan []byte, sendBuffer)}
	h.register(c)
	logging.Logger.Infof("Event ID: WS_CONNECTED, Description: User %s connected (connection %s)", userID, c.id)

	go h.writePump(c)
	go h.readPump(c)
	return nil
}

// Push sends v to every connection of userID and reports how many connections took it.
// Connections whose buffer is full are dropped.
func (h *Hub) Push(userID string, v any) (int, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return 0, err
	}

	h.mu.RLock()
	var delivered int
	var slow []*client
	for c := range h.clients[userID] {
		select {
		case c.send <- payload:
			delivered++
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		logging.Logger.Warnf("Event ID: WS_SLOW_CONSUMER, Description: Dropping connection %s of user %s", c.id, c.userID)
		h.unregister(c)
	}
	return delivered, nil
}

// Connections reports the number of open connections of userID.
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	all := h.clients
	h.clients = make(map[string]map[*client]struct{})
	h.mu.Unlock()

	for _, set := range all {
		for c := range set {
			close(c.send)
		}
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.userID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.userID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.userID)
	}
	close(c.send)
}

// readPump only services control frames; clients do not send data.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
		logging.Logger.Infof("Event ID: WS_DISCONNECTED, Description: User %s disconnected (connection %s)", c.userID, c.id)
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
