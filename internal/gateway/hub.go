package gateway

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// Conn wraps one upgraded websocket connection with the state the gateway
// needs to route it: which (roomId, playerId) it has joined, a write mutex
// so two goroutines can never interleave frames on the same socket, and a
// per-connection rate limiter.
type Conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	limiter *rate.Limiter

	mu       sync.RWMutex
	roomID   string
	playerID string
}

func newConn(ws *websocket.Conn, limit rate.Limit, burst int) *Conn {
	return &Conn{ws: ws, limiter: rate.NewLimiter(limit, burst)}
}

func (c *Conn) attach(roomID, playerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomID = roomID
	c.playerID = playerID
}

func (c *Conn) identity() (roomID, playerID string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roomID, c.playerID
}

func (c *Conn) send(writeTimeout time.Duration, msgType string, payload any) error {
	data, err := encode(msgType, payload)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *Conn) close() {
	_ = c.ws.Close()
}

// Hub tracks every live connection grouped by room, mirroring the teacher's
// wsHub group-broadcast pattern generalized to a two-way message router
// instead of a snapshot-push-only feed.
type Hub struct {
	writeTimeout time.Duration
	log          *slog.Logger

	mu     sync.Mutex
	groups map[string]map[*Conn]struct{}
}

// NewHub builds an empty Hub.
func NewHub(writeTimeout time.Duration, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		writeTimeout: writeTimeout,
		log:          log,
		groups:       make(map[string]map[*Conn]struct{}),
	}
}

func (h *Hub) add(roomID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	group := h.groups[roomID]
	if group == nil {
		group = make(map[*Conn]struct{})
		h.groups[roomID] = group
	}
	group[c] = struct{}{}
}

func (h *Hub) remove(roomID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	group := h.groups[roomID]
	if group == nil {
		return
	}
	delete(group, c)
	if len(group) == 0 {
		delete(h.groups, roomID)
	}
}

func (h *Hub) connsFor(roomID string) []*Conn {
	h.mu.Lock()
	defer h.mu.Unlock()
	group := h.groups[roomID]
	conns := make([]*Conn, 0, len(group))
	for c := range group {
		conns = append(conns, c)
	}
	return conns
}

// Broadcast sends payload, tagged with msgType, to every connection attached
// to roomID.
func (h *Hub) Broadcast(roomID, msgType string, payload any) {
	for _, c := range h.connsFor(roomID) {
		if err := c.send(h.writeTimeout, msgType, payload); err != nil {
			h.log.Warn("gateway: dropping connection after broadcast failure", "room_id", roomID, "error", err)
			h.closeAndRemove(roomID, c)
		}
	}
}

// Unicast sends payload to a single player within roomID, if connected.
func (h *Hub) Unicast(roomID, playerID, msgType string, payload any) {
	for _, c := range h.connsFor(roomID) {
		_, pid := c.identity()
		if pid != playerID {
			continue
		}
		if err := c.send(h.writeTimeout, msgType, payload); err != nil {
			h.log.Warn("gateway: dropping connection after unicast failure", "room_id", roomID, "player_id", playerID, "error", err)
			h.closeAndRemove(roomID, c)
		}
	}
}

func (h *Hub) closeAndRemove(roomID string, c *Conn) {
	h.remove(roomID, c)
	c.close()
}

func (h *Hub) sendError(c *Conn, code, message string) {
	_ = c.send(h.writeTimeout, EventError, errorPayload{Code: code, Message: message})
}

func decodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(raw, &env)
	return env, err
}
