package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"messaging-service/internal/models"
)

// Hub kinds, used as metric and routing labels.
const (
	KindMessage  = "message"
	KindPresence = "presence"
)

var errSlowClient = errors.New("send buffer full")

// Hub maintains the live clients of one endpoint and the named rooms they
// have joined.
type Hub struct {
	kind    string
	clients map[string]*Client
	rooms   map[string]map[string]*Client
	mu      sync.RWMutex
	logger  *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(kind string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		kind:    kind,
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]*Client),
		logger:  logger.With("component", "ws_hub", "kind", kind),
	}
}

// Register adds a client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ID()] = c
}

// Unregister removes a client from the hub and every room and closes its
// send buffer. Unknown ids are ignored.
func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	c, ok := h.clients[connID]
	if ok {
		delete(h.clients, connID)
		for name, members := range h.rooms {
			delete(members, connID)
			if len(members) == 0 {
				delete(h.rooms, name)
			}
		}
	}
	h.mu.Unlock()
	if ok {
		c.close()
	}
}

// AddToRoom joins a registered client to a room.
func (h *Hub) AddToRoom(room, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[connID]
	if !ok {
		return
	}
	if _, ok := h.rooms[room]; !ok {
		h.rooms[room] = make(map[string]*Client)
	}
	h.rooms[room][connID] = c
}

// RemoveFromRoom removes a client from a room.
func (h *Hub) RemoveFromRoom(room, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.rooms[room]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// roomMembers returns the sorted connection ids in a room.
func (h *Hub) roomMembers(room string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.rooms[room]))
	for id := range h.rooms[room] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SendToRoom delivers event to every client in room.
func (h *Hub) SendToRoom(room string, event models.HubEvent) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[room]))
	for _, c := range h.rooms[room] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	h.deliver(targets, event)
}

// SendToConnections delivers event to the listed connection ids that are
// registered with this hub.
func (h *Hub) SendToConnections(connIDs []string, event models.HubEvent) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(connIDs))
	for _, id := range connIDs {
		if c, ok := h.clients[id]; ok {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	h.deliver(targets, event)
}

// SendToConnection delivers event to one client and reports whether it was queued.
func (h *Hub) SendToConnection(connID string, event models.HubEvent) bool {
	h.mu.RLock()
	c, ok := h.clients[connID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	return h.deliver([]*Client{c}, event) == 1
}

// SendToAll delivers event to every client except exceptConnID.
func (h *Hub) SendToAll(event models.HubEvent, exceptConnID string) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for id, c := range h.clients {
		if id != exceptConnID {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	h.deliver(targets, event)
}

func (h *Hub) deliver(targets []*Client, event models.HubEvent) int {
	if len(targets) == 0 {
		return 0
	}
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("marshal hub event", "type", event.Type, "error", err)
		return 0
	}
	sent := 0
	for _, c := range targets {
		if c.enqueue(payload) {
			sent++
			continue
		}
		h.logger.Warn("dropping slow websocket client", "conn_id", c.ID(), "username", c.info.Username)
		h.Unregister(c.ID())
		publishWSEvent(context.Background(), h.kind, "ws_error", c.info, errSlowClient.Error())
	}
	return sent
}
