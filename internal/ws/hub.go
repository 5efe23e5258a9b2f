package ws

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

const slowClientReason = "send buffer full"

// Hub is the group registry: it maps a group id to the set of currently
// connected sessions, plus the special global room. Registration and
// removal are race-free against concurrent fan-out; removal is idempotent.
type Hub struct {
	groupRooms map[int64]map[*Client]bool
	globalRoom map[*Client]bool
	mu         sync.RWMutex
	logger     *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		groupRooms: make(map[int64]map[*Client]bool),
		globalRoom: make(map[*Client]bool),
		logger:     logger,
	}
}

// AddGroupClient registers a session in a group room.
func (h *Hub) AddGroupClient(groupID int64, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.groupRooms[groupID]; !ok {
		h.groupRooms[groupID] = make(map[*Client]bool)
	}
	h.groupRooms[groupID][client] = true
}

// RemoveGroupClient removes a session from a group room. Safe to call
// multiple times and from any teardown path.
func (h *Hub) RemoveGroupClient(groupID int64, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.groupRooms[groupID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.groupRooms, groupID)
		}
	}
}

// AddRoomClient registers a session in the global room.
func (h *Hub) AddRoomClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.globalRoom[client] = true
}

// RemoveRoomClient removes a session from the global room. Idempotent.
func (h *Hub) RemoveRoomClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.globalRoom, client)
}

// GroupClientCount reports how many sessions a group room currently holds.
func (h *Hub) GroupClientCount(groupID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groupRooms[groupID])
}

// BroadcastGroup delivers an event to every session registered in the
// group at delivery time. The registry snapshot is taken atomically; a
// session disconnecting mid-fan-out neither receives the event nor fails
// the others.
func (h *Hub) BroadcastGroup(groupID int64, event OutboundEvent) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.groupRooms[groupID]))
	for client := range h.groupRooms[groupID] {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	h.deliver(clients, event, func(c *Client) { h.RemoveGroupClient(groupID, c) })
}

// BroadcastRoom delivers an event to every session in the global room.
func (h *Hub) BroadcastRoom(event OutboundEvent) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.globalRoom))
	for client := range h.globalRoom {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	h.deliver(clients, event, h.RemoveRoomClient)
}

// deliver serializes once and enqueues per session. A session whose send
// buffer is full or whose connection is closed is dropped without blocking
// delivery to the rest.
func (h *Hub) deliver(clients []*Client, event OutboundEvent, remove func(*Client)) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("marshal outbound event", zap.Error(err))
		return
	}

	for _, client := range clients {
		if !client.enqueue(payload) {
			h.logger.Warn("dropping slow websocket client",
				zap.String("conn_id", client.info.ConnID),
				zap.Int64("user_id", client.userID))
			client.setCloseReason(slowClientReason)
			publishSessionEvent(context.Background(), client.kind(), client.groupID, "ws_drop",
				client.info, client.userID, slowClientReason)
			remove(client)
			client.Close()
		}
	}
}
