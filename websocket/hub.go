package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"kinship/metrics"
	"kinship/presence"
)

const presenceTimeout = 2 * time.Second

// Hub routes events to users. Each user has a room holding all of their live
// connections. All membership changes and sends happen under mu, and a
// client's send channel is only closed under the write lock, so an enqueue
// never hits a closed channel.
type Hub struct {
	mu       sync.RWMutex
	rooms    map[string]map[*Client]struct{}
	presence presence.Tracker
	// trackMu orders presence writes so the last one matches the room state.
	trackMu sync.Mutex
	log     *zap.Logger
	now     func() time.Time
}

// Message is the wire envelope for events pushed to clients.
type Message struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

func NewHub(tracker presence.Tracker, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		rooms:    make(map[string]map[*Client]struct{}),
		presence: tracker,
		log:      log,
		now:      time.Now,
	}
}

// Join adds c to its user's room. A user may hold any number of connections.
func (h *Hub) Join(c *Client) {
	h.mu.Lock()
	room := h.rooms[c.UserID]
	first := len(room) == 0
	if room == nil {
		room = make(map[*Client]struct{})
		h.rooms[c.UserID] = room
	}
	if _, ok := room[c]; ok {
		h.mu.Unlock()
		return
	}
	room[c] = struct{}{}
	h.mu.Unlock()

	metrics.Connections.Inc()
	if first {
		h.track(c.UserID)
	}
}

// Leave removes c from its room and closes its send channel. Calling it for a
// client that already left is a no-op.
func (h *Hub) Leave(c *Client) {
	h.mu.Lock()
	room := h.rooms[c.UserID]
	if _, ok := room[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(room, c)
	close(c.send)
	last := len(room) == 0
	if last {
		delete(h.rooms, c.UserID)
	}
	h.mu.Unlock()

	metrics.Connections.Dec()
	if last {
		h.track(c.UserID)
	}
}

// track writes userID's current room state to the presence tracker. The state
// is read after taking trackMu, so a leave racing a join can't leave a
// connected user recorded offline.
func (h *Hub) track(userID string) {
	if h.presence == nil {
		return
	}
	h.trackMu.Lock()
	defer h.trackMu.Unlock()
	online := h.IsOnline(userID)

	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()

	var err error
	if online {
		err = h.presence.Online(ctx, userID)
	} else {
		err = h.presence.Offline(ctx, userID, h.now().UTC())
	}
	if err != nil {
		h.log.Warn("presence update failed", zap.String("user_id", userID), zap.Bool("online", online), zap.Error(err))
	}
}

// Emit pushes an event to every connection of userID. It never blocks: a
// connection whose buffer is full is dropped from the room. Emitting to a user
// with no connections does nothing.
func (h *Hub) Emit(userID, event string, payload interface{}) {
	data, err := json.Marshal(&Message{Event: event, Data: payload})
	if err != nil {
		h.log.Error("marshal push event", zap.String("event", event), zap.Error(err))
		return
	}

	var slow []*Client
	delivered := 0
	h.mu.RLock()
	for c := range h.rooms[userID] {
		select {
		case c.send <- data:
			delivered++
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	metrics.PushEvent(event, delivered)
	for _, c := range slow {
		h.log.Warn("dropping slow websocket client", zap.String("user_id", c.UserID), zap.String("client_id", c.ID))
		metrics.DroppedConnection()
		h.Leave(c)
	}
}

// sendTo enqueues data on a single connection. It reports false when the
// client has left or its buffer is full.
func (h *Hub) sendTo(c *Client, data []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.rooms[c.UserID][c]; !ok {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[userID]) > 0
}

// Connections returns the number of live connections across all users.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, room := range h.rooms {
		n += len(room)
	}
	return n
}

// Shutdown disconnects every client.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	var all []*Client
	for _, room := range h.rooms {
		for c := range room {
			all = append(all, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range all {
		h.Leave(c)
	}
}
