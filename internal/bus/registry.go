package bus

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/metrics"
	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/models"
)

// Frame is one event delivered over a live connection.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Conn is a live client connection held by this process. Send is best-effort:
// it reports false when the frame was dropped (buffer full or connection
// closing), and delivery is never retried.
type Conn interface {
	Send(frame Frame) bool
	Close()
}

type registration struct {
	userID  string
	channel models.Channel
	conn    Conn
}

// Registry tracks which users hold live connections on this process,
// partitioned by logical channel, plus in-process room subscriptions. It is
// the only shared mutable state in the process and is safe for concurrent
// use. Connections are owned exclusively by this process and never
// referenced remotely.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]registration                           // connID -> registration
	byUser map[models.Channel]map[string]map[string]struct{} // channel -> userID -> connIDs
	rooms  map[string]map[string]struct{}                    // roomID -> connIDs
	joined map[string]map[string]struct{}                    // connID -> roomIDs
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[string]registration),
		byUser: make(map[models.Channel]map[string]map[string]struct{}),
		rooms:  make(map[string]map[string]struct{}),
		joined: make(map[string]map[string]struct{}),
	}
}

// Register binds a live connection under a channel namespace and returns its
// connection id. A user may hold many simultaneous connections.
func (r *Registry) Register(userID string, channel models.Channel, conn Conn) string {
	connID := uuid.NewString()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[connID] = registration{userID: userID, channel: channel, conn: conn}

	users := r.byUser[channel]
	if users == nil {
		users = make(map[string]map[string]struct{})
		r.byUser[channel] = users
	}
	ids := users[userID]
	if ids == nil {
		ids = make(map[string]struct{})
		users[userID] = ids
	}
	ids[connID] = struct{}{}

	metrics.ConnectionsActive.WithLabelValues(string(channel)).Inc()
	return connID
}

// Deregister removes a connection. It is idempotent: deregistering an unknown
// or already-removed connection is a no-op. The second return value reports
// whether the owning user now has zero connections on any channel, which
// drives the presence offline transition.
func (r *Registry) Deregister(connID string) (userID string, lastConnection bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.conns[connID]
	if !ok {
		return "", false
	}
	delete(r.conns, connID)

	if users := r.byUser[reg.channel]; users != nil {
		if ids := users[reg.userID]; ids != nil {
			delete(ids, connID)
			if len(ids) == 0 {
				delete(users, reg.userID)
			}
		}
	}

	for roomID := range r.joined[connID] {
		if members := r.rooms[roomID]; members != nil {
			delete(members, connID)
			if len(members) == 0 {
				delete(r.rooms, roomID)
			}
		}
	}
	delete(r.joined, connID)

	metrics.ConnectionsActive.WithLabelValues(string(reg.channel)).Dec()

	for _, users := range r.byUser {
		if _, still := users[reg.userID]; still {
			return reg.userID, false
		}
	}
	return reg.userID, true
}

// JoinRoom subscribes a connection to a logical room. Unknown connections are
// ignored.
func (r *Registry) JoinRoom(roomID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[connID]; !ok {
		return
	}
	members := r.rooms[roomID]
	if members == nil {
		members = make(map[string]struct{})
		r.rooms[roomID] = members
	}
	members[connID] = struct{}{}

	joined := r.joined[connID]
	if joined == nil {
		joined = make(map[string]struct{})
		r.joined[connID] = joined
	}
	joined[roomID] = struct{}{}
}

// LeaveRoom unsubscribes a connection from a room. Idempotent.
func (r *Registry) LeaveRoom(roomID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if members := r.rooms[roomID]; members != nil {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.rooms, roomID)
		}
	}
	if joined := r.joined[connID]; joined != nil {
		delete(joined, roomID)
	}
}

// ConnsForUser returns every live connection of a user across all channels.
func (r *Registry) ConnsForUser(userID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Conn
	for _, users := range r.byUser {
		for connID := range users[userID] {
			if reg, ok := r.conns[connID]; ok {
				out = append(out, reg.conn)
			}
		}
	}
	return out
}

// ConnsForRoom returns every connection subscribed to a room.
func (r *Registry) ConnsForRoom(roomID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Conn
	for connID := range r.rooms[roomID] {
		if reg, ok := r.conns[connID]; ok {
			out = append(out, reg.conn)
		}
	}
	return out
}

// OnlineUsers returns the number of distinct users holding at least one
// connection on this process.
func (r *Registry) OnlineUsers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, users := range r.byUser {
		for userID := range users {
			seen[userID] = struct{}{}
		}
	}
	return len(seen)
}

// Connections returns the number of live connections on this process.
func (r *Registry) Connections() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
