package room

import (
	"sync"

	"go.uber.org/zap"

	"github.com/kapu/chess-arena/internal/obslog"
	"github.com/kapu/chess-arena/internal/presence"
)

// Conn is one live client connection. Send must never block: transport
// implementations buffer and drop slow consumers.
type Conn interface {
	ID() string
	UserID() string
	Send(event string, payload any)
}

// Router binds connections to game rooms and fans state-change events
// out to every member. It reads the presence registry to tell "user
// closed one of several tabs" apart from "user is actually gone"; it
// never mutates it.
type Router struct {
	mu       sync.RWMutex
	presence *presence.Registry
	rooms    map[int64]map[string]Conn     // gameID -> connID -> conn
	joined   map[string]map[int64]struct{} // connID -> room ids
}

func NewRouter(p *presence.Registry) *Router {
	return &Router{
		presence: p,
		rooms:    make(map[int64]map[string]Conn),
		joined:   make(map[string]map[int64]struct{}),
	}
}

func (r *Router) Join(c Conn, gameID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.rooms[gameID]
	if !ok {
		members = make(map[string]Conn)
		r.rooms[gameID] = members
	}
	members[c.ID()] = c

	set, ok := r.joined[c.ID()]
	if !ok {
		set = make(map[int64]struct{})
		r.joined[c.ID()] = set
	}
	set[gameID] = struct{}{}
}

func (r *Router) Leave(c Conn, gameID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(c.ID(), gameID)
}

func (r *Router) leaveLocked(connID string, gameID int64) {
	if members, ok := r.rooms[gameID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.rooms, gameID)
		}
	}
	if set, ok := r.joined[connID]; ok {
		delete(set, gameID)
		if len(set) == 0 {
			delete(r.joined, connID)
		}
	}
}

// LeaveAll removes the connection from every room it joined and returns
// those room ids. Used on terminal disconnect.
func (r *Router) LeaveAll(c Conn) []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.joined[c.ID()]
	if len(set) == 0 {
		return nil
	}
	out := make([]int64, 0, len(set))
	for gameID := range set {
		out = append(out, gameID)
	}
	for _, gameID := range out {
		r.leaveLocked(c.ID(), gameID)
	}
	return out
}

// InRoom reports whether the connection is a member of the room.
func (r *Router) InRoom(connID string, gameID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[gameID][connID]
	return ok
}

// UserConnsInRoom counts the user's connections currently joined to the
// room, consulting the presence registry for the user's live set.
func (r *Router) UserConnsInRoom(userID string, gameID int64) int {
	conns := r.presence.ConnectionsOf(userID)
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.rooms[gameID]
	n := 0
	for _, id := range conns {
		if _, ok := members[id]; ok {
			n++
		}
	}
	return n
}

// IsLastConnectionInRoom reports whether none of the user's connections
// other than exceptConnID are members of the room. Decides whether a
// disconnect should notify the opponent.
func (r *Router) IsLastConnectionInRoom(userID string, gameID int64, exceptConnID string) bool {
	conns := r.presence.ConnectionsOf(userID)
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.rooms[gameID]
	for _, id := range conns {
		if id == exceptConnID {
			continue
		}
		if _, ok := members[id]; ok {
			return false
		}
	}
	return true
}

// Broadcast fans the event out to every connection in the room.
func (r *Router) Broadcast(gameID int64, event string, payload any) {
	r.broadcast(gameID, "", event, payload)
}

// BroadcastExcept fans out to the room, skipping one connection.
func (r *Router) BroadcastExcept(gameID int64, exceptConnID, event string, payload any) {
	r.broadcast(gameID, exceptConnID, event, payload)
}

func (r *Router) broadcast(gameID int64, exceptConnID, event string, payload any) {
	r.mu.RLock()
	members := r.rooms[gameID]
	targets := make([]Conn, 0, len(members))
	for id, c := range members {
		if id == exceptConnID {
			continue
		}
		targets = append(targets, c)
	}
	r.mu.RUnlock()

	for _, c := range targets {
		c.Send(event, payload)
	}
	obslog.L().Debug("room_broadcast",
		zap.Int64("game_id", gameID),
		zap.String("event", event),
		zap.Int("connections", len(targets)),
	)
}
