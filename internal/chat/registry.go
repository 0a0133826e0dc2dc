package chat

import (
	"sync"

	"github.com/rs/zerolog"
)

// Subscriber is a live delivery target. Deliver must not block: it hands
// the frame to the subscriber's own send path and reports whether it was
// accepted.
type Subscriber interface {
	Deliver(frame []byte) bool
}

type subscriberSet map[Subscriber]struct{}

// Registry maps rooms to the subscribers currently bound to them. One
// RWMutex guards both directions of the relation: Join, Leave and LeaveAll
// take the write lock and Broadcast the read lock, so a Join that returned
// is seen by every later Broadcast and a Leave that returned is seen by none.
type Registry struct {
	mu    sync.RWMutex
	rooms map[RoomID]subscriberSet
	joins map[Subscriber]map[RoomID]struct{}
	log   zerolog.Logger
}

func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		rooms: make(map[RoomID]subscriberSet),
		joins: make(map[Subscriber]map[RoomID]struct{}),
		log:   log.With().Str("component", "registry").Logger(),
	}
}

// Join binds sub to room. Joining twice is a no-op.
func (r *Registry) Join(room RoomID, sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[room]
	if !ok {
		members = make(subscriberSet)
		r.rooms[room] = members
	}
	members[sub] = struct{}{}

	joined, ok := r.joins[sub]
	if !ok {
		joined = make(map[RoomID]struct{})
		r.joins[sub] = joined
	}
	joined[room] = struct{}{}
}

// Leave unbinds sub from room. Leaving a room never joined is a no-op.
func (r *Registry) Leave(room RoomID, sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remove(room, sub)
}

// LeaveAll unbinds sub from every room and returns how many it left. A
// second call returns 0.
func (r *Registry) LeaveAll(sub Subscriber) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	joined := r.joins[sub]
	n := len(joined)
	for room := range joined {
		r.remove(room, sub)
	}
	return n
}

// remove must be called with mu held.
func (r *Registry) remove(room RoomID, sub Subscriber) {
	if members, ok := r.rooms[room]; ok {
		delete(members, sub)
		// If no one is left in the room, remove the room entry entirely
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
	if joined, ok := r.joins[sub]; ok {
		delete(joined, room)
		if len(joined) == 0 {
			delete(r.joins, sub)
		}
	}
}

// Broadcast hands frame to every subscriber of room. A subscriber that
// refuses the frame or panics is skipped; the rest still get it.
func (r *Registry) Broadcast(room RoomID, frame []byte) (delivered, dropped int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for sub := range r.rooms[room] {
		if r.deliver(sub, frame) {
			delivered++
		} else {
			dropped++
		}
	}
	return delivered, dropped
}

func (r *Registry) deliver(sub Subscriber, frame []byte) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().Interface("panic", rec).Msg("subscriber panicked during delivery")
			ok = false
		}
	}()
	return sub.Deliver(frame)
}

// Subscribers returns how many subscribers room has.
func (r *Registry) Subscribers(room RoomID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}

// Rooms returns a snapshot of the rooms sub is bound to.
func (r *Registry) Rooms(sub Subscriber) []RoomID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := make([]RoomID, 0, len(r.joins[sub]))
	for room := range r.joins[sub] {
		rooms = append(rooms, room)
	}
	return rooms
}
