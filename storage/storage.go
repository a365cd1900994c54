package storage

import (
	"sync"

	"theatre.live/model"
)

// Rooms is the authoritative store of live rooms. All state is process
// memory, a room exists exactly while it has at least one user.
type Rooms interface {
	// Exist reports whether the room is currently live.
	Exist(roomID string) bool
	// Update runs fn under the room's lock. Handling of one event is atomic
	// with respect to the room, events for different rooms run in parallel.
	// When the room is absent it is created first if create is set, otherwise
	// Update reports false and fn never runs. A room left without users by fn
	// is deleted before Update returns.
	Update(roomID string, create bool, fn func(r *model.Room)) bool
	// Snapshot returns a copy of the room, detached from the store.
	Snapshot(roomID string) (*model.Room, bool)
	// RemoveConnection removes the connection from every room it is found in,
	// deleting rooms that become empty. For each surviving affected room fn is
	// called with the updated user list, under that room's lock.
	RemoveConnection(connID string, fn func(roomID string, users []*model.User))
}

type (
	rooms struct {
		mu      sync.RWMutex
		entries map[string]*entry
	}

	entry struct {
		mu sync.Mutex
		// closed marks an entry that has been deleted from the map while
		// somebody else still held a pointer to it.
		closed bool
		room   *model.Room
	}
)

func NewRooms() Rooms {
	return &rooms{entries: make(map[string]*entry)}
}

func (s *rooms) Exist(roomID string) bool {
	s.mu.RLock()
	_, exists := s.entries[roomID]
	s.mu.RUnlock()
	return exists
}

func (s *rooms) Update(roomID string, create bool, fn func(r *model.Room)) bool {
	for {
		s.mu.RLock()
		e, exists := s.entries[roomID]
		s.mu.RUnlock()

		if !exists {
			if !create {
				return false
			}
			s.mu.Lock()
			e, exists = s.entries[roomID]
			if !exists {
				// Slices start non-nil so a fresh room's snapshot
				// serializes them as [] rather than null.
				e = &entry{room: &model.Room{
					ID:       roomID,
					Users:    []*model.User{},
					Messages: []model.ChatMessage{},
				}}
				s.entries[roomID] = e
			}
			s.mu.Unlock()
		}

		e.mu.Lock()
		if e.closed {
			// Lost the race against a deletion, the map holds a fresh
			// entry (or none) by now.
			e.mu.Unlock()
			continue
		}
		fn(e.room)
		empty := len(e.room.Users) == 0
		if empty {
			e.closed = true
		}
		e.mu.Unlock()

		if empty {
			s.mu.Lock()
			if cur, exists := s.entries[roomID]; exists && cur == e {
				delete(s.entries, roomID)
			}
			s.mu.Unlock()
		}
		return true
	}
}

func (s *rooms) Snapshot(roomID string) (*model.Room, bool) {
	var snap *model.Room
	exists := s.Update(roomID, false, func(r *model.Room) {
		snap = r.Clone()
	})
	return snap, exists
}

func (s *rooms) RemoveConnection(connID string, fn func(roomID string, users []*model.User)) {
	// The map lock covers only the entry snapshot. Removal and the fn
	// fan-out run under each room's own lock, a slow recipient in one room
	// must not stall events for the others.
	s.mu.RLock()
	entries := make(map[string]*entry, len(s.entries))
	for id, e := range s.entries {
		entries[id] = e
	}
	s.mu.RUnlock()

	for id, e := range entries {
		e.mu.Lock()
		if e.closed || !e.room.RemoveUser(connID) {
			e.mu.Unlock()
			continue
		}
		if len(e.room.Users) == 0 {
			e.closed = true
			e.mu.Unlock()
			s.mu.Lock()
			if cur, exists := s.entries[id]; exists && cur == e {
				delete(s.entries, id)
			}
			s.mu.Unlock()
			continue
		}
		if fn != nil {
			fn(id, e.room.Users)
		}
		e.mu.Unlock()
	}
}
