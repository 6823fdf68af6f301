package ws

import "sync"

// Registry owns the chat -> member-set mapping. It is the only state shared
// across connection goroutines; every access goes through the mutex. Rooms
// are created on first join and deleted when the last member leaves, so a
// later joiner recreates the room transparently.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]map[*Session]struct{}
}

func NewRegistry() *Registry {
	return &Registry{rooms: map[string]map[*Session]struct{}{}}
}

// Join adds a session to a chat's member set, creating the set if this is
// the first member.
func (r *Registry) Join(chatID string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	members := r.rooms[chatID]
	if members == nil {
		members = map[*Session]struct{}{}
		r.rooms[chatID] = members
	}
	members[s] = struct{}{}
}

// Leave removes a session from a chat's member set and drops the room entry
// when the set becomes empty.
func (r *Registry) Leave(chatID string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.rooms[chatID]
	if !ok {
		return
	}
	delete(members, s)
	if len(members) == 0 {
		delete(r.rooms, chatID)
	}
}

// Snapshot returns the chat's current members as a slice, safe to iterate
// after the lock is released. Broadcasts fan out over this copy so a
// concurrent join/leave can never tear the iteration.
func (r *Registry) Snapshot(chatID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.rooms[chatID]
	if len(members) == 0 {
		return nil
	}
	out := make([]*Session, 0, len(members))
	for s := range members {
		out = append(out, s)
	}
	return out
}

// Size reports a chat's member count and whether the chat is tracked at
// all. An untracked chat is distinct from a tracked-but-empty one, which
// cannot occur because Leave removes empty rooms.
func (r *Registry) Size(chatID string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members, ok := r.rooms[chatID]
	return len(members), ok
}

// All returns every tracked session across all chats, safe to iterate
// after the lock is released.
func (r *Registry) All() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Session
	for _, members := range r.rooms {
		for s := range members {
			out = append(out, s)
		}
	}
	return out
}

// Rooms returns the number of currently tracked chats.
func (r *Registry) Rooms() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
