package gateway

import (
	"sync"

	"github.com/google/uuid"
)

// SessionRegistry is the process-wide, in-memory index of connected sessions,
// keyed by user id. It tolerates multiple concurrent sessions per user —
// unlike the single-session displacement model a chat gateway typically uses,
// every session of a user independently receives a broadcast.
type SessionRegistry struct {
	mu       sync.RWMutex
	byUser   map[uuid.UUID]map[*Session]struct{}
	byHandle map[*Session]uuid.UUID
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		byUser:   make(map[uuid.UUID]map[*Session]struct{}),
		byHandle: make(map[*Session]uuid.UUID),
	}
}

// Attach adds a session to both indices.
func (r *SessionRegistry) Attach(userID uuid.UUID, session *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.byUser[userID]
	if !ok {
		set = make(map[*Session]struct{})
		r.byUser[userID] = set
	}
	set[session] = struct{}{}
	r.byHandle[session] = userID
}

// Detach removes a session from both indices. Safe to call more than once for
// the same session.
func (r *SessionRegistry) Detach(session *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.byHandle[session]
	if !ok {
		return
	}
	delete(r.byHandle, session)
	if set, ok := r.byUser[userID]; ok {
		delete(set, session)
		if len(set) == 0 {
			delete(r.byUser, userID)
		}
	}
}

// SessionsFor returns every currently-registered session belonging to any of
// the given user ids. This is the query the Broadcaster uses to turn an
// audience of user ids into a concrete set of outbound channels.
func (r *SessionRegistry) SessionsFor(userIDs map[uuid.UUID]struct{}) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var sessions []*Session
	for userID := range userIDs {
		for session := range r.byUser[userID] {
			sessions = append(sessions, session)
		}
	}
	return sessions
}

// SessionsForUser returns every currently-registered session for a single user.
func (r *SessionRegistry) SessionsForUser(userID uuid.UUID) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.byUser[userID]
	sessions := make([]*Session, 0, len(set))
	for session := range set {
		sessions = append(sessions, session)
	}
	return sessions
}

// Count returns the number of currently-registered sessions, for metrics.
func (r *SessionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byHandle)
}
