package chat

import (
	"sync"

	"github.com/google/uuid"
)

// Transport is the write side of a client connection. The websocket
// connection satisfies it in production; tests use a recording fake.
type Transport interface {
	WriteJSON(v any) error
	Close() error
}

// Session binds one authenticated user to one live connection. Writes
// are serialized per session because the underlying websocket allows
// only one concurrent writer.
type Session struct {
	ConnID string
	UserID string

	mu        sync.Mutex
	transport Transport
}

// NewSession creates a session with a fresh connection id.
func NewSession(userID string, transport Transport) *Session {
	return &Session{
		ConnID:    uuid.New().String(),
		UserID:    userID,
		transport: transport,
	}
}

// Send writes one named event to the connection.
func (s *Session) Send(event string, data any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transport.WriteJSON(Envelope{Event: event, Data: data})
}

// Close closes the underlying connection.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transport.Close()
}

// Registry maps user ids to their live sessions. A user has at most
// one session: a newer connection replaces the older one.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
	}
}

// Register records the session as the user's current connection and
// returns the session it replaced, if any. The replaced session is no
// longer reachable through the registry but stays open until closed by
// the caller.
func (r *Registry) Register(sess *Session) (replaced *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	replaced = r.sessions[sess.UserID]
	r.sessions[sess.UserID] = sess
	return replaced
}

// Unregister removes the session, but only while it is still the
// user's current one. A stale disconnect arriving after a reconnect
// must not tear down the newer session.
func (r *Registry) Unregister(sess *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.sessions[sess.UserID]
	if !ok || current.ConnID != sess.ConnID {
		return false
	}
	delete(r.sessions, sess.UserID)
	return true
}

// Resolve returns the user's current session.
func (r *Registry) Resolve(userID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[userID]
	return sess, ok
}

// IsOnline reports whether the user has a registered session.
func (r *Registry) IsOnline(userID string) bool {
	_, ok := r.Resolve(userID)
	return ok
}

// OnlineUsers returns the ids of all connected users.
func (r *Registry) OnlineUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	users := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		users = append(users, id)
	}
	return users
}

// Count returns the number of connected users.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Broadcast sends an event to every session except the excluded user.
// Write failures on individual sessions are ignored; the read loop of
// a dead connection cleans it up.
func (r *Registry) Broadcast(event string, data any, excludeUserID string) {
	r.mu.RLock()
	targets := make([]*Session, 0, len(r.sessions))
	for id, sess := range r.sessions {
		if id == excludeUserID {
			continue
		}
		targets = append(targets, sess)
	}
	r.mu.RUnlock()

	for _, sess := range targets {
		_ = sess.Send(event, data)
	}
}
