package chat

import (
	"log"
	"time"
)

// presencePublisher receives presence transitions for asynchronous
// persistence. The chat module implements it on top of the EventBus.
type presencePublisher interface {
	PublishOnline(userID string, at time.Time)
	PublishOffline(userID string, at time.Time)
}

// Presence broadcasts connect and disconnect transitions. The socket
// notifications happen synchronously on the connection's goroutine;
// the database writes ride the event bus.
type Presence struct {
	registry  *Registry
	publisher presencePublisher
}

// NewPresence creates a presence broadcaster.
func NewPresence(registry *Registry, publisher presencePublisher) *Presence {
	return &Presence{registry: registry, publisher: publisher}
}

// HandleConnect acknowledges the new session and announces the user to
// everyone else.
func (p *Presence) HandleConnect(sess *Session) {
	now := time.Now()

	ack := ConnectedData{
		UserID:      sess.UserID,
		OnlineUsers: p.registry.OnlineUsers(),
	}
	if err := sess.Send(EventConnected, ack); err != nil {
		log.Printf("[chat] failed to send connected ack to %s: %v", sess.UserID, err)
	}

	p.registry.Broadcast(EventUserOnline, PresenceData{
		UserID:    sess.UserID,
		Timestamp: now,
	}, sess.UserID)

	if p.publisher != nil {
		p.publisher.PublishOnline(sess.UserID, now)
	}
}

// HandleDisconnect announces the departure. Callers must have already
// unregistered the session; stale disconnects never reach here.
func (p *Presence) HandleDisconnect(userID string) {
	now := time.Now()

	p.registry.Broadcast(EventUserOffline, PresenceData{
		UserID:    userID,
		Timestamp: now,
		LastSeen:  &now,
	}, userID)

	if p.publisher != nil {
		p.publisher.PublishOffline(userID, now)
	}
}

// CheckOnline reports one user's presence.
func (p *Presence) CheckOnline(userID string) OnlineStatusData {
	return OnlineStatusData{
		UserID:   userID,
		IsOnline: p.registry.IsOnline(userID),
	}
}

// OnlineUsers lists all connected users.
func (p *Presence) OnlineUsers() OnlineUsersData {
	return OnlineUsersData{Users: p.registry.OnlineUsers()}
}
