package chat

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
)

// fakeTransport records every frame written to it.
type fakeTransport struct {
	mu         sync.Mutex
	frames     []Envelope
	closed     bool
	failWrites bool
}

func (f *fakeTransport) WriteJSON(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites {
		return errors.New("write on closed connection")
	}
	f.frames = append(f.frames, v.(Envelope))
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// eventNames returns the event names written so far, in order.
func (f *fakeTransport) eventNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, len(f.frames))
	for i, fr := range f.frames {
		names[i] = fr.Event
	}
	return names
}

// lastOf returns the most recent frame with the given event name.
func (f *fakeTransport) lastOf(event string) (Envelope, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.frames) - 1; i >= 0; i-- {
		if f.frames[i].Event == event {
			return f.frames[i], true
		}
	}
	return Envelope{}, false
}

func (f *fakeTransport) countOf(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, fr := range f.frames {
		if fr.Event == event {
			n++
		}
	}
	return n
}

func TestRegistry_LastConnectWins(t *testing.T) {
	reg := NewRegistry()
	user := uuid.New().String()

	first := NewSession(user, &fakeTransport{})
	if replaced := reg.Register(first); replaced != nil {
		t.Fatalf("expected no replaced session, got %v", replaced.ConnID)
	}

	second := NewSession(user, &fakeTransport{})
	replaced := reg.Register(second)
	if replaced != first {
		t.Fatal("expected first session to be replaced")
	}

	current, ok := reg.Resolve(user)
	if !ok || current.ConnID != second.ConnID {
		t.Errorf("expected second session to be current, got %+v", current)
	}
	if reg.Count() != 1 {
		t.Errorf("expected 1 registered user, got %d", reg.Count())
	}
}

func TestRegistry_StaleUnregisterIgnored(t *testing.T) {
	reg := NewRegistry()
	user := uuid.New().String()

	first := NewSession(user, &fakeTransport{})
	reg.Register(first)
	second := NewSession(user, &fakeTransport{})
	reg.Register(second)

	// The old connection's teardown arrives after the reconnect.
	if reg.Unregister(first) {
		t.Error("expected stale unregister to be rejected")
	}
	if !reg.IsOnline(user) {
		t.Error("expected user to remain online after stale unregister")
	}

	if !reg.Unregister(second) {
		t.Error("expected current session unregister to succeed")
	}
	if reg.IsOnline(user) {
		t.Error("expected user offline after real unregister")
	}
}

func TestRegistry_BroadcastExcludesSender(t *testing.T) {
	reg := NewRegistry()

	alice := NewSession(uuid.New().String(), &fakeTransport{})
	bob := NewSession(uuid.New().String(), &fakeTransport{})
	carol := NewSession(uuid.New().String(), &fakeTransport{})
	reg.Register(alice)
	reg.Register(bob)
	reg.Register(carol)

	reg.Broadcast(EventUserOnline, PresenceData{UserID: alice.UserID}, alice.UserID)

	if n := alice.transport.(*fakeTransport).countOf(EventUserOnline); n != 0 {
		t.Errorf("expected no frame for excluded user, got %d", n)
	}
	for _, sess := range []*Session{bob, carol} {
		if n := sess.transport.(*fakeTransport).countOf(EventUserOnline); n != 1 {
			t.Errorf("expected 1 frame for %s, got %d", sess.UserID, n)
		}
	}
}

func TestRegistry_OnlineUsers(t *testing.T) {
	reg := NewRegistry()
	ids := map[string]bool{}
	for i := 0; i < 3; i++ {
		sess := NewSession(uuid.New().String(), &fakeTransport{})
		reg.Register(sess)
		ids[sess.UserID] = true
	}

	online := reg.OnlineUsers()
	if len(online) != 3 {
		t.Fatalf("expected 3 online users, got %d", len(online))
	}
	for _, id := range online {
		if !ids[id] {
			t.Errorf("unexpected user id %s", id)
		}
	}
}
