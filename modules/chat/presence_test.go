package chat

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

// fakePublisher records presence transitions handed off for
// persistence.
type fakePublisher struct {
	mu      sync.Mutex
	online  []string
	offline []string
}

func (f *fakePublisher) PublishOnline(userID string, _ time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online = append(f.online, userID)
}

func (f *fakePublisher) PublishOffline(userID string, _ time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offline = append(f.offline, userID)
}

func TestPresence_Connect(t *testing.T) {
	reg := NewRegistry()
	pub := &fakePublisher{}
	presence := NewPresence(reg, pub)

	_, otherTr := connect(t, reg)

	tr := &fakeTransport{}
	sess := NewSession(uuid.New().String(), tr)
	reg.Register(sess)
	presence.HandleConnect(sess)

	// Private ack with the full online snapshot.
	ack, ok := tr.lastOf(EventConnected)
	if !ok {
		t.Fatal("expected connected ack")
	}
	data := ack.Data.(ConnectedData)
	if data.UserID != sess.UserID {
		t.Errorf("expected own user id in ack, got %+v", data)
	}
	if len(data.OnlineUsers) != 2 {
		t.Errorf("expected 2 online users in snapshot, got %v", data.OnlineUsers)
	}

	// Everyone else hears user-online; the connector does not.
	frame, ok := otherTr.lastOf(EventUserOnline)
	if !ok {
		t.Fatal("expected user-online on other session")
	}
	if frame.Data.(PresenceData).UserID != sess.UserID {
		t.Errorf("expected announcement for connector, got %+v", frame.Data)
	}
	if tr.countOf(EventUserOnline) != 0 {
		t.Error("expected no self-announcement")
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.online) != 1 || pub.online[0] != sess.UserID {
		t.Errorf("expected online transition published, got %v", pub.online)
	}
}

func TestPresence_Disconnect(t *testing.T) {
	reg := NewRegistry()
	pub := &fakePublisher{}
	presence := NewPresence(reg, pub)

	leaver, _ := connect(t, reg)
	_, stayTr := connect(t, reg)

	reg.Unregister(leaver)
	presence.HandleDisconnect(leaver.UserID)

	frame, ok := stayTr.lastOf(EventUserOffline)
	if !ok {
		t.Fatal("expected user-offline broadcast")
	}
	data := frame.Data.(PresenceData)
	if data.UserID != leaver.UserID {
		t.Errorf("expected announcement for leaver, got %+v", data)
	}
	if data.LastSeen == nil {
		t.Error("expected lastSeen on offline announcement")
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.offline) != 1 || pub.offline[0] != leaver.UserID {
		t.Errorf("expected offline transition published, got %v", pub.offline)
	}
}

func TestPresence_CheckOnline(t *testing.T) {
	reg := NewRegistry()
	presence := NewPresence(reg, nil)

	sess, _ := connect(t, reg)

	if got := presence.CheckOnline(sess.UserID); !got.IsOnline {
		t.Error("expected connected user online")
	}
	if got := presence.CheckOnline(uuid.New().String()); got.IsOnline {
		t.Error("expected unknown user offline")
	}
	if got := presence.OnlineUsers(); len(got.Users) != 1 {
		t.Errorf("expected 1 online user, got %v", got.Users)
	}
}
