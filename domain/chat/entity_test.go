package chat

import (
	"testing"
	"time"
)

func TestConversation_ViewFor(t *testing.T) {
	conv := &Conversation{
		ID:          "c1",
		User1ID:     "alice",
		User2ID:     "bob",
		UnreadCount: 3,
	}
	last := &Message{ID: "m1", ConversationID: "c1", SenderID: "alice", Content: "hi"}
	bobInfo := UserInfo{UserID: "bob", Name: "Bob", Avatar: "b.png"}
	aliceInfo := UserInfo{UserID: "alice", Name: "Alice"}

	// Alice sent the last message, so the unread counter belongs to Bob.
	aliceView := conv.ViewFor("alice", bobInfo, last, true, nil)
	if aliceView.OtherUserID != "bob" || aliceView.Name != "Bob" {
		t.Errorf("expected Bob as other party, got %+v", aliceView)
	}
	if aliceView.UnreadCount != 0 {
		t.Errorf("expected 0 unread for the last sender, got %d", aliceView.UnreadCount)
	}
	if aliceView.LastSeen != nil {
		t.Errorf("expected nil lastSeen passed through, got %v", aliceView.LastSeen)
	}

	seen := time.Now().Add(-time.Minute)
	bobView := conv.ViewFor("bob", aliceInfo, last, false, &seen)
	if bobView.OtherUserID != "alice" {
		t.Errorf("expected Alice as other party, got %+v", bobView)
	}
	if bobView.UnreadCount != 3 {
		t.Errorf("expected 3 unread for the receiver side, got %d", bobView.UnreadCount)
	}
	if bobView.LastSeen == nil || !bobView.LastSeen.Equal(seen) {
		t.Errorf("expected lastSeen %v, got %v", seen, bobView.LastSeen)
	}
}

func TestConversation_ViewFor_NoLastMessage(t *testing.T) {
	conv := &Conversation{ID: "c2", User1ID: "alice", User2ID: "bob", UnreadCount: 1}

	view := conv.ViewFor("alice", UserInfo{UserID: "bob", Name: "Bob"}, nil, false, nil)
	if view.LastMessage != nil {
		t.Errorf("expected no last message, got %+v", view.LastMessage)
	}
	if view.UnreadCount != 1 {
		t.Errorf("expected unread carried without a last message, got %d", view.UnreadCount)
	}
}
