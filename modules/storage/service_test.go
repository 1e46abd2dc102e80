package storage

import (
	"context"
	"testing"

	domain "github.com/example/realtime-chat/domain/chat"
	"github.com/google/uuid"
)

func newTestModule(t *testing.T) *StorageModule {
	t.Helper()
	db := setupTestDB(t)
	return &StorageModule{db: db, repo: NewRepository(db), dbPath: ":memory:"}
}

func TestSendMessage_Validation(t *testing.T) {
	m := newTestModule(t)
	alice := uuid.New().String()
	bob := uuid.New().String()

	tests := []struct {
		name    string
		req     SendMessageRequest
		wantErr bool
	}{
		{
			name:    "valid text message",
			req:     SendMessageRequest{SenderID: alice, ReceiverID: bob, Content: "hi"},
			wantErr: false,
		},
		{
			name:    "missing sender",
			req:     SendMessageRequest{ReceiverID: bob, Content: "hi"},
			wantErr: true,
		},
		{
			name:    "sender not a uuid",
			req:     SendMessageRequest{SenderID: "not-a-uuid", ReceiverID: bob, Content: "hi"},
			wantErr: true,
		},
		{
			name:    "sender equals receiver",
			req:     SendMessageRequest{SenderID: alice, ReceiverID: alice, Content: "hi"},
			wantErr: true,
		},
		{
			name:    "empty content and no images",
			req:     SendMessageRequest{SenderID: alice, ReceiverID: bob},
			wantErr: true,
		},
		{
			name:    "images without text",
			req:     SendMessageRequest{SenderID: alice, ReceiverID: bob, Images: []string{"x.png"}},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := m.sendMessage(context.Background(), tt.req, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("sendMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if resp.Message == nil || resp.Conversation == nil {
				t.Fatal("expected message and conversation in response")
			}
			if len(tt.req.Images) > 0 && resp.Message.MessageType != domain.MessageTypeImage {
				t.Errorf("expected image message type, got %s", resp.Message.MessageType)
			}
		})
	}
}

func TestSendMessage_ConversationReference(t *testing.T) {
	m := newTestModule(t)
	alice := uuid.New().String()
	bob := uuid.New().String()
	carol := uuid.New().String()

	seed, err := m.sendMessage(context.Background(), SendMessageRequest{
		SenderID: alice, ReceiverID: bob, Content: "first",
	}, nil)
	if err != nil {
		t.Fatalf("sendMessage() error = %v", err)
	}

	resp, err := m.sendMessage(context.Background(), SendMessageRequest{
		SenderID: bob, ReceiverID: alice,
		ConversationID: seed.Conversation.ID,
		Content:        "reply",
	}, nil)
	if err != nil {
		t.Fatalf("sendMessage() with conversation id error = %v", err)
	}
	if resp.Conversation.ID != seed.Conversation.ID {
		t.Errorf("expected reuse of conversation %s, got %s", seed.Conversation.ID, resp.Conversation.ID)
	}

	_, err = m.sendMessage(context.Background(), SendMessageRequest{
		SenderID: alice, ReceiverID: bob,
		ConversationID: uuid.New().String(),
		Content:        "into nothing",
	}, nil)
	if err == nil {
		t.Fatal("expected error for unknown conversation id")
	}

	_, err = m.sendMessage(context.Background(), SendMessageRequest{
		SenderID: alice, ReceiverID: carol,
		ConversationID: seed.Conversation.ID,
		Content:        "wrong room",
	}, nil)
	if err == nil {
		t.Fatal("expected error for conversation not involving the receiver")
	}
}

func TestSaveCallMessage_StatusDerivation(t *testing.T) {
	m := newTestModule(t)
	caller := uuid.New().String()
	callee := uuid.New().String()

	tests := []struct {
		name       string
		duration   int
		status     domain.CallStatus
		wantStatus domain.CallStatus
	}{
		{name: "answered from duration", duration: 42, wantStatus: domain.CallStatusAnswered},
		{name: "missed from zero duration", duration: 0, wantStatus: domain.CallStatusMissed},
		{name: "explicit declined wins", duration: 0, status: domain.CallStatusDeclined, wantStatus: domain.CallStatusDeclined},
		{name: "explicit cancelled wins", duration: 0, status: domain.CallStatusCancelled, wantStatus: domain.CallStatusCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := m.saveCallMessage(context.Background(), SaveCallMessageRequest{
				CallerID: caller,
				CalleeID: callee,
				CallID:   uuid.New().String(),
				CallType: domain.CallTypeVideo,
				Status:   tt.status,
				Duration: tt.duration,
			}, nil)
			if err != nil {
				t.Fatalf("saveCallMessage() error = %v", err)
			}
			msg := resp.Message
			if msg.MessageType != domain.MessageTypeCall {
				t.Errorf("expected call message type, got %s", msg.MessageType)
			}
			if msg.SenderID != caller {
				t.Errorf("expected record attributed to caller, got %s", msg.SenderID)
			}
			if msg.Metadata == nil || msg.Metadata.CallStatus != tt.wantStatus {
				t.Errorf("expected status %s, got %+v", tt.wantStatus, msg.Metadata)
			}
			if !msg.IsDelivered {
				t.Error("expected call record stored as delivered")
			}
		})
	}
}

func TestMarkRead_Idempotent(t *testing.T) {
	m := newTestModule(t)
	alice := uuid.New().String()
	bob := uuid.New().String()

	sent, err := m.sendMessage(context.Background(), SendMessageRequest{
		SenderID: alice, ReceiverID: bob, Content: "hello",
	}, nil)
	if err != nil {
		t.Fatalf("sendMessage() error = %v", err)
	}

	req := MarkReadRequest{ConversationID: sent.Conversation.ID, ReaderID: bob}

	first, err := m.markRead(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("markRead() error = %v", err)
	}
	if first.MarkedCount != 1 {
		t.Errorf("expected 1 marked, got %d", first.MarkedCount)
	}

	second, err := m.markRead(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("markRead() repeat error = %v", err)
	}
	if second.MarkedCount != 0 {
		t.Errorf("expected 0 marked on repeat, got %d", second.MarkedCount)
	}
}
