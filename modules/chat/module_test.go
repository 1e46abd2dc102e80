package chat

import (
	"context"
	"testing"
	"time"

	domain "github.com/example/realtime-chat/domain/chat"
	"github.com/example/realtime-chat/events"
)

func TestNewModule_CleanupDelay(t *testing.T) {
	t.Setenv("CALL_CLEANUP_DELAY", "250ms")
	if m := NewModule(); m.cleanupDelay != 250*time.Millisecond {
		t.Errorf("cleanupDelay = %v, want 250ms", m.cleanupDelay)
	}

	t.Setenv("CALL_CLEANUP_DELAY", "garbage")
	if m := NewModule(); m.cleanupDelay != 10*time.Second {
		t.Errorf("cleanupDelay = %v, want default 10s", m.cleanupDelay)
	}
}

func TestModule_HandleCallEnded(t *testing.T) {
	m := NewModule()
	err := m.handleCallEnded(context.Background(), events.CallEndedEvent{
		CallID:   "c1",
		CallerID: "alice",
		CalleeID: "bob",
		Status:   string(domain.CallStatusAnswered),
		Duration: 9,
		EndedAt:  time.Now(),
	}, nil)
	if err != nil {
		t.Errorf("handleCallEnded() error = %v, want nil", err)
	}
}

func TestModule_EmitEvents(t *testing.T) {
	defs := NewModule().EmitEvents()
	if len(defs) != 3 {
		t.Fatalf("expected 3 emitted event definitions, got %d", len(defs))
	}
}
