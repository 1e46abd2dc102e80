package chat

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	domain "github.com/example/realtime-chat/domain/chat"
	"github.com/example/realtime-chat/modules/storage"
	"github.com/google/uuid"
)

// fakeCallStore records persisted call outcomes.
type fakeCallStore struct {
	mu    sync.Mutex
	saved []storage.SaveCallMessageRequest
}

func (f *fakeCallStore) SaveCallMessage(_ context.Context, req storage.SaveCallMessageRequest) (storage.SaveCallMessageResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, req)
	msg := &domain.Message{
		ID:          uuid.New().String(),
		SenderID:    req.CallerID,
		MessageType: domain.MessageTypeCall,
		Metadata: &domain.MessageMetadata{
			CallID:     req.CallID,
			Duration:   req.Duration,
			CallType:   req.CallType,
			CallStatus: req.Status,
		},
	}
	conv := &domain.Conversation{
		ID:      uuid.New().String(),
		User1ID: req.CallerID,
		User2ID: req.CalleeID,
	}
	return storage.SaveCallMessageResponse{Message: msg, Conversation: conv}, nil
}

func (f *fakeCallStore) records() []storage.SaveCallMessageRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]storage.SaveCallMessageRequest, len(f.saved))
	copy(out, f.saved)
	return out
}

// fakeEndPublisher records call terminations handed to the event bus.
type fakeEndPublisher struct {
	mu       sync.Mutex
	statuses []domain.CallStatus
}

func (f *fakeEndPublisher) PublishCallEnded(_, _, _ string, status domain.CallStatus, _ int, _ time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, status)
}

func newSignalFixture(t *testing.T, cleanupDelay time.Duration) (*Registry, *Coordinator, *fakeCallStore) {
	t.Helper()
	reg := NewRegistry()
	store := &fakeCallStore{}
	co := NewCoordinator(reg, store, fakeDirectory{}, nil, cleanupDelay)
	return reg, co, store
}

// ring places a call between two connected sessions and returns the
// call id from the callee's incoming-call frame.
func ring(t *testing.T, co *Coordinator, caller *Session, calleeTr *fakeTransport, calleeID string) string {
	t.Helper()
	placedID, err := co.Offer(context.Background(), caller, OfferRequest{
		CalleeID: calleeID,
		CallType: domain.CallTypeVideo,
		Offer:    json.RawMessage(`{"sdp":"offer"}`),
	})
	if err != nil {
		t.Fatalf("Offer() error = %v", err)
	}
	frame, ok := calleeTr.lastOf(EventIncomingCall)
	if !ok {
		t.Fatal("expected incoming-call on callee")
	}
	callID := frame.Data.(IncomingCallData).CallID
	if placedID != callID {
		t.Fatalf("Offer() returned call id %q, callee saw %q", placedID, callID)
	}
	return callID
}

func TestCoordinator_Offer_Offline(t *testing.T) {
	reg, co, store := newSignalFixture(t, time.Hour)
	caller, callerTr := connect(t, reg)

	callID, err := co.Offer(context.Background(), caller, OfferRequest{
		CalleeID: uuid.New().String(),
	})
	if err != nil {
		t.Fatalf("Offer() error = %v", err)
	}
	if callID != "" {
		t.Errorf("expected no call id for a failed offer, got %q", callID)
	}

	frame, ok := callerTr.lastOf(EventCallFailed)
	if !ok {
		t.Fatal("expected call-failed on caller")
	}
	if frame.Data.(CallFailedData).Reason != CallFailReasonOffline {
		t.Errorf("expected offline reason, got %+v", frame.Data)
	}

	records := store.records()
	if len(records) != 1 || records[0].Status != domain.CallStatusMissed {
		t.Errorf("expected one missed record, got %+v", records)
	}
	if co.ActiveCalls() != 0 {
		t.Errorf("expected no tracked calls, got %d", co.ActiveCalls())
	}
}

func TestCoordinator_Offer_Busy(t *testing.T) {
	reg, co, _ := newSignalFixture(t, time.Hour)
	caller, _ := connect(t, reg)
	callee, calleeTr := connect(t, reg)
	intruder, intruderTr := connect(t, reg)

	ring(t, co, caller, calleeTr, callee.UserID)

	// A third user calls the already-ringing callee.
	callID, err := co.Offer(context.Background(), intruder, OfferRequest{
		CalleeID: callee.UserID,
	})
	if err != nil {
		t.Fatalf("Offer() error = %v", err)
	}
	if callID != "" {
		t.Errorf("expected no call id for a busy offer, got %q", callID)
	}

	frame, ok := intruderTr.lastOf(EventCallFailed)
	if !ok {
		t.Fatal("expected call-failed on second caller")
	}
	if frame.Data.(CallFailedData).Reason != CallFailReasonBusy {
		t.Errorf("expected busy reason, got %+v", frame.Data)
	}
	if calleeTr.countOf(EventIncomingCall) != 1 {
		t.Error("expected no second incoming-call on busy callee")
	}
}

func TestCoordinator_AcceptRelaysAnswer(t *testing.T) {
	reg, co, _ := newSignalFixture(t, time.Hour)
	caller, callerTr := connect(t, reg)
	callee, calleeTr := connect(t, reg)

	callID := ring(t, co, caller, calleeTr, callee.UserID)

	if err := co.Accept(context.Background(), callee, AnswerRequest{
		CallID: callID,
		Answer: json.RawMessage(`{"sdp":"answer"}`),
	}); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}

	frame, ok := callerTr.lastOf(EventCallAccepted)
	if !ok {
		t.Fatal("expected call-accepted on caller")
	}
	if frame.Data.(CallAnswerData).CallID != callID {
		t.Errorf("expected call id %s, got %+v", callID, frame.Data)
	}
}

func TestCoordinator_ICERelay(t *testing.T) {
	reg, co, _ := newSignalFixture(t, time.Hour)
	caller, callerTr := connect(t, reg)
	callee, calleeTr := connect(t, reg)

	callID := ring(t, co, caller, calleeTr, callee.UserID)

	if err := co.RelayICE(caller, ICERequest{
		CallID:    callID,
		Candidate: json.RawMessage(`{"candidate":"a"}`),
	}); err != nil {
		t.Fatalf("RelayICE() caller error = %v", err)
	}
	if err := co.RelayICE(callee, ICERequest{
		CallID:    callID,
		Candidate: json.RawMessage(`{"candidate":"b"}`),
	}); err != nil {
		t.Fatalf("RelayICE() callee error = %v", err)
	}

	got, ok := calleeTr.lastOf(EventICECandidate)
	if !ok {
		t.Fatal("expected candidate on callee")
	}
	if got.Data.(ICECandidateData).From != caller.UserID {
		t.Errorf("expected candidate from caller, got %+v", got.Data)
	}
	back, ok := callerTr.lastOf(EventICECandidate)
	if !ok {
		t.Fatal("expected candidate on caller")
	}
	if back.Data.(ICECandidateData).From != callee.UserID {
		t.Errorf("expected candidate from callee, got %+v", back.Data)
	}
}

func TestCoordinator_EndIsIdempotent(t *testing.T) {
	reg, co, store := newSignalFixture(t, time.Hour)
	caller, _ := connect(t, reg)
	callee, calleeTr := connect(t, reg)

	callID := ring(t, co, caller, calleeTr, callee.UserID)
	if err := co.Accept(context.Background(), callee, AnswerRequest{CallID: callID}); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}

	// Both sides hang up at the same moment.
	if err := co.End(context.Background(), caller, EndRequest{CallID: callID, Duration: 30}); err != nil {
		t.Fatalf("End() caller error = %v", err)
	}
	if err := co.End(context.Background(), callee, EndRequest{CallID: callID, Duration: 30}); err != nil {
		t.Fatalf("End() callee error = %v", err)
	}

	if calleeTr.countOf(EventCallEnded) != 1 {
		t.Errorf("expected exactly one call-ended on callee, got %d", calleeTr.countOf(EventCallEnded))
	}

	records := store.records()
	if len(records) != 1 {
		t.Fatalf("expected exactly one persisted record, got %d", len(records))
	}
	if records[0].Status != domain.CallStatusAnswered || records[0].Duration != 30 {
		t.Errorf("expected answered 30s record, got %+v", records[0])
	}
	if records[0].CallerID != caller.UserID || records[0].CalleeID != callee.UserID {
		t.Errorf("expected record attributed to original caller, got %+v", records[0])
	}
}

func TestCoordinator_EndPublishesOutcome(t *testing.T) {
	reg := NewRegistry()
	store := &fakeCallStore{}
	pub := &fakeEndPublisher{}
	co := NewCoordinator(reg, store, fakeDirectory{}, pub, time.Hour)
	caller, _ := connect(t, reg)
	callee, calleeTr := connect(t, reg)

	callID := ring(t, co, caller, calleeTr, callee.UserID)
	co.Accept(context.Background(), callee, AnswerRequest{CallID: callID})
	co.End(context.Background(), caller, EndRequest{CallID: callID, Duration: 9})
	co.End(context.Background(), callee, EndRequest{CallID: callID, Duration: 9})

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.statuses) != 1 {
		t.Fatalf("expected exactly one published termination, got %d", len(pub.statuses))
	}
	if pub.statuses[0] != domain.CallStatusAnswered {
		t.Errorf("expected answered outcome published, got %s", pub.statuses[0])
	}
}

func TestCoordinator_EndByCallee(t *testing.T) {
	reg, co, store := newSignalFixture(t, time.Hour)
	caller, callerTr := connect(t, reg)
	callee, calleeTr := connect(t, reg)

	callID := ring(t, co, caller, calleeTr, callee.UserID)
	co.Accept(context.Background(), callee, AnswerRequest{CallID: callID})

	// The callee hangs up: the record is still attributed to the
	// caller, and only the caller hears call-ended.
	if err := co.End(context.Background(), callee, EndRequest{CallID: callID, Duration: 12}); err != nil {
		t.Fatalf("End() error = %v", err)
	}

	frame, ok := callerTr.lastOf(EventCallEnded)
	if !ok {
		t.Fatal("expected call-ended on caller")
	}
	data := frame.Data.(CallEndedData)
	if data.EndedBy != callee.UserID {
		t.Errorf("expected endedBy callee, got %+v", data)
	}
	if calleeTr.countOf(EventCallEnded) != 0 {
		t.Error("expected no call-ended echo to the terminator")
	}

	records := store.records()
	if len(records) != 1 || records[0].CallerID != caller.UserID {
		t.Errorf("expected record attributed to caller, got %+v", records)
	}
}

func TestCoordinator_EndUnknownCallIsNoop(t *testing.T) {
	reg, co, store := newSignalFixture(t, time.Hour)
	caller, _ := connect(t, reg)

	if err := co.End(context.Background(), caller, EndRequest{CallID: "nope"}); err != nil {
		t.Fatalf("End() on unknown call should be a no-op, got %v", err)
	}
	if len(store.records()) != 0 {
		t.Errorf("expected no records, got %+v", store.records())
	}
}

func TestCoordinator_DelayedCleanup(t *testing.T) {
	reg, co, _ := newSignalFixture(t, 20*time.Millisecond)
	caller, _ := connect(t, reg)
	callee, calleeTr := connect(t, reg)

	callID := ring(t, co, caller, calleeTr, callee.UserID)
	co.Accept(context.Background(), callee, AnswerRequest{CallID: callID})
	co.End(context.Background(), caller, EndRequest{CallID: callID, Duration: 5})

	// The record lingers briefly to absorb the duplicate end.
	if co.ActiveCalls() != 1 {
		t.Errorf("expected ended record still tracked, got %d", co.ActiveCalls())
	}

	deadline := time.Now().Add(2 * time.Second)
	for co.ActiveCalls() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("expected record cleaned up after delay")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCoordinator_RejectAndCancel(t *testing.T) {
	tests := []struct {
		name       string
		actor      func(co *Coordinator, caller, callee *Session, callID string) error
		peerEvent  string
		wantStatus domain.CallStatus
	}{
		{
			name: "callee rejects",
			actor: func(co *Coordinator, caller, callee *Session, callID string) error {
				return co.Reject(context.Background(), callee, CallRequest{CallID: callID})
			},
			peerEvent:  EventCallRejected,
			wantStatus: domain.CallStatusDeclined,
		},
		{
			name: "caller cancels",
			actor: func(co *Coordinator, caller, callee *Session, callID string) error {
				return co.Cancel(context.Background(), caller, CallRequest{CallID: callID})
			},
			peerEvent:  EventCallCancelled,
			wantStatus: domain.CallStatusCancelled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, co, store := newSignalFixture(t, time.Hour)
			caller, callerTr := connect(t, reg)
			callee, calleeTr := connect(t, reg)

			callID := ring(t, co, caller, calleeTr, callee.UserID)

			if err := tt.actor(co, caller, callee, callID); err != nil {
				t.Fatalf("actor error = %v", err)
			}

			peerTr := callerTr
			if tt.peerEvent == EventCallCancelled {
				peerTr = calleeTr
			}
			if _, ok := peerTr.lastOf(tt.peerEvent); !ok {
				t.Fatalf("expected %s on peer", tt.peerEvent)
			}

			records := store.records()
			if len(records) != 1 || records[0].Status != tt.wantStatus {
				t.Errorf("expected one %s record, got %+v", tt.wantStatus, records)
			}
			if co.ActiveCalls() != 0 {
				t.Errorf("expected immediate cleanup, got %d tracked calls", co.ActiveCalls())
			}
		})
	}
}

func TestCoordinator_WrongRoleRejected(t *testing.T) {
	reg, co, _ := newSignalFixture(t, time.Hour)
	caller, _ := connect(t, reg)
	callee, calleeTr := connect(t, reg)

	callID := ring(t, co, caller, calleeTr, callee.UserID)

	if err := co.Reject(context.Background(), caller, CallRequest{CallID: callID}); err == nil {
		t.Error("expected error when caller tries to reject")
	}
	if err := co.Cancel(context.Background(), callee, CallRequest{CallID: callID}); err == nil {
		t.Error("expected error when callee tries to cancel")
	}
	if co.ActiveCalls() != 1 {
		t.Errorf("expected call still live after role violations, got %d", co.ActiveCalls())
	}
}

func TestCoordinator_DisconnectCleanup(t *testing.T) {
	reg, co, store := newSignalFixture(t, time.Hour)
	caller, _ := connect(t, reg)
	callee, calleeTr := connect(t, reg)

	callID := ring(t, co, caller, calleeTr, callee.UserID)
	co.Accept(context.Background(), callee, AnswerRequest{CallID: callID})

	reg.Unregister(caller)
	co.HandleDisconnect(context.Background(), caller.UserID)

	frame, ok := calleeTr.lastOf(EventCallEnded)
	if !ok {
		t.Fatal("expected call-ended on surviving peer")
	}
	if frame.Data.(CallEndedData).Reason != EndReasonDisconnected {
		t.Errorf("expected disconnected reason, got %+v", frame.Data)
	}

	if co.ActiveCalls() != 0 {
		t.Errorf("expected immediate cleanup on disconnect, got %d", co.ActiveCalls())
	}
	if len(store.records()) != 1 {
		t.Errorf("expected one persisted record, got %d", len(store.records()))
	}

	// A duplicate end from the survivor is a silent no-op.
	if err := co.End(context.Background(), callee, EndRequest{CallID: callID}); err != nil {
		t.Fatalf("End() after disconnect cleanup should be a no-op, got %v", err)
	}
	if len(store.records()) != 1 {
		t.Errorf("expected still one record, got %d", len(store.records()))
	}
}
