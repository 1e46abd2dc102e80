package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	domain "github.com/example/realtime-chat/domain/chat"
	"github.com/example/realtime-chat/modules/storage"
)

// callStore is the slice of the storage port the coordinator needs.
type callStore interface {
	SaveCallMessage(ctx context.Context, req storage.SaveCallMessageRequest) (storage.SaveCallMessageResponse, error)
}

// callEndPublisher receives terminal call outcomes for any interested
// consumer.
type callEndPublisher interface {
	PublishCallEnded(callID, callerID, calleeID string, status domain.CallStatus, duration int, at time.Time)
}

// ActiveCall is the in-memory record of a call between offer and
// cleanup. ended flips exactly once, under the coordinator lock,
// before any relay or persistence happens for the termination.
type ActiveCall struct {
	ID         string
	CallerID   string
	CalleeID   string
	CallType   domain.CallType
	StartedAt  time.Time
	AcceptedAt *time.Time
	ended      bool
}

// peerOf returns the other participant, or "" for a non-participant.
func (c *ActiveCall) peerOf(userID string) string {
	switch userID {
	case c.CallerID:
		return c.CalleeID
	case c.CalleeID:
		return c.CallerID
	default:
		return ""
	}
}

// OfferRequest is an inbound call-user operation.
type OfferRequest struct {
	CalleeID string          `json:"calleeId"`
	CallType domain.CallType `json:"callType"`
	Offer    json.RawMessage `json:"offer,omitempty"`
}

// AnswerRequest is an inbound accept-call operation.
type AnswerRequest struct {
	CallID string          `json:"callId"`
	Answer json.RawMessage `json:"answer,omitempty"`
}

// CallRequest addresses an existing call by id.
type CallRequest struct {
	CallID string `json:"callId"`
}

// ICERequest is an inbound ice-candidate relay.
type ICERequest struct {
	CallID    string          `json:"callId"`
	Candidate json.RawMessage `json:"candidate"`
}

// EndRequest is an inbound end-call operation. Duration is the
// client-measured call length in seconds and is optional.
type EndRequest struct {
	CallID   string `json:"callId"`
	Duration int    `json:"duration,omitempty"`
}

// Coordinator relays WebRTC signaling between two sessions and owns
// the active-call table. It never inspects SDP or candidate payloads.
type Coordinator struct {
	mu    sync.Mutex
	calls map[string]*ActiveCall

	registry  *Registry
	store     callStore
	users     displayDirectory
	publisher callEndPublisher

	// cleanupDelay keeps a terminated call's record around long
	// enough to absorb the other side's duplicate end-call.
	cleanupDelay time.Duration
	now          func() time.Time
}

// NewCoordinator creates a call coordinator.
func NewCoordinator(registry *Registry, store callStore, users displayDirectory, publisher callEndPublisher, cleanupDelay time.Duration) *Coordinator {
	if cleanupDelay <= 0 {
		cleanupDelay = 10 * time.Second
	}
	return &Coordinator{
		calls:        make(map[string]*ActiveCall),
		registry:     registry,
		store:        store,
		users:        users,
		publisher:    publisher,
		cleanupDelay: cleanupDelay,
		now:          time.Now,
	}
}

// ActiveCalls returns the number of tracked calls, ended ones awaiting
// cleanup included.
func (co *Coordinator) ActiveCalls() int {
	co.mu.Lock()
	defer co.mu.Unlock()
	return len(co.calls)
}

// inCall reports whether the user participates in any live call.
// Callers hold co.mu.
func (co *Coordinator) inCall(userID string) bool {
	for _, call := range co.calls {
		if call.ended {
			continue
		}
		if call.CallerID == userID || call.CalleeID == userID {
			return true
		}
	}
	return false
}

// Offer places a call and returns the generated call id, which the
// caller needs for cancel-call and end-call. Unreachable and busy
// callees are reported to the caller as call-failed with a named
// reason, not as errors, and a missed-call record lands in the
// conversation either way; the returned id is empty then.
func (co *Coordinator) Offer(ctx context.Context, caller *Session, req OfferRequest) (string, error) {
	if req.CalleeID == "" {
		return "", fmt.Errorf("calleeId is required")
	}
	if req.CalleeID == caller.UserID {
		return "", fmt.Errorf("cannot call yourself")
	}
	callType := req.CallType
	if callType == "" {
		callType = domain.CallTypeVideo
	}

	callee, online := co.registry.Resolve(req.CalleeID)
	if !online {
		_ = caller.Send(EventCallFailed, CallFailedData{
			CalleeID: req.CalleeID,
			Reason:   CallFailReasonOffline,
		})
		co.persistMissed(ctx, caller.UserID, req.CalleeID, callType)
		return "", nil
	}

	co.mu.Lock()
	if co.inCall(req.CalleeID) || co.inCall(caller.UserID) {
		co.mu.Unlock()
		_ = caller.Send(EventCallFailed, CallFailedData{
			CalleeID: req.CalleeID,
			Reason:   CallFailReasonBusy,
		})
		co.persistMissed(ctx, caller.UserID, req.CalleeID, callType)
		return "", nil
	}

	now := co.now()
	call := &ActiveCall{
		ID:        fmt.Sprintf("%s-%s-%d", caller.UserID, req.CalleeID, now.UnixMilli()),
		CallerID:  caller.UserID,
		CalleeID:  req.CalleeID,
		CallType:  callType,
		StartedAt: now,
	}
	co.calls[call.ID] = call
	co.mu.Unlock()

	data := IncomingCallData{
		CallID:   call.ID,
		CallerID: caller.UserID,
		CallType: callType,
		Offer:    req.Offer,
	}
	if info, ok := co.displayInfos(ctx, caller.UserID)[caller.UserID]; ok {
		data.CallerName = info.Name
		data.CallerAvatar = info.Avatar
	}

	if err := callee.Send(EventIncomingCall, data); err != nil {
		// The callee's socket died between resolve and write. Treat
		// as offline.
		co.mu.Lock()
		delete(co.calls, call.ID)
		co.mu.Unlock()
		_ = caller.Send(EventCallFailed, CallFailedData{
			CalleeID: req.CalleeID,
			Reason:   CallFailReasonOffline,
		})
		co.persistMissed(ctx, caller.UserID, req.CalleeID, callType)
		return "", nil
	}
	return call.ID, nil
}

// Accept relays the callee's answer back to the caller.
func (co *Coordinator) Accept(_ context.Context, callee *Session, req AnswerRequest) error {
	co.mu.Lock()
	call, ok := co.calls[req.CallID]
	if !ok || call.ended {
		co.mu.Unlock()
		return fmt.Errorf("call not found: %s", req.CallID)
	}
	if call.CalleeID != callee.UserID {
		co.mu.Unlock()
		return fmt.Errorf("not the callee of %s", req.CallID)
	}
	now := co.now()
	call.AcceptedAt = &now
	callerID := call.CallerID
	co.mu.Unlock()

	if caller, online := co.registry.Resolve(callerID); online {
		_ = caller.Send(EventCallAccepted, CallAnswerData{
			CallID: req.CallID,
			Answer: req.Answer,
		})
	}
	return nil
}

// Reject declines a ringing call. The caller is notified and a
// declined record is stored.
func (co *Coordinator) Reject(ctx context.Context, callee *Session, req CallRequest) error {
	call, err := co.claimEnd(req.CallID, callee.UserID, roleCallee)
	if err != nil {
		return err
	}
	if call == nil {
		return nil
	}

	if caller, online := co.registry.Resolve(call.CallerID); online {
		_ = caller.Send(EventCallRejected, CallStateData{
			CallID: call.ID,
			By:     callee.UserID,
		})
	}

	co.persistOutcome(ctx, call, domain.CallStatusDeclined, 0)
	co.remove(call.ID)
	return nil
}

// Cancel withdraws a ringing call before the callee answered.
func (co *Coordinator) Cancel(ctx context.Context, caller *Session, req CallRequest) error {
	call, err := co.claimEnd(req.CallID, caller.UserID, roleCaller)
	if err != nil {
		return err
	}
	if call == nil {
		return nil
	}

	if callee, online := co.registry.Resolve(call.CalleeID); online {
		_ = callee.Send(EventCallCancelled, CallStateData{
			CallID: call.ID,
			By:     caller.UserID,
		})
	}

	co.persistOutcome(ctx, call, domain.CallStatusCancelled, 0)
	co.remove(call.ID)
	return nil
}

// RelayICE forwards a candidate to the other participant without
// looking inside it.
func (co *Coordinator) RelayICE(sender *Session, req ICERequest) error {
	co.mu.Lock()
	call, ok := co.calls[req.CallID]
	if !ok || call.ended {
		co.mu.Unlock()
		return nil
	}
	peerID := call.peerOf(sender.UserID)
	co.mu.Unlock()

	if peerID == "" {
		return fmt.Errorf("not a participant of %s", req.CallID)
	}
	if peer, online := co.registry.Resolve(peerID); online {
		_ = peer.Send(EventICECandidate, ICECandidateData{
			CallID:    req.CallID,
			From:      sender.UserID,
			Candidate: req.Candidate,
		})
	}
	return nil
}

// End terminates a call. Both sides usually send end-call at the same
// moment; the ended flag is claimed under the lock before any relay or
// persistence, so exactly one of them performs the termination and
// the other is a silent no-op. The peer is resolved from the stored
// record, never from the request.
func (co *Coordinator) End(ctx context.Context, ender *Session, req EndRequest) error {
	call, err := co.claimEnd(req.CallID, ender.UserID, roleAny)
	if err != nil {
		return err
	}
	if call == nil {
		return nil
	}

	peerID := call.peerOf(ender.UserID)

	duration := req.Duration
	if duration <= 0 && call.AcceptedAt != nil {
		duration = int(co.now().Sub(*call.AcceptedAt) / time.Second)
	}

	if peer, online := co.registry.Resolve(peerID); online {
		_ = peer.Send(EventCallEnded, CallEndedData{
			CallID:   call.ID,
			EndedBy:  ender.UserID,
			Duration: duration,
			Reason:   EndReasonHangup,
		})
	}

	status := domain.CallStatusMissed
	if duration > 0 {
		status = domain.CallStatusAnswered
	}
	co.persistOutcome(ctx, call, status, duration)

	// Keep the record around briefly so the peer's own end-call finds
	// the ended flag instead of an unknown call.
	time.AfterFunc(co.cleanupDelay, func() { co.remove(call.ID) })
	return nil
}

// HandleDisconnect terminates every live call the user participates
// in. Records go away immediately: the departed socket cannot send a
// duplicate end-call.
func (co *Coordinator) HandleDisconnect(ctx context.Context, userID string) {
	co.mu.Lock()
	var affected []*ActiveCall
	for _, call := range co.calls {
		if call.ended {
			continue
		}
		if call.CallerID == userID || call.CalleeID == userID {
			call.ended = true
			affected = append(affected, call)
		}
	}
	co.mu.Unlock()

	for _, call := range affected {
		peerID := call.peerOf(userID)

		duration := 0
		if call.AcceptedAt != nil {
			duration = int(co.now().Sub(*call.AcceptedAt) / time.Second)
		}

		if peer, online := co.registry.Resolve(peerID); online {
			_ = peer.Send(EventCallEnded, CallEndedData{
				CallID:   call.ID,
				EndedBy:  userID,
				Duration: duration,
				Reason:   EndReasonDisconnected,
			})
		}

		status := domain.CallStatusMissed
		if duration > 0 {
			status = domain.CallStatusAnswered
		}
		co.persistOutcome(ctx, call, status, duration)
		co.remove(call.ID)
	}
}

type callRole int

const (
	roleAny callRole = iota
	roleCaller
	roleCallee
)

// claimEnd atomically claims the termination of a call after checking
// the requester's role. Exactly one claimant gets the call back; a
// missing or already-ended record is a silent no-op (nil, nil).
func (co *Coordinator) claimEnd(callID, userID string, role callRole) (*ActiveCall, error) {
	co.mu.Lock()
	defer co.mu.Unlock()
	call, ok := co.calls[callID]
	if !ok || call.ended {
		return nil, nil
	}
	switch role {
	case roleCaller:
		if call.CallerID != userID {
			return nil, fmt.Errorf("not the caller of %s", callID)
		}
	case roleCallee:
		if call.CalleeID != userID {
			return nil, fmt.Errorf("not the callee of %s", callID)
		}
	default:
		if call.peerOf(userID) == "" {
			return nil, fmt.Errorf("not a participant of %s", callID)
		}
	}
	call.ended = true
	return call, nil
}

// remove deletes a call record.
func (co *Coordinator) remove(callID string) {
	co.mu.Lock()
	delete(co.calls, callID)
	co.mu.Unlock()
}

// persistMissed stores a missed-call message for an offer that never
// rang.
func (co *Coordinator) persistMissed(ctx context.Context, callerID, calleeID string, callType domain.CallType) {
	call := &ActiveCall{
		ID:       fmt.Sprintf("%s-%s-%d", callerID, calleeID, co.now().UnixMilli()),
		CallerID: callerID,
		CalleeID: calleeID,
		CallType: callType,
	}
	co.persistOutcome(ctx, call, domain.CallStatusMissed, 0)
}

// persistOutcome stores the call record, attributed to the original
// caller, and pushes the resulting conversation message to both
// participants' sessions, each seeing the conversation from their own
// side.
func (co *Coordinator) persistOutcome(ctx context.Context, call *ActiveCall, status domain.CallStatus, duration int) {
	resp, err := co.store.SaveCallMessage(ctx, storage.SaveCallMessageRequest{
		CallerID: call.CallerID,
		CalleeID: call.CalleeID,
		CallID:   call.ID,
		CallType: call.CallType,
		Status:   status,
		Duration: duration,
	})
	if err != nil {
		log.Printf("[chat] failed to persist call %s: %v", call.ID, err)
		return
	}

	infos := co.displayInfos(ctx, call.CallerID, call.CalleeID)
	var callerInfo *domain.UserInfo
	if info, ok := infos[call.CallerID]; ok {
		callerInfo = &info
	}
	for _, userID := range []string{call.CallerID, call.CalleeID} {
		sess, online := co.registry.Resolve(userID)
		if !online {
			continue
		}
		otherID := call.peerOf(userID)
		_ = sess.Send(EventNewMessage, NewMessageData{
			Message: resp.Message,
			Conversation: resp.Conversation.ViewFor(
				userID, infos[otherID], resp.Message, co.registry.IsOnline(otherID), nil,
			),
			Sender: callerInfo,
		})
	}

	if co.publisher != nil {
		co.publisher.PublishCallEnded(call.ID, call.CallerID, call.CalleeID, status, duration, co.now())
	}
}

// displayInfos resolves profiles for the participants; failures
// degrade to an empty result.
func (co *Coordinator) displayInfos(ctx context.Context, userIDs ...string) map[string]domain.UserInfo {
	if co.users == nil {
		return nil
	}
	infos, err := co.users.GetDisplayInfo(ctx, userIDs)
	if err != nil {
		log.Printf("[chat] display info lookup failed: %v", err)
		return nil
	}
	return infos
}
