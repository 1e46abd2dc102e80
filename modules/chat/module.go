package chat

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"

	domain "github.com/example/realtime-chat/domain/chat"
	"github.com/example/realtime-chat/events"
	"github.com/example/realtime-chat/modules/storage"
	"github.com/example/realtime-chat/modules/userinfo"
)

// Module is the realtime core: session registry, presence, message
// delivery and call signaling. The gateway drives it directly; the
// persistence side goes through the storage and userinfo modules.
type Module struct {
	registry *Registry
	presence *Presence
	tracker  *Tracker
	signal   *Coordinator

	store    storage.Port
	users    userinfo.Port
	eventBus mono.EventBus

	cleanupDelay time.Duration
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.DependentModule       = (*Module)(nil)
	_ mono.EventBusAwareModule   = (*Module)(nil)
	_ mono.EventEmitterModule    = (*Module)(nil)
	_ mono.EventConsumerModule   = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates the chat module. CALL_CLEANUP_DELAY (a Go
// duration, default 10s) controls how long ended call records linger
// to absorb duplicate end-call requests.
func NewModule() *Module {
	cleanupDelay := 10 * time.Second
	if v := os.Getenv("CALL_CLEANUP_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cleanupDelay = d
		} else {
			log.Printf("[chat] ignoring invalid CALL_CLEANUP_DELAY %q", v)
		}
	}
	return &Module{
		registry:     NewRegistry(),
		cleanupDelay: cleanupDelay,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "chat"
}

// Dependencies returns the list of module dependencies.
func (m *Module) Dependencies() []string {
	return []string{"storage", "userinfo"}
}

// SetDependencyServiceContainer receives service containers from
// dependencies.
func (m *Module) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	switch dependency {
	case "storage":
		m.store = storage.NewAdapter(container)
	case "userinfo":
		m.users = userinfo.NewAdapter(container)
	}
}

// SetEventBus receives the EventBus from the framework.
func (m *Module) SetEventBus(bus mono.EventBus) {
	m.eventBus = bus
}

// EmitEvents declares the events this module can emit.
func (m *Module) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.UserOnlineV1.ToBase(),
		events.UserOfflineV1.ToBase(),
		events.CallEndedV1.ToBase(),
	}
}

// RegisterEventConsumers subscribes to the module's own presence
// events. Realtime notifications go out synchronously on the socket;
// the lastSeen/online rows are written here, off the hot path.
func (m *Module) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(
		registry, events.UserOnlineV1, m.handleUserOnline, m,
	); err != nil {
		return fmt.Errorf("failed to register UserOnline consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(
		registry, events.UserOfflineV1, m.handleUserOffline, m,
	); err != nil {
		return fmt.Errorf("failed to register UserOffline consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(
		registry, events.CallEndedV1, m.handleCallEnded, m,
	); err != nil {
		return fmt.Errorf("failed to register CallEnded consumer: %w", err)
	}

	log.Println("[chat] Registered event consumers: UserOnline, UserOffline, CallEnded")
	return nil
}

func (m *Module) handleUserOnline(ctx context.Context, event events.UserOnlineEvent, _ *mono.Msg) error {
	if err := m.store.SetOnline(ctx, storage.SetOnlineRequest{
		UserID: event.UserID,
		Online: true,
		At:     event.ConnectedAt,
	}); err != nil {
		log.Printf("[chat] failed to persist online state for %s: %v", event.UserID, err)
	}
	return nil
}

// handleCallEnded writes the call-history line for every terminated
// call. The conversation record is persisted by the coordinator before
// the event fires; this consumer is the audit trail.
func (m *Module) handleCallEnded(_ context.Context, event events.CallEndedEvent, _ *mono.Msg) error {
	log.Printf("[chat] call %s ended: %s -> %s status=%s duration=%ds",
		event.CallID, event.CallerID, event.CalleeID, event.Status, event.Duration)
	return nil
}

func (m *Module) handleUserOffline(ctx context.Context, event events.UserOfflineEvent, _ *mono.Msg) error {
	if err := m.store.SetOnline(ctx, storage.SetOnlineRequest{
		UserID: event.UserID,
		Online: false,
		At:     event.LastSeen,
	}); err != nil {
		log.Printf("[chat] failed to persist offline state for %s: %v", event.UserID, err)
	}
	return nil
}

// Start wires the core components.
func (m *Module) Start(_ context.Context) error {
	if m.store == nil {
		return fmt.Errorf("storage dependency not set")
	}
	if m.users == nil {
		return fmt.Errorf("userinfo dependency not set")
	}

	m.presence = NewPresence(m.registry, m)
	m.tracker = NewTracker(m.registry, m.store, m.users)
	m.signal = NewCoordinator(m.registry, m.store, m.users, m, m.cleanupDelay)

	log.Println("[chat] Module started")
	return nil
}

// Stop closes every live session.
func (m *Module) Stop(_ context.Context) error {
	for _, userID := range m.registry.OnlineUsers() {
		if sess, ok := m.registry.Resolve(userID); ok {
			_ = sess.Close()
		}
	}
	log.Println("[chat] Module stopped")
	return nil
}

// Health returns the health status.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	activeCalls := 0
	if m.signal != nil {
		activeCalls = m.signal.ActiveCalls()
	}
	return mono.HealthStatus{
		Healthy: m.presence != nil,
		Message: "operational",
		Details: map[string]any{
			"online_users": m.registry.Count(),
			"active_calls": activeCalls,
		},
	}
}

// PublishOnline emits a UserOnline event (fire-and-forget).
func (m *Module) PublishOnline(userID string, at time.Time) {
	if m.eventBus == nil {
		return
	}
	if err := events.UserOnlineV1.Publish(m.eventBus, events.UserOnlineEvent{
		UserID:      userID,
		ConnectedAt: at,
	}, nil); err != nil {
		log.Printf("[chat] failed to publish UserOnline: %v", err)
	}
}

// PublishOffline emits a UserOffline event (fire-and-forget).
func (m *Module) PublishOffline(userID string, at time.Time) {
	if m.eventBus == nil {
		return
	}
	if err := events.UserOfflineV1.Publish(m.eventBus, events.UserOfflineEvent{
		UserID:   userID,
		LastSeen: at,
	}, nil); err != nil {
		log.Printf("[chat] failed to publish UserOffline: %v", err)
	}
}

// PublishCallEnded emits a CallEnded event (fire-and-forget).
func (m *Module) PublishCallEnded(callID, callerID, calleeID string, status domain.CallStatus, duration int, at time.Time) {
	if m.eventBus == nil {
		return
	}
	if err := events.CallEndedV1.Publish(m.eventBus, events.CallEndedEvent{
		CallID:   callID,
		CallerID: callerID,
		CalleeID: calleeID,
		Status:   string(status),
		Duration: duration,
		EndedAt:  at,
	}, nil); err != nil {
		log.Printf("[chat] failed to publish CallEnded: %v", err)
	}
}

// Connect registers a session for the user and runs the connect
// protocol. A previous session for the same user is replaced and
// closed; the newest connection always wins.
func (m *Module) Connect(userID string, transport Transport) *Session {
	sess := NewSession(userID, transport)
	if replaced := m.registry.Register(sess); replaced != nil {
		_ = replaced.Close()
	}
	m.presence.HandleConnect(sess)
	return sess
}

// Disconnect tears down a session. A stale disconnect for a session
// that has already been replaced is ignored entirely: no cleanup, no
// offline broadcast.
func (m *Module) Disconnect(ctx context.Context, sess *Session) {
	if !m.registry.Unregister(sess) {
		return
	}
	m.signal.HandleDisconnect(ctx, sess.UserID)
	m.presence.HandleDisconnect(sess.UserID)
}

// SendMessage runs the delivery pipeline for one outgoing message.
func (m *Module) SendMessage(ctx context.Context, sess *Session, req SendRequest) error {
	return m.tracker.Send(ctx, sess, req)
}

// MarkSeen marks a conversation read on the session user's behalf.
func (m *Module) MarkSeen(ctx context.Context, sess *Session, req SeenRequest) error {
	return m.tracker.MarkSeen(ctx, sess, req)
}

// Typing relays a typing indicator.
func (m *Module) Typing(sess *Session, req TypingRequest) {
	m.tracker.Typing(sess, req)
}

// OfferCall places a call, returning the generated call id. The id is
// empty when the offer failed as call-failed rather than as an error.
func (m *Module) OfferCall(ctx context.Context, sess *Session, req OfferRequest) (string, error) {
	return m.signal.Offer(ctx, sess, req)
}

// AcceptCall relays the callee's answer.
func (m *Module) AcceptCall(ctx context.Context, sess *Session, req AnswerRequest) error {
	return m.signal.Accept(ctx, sess, req)
}

// RejectCall declines a ringing call.
func (m *Module) RejectCall(ctx context.Context, sess *Session, req CallRequest) error {
	return m.signal.Reject(ctx, sess, req)
}

// CancelCall withdraws a ringing call.
func (m *Module) CancelCall(ctx context.Context, sess *Session, req CallRequest) error {
	return m.signal.Cancel(ctx, sess, req)
}

// RelayICE forwards an ICE candidate.
func (m *Module) RelayICE(sess *Session, req ICERequest) error {
	return m.signal.RelayICE(sess, req)
}

// EndCall terminates a call.
func (m *Module) EndCall(ctx context.Context, sess *Session, req EndRequest) error {
	return m.signal.End(ctx, sess, req)
}

// CheckOnline reports one user's presence.
func (m *Module) CheckOnline(userID string) OnlineStatusData {
	return m.presence.CheckOnline(userID)
}

// OnlineUsers lists all connected users.
func (m *Module) OnlineUsers() OnlineUsersData {
	return m.presence.OnlineUsers()
}

// SessionCount returns the number of live sessions.
func (m *Module) SessionCount() int {
	return m.registry.Count()
}
