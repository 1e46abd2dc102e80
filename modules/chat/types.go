package chat

import (
	"encoding/json"
	"time"

	domain "github.com/example/realtime-chat/domain/chat"
)

// Envelope is the outbound wire frame for server-initiated events.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Server-initiated event names.
const (
	EventConnected        = "connected"
	EventUserOnline       = "user-online"
	EventUserOffline      = "user-offline"
	EventNewMessage       = "new-message"
	EventMessageSent      = "message-sent"
	EventMessageDelivered = "message-delivered"
	EventMessageError     = "message-error"
	EventMessagesSeen     = "messages-seen"
	EventMarkSeenSuccess  = "mark-as-seen-success"
	EventMarkSeenError    = "mark-as-seen-error"
	EventUserTyping       = "user-typing"
	EventIncomingCall     = "incoming-call"
	EventCallFailed       = "call-failed"
	EventCallAccepted     = "call-accepted"
	EventCallRejected     = "call-rejected"
	EventCallCancelled    = "call-cancelled"
	EventCallEnded        = "call-ended"
	EventICECandidate     = "ice-candidate"
	EventOnlineStatus     = "online-status"
	EventOnlineUsers      = "online-users"
)

// Call failure reasons.
const (
	CallFailReasonOffline = "offline"
	CallFailReasonBusy    = "busy"
)

// End reasons carried on call-ended.
const (
	EndReasonHangup       = "hangup"
	EndReasonDisconnected = "disconnected"
)

// ConnectedData is the private ack sent to a freshly registered
// session.
type ConnectedData struct {
	UserID      string   `json:"userId"`
	OnlineUsers []string `json:"onlineUsers"`
}

// PresenceData announces one user's presence transition.
type PresenceData struct {
	UserID    string     `json:"userId"`
	Timestamp time.Time  `json:"timestamp"`
	LastSeen  *time.Time `json:"lastSeen,omitempty"`
}

// MessageSentData confirms persistence to the sender. TempID echoes
// the client-side correlation id from the send request; the
// conversation is projected from the sender's perspective.
type MessageSentData struct {
	TempID       string                   `json:"tempId,omitempty"`
	Message      *domain.Message          `json:"message"`
	Conversation *domain.ConversationView `json:"conversation"`
}

// MessageErrorData reports a failed send to the sender.
type MessageErrorData struct {
	TempID string `json:"tempId,omitempty"`
	Error  string `json:"error"`
}

// NewMessageData carries a relayed message to its receiver, with the
// conversation projected from the receiver's perspective.
type NewMessageData struct {
	Message      *domain.Message          `json:"message"`
	Conversation *domain.ConversationView `json:"conversation"`
	Sender       *domain.UserInfo         `json:"sender,omitempty"`
}

// MessageDeliveredData tells the sender the receiver's device has the
// message.
type MessageDeliveredData struct {
	MessageID   string    `json:"messageId"`
	TempID      string    `json:"tempId,omitempty"`
	DeliveredAt time.Time `json:"deliveredAt"`
}

// MessagesSeenData tells the other participant their messages were
// read.
type MessagesSeenData struct {
	ConversationID string    `json:"conversationId"`
	SeenBy         string    `json:"seenBy"`
	ReadAt         time.Time `json:"readAt"`
}

// MarkSeenResultData acknowledges a mark-as-seen request.
type MarkSeenResultData struct {
	ConversationID string `json:"conversationId"`
	MarkedCount    int    `json:"markedCount,omitempty"`
	Error          string `json:"error,omitempty"`
}

// TypingData relays a typing indicator.
type TypingData struct {
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

// IncomingCallData delivers a call offer to the callee.
type IncomingCallData struct {
	CallID       string          `json:"callId"`
	CallerID     string          `json:"callerId"`
	CallerName   string          `json:"callerName,omitempty"`
	CallerAvatar string          `json:"callerAvatar,omitempty"`
	CallType     domain.CallType `json:"callType"`
	Offer        json.RawMessage `json:"offer,omitempty"`
}

// CallFailedData names the reason an offer could not be placed.
type CallFailedData struct {
	CalleeID string `json:"calleeId"`
	Reason   string `json:"reason"`
}

// CallAnswerData relays the callee's answer to the caller.
type CallAnswerData struct {
	CallID string          `json:"callId"`
	Answer json.RawMessage `json:"answer,omitempty"`
}

// CallStateData reports reject/cancel transitions to the peer.
type CallStateData struct {
	CallID string `json:"callId"`
	By     string `json:"by"`
}

// CallEndedData reports termination to the non-initiating peer.
type CallEndedData struct {
	CallID   string `json:"callId"`
	EndedBy  string `json:"endedBy"`
	Duration int    `json:"duration"`
	Reason   string `json:"reason"`
}

// ICECandidateData relays one ICE candidate between peers.
type ICECandidateData struct {
	CallID    string          `json:"callId"`
	From      string          `json:"from"`
	Candidate json.RawMessage `json:"candidate"`
}

// OnlineStatusData answers a check-online request.
type OnlineStatusData struct {
	UserID   string `json:"userId"`
	IsOnline bool   `json:"isOnline"`
}

// OnlineUsersData answers a get-online-users request.
type OnlineUsersData struct {
	Users []string `json:"users"`
}
