package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/example/realtime-chat/modules/chat"
)

// Client-initiated event names. Anything else is rejected at the
// boundary before touching module state.
const (
	OpSendMessage    = "send-message"
	OpMarkAsSeen     = "mark-as-seen"
	OpTyping         = "typing"
	OpCallUser       = "call-user"
	OpAcceptCall     = "accept-call"
	OpRejectCall     = "reject-call"
	OpCancelCall     = "cancel-call"
	OpICECandidate   = "ice-candidate"
	OpEndCall        = "end-call"
	OpCheckOnline    = "check-online"
	OpGetOnlineUsers = "get-online-users"
)

// InboundFrame is the wire shape of every client request. Seq is an
// optional client-chosen correlation number echoed on the ack.
type InboundFrame struct {
	Event string          `json:"event"`
	Seq   int64           `json:"seq,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// AckData acknowledges one inbound frame.
type AckData struct {
	Seq     int64  `json:"seq,omitempty"`
	Op      string `json:"op"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// CheckOnlineRequest asks which of the named users are connected.
type CheckOnlineRequest struct {
	UserIDs []string `json:"userIds"`
}

// CallPlacedData rides the ack of a successful call-user frame so the
// caller can cancel or end the call it just placed.
type CallPlacedData struct {
	CallID string `json:"callId"`
}

// maxContentLength bounds message bodies at the boundary; storage
// enforces its own column size.
const maxContentLength = 4000

// decodeInto parses a frame's data payload.
func decodeInto(data json.RawMessage, dest any) error {
	if len(data) == 0 {
		return fmt.Errorf("missing data payload")
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("malformed data payload: %w", err)
	}
	return nil
}

func validateSend(req *chat.SendRequest) error {
	if req.ReceiverID == "" {
		return fmt.Errorf("receiverId is required")
	}
	if _, err := uuid.Parse(req.ReceiverID); err != nil {
		return fmt.Errorf("receiverId must be a valid UUID")
	}
	if req.Content == "" && len(req.Images) == 0 {
		return fmt.Errorf("content or images required")
	}
	if len(req.Content) > maxContentLength {
		return fmt.Errorf("content exceeds %d characters", maxContentLength)
	}
	return nil
}

func validateSeen(req *chat.SeenRequest) error {
	if req.ConversationID == "" {
		return fmt.Errorf("conversationId is required")
	}
	return nil
}

func validateTyping(req *chat.TypingRequest) error {
	if req.ReceiverID == "" {
		return fmt.Errorf("receiverId is required")
	}
	return nil
}

func validateOffer(req *chat.OfferRequest) error {
	if req.CalleeID == "" {
		return fmt.Errorf("calleeId is required")
	}
	if _, err := uuid.Parse(req.CalleeID); err != nil {
		return fmt.Errorf("calleeId must be a valid UUID")
	}
	return nil
}

func validateCallID(callID string) error {
	if callID == "" {
		return fmt.Errorf("callId is required")
	}
	return nil
}

func validateICE(req *chat.ICERequest) error {
	if err := validateCallID(req.CallID); err != nil {
		return err
	}
	if len(req.Candidate) == 0 {
		return fmt.Errorf("candidate is required")
	}
	return nil
}

func validateCheckOnline(req *CheckOnlineRequest) error {
	if len(req.UserIDs) == 0 {
		return fmt.Errorf("userIds is required")
	}
	for _, id := range req.UserIDs {
		if id == "" {
			return fmt.Errorf("userIds may not contain empty ids")
		}
	}
	return nil
}
