package storage

import (
	"time"

	domain "github.com/example/realtime-chat/domain/chat"
)

// SendMessageRequest is the request for persisting an outgoing
// message. ConversationID is optional; when present it must name an
// existing conversation between the two users.
type SendMessageRequest struct {
	SenderID       string   `json:"sender_id"`
	ReceiverID     string   `json:"receiver_id"`
	ConversationID string   `json:"conversation_id,omitempty"`
	Content        string   `json:"content"`
	Images         []string `json:"images,omitempty"`
}

// SendMessageResponse returns the stored message and its conversation.
type SendMessageResponse struct {
	Message      *domain.Message      `json:"message"`
	Conversation *domain.Conversation `json:"conversation"`
}

// GetConversationRequest is the request for fetching one conversation.
type GetConversationRequest struct {
	ConversationID string `json:"conversation_id"`
}

// GetConversationResponse returns a conversation row.
type GetConversationResponse struct {
	Conversation *domain.Conversation `json:"conversation"`
}

// MarkDeliveredRequest flags one message as delivered.
type MarkDeliveredRequest struct {
	MessageID string `json:"message_id"`
}

// MarkDeliveredResponse reports the delivery timestamp used.
type MarkDeliveredResponse struct {
	DeliveredAt time.Time `json:"delivered_at"`
}

// MarkReadRequest marks every unread incoming message of a
// conversation as read on behalf of ReaderID.
type MarkReadRequest struct {
	ConversationID string `json:"conversation_id"`
	ReaderID       string `json:"reader_id"`
}

// MarkReadResponse reports how many messages changed state.
type MarkReadResponse struct {
	MarkedCount int       `json:"marked_count"`
	ReadAt      time.Time `json:"read_at"`
}

// SaveCallMessageRequest records a finished call as a conversation
// message. The message is always attributed to the caller.
type SaveCallMessageRequest struct {
	CallerID string            `json:"caller_id"`
	CalleeID string            `json:"callee_id"`
	CallID   string            `json:"call_id"`
	CallType domain.CallType   `json:"call_type"`
	Status   domain.CallStatus `json:"status"`
	Duration int               `json:"duration"`
}

// SaveCallMessageResponse returns the stored call record.
type SaveCallMessageResponse struct {
	Message      *domain.Message      `json:"message"`
	Conversation *domain.Conversation `json:"conversation"`
}

// SetOnlineRequest records a presence transition for a user.
type SetOnlineRequest struct {
	UserID string    `json:"user_id"`
	Online bool      `json:"online"`
	At     time.Time `json:"at"`
}

// SetOnlineResponse acknowledges the presence write.
type SetOnlineResponse struct {
	Updated bool `json:"updated"`
}

// UpsertUserInfoRequest creates or refreshes a user's profile fields.
type UpsertUserInfoRequest struct {
	UserID string `json:"user_id"`
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// UpsertUserInfoResponse returns the resulting row.
type UpsertUserInfoResponse struct {
	Status *domain.UserStatus `json:"status"`
}

// GetUsersInfoRequest fetches status rows for a set of users.
type GetUsersInfoRequest struct {
	UserIDs []string `json:"user_ids"`
}

// GetUsersInfoResponse maps user id to its stored status row.
type GetUsersInfoResponse struct {
	Users map[string]domain.UserStatus `json:"users"`
}

// ListConversationsRequest fetches a user's conversations.
type ListConversationsRequest struct {
	UserID string `json:"user_id"`
}

// ListConversationsResponse returns conversations with their last
// messages preloaded.
type ListConversationsResponse struct {
	Conversations []domain.Conversation      `json:"conversations"`
	LastMessages  map[string]*domain.Message `json:"last_messages,omitempty"`
}

// ListMessagesRequest pages through a conversation's history.
type ListMessagesRequest struct {
	ConversationID string     `json:"conversation_id"`
	Limit          int        `json:"limit,omitempty"`
	Before         *time.Time `json:"before,omitempty"`
}

// ListMessagesResponse returns messages in chronological order.
type ListMessagesResponse struct {
	Messages []domain.Message `json:"messages"`
	Total    int              `json:"total"`
}

// UnreadCountRequest asks for a user's total unread message count.
type UnreadCountRequest struct {
	UserID string `json:"user_id"`
}

// UnreadCountResponse carries the total.
type UnreadCountResponse struct {
	Count int `json:"count"`
}
