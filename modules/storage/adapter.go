package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// Port is the interface other modules use to reach chat persistence.
type Port interface {
	SendMessage(ctx context.Context, req SendMessageRequest) (SendMessageResponse, error)
	GetConversation(ctx context.Context, conversationID string) (GetConversationResponse, error)
	MarkDelivered(ctx context.Context, messageID string) (MarkDeliveredResponse, error)
	MarkRead(ctx context.Context, req MarkReadRequest) (MarkReadResponse, error)
	SaveCallMessage(ctx context.Context, req SaveCallMessageRequest) (SaveCallMessageResponse, error)
	SetOnline(ctx context.Context, req SetOnlineRequest) error
	UpsertUserInfo(ctx context.Context, req UpsertUserInfoRequest) (UpsertUserInfoResponse, error)
	GetUsersInfo(ctx context.Context, userIDs []string) (GetUsersInfoResponse, error)
	ListConversations(ctx context.Context, userID string) (ListConversationsResponse, error)
	ListMessages(ctx context.Context, req ListMessagesRequest) (ListMessagesResponse, error)
	UnreadCount(ctx context.Context, userID string) (UnreadCountResponse, error)
}

// Adapter implements Port using the storage module's service
// container.
type Adapter struct {
	container mono.ServiceContainer
}

// NewAdapter creates a new storage adapter.
func NewAdapter(container mono.ServiceContainer) *Adapter {
	if container == nil {
		panic("storage: ServiceContainer is nil")
	}
	return &Adapter{container: container}
}

var _ Port = (*Adapter)(nil)

// call issues one request-reply round trip against the storage
// container. A package-level function because methods cannot carry
// type parameters.
func call[Req, Resp any](ctx context.Context, a *Adapter, service string, req *Req, resp *Resp) error {
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		service,
		json.Marshal,
		json.Unmarshal,
		req,
		resp,
	); err != nil {
		return fmt.Errorf("%s request failed: %w", service, err)
	}
	return nil
}

// SendMessage persists an outgoing message.
func (a *Adapter) SendMessage(ctx context.Context, req SendMessageRequest) (SendMessageResponse, error) {
	var resp SendMessageResponse
	err := call(ctx, a, "send-message", &req, &resp)
	return resp, err
}

// GetConversation fetches one conversation row.
func (a *Adapter) GetConversation(ctx context.Context, conversationID string) (GetConversationResponse, error) {
	req := GetConversationRequest{ConversationID: conversationID}
	var resp GetConversationResponse
	err := call(ctx, a, "get-conversation", &req, &resp)
	return resp, err
}

// MarkDelivered flags a message as delivered.
func (a *Adapter) MarkDelivered(ctx context.Context, messageID string) (MarkDeliveredResponse, error) {
	req := MarkDeliveredRequest{MessageID: messageID}
	var resp MarkDeliveredResponse
	err := call(ctx, a, "mark-delivered", &req, &resp)
	return resp, err
}

// MarkRead marks a conversation's incoming messages as read.
func (a *Adapter) MarkRead(ctx context.Context, req MarkReadRequest) (MarkReadResponse, error) {
	var resp MarkReadResponse
	err := call(ctx, a, "mark-read", &req, &resp)
	return resp, err
}

// SaveCallMessage records a finished call in the conversation.
func (a *Adapter) SaveCallMessage(ctx context.Context, req SaveCallMessageRequest) (SaveCallMessageResponse, error) {
	var resp SaveCallMessageResponse
	err := call(ctx, a, "save-call-message", &req, &resp)
	return resp, err
}

// SetOnline records a presence transition.
func (a *Adapter) SetOnline(ctx context.Context, req SetOnlineRequest) error {
	var resp SetOnlineResponse
	return call(ctx, a, "set-online", &req, &resp)
}

// UpsertUserInfo creates or refreshes a user's profile fields.
func (a *Adapter) UpsertUserInfo(ctx context.Context, req UpsertUserInfoRequest) (UpsertUserInfoResponse, error) {
	var resp UpsertUserInfoResponse
	err := call(ctx, a, "upsert-user-info", &req, &resp)
	return resp, err
}

// GetUsersInfo fetches status rows for a set of users.
func (a *Adapter) GetUsersInfo(ctx context.Context, userIDs []string) (GetUsersInfoResponse, error) {
	req := GetUsersInfoRequest{UserIDs: userIDs}
	var resp GetUsersInfoResponse
	err := call(ctx, a, "get-users-info", &req, &resp)
	return resp, err
}

// ListConversations fetches a user's conversations.
func (a *Adapter) ListConversations(ctx context.Context, userID string) (ListConversationsResponse, error) {
	req := ListConversationsRequest{UserID: userID}
	var resp ListConversationsResponse
	err := call(ctx, a, "list-conversations", &req, &resp)
	return resp, err
}

// ListMessages pages through a conversation's history.
func (a *Adapter) ListMessages(ctx context.Context, req ListMessagesRequest) (ListMessagesResponse, error) {
	var resp ListMessagesResponse
	err := call(ctx, a, "list-messages", &req, &resp)
	return resp, err
}

// UnreadCount sums unread messages addressed to a user.
func (a *Adapter) UnreadCount(ctx context.Context, userID string) (UnreadCountResponse, error) {
	req := UnreadCountRequest{UserID: userID}
	var resp UnreadCountResponse
	err := call(ctx, a, "unread-count", &req, &resp)
	return resp, err
}
