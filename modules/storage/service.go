package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/example/realtime-chat/domain/chat"
	"github.com/go-monolith/mono"
	"github.com/google/uuid"
)

// validateUserID rejects identities that are not UUIDs before anything
// touches the database.
func validateUserID(field, id string) error {
	if id == "" {
		return fmt.Errorf("%s is required", field)
	}
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%s must be a valid UUID", field)
	}
	return nil
}

// sendMessage handles the storage.send-message service request.
func (m *StorageModule) sendMessage(_ context.Context, req SendMessageRequest, _ *mono.Msg) (SendMessageResponse, error) {
	if err := validateUserID("sender_id", req.SenderID); err != nil {
		return SendMessageResponse{}, err
	}
	if err := validateUserID("receiver_id", req.ReceiverID); err != nil {
		return SendMessageResponse{}, err
	}
	if req.SenderID == req.ReceiverID {
		return SendMessageResponse{}, fmt.Errorf("sender and receiver must differ")
	}
	if req.Content == "" && len(req.Images) == 0 {
		return SendMessageResponse{}, fmt.Errorf("message content is required")
	}

	var conv *domain.Conversation
	var err error
	if req.ConversationID != "" {
		conv, err = m.repo.FindConversation(req.ConversationID)
		if errors.Is(err, ErrNotFound) {
			return SendMessageResponse{}, fmt.Errorf("conversation not found: %s", req.ConversationID)
		}
		if err != nil {
			return SendMessageResponse{}, err
		}
		if !conv.Involves(req.SenderID) || !conv.Involves(req.ReceiverID) {
			return SendMessageResponse{}, fmt.Errorf("conversation %s does not involve both users", req.ConversationID)
		}
	} else {
		conv, err = m.repo.FindOrCreateConversation(req.SenderID, req.ReceiverID)
		if err != nil {
			return SendMessageResponse{}, err
		}
	}

	msgType := domain.MessageTypeText
	var meta *domain.MessageMetadata
	if len(req.Images) > 0 {
		msgType = domain.MessageTypeImage
		meta = &domain.MessageMetadata{Images: req.Images}
	}

	msg := &domain.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		SenderID:       req.SenderID,
		Content:        req.Content,
		MessageType:    msgType,
		Metadata:       meta,
		IsSent:         true,
	}
	if err := m.repo.CreateMessage(msg); err != nil {
		return SendMessageResponse{}, err
	}
	conv.LastMessageID = msg.ID
	conv.UnreadCount++

	return SendMessageResponse{Message: msg, Conversation: conv}, nil
}

// getConversation handles the storage.get-conversation service request.
func (m *StorageModule) getConversation(_ context.Context, req GetConversationRequest, _ *mono.Msg) (GetConversationResponse, error) {
	if req.ConversationID == "" {
		return GetConversationResponse{}, fmt.Errorf("conversation_id is required")
	}
	conv, err := m.repo.FindConversation(req.ConversationID)
	if err != nil {
		return GetConversationResponse{}, err
	}
	return GetConversationResponse{Conversation: conv}, nil
}

// markDelivered handles the storage.mark-delivered service request.
func (m *StorageModule) markDelivered(_ context.Context, req MarkDeliveredRequest, _ *mono.Msg) (MarkDeliveredResponse, error) {
	if req.MessageID == "" {
		return MarkDeliveredResponse{}, fmt.Errorf("message_id is required")
	}
	now := time.Now()
	if err := m.repo.MarkDelivered(req.MessageID, now); err != nil {
		return MarkDeliveredResponse{}, err
	}
	return MarkDeliveredResponse{DeliveredAt: now}, nil
}

// markRead handles the storage.mark-read service request. Repeated
// calls are harmless: a second request finds nothing to mark and
// reports a zero count.
func (m *StorageModule) markRead(_ context.Context, req MarkReadRequest, _ *mono.Msg) (MarkReadResponse, error) {
	if req.ConversationID == "" {
		return MarkReadResponse{}, fmt.Errorf("conversation_id is required")
	}
	if err := validateUserID("reader_id", req.ReaderID); err != nil {
		return MarkReadResponse{}, err
	}
	now := time.Now()
	marked, err := m.repo.MarkConversationRead(req.ConversationID, req.ReaderID, now)
	if err != nil {
		return MarkReadResponse{}, err
	}
	return MarkReadResponse{MarkedCount: marked, ReadAt: now}, nil
}

// saveCallMessage handles the storage.save-call-message service
// request. The record always belongs to the caller regardless of who
// terminated the call.
func (m *StorageModule) saveCallMessage(_ context.Context, req SaveCallMessageRequest, _ *mono.Msg) (SaveCallMessageResponse, error) {
	if err := validateUserID("caller_id", req.CallerID); err != nil {
		return SaveCallMessageResponse{}, err
	}
	if err := validateUserID("callee_id", req.CalleeID); err != nil {
		return SaveCallMessageResponse{}, err
	}
	if req.CallID == "" {
		return SaveCallMessageResponse{}, fmt.Errorf("call_id is required")
	}

	conv, err := m.repo.FindOrCreateConversation(req.CallerID, req.CalleeID)
	if err != nil {
		return SaveCallMessageResponse{}, err
	}

	callType := req.CallType
	if callType == "" {
		callType = domain.CallTypeVideo
	}
	status := req.Status
	if status == "" {
		if req.Duration > 0 {
			status = domain.CallStatusAnswered
		} else {
			status = domain.CallStatusMissed
		}
	}

	now := time.Now()
	msg := &domain.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		SenderID:       req.CallerID,
		Content:        callContent(callType, status),
		MessageType:    domain.MessageTypeCall,
		Metadata: &domain.MessageMetadata{
			CallID:     req.CallID,
			Duration:   req.Duration,
			CallType:   callType,
			CallStatus: status,
		},
		IsSent:      true,
		IsDelivered: true,
		DeliveredAt: &now,
	}
	if err := m.repo.CreateMessage(msg); err != nil {
		return SaveCallMessageResponse{}, err
	}
	conv.LastMessageID = msg.ID
	conv.UnreadCount++

	return SaveCallMessageResponse{Message: msg, Conversation: conv}, nil
}

// callContent builds the human-readable line shown in conversation
// lists for a call record.
func callContent(callType domain.CallType, status domain.CallStatus) string {
	kind := "Video call"
	if callType == domain.CallTypeVoice {
		kind = "Voice call"
	}
	switch status {
	case domain.CallStatusMissed:
		return "Missed " + kind
	case domain.CallStatusDeclined:
		return kind + " declined"
	case domain.CallStatusCancelled:
		return kind + " cancelled"
	default:
		return kind
	}
}

// setOnline handles the storage.set-online service request.
func (m *StorageModule) setOnline(_ context.Context, req SetOnlineRequest, _ *mono.Msg) (SetOnlineResponse, error) {
	if err := validateUserID("user_id", req.UserID); err != nil {
		return SetOnlineResponse{}, err
	}
	at := req.At
	if at.IsZero() {
		at = time.Now()
	}
	if err := m.repo.SetOnline(req.UserID, req.Online, at); err != nil {
		return SetOnlineResponse{}, err
	}
	return SetOnlineResponse{Updated: true}, nil
}

// upsertUserInfo handles the storage.upsert-user-info service request.
func (m *StorageModule) upsertUserInfo(_ context.Context, req UpsertUserInfoRequest, _ *mono.Msg) (UpsertUserInfoResponse, error) {
	if err := validateUserID("user_id", req.UserID); err != nil {
		return UpsertUserInfoResponse{}, err
	}
	status, err := m.repo.UpsertUserStatus(req.UserID, req.Name, req.Avatar)
	if err != nil {
		return UpsertUserInfoResponse{}, err
	}
	return UpsertUserInfoResponse{Status: status}, nil
}

// getUsersInfo handles the storage.get-users-info service request.
func (m *StorageModule) getUsersInfo(_ context.Context, req GetUsersInfoRequest, _ *mono.Msg) (GetUsersInfoResponse, error) {
	statuses, err := m.repo.FindUserStatuses(req.UserIDs)
	if err != nil {
		return GetUsersInfoResponse{}, err
	}
	users := make(map[string]domain.UserStatus, len(statuses))
	for _, s := range statuses {
		users[s.UserID] = s
	}
	return GetUsersInfoResponse{Users: users}, nil
}

// listConversations handles the storage.list-conversations service
// request.
func (m *StorageModule) listConversations(_ context.Context, req ListConversationsRequest, _ *mono.Msg) (ListConversationsResponse, error) {
	if err := validateUserID("user_id", req.UserID); err != nil {
		return ListConversationsResponse{}, err
	}
	convs, err := m.repo.ListConversations(req.UserID)
	if err != nil {
		return ListConversationsResponse{}, err
	}

	last := make(map[string]*domain.Message)
	for _, c := range convs {
		if c.LastMessageID == "" {
			continue
		}
		msg, err := m.repo.FindMessage(c.LastMessageID)
		if err != nil {
			continue
		}
		last[c.ID] = msg
	}
	return ListConversationsResponse{Conversations: convs, LastMessages: last}, nil
}

// listMessages handles the storage.list-messages service request.
func (m *StorageModule) listMessages(_ context.Context, req ListMessagesRequest, _ *mono.Msg) (ListMessagesResponse, error) {
	if req.ConversationID == "" {
		return ListMessagesResponse{}, fmt.Errorf("conversation_id is required")
	}
	msgs, err := m.repo.ListMessages(req.ConversationID, req.Limit, req.Before)
	if err != nil {
		return ListMessagesResponse{}, err
	}
	return ListMessagesResponse{Messages: msgs, Total: len(msgs)}, nil
}

// unreadCount handles the storage.unread-count service request.
func (m *StorageModule) unreadCount(_ context.Context, req UnreadCountRequest, _ *mono.Msg) (UnreadCountResponse, error) {
	if err := validateUserID("user_id", req.UserID); err != nil {
		return UnreadCountResponse{}, err
	}
	count, err := m.repo.CountUnread(req.UserID)
	if err != nil {
		return UnreadCountResponse{}, err
	}
	return UnreadCountResponse{Count: count}, nil
}
