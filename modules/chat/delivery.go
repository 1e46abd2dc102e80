package chat

import (
	"context"
	"fmt"
	"log"

	domain "github.com/example/realtime-chat/domain/chat"
	"github.com/example/realtime-chat/modules/storage"
)

// deliveryStore is the slice of the storage port the tracker needs.
type deliveryStore interface {
	SendMessage(ctx context.Context, req storage.SendMessageRequest) (storage.SendMessageResponse, error)
	MarkDelivered(ctx context.Context, messageID string) (storage.MarkDeliveredResponse, error)
	MarkRead(ctx context.Context, req storage.MarkReadRequest) (storage.MarkReadResponse, error)
	GetConversation(ctx context.Context, conversationID string) (storage.GetConversationResponse, error)
}

// displayDirectory resolves display info for enriching relayed
// messages.
type displayDirectory interface {
	GetDisplayInfo(ctx context.Context, userIDs []string) (map[string]domain.UserInfo, error)
}

// SendRequest is an inbound send-message operation. ConversationID is
// optional; when the client names one it must exist and involve both
// users, otherwise the send is rejected.
type SendRequest struct {
	ReceiverID     string   `json:"receiverId"`
	ConversationID string   `json:"conversationId,omitempty"`
	Content        string   `json:"content"`
	Images         []string `json:"images,omitempty"`
	TempID         string   `json:"tempId,omitempty"`
}

// SeenRequest is an inbound mark-as-seen operation.
type SeenRequest struct {
	ConversationID string `json:"conversationId"`
}

// TypingRequest is an inbound typing indicator.
type TypingRequest struct {
	ReceiverID string `json:"receiverId"`
	IsTyping   bool   `json:"isTyping"`
}

// Tracker moves messages through the sent, delivered, read ladder.
// A message is delivered only when the receiver has a live session at
// send time; reconnecting later does not retroactively deliver.
type Tracker struct {
	registry *Registry
	store    deliveryStore
	users    displayDirectory
}

// NewTracker creates a delivery tracker.
func NewTracker(registry *Registry, store deliveryStore, users displayDirectory) *Tracker {
	return &Tracker{registry: registry, store: store, users: users}
}

// Send persists the message, confirms to the sender, and relays it to
// the receiver when one is connected. The tempId from the request is
// echoed back on every sender-facing event so the client can correlate
// its optimistic UI entry.
func (t *Tracker) Send(ctx context.Context, sender *Session, req SendRequest) error {
	stored, err := t.store.SendMessage(ctx, storage.SendMessageRequest{
		SenderID:       sender.UserID,
		ReceiverID:     req.ReceiverID,
		ConversationID: req.ConversationID,
		Content:        req.Content,
		Images:         req.Images,
	})
	if err != nil {
		_ = sender.Send(EventMessageError, MessageErrorData{
			TempID: req.TempID,
			Error:  err.Error(),
		})
		return fmt.Errorf("send failed: %w", err)
	}

	receiver, online := t.registry.Resolve(req.ReceiverID)
	infos := t.displayInfos(ctx, sender.UserID, req.ReceiverID)

	_ = sender.Send(EventMessageSent, MessageSentData{
		TempID:  req.TempID,
		Message: stored.Message,
		Conversation: stored.Conversation.ViewFor(
			sender.UserID, infos[req.ReceiverID], stored.Message, online, nil,
		),
	})

	if !online {
		return nil
	}

	delivered, err := t.store.MarkDelivered(ctx, stored.Message.ID)
	if err != nil {
		log.Printf("[chat] failed to mark %s delivered: %v", stored.Message.ID, err)
		return nil
	}
	stored.Message.IsDelivered = true
	stored.Message.DeliveredAt = &delivered.DeliveredAt

	var senderInfo *domain.UserInfo
	if info, ok := infos[sender.UserID]; ok {
		senderInfo = &info
	}
	_ = receiver.Send(EventNewMessage, NewMessageData{
		Message: stored.Message,
		Conversation: stored.Conversation.ViewFor(
			receiver.UserID, infos[sender.UserID], stored.Message, true, nil,
		),
		Sender: senderInfo,
	})

	_ = sender.Send(EventMessageDelivered, MessageDeliveredData{
		MessageID:   stored.Message.ID,
		TempID:      req.TempID,
		DeliveredAt: delivered.DeliveredAt,
	})

	return nil
}

// MarkSeen marks the conversation's incoming messages as read on the
// reader's behalf. Repeats are fine; a no-op still succeeds with a
// zero count. The other participant is told only when something
// actually changed.
func (t *Tracker) MarkSeen(ctx context.Context, reader *Session, req SeenRequest) error {
	if req.ConversationID == "" {
		err := fmt.Errorf("conversationId is required")
		_ = reader.Send(EventMarkSeenError, MarkSeenResultData{
			ConversationID: req.ConversationID,
			Error:          err.Error(),
		})
		return err
	}

	marked, err := t.store.MarkRead(ctx, storage.MarkReadRequest{
		ConversationID: req.ConversationID,
		ReaderID:       reader.UserID,
	})
	if err != nil {
		_ = reader.Send(EventMarkSeenError, MarkSeenResultData{
			ConversationID: req.ConversationID,
			Error:          err.Error(),
		})
		return fmt.Errorf("mark seen failed: %w", err)
	}

	_ = reader.Send(EventMarkSeenSuccess, MarkSeenResultData{
		ConversationID: req.ConversationID,
		MarkedCount:    marked.MarkedCount,
	})

	if marked.MarkedCount == 0 {
		return nil
	}

	conv, err := t.store.GetConversation(ctx, req.ConversationID)
	if err != nil {
		log.Printf("[chat] failed to load conversation %s: %v", req.ConversationID, err)
		return nil
	}

	other := conv.Conversation.OtherParticipant(reader.UserID)
	if peer, online := t.registry.Resolve(other); online {
		_ = peer.Send(EventMessagesSeen, MessagesSeenData{
			ConversationID: req.ConversationID,
			SeenBy:         reader.UserID,
			ReadAt:         marked.ReadAt,
		})
	}

	return nil
}

// Typing relays a typing indicator to the receiver when connected.
// Indicators are ephemeral: nothing is stored and offline receivers
// simply miss them.
func (t *Tracker) Typing(sender *Session, req TypingRequest) {
	receiver, online := t.registry.Resolve(req.ReceiverID)
	if !online {
		return
	}
	_ = receiver.Send(EventUserTyping, TypingData{
		UserID:   sender.UserID,
		IsTyping: req.IsTyping,
	})
}

// displayInfos resolves profiles for the participants; lookup failures
// degrade to no enrichment.
func (t *Tracker) displayInfos(ctx context.Context, userIDs ...string) map[string]domain.UserInfo {
	if t.users == nil {
		return nil
	}
	infos, err := t.users.GetDisplayInfo(ctx, userIDs)
	if err != nil {
		log.Printf("[chat] display info lookup failed: %v", err)
		return nil
	}
	return infos
}
