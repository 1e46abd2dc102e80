package gateway

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	domain "github.com/example/realtime-chat/domain/chat"
	"github.com/example/realtime-chat/modules/storage"
)

func (m *Module) healthHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":   "healthy",
		"service":  "realtime-chat",
		"sessions": m.chatMod.SessionCount(),
	})
}

// listConversations returns a user's conversations as views: the
// other party's display info resolved, live presence attached.
func (m *Module) listConversations(c *fiber.Ctx) error {
	userID := c.Params("id")
	if _, err := uuid.Parse(userID); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "user id must be a valid UUID")
	}

	resp, err := m.store.ListConversations(c.UserContext(), userID)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to load conversations")
	}

	otherIDs := make([]string, 0, len(resp.Conversations))
	for _, conv := range resp.Conversations {
		otherIDs = append(otherIDs, conv.OtherParticipant(userID))
	}

	display := map[string]domain.UserInfo{}
	if len(otherIDs) > 0 {
		display, err = m.users.GetDisplayInfo(c.UserContext(), otherIDs)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to resolve users")
		}
	}

	statuses := map[string]domain.UserStatus{}
	if len(otherIDs) > 0 {
		infoResp, err := m.store.GetUsersInfo(c.UserContext(), otherIDs)
		if err == nil {
			statuses = infoResp.Users
		}
	}

	views := make([]domain.ConversationView, 0, len(resp.Conversations))
	for _, conv := range resp.Conversations {
		otherID := conv.OtherParticipant(userID)
		online := m.chatMod.CheckOnline(otherID).IsOnline
		views = append(views, conversationView(userID, conv, display, statuses, resp.LastMessages[conv.ID], online))
	}

	return c.JSON(fiber.Map{
		"conversations": views,
		"total":         len(views),
	})
}

// conversationView assembles one viewer-facing row from the stored
// conversation and whatever lookups succeeded. A user with no
// recorded last-seen timestamp keeps a nil LastSeen.
func conversationView(userID string, conv domain.Conversation, display map[string]domain.UserInfo, statuses map[string]domain.UserStatus, lastMessage *domain.Message, online bool) domain.ConversationView {
	otherID := conv.OtherParticipant(userID)
	view := domain.ConversationView{
		ID:          conv.ID,
		OtherUserID: otherID,
		UnreadCount: conv.UnreadCount,
		LastMessage: lastMessage,
		IsOnline:    online,
		UpdatedAt:   conv.UpdatedAt,
	}
	if info, ok := display[otherID]; ok {
		view.Name = info.Name
		view.Avatar = info.Avatar
	}
	if status, ok := statuses[otherID]; ok && status.LastSeen != nil {
		view.LastSeen = status.LastSeen
	}
	return view
}

// listMessages pages through one conversation's history in
// chronological order.
func (m *Module) listMessages(c *fiber.Ctx) error {
	conversationID := c.Params("id")
	if conversationID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "conversation id is required")
	}

	limit := c.QueryInt("limit", 50)
	if limit > 100 {
		limit = 100
	}

	req := storage.ListMessagesRequest{
		ConversationID: conversationID,
		Limit:          limit,
	}
	if before := c.Query("before"); before != "" {
		ts, err := time.Parse(time.RFC3339, before)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "before must be RFC3339")
		}
		req.Before = &ts
	}

	resp, err := m.store.ListMessages(c.UserContext(), req)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to load messages")
	}

	return c.JSON(fiber.Map{
		"conversationId": conversationID,
		"messages":       resp.Messages,
		"total":          resp.Total,
	})
}

// unreadCount returns a user's total unread message count across all
// conversations.
func (m *Module) unreadCount(c *fiber.Ctx) error {
	userID := c.Params("id")
	if _, err := uuid.Parse(userID); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "user id must be a valid UUID")
	}

	resp, err := m.store.UnreadCount(c.UserContext(), userID)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to count unread messages")
	}

	return c.JSON(fiber.Map{
		"userId": userID,
		"count":  resp.Count,
	})
}
