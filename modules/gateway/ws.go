package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/realtime-chat/modules/chat"
	"github.com/example/realtime-chat/modules/storage"
)

const (
	messagesPerSecond = 20
	burstSize         = 40
)

const eventAck = "ack"

// rateLimiter is a token bucket refilled once per second. One limiter
// per live connection.
type rateLimiter struct {
	mu         sync.Mutex
	tokens     int
	maxTokens  int
	refillRate int
	lastRefill time.Time
}

func newRateLimiter(maxTokens, refillRate int) *rateLimiter {
	return &rateLimiter{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

func (r *rateLimiter) allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(r.lastRefill)
	tokensToAdd := int(elapsed.Seconds()) * r.refillRate
	if tokensToAdd > 0 {
		r.tokens += tokensToAdd
		if r.tokens > r.maxTokens {
			r.tokens = r.maxTokens
		}
		r.lastRefill = now
	}

	if r.tokens > 0 {
		r.tokens--
		return true
	}
	return false
}

// upgradeGuard authenticates the connection before the protocol
// switch so rejections still reach the client as HTTP statuses. The
// resolved identity travels to the socket handler via Locals.
func (m *Module) upgradeGuard(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	userID, err := m.resolveIdentity(c)
	if err != nil {
		return err
	}

	c.Locals("userID", userID)
	return c.Next()
}

// resolveIdentity picks the connecting user. A token is validated
// through the auth module when present; otherwise, with auth
// disabled, a userId query parameter is accepted for local
// development.
func (m *Module) resolveIdentity(c *fiber.Ctx) (string, error) {
	token := c.Query("token")
	if token != "" {
		claims, err := m.authPort.ValidateToken(c.UserContext(), token)
		if err != nil {
			return "", fiber.NewError(fiber.StatusUnauthorized, "invalid token")
		}
		return claims.UserID, nil
	}

	if m.authMod.Enabled() {
		return "", fiber.NewError(fiber.StatusUnauthorized, "token is required")
	}

	userID := c.Query("userId")
	if userID == "" {
		return "", fiber.NewError(fiber.StatusUnauthorized, "userId is required")
	}
	if _, err := uuid.Parse(userID); err != nil {
		return "", fiber.NewError(fiber.StatusBadRequest, "userId must be a valid UUID")
	}
	return userID, nil
}

// handleSocket owns one connection from registration to teardown.
func (m *Module) handleSocket(c *websocket.Conn) {
	userID, _ := c.Locals("userID").(string)
	if userID == "" {
		_ = c.Close()
		return
	}

	ctx := context.Background()
	m.syncProfile(ctx, userID, c.Query("name"), c.Query("avatar"))

	sess := m.chatMod.Connect(userID, c)
	limiter := newRateLimiter(burstSize, messagesPerSecond)

	m.logger.Info("WebSocket connected", "userID", userID, "connID", sess.ConnID)

	defer func() {
		m.chatMod.Disconnect(ctx, sess)
		_ = c.Close()
		m.logger.Info("WebSocket disconnected", "userID", userID, "connID", sess.ConnID)
	}()

	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				m.logger.Error("WebSocket read error", "userID", userID, "error", err)
			}
			return
		}

		var frame InboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			m.ack(sess, InboundFrame{}, nil, fmt.Errorf("malformed frame"))
			continue
		}

		if !limiter.allow() {
			m.ack(sess, frame, nil, fmt.Errorf("rate limit exceeded"))
			continue
		}

		data, err := m.dispatch(ctx, sess, frame)
		m.ack(sess, frame, data, err)
	}
}

// syncProfile refreshes the connecting user's display fields when the
// client passed them, then drops the stale cache entry.
func (m *Module) syncProfile(ctx context.Context, userID, name, avatar string) {
	if name == "" && avatar == "" {
		return
	}
	_, err := m.store.UpsertUserInfo(ctx, storage.UpsertUserInfoRequest{
		UserID: userID,
		Name:   name,
		Avatar: avatar,
	})
	if err != nil {
		m.logger.Error("Failed to sync profile", "userID", userID, "error", err)
		return
	}
	if err := m.users.Invalidate(ctx, userID); err != nil {
		m.logger.Error("Failed to invalidate profile cache", "userID", userID, "error", err)
	}
}

// dispatch routes one inbound frame to the owning chat component.
// The returned data rides back on the ack; business outcomes are
// delivered as their own server events.
func (m *Module) dispatch(ctx context.Context, sess *chat.Session, frame InboundFrame) (any, error) {
	switch frame.Event {
	case OpSendMessage:
		var req chat.SendRequest
		if err := decodeInto(frame.Data, &req); err != nil {
			return nil, err
		}
		if err := validateSend(&req); err != nil {
			return nil, err
		}
		return nil, m.chatMod.SendMessage(ctx, sess, req)

	case OpMarkAsSeen:
		var req chat.SeenRequest
		if err := decodeInto(frame.Data, &req); err != nil {
			return nil, err
		}
		if err := validateSeen(&req); err != nil {
			return nil, err
		}
		return nil, m.chatMod.MarkSeen(ctx, sess, req)

	case OpTyping:
		var req chat.TypingRequest
		if err := decodeInto(frame.Data, &req); err != nil {
			return nil, err
		}
		if err := validateTyping(&req); err != nil {
			return nil, err
		}
		m.chatMod.Typing(sess, req)
		return nil, nil

	case OpCallUser:
		var req chat.OfferRequest
		if err := decodeInto(frame.Data, &req); err != nil {
			return nil, err
		}
		if err := validateOffer(&req); err != nil {
			return nil, err
		}
		callID, err := m.chatMod.OfferCall(ctx, sess, req)
		if err != nil {
			return nil, err
		}
		if callID == "" {
			// Offer failed as a call-failed event; nothing to cancel.
			return nil, nil
		}
		return CallPlacedData{CallID: callID}, nil

	case OpAcceptCall:
		var req chat.AnswerRequest
		if err := decodeInto(frame.Data, &req); err != nil {
			return nil, err
		}
		if err := validateCallID(req.CallID); err != nil {
			return nil, err
		}
		return nil, m.chatMod.AcceptCall(ctx, sess, req)

	case OpRejectCall:
		var req chat.CallRequest
		if err := decodeInto(frame.Data, &req); err != nil {
			return nil, err
		}
		if err := validateCallID(req.CallID); err != nil {
			return nil, err
		}
		return nil, m.chatMod.RejectCall(ctx, sess, req)

	case OpCancelCall:
		var req chat.CallRequest
		if err := decodeInto(frame.Data, &req); err != nil {
			return nil, err
		}
		if err := validateCallID(req.CallID); err != nil {
			return nil, err
		}
		return nil, m.chatMod.CancelCall(ctx, sess, req)

	case OpICECandidate:
		var req chat.ICERequest
		if err := decodeInto(frame.Data, &req); err != nil {
			return nil, err
		}
		if err := validateICE(&req); err != nil {
			return nil, err
		}
		return nil, m.chatMod.RelayICE(sess, req)

	case OpEndCall:
		var req chat.EndRequest
		if err := decodeInto(frame.Data, &req); err != nil {
			return nil, err
		}
		if err := validateCallID(req.CallID); err != nil {
			return nil, err
		}
		return nil, m.chatMod.EndCall(ctx, sess, req)

	case OpCheckOnline:
		var req CheckOnlineRequest
		if err := decodeInto(frame.Data, &req); err != nil {
			return nil, err
		}
		if err := validateCheckOnline(&req); err != nil {
			return nil, err
		}
		statuses := make([]chat.OnlineStatusData, 0, len(req.UserIDs))
		for _, id := range req.UserIDs {
			statuses = append(statuses, m.chatMod.CheckOnline(id))
		}
		_ = sess.Send(chat.EventOnlineStatus, statuses)
		return statuses, nil

	case OpGetOnlineUsers:
		users := m.chatMod.OnlineUsers()
		_ = sess.Send(chat.EventOnlineUsers, users)
		return users, nil

	default:
		return nil, fmt.Errorf("unknown event: %s", frame.Event)
	}
}

// ack reports the outcome of one inbound frame back to its sender.
func (m *Module) ack(sess *chat.Session, frame InboundFrame, data any, err error) {
	out := AckData{
		Seq:     frame.Seq,
		Op:      frame.Event,
		Success: err == nil,
		Data:    data,
	}
	if err != nil {
		out.Error = err.Error()
	}
	if sendErr := sess.Send(eventAck, out); sendErr != nil {
		m.logger.Error("Failed to send ack", "userID", sess.UserID, "error", sendErr)
	}
}
