package events

import (
	"time"

	"github.com/go-monolith/mono/pkg/helper"
)

// UserOnlineEvent is emitted when a user's session is registered.
type UserOnlineEvent struct {
	UserID      string    `json:"user_id"`
	ConnectedAt time.Time `json:"connected_at"`
}

// UserOfflineEvent is emitted when a user's last session is gone.
type UserOfflineEvent struct {
	UserID   string    `json:"user_id"`
	LastSeen time.Time `json:"last_seen"`
}

// CallEndedEvent is emitted after a call reaches a terminal state, for
// any consumer interested in call outcomes.
type CallEndedEvent struct {
	CallID   string    `json:"call_id"`
	CallerID string    `json:"caller_id"`
	CalleeID string    `json:"callee_id"`
	Status   string    `json:"status"`
	Duration int       `json:"duration"`
	EndedAt  time.Time `json:"ended_at"`
}

// Event definitions for the chat domain.
var (
	UserOnlineV1 = helper.EventDefinition[UserOnlineEvent](
		"chat",
		"UserOnline",
		"v1",
	)

	UserOfflineV1 = helper.EventDefinition[UserOfflineEvent](
		"chat",
		"UserOffline",
		"v1",
	)

	CallEndedV1 = helper.EventDefinition[CallEndedEvent](
		"chat",
		"CallEnded",
		"v1",
	)
)
