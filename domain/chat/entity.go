package chat

import "time"

// MessageType enumerates the kinds of messages a conversation can hold.
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeCall  MessageType = "call"
	MessageTypeFile  MessageType = "file"
)

// CallType enumerates the media kinds of a call.
type CallType string

const (
	CallTypeVideo CallType = "video"
	CallTypeVoice CallType = "voice"
)

// CallStatus enumerates the terminal outcomes of a call.
type CallStatus string

const (
	CallStatusAnswered  CallStatus = "answered"
	CallStatusMissed    CallStatus = "missed"
	CallStatusDeclined  CallStatus = "declined"
	CallStatusCancelled CallStatus = "cancelled"
)

// MessageMetadata carries type-specific payload alongside a message:
// image URLs for image messages, call details for call records.
type MessageMetadata struct {
	Images     []string   `json:"images,omitempty"`
	CallID     string     `json:"callId,omitempty"`
	Duration   int        `json:"duration,omitempty"`
	CallType   CallType   `json:"callType,omitempty"`
	CallStatus CallStatus `json:"callStatus,omitempty"`
}

// Message is one message inside a two-party conversation. The delivery
// flags form a one-way ladder: sent, then delivered, then read.
type Message struct {
	ID             string           `gorm:"primarykey;size:36" json:"id"`
	ConversationID string           `gorm:"size:36;index;not null" json:"conversationId"`
	SenderID       string           `gorm:"size:36;index;not null" json:"senderId"`
	Content        string           `gorm:"size:4000" json:"content"`
	MessageType    MessageType      `gorm:"size:16;not null;default:text" json:"messageType"`
	Metadata       *MessageMetadata `gorm:"serializer:json" json:"metadata,omitempty"`
	Reaction       string           `gorm:"size:16" json:"reaction,omitempty"`
	IsSent         bool             `gorm:"not null;default:true" json:"isSent"`
	IsDelivered    bool             `gorm:"not null;default:false" json:"isDelivered"`
	IsRead         bool             `gorm:"not null;default:false" json:"isRead"`
	DeliveredAt    *time.Time       `json:"deliveredAt,omitempty"`
	ReadAt         *time.Time       `json:"readAt,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

// TableName returns the table name for Message model.
func (Message) TableName() string {
	return "messages"
}

// Conversation links an unordered pair of users. UnreadCount tracks
// messages stored since the last mark-as-seen in this conversation.
type Conversation struct {
	ID            string    `gorm:"primarykey;size:36" json:"id"`
	User1ID       string    `gorm:"size:36;index:idx_conv_pair;not null" json:"user1Id"`
	User2ID       string    `gorm:"size:36;index:idx_conv_pair;not null" json:"user2Id"`
	LastMessageID string    `gorm:"size:36" json:"lastMessageId,omitempty"`
	UnreadCount   int       `gorm:"not null;default:0" json:"unreadCount"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// TableName returns the table name for Conversation model.
func (Conversation) TableName() string {
	return "conversations"
}

// OtherParticipant returns the participant that is not userID, or ""
// when userID is not part of the conversation.
func (c *Conversation) OtherParticipant(userID string) string {
	switch userID {
	case c.User1ID:
		return c.User2ID
	case c.User2ID:
		return c.User1ID
	default:
		return ""
	}
}

// Involves reports whether userID is one of the two participants.
func (c *Conversation) Involves(userID string) bool {
	return userID == c.User1ID || userID == c.User2ID
}

// ViewFor projects the conversation as seen by one participant. The
// unread counter belongs to the side that did not send the last
// message; the other side sees zero.
func (c *Conversation) ViewFor(viewerID string, other UserInfo, lastMessage *Message, isOnline bool, lastSeen *time.Time) *ConversationView {
	view := &ConversationView{
		ID:          c.ID,
		OtherUserID: c.OtherParticipant(viewerID),
		Name:        other.Name,
		Avatar:      other.Avatar,
		LastMessage: lastMessage,
		IsOnline:    isOnline,
		LastSeen:    lastSeen,
		UpdatedAt:   c.UpdatedAt,
	}
	if lastMessage == nil || lastMessage.SenderID != viewerID {
		view.UnreadCount = c.UnreadCount
	}
	return view
}

// UserStatus is the persisted presence and profile row for a user.
type UserStatus struct {
	UserID          string     `gorm:"primarykey;size:36" json:"userId"`
	Name            string     `gorm:"size:100" json:"name"`
	Avatar          string     `gorm:"size:500" json:"avatar"`
	IsOnline        bool       `gorm:"not null;default:false" json:"isOnline"`
	LastSeen        *time.Time `json:"lastSeen,omitempty"`
	LastConnectedAt *time.Time `json:"lastConnectedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// TableName returns the table name for UserStatus model.
func (UserStatus) TableName() string {
	return "user_statuses"
}

// UserInfo is the display projection of a user used on the wire.
type UserInfo struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// ConversationView is a conversation as seen by one participant: the
// other party's display info resolved, unread state from the viewer's
// perspective.
type ConversationView struct {
	ID          string     `json:"id"`
	OtherUserID string     `json:"otherUserId"`
	Name        string     `json:"name"`
	Avatar      string     `json:"avatar,omitempty"`
	LastMessage *Message   `json:"lastMessage,omitempty"`
	UnreadCount int        `json:"unreadCount"`
	IsOnline    bool       `json:"isOnline"`
	LastSeen    *time.Time `json:"lastSeen,omitempty"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}
