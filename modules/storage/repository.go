package storage

import (
	"errors"
	"fmt"
	"time"

	domain "github.com/example/realtime-chat/domain/chat"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("record not found")

// Repository provides access to chat persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new chat repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindOrCreateConversation returns the conversation between the two
// users, creating it when none exists. The pair is unordered: (a,b)
// and (b,a) resolve to the same row.
func (r *Repository) FindOrCreateConversation(userA, userB string) (*domain.Conversation, error) {
	var conv domain.Conversation
	err := r.db.
		Where("(user1_id = ? AND user2_id = ?) OR (user1_id = ? AND user2_id = ?)",
			userA, userB, userB, userA).
		First(&conv).Error
	if err == nil {
		return &conv, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to find conversation: %w", err)
	}

	conv = domain.Conversation{
		ID:      uuid.New().String(),
		User1ID: userA,
		User2ID: userB,
	}
	if err := r.db.Create(&conv).Error; err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return &conv, nil
}

// FindConversation retrieves a conversation by ID.
func (r *Repository) FindConversation(id string) (*domain.Conversation, error) {
	var conv domain.Conversation
	if err := r.db.First(&conv, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find conversation: %w", err)
	}
	return &conv, nil
}

// CreateMessage stores a message and updates its conversation's last
// message pointer and unread counter in one transaction.
func (r *Repository) CreateMessage(msg *domain.Message) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return fmt.Errorf("failed to create message: %w", err)
		}
		updates := map[string]any{
			"last_message_id": msg.ID,
			"unread_count":    gorm.Expr("unread_count + 1"),
			"updated_at":      time.Now(),
		}
		result := tx.Model(&domain.Conversation{}).
			Where("id = ?", msg.ConversationID).
			Updates(updates)
		if err := result.Error; err != nil {
			return fmt.Errorf("failed to update conversation: %w", err)
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// FindMessage retrieves a message by ID.
func (r *Repository) FindMessage(id string) (*domain.Message, error) {
	var msg domain.Message
	if err := r.db.First(&msg, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find message: %w", err)
	}
	return &msg, nil
}

// MarkDelivered flags a message as delivered. Already-delivered
// messages are left untouched.
func (r *Repository) MarkDelivered(messageID string, at time.Time) error {
	result := r.db.Model(&domain.Message{}).
		Where("id = ? AND is_delivered = ?", messageID, false).
		Updates(map[string]any{"is_delivered": true, "delivered_at": at})
	if err := result.Error; err != nil {
		return fmt.Errorf("failed to mark delivered: %w", err)
	}
	return nil
}

// MarkConversationRead marks every unread message in the conversation
// that was sent by someone other than readerID, and resets the
// conversation's unread counter. Returns the number of messages that
// changed state; zero means there was nothing to do.
func (r *Repository) MarkConversationRead(conversationID, readerID string, at time.Time) (int, error) {
	var marked int64
	err := r.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&domain.Message{}).
			Where("conversation_id = ? AND sender_id <> ? AND is_read = ?",
				conversationID, readerID, false).
			Updates(map[string]any{"is_read": true, "read_at": at})
		if err := result.Error; err != nil {
			return fmt.Errorf("failed to mark messages read: %w", err)
		}
		marked = result.RowsAffected

		if err := tx.Model(&domain.Conversation{}).
			Where("id = ?", conversationID).
			Update("unread_count", 0).Error; err != nil {
			return fmt.Errorf("failed to reset unread count: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(marked), nil
}

// UpsertUserStatus creates or updates the profile fields of a user row.
// Empty name/avatar leave the stored values alone.
func (r *Repository) UpsertUserStatus(userID, name, avatar string) (*domain.UserStatus, error) {
	var status domain.UserStatus
	err := r.db.First(&status, "user_id = ?", userID).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		status = domain.UserStatus{UserID: userID, Name: name, Avatar: avatar}
		if err := r.db.Create(&status).Error; err != nil {
			return nil, fmt.Errorf("failed to create user status: %w", err)
		}
		return &status, nil
	case err != nil:
		return nil, fmt.Errorf("failed to find user status: %w", err)
	}

	updates := map[string]any{}
	if name != "" && name != status.Name {
		updates["name"] = name
		status.Name = name
	}
	if avatar != "" && avatar != status.Avatar {
		updates["avatar"] = avatar
		status.Avatar = avatar
	}
	if len(updates) > 0 {
		if err := r.db.Model(&domain.UserStatus{}).
			Where("user_id = ?", userID).
			Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("failed to update user status: %w", err)
		}
	}
	return &status, nil
}

// SetOnline records a presence transition. Going online stamps
// last_connected_at; going offline stamps last_seen.
func (r *Repository) SetOnline(userID string, online bool, at time.Time) error {
	var status domain.UserStatus
	err := r.db.First(&status, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		status = domain.UserStatus{UserID: userID}
		if err := r.db.Create(&status).Error; err != nil {
			return fmt.Errorf("failed to create user status: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("failed to find user status: %w", err)
	}

	updates := map[string]any{"is_online": online}
	if online {
		updates["last_connected_at"] = at
	} else {
		updates["last_seen"] = at
	}
	if err := r.db.Model(&domain.UserStatus{}).
		Where("user_id = ?", userID).
		Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to set online state: %w", err)
	}
	return nil
}

// FindUserStatuses returns the rows for the given user ids. Unknown
// ids are simply absent from the result.
func (r *Repository) FindUserStatuses(userIDs []string) ([]domain.UserStatus, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var statuses []domain.UserStatus
	if err := r.db.Where("user_id IN ?", userIDs).Find(&statuses).Error; err != nil {
		return nil, fmt.Errorf("failed to find user statuses: %w", err)
	}
	return statuses, nil
}

// ListConversations returns all conversations involving userID, most
// recently updated first.
func (r *Repository) ListConversations(userID string) ([]domain.Conversation, error) {
	var convs []domain.Conversation
	if err := r.db.
		Where("user1_id = ? OR user2_id = ?", userID, userID).
		Order("updated_at DESC").
		Find(&convs).Error; err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return convs, nil
}

// ListMessages returns up to limit messages of a conversation in
// chronological order, optionally only those created before the given
// cursor.
func (r *Repository) ListMessages(conversationID string, limit int, before *time.Time) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	q := r.db.Where("conversation_id = ?", conversationID)
	if before != nil {
		q = q.Where("created_at < ?", before)
	}
	var msgs []domain.Message
	if err := q.Order("created_at DESC").Limit(limit).Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	// Reverse into chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// CountUnread sums unread messages addressed to userID across all of
// their conversations.
func (r *Repository) CountUnread(userID string) (int, error) {
	var total int64
	err := r.db.Model(&domain.Message{}).
		Joins("JOIN conversations ON conversations.id = messages.conversation_id").
		Where("(conversations.user1_id = ? OR conversations.user2_id = ?)", userID, userID).
		Where("messages.sender_id <> ? AND messages.is_read = ?", userID, false).
		Count(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count unread: %w", err)
	}
	return int(total), nil
}
