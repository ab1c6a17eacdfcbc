package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-social-backend/internal/domain"
)

// CreateConversation inserts a conversation and its participants in one
// transaction.
func CreateConversation(ctx context.Context, db *gorm.DB, isGroup bool, userIDs ...string) (*domain.Conversation, error) {
	now := time.Now().UTC()
	c := &domain.Conversation{
		ID:        uuid.NewString(),
		IsGroup:   isGroup,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(c).Error; err != nil {
			return err
		}
		parts := make([]domain.ConversationParticipant, 0, len(userIDs))
		for _, id := range userIDs {
			parts = append(parts, domain.ConversationParticipant{ConversationID: c.ID, UserID: id})
		}
		if len(parts) == 0 {
			return nil
		}
		if err := tx.Omit(clause.Associations).Create(&parts).Error; err != nil {
			return err
		}
		c.Participants = parts
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// FindDirectConversation returns the non-group conversation shared by a and b,
// or ErrNotFound.
func FindDirectConversation(ctx context.Context, db *gorm.DB, a, b string) (*domain.Conversation, error) {
	var c domain.Conversation
	err := db.WithContext(ctx).
		Where("is_group = ?", false).
		Where("id IN (?)", db.Model(&domain.ConversationParticipant{}).Select("conversation_id").Where("user_id = ?", a)).
		Where("id IN (?)", db.Model(&domain.ConversationParticipant{}).Select("conversation_id").Where("user_id = ?", b)).
		Order("created_at ASC").
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetConversation fetches a conversation by ID, or ErrNotFound.
func GetConversation(ctx context.Context, db *gorm.DB, id string) (*domain.Conversation, error) {
	var c domain.Conversation
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// IsParticipant reports whether userID belongs to the conversation.
func IsParticipant(ctx context.Context, db *gorm.DB, conversationID, userID string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Count(&n).Error
	return n > 0, err
}

// OtherParticipants returns the IDs of everyone in the conversation except userID.
func OtherParticipants(ctx context.Context, db *gorm.DB, conversationID, userID string) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).
		Model(&domain.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id <> ?", conversationID, userID).
		Order("user_id ASC").
		Pluck("user_id", &ids).Error
	return ids, err
}

// CountConversations returns how many conversations userID takes part in.
func CountConversations(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.ConversationParticipant{}).
		Where("user_id = ?", userID).
		Count(&total).Error
	return total, err
}

// ListConversationsPage returns userID's conversations, most recently active
// first, with participants preloaded.
func ListConversationsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Conversation, error) {
	var out []domain.Conversation
	err := db.WithContext(ctx).
		Preload("Participants").
		Where("id IN (?)", db.Model(&domain.ConversationParticipant{}).Select("conversation_id").Where("user_id = ?", userID)).
		Order("updated_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// SetLatestMessage points the conversation at its newest message and bumps
// updated_at. Returns ErrNotFound if the conversation does not exist.
func SetLatestMessage(ctx context.Context, db *gorm.DB, conversationID, messageID string, at time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ?", conversationID).
		Updates(map[string]any{"latest_message_id": messageID, "updated_at": at.UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
