package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-social-backend/internal/domain"
)

// MessagesStats returns the number of messages in a conversation and the
// greatest UpdatedAt among them. When the conversation is empty, count is 0
// and maxUpdatedAt is nil.
func MessagesStats(ctx context.Context, db *gorm.DB, conversationID string) (count int64, maxUpdatedAt *time.Time, err error) {
	return latestStats(db.WithContext(ctx).Model(&domain.Message{}).Where("conversation_id = ?", conversationID))
}

// NotificationsStats is the notification counterpart of MessagesStats,
// scoped by the same filter the listing uses.
func NotificationsStats(ctx context.Context, db *gorm.DB, f NotificationFilter) (count int64, maxUpdatedAt *time.Time, err error) {
	return latestStats(f.apply(db.WithContext(ctx).Model(&domain.Notification{})))
}

func latestStats(q *gorm.DB) (count int64, maxUpdatedAt *time.Time, err error) {
	if err = q.Session(&gorm.Session{}).Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Session(&gorm.Session{}).Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}
