package repo

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-social-backend/internal/domain"
)

// NotificationFilter scopes notification queries. Filtering is done in SQL so
// that long-poll checks only ever see candidates the caller may receive.
//
//   - IncludeTypes: keep rows carrying at least one of these types (empty = any).
//   - ExcludeCategories: drop rows whose category is listed.
type NotificationFilter struct {
	RecipientID       string
	IncludeTypes      []string
	ExcludeCategories []string
}

func (f NotificationFilter) apply(q *gorm.DB) *gorm.DB {
	q = q.Where("recipient_id = ?", f.RecipientID)
	if len(f.IncludeTypes) > 0 {
		ors := make([]string, 0, len(f.IncludeTypes))
		args := make([]any, 0, len(f.IncludeTypes))
		for _, t := range f.IncludeTypes {
			ors = append(ors, "(',' || types || ',') LIKE ?")
			args = append(args, "%,"+domain.FoldTag(t)+",%")
		}
		q = q.Where("("+strings.Join(ors, " OR ")+")", args...)
	}
	if len(f.ExcludeCategories) > 0 {
		cats := make([]string, 0, len(f.ExcludeCategories))
		for _, c := range f.ExcludeCategories {
			cats = append(cats, domain.FoldTag(c))
		}
		q = q.Where("category NOT IN ?", cats)
	}
	return q
}

// CreateNotification inserts n, assigning an ID when empty.
func CreateNotification(ctx context.Context, db *gorm.DB, n *domain.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.Category = domain.FoldTag(n.Category)
	n.Types = domain.NewTypeSet(n.Types...)
	return db.WithContext(ctx).Create(n).Error
}

// ListNotifications returns notifications matching f, newest first
// (CreatedAt DESC, ID DESC). A limit <= 0 returns every match.
func ListNotifications(ctx context.Context, db *gorm.DB, f NotificationFilter, offset, limit int) ([]domain.Notification, error) {
	var out []domain.Notification
	q := f.apply(db.WithContext(ctx).Model(&domain.Notification{})).
		Order("created_at DESC, id DESC").
		Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// CountNotifications returns the number of notifications matching f.
func CountNotifications(ctx context.Context, db *gorm.DB, f NotificationFilter) (int64, error) {
	var total int64
	err := f.apply(db.WithContext(ctx).Model(&domain.Notification{})).Count(&total).Error
	return total, err
}

// MarkNotificationRead flags a notification addressed to recipientID as read.
// Returns ErrNotFound when no such notification exists for that recipient.
func MarkNotificationRead(ctx context.Context, db *gorm.DB, id, recipientID string) error {
	res := db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("id = ? AND recipient_id = ?", id, recipientID).
		Update("is_read", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
