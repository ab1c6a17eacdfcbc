package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-social-backend/internal/domain"
)

// CreateFeedback inserts fb, assigning an ID and timestamps when unset.
func CreateFeedback(ctx context.Context, db *gorm.DB, fb *domain.Feedback) error {
	if fb.ID == "" {
		fb.ID = uuid.NewString()
	}
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = time.Now().UTC()
	}
	if fb.UpdatedAt.IsZero() {
		fb.UpdatedAt = fb.CreatedAt
	}
	return db.WithContext(ctx).Create(fb).Error
}

// GetFeedback fetches one feedback by ID, or ErrNotFound.
func GetFeedback(ctx context.Context, db *gorm.DB, id string) (*domain.Feedback, error) {
	var fb domain.Feedback
	if err := db.WithContext(ctx).Where("id = ?", id).Take(&fb).Error; err != nil {
		return nil, err
	}
	return &fb, nil
}

// ListFeedback returns the feedback left on subjectID, newest first
// (CreatedAt DESC, ID DESC). A limit <= 0 returns every row.
func ListFeedback(ctx context.Context, db *gorm.DB, subjectID string, offset, limit int) ([]domain.Feedback, error) {
	var out []domain.Feedback
	q := db.WithContext(ctx).
		Where("subject_id = ?", subjectID).
		Order("created_at DESC, id DESC").
		Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// CountFeedback counts the feedback left on subjectID.
func CountFeedback(ctx context.Context, db *gorm.DB, subjectID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Feedback{}).Where("subject_id = ?", subjectID).Count(&n).Error
	return n, err
}

// UpdateFeedback rewrites guide and text. Returns ErrNotFound if no row matched.
func UpdateFeedback(ctx context.Context, db *gorm.DB, id, guide, text string, at time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Feedback{}).
		Where("id = ?", id).
		Updates(map[string]any{"guide": guide, "text": text, "updated_at": at.UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteFeedback removes a feedback row. Returns ErrNotFound if none existed.
func DeleteFeedback(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Feedback{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
