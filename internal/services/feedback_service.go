// Package services – FeedbackService
//
// This file implements FeedbackService, which lets users review one another.
// A new review is announced to its subject through a push notification in the
// feedback category, which is what the notifications long-poll delivers.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/repo"
	"github.com/tbourn/go-social-backend/internal/utils"
)

// FeedbackPage is a page of the feedback left on a user, newest first.
type FeedbackPage struct {
	Items      []domain.Feedback
	Total      int64
	Page       int
	TotalPages int
}

// FeedbackService implements the feedback use-cases.
type FeedbackService struct {
	DB       *gorm.DB
	Users    UserLookup
	Notifier Notifier // optional

	// MaxGuideRunes and MaxTextRunes cap the two fields; 0 disables a check.
	MaxGuideRunes int
	MaxTextRunes  int

	now func() time.Time
}

// NewFeedbackService constructs a FeedbackService with 255/4000 rune limits.
func NewFeedbackService(db *gorm.DB, users UserLookup, n Notifier) *FeedbackService {
	return &FeedbackService{
		DB:            db,
		Users:         users,
		Notifier:      n,
		MaxGuideRunes: 255,
		MaxTextRunes:  4000,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *FeedbackService) clock() time.Time {
	if s.now == nil {
		return time.Now().UTC()
	}
	return s.now()
}

// normalize trims guide and text and enforces the length limits.
func (s *FeedbackService) normalize(guide, text string) (string, string, error) {
	guide, text = strings.TrimSpace(guide), strings.TrimSpace(text)
	switch {
	case guide == "" || text == "":
		return "", "", fmt.Errorf("%w: guide and text are required", ErrInvalidFeedback)
	case s.MaxGuideRunes > 0 && utf8.RuneCountInString(guide) > s.MaxGuideRunes:
		return "", "", fmt.Errorf("%w: guide too long", ErrInvalidFeedback)
	case s.MaxTextRunes > 0 && utf8.RuneCountInString(text) > s.MaxTextRunes:
		return "", "", fmt.Errorf("%w: text too long", ErrInvalidFeedback)
	}
	return guide, text, nil
}

// Create stores feedback from ownerID on subjectID and notifies the subject.
// A notification failure is logged and does not fail the call.
func (s *FeedbackService) Create(ctx context.Context, ownerID, subjectID, guide, text string) (*domain.Feedback, error) {
	tr := otel.Tracer("services/FeedbackService")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(
			attribute.String("user.id", ownerID),
			attribute.String("subject.id", subjectID),
		),
	)
	defer span.End()

	if ownerID == subjectID {
		return nil, ErrSelfFeedback
	}
	guide, text, err := s.normalize(guide, text)
	if err != nil {
		return nil, err
	}
	for _, id := range []string{ownerID, subjectID} {
		if _, err := s.Users.Get(ctx, id); err != nil {
			return nil, err
		}
	}

	now := s.clock()
	fb := &domain.Feedback{
		OwnerID:   ownerID,
		SubjectID: subjectID,
		Guide:     guide,
		Text:      text,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repo.CreateFeedback(ctx, s.DB, fb); err != nil {
		return nil, err
	}

	s.notifySubject(ctx, fb)
	return fb, nil
}

func (s *FeedbackService) notifySubject(ctx context.Context, fb *domain.Feedback) {
	if s.Notifier == nil {
		return
	}
	_, err := s.Notifier.Create(ctx, NewNotification{
		RecipientID:  fb.SubjectID,
		InitiatorID:  fb.OwnerID,
		Types:        []string{domain.TypePush},
		Category:     domain.CategoryFeedback,
		ResourceType: "feedback",
		ResourceID:   &fb.ID,
		Content:      &fb.Text,
	})
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).
			Str("feedback_id", fb.ID).
			Str("recipient_id", fb.SubjectID).
			Msg("feedback notification failed")
	}
}

// ListPage returns the feedback left on subjectID, newest first.
func (s *FeedbackService) ListPage(ctx context.Context, subjectID string, page, pageSize int) (FeedbackPage, error) {
	if _, err := s.Users.Get(ctx, subjectID); err != nil {
		return FeedbackPage{}, err
	}
	page, pageSize = utils.ClampPage(page, pageSize)
	total, err := repo.CountFeedback(ctx, s.DB, subjectID)
	if err != nil {
		return FeedbackPage{}, err
	}
	out := FeedbackPage{
		Items:      []domain.Feedback{},
		Total:      total,
		Page:       utils.ReportedPage(total, page),
		TotalPages: utils.TotalPages(total, pageSize),
	}
	if total == 0 {
		return out, nil
	}
	out.Items, err = repo.ListFeedback(ctx, s.DB, subjectID, utils.Offset(page, pageSize), pageSize)
	return out, err
}

// Update rewrites feedback. Only its author may do so.
func (s *FeedbackService) Update(ctx context.Context, userID, id, guide, text string) (*domain.Feedback, error) {
	guide, text, err := s.normalize(guide, text)
	if err != nil {
		return nil, err
	}
	var out *domain.Feedback
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fb, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if fb.OwnerID != userID {
			return ErrForbiddenFeedback
		}
		now := s.clock()
		if err := repo.UpdateFeedback(ctx, tx, id, guide, text, now); err != nil {
			return err
		}
		fb.Guide, fb.Text, fb.UpdatedAt = guide, text, now
		out = fb
		return nil
	})
	return out, err
}

// Delete removes feedback. Its author and its subject may both do so.
func (s *FeedbackService) Delete(ctx context.Context, userID, id string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fb, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if userID != fb.OwnerID && userID != fb.SubjectID {
			return ErrForbiddenFeedback
		}
		err = repo.DeleteFeedback(ctx, tx, id)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrFeedbackNotFound
		}
		return err
	})
}

func (s *FeedbackService) load(ctx context.Context, db *gorm.DB, id string) (*domain.Feedback, error) {
	fb, err := repo.GetFeedback(ctx, db, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrFeedbackNotFound
	}
	return fb, err
}
