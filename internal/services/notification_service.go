package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/repo"
	"github.com/tbourn/go-social-backend/internal/utils"
)

// NewNotification is the input for NotificationService.Create.
type NewNotification struct {
	RecipientID  string
	InitiatorID  string
	Types        []string
	Category     string
	ResourceType string
	ResourceID   *string
	Content      *string
}

// NotificationPage is a page of in-app notifications.
type NotificationPage struct {
	Items      []domain.Notification
	Total      int64
	Page       int
	TotalPages int
}

// NotificationService stores notifications and answers the candidate queries
// of the long-poll notification streams. Email and SMS types are recorded but
// not dispatched.
type NotificationService struct {
	DB *gorm.DB
}

// NewNotificationService constructs a NotificationService.
func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{DB: db}
}

// streamTypes maps a long-poll stream to the notification type feeding it.
var streamTypes = map[domain.StreamKind]string{
	domain.StreamNotification: domain.TypePush,
	domain.StreamMessage:      domain.TypeMessage,
}

// Create validates and stores a notification. Types and category are case
// folded; at least one known type and a known category are required.
func (s *NotificationService) Create(ctx context.Context, in NewNotification) (*domain.Notification, error) {
	if in.RecipientID == "" || in.InitiatorID == "" {
		return nil, fmt.Errorf("%w: recipient and initiator are required", ErrInvalidNotification)
	}
	if len(in.Types) == 0 {
		return nil, fmt.Errorf("%w: at least one type is required", ErrInvalidNotification)
	}
	for _, t := range in.Types {
		if !domain.IsKnownType(t) {
			return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidNotification, t)
		}
	}
	if !domain.IsKnownCategory(in.Category) {
		return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidNotification, in.Category)
	}

	now := time.Now().UTC()
	n := &domain.Notification{
		RecipientID:  in.RecipientID,
		InitiatorID:  in.InitiatorID,
		Types:        domain.NewTypeSet(in.Types...),
		Category:     in.Category,
		ResourceType: in.ResourceType,
		ResourceID:   in.ResourceID,
		Content:      in.Content,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := repo.CreateNotification(ctx, s.DB, n); err != nil {
		return nil, err
	}
	return n, nil
}

// inAppFilter selects what a user sees in the notification list: push
// notifications that are not account-maintenance mail.
func inAppFilter(userID string) repo.NotificationFilter {
	return repo.NotificationFilter{
		RecipientID:       userID,
		IncludeTypes:      []string{domain.TypePush},
		ExcludeCategories: domain.SystemCategories,
	}
}

// ListPage returns the user's in-app notifications, newest first.
func (s *NotificationService) ListPage(ctx context.Context, userID string, page, pageSize int) (NotificationPage, error) {
	tr := otel.Tracer("services/NotificationService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	page, pageSize = utils.ClampPage(page, pageSize)
	f := inAppFilter(userID)
	total, err := repo.CountNotifications(ctx, s.DB, f)
	if err != nil {
		return NotificationPage{}, err
	}
	out := NotificationPage{
		Items:      []domain.Notification{},
		Total:      total,
		Page:       utils.ReportedPage(total, page),
		TotalPages: utils.TotalPages(total, pageSize),
	}
	if total == 0 {
		return out, nil
	}
	out.Items, err = repo.ListNotifications(ctx, s.DB, f, utils.Offset(page, pageSize), pageSize)
	return out, err
}

// Stats returns count and latest update of the in-app list, for ETags.
func (s *NotificationService) Stats(ctx context.Context, userID string) (int64, *time.Time, error) {
	return repo.NotificationsStats(ctx, s.DB, inAppFilter(userID))
}

// MarkRead flags one of the user's notifications as read.
func (s *NotificationService) MarkRead(ctx context.Context, userID, id string) error {
	err := repo.MarkNotificationRead(ctx, s.DB, id, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrNotificationNotFound
	}
	return err
}

// LongPollCandidates returns the candidates of one of userID's notification
// streams, newest first: push notifications for the notification stream,
// message notifications for the message stream. System categories never
// appear.
func (s *NotificationService) LongPollCandidates(ctx context.Context, userID string, kind domain.StreamKind) ([]domain.Candidate, error) {
	typ, ok := streamTypes[kind]
	if !ok {
		return nil, fmt.Errorf("no notification stream for kind %q", kind)
	}
	tr := otel.Tracer("services/NotificationService")
	ctx, span := tr.Start(ctx, "LongPollCandidates",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("stream.kind", string(kind)),
		),
	)
	defer span.End()

	rows, err := repo.ListNotifications(ctx, s.DB, repo.NotificationFilter{
		RecipientID:       userID,
		IncludeTypes:      []string{typ},
		ExcludeCategories: domain.SystemCategories,
	}, 0, 0)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Candidate, 0, len(rows))
	for _, n := range rows {
		out = append(out, domain.CandidateFromNotification(n))
	}
	return out, nil
}
