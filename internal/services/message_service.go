// Package services – MessageService
//
// This file implements MessageService, the application-level component that
// owns the lifecycle of direct messages. It validates input, checks that the
// caller takes part in the conversation, persists the message together with
// the conversation's latest-message pointer and raises a message notification
// for every other participant.
//
// Observability: public methods are OpenTelemetry-instrumented; spans carry
// conversation/user identifiers and pagination parameters where applicable.
package services

import (
	"context"
	"errors"
	"slices"
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

// Authorizer checks conversation membership.
type Authorizer interface {
	Authorize(ctx context.Context, userID, conversationID string) error
}

// LastSeenToucher records user activity.
type LastSeenToucher interface {
	TouchLastSeen(ctx context.Context, id string, at time.Time) error
}

// Notifier creates notifications.
type Notifier interface {
	Create(ctx context.Context, in NewNotification) (*domain.Notification, error)
}

// MessagePage is one page of a conversation. Items are oldest first within
// the page; the page itself is counted from the newest message.
type MessagePage struct {
	Items      []domain.Message
	Batch      int
	Total      int64
	Page       int
	TotalPages int
}

// MessageService coordinates message persistence and retrieval.
type MessageService struct {
	DB            *gorm.DB
	Conversations Authorizer
	Users         LastSeenToucher
	Notifier      Notifier // optional

	// MaxTextRunes caps message bodies; 0 disables the check.
	MaxTextRunes int

	now func() time.Time
}

// NewMessageService constructs a MessageService with a 4000 rune limit.
func NewMessageService(db *gorm.DB, convs Authorizer, users LastSeenToucher, n Notifier) *MessageService {
	return &MessageService{
		DB:            db,
		Conversations: convs,
		Users:         users,
		Notifier:      n,
		MaxTextRunes:  4000,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *MessageService) clock() time.Time {
	if s.now == nil {
		return time.Now().UTC()
	}
	return s.now()
}

// Send stores a message from userID in conversationID and notifies the other
// participants. Notification failures are logged and do not fail the send.
func (s *MessageService) Send(ctx context.Context, userID, conversationID, text string) (*domain.Message, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Send",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	if s.MaxTextRunes > 0 && utf8.RuneCountInString(text) > s.MaxTextRunes {
		return nil, ErrTooLong
	}
	if err := s.Conversations.Authorize(ctx, userID, conversationID); err != nil {
		return nil, err
	}

	var msg *domain.Message
	var recipients []string
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := repo.CreateMessage(ctx, tx, conversationID, userID, text)
		if err != nil {
			return err
		}
		if err := repo.SetLatestMessage(ctx, tx, conversationID, m.ID, m.CreatedAt); err != nil {
			return err
		}
		recipients, err = repo.OtherParticipants(ctx, tx, conversationID, userID)
		if err != nil {
			return err
		}
		msg = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyRecipients(ctx, msg, recipients)
	return msg, nil
}

func (s *MessageService) notifyRecipients(ctx context.Context, m *domain.Message, recipients []string) {
	if s.Notifier == nil {
		return
	}
	log := zerolog.Ctx(ctx)
	for _, r := range recipients {
		_, err := s.Notifier.Create(ctx, NewNotification{
			RecipientID:  r,
			InitiatorID:  m.SenderID,
			Types:        []string{domain.TypeMessage},
			Category:     domain.CategoryMessage,
			ResourceType: "conversation",
			ResourceID:   &m.ConversationID,
		})
		if err != nil {
			log.Warn().Err(err).
				Str("message_id", m.ID).
				Str("recipient_id", r).
				Msg("message notification failed")
		}
	}
}

// ListPage returns a page of the conversation, counted from the newest
// message, and records that the caller was active.
func (s *MessageService) ListPage(ctx context.Context, userID, conversationID string, page, pageSize int) (MessagePage, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.String("user.id", userID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if err := s.Conversations.Authorize(ctx, userID, conversationID); err != nil {
		return MessagePage{}, err
	}
	page, pageSize = utils.ClampPage(page, pageSize)

	total, err := repo.CountMessages(ctx, s.DB, conversationID)
	if err != nil {
		return MessagePage{}, err
	}
	out := MessagePage{
		Items:      []domain.Message{},
		Total:      total,
		Page:       utils.ReportedPage(total, page),
		TotalPages: utils.TotalPages(total, pageSize),
	}
	if total > 0 {
		items, err := repo.ListMessagesNewest(ctx, s.DB, conversationID, utils.Offset(page, pageSize), pageSize)
		if err != nil {
			return MessagePage{}, err
		}
		slices.Reverse(items)
		out.Items = items
		out.Batch = len(items)
	}

	if s.Users != nil {
		if err := s.Users.TouchLastSeen(ctx, userID, s.clock()); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("user_id", userID).Msg("touch last seen failed")
		}
	}
	return out, nil
}

// Stats returns count and latest update of the conversation, for ETags.
func (s *MessageService) Stats(ctx context.Context, conversationID string) (int64, *time.Time, error) {
	return repo.MessagesStats(ctx, s.DB, conversationID)
}

// MarkRead flags a message as read by a recipient. Marking one's own message
// is a no-op.
func (s *MessageService) MarkRead(ctx context.Context, userID, messageID string) error {
	m, err := repo.GetMessage(ctx, s.DB, messageID)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrMessageNotFound
	}
	if err != nil {
		return err
	}
	if err := s.Conversations.Authorize(ctx, userID, m.ConversationID); err != nil {
		if errors.Is(err, ErrNotParticipant) || errors.Is(err, ErrConversationNotFound) {
			return ErrMessageNotFound
		}
		return err
	}
	if m.SenderID == userID || m.IsRead {
		return nil
	}
	err = repo.MarkMessageRead(ctx, s.DB, messageID)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrMessageNotFound
	}
	return err
}

// Candidates returns a newest-first page of the conversation as long-poll
// candidates. It does not touch last-seen.
func (s *MessageService) Candidates(ctx context.Context, conversationID string, page, pageSize int) ([]domain.Candidate, error) {
	page, pageSize = utils.ClampPage(page, pageSize)
	rows, err := repo.ListMessagesNewest(ctx, s.DB, conversationID, utils.Offset(page, pageSize), pageSize)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Candidate, 0, len(rows))
	for _, m := range rows {
		out = append(out, domain.CandidateFromMessage(m))
	}
	return out, nil
}

// Count returns the number of live messages in the conversation.
func (s *MessageService) Count(ctx context.Context, conversationID string) (int64, error) {
	return repo.CountMessages(ctx, s.DB, conversationID)
}
