// Package services – ConversationService
//
// This file implements the ConversationService, which manages direct-message
// threads. It finds or creates the 1:1 conversation between two users, lists a
// user's conversations with pagination and authorizes access to a single
// conversation for the message and long-poll paths.
//
// Service-level errors (ErrConversationNotFound, ErrNotParticipant) are
// returned for predictable cases so handlers can map them to HTTP results
// consistently.
package services

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/utils"
)

// ConversationRepo defines the repository contract required by ConversationService.
type ConversationRepo interface {
	// CreateConversation inserts a conversation and its participants.
	CreateConversation(ctx context.Context, db *gorm.DB, isGroup bool, userIDs ...string) (*domain.Conversation, error)

	// FindDirectConversation returns the 1:1 conversation of a and b.
	FindDirectConversation(ctx context.Context, db *gorm.DB, a, b string) (*domain.Conversation, error)

	// GetConversation fetches a conversation by ID.
	GetConversation(ctx context.Context, db *gorm.DB, id string) (*domain.Conversation, error)

	// IsParticipant reports membership.
	IsParticipant(ctx context.Context, db *gorm.DB, conversationID, userID string) (bool, error)

	// CountConversations returns the total number of conversations for pagination.
	CountConversations(ctx context.Context, db *gorm.DB, userID string) (int64, error)

	// ListConversationsPage returns a page of the user's conversations.
	ListConversationsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Conversation, error)
}

// UserLookup resolves user IDs.
type UserLookup interface {
	Get(ctx context.Context, id string) (*domain.User, error)
}

// ConversationService provides conversation-level operations.
type ConversationService struct {
	DB    *gorm.DB
	Repo  ConversationRepo
	Users UserLookup
}

// NewConversationService constructs a ConversationService.
func NewConversationService(db *gorm.DB, r ConversationRepo, users UserLookup) *ConversationService {
	return &ConversationService{DB: db, Repo: r, Users: users}
}

// FindOrCreate returns the direct conversation between userID and recipientID,
// creating it when missing. created reports whether a new row was inserted.
func (s *ConversationService) FindOrCreate(ctx context.Context, userID, recipientID string) (conv *domain.Conversation, created bool, err error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "FindOrCreate",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("recipient.id", recipientID),
		),
	)
	defer span.End()

	if userID == recipientID {
		return nil, false, ErrSelfConversation
	}
	for _, id := range []string{userID, recipientID} {
		if _, err := s.Users.Get(ctx, id); err != nil {
			return nil, false, err
		}
	}

	c, err := s.Repo.FindDirectConversation(ctx, s.DB, userID, recipientID)
	switch {
	case err == nil:
		return c, false, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, false, err
	}
	c, err = s.Repo.CreateConversation(ctx, s.DB, false, userID, recipientID)
	if err != nil {
		return nil, false, err
	}
	return c, true, nil
}

// ListPage returns a page of the user's conversations, most recently active
// first, with the total count.
func (s *ConversationService) ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Conversation, int64, error) {
	page, pageSize = utils.ClampPage(page, pageSize)
	total, err := s.Repo.CountConversations(ctx, s.DB, userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Conversation{}, 0, nil
	}
	items, err := s.Repo.ListConversationsPage(ctx, s.DB, userID, utils.Offset(page, pageSize), pageSize)
	return items, total, err
}

// Authorize checks that the conversation exists and userID takes part in it.
func (s *ConversationService) Authorize(ctx context.Context, userID, conversationID string) error {
	if strings.TrimSpace(conversationID) == "" {
		return ErrConversationNotFound
	}
	if _, err := s.Repo.GetConversation(ctx, s.DB, conversationID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrConversationNotFound
		}
		return err
	}
	ok, err := s.Repo.IsParticipant(ctx, s.DB, conversationID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotParticipant
	}
	return nil
}

// normalizeSpace trims whitespace and collapses runs to a single space.
func normalizeSpace(s string) string {
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
}

// whitespaceRE collapses consecutive whitespace to a single space.
var whitespaceRE = regexp.MustCompile(`\s+`)
