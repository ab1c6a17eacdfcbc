// Package handlers exposes the public REST API of the social backend.
//
// Handlers are transport-thin: they validate input, call application services
// and translate results into HTTP responses (including conditional responses
// and long-poll outcomes).
package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/http/middleware"
	"github.com/tbourn/go-social-backend/internal/services"
	"github.com/tbourn/go-social-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// UserService registers and resolves users.
type UserService interface {
	Create(ctx context.Context, name string) (*domain.User, error)
	Get(ctx context.Context, id string) (*domain.User, error)
}

// ConversationService manages direct conversations.
type ConversationService interface {
	// FindOrCreate returns the 1:1 conversation between two users.
	FindOrCreate(ctx context.Context, userID, recipientID string) (*domain.Conversation, bool, error)
	// ListPage returns a page of the user's conversations and the total count.
	ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Conversation, int64, error)
	// Authorize checks that userID takes part in the conversation.
	Authorize(ctx context.Context, userID, conversationID string) error
}

// MessageService sends and lists messages.
type MessageService interface {
	Send(ctx context.Context, userID, conversationID, text string) (*domain.Message, error)
	ListPage(ctx context.Context, userID, conversationID string, page, pageSize int) (services.MessagePage, error)
	Stats(ctx context.Context, conversationID string) (int64, *time.Time, error)
	MarkRead(ctx context.Context, userID, messageID string) error
}

// NotificationService creates and lists notifications.
type NotificationService interface {
	Create(ctx context.Context, in services.NewNotification) (*domain.Notification, error)
	ListPage(ctx context.Context, userID string, page, pageSize int) (services.NotificationPage, error)
	Stats(ctx context.Context, userID string) (int64, *time.Time, error)
	MarkRead(ctx context.Context, userID, id string) error
}

// FeedbackService manages the feedback users leave on one another.
type FeedbackService interface {
	Create(ctx context.Context, ownerID, subjectID, guide, text string) (*domain.Feedback, error)
	ListPage(ctx context.Context, subjectID string, page, pageSize int) (services.FeedbackPage, error)
	Update(ctx context.Context, userID, id, guide, text string) (*domain.Feedback, error)
	Delete(ctx context.Context, userID, id string) error
}

// PollService runs long-poll requests.
type PollService interface {
	PollNotifications(ctx context.Context, userID string) (services.NotificationsPoll, error)
	PollMessages(ctx context.Context, userID, conversationID string, page, pageSize int) (services.MessagesPoll, error)
}

// IdempotencyStore remembers which message answered an Idempotency-Key so a
// retried send can be replayed instead of duplicated.
type IdempotencyStore interface {
	Replay(ctx context.Context, userID, conversationID, key string) (*domain.Message, bool)
	Remember(ctx context.Context, userID, conversationID, key, messageID string) error
}

//
// Handler wiring
//

// Services bundles the dependencies of Handlers. Idempotency is optional.
type Services struct {
	Users         UserService
	Conversations ConversationService
	Messages      MessageService
	Notifications NotificationService
	Feedback      FeedbackService
	Poll          PollService
	Idempotency   IdempotencyStore
}

// Handlers groups the HTTP endpoints.
type Handlers struct {
	users    UserService
	convs    ConversationService
	msgs     MessageService
	notifs   NotificationService
	feedback FeedbackService
	poll     PollService
	idem     IdempotencyStore
	maxRunes int
}

// New constructs Handlers bound to the given services.
func New(s Services) *Handlers {
	h := &Handlers{
		users:    s.Users,
		convs:    s.Conversations,
		msgs:     s.Messages,
		notifs:   s.Notifications,
		feedback: s.Feedback,
		poll:     s.Poll,
		idem:     s.Idempotency,
		maxRunes: 4000,
	}
	if ms, ok := s.Messages.(*services.MessageService); ok && ms.MaxTextRunes > 0 {
		h.maxRunes = ms.MaxTextRunes
	}
	return h
}

// userID returns the caller identity stashed by middleware.UserIdentity, or
// the X-User-ID header when the middleware is not installed (tests).
func userID(c *gin.Context) string {
	if v, ok := c.Get(middleware.CtxKeyUserID); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		return strings.TrimSpace(c.GetHeader(middleware.HeaderUserID))
	}
	return ""
}

// requireUser writes 401 and returns false when the caller is anonymous.
func requireUser(c *gin.Context) (string, bool) {
	uid := userID(c)
	if uid == "" {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "X-User-ID header required")
		return "", false
	}
	return uid, true
}

// requestContext carries the request-scoped logger into the service layer.
func requestContext(c *gin.Context) context.Context {
	return middleware.LoggerFrom(c).WithContext(c.Request.Context())
}

//
// DTOs
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// maxPageSize caps page sizes requested through the API.
const maxPageSize = 100

// clampPagination parses page and limit (page_size is accepted as an alias)
// from the query string, returning bounded values.
func clampPagination(c *gin.Context) (page, pageSize int) {
	page = utils.AtoiDefault(c.Query("page"), 1)
	size := c.Query("limit")
	if size == "" {
		size = c.Query("page_size")
	}
	pageSize = utils.AtoiDefault(size, utils.DefaultPageSize)
	page, pageSize = utils.ClampPage(page, pageSize)
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}
