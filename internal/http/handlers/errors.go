package handlers

import (
	"errors"
	"net/http"

	"github.com/tbourn/go-social-backend/internal/services"
)

// Error codes carried in ErrorResponse.Code. Clients branch on these, never on
// Message. The generic ones track the HTTP status; the rest name the operation
// that failed with a 500.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeInternal         = "internal_error"

	ErrCodeCreateFailed = "create_failed"
	ErrCodeListFailed   = "list_failed"
	ErrCodeSendFailed   = "send_failed"
	ErrCodeUpdateFailed = "update_failed"
	ErrCodeDeleteFailed = "delete_failed"
	ErrCodePollFailed   = "poll_failed"
)

// statusOf maps service sentinels to a status and code. ok is false for
// anything unexpected.
func statusOf(err error) (status int, code string, ok bool) {
	switch {
	case errors.Is(err, services.ErrUserNotFound),
		errors.Is(err, services.ErrConversationNotFound),
		errors.Is(err, services.ErrMessageNotFound),
		errors.Is(err, services.ErrNotificationNotFound),
		errors.Is(err, services.ErrFeedbackNotFound):
		return http.StatusNotFound, ErrCodeNotFound, true
	case errors.Is(err, services.ErrNotParticipant),
		errors.Is(err, services.ErrForbiddenFeedback):
		return http.StatusForbidden, ErrCodeForbidden, true
	case errors.Is(err, services.ErrSelfConversation),
		errors.Is(err, services.ErrSelfFeedback),
		errors.Is(err, services.ErrInvalidFeedback),
		errors.Is(err, services.ErrEmptyName),
		errors.Is(err, services.ErrEmptyText),
		errors.Is(err, services.ErrTooLong),
		errors.Is(err, services.ErrInvalidNotification):
		return http.StatusBadRequest, ErrCodeBadRequest, true
	}
	return 0, "", false
}
