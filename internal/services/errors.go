// Package services defines the business logic for users, conversations,
// messages, feedback, notifications and long polling. This file centralizes common
// service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import "errors"

var (
	// ErrUserNotFound indicates that the referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrEmptyName is returned when creating a user without a name.
	ErrEmptyName = errors.New("name is empty")

	// ErrConversationNotFound indicates that the requested conversation does not exist.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrNotParticipant is returned when the caller is not part of the conversation.
	ErrNotParticipant = errors.New("not a participant of this conversation")

	// ErrSelfConversation is returned when a user tries to open a conversation with themselves.
	ErrSelfConversation = errors.New("cannot start a conversation with yourself")

	// ErrEmptyText is returned when a message body is blank.
	ErrEmptyText = errors.New("message text is empty")

	// ErrTooLong is returned when a message body exceeds the configured limit.
	ErrTooLong = errors.New("message text too long")

	// ErrMessageNotFound indicates that the requested message does not exist
	// or is not visible to the current user.
	ErrMessageNotFound = errors.New("message not found")

	// ErrNotificationNotFound indicates that the notification does not exist
	// or is addressed to someone else.
	ErrNotificationNotFound = errors.New("notification not found")

	// ErrInvalidNotification is returned for unknown types or categories.
	ErrInvalidNotification = errors.New("invalid notification")

	// ErrInvalidFeedback is returned when guide or text is blank or too long.
	ErrInvalidFeedback = errors.New("invalid feedback")

	// ErrSelfFeedback is returned when a user reviews themselves.
	ErrSelfFeedback = errors.New("cannot leave feedback on yourself")

	// ErrFeedbackNotFound indicates that the feedback does not exist.
	ErrFeedbackNotFound = errors.New("feedback not found")

	// ErrForbiddenFeedback is returned when the caller may not change the feedback.
	ErrForbiddenFeedback = errors.New("not allowed to change this feedback")
)
