package domain

import (
	"database/sql/driver"
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// Notification delivery types. A notification may carry several.
const (
	TypePush    = "push"
	TypeMessage = "message"
	TypeEmail   = "email"
	TypeSMS     = "sms"
)

// Notification categories.
const (
	CategoryComment           = "comment"
	CategoryFeedback          = "feedback"
	CategoryMessage           = "message"
	CategoryEmailVerification = "email_verification"
	CategoryPasswordChange    = "password_change"
	CategoryPasswordReset     = "password_reset"
	CategoryProfileFollow     = "profile_follow"
	CategoryReaction          = "reaction"
)

// SystemCategories are account-maintenance categories that never surface in
// in-app listings or long-poll streams.
var SystemCategories = []string{
	CategoryEmailVerification,
	CategoryPasswordChange,
	CategoryPasswordReset,
}

var (
	knownTypes = []string{TypePush, TypeMessage, TypeEmail, TypeSMS}

	knownCategories = []string{
		CategoryComment, CategoryFeedback, CategoryMessage,
		CategoryEmailVerification, CategoryPasswordChange, CategoryPasswordReset,
		CategoryProfileFollow, CategoryReaction,
	}
)

// FoldTag normalizes a type or category tag for comparison and storage.
// Callers may send "PUSH", "Push" or "push"; all fold to "push".
func FoldTag(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// IsKnownType reports whether t (after folding) is a supported notification type.
func IsKnownType(t string) bool { return slices.Contains(knownTypes, FoldTag(t)) }

// IsKnownCategory reports whether c (after folding) is a supported category.
func IsKnownCategory(c string) bool { return slices.Contains(knownCategories, FoldTag(c)) }

// TypeSet is the set of delivery types of a notification. It is stored as a
// comma-joined column so that type inclusion can be filtered server-side.
type TypeSet []string

// NewTypeSet folds, dedupes and sorts the given tags.
func NewTypeSet(tags ...string) TypeSet {
	out := make(TypeSet, 0, len(tags))
	for _, t := range tags {
		f := FoldTag(t)
		if f == "" || slices.Contains(out, f) {
			continue
		}
		out = append(out, f)
	}
	slices.Sort(out)
	return out
}

// Has reports whether the set contains tag t.
func (s TypeSet) Has(t string) bool { return slices.Contains(s, FoldTag(t)) }

// Value implements driver.Valuer.
func (s TypeSet) Value() (driver.Value, error) {
	return strings.Join(NewTypeSet(s...), ","), nil
}

// Scan implements sql.Scanner.
func (s *TypeSet) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case nil:
		*s = nil
		return nil
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("typeset: unsupported scan type %T", src)
	}
	if raw == "" {
		*s = TypeSet{}
		return nil
	}
	*s = NewTypeSet(strings.Split(raw, ",")...)
	return nil
}

// StreamKind names an independent incremental stream observed by a client.
type StreamKind string

const (
	StreamNotification StreamKind = "notification"
	StreamMessage      StreamKind = "message"
)

// StreamIdentity is the (subject, kind) pair that owns a checkpoint.
type StreamIdentity struct {
	Subject string
	Kind    StreamKind
}

// NotificationStream returns the identity of userID's push notification stream.
func NotificationStream(userID string) StreamIdentity {
	return StreamIdentity{Subject: userID, Kind: StreamNotification}
}

// MessageStream returns the identity of userID's message-notification stream.
func MessageStream(userID string) StreamIdentity {
	return StreamIdentity{Subject: userID, Kind: StreamMessage}
}

// ConversationStream returns the identity of userID's view of a single
// conversation. It never collides with MessageStream(userID).
func ConversationStream(userID, conversationID string) StreamIdentity {
	return StreamIdentity{Subject: userID + "_" + conversationID, Kind: StreamMessage}
}

// Key renders the checkpoint key, e.g. "user_42_latest_notification_time".
func (id StreamIdentity) Key() string {
	return "user_" + id.Subject + "_latest_" + string(id.Kind) + "_time"
}

func (id StreamIdentity) String() string { return id.Key() }

// Candidate is an item that might be delivered on a stream.
type Candidate struct {
	ID        string
	CreatedAt time.Time
	Category  string
	Types     TypeSet
}

// Millis returns the candidate's creation time in milliseconds since epoch.
func (c Candidate) Millis() int64 { return c.CreatedAt.UnixMilli() }

// CandidateFromMessage adapts a message to a stream candidate.
func CandidateFromMessage(m Message) Candidate {
	return Candidate{ID: m.ID, CreatedAt: m.CreatedAt, Category: CategoryMessage, Types: TypeSet{TypeMessage}}
}

// CandidateFromNotification adapts a notification to a stream candidate.
func CandidateFromNotification(n Notification) Candidate {
	return Candidate{ID: n.ID, CreatedAt: n.CreatedAt, Category: n.Category, Types: n.Types}
}
