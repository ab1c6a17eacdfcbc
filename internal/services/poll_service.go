package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/longpoll"
	"github.com/tbourn/go-social-backend/internal/utils"
)

// NotificationCandidates answers the notification stream queries.
type NotificationCandidates interface {
	LongPollCandidates(ctx context.Context, userID string, kind domain.StreamKind) ([]domain.Candidate, error)
}

// MessageCandidates answers the conversation stream query.
type MessageCandidates interface {
	Candidates(ctx context.Context, conversationID string, page, pageSize int) ([]domain.Candidate, error)
	Count(ctx context.Context, conversationID string) (int64, error)
}

// NotificationsPoll is the result of a notifications long-poll. Data holds
// push notification IDs, Messages holds message notification IDs.
type NotificationsPoll struct {
	Found    bool
	Data     []string
	Messages []string
	Total    int
}

// MessagesPoll is the result of a conversation long-poll.
type MessagesPoll struct {
	Found      bool
	Data       []string
	Total      int64
	Page       int
	TotalPages int
}

// PollService validates long-poll requests and hands them to the session
// controller. Validation happens before any check runs.
type PollService struct {
	Controller    *longpoll.Controller
	Users         UserLookup
	Conversations Authorizer
	Notifications NotificationCandidates
	Messages      MessageCandidates

	Interval              time.Duration
	MessagesDeadline      time.Duration
	NotificationsDeadline time.Duration
}

// PollNotifications waits for new push or message notifications addressed to
// userID. Both streams are checked together; whichever has news is delivered
// and the other contributes an empty list.
func (s *PollService) PollNotifications(ctx context.Context, userID string) (NotificationsPoll, error) {
	if _, err := s.Users.Get(ctx, userID); err != nil {
		return NotificationsPoll{}, err
	}

	source := func(kind domain.StreamKind) longpoll.Source {
		return func(ctx context.Context) ([]domain.Candidate, error) {
			return s.Notifications.LongPollCandidates(ctx, userID, kind)
		}
	}
	watches := []longpoll.Watch{
		{Identity: domain.NotificationStream(userID), Source: source(domain.StreamNotification)},
		{Identity: domain.MessageStream(userID), Source: source(domain.StreamMessage)},
	}
	res, err := s.Controller.Run(ctx, watches, longpoll.Options{
		Interval: s.Interval,
		Deadline: s.NotificationsDeadline,
		Stream:   "notifications",
	})
	if err != nil {
		return NotificationsPoll{}, err
	}
	return NotificationsPoll{
		Found:    res.Found(),
		Data:     res.IDs(domain.StreamNotification),
		Messages: res.IDs(domain.StreamMessage),
		Total:    res.Total(),
	}, nil
}

// PollMessages waits for new messages in a conversation the caller takes part
// in. page and pageSize select the window of the conversation that is watched,
// counted from the newest message.
func (s *PollService) PollMessages(ctx context.Context, userID, conversationID string, page, pageSize int) (MessagesPoll, error) {
	if _, err := s.Users.Get(ctx, userID); err != nil {
		return MessagesPoll{}, err
	}
	if err := s.Conversations.Authorize(ctx, userID, conversationID); err != nil {
		return MessagesPoll{}, err
	}
	page, pageSize = utils.ClampPage(page, pageSize)

	watch := longpoll.Watch{
		Identity: domain.ConversationStream(userID, conversationID),
		Source: func(ctx context.Context) ([]domain.Candidate, error) {
			return s.Messages.Candidates(ctx, conversationID, page, pageSize)
		},
	}
	res, err := s.Controller.Run(ctx, []longpoll.Watch{watch}, longpoll.Options{
		Interval: s.Interval,
		Deadline: s.MessagesDeadline,
		Stream:   "messages",
	})
	if err != nil {
		return MessagesPoll{}, err
	}
	if !res.Found() {
		return MessagesPoll{Data: []string{}}, nil
	}

	// The checkpoint has already moved, so the delivered IDs must reach the
	// caller even when the total cannot be counted.
	ids := res.IDs(domain.StreamMessage)
	total, err := s.Messages.Count(ctx, conversationID)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).
			Str("conversation_id", conversationID).
			Int("delivered", len(ids)).
			Msg("message count failed; reporting delivered count")
		total = int64(len(ids))
	}
	return MessagesPoll{
		Found:      true,
		Data:       ids,
		Total:      total,
		Page:       utils.ReportedPage(total, page),
		TotalPages: utils.TotalPages(total, pageSize),
	}, nil
}
