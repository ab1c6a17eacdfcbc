// Long-poll HTTP handlers.
//
// A long-poll request is held open until new data is found for the caller or
// the poll deadline passes. Found responses carry the new IDs; a timeout is a
// normal 200 with empty lists. If the client hangs up first nothing is written
// and no checkpoint moves.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-social-backend/internal/http/middleware"
	"github.com/tbourn/go-social-backend/internal/longpoll"
)

// statusClientClosedRequest is recorded when the caller disconnects mid-poll.
const statusClientClosedRequest = 499

// MessagesPollResponse is the result of a conversation long-poll. Page and
// TotalPages are omitted on timeout.
type MessagesPollResponse struct {
	Data       []string `json:"data"`
	Total      int64    `json:"total"`
	Page       int      `json:"page,omitempty"`
	TotalPages int      `json:"total_pages,omitempty"`
}

// NotificationsPollResponse is the result of a notifications long-poll.
// Data holds push notification IDs and Messages holds message notification IDs.
type NotificationsPollResponse struct {
	Data     []string `json:"data"`
	Messages []string `json:"messages"`
	Total    int      `json:"total"`
}

// failPoll maps session errors; anything else goes through failWith.
func failPoll(c *gin.Context, err error) {
	switch {
	case errors.Is(err, longpoll.ErrCancelled):
		middleware.LoggerFrom(c).Debug().Err(err).Msg("long-poll abandoned by client")
		c.AbortWithStatus(statusClientClosedRequest)
	case errors.Is(err, longpoll.ErrFailed), errors.Is(err, longpoll.ErrInvalidOptions):
		fail(c, http.StatusInternalServerError, ErrCodePollFailed, "long-poll failed")
	default:
		failWith(c, err, ErrCodePollFailed)
	}
}

// PollMessages godoc
// @ID          pollMessages
// @Summary     Long-poll a conversation
// @Description Holds the request until the watched page of the conversation has messages newer than the
// @Description caller's last delivery, or the poll deadline passes (then returns empty data).
// @Tags        LongPoll
// @Produce     json
// @Param       X-User-ID  header    string  true   "Caller user ID"
// @Param       id         path      string  true   "Conversation ID (UUID)"  format(uuid)
// @Param       page       query     int     false  "Page number"     minimum(1) default(1)
// @Param       limit      query     int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200        {object}  handlers.MessagesPollResponse
// @Failure     400        {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401        {object}  handlers.ErrorResponse  "Missing user"
// @Failure     403        {object}  handlers.ErrorResponse  "Not a participant"
// @Failure     404        {object}  handlers.ErrorResponse  "User or conversation not found"
// @Failure     500        {object}  handlers.ErrorResponse  "Poll failed"
// @Router      /conversations/{id}/messages/long-poll [get]
func (h *Handlers) PollMessages(c *gin.Context) {
	uid, okUser := requireUser(c)
	if !okUser {
		return
	}
	convID, okID := conversationParam(c)
	if !okID {
		return
	}
	page, pageSize := clampPagination(c)

	res, err := h.poll.PollMessages(requestContext(c), uid, convID, page, pageSize)
	if err != nil {
		failPoll(c, err)
		return
	}
	if !res.Found {
		ok(c, http.StatusOK, MessagesPollResponse{Data: []string{}})
		return
	}
	ok(c, http.StatusOK, MessagesPollResponse{
		Data:       res.Data,
		Total:      res.Total,
		Page:       res.Page,
		TotalPages: res.TotalPages,
	})
}

// PollNotifications godoc
// @ID          pollNotifications
// @Summary     Long-poll notifications
// @Description Holds the request until the caller has new push or message notifications, or the poll
// @Description deadline passes (then returns empty lists).
// @Tags        LongPoll
// @Produce     json
// @Param       X-User-ID  header    string  true  "Caller user ID"
// @Success     200        {object}  handlers.NotificationsPollResponse
// @Failure     401        {object}  handlers.ErrorResponse  "Missing user"
// @Failure     404        {object}  handlers.ErrorResponse  "User not found"
// @Failure     500        {object}  handlers.ErrorResponse  "Poll failed"
// @Router      /notifications/long-poll [get]
func (h *Handlers) PollNotifications(c *gin.Context) {
	uid, okUser := requireUser(c)
	if !okUser {
		return
	}
	res, err := h.poll.PollNotifications(requestContext(c), uid)
	if err != nil {
		failPoll(c, err)
		return
	}
	out := NotificationsPollResponse{Data: res.Data, Messages: res.Messages, Total: res.Total}
	if out.Data == nil {
		out.Data = []string{}
	}
	if out.Messages == nil {
		out.Messages = []string{}
	}
	ok(c, http.StatusOK, out)
}
