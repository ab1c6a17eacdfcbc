// Message HTTP handlers.
//
// This file exposes REST endpoints for direct messages:
//   - POST /conversations/{id}/messages   (send a message)
//   - GET  /conversations/{id}/messages   (list a page, ETag support)
//   - PUT  /messages/{id}/read            (mark a received message read)
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a message was already
// sent for (user, conversation, key), the handler returns that message and
// sets `Idempotency-Replayed: true`.
package handlers

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/http/middleware"
)

//
// DTOs
//

// SendMessageRequest is the JSON payload for sending a message.
type SendMessageRequest struct {
	// Text is the message body. It must be non-empty.
	Text string `json:"text" binding:"required,min=1" example:"See you at eight?"`
}

// SendMessageResponse wraps the stored message.
type SendMessageResponse struct {
	Message *domain.Message `json:"message"`
}

// ListMessagesResponse is a page of a conversation. Data is oldest first;
// pages are counted from the newest message.
type ListMessagesResponse struct {
	Data       []domain.Message `json:"data"`
	Batch      int              `json:"batch"`
	Total      int64            `json:"total"`
	Page       int              `json:"page"`
	TotalPages int              `json:"total_pages"`
}

//
// Helpers
//

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeText normalizes line endings, collapses blank-line runs and trims.
func sanitizeText(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// idempotencyKey prefers the key validated by middleware and falls back to
// the raw header.
func idempotencyKey(c *gin.Context) string {
	if k, ok := middleware.GetIdempotencyKey(c); ok {
		return k
	}
	return strings.TrimSpace(c.GetHeader(middleware.HeaderIdempotencyKey))
}

//
// Handlers
//

// SendMessage godoc
// @ID          sendMessage
// @Summary     Send a message
// @Description Appends a message to the conversation and notifies the other participant.
// @Description Supports idempotency via the Idempotency-Key header (same key, same result).
// @Tags        Messages
// @Accept      json
// @Produce     json
// @Param       X-User-ID        header    string                        true   "Sender user ID"
// @Param       Idempotency-Key  header    string                        false  "Idempotency key for safe retries"
// @Param       id               path      string                        true   "Conversation ID (UUID)"  format(uuid)
// @Param       body             body      handlers.SendMessageRequest  true   "Message payload"
// @Success     201              {object}  handlers.SendMessageResponse
// @Success     200              {object}  handlers.SendMessageResponse  "Replayed"
// @Failure     400              {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401              {object}  handlers.ErrorResponse  "Missing user"
// @Failure     403              {object}  handlers.ErrorResponse  "Not a participant"
// @Failure     404              {object}  handlers.ErrorResponse  "Conversation not found"
// @Failure     500              {object}  handlers.ErrorResponse  "Internal error"
// @Router      /conversations/{id}/messages [post]
func (h *Handlers) SendMessage(c *gin.Context) {
	uid, okUser := requireUser(c)
	if !okUser {
		return
	}
	convID, okID := conversationParam(c)
	if !okID {
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "text required")
		return
	}
	text := sanitizeText(req.Text)
	if text == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "text required")
		return
	}
	if h.maxRunes > 0 && utf8.RuneCountInString(text) > h.maxRunes {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("text too long: max %d runes", h.maxRunes))
		return
	}

	ctx := requestContext(c)
	key := idempotencyKey(c)
	if key != "" && h.idem != nil {
		if prev, found := h.idem.Replay(ctx, uid, convID, key); found {
			c.Header("Idempotency-Replayed", "true")
			ok(c, http.StatusOK, SendMessageResponse{Message: prev})
			return
		}
	}

	m, err := h.msgs.Send(ctx, uid, convID, text)
	if err != nil {
		failWith(c, err, ErrCodeSendFailed)
		return
	}

	if key != "" && h.idem != nil {
		if err := h.idem.Remember(ctx, uid, convID, key, m.ID); err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Str("idempotency_key", key).Msg("idempotency record not stored")
		}
	}
	ok(c, http.StatusCreated, SendMessageResponse{Message: m})
}

// ListMessages godoc
// @ID          listMessages
// @Summary     List messages in a conversation
// @Description Returns one page of the conversation counted from the newest message, oldest first within the page.
// @Description Supports weak ETag via If-None-Match and may return 304.
// @Tags        Messages
// @Produce     json
// @Param       X-User-ID      header    string  true   "Caller user ID"
// @Param       If-None-Match  header    string  false  "Return 304 if ETag matches"
// @Param       id             path      string  true   "Conversation ID (UUID)"  format(uuid)
// @Param       page           query     int     false  "Page number"     minimum(1) default(1)
// @Param       limit          query     int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200            {object}  handlers.ListMessagesResponse
// @Header      200            {string}  ETag  "Weak ETag for current result"
// @Success     304            {string}  string  "Not Modified"
// @Failure     400            {object}  handlers.ErrorResponse  "Bad request"
// @Failure     403            {object}  handlers.ErrorResponse  "Not a participant"
// @Failure     404            {object}  handlers.ErrorResponse  "Conversation not found"
// @Failure     500            {object}  handlers.ErrorResponse  "Internal error"
// @Router      /conversations/{id}/messages [get]
func (h *Handlers) ListMessages(c *gin.Context) {
	uid, okUser := requireUser(c)
	if !okUser {
		return
	}
	convID, okID := conversationParam(c)
	if !okID {
		return
	}
	ctx := requestContext(c)
	if err := h.convs.Authorize(ctx, uid, convID); err != nil {
		failWith(c, err, ErrCodeListFailed)
		return
	}
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	if count, maxTS, err := h.msgs.Stats(ctx, convID); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.UnixMilli()
		}
		etag := fmt.Sprintf(`W/"messages:%s:%d:%d:%d:%d"`, convID, count, ts, page, pageSize)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	p, err := h.msgs.ListPage(ctx, uid, convID, page, pageSize)
	if err != nil {
		failWith(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, ListMessagesResponse{
		Data:       p.Items,
		Batch:      p.Batch,
		Total:      p.Total,
		Page:       p.Page,
		TotalPages: p.TotalPages,
	})
}

// MarkMessageRead godoc
// @ID          markMessageRead
// @Summary     Mark a message read
// @Description Marks a received message as read. Marking one's own message is a no-op.
// @Tags        Messages
// @Param       X-User-ID  header  string  true  "Caller user ID"
// @Param       id         path    string  true  "Message ID"
// @Success     204        {string}  string  "No Content"
// @Failure     401        {object}  handlers.ErrorResponse  "Missing user"
// @Failure     404        {object}  handlers.ErrorResponse  "Message not found"
// @Failure     500        {object}  handlers.ErrorResponse  "Internal error"
// @Router      /messages/{id}/read [put]
func (h *Handlers) MarkMessageRead(c *gin.Context) {
	uid, okUser := requireUser(c)
	if !okUser {
		return
	}
	if err := h.msgs.MarkRead(requestContext(c), uid, c.Param("id")); err != nil {
		failWith(c, err, ErrCodeUpdateFailed)
		return
	}
	noContent(c)
}
