// Conversation HTTP handlers.
//
// This file exposes REST endpoints for direct conversations:
//   - POST /conversations   (find or create the 1:1 thread with a recipient)
//   - GET  /conversations   (list, paginated)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-social-backend/internal/domain"
)

// OpenConversationRequest is the JSON payload for opening a direct conversation.
type OpenConversationRequest struct {
	RecipientID string `json:"recipient_id" binding:"required" example:"0b5f3b0e-53d4-4c4b-9a0e-8f2c1d7a9e11"`
}

// ListConversationsResponse wraps a page of conversations.
type ListConversationsResponse struct {
	Conversations []domain.Conversation `json:"conversations"`
	Pagination    Pagination            `json:"pagination"`
}

// OpenConversation godoc
// @ID          openConversation
// @Summary     Find or create a direct conversation
// @Description Returns the existing 1:1 conversation with the recipient (200) or creates it (201).
// @Tags        Conversations
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header    string                             true  "Caller user ID"
// @Param       body       body      handlers.OpenConversationRequest  true  "Recipient"
// @Success     200        {object}  domain.Conversation
// @Success     201        {object}  domain.Conversation
// @Failure     400        {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401        {object}  handlers.ErrorResponse  "Missing user"
// @Failure     404        {object}  handlers.ErrorResponse  "User not found"
// @Failure     500        {object}  handlers.ErrorResponse  "Internal error"
// @Router      /conversations [post]
func (h *Handlers) OpenConversation(c *gin.Context) {
	uid, okUser := requireUser(c)
	if !okUser {
		return
	}
	var req OpenConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "recipient_id required")
		return
	}

	conv, created, err := h.convs.FindOrCreate(requestContext(c), uid, req.RecipientID)
	if err != nil {
		failWith(c, err, ErrCodeCreateFailed)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	ok(c, status, conv)
}

// ListConversations godoc
// @ID          listConversations
// @Summary     List conversations (paginated)
// @Description Returns the caller's conversations, most recently active first.
// @Tags        Conversations
// @Produce     json
// @Param       X-User-ID  header    string  true   "Caller user ID"
// @Param       page       query     int     false  "Page number"     minimum(1) default(1)
// @Param       limit      query     int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200        {object}  handlers.ListConversationsResponse
// @Failure     401        {object}  handlers.ErrorResponse  "Missing user"
// @Failure     500        {object}  handlers.ErrorResponse  "Internal error"
// @Router      /conversations [get]
func (h *Handlers) ListConversations(c *gin.Context) {
	uid, okUser := requireUser(c)
	if !okUser {
		return
	}
	page, pageSize := clampPagination(c)

	items, total, err := h.convs.ListPage(requestContext(c), uid, page, pageSize)
	if err != nil {
		failWith(c, err, ErrCodeListFailed)
		return
	}
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListConversationsResponse{
		Conversations: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// conversationParam validates the :id path segment.
func conversationParam(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "conversation id must be a UUID")
		return "", false
	}
	return id, true
}
