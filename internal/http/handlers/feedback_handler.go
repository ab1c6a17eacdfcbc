// Feedback HTTP handlers.
//
// This file exposes REST endpoints for user feedback:
//   - POST   /users/{id}/feedback  (leave feedback on a user)
//   - GET    /users/{id}/feedback  (list feedback left on a user)
//   - PATCH  /feedback/{id}        (edit, author only)
//   - DELETE /feedback/{id}        (remove, author or subject)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-social-backend/internal/domain"
)

// FeedbackRequest is the JSON payload for leaving or editing feedback.
type FeedbackRequest struct {
	Guide string `json:"guide" binding:"required" example:"communication"`
	Text  string `json:"text"  binding:"required" example:"Always replies within the hour."`
}

// ListFeedbackResponse is a page of feedback, newest first.
type ListFeedbackResponse struct {
	Data       []domain.Feedback `json:"data"`
	Total      int64             `json:"total"`
	Page       int               `json:"page"`
	TotalPages int               `json:"total_pages"`
}

// CreateFeedback godoc
// @ID          createFeedback
// @Summary     Leave feedback on a user
// @Description Stores the caller's feedback on a user and raises a push notification for them.
// @Tags        Feedback
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header    string                    true  "Author user ID"
// @Param       id         path      string                    true  "Subject user ID"
// @Param       body       body      handlers.FeedbackRequest  true  "Feedback payload"
// @Success     201        {object}  domain.Feedback
// @Failure     400        {object}  handlers.ErrorResponse  "Invalid payload or self feedback"
// @Failure     401        {object}  handlers.ErrorResponse  "Missing user"
// @Failure     404        {object}  handlers.ErrorResponse  "User not found"
// @Failure     500        {object}  handlers.ErrorResponse  "Internal error"
// @Router      /users/{id}/feedback [post]
func (h *Handlers) CreateFeedback(c *gin.Context) {
	uid, okUser := requireUser(c)
	if !okUser {
		return
	}
	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "guide and text required")
		return
	}
	fb, err := h.feedback.Create(requestContext(c), uid, c.Param("id"), req.Guide, req.Text)
	if err != nil {
		failWith(c, err, ErrCodeCreateFailed)
		return
	}
	ok(c, http.StatusCreated, fb)
}

// ListFeedback godoc
// @ID          listFeedback
// @Summary     List feedback on a user (paginated)
// @Tags        Feedback
// @Produce     json
// @Param       id     path      string  true   "Subject user ID"
// @Param       page   query     int     false  "Page number"     minimum(1) default(1)
// @Param       limit  query     int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200    {object}  handlers.ListFeedbackResponse
// @Failure     404    {object}  handlers.ErrorResponse  "User not found"
// @Failure     500    {object}  handlers.ErrorResponse  "Internal error"
// @Router      /users/{id}/feedback [get]
func (h *Handlers) ListFeedback(c *gin.Context) {
	page, pageSize := clampPagination(c)
	p, err := h.feedback.ListPage(requestContext(c), c.Param("id"), page, pageSize)
	if err != nil {
		failWith(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, ListFeedbackResponse{
		Data:       p.Items,
		Total:      p.Total,
		Page:       p.Page,
		TotalPages: p.TotalPages,
	})
}

// UpdateFeedback godoc
// @ID          updateFeedback
// @Summary     Edit feedback
// @Tags        Feedback
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header    string                    true  "Author user ID"
// @Param       id         path      string                    true  "Feedback ID"
// @Param       body       body      handlers.FeedbackRequest  true  "Feedback payload"
// @Success     200        {object}  domain.Feedback
// @Failure     400        {object}  handlers.ErrorResponse  "Invalid payload"
// @Failure     401        {object}  handlers.ErrorResponse  "Missing user"
// @Failure     403        {object}  handlers.ErrorResponse  "Not the author"
// @Failure     404        {object}  handlers.ErrorResponse  "Feedback not found"
// @Failure     500        {object}  handlers.ErrorResponse  "Internal error"
// @Router      /feedback/{id} [patch]
func (h *Handlers) UpdateFeedback(c *gin.Context) {
	uid, okUser := requireUser(c)
	if !okUser {
		return
	}
	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "guide and text required")
		return
	}
	fb, err := h.feedback.Update(requestContext(c), uid, c.Param("id"), req.Guide, req.Text)
	if err != nil {
		failWith(c, err, ErrCodeUpdateFailed)
		return
	}
	ok(c, http.StatusOK, fb)
}

// DeleteFeedback godoc
// @ID          deleteFeedback
// @Summary     Remove feedback
// @Tags        Feedback
// @Param       X-User-ID  header  string  true  "Author or subject user ID"
// @Param       id         path    string  true  "Feedback ID"
// @Success     204        {string}  string  "No Content"
// @Failure     401        {object}  handlers.ErrorResponse  "Missing user"
// @Failure     403        {object}  handlers.ErrorResponse  "Neither author nor subject"
// @Failure     404        {object}  handlers.ErrorResponse  "Feedback not found"
// @Failure     500        {object}  handlers.ErrorResponse  "Internal error"
// @Router      /feedback/{id} [delete]
func (h *Handlers) DeleteFeedback(c *gin.Context) {
	uid, okUser := requireUser(c)
	if !okUser {
		return
	}
	if err := h.feedback.Delete(requestContext(c), uid, c.Param("id")); err != nil {
		failWith(c, err, ErrCodeDeleteFailed)
		return
	}
	noContent(c)
}
