// Notification HTTP handlers.
//
// This file exposes REST endpoints for notifications:
//   - POST /notifications            (create)
//   - GET  /notifications            (in-app list, paginated, ETag support)
//   - PUT  /notifications/{id}/read  (mark read)
package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/services"
)

// CreateNotificationRequest is the JSON payload for raising a notification on
// behalf of the caller.
type CreateNotificationRequest struct {
	RecipientID  string   `json:"recipient_id" binding:"required"`
	Types        []string `json:"type" binding:"required,min=1" example:"push"`
	Category     string   `json:"category" binding:"required" example:"profile_follow"`
	ResourceType string   `json:"resource_type,omitempty" example:"profile"`
	ResourceID   *string  `json:"resource_id,omitempty"`
	Content      *string  `json:"content,omitempty"`
}

// ListNotificationsResponse is a page of in-app notifications, newest first.
type ListNotificationsResponse struct {
	Data       []domain.Notification `json:"data"`
	Total      int64                 `json:"total"`
	Page       int                   `json:"page"`
	TotalPages int                   `json:"total_pages"`
}

// CreateNotification godoc
// @ID          createNotification
// @Summary     Create a notification
// @Description Stores a notification from the caller to a recipient. Email and SMS types are recorded only.
// @Tags        Notifications
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header    string                                true  "Initiator user ID"
// @Param       body       body      handlers.CreateNotificationRequest  true  "Notification payload"
// @Success     201        {object}  domain.Notification
// @Failure     400        {object}  handlers.ErrorResponse  "Invalid type or category"
// @Failure     401        {object}  handlers.ErrorResponse  "Missing user"
// @Failure     500        {object}  handlers.ErrorResponse  "Internal error"
// @Router      /notifications [post]
func (h *Handlers) CreateNotification(c *gin.Context) {
	uid, okUser := requireUser(c)
	if !okUser {
		return
	}
	var req CreateNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "recipient_id, type and category required")
		return
	}
	n, err := h.notifs.Create(requestContext(c), services.NewNotification{
		RecipientID:  req.RecipientID,
		InitiatorID:  uid,
		Types:        req.Types,
		Category:     req.Category,
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		Content:      req.Content,
	})
	if err != nil {
		failWith(c, err, ErrCodeCreateFailed)
		return
	}
	ok(c, http.StatusCreated, n)
}

// ListNotifications godoc
// @ID          listNotifications
// @Summary     List notifications (paginated)
// @Description Returns the caller's push notifications, newest first. Account-maintenance categories are excluded.
// @Tags        Notifications
// @Produce     json
// @Param       X-User-ID      header    string  true   "Caller user ID"
// @Param       If-None-Match  header    string  false  "Return 304 if ETag matches"
// @Param       page           query     int     false  "Page number"     minimum(1) default(1)
// @Param       limit          query     int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200            {object}  handlers.ListNotificationsResponse
// @Success     304            {string}  string  "Not Modified"
// @Failure     401            {object}  handlers.ErrorResponse  "Missing user"
// @Failure     500            {object}  handlers.ErrorResponse  "Internal error"
// @Router      /notifications [get]
func (h *Handlers) ListNotifications(c *gin.Context) {
	uid, okUser := requireUser(c)
	if !okUser {
		return
	}
	ctx := requestContext(c)
	page, pageSize := clampPagination(c)

	if count, maxTS, err := h.notifs.Stats(ctx, uid); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.UnixMilli()
		}
		etag := fmt.Sprintf(`W/"notifications:%s:%d:%d:%d:%d"`, uid, count, ts, page, pageSize)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	p, err := h.notifs.ListPage(ctx, uid, page, pageSize)
	if err != nil {
		failWith(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, ListNotificationsResponse{
		Data:       p.Items,
		Total:      p.Total,
		Page:       p.Page,
		TotalPages: p.TotalPages,
	})
}

// MarkNotificationRead godoc
// @ID          markNotificationRead
// @Summary     Mark a notification read
// @Tags        Notifications
// @Param       X-User-ID  header  string  true  "Caller user ID"
// @Param       id         path    string  true  "Notification ID"
// @Success     204        {string}  string  "No Content"
// @Failure     401        {object}  handlers.ErrorResponse  "Missing user"
// @Failure     404        {object}  handlers.ErrorResponse  "Notification not found"
// @Failure     500        {object}  handlers.ErrorResponse  "Internal error"
// @Router      /notifications/{id}/read [put]
func (h *Handlers) MarkNotificationRead(c *gin.Context) {
	uid, okUser := requireUser(c)
	if !okUser {
		return
	}
	if err := h.notifs.MarkRead(requestContext(c), uid, c.Param("id")); err != nil {
		failWith(c, err, ErrCodeUpdateFailed)
		return
	}
	noContent(c)
}
