package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// CreateUserRequest is the JSON payload for registering a user.
type CreateUserRequest struct {
	Name string `json:"name" binding:"required,min=1,max=255" example:"Ada Lovelace"`
}

// CreateUser godoc
// @ID          createUser
// @Summary     Register a user
// @Description Creates a user profile and returns it with its generated ID.
// @Tags        Users
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.CreateUserRequest  true  "User payload"
// @Success     201   {object}  domain.User
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500   {object}  handlers.ErrorResponse  "Internal error"
// @Router      /users [post]
func (h *Handlers) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name required (1-255 chars)")
		return
	}
	u, err := h.users.Create(requestContext(c), req.Name)
	if err != nil {
		failWith(c, err, ErrCodeCreateFailed)
		return
	}
	ok(c, http.StatusCreated, u)
}

// GetUser godoc
// @ID          getUser
// @Summary     Fetch a user
// @Tags        Users
// @Produce     json
// @Param       id   path      string  true  "User ID"
// @Success     200  {object}  domain.User
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /users/{id} [get]
func (h *Handlers) GetUser(c *gin.Context) {
	u, err := h.users.Get(requestContext(c), c.Param("id"))
	if err != nil {
		failWith(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, u)
}
