package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// HeaderUserID carries the caller identity. Authentication happens
	// upstream; the backend trusts this header as-is.
	HeaderUserID = "X-User-ID"
	// CtxKeyUserID is the Gin context key holding the caller's user ID.
	CtxKeyUserID = "userID"
)

// UserIdentity copies a non-blank X-User-ID header into the Gin context so
// that logging, rate limiting and idempotency all see the same caller. It
// never rejects a request; handlers that need a user answer 401 themselves.
func UserIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if uid := strings.TrimSpace(c.GetHeader(HeaderUserID)); uid != "" {
			c.Set(CtxKeyUserID, uid)
		}
		c.Next()
	}
}

// userIDFromCtx returns the caller stored by UserIdentity, or "" when the
// request is anonymous.
func userIDFromCtx(c *gin.Context) string {
	if v, ok := c.Get(CtxKeyUserID); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
