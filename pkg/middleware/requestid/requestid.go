package requestid

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Header carries the request ID on both requests and responses.
const Header = "X-Request-ID"

const ctxKey = "request_id"

// Middleware tags every request with an ID, honoring one supplied by the
// caller so an upstream gateway can correlate its logs with ours.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(Header)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxKey, id)
		c.Header(Header, id)
		c.Next()
	}
}

// Value returns the ID assigned to the current request, or the empty string
// outside the middleware chain.
func Value(c *gin.Context) string {
	return c.GetString(ctxKey)
}
