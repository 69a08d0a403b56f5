package httputil

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// RespondError writes the error in the common shape and aborts the chain.
func RespondError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// QueryInt reads an optional integer query parameter. ok is false when the
// value is present but malformed.
func QueryInt(c *gin.Context, name string) (value int, present, ok bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, false, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, true, false
	}
	return v, true, true
}
