package logs

import "github.com/gin-gonic/gin"

// SetupRoutes registers the audit log endpoint.
func SetupRoutes(r *gin.RouterGroup, db Store) {
	h := NewHandler(db)
	r.GET("/logs", h.List)
}
