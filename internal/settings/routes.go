package settings

import "github.com/gin-gonic/gin"

// SetupRoutes registers the settings endpoints under /api.
func SetupRoutes(r *gin.RouterGroup, db Store) {
	h := NewHandler(db)
	r.GET("/settings/rate-limit", h.GetRateLimit)
	r.PUT("/settings/rate-limit", h.PutRateLimit)
}
