package fetchctl

import "github.com/gin-gonic/gin"

// SetupRoutes registers the fetch control endpoints.
func SetupRoutes(r *gin.RouterGroup, fleet Controller) {
	h := NewHandler(fleet)
	r.POST("/start", h.Start)
	r.POST("/stop", h.Stop)
	r.GET("/status", h.Status)
}
