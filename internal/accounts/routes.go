package accounts

import "github.com/gin-gonic/gin"

// SetupRoutes registers the account endpoints under /api.
func SetupRoutes(r *gin.RouterGroup, db Store) {
	h := NewHandler(db)
	r.GET("/accounts", h.List)
	r.GET("/account/:twitter_id", h.Get)
	r.PUT("/account/:twitter_id", h.Update)
	r.DELETE("/account/:twitter_id", h.Delete)
}
