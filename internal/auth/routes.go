package auth

import "github.com/gin-gonic/gin"

// SetupRoutes registers the OAuth login endpoints.
func SetupRoutes(r *gin.RouterGroup, db Store, oauth OAuth, frontendURL string) {
	h := NewHandler(db, oauth, frontendURL)
	r.GET("/login", h.Login)
	r.GET("/callback", h.Callback)
	r.GET("/logout", h.Logout)
}
