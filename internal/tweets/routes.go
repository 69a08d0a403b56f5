package tweets

import (
	"xrepost/pkg/pipeline"

	"github.com/gin-gonic/gin"
)

// SetupRoutes registers the tweet endpoints under /api.
func SetupRoutes(r *gin.RouterGroup, db Store, publisher pipeline.Publisher, notifier pipeline.Notifier) {
	h := NewHandler(db, publisher, notifier)
	r.GET("/tweets", h.List)
	r.POST("/post_tweet", h.Post)
	r.POST("/tweets/:tweet_id/requeue", h.Requeue)
	r.DELETE("/tweets/:tweet_id", h.Delete)
}
