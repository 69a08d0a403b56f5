package settings

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"xrepost/internal/httputil"
	"xrepost/models"

	"github.com/gin-gonic/gin"
)

// Store keeps the operator overrides.
type Store interface {
	GetRateLimit(ctx context.Context) (models.RateLimit, error)
	SetRateLimit(ctx context.Context, limit models.RateLimit) error
	AppendAuditLog(ctx context.Context, userID int, level, message string) error
}

// Handler serves runtime settings.
type Handler struct {
	DB Store
}

func NewHandler(db Store) *Handler {
	return &Handler{DB: db}
}

type rateLimitBody struct {
	Ceiling *int   `json:"ceiling"`
	Window  string `json:"window"`
}

func rateLimitJSON(l models.RateLimit) gin.H {
	return gin.H{"ceiling": l.Ceiling, "window": l.Window.String()}
}

// GetRateLimit returns the effective rate limit.
func (h *Handler) GetRateLimit(c *gin.Context) {
	limit, err := h.DB.GetRateLimit(c.Request.Context())
	if err != nil {
		slog.Error("read rate limit failed", "error", err)
		httputil.RespondError(c, http.StatusInternalServerError, "db error")
		return
	}
	c.JSON(http.StatusOK, rateLimitJSON(limit))
}

// PutRateLimit stores a new ceiling and optionally a new window. The next
// gate check sees it.
func (h *Handler) PutRateLimit(c *gin.Context) {
	var body rateLimitBody
	if err := c.ShouldBindJSON(&body); err != nil {
		httputil.RespondError(c, http.StatusBadRequest, "invalid data")
		return
	}
	if body.Ceiling == nil || *body.Ceiling < 0 {
		httputil.RespondError(c, http.StatusBadRequest, "ceiling must be a non-negative integer")
		return
	}

	ctx := c.Request.Context()
	limit, err := h.DB.GetRateLimit(ctx)
	if err != nil {
		slog.Error("read rate limit failed", "error", err)
		httputil.RespondError(c, http.StatusInternalServerError, "db error")
		return
	}
	limit.Ceiling = *body.Ceiling
	if body.Window != "" {
		d, err := time.ParseDuration(body.Window)
		if err != nil || d <= 0 {
			httputil.RespondError(c, http.StatusBadRequest, "window must be a positive duration like 24h")
			return
		}
		limit.Window = d
	}

	if err := h.DB.SetRateLimit(ctx, limit); err != nil {
		slog.Error("store rate limit failed", "error", err)
		httputil.RespondError(c, http.StatusInternalServerError, "db error")
		return
	}
	msg := fmt.Sprintf("rate limit set to %d per %s", limit.Ceiling, limit.Window)
	if err := h.DB.AppendAuditLog(ctx, 0, models.LevelInfo, msg); err != nil {
		slog.Error("audit write failed", "error", err)
	}
	c.JSON(http.StatusOK, rateLimitJSON(limit))
}
