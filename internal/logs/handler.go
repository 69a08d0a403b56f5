package logs

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"xrepost/internal/httputil"
	"xrepost/models"

	"github.com/gin-gonic/gin"
)

// Store reads the audit log.
type Store interface {
	ListLogs(ctx context.Context, f models.LogFilter) ([]models.LogEntry, error)
}

// Handler serves the audit log.
type Handler struct {
	DB Store
}

func NewHandler(db Store) *Handler {
	return &Handler{DB: db}
}

// List returns audit events newest first, filtered by account and level.
func (h *Handler) List(c *gin.Context) {
	var f models.LogFilter

	limit, _, ok := httputil.QueryInt(c, "limit")
	if !ok || limit < 0 {
		httputil.RespondError(c, http.StatusBadRequest, "invalid limit")
		return
	}
	f.Limit = limit

	accountID, present, ok := httputil.QueryInt(c, "account_id")
	if !ok {
		httputil.RespondError(c, http.StatusBadRequest, "invalid account_id")
		return
	}
	if present {
		f.UserID = &accountID
	}

	if level := strings.ToUpper(strings.TrimSpace(c.Query("level"))); level != "" {
		switch level {
		case models.LevelInfo, models.LevelWarn, models.LevelError:
			f.EventType = level
		default:
			httputil.RespondError(c, http.StatusBadRequest, "invalid level")
			return
		}
	}

	entries, err := h.DB.ListLogs(c.Request.Context(), f)
	if err != nil {
		slog.Error("list logs failed", "error", err)
		httputil.RespondError(c, http.StatusInternalServerError, "db error")
		return
	}
	c.JSON(http.StatusOK, entries)
}
