package tweets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"xrepost/internal/httputil"
	"xrepost/models"
	"xrepost/pkg/pipeline"
	"xrepost/pkg/storage"
	"xrepost/pkg/twitter"

	"github.com/gin-gonic/gin"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	previewRunes     = 50
)

// Store is the part of the storage the tweet endpoints use.
type Store interface {
	ListStaged(ctx context.Context, userIDs []int, limit int) ([]models.CollectedTweet, error)
	GetAccountByID(ctx context.Context, id int) (*models.Account, error)
	RequeueStaged(ctx context.Context, tweetID string) error
	DeleteStagedByTweetID(ctx context.Context, tweetID string) error
	AppendAuditLog(ctx context.Context, userID int, level, message string) error
}

// Handler serves staged tweets and manual publishing.
type Handler struct {
	DB        Store
	Publisher pipeline.Publisher
	Notifier  pipeline.Notifier
}

func NewHandler(db Store, publisher pipeline.Publisher, notifier pipeline.Notifier) *Handler {
	return &Handler{DB: db, Publisher: publisher, Notifier: notifier}
}

// List returns staged tweets newest first.
func (h *Handler) List(c *gin.Context) {
	limit, present, ok := httputil.QueryInt(c, "limit")
	if !ok || limit < 0 {
		httputil.RespondError(c, http.StatusBadRequest, "invalid limit")
		return
	}
	if !present || limit == 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	var userIDs []int
	if id, present, ok := httputil.QueryInt(c, "account_id"); !ok {
		httputil.RespondError(c, http.StatusBadRequest, "invalid account_id")
		return
	} else if present {
		userIDs = []int{id}
	}

	staged, err := h.DB.ListStaged(c.Request.Context(), userIDs, limit)
	if err != nil {
		slog.Error("list staged tweets failed", "error", err)
		httputil.RespondError(c, http.StatusInternalServerError, "db error")
		return
	}
	if staged == nil {
		staged = []models.CollectedTweet{}
	}
	c.JSON(http.StatusOK, staged)
}

type postRequest struct {
	UserID    int    `json:"user_id"`
	TweetText string `json:"tweet_text"`
}

// Post publishes an operator-written tweet from one account.
func (h *Handler) Post(c *gin.Context) {
	var req postRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondError(c, http.StatusBadRequest, "invalid data")
		return
	}
	req.TweetText = strings.TrimSpace(req.TweetText)
	if req.UserID <= 0 || req.TweetText == "" {
		httputil.RespondError(c, http.StatusBadRequest, "user_id and tweet_text are required")
		return
	}
	if utf8.RuneCountInString(req.TweetText) > twitter.MaxTweetRunes {
		httputil.RespondError(c, http.StatusBadRequest, fmt.Sprintf("tweet_text exceeds %d characters", twitter.MaxTweetRunes))
		return
	}

	ctx := c.Request.Context()
	account, err := h.DB.GetAccountByID(ctx, req.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		h.audit(ctx, req.UserID, models.LevelError, fmt.Sprintf("manual post: account %d not found", req.UserID))
		httputil.RespondError(c, http.StatusNotFound, "account not found")
		return
	}
	if err != nil {
		slog.Error("load account failed", "account_id", req.UserID, "error", err)
		httputil.RespondError(c, http.StatusInternalServerError, "db error")
		return
	}

	id, err := h.Publisher.Publish(ctx, *account, req.TweetText)
	if err != nil {
		h.audit(ctx, account.ID, models.LevelError, fmt.Sprintf("manual post failed: %v", err))
		var pe *twitter.PublishError
		if errors.As(err, &pe) {
			c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": pe.Message, "upstream_status": pe.Status})
			return
		}
		httputil.RespondError(c, http.StatusBadGateway, err.Error())
		return
	}

	h.audit(ctx, account.ID, models.LevelInfo, fmt.Sprintf("manual post published %s: %s", id, preview(req.TweetText)))
	c.JSON(http.StatusCreated, gin.H{"status": "published", "tweet_id": id})
}

// Requeue resets the attempts of a staged tweet.
func (h *Handler) Requeue(c *gin.Context) {
	h.mutate(c, "requeued", h.DB.RequeueStaged)
}

// Delete drops a staged tweet without publishing it.
func (h *Handler) Delete(c *gin.Context) {
	h.mutate(c, "deleted", h.DB.DeleteStagedByTweetID)
}

func (h *Handler) mutate(c *gin.Context, status string, fn func(context.Context, string) error) {
	tweetID := c.Param("tweet_id")
	err := fn(c.Request.Context(), tweetID)
	if errors.Is(err, storage.ErrNotFound) {
		httputil.RespondError(c, http.StatusNotFound, "tweet not staged")
		return
	}
	if err != nil {
		slog.Error("staged tweet update failed", "tweet_id", tweetID, "action", status, "error", err)
		httputil.RespondError(c, http.StatusInternalServerError, "db error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status, "tweet_id": tweetID})
}

func (h *Handler) audit(ctx context.Context, userID int, level, message string) {
	if err := h.DB.AppendAuditLog(ctx, userID, level, message); err != nil {
		slog.Error("audit write failed", "account_id", userID, "error", err)
	}
	if level == models.LevelError && h.Notifier != nil {
		h.Notifier.Notify(message)
	}
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= previewRunes {
		return s
	}
	return string(r[:previewRunes]) + "..."
}
