package accounts

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"xrepost/internal/httputil"
	"xrepost/models"
	"xrepost/pkg/storage"

	"github.com/gin-gonic/gin"
)

// Store is the part of the storage the account endpoints use.
type Store interface {
	ListAccounts(ctx context.Context) ([]models.Account, error)
	GetAccountDetails(ctx context.Context, twitterID string) (*models.AccountDetails, error)
	UpdateAccount(ctx context.Context, twitterID string, u models.AccountUpdate) error
	DeleteAccount(ctx context.Context, twitterID string) error
}

// Handler serves the account management endpoints.
type Handler struct {
	DB Store
}

func NewHandler(db Store) *Handler {
	return &Handler{DB: db}
}

// List returns every authorized account without credentials.
func (h *Handler) List(c *gin.Context) {
	list, err := h.DB.ListAccounts(c.Request.Context())
	if err != nil {
		slog.Error("list accounts failed", "error", err)
		httputil.RespondError(c, http.StatusInternalServerError, "db error")
		return
	}
	if list == nil {
		list = []models.Account{}
	}
	c.JSON(http.StatusOK, list)
}

// Get returns the account with its monitored handles and keywords.
func (h *Handler) Get(c *gin.Context) {
	details, err := h.DB.GetAccountDetails(c.Request.Context(), c.Param("twitter_id"))
	if errors.Is(err, storage.ErrNotFound) {
		httputil.RespondError(c, http.StatusNotFound, "account not found")
		return
	}
	if err != nil {
		slog.Error("get account failed", "twitter_id", c.Param("twitter_id"), "error", err)
		httputil.RespondError(c, http.StatusInternalServerError, "db error")
		return
	}
	c.JSON(http.StatusOK, details)
}

// Update changes language and style and replaces the monitored lists.
func (h *Handler) Update(c *gin.Context) {
	var u models.AccountUpdate
	if err := c.ShouldBindJSON(&u); err != nil {
		httputil.RespondError(c, http.StatusBadRequest, "invalid data")
		return
	}
	if u.MonitoredUsers != nil {
		u.MonitoredUsers = cleanList(u.MonitoredUsers, "@")
	}
	if u.Keywords != nil {
		u.Keywords = cleanList(u.Keywords, "")
	}

	err := h.DB.UpdateAccount(c.Request.Context(), c.Param("twitter_id"), u)
	if errors.Is(err, storage.ErrNotFound) {
		httputil.RespondError(c, http.StatusNotFound, "account not found")
		return
	}
	if err != nil {
		slog.Error("update account failed", "twitter_id", c.Param("twitter_id"), "error", err)
		httputil.RespondError(c, http.StatusInternalServerError, "db error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

// Delete removes the account with everything it owns.
func (h *Handler) Delete(c *gin.Context) {
	err := h.DB.DeleteAccount(c.Request.Context(), c.Param("twitter_id"))
	if errors.Is(err, storage.ErrNotFound) {
		httputil.RespondError(c, http.StatusNotFound, "account not found")
		return
	}
	if err != nil {
		slog.Error("delete account failed", "twitter_id", c.Param("twitter_id"), "error", err)
		httputil.RespondError(c, http.StatusInternalServerError, "db error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// cleanList trims entries, strips prefix and drops empties and repeats.
func cleanList(values []string, prefix string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if prefix != "" {
			v = strings.TrimPrefix(v, prefix)
		}
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}
