package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"xrepost/internal/httputil"
	"xrepost/models"

	"github.com/gin-gonic/gin"
)

const pendingTTL = 15 * time.Minute

// OAuth runs the three-legged login against the API.
type OAuth interface {
	LoginURL() (authURL, requestToken, requestSecret string, err error)
	CompleteLogin(ctx context.Context, requestToken, requestSecret, verifier string) (models.Account, error)
}

// Store saves authorized accounts.
type Store interface {
	UpsertAccount(ctx context.Context, a models.Account) (*models.Account, error)
	AppendAuditLog(ctx context.Context, userID int, level, message string) error
}

type pendingLogin struct {
	secret  string
	expires time.Time
}

// Handler serves the login flow. Request secrets live in memory between
// login and callback.
type Handler struct {
	DB          Store
	OAuth       OAuth
	FrontendURL string

	mu      sync.Mutex
	pending map[string]pendingLogin
	now     func() time.Time
}

func NewHandler(db Store, oauth OAuth, frontendURL string) *Handler {
	return &Handler{
		DB:          db,
		OAuth:       oauth,
		FrontendURL: frontendURL,
		pending:     make(map[string]pendingLogin),
		now:         time.Now,
	}
}

// Login obtains a request token and redirects to the authorization page.
func (h *Handler) Login(c *gin.Context) {
	authURL, token, secret, err := h.OAuth.LoginURL()
	if err != nil {
		slog.Error("oauth request token failed", "error", err)
		httputil.RespondError(c, http.StatusBadGateway, "authentication with twitter failed")
		return
	}
	h.remember(token, secret)
	c.Redirect(http.StatusFound, authURL)
}

// Callback exchanges the verifier, stores the account and returns to the
// dashboard.
func (h *Handler) Callback(c *gin.Context) {
	token := c.Query("oauth_token")
	verifier := c.Query("oauth_verifier")
	if token == "" || verifier == "" {
		httputil.RespondError(c, http.StatusBadRequest, "missing oauth_token or oauth_verifier")
		return
	}
	secret, ok := h.take(token)
	if !ok {
		httputil.RespondError(c, http.StatusBadRequest, "unknown or expired login")
		return
	}

	ctx := c.Request.Context()
	account, err := h.OAuth.CompleteLogin(ctx, token, secret, verifier)
	if err != nil {
		slog.Error("oauth access token failed", "error", err)
		httputil.RespondError(c, http.StatusBadGateway, "authentication with twitter failed")
		return
	}
	saved, err := h.DB.UpsertAccount(ctx, account)
	if err != nil {
		httputil.RespondError(c, http.StatusInternalServerError, "db error")
		return
	}
	if err := h.DB.AppendAuditLog(ctx, saved.ID, models.LevelInfo, fmt.Sprintf("account @%s authorized", saved.Username)); err != nil {
		slog.Error("audit write failed", "account_id", saved.ID, "error", err)
	}
	slog.Info("account authorized", "account_id", saved.ID, "username", saved.Username)
	c.Redirect(http.StatusFound, h.FrontendURL)
}

// Logout has no server session to drop; it returns to the dashboard.
func (h *Handler) Logout(c *gin.Context) {
	c.Redirect(http.StatusFound, h.FrontendURL)
}

func (h *Handler) remember(token, secret string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := h.now()
	for t, p := range h.pending {
		if now.After(p.expires) {
			delete(h.pending, t)
		}
	}
	h.pending[token] = pendingLogin{secret: secret, expires: now.Add(pendingTTL)}
}

func (h *Handler) take(token string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.pending[token]
	if !ok {
		return "", false
	}
	delete(h.pending, token)
	if h.now().After(p.expires) {
		return "", false
	}
	return p.secret, true
}
