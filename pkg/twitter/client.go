// Package twitter publishes tweets and runs the OAuth1 login against the
// X (Twitter) API with user-context credentials.
package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"xrepost/models"
	"xrepost/pkg/pipeline"

	"github.com/dghubble/oauth1"
	twauth "github.com/dghubble/oauth1/twitter"
)

// MaxTweetRunes is the longest text the API accepts.
const MaxTweetRunes = 280

// PublishError is a rejected publish: anything but 201 Created.
type PublishError struct {
	Status  int
	Message string
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish rejected with status %d: %s", e.Status, e.Message)
}

// Client talks to the API on behalf of authorized accounts.
type Client struct {
	config     *oauth1.Config
	apiBase    string
	httpClient *http.Client
	timeout    time.Duration
}

var _ pipeline.Publisher = (*Client)(nil)

// Options configures a Client.
type Options struct {
	ConsumerKey    string
	ConsumerSecret string
	CallbackURL    string
	APIBase        string
	Timeout        time.Duration

	// AuthEndpoint overrides the X request-token, authorize and
	// access-token URLs.
	AuthEndpoint *oauth1.Endpoint
}

func New(opts Options, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	endpoint := twauth.AuthenticateEndpoint
	if opts.AuthEndpoint != nil {
		endpoint = *opts.AuthEndpoint
	}
	// Token exchanges take no context, so the client itself carries the bound.
	tokenHTTP := *httpClient
	if tokenHTTP.Timeout <= 0 || tokenHTTP.Timeout > opts.Timeout {
		tokenHTTP.Timeout = opts.Timeout
	}
	return &Client{
		config: &oauth1.Config{
			ConsumerKey:    opts.ConsumerKey,
			ConsumerSecret: opts.ConsumerSecret,
			CallbackURL:    opts.CallbackURL,
			Endpoint:       endpoint,
			HTTPClient:     &tokenHTTP,
		},
		apiBase:    strings.TrimRight(opts.APIBase, "/"),
		httpClient: httpClient,
		timeout:    opts.Timeout,
	}
}

// userClient signs every request with the account tokens.
func (c *Client) userClient(ctx context.Context, token, secret string) *http.Client {
	ctx = context.WithValue(ctx, oauth1.HTTPClient, c.httpClient)
	return c.config.Client(ctx, oauth1.NewToken(token, secret))
}

type createTweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

type apiError struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (e apiError) message() string {
	switch {
	case e.Detail != "":
		return e.Detail
	case e.Title != "":
		return e.Title
	case len(e.Errors) > 0:
		return e.Errors[0].Message
	}
	return "unknown error"
}

// Publish posts text as the account and returns the id of the new tweet.
func (c *Client) Publish(ctx context.Context, account models.Account, text string) (string, error) {
	if account.AccessToken == "" || account.AccessTokenSecret == "" {
		return "", fmt.Errorf("account %d has no credentials", account.ID)
	}
	if strings.TrimSpace(text) == "" {
		return "", errors.New("empty tweet text")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return "", fmt.Errorf("marshal tweet: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/2/tweets", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.userClient(ctx, account.AccessToken, account.AccessTokenSecret).Do(req)
	if err != nil {
		return "", fmt.Errorf("publish: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode != http.StatusCreated {
		var apiErr apiError
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &apiErr) == nil {
			msg = apiErr.message()
		}
		return "", &PublishError{Status: resp.StatusCode, Message: msg}
	}

	var out createTweetResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode publish response: %w", err)
	}
	return out.Data.ID, nil
}

// LoginURL starts the OAuth1 flow. The request secret must be kept until
// the callback.
func (c *Client) LoginURL() (authURL, requestToken, requestSecret string, err error) {
	requestToken, requestSecret, err = c.config.RequestToken()
	if err != nil {
		return "", "", "", fmt.Errorf("request token: %w", err)
	}
	u, err := c.config.AuthorizationURL(requestToken)
	if err != nil {
		return "", "", "", fmt.Errorf("authorization url: %w", err)
	}
	return u.String(), requestToken, requestSecret, nil
}

// CompleteLogin exchanges the verifier for access tokens and identifies the
// account they belong to.
func (c *Client) CompleteLogin(ctx context.Context, requestToken, requestSecret, verifier string) (models.Account, error) {
	accessToken, accessSecret, err := c.config.AccessToken(requestToken, requestSecret, verifier)
	if err != nil {
		return models.Account{}, fmt.Errorf("access token: %w", err)
	}
	id, username, err := c.me(ctx, accessToken, accessSecret)
	if err != nil {
		return models.Account{}, err
	}
	return models.Account{
		TwitterID:         id,
		Username:          username,
		AccessToken:       accessToken,
		AccessTokenSecret: accessSecret,
	}, nil
}

func (c *Client) me(ctx context.Context, token, secret string) (id, username string, err error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase+"/2/users/me", nil)
	if err != nil {
		return "", "", fmt.Errorf("new request: %w", err)
	}
	resp, err := c.userClient(ctx, token, secret).Do(req)
	if err != nil {
		return "", "", fmt.Errorf("users/me: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("users/me: unexpected status %s", resp.Status)
	}

	var out struct {
		Data struct {
			ID       string `json:"id"`
			Username string `json:"username"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", "", fmt.Errorf("decode users/me: %w", err)
	}
	if out.Data.ID == "" {
		return "", "", errors.New("users/me returned no id")
	}
	return out.Data.ID, out.Data.Username, nil
}
