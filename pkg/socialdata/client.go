// Package socialdata searches recent tweets through the SocialData API.
package socialdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"xrepost/models"
	"xrepost/pkg/pipeline"

	"golang.org/x/time/rate"
)

// Error is a failed search. Retryable reports whether the next tick may
// succeed with the same request.
type Error struct {
	Status int
	Body   string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("socialdata search: %v", e.Err)
	}
	return fmt.Sprintf("socialdata search: status %d: %s", e.Status, e.Body)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Retryable() bool {
	return e.Status == 0 || e.Status == http.StatusTooManyRequests || e.Status >= http.StatusInternalServerError
}

// Client calls the search endpoint. Requests of all tasks share one limiter.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

var _ pipeline.Searcher = (*Client)(nil)

// New builds a client. A nil limiter disables pacing.
func New(endpoint, apiKey string, httpClient *http.Client, limiter *rate.Limiter) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{endpoint: endpoint, apiKey: apiKey, httpClient: httpClient, limiter: limiter}
}

type searchResponse struct {
	NextCursor string         `json:"next_cursor"`
	Tweets     []models.Tweet `json:"tweets"`
}

// Search returns at most limit of the latest tweets matching query.
func (c *Client) Search(ctx context.Context, query, kind string, limit int) ([]models.Tweet, error) {
	if c.apiKey == "" {
		return nil, &Error{Err: fmt.Errorf("api key not configured")}
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &Error{Err: fmt.Errorf("waiting for rate limiter: %w", err)}
		}
	}
	if err := context.Cause(ctx); err != nil {
		return nil, &Error{Err: fmt.Errorf("search %q: %w", query, err)}
	}

	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, &Error{Err: fmt.Errorf("parse endpoint: %w", err)}
	}
	params := u.Query()
	params.Set("query", query)
	params.Set("type", "Latest")
	u.RawQuery = params.Encode()

	// A request that got past the limiter runs to the client timeout.
	req, err := http.NewRequestWithContext(context.WithoutCancel(ctx), http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &Error{Err: fmt.Errorf("new request: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Err: fmt.Errorf("%s search %q: %w", kind, query, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &Error{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &Error{Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	tweets := out.Tweets
	if limit > 0 && len(tweets) > limit {
		tweets = tweets[:limit]
	}
	return tweets, nil
}
