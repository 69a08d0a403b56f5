// Package translate rewrites tweets into an account language through an
// OpenAI-compatible chat completion API.
package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"xrepost/pkg/pipeline"
)

const systemPrompt = "You are an expert translator."

// Client implements pipeline.Translator.
type Client struct {
	endpoint    string
	model       string
	apiKey      string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
}

var _ pipeline.Translator = (*Client)(nil)

// Options configures a Client.
type Options struct {
	Endpoint    string
	Model       string
	APIKey      string
	MaxTokens   int
	Temperature float64
}

func New(opts Options, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		endpoint:    opts.Endpoint,
		model:       opts.Model,
		apiKey:      opts.APIKey,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
		httpClient:  httpClient,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Translate returns text in language. style, when set, shapes the tone.
func (c *Client) Translate(ctx context.Context, text, language, style string) (string, error) {
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return "", errors.New("translator misconfigured")
	}
	if strings.TrimSpace(text) == "" {
		return "", errors.New("empty text")
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildPrompt(text, language, style)},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal translation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("translate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("translation error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode translation: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("translation returned no choices")
	}
	translated := cleanOutput(out.Choices[0].Message.Content)
	if translated == "" {
		return "", errors.New("translation returned empty text")
	}
	return translated, nil
}

func buildPrompt(text, language, style string) string {
	if language == "" {
		language = "en"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Translate the following text (not the usernames (@)) into only this language: %s: '%s'. ", language, text)
	b.WriteString("Focus solely on the general message without adding irrelevant or distracting details or text. ")
	b.WriteString("NEVER add a text that is not a translation of the original text example: 'Sure! Here's the translation:'")
	if style = strings.TrimSpace(style); style != "" {
		fmt.Fprintf(&b, " Keep this tone: %s.", style)
	}
	return b.String()
}

// cleanOutput strips the wrapping quotes models tend to echo from the prompt.
func cleanOutput(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '\'' || first == '"') && first == last {
			s = strings.TrimSpace(s[1 : len(s)-1])
		}
	}
	return s
}
