// Package llm forwards chat-completion requests to the upstream LLM API.
// Responses are proxied as opaque JSON; the gateway never interprets them.
package llm

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

	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL      = "https://openrouter.ai/api/v1"
	chatCompletionsPath = "/chat/completions"

	defaultTimeout = 60 * time.Second
	defaultRPS     = 50
	defaultBurst   = 10

	// completions larger than this are treated as upstream failures
	maxResponseBytes = 10 << 20
)

type Config struct {
	BaseURL string
	Timeout time.Duration

	// outbound pacing shared by every request through this client
	RequestsPerSecond float64
	Burst             int

	// optional attribution headers
	Referer string
	Title   string
}

type Client struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewClient(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}

	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = defaultRPS
	}

	if config.Burst <= 0 {
		config.Burst = defaultBurst
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst),
	}
}

func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// sends one completion request with the given credential and returns the
// upstream body untouched. Non-2xx answers come back as *StatusError.
func (c *Client) ChatCompletion(ctx context.Context, apiKey string, req ChatRequest) (json.RawMessage, error) {
	if apiKey == "" {
		return nil, errors.New("missing upstream credential")
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+chatCompletionsPath, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	if c.config.Referer != "" {
		httpReq.Header.Set("HTTP-Referer", c.config.Referer)
	}

	if c.config.Title != "" {
		httpReq.Header.Set("X-Title", c.config.Title)
	}

	// rate limiting
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes)) //nolint:errcheck,gosec // drain for connection reuse
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if len(body) > maxResponseBytes {
		return nil, fmt.Errorf("response exceeds %d bytes", maxResponseBytes)
	}

	if !json.Valid(body) {
		return nil, errors.New("upstream returned invalid JSON")
	}

	return json.RawMessage(body), nil
}
