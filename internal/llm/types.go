package llm

import (
	"errors"
	"fmt"
	"net/http"
)

var ErrUpstreamRateLimited = errors.New("upstream rate limited")

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// routing preferences understood by OpenRouter-compatible upstreams
type ProviderPreferences struct {
	DataCollection string `json:"data_collection,omitempty"`
	ZDR            bool   `json:"zdr,omitempty"`
}

type ChatRequest struct {
	Model       string               `json:"model"`
	Messages    []Message            `json:"messages"`
	Temperature *float64             `json:"temperature,omitempty"`
	MaxTokens   *int                 `json:"max_tokens,omitempty"`
	Provider    *ProviderPreferences `json:"provider,omitempty"`
}

// the upstream answered with a non-2xx status; the body is never kept
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusTooManyRequests {
		return ErrUpstreamRateLimited
	}

	return nil
}

// routes only to providers that neither log nor train on the request
func ZeroRetention() *ProviderPreferences {
	return &ProviderPreferences{DataCollection: "deny", ZDR: true}
}
