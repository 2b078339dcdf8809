package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatCompletion_ForwardsRequest(t *testing.T) {
	var received map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "gateway-test", r.Header.Get("X-Title"))

		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"cmpl-1","choices":[{"message":{"role":"assistant","content":"hi"}}]}`)) //nolint:errcheck,gosec // test server
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL + "/", Title: "gateway-test"})

	temperature := 0.2
	body, err := client.ChatCompletion(context.Background(), "sk-test", ChatRequest{
		Model:       "vendor/model",
		Messages:    []Message{{Role: "user", Content: "hello"}},
		Temperature: &temperature,
		Provider:    ZeroRetention(),
	})

	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"cmpl-1","choices":[{"message":{"role":"assistant","content":"hi"}}]}`, string(body))

	assert.Equal(t, "vendor/model", received["model"])
	assert.Equal(t, 0.2, received["temperature"])
	assert.NotContains(t, received, "max_tokens")
	assert.Equal(t, map[string]any{"data_collection": "deny", "zdr": true}, received["provider"])
}

func TestChatCompletion_OmitsProviderWhenUnset(t *testing.T) {
	var received map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Write([]byte(`{}`)) //nolint:errcheck,gosec // test server
	}))
	defer server.Close()

	_, err := NewClient(Config{BaseURL: server.URL}).ChatCompletion(context.Background(), "sk", ChatRequest{
		Model:    "m",
		Messages: []Message{{Role: "user", Content: "x"}},
	})

	require.NoError(t, err)
	assert.NotContains(t, received, "provider")
}

func TestChatCompletion_StatusErrors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		rateLimited bool
	}{
		{"rate limited", http.StatusTooManyRequests, true},
		{"server error", http.StatusInternalServerError, false},
		{"unauthorized", http.StatusUnauthorized, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"error":{"message":"key sk-leaked is over quota"}}`, tt.status)
			}))
			defer server.Close()

			_, err := NewClient(Config{BaseURL: server.URL}).ChatCompletion(context.Background(), "sk", ChatRequest{Model: "m"})

			var statusErr *StatusError
			require.ErrorAs(t, err, &statusErr)
			assert.Equal(t, tt.status, statusErr.StatusCode)
			assert.Equal(t, tt.rateLimited, errors.Is(err, ErrUpstreamRateLimited))
			assert.NotContains(t, err.Error(), "sk-leaked")
		})
	}
}

func TestChatCompletion_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>gateway timeout</html>`)) //nolint:errcheck,gosec // test server
	}))
	defer server.Close()

	_, err := NewClient(Config{BaseURL: server.URL}).ChatCompletion(context.Background(), "sk", ChatRequest{Model: "m"})
	assert.Error(t, err)
}

func TestChatCompletion_MissingCredential(t *testing.T) {
	_, err := NewClient(Config{}).ChatCompletion(context.Background(), "", ChatRequest{Model: "m"})
	assert.Error(t, err)
}

func TestChatCompletion_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	_, err := NewClient(Config{BaseURL: server.URL, Timeout: 20 * time.Millisecond}).
		ChatCompletion(context.Background(), "sk", ChatRequest{Model: "m"})
	assert.Error(t, err)
}

func TestChatCompletion_ContextCancelledWhilePacing(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://127.0.0.1:0", RequestsPerSecond: 0.001, Burst: 1})

	// drain the single token
	require.True(t, client.limiter.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.ChatCompletion(ctx, "sk", ChatRequest{Model: "m"})
	assert.Error(t, err)
}
