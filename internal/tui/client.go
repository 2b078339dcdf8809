package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"codeberg.org/freetier/gateway/api/rest/status"
	apierrors "codeberg.org/freetier/gateway/internal/errors"
)

const (
	requestTimeout   = 5 * time.Second
	maxResponseBytes = 64 << 10
)

// reads the gateway's public endpoints
type StatusClient struct {
	endpoint   string
	httpClient *http.Client
}

func NewStatusClient(endpoint string) *StatusClient {
	return &StatusClient{
		endpoint: strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

// fetches the public free-tier view
func (c *StatusClient) Status(ctx context.Context) (*status.Response, error) {
	var result status.Response
	if err := c.getJSON(ctx, "/status", &result); err != nil {
		return nil, err
	}

	return &result, nil
}

// reports whether /health answers ok
func (c *StatusClient) Healthy(ctx context.Context) bool {
	var result struct {
		Status string `json:"status"`
	}

	if err := c.getJSON(ctx, "/health", &result); err != nil {
		return false
	}

	return result.Status == "ok"
}

func (c *StatusClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp apierrors.ErrorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.ErrorCode != "" {
			return fmt.Errorf("%s returned %s: %s", path, errResp.ErrorCode, errResp.Error)
		}

		return fmt.Errorf("%s returned status %d", path, resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	return nil
}

// returns a tea.Cmd that polls both endpoints
func (c *StatusClient) PollCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		result, err := c.Status(ctx)
		if err != nil {
			return ErrorMsg{err: err, at: time.Now()}
		}

		return StatusMsg{status: result, healthy: c.Healthy(ctx), at: time.Now()}
	}
}
