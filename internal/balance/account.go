package balance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultAccountBaseURL = "https://openrouter.ai/api/v1"
	defaultAccountTimeout = 10 * time.Second

	// reported when the key has no spend limit
	unlimitedBalance = 1_000_000.0
)

// fetches the live balance of the managed key
type Fetcher interface {
	FetchBalance(ctx context.Context) (*Snapshot, error)
}

// returned for any non-2xx answer from the account API
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("account API returned status %d", e.StatusCode)
}

type keyInfoResponse struct {
	Data struct {
		Label          string   `json:"label"`
		Usage          float64  `json:"usage"`
		Limit          *float64 `json:"limit"`
		LimitRemaining *float64 `json:"limit_remaining"`
		IsFreeTier     bool     `json:"is_free_tier"`
	} `json:"data"`
}

type AccountConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// talks to the upstream key-info endpoint (GET {base}/key)
type AccountClient struct {
	config     AccountConfig
	httpClient *http.Client
	now        func() time.Time
}

func NewAccountClient(config AccountConfig) *AccountClient {
	if config.BaseURL == "" {
		config.BaseURL = defaultAccountBaseURL
	}

	if config.Timeout == 0 {
		config.Timeout = defaultAccountTimeout
	}

	return &AccountClient{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		now:        time.Now,
	}
}

func (a *AccountClient) FetchBalance(ctx context.Context) (*Snapshot, error) {
	url := strings.TrimRight(a.config.BaseURL, "/") + "/key"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+a.config.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck,gosec // drain for connection reuse
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	var info keyInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	snapshot := &Snapshot{
		Usage:     info.Data.Usage,
		CheckedAt: a.now().UTC(),
	}

	switch {
	case info.Data.Limit == nil:
		snapshot.Limit = unlimitedBalance
		snapshot.Remaining = unlimitedBalance
	case info.Data.LimitRemaining != nil:
		snapshot.Limit = *info.Data.Limit
		snapshot.Remaining = *info.Data.LimitRemaining
	default:
		snapshot.Limit = *info.Data.Limit
		snapshot.Remaining = *info.Data.Limit - info.Data.Usage
	}

	return snapshot, nil
}
