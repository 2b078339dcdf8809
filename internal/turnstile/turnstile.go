// Package turnstile verifies one-time proof-of-human tokens against the
// Cloudflare siteverify endpoint.
//
// The caller's IP address is never forwarded (no remoteip field), and
// callers only ever see two generic reasons so the endpoint can't be used
// as an oracle for token validity.
package turnstile

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"codeberg.org/freetier/gateway/internal/logger"
)

const (
	DefaultVerifyURL = "https://challenges.cloudflare.com/turnstile/v0/siteverify"
	defaultTimeout   = 10 * time.Second

	// turnstile tokens are at most 2048 characters
	maxTokenLength = 2048
)

// the only reasons ever surfaced to callers
const (
	ReasonVerificationFailed = "verification-failed"
	ReasonInternalError      = "internal-error"
)

type Config struct {
	Enabled   bool
	SecretKey string
	VerifyURL string
	Timeout   time.Duration
}

type Result struct {
	Success bool
	Reasons []string
}

type siteverifyResponse struct {
	Success     bool     `json:"success"`
	ErrorCodes  []string `json:"error-codes"`
	ChallengeTS string   `json:"challenge_ts"`
	Hostname    string   `json:"hostname"`
	Action      string   `json:"action"`
}

type Verifier struct {
	config     Config
	httpClient *http.Client
}

func NewVerifier(config Config) *Verifier {
	if config.VerifyURL == "" {
		config.VerifyURL = DefaultVerifyURL
	}

	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	return &Verifier{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

func (v *Verifier) Enabled() bool {
	return v.config.Enabled
}

func (v *Verifier) Verify(ctx context.Context, token string) Result {
	if !v.config.Enabled {
		return Result{Success: true}
	}

	token = strings.TrimSpace(token)
	if token == "" || len(token) > maxTokenLength {
		return failed(ReasonVerificationFailed)
	}

	if v.config.SecretKey == "" {
		logger.Error("turnstile enabled without a secret key")
		return failed(ReasonInternalError)
	}

	resp, err := v.siteverify(ctx, token)
	if err != nil {
		logger.ErrorErr(err, "turnstile siteverify failed")
		return failed(ReasonInternalError)
	}

	if !resp.Success {
		logger.Debug("turnstile token rejected", "error_codes", resp.ErrorCodes)
		return failed(ReasonVerificationFailed)
	}

	return Result{Success: true}
}

func (v *Verifier) siteverify(ctx context.Context, token string) (*siteverifyResponse, error) {
	form := url.Values{}
	form.Set("secret", v.config.SecretKey)
	form.Set("response", token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.config.VerifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck,gosec // drain for connection reuse
		return nil, fmt.Errorf("siteverify returned status %d", resp.StatusCode)
	}

	var out siteverifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &out, nil
}

func failed(reason string) Result {
	return Result{Success: false, Reasons: []string{reason}}
}
