// Package client is a small HTTP client for the idlemine API, used by the
// CLI to drive a running daemon.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/tutu-network/idlemine/internal/app/mining"
)

const (
	requestTimeout = 30 * time.Second

	collectAttempts = 3
)

// Client talks to one idlemine daemon.
type Client struct {
	baseURL string
	http    *http.Client

	// RetryDelay is the base backoff between retryable collect attempts.
	RetryDelay time.Duration
}

// New creates a client for baseURL, e.g. "http://127.0.0.1:11480".
func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       &http.Client{Timeout: requestTimeout},
		RetryDelay: 500 * time.Millisecond,
	}
}

// APIError is a non-2xx response decoded from the error envelope.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
	Retryable  bool
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("[%d] %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("[%d] %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// IsRetryable reports whether err is an API error the server marked retryable.
func IsRetryable(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && (apiErr.Retryable || apiErr.StatusCode == http.StatusServiceUnavailable)
}

// Do sends a JSON request and decodes the response into out (may be nil).
func (c *Client) Do(ctx context.Context, method, path string, body, out interface{}, header http.Header) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var env struct {
			Error struct {
				Message   string `json:"message"`
				Type      string `json:"type"`
				Retryable bool   `json:"retryable"`
			} `json:"error"`
		}
		if json.Unmarshal(data, &env) == nil {
			apiErr.Message = env.Error.Message
			apiErr.Type = env.Error.Type
			apiErr.Retryable = env.Error.Retryable
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse response (status %d): %w", resp.StatusCode, err)
	}
	return nil
}

// UserPath builds /api/users/{id}/parts... with the id escaped.
func UserPath(userID string, parts ...string) string {
	p := "/api/users/" + url.PathEscape(userID)
	for _, part := range parts {
		p += "/" + part
	}
	return p
}

// ─── Mining ─────────────────────────────────────────────────────────────────

// StartResult is the body of POST /mining/start.
type StartResult struct {
	Started bool          `json:"started"`
	Status  mining.Status `json:"status"`
}

// CollectResult is the body of POST /mining/collect.
type CollectResult struct {
	UserID     string          `json:"user_id"`
	SessionID  string          `json:"session_id"`
	Reward     decimal.Decimal `json:"reward"`
	Experience int64           `json:"experience"`
	Collected  bool            `json:"collected"`
	Active     bool            `json:"active"`
}

// StartMining opens a session for userID.
func (c *Client) StartMining(ctx context.Context, userID string) (*StartResult, error) {
	var out StartResult
	if err := c.Do(ctx, http.MethodPost, UserPath(userID, "mining", "start"), nil, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

// MiningStatus returns the user's current session snapshot.
func (c *Client) MiningStatus(ctx context.Context, userID string) (*mining.Status, error) {
	var out mining.Status
	if err := c.Do(ctx, http.MethodGet, UserPath(userID, "mining"), nil, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

// Collect finalizes the session. Ledger outages are retried under one
// idempotency key so a reward is never credited twice.
func (c *Client) Collect(ctx context.Context, userID string) (*CollectResult, error) {
	header := http.Header{}
	header.Set("Idempotency-Key", uuid.NewString())

	var lastErr error
	for attempt := 1; attempt <= collectAttempts; attempt++ {
		var out CollectResult
		err := c.Do(ctx, http.MethodPost, UserPath(userID, "mining", "collect"), nil, &out, header)
		if err == nil {
			return &out, nil
		}
		lastErr = err
		if !IsRetryable(err) || attempt == collectAttempts {
			break
		}
		delay := c.RetryDelay * time.Duration(attempt)
		log.WithFields(log.Fields{"attempt": attempt, "delay": delay, "error": err}).Warn("collect failed, retrying")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, lastErr
}

// CancelMining discards the active session without reward.
func (c *Client) CancelMining(ctx context.Context, userID string) (bool, error) {
	var out struct {
		Cancelled bool `json:"cancelled"`
	}
	if err := c.Do(ctx, http.MethodPost, UserPath(userID, "mining", "cancel"), nil, &out, nil); err != nil {
		return false, err
	}
	return out.Cancelled, nil
}

// ─── Raw JSON endpoints ─────────────────────────────────────────────────────
// The CLI prints these as-is.

// Get fetches path and returns the raw JSON body.
func (c *Client) Get(ctx context.Context, path string) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.Do(ctx, http.MethodGet, path, nil, &out, nil); err != nil {
		return nil, err
	}
	return out, nil
}

// Post sends body to path and returns the raw JSON body.
func (c *Client) Post(ctx context.Context, path string, body interface{}) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.Do(ctx, http.MethodPost, path, body, &out, nil); err != nil {
		return nil, err
	}
	return out, nil
}
