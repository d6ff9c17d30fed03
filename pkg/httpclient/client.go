// Package httpclient is a thin retrying HTTP client shared by every
// outbound surface: webhook delivery, the HTTP bridge, and delegation.
//
// Retry policy: transport errors and 5xx responses are retried with
// exponential backoff (baseDelay, 2x per attempt); any response below 500
// is returned as-is, so callers decide what a 4xx means.
package httpclient

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Client wraps http.Client with bounded retries.
type Client struct {
	client     *http.Client
	maxRetries int
	baseDelay  time.Duration
	sleep      func(time.Duration) // replaced in tests
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.client.Timeout = d }
}

// WithMaxRetries bounds the number of retries after the first attempt.
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

// WithBaseDelay sets the first backoff delay; each retry doubles it.
func WithBaseDelay(d time.Duration) Option {
	return func(c *Client) { c.baseDelay = d }
}

// New creates a client with a 30 s timeout, 3 retries, and 1 s base delay.
func New(opts ...Option) *Client {
	c := &Client{
		client:     &http.Client{Timeout: 30 * time.Second},
		maxRetries: 3,
		baseDelay:  time.Second,
		sleep:      time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do executes the request, retrying per the policy. The request must have
// GetBody set when it carries a body (http.NewRequest does this for
// common body types).
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	var lastErr error
	var lastStatus int

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.baseDelay << (attempt - 1)
			slog.Debug("retrying request", "url", req.URL.String(), "attempt", attempt, "delay", delay)
			c.sleep(delay)

			if req.Body != nil && req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("recreate request body: %w", err)
				}
				req.Body = body
			}
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if ctxErr := req.Context().Err(); ctxErr != nil {
				return nil, ctxErr
			}
			lastErr = err
			lastStatus = 0
			continue
		}
		if resp.StatusCode < 500 {
			return resp, nil
		}
		resp.Body.Close()
		lastErr = fmt.Errorf("HTTP %d", resp.StatusCode)
		lastStatus = resp.StatusCode

		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
	}

	return nil, &RetryableError{
		StatusCode: lastStatus,
		Message:    fmt.Sprintf("giving up after %d retries", c.maxRetries),
		Err:        lastErr,
	}
}
