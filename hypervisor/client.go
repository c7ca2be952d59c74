// Package hypervisor holds the transport shared by hypervisor backends: an
// HTTP client speaking over each VM's private control socket.
package hypervisor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

const (
	// HTTPTimeout is the per-request timeout for control socket calls.
	HTTPTimeout = 10 * time.Second
	// MaxRetries is the number of retry attempts for transient API errors.
	MaxRetries = 3
	// BaseBackoff is the initial backoff duration; doubled on each retry.
	BaseBackoff = 50 * time.Millisecond
)

// APIError carries the HTTP status code from a control socket response.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string { return e.Message }

// NewSocketHTTPClient creates an HTTP client that dials a Unix domain socket.
func NewSocketHTTPClient(socketPath string) *http.Client {
	return &http.Client{
		Timeout: HTTPTimeout,
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", socketPath)
			},
		},
	}
}

// DoPut sends a PUT request over the control socket and expects 2xx.
// Returns an *APIError for non-2xx responses.
func DoPut(ctx context.Context, socketPath, path string, body []byte) error {
	return do(ctx, http.MethodPut, socketPath, path, body)
}

// DoPatch sends a PATCH request over the control socket and expects 2xx.
func DoPatch(ctx context.Context, socketPath, path string, body []byte) error {
	return do(ctx, http.MethodPatch, socketPath, path, body)
}

func do(ctx context.Context, method, socketPath, path string, body []byte) error {
	hc := NewSocketHTTPClient(socketPath)
	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, "http://localhost"+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request %s: %w", path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		rb, _ := io.ReadAll(resp.Body)
		return &APIError{
			Code:    resp.StatusCode,
			Message: fmt.Sprintf("%s %s → %d: %s", method, path, resp.StatusCode, rb),
		}
	}
	return nil
}

// CheckSocket verifies that a Unix domain socket is connectable.
func CheckSocket(socketPath string) error {
	conn, err := net.DialTimeout("unix", socketPath, 2*time.Second)
	if err != nil {
		return err
	}
	return conn.Close()
}

// DoWithRetry retries fn up to MaxRetries times with exponential backoff
// for transient errors (connection failures, HTTP 5xx, 429).
func DoWithRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for i := 0; i <= MaxRetries; i++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) {
			return lastErr
		}
		if i < MaxRetries {
			backoff := BaseBackoff * time.Duration(1<<i)
			select {
			case <-ctx.Done():
				return lastErr
			case <-time.After(backoff):
			}
		}
	}
	return lastErr
}

// IsRetryable returns true for transient errors worth retrying:
// connection-level failures and HTTP 5xx/429 responses.
func IsRetryable(err error) bool {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Code >= 500 || ae.Code == http.StatusTooManyRequests
	}
	// Non-APIError = connection-level failure, always retry.
	return true
}
