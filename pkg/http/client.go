// Package http implements the retrying HTTP executor the Salesforce
// client is built on. Every REST call and the OAuth token exchange go
// through Client.Do, which issues one attempt per loop iteration,
// classifies the response, and decides between success, a backed-off
// retry, a session refresh, or a terminal error.
package http

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Client struct {
	httpClient *http.Client
	logger     *zap.Logger
}

type RequestOptions struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    interface{}
	Context context.Context
	Retry   RetryPolicy

	// RefreshSession is invoked when the server reports an expired
	// session (401 with errorCode INVALID_SESSION_ID). It must return
	// the header set for the next attempt. When nil, any 401 is
	// terminal; the token exchange itself runs with a nil hook so a
	// rejected authentication can never trigger a nested one.
	RefreshSession func(ctx context.Context) (map[string]string, error)
}

type Response struct {
	StatusCode int
	Status     string
	Headers    http.Header
	Body       []byte
}

func NewClient(timeout time.Duration) *Client {
	logger, _ := zap.NewProduction()
	return NewClientWithLogger(timeout, logger)
}

// NewClientWithLogger creates a new HTTP client with a custom logger.
func NewClientWithLogger(timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Do runs the request/retry loop until success, exhaustion, or a
// terminal failure. Transient statuses and transport errors wait
// Retry.Backoff between attempts (a 429 Retry-After header overrides
// the wait); a refreshed session retries immediately with regenerated
// headers. The wait is a real blocking sleep on the calling goroutine.
func (c *Client) Do(opts RequestOptions) (*Response, error) {
	policy := opts.Retry.withDefaults()

	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}

	// Headers live outside the operation closure so a session refresh
	// replaces them for every subsequent attempt.
	headers := opts.Headers
	requestID := uuid.NewString()
	attempt := 0

	operation := func() (*Response, error) {
		attempt++

		req, err := c.buildRequest(ctx, opts, headers)
		if err != nil {
			c.logger.Error("Failed to build request",
				zap.Error(err),
				zap.String("request_id", requestID),
				zap.String("method", opts.Method),
				zap.String("url", opts.URL))
			return nil, backoff.Permanent(err)
		}

		c.logger.Debug("Making HTTP request",
			zap.String("request_id", requestID),
			zap.Int("attempt", attempt),
			zap.String("method", opts.Method),
			zap.String("url", opts.URL))

		httpResp, err := c.httpClient.Do(req)
		if err != nil {
			// Network-level failures share the retry budget with 5xx.
			c.logger.Warn("HTTP request failed, will retry",
				zap.Error(err),
				zap.String("request_id", requestID),
				zap.Int("attempt", attempt),
				zap.String("method", opts.Method),
				zap.String("url", opts.URL))
			return nil, err
		}
		defer httpResp.Body.Close()

		// Setting Accept-Encoding explicitly turns off net/http's
		// transparent decompression, so gzip is handled here.
		reader := io.Reader(httpResp.Body)
		if strings.EqualFold(httpResp.Header.Get("Content-Encoding"), "gzip") {
			gz, err := gzip.NewReader(httpResp.Body)
			if err != nil {
				return nil, backoff.Permanent(fmt.Errorf("failed to decode gzip response: %w", err))
			}
			defer gz.Close()
			reader = gz
		}

		body, err := io.ReadAll(reader)
		if err != nil {
			c.logger.Error("Failed to read response body", zap.Error(err), zap.String("request_id", requestID))
			return nil, backoff.Permanent(fmt.Errorf("failed to read response body: %w", err))
		}

		resp := &Response{
			StatusCode: httpResp.StatusCode,
			Status:     httpResp.Status,
			Headers:    httpResp.Header,
			Body:       body,
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			// An empty body is a valid success with no payload.
			return resp, nil

		case resp.StatusCode == http.StatusUnauthorized:
			if opts.RefreshSession != nil && IsSessionExpired(body) {
				c.logger.Info("Session expired, re-authenticating",
					zap.String("request_id", requestID),
					zap.Int("attempt", attempt),
					zap.String("url", opts.URL))
				refreshed, err := opts.RefreshSession(ctx)
				if err != nil {
					c.logger.Error("Re-authentication failed",
						zap.Error(err),
						zap.String("request_id", requestID))
					return nil, backoff.Permanent(fmt.Errorf("re-authentication failed: %w", err))
				}
				headers = refreshed
				// Retry the original request immediately, no wait.
				// The 401 stays attached so an exhausted budget
				// still surfaces it as the terminal error.
				return nil, &scheduledRetryError{
					apiErr: newAPIError(resp),
					after:  backoff.RetryAfter(0),
				}
			}
			// A 401 without a session-expiry code is a permanent auth
			// failure (bad credentials), never retried.
			c.logger.Error("Unauthorized, not retryable",
				zap.String("request_id", requestID),
				zap.String("method", opts.Method),
				zap.String("url", opts.URL),
				zap.String("response", string(body)))
			return nil, backoff.Permanent(newAPIError(resp))

		case policy.retryable(resp.StatusCode):
			if resp.StatusCode == http.StatusTooManyRequests {
				if secs, ok := retryAfterSeconds(resp.Headers); ok {
					c.logger.Warn("Rate limited, honoring Retry-After",
						zap.String("request_id", requestID),
						zap.Int("attempt", attempt),
						zap.Int("retry_after_seconds", secs))
					return nil, &scheduledRetryError{
						apiErr: newAPIError(resp),
						after:  backoff.RetryAfter(secs),
					}
				}
			}
			c.logger.Warn("Transient error, will retry",
				zap.String("request_id", requestID),
				zap.Int("attempt", attempt),
				zap.Int("status_code", resp.StatusCode),
				zap.String("method", opts.Method),
				zap.String("url", opts.URL))
			return nil, newAPIError(resp)

		default:
			c.logger.Error("Request failed, not retryable",
				zap.String("request_id", requestID),
				zap.Int("status_code", resp.StatusCode),
				zap.String("method", opts.Method),
				zap.String("url", opts.URL),
				zap.String("response", string(body)))
			return nil, backoff.Permanent(newAPIError(resp))
		}
	}

	retryOpts := []backoff.RetryOption{
		backoff.WithBackOff(backoff.NewConstantBackOff(policy.Backoff)),
		backoff.WithMaxElapsedTime(policy.MaxElapsed),
	}
	if policy.MaxTries > 0 {
		retryOpts = append(retryOpts, backoff.WithMaxTries(policy.MaxTries))
	}

	resp, err := backoff.Retry(ctx, operation, retryOpts...)
	if err != nil {
		c.logger.Error("HTTP request failed after retries",
			zap.Error(err),
			zap.String("request_id", requestID),
			zap.Int("attempts", attempt),
			zap.String("method", opts.Method),
			zap.String("url", opts.URL))
		return nil, err
	}

	c.logger.Debug("HTTP request completed successfully",
		zap.String("request_id", requestID),
		zap.Int("attempts", attempt),
		zap.Int("status_code", resp.StatusCode),
		zap.String("method", opts.Method),
		zap.String("url", opts.URL))

	return resp, nil
}

func (c *Client) buildRequest(ctx context.Context, opts RequestOptions, headers map[string]string) (*http.Request, error) {
	var bodyReader io.Reader
	if opts.Body != nil {
		contentType := headers["Content-Type"]
		if contentType == "" {
			contentType = headers["content-type"]
		}

		switch v := opts.Body.(type) {
		case []byte:
			bodyReader = bytes.NewReader(v)
		case string:
			bodyReader = strings.NewReader(v)
		case url.Values:
			bodyReader = strings.NewReader(v.Encode())
		default:
			if strings.HasPrefix(strings.ToLower(contentType), "application/x-www-form-urlencoded") {
				form := url.Values{}
				switch vv := opts.Body.(type) {
				case map[string]string:
					for k, val := range vv {
						form.Set(k, val)
					}
				default:
					return nil, fmt.Errorf("unsupported form body type %T", opts.Body)
				}
				bodyReader = strings.NewReader(form.Encode())
			} else {
				bodyJSON, err := json.Marshal(opts.Body)
				if err != nil {
					return nil, fmt.Errorf("failed to marshal request body: %w", err)
				}
				bodyReader = bytes.NewReader(bodyJSON)
			}
		}
	}

	req, err := http.NewRequestWithContext(ctx, opts.Method, opts.URL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Sensible defaults when a body is present.
	if opts.Body != nil && headers["Content-Type"] == "" && headers["content-type"] == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return req, nil
}

func (c *Client) Get(ctx context.Context, url string, headers map[string]string, retry RetryPolicy) (*Response, error) {
	return c.Do(RequestOptions{
		Method:  http.MethodGet,
		URL:     url,
		Headers: headers,
		Context: ctx,
		Retry:   retry,
	})
}

func (c *Client) Post(ctx context.Context, url string, headers map[string]string, body interface{}, retry RetryPolicy) (*Response, error) {
	return c.Do(RequestOptions{
		Method:  http.MethodPost,
		URL:     url,
		Headers: headers,
		Body:    body,
		Context: ctx,
		Retry:   retry,
	})
}
