// Package transport provides the outbound HTTP client shared by the CSV
// fetcher and the Parse store: rate limited, retried on 429/5xx.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"enrollment-sync/pkg/errors"
	"enrollment-sync/pkg/logging"
)

// DefaultHTTPTimeout is the default timeout for HTTP requests.
const DefaultHTTPTimeout = 30 * time.Second

// maxErrorBody caps how much of a failed response body ends up in an error.
const maxErrorBody = 512

// Options configures a Client.
type Options struct {
	Timeout time.Duration
	// RateLimit is requests per second; zero disables limiting.
	RateLimit float64
	Burst     int
	Retry     RetryConfig
	Headers   map[string]string
}

// Client performs HTTP requests with rate limiting and retry.
type Client struct {
	http    *http.Client
	limiter *rate.Limiter
	retry   RetryConfig
	headers map[string]string
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// New creates a new transport client.
func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	retry := opts.Retry
	if retry.MaxAttempts == 0 {
		retry = DefaultRetryConfig
	}

	return &Client{
		http:    &http.Client{Timeout: timeout},
		limiter: limiter,
		retry:   retry,
		headers: opts.Headers,
	}
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	return c.Do(ctx, http.MethodGet, url, nil)
}

// Do performs a request, JSON-encoding body when it is not nil. Non-2xx
// responses are returned together with a NetworkError carrying the status.
// Only idempotent methods are retried; a POST is sent once.
func (c *Client) Do(ctx context.Context, method, url string, body any) (*Response, error) {
	if !idempotent(method) {
		return c.DoOnce(ctx, method, url, body)
	}
	payload, err := encodeBody(body)
	if err != nil {
		return nil, err
	}

	var resp *Response
	attempt := 0
	err = Retry(ctx, c.retry, func(ctx context.Context) error {
		attempt++
		var err error
		resp, err = c.once(ctx, method, url, payload)
		if err != nil && errors.IsRetryable(err) && attempt < c.retry.MaxAttempts {
			logging.FromContext(ctx).Warn().
				Err(err).
				Str("method", method).
				Str("url", url).
				Int("attempt", attempt).
				Msg("Request failed, retrying")
		}
		return err
	})
	return resp, err
}

// DoOnce performs a single attempt. Use it for writes that must not be
// replayed, such as Parse Increment operations.
func (c *Client) DoOnce(ctx context.Context, method, url string, body any) (*Response, error) {
	payload, err := encodeBody(body)
	if err != nil {
		return nil, err
	}
	return c.once(ctx, method, url, payload)
}

func encodeBody(body any) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}
	return payload, nil
}

func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

func (c *Client) once(ctx context.Context, method, url string, payload []byte) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("create request %s %s: %w", method, url, err)
	}

	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	httpResp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.NewNetworkError(url, 0, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, errors.NewNetworkError(url, 0, fmt.Errorf("read body: %w", err))
	}

	resp := &Response{StatusCode: httpResp.StatusCode, Header: httpResp.Header, Body: data}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		snippet := data
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return resp, errors.NewNetworkError(url, httpResp.StatusCode, fmt.Errorf("%s", bytes.TrimSpace(snippet)))
	}
	return resp, nil
}
