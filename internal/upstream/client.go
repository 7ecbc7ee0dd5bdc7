// Package upstream is the HTTP client shared by source adapters and enrichers.
// Every call is rate limited, bounded by a per-attempt timeout and wrapped in
// the retry policy.
package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"solana-token-feed/internal/observability"
	"solana-token-feed/internal/retry"
)

// Default configuration values.
const (
	DefaultTimeout   = 10 * time.Second
	DefaultRateLimit = 5 // requests per second
	maxErrorBody     = 256
	maxResponseBody  = 8 << 20
)

// Client performs GET requests against one upstream provider.
type Client struct {
	name    string
	client  *http.Client
	timeout time.Duration
	limiter *rate.Limiter
	policy  retry.Policy
	headers map[string]string
	logger  zerolog.Logger
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithRetryPolicy sets the retry policy.
func WithRetryPolicy(p retry.Policy) ClientOption {
	return func(c *Client) {
		c.policy = p
	}
}

// WithRateLimit sets the request rate (per second). Zero or negative disables limiting.
func WithRateLimit(perSecond float64, burst int) ClientOption {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithHeader adds a header sent on every request.
func WithHeader(key, value string) ClientOption {
	return func(c *Client) {
		c.headers[key] = value
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a client for the named provider.
func NewClient(name string, opts ...ClientOption) *Client {
	c := &Client{
		name:    name,
		client:  &http.Client{},
		timeout: DefaultTimeout,
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		policy:  retry.DefaultPolicy(),
		headers: make(map[string]string),
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the provider name.
func (c *Client) Name() string {
	return c.name
}

// GetJSON fetches url and returns the parsed document.
// Transient failures are retried per the client's policy.
func (c *Client) GetJSON(ctx context.Context, url string) (gjson.Result, error) {
	policy := c.policy
	userOnRetry := policy.OnRetry
	policy.OnRetry = func(n int, delay time.Duration, err error) {
		observability.RecordUpstreamRetry(c.name)
		c.logger.Warn().Err(err).
			Str("source", c.name).
			Str("url", url).
			Int("attempt", n+1).
			Dur("backoff", delay).
			Msg("upstream call failed, retrying")
		if userOnRetry != nil {
			userOnRetry(n, delay, err)
		}
	}

	return retry.Do(ctx, policy, func(ctx context.Context) (gjson.Result, error) {
		return c.getOnce(ctx, url)
	})
}

func (c *Client) getOnce(ctx context.Context, url string) (gjson.Result, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return gjson.Result{}, fmt.Errorf("rate limiter: %w", err)
		}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, url, nil)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	observability.RecordUpstreamLatency(c.name, time.Since(start).Seconds())
	if err != nil {
		return gjson.Result{}, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return gjson.Result{}, &retry.StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("invalid JSON response from %s", c.name)
	}

	return gjson.ParseBytes(body), nil
}
