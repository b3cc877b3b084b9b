package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/agitter/manubot/internal/domain"
	"github.com/agitter/manubot/internal/observability"
)

// NoRetries disables retries when used as HTTPClientConfig.MaxRetries.
const NoRetries = -1

// DefaultUserAgent is sent when no User-Agent is configured.
const DefaultUserAgent = "manubot-go/1.0 (+https://github.com/agitter/manubot)"

// HTTPClientConfig configures the HTTP client.
type HTTPClientConfig struct {
	// Provider labels metrics and errors produced by this client.
	Provider string

	// Timeout is the request timeout for HTTP operations.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// MaxRetries is the maximum number of retry attempts. Zero selects the
	// default of 3; NoRetries disables retrying.
	MaxRetries int

	// RetryDelay is the base delay between retries.
	RetryDelay time.Duration

	// UserAgent is the User-Agent header sent with requests.
	UserAgent string

	// Metrics receives request counts and durations. May be nil.
	Metrics *observability.Metrics

	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// HTTPClient wraps http.Client with rate limiting and retries.
// It is safe for concurrent use.
type HTTPClient struct {
	client      *http.Client
	rateLimiter *RateLimiter
	config      HTTPClientConfig
}

// NewHTTPClient creates a new HTTP client with rate limiting.
// The client waits on the rate limiter before each attempt and retries on
// 429 (Too Many Requests), 5xx server errors and transport failures.
func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	// Fill in defaults
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 10
	}
	if cfg.BurstSize == 0 {
		cfg.BurstSize = max(1, int(cfg.RateLimit))
	}
	// Zero means "use the default"; NoRetries maps to a single attempt
	switch {
	case cfg.MaxRetries == 0:
		cfg.MaxRetries = 3
	case cfg.MaxRetries < 0:
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Provider == "" {
		cfg.Provider = "http"
	}

	return &HTTPClient{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
		},
		rateLimiter: NewRateLimiter(cfg.RateLimit, cfg.BurstSize),
		config:      cfg,
	}
}

// Provider returns the provider label of the client.
func (c *HTTPClient) Provider() string {
	return c.config.Provider
}

// Do executes an HTTP request with rate limiting and retries.
//
// A transport failure or a retryable status that survives every retry is
// returned as a *domain.ExternalAPIError, which unwraps to
// domain.ErrProviderUnavailable. Context cancellation is returned as is.
// Other statuses are returned to the caller in the response.
//
// The request body is not preserved across retries; callers must provide
// requests with GetBody set if the body needs to be resent on retry.
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	// Callers may set their own User-Agent
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	provider := c.config.Provider
	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		// Every attempt, retries included, takes a token
		if err := c.rateLimiter.Wait(req.Context()); err != nil {
			if ctxErr := req.Context().Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}

		start := time.Now()
		resp, err := c.client.Do(req)
		c.config.Metrics.RecordProviderRequest(provider, time.Since(start).Seconds())
		if err != nil {
			// A cancelled request is not a provider failure
			if ctxErr := req.Context().Err(); ctxErr != nil {
				return nil, ctxErr
			}

			// Transport errors are retried like 5xx responses
			lastErr = domain.NewExternalAPIError(provider, 0, "", err)
			if attempt < c.config.MaxRetries {
				if err := c.waitForRetry(req.Context(), c.config.RetryDelay); err != nil {
					return nil, err
				}
				if err := c.resetRequestBody(req); err != nil {
					return nil, fmt.Errorf("cannot retry request: %w", err)
				}
				continue
			}
			c.config.Metrics.RecordProviderRequestFailed(provider, domain.Kind(lastErr))
			return nil, lastErr
		}

		// Back off on 429 and 5xx
		if c.shouldRetry(resp.StatusCode) {
			if resp.StatusCode == http.StatusTooManyRequests {
				c.config.Metrics.RecordProviderRateLimited(provider)
			}
			retryDelay := c.getRetryDelay(resp)

			// Drain and close so the connection can be reused
			if resp.Body != nil {
				_, _ = io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
			}

			lastErr = domain.NewExternalAPIError(provider, resp.StatusCode,
				fmt.Sprintf("gave up after %d attempts", attempt+1), nil)
			if attempt < c.config.MaxRetries {
				if err := c.waitForRetry(req.Context(), retryDelay); err != nil {
					return nil, err
				}
				if err := c.resetRequestBody(req); err != nil {
					return nil, fmt.Errorf("cannot retry request: %w", err)
				}
				continue
			}

			// Out of retries
			c.config.Metrics.RecordProviderRequestFailed(provider, domain.Kind(lastErr))
			return nil, lastErr
		}

		// Success, or a status the adapter maps itself (404 and friends)
		return resp, nil
	}

	// Unreachable while MaxRetries >= 0
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, errors.New("unexpected error: no response received")
}

// shouldRetry returns true if the status code indicates we should retry.
func (c *HTTPClient) shouldRetry(statusCode int) bool {
	if statusCode == http.StatusTooManyRequests {
		return true
	}
	return statusCode >= 500 && statusCode < 600
}

// getRetryDelay honors Retry-After in seconds or HTTP-date form, falling
// back to the configured retry delay.
func (c *HTTPClient) getRetryDelay(resp *http.Response) time.Duration {
	retryAfter := resp.Header.Get("Retry-After")
	if retryAfter == "" {
		return c.config.RetryDelay
	}

	// Delta-seconds form
	if seconds, err := strconv.ParseInt(retryAfter, 10, 64); err == nil {
		if seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
		return c.config.RetryDelay
	}

	// HTTP-date form
	if t, err := http.ParseTime(retryAfter); err == nil {
		if delay := time.Until(t); delay > 0 {
			return delay
		}
	}

	return c.config.RetryDelay
}

// waitForRetry waits for the specified duration, respecting context cancellation.
func (c *HTTPClient) waitForRetry(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// resetRequestBody resets the request body for retry if possible.
func (c *HTTPClient) resetRequestBody(req *http.Request) error {
	if req.Body == nil || req.GetBody == nil {
		return nil
	}

	body, err := req.GetBody()
	if err != nil {
		return fmt.Errorf("failed to get request body for retry: %w", err)
	}
	req.Body = body
	return nil
}
