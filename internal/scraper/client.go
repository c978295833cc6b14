package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/opportunity-scanner/internal/circuitbreaker"
	"github.com/opportunity-scanner/internal/retry"
	"github.com/opportunity-scanner/internal/types"
)

// maxResponseBytes bounds how much of a platform response we will read.
const maxResponseBytes = 4 << 20

// sourceClient is the shared HTTP client used by all adapters. Each platform
// gets its own circuit breaker so one flapping source does not block the rest.
type sourceClient struct {
	platform  types.Platform
	http      *http.Client
	breaker   *circuitbreaker.CircuitBreaker
	retryCfg  *retry.RetryConfig
	userAgent string
	headers   map[string]string
}

func newSourceClient(platform types.Platform, userAgent string, timeout time.Duration, breakers *circuitbreaker.Registry) *sourceClient {
	return &sourceClient{
		platform: platform,
		http: &http.Client{
			Timeout: timeout,
		},
		breaker: breakers.For(string(platform)),
		// Short and shallow: the whole fetch must fit inside the
		// dispatcher's per-source deadline.
		retryCfg: &retry.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     4 * time.Second,
			Multiplier:   2.0,
		},
		userAgent: userAgent,
		headers:   make(map[string]string),
	}
}

// setHeader adds a header sent on every request (auth tokens, API keys)
func (c *sourceClient) setHeader(key, value string) {
	c.headers[key] = value
}

// getJSON fetches url and decodes the JSON response into dest
func (c *sourceClient) getJSON(ctx context.Context, url string, dest interface{}) error {
	return c.get(ctx, url, func(body []byte) error {
		if err := json.Unmarshal(body, dest); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		return nil
	})
}

// getText fetches url and hands the raw body to parse
func (c *sourceClient) getText(ctx context.Context, url string, parse func(body []byte) error) error {
	return c.get(ctx, url, parse)
}

func (c *sourceClient) get(ctx context.Context, url string, parse func(body []byte) error) error {
	result := retry.WithExponentialBackoff(ctx, c.retryCfg, func(ctx context.Context, attempt int) error {
		return c.breaker.Execute(ctx, func() error {
			return c.doOnce(ctx, url, parse)
		})
	})

	if !result.Success {
		err := result.LastError
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
			return NewAdapterError(c.platform, "Fetch", ErrSourceUnavailable, map[string]interface{}{
				"reason": "circuit open",
			})
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return NewAdapterError(c.platform, "Fetch", ErrSourceTimeout, nil)
		}
		return NewAdapterError(c.platform, "Fetch", err, nil)
	}

	return nil
}

func (c *sourceClient) doOnce(ctx context.Context, url string, parse func(body []byte) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json, text/html")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close() // nolint:errcheck // cleanup in defer
	}()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrSourceRateLimit
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrSourceUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return fmt.Errorf("%w: status %d", ErrMalformedPayload, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	return parse(body)
}
