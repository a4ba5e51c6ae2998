// Package remote hosts the HTTP-backed engine adapters and their shared
// client: request retry with exponential backoff, a request rate limiter and
// a concurrency cap.
package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/yhl9/chaptervox/tts"
)

// RetryConfig configures retry behavior for HTTP requests.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig returns the retry defaults for the online engines.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  500 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

// retryableStatus reports whether an HTTP status warrants a retry. Client
// errors are permanent; server errors and throttling are transient.
func retryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Client is the shared HTTP client for remote engines. It bounds in-flight
// requests with a weighted semaphore and paces them with a token bucket.
type Client struct {
	http    *http.Client
	retry   RetryConfig
	limiter *rate.Limiter
	sem     *semaphore.Weighted
}

// NewClient builds a client allowing maxConcurrent in-flight requests at
// most rps requests per second. Non-positive values disable the respective
// limit.
func NewClient(timeout time.Duration, maxConcurrent int64, rps float64) *Client {
	c := &Client{
		http:  &http.Client{Timeout: timeout},
		retry: DefaultRetryConfig(),
	}
	if maxConcurrent > 0 {
		c.sem = semaphore.NewWeighted(maxConcurrent)
	}
	if rps > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return c
}

// Do executes req with rate limiting, the concurrency cap and retry on
// transient failures. The request body must be resettable; callers pass a
// factory instead of a built request so each attempt gets a fresh body.
func (c *Client) Do(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) (*http.Response, error) {
	if c.sem != nil {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer c.sem.Release(1)
	}

	var lastErr error
	delay := c.retry.InitialDelay
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		req, err := build(ctx)
		if err != nil {
			return nil, err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = tts.NewConvertError(tts.KindNetwork, "http request", err)
		} else if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			httpErr := fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
			if !retryableStatus(resp.StatusCode) {
				// 4xx is permanent, do not burn retries on it.
				return nil, tts.NewConvertError(tts.KindSynthesis, "http request", httpErr)
			}
			lastErr = tts.NewConvertError(tts.KindNetwork, "http request", httpErr)
		} else {
			return resp, nil
		}

		if attempt < c.retry.MaxAttempts {
			log.Debug("retrying request", "attempt", attempt, "delay", delay, "err", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.retry.BackoffFactor)
		}
	}
	return nil, fmt.Errorf("failed after %d attempts: %w", c.retry.MaxAttempts, lastErr)
}
