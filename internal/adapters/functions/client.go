// Package functions calls the hosted serverless functions that front the
// search, weather, translation, image generation and chat services.
package functions

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/PabloGalante/chicha/internal/observability"
)

const (
	DefaultTimeout     = 60 * time.Second
	DefaultMaxAttempts = 3
	DefaultRetryBase   = time.Second

	maxResponseBytes = 10 << 20
)

// StatusError is a non-2xx reply, or a 2xx reply carrying an error field.
type StatusError struct {
	Function   string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("function %s: status %d", e.Function, e.StatusCode)
	}
	return fmt.Sprintf("function %s: status %d: %s", e.Function, e.StatusCode, e.Message)
}

// Retryable reports whether the function asked us to back off.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusServiceUnavailable
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithRateLimit caps outbound invocations per second. Zero disables it.
func WithRateLimit(perSecond float64, burst int) Option {
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

// WithRetry sets how often a 429/503 is retried and the first backoff.
// Attempt n waits base * 2^n.
func WithRetry(maxAttempts int, base time.Duration) Option {
	return func(c *Client) {
		if maxAttempts > 0 {
			c.maxAttempts = maxAttempts
		}
		if base >= 0 {
			c.retryBase = base
		}
	}
}

// Client invokes functions at <baseURL>/<name> with a JSON body.
type Client struct {
	baseURL     string
	key         string
	http        *http.Client
	limiter     *rate.Limiter
	maxAttempts int
	retryBase   time.Duration
}

func NewClient(baseURL, key string, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		key:         key,
		http:        &http.Client{Timeout: DefaultTimeout},
		maxAttempts: DefaultMaxAttempts,
		retryBase:   DefaultRetryBase,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Invoke posts in as JSON to the named function and decodes the reply into
// out. Rate-limit and unavailable replies are retried with exponential
// backoff; everything else fails at once.
func (c *Client) Invoke(ctx context.Context, name string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", name, err)
	}

	log := observability.LoggerFromContext(ctx).With("function", name)

	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := c.retryBase * time.Duration(1<<uint(attempt))
			log.Warn("retrying function call", "attempt", attempt+1, "delay", delay, "error", lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("rate limit wait: %w", err)
			}
		}

		err := c.do(ctx, name, body, out)
		if err == nil {
			return nil
		}

		var se *StatusError
		if !errors.As(err, &se) || !se.Retryable() {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Client) do(ctx context.Context, name string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+name, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.key != "" {
		req.Header.Set("Authorization", "Bearer "+c.key)
		req.Header.Set("apikey", c.key)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read %s response: %w", name, err)
	}

	var envelope struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(data, &envelope)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := envelope.Error
		if msg == "" {
			msg = strings.TrimSpace(string(data))
		}
		return &StatusError{Function: name, StatusCode: resp.StatusCode, Message: msg}
	}
	if envelope.Error != "" {
		return &StatusError{Function: name, StatusCode: resp.StatusCode, Message: envelope.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", name, err)
	}
	return nil
}
