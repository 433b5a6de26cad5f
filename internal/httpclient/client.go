// Package httpclient is the HTTP client shared by the TNS and HEASARC
// clients. It adds a user agent, rate limiting, retries with linear backoff
// and classifies failed responses into enhanced errors.
package httpclient

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/k3a/html2text"
	"golang.org/x/time/rate"

	"github.com/tphakala/uvotredux/internal/errors"
	"github.com/tphakala/uvotredux/internal/logger"
)

const (
	// DefaultTimeout bounds a request including reading the body
	DefaultTimeout = 30 * time.Second

	defaultRetryDelay = time.Second
	defaultUserAgent  = "uvotredux"

	// maxErrorText caps the response text kept in error messages
	maxErrorText = 300
	// maxErrorBody caps how much of a failed response is read
	maxErrorBody = 64 * 1024
)

// Config holds configuration for creating an HTTP client
type Config struct {
	Service   string // name used in messages, e.g. "TNS"
	Component string // error component, e.g. "tns"
	Timeout   time.Duration
	UserAgent string

	RateLimit float64 // requests per second, 0 disables limiting
	Burst     int

	Retries    int           // attempts per request, at least 1
	RetryDelay time.Duration // multiplied by the attempt number

	// Transport defaults to http.DefaultTransport, resolved per request
	Transport http.RoundTripper
}

// Client performs rate limited GET requests with retries.
// Safe for concurrent use.
type Client struct {
	config  Config
	client  *http.Client
	limiter *rate.Limiter

	hookMu        sync.RWMutex
	afterResponse func(*http.Request, *http.Response, error)
}

// New creates a client. Zero values fall back to defaults.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	return &Client{
		config:  cfg,
		client:  &http.Client{Timeout: cfg.Timeout, Transport: cfg.Transport},
		limiter: rate.NewLimiter(limit, max(1, cfg.Burst)),
	}
}

// SetAfterResponseHook registers fn to be called after every attempt
func (c *Client) SetAfterResponseHook(fn func(*http.Request, *http.Response, error)) {
	c.hookMu.Lock()
	defer c.hookMu.Unlock()
	c.afterResponse = fn
}

// Get fetches url, retrying network errors, 5xx and 429 responses. Any
// other status than 200 is returned as an error. The caller closes the body.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	var lastErr error
	for attempt := range c.config.Retries {
		resp, err := c.getOnce(ctx, url)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !Retryable(err) || ctx.Err() != nil {
			return nil, err
		}

		if attempt < c.config.Retries-1 {
			delay := time.Duration(attempt+1) * c.config.RetryDelay
			GetLogger().Warn("Request failed, retrying",
				logger.String("service", c.config.Service),
				logger.String("url", url),
				logger.Int("attempt", attempt+1),
				logger.Int("max_retries", c.config.Retries),
				logger.Duration("delay", delay),
				logger.Error(err))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, lastErr
}

func (c *Client) getOnce(ctx context.Context, url string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.New(err).
			Component(c.config.Component).
			Category(errors.CategoryCancellation).
			Context("operation", "rate_limiter_wait").
			Build()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, errors.New(err).
			Component(c.config.Component).
			Category(errors.CategoryValidation).
			Build()
	}
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.client.Do(req)

	c.hookMu.RLock()
	hook := c.afterResponse
	c.hookMu.RUnlock()
	if hook != nil {
		hook(req, resp, err)
	}

	if err != nil {
		return nil, errors.New(fmt.Errorf("%s request failed: %w", c.config.Service, err)).
			Component(c.config.Component).
			Category(errors.CategoryNetwork).
			Context("url", url).
			Build()
	}
	if resp.StatusCode == http.StatusOK {
		return resp, nil
	}

	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return nil, errors.Newf("%s returned status %d: %s", c.config.Service, resp.StatusCode,
		ErrorText(resp.Header.Get("Content-Type"), body)).
		Component(c.config.Component).
		Category(statusCategory(resp.StatusCode)).
		Context("status_code", resp.StatusCode).
		Context("url", url).
		Build()
}

// Retryable reports whether err is a network failure or a 5xx/429 status
func Retryable(err error) bool {
	var ee *errors.EnhancedError
	if !errors.As(err, &ee) {
		return false
	}
	if code, ok := ee.Context["status_code"].(int); ok {
		return code >= 500 || code == http.StatusTooManyRequests
	}
	return ee.Category == errors.CategoryNetwork
}

// ErrorText reduces an error body to one short line of plain text
func ErrorText(contentType string, body []byte) string {
	text := string(body)
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil && mediaType == "text/html" {
		text = html2text.HTML2Text(text)
	}
	text = strings.Join(strings.Fields(text), " ")
	if len(text) > maxErrorText {
		text = text[:maxErrorText] + "..."
	}
	return text
}

func statusCategory(code int) errors.ErrorCategory {
	switch code {
	case http.StatusNotFound:
		return errors.CategoryNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return errors.CategoryConfiguration
	default:
		return errors.CategoryHTTP
	}
}
