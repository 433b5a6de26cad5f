// Package archive finds Swift observations of a position in the HEASARC
// master catalogue and downloads their UVOT, XRT and auxiliary files.
package archive

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/tphakala/uvotredux/internal/httpclient"
	"github.com/tphakala/uvotredux/internal/observability/metrics"
)

// HEASARC endpoints
const (
	DefaultTapURL  = "https://heasarc.gsfc.nasa.gov/xamin/vo/tap/sync"
	DefaultDataURL = "https://heasarc.gsfc.nasa.gov/FTP/swift/data/obs"
)

// Config holds archive client settings
type Config struct {
	TapURL      string
	DataURL     string
	Radius      float64 // search cone, arcminutes
	Timeout     time.Duration
	RateLimit   float64 // requests per second, 0 disables limiting
	Retries     int
	RetryDelay  time.Duration
	Concurrency int     // parallel file downloads per observation
	MinFreeGB   float64 // Download refuses to start below this
}

// DefaultConfig returns the default archive configuration
func DefaultConfig() Config {
	return Config{
		TapURL:      DefaultTapURL,
		DataURL:     DefaultDataURL,
		Radius:      5,
		Timeout:     5 * time.Minute,
		RateLimit:   4,
		Retries:     3,
		RetryDelay:  time.Second,
		Concurrency: 4,
		MinFreeGB:   2,
	}
}

// Client talks to the HEASARC TAP service and data tree
type Client struct {
	config     Config
	httpClient *httpclient.Client
	recorder   metrics.Recorder
}

// NewClient creates an archive client. Zero config values fall back to DefaultConfig.
func NewClient(config Config, recorder metrics.Recorder) *Client {
	defaults := DefaultConfig()
	if config.TapURL == "" {
		config.TapURL = defaults.TapURL
	}
	if config.DataURL == "" {
		config.DataURL = defaults.DataURL
	}
	config.DataURL = strings.TrimRight(config.DataURL, "/")
	if config.Radius <= 0 {
		config.Radius = defaults.Radius
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.Retries <= 0 {
		config.Retries = 1
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = defaults.RetryDelay
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if recorder == nil {
		recorder = metrics.NewNoOpRecorder()
	}

	return &Client{
		config:   config,
		recorder: recorder,
		httpClient: httpclient.New(httpclient.Config{
			Service:    "HEASARC",
			Component:  "archive",
			Timeout:    config.Timeout,
			RateLimit:  config.RateLimit,
			Burst:      config.Concurrency,
			Retries:    config.Retries,
			RetryDelay: config.RetryDelay,
		}),
	}
}

// get performs a rate limited GET with retries. The caller closes the body.
func (c *Client) get(ctx context.Context, reqURL string) (*http.Response, error) {
	return c.httpClient.Get(ctx, reqURL)
}
