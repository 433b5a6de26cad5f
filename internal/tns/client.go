package tns

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/patrickmn/go-cache"

	"github.com/tphakala/uvotredux/internal/errors"
	"github.com/tphakala/uvotredux/internal/httpclient"
	"github.com/tphakala/uvotredux/internal/logger"
	"github.com/tphakala/uvotredux/internal/observability/metrics"
	"github.com/tphakala/uvotredux/internal/skycoord"
)

// Client queries the TNS search page in CSV format
type Client struct {
	config     Config
	httpClient *httpclient.Client
	cache      *cache.Cache
	recorder   metrics.Recorder

	requests  atomic.Int64
	cacheHits atomic.Int64
}

// NewClient creates a TNS client. Zero config values fall back to DefaultConfig.
func NewClient(config Config, recorder metrics.Recorder) *Client {
	defaults := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.Retries <= 0 {
		config.Retries = 1
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = defaults.RetryDelay
	}
	if config.CacheTTL == 0 {
		config.CacheTTL = defaults.CacheTTL
	}
	if config.UserAgent == "" {
		config.UserAgent = defaults.UserAgent
	}
	if recorder == nil {
		recorder = metrics.NewNoOpRecorder()
	}

	GetLogger().Debug("TNS client initialized",
		logger.String("base_url", config.BaseURL),
		logger.Duration("timeout", config.Timeout),
		logger.Float64("rate_limit", config.RateLimit))

	c := &Client{
		config:   config,
		cache:    cache.New(config.CacheTTL, 2*config.CacheTTL),
		recorder: recorder,
		httpClient: httpclient.New(httpclient.Config{
			Service:    "TNS",
			Component:  "tns",
			Timeout:    config.Timeout,
			UserAgent:  config.UserAgent,
			RateLimit:  config.RateLimit,
			Retries:    config.Retries,
			RetryDelay: config.RetryDelay,
		}),
	}
	c.httpClient.SetAfterResponseHook(func(*http.Request, *http.Response, error) { c.requests.Add(1) })
	return c
}

// StripName removes the prefix before the first digit: "AT2020mni" becomes "2020mni"
func StripName(name string) (string, error) {
	idx := strings.IndexFunc(name, unicode.IsDigit)
	if idx < 0 {
		return "", errors.Newf("transient name %q contains no digits", name).
			Component("tns").
			Category(errors.CategoryValidation).
			Build()
	}
	return strings.TrimSpace(name[idx:]), nil
}

// Lookup searches TNS by name and then by internal survey name and returns
// the first row. The result is cached in memory.
func (c *Client) Lookup(ctx context.Context, name string) (*Info, error) {
	log := GetLogger().WithContext(ctx).With(logger.String("name", name))
	start := time.Now()

	stripped, err := StripName(name)
	if err != nil {
		return nil, err
	}

	if cached, found := c.cache.Get(stripped); found {
		if info, ok := cached.(*Info); ok {
			c.cacheHits.Add(1)
			log.Debug("TNS cache hit")
			return info, nil
		}
	}

	info, err := c.lookup(ctx, stripped)
	c.recorder.RecordDuration(metrics.OpTNSLookup, time.Since(start).Seconds())
	if err != nil {
		errorType := metrics.ErrorTypeNetwork
		if errors.Is(err, ErrNotFound) {
			errorType = metrics.ErrorTypeNotFound
			log.Error("No TNS data found")
		}
		c.recorder.RecordError(metrics.OpTNSLookup, errorType)
		return nil, err
	}

	c.cache.Set(stripped, info, cache.DefaultExpiration)
	c.recorder.RecordOperation(metrics.OpTNSLookup, metrics.StatusSuccess)
	log.Info("Found TNS entry",
		logger.String("tns_name", info.Name()),
		logger.Float64("ra", info.RA),
		logger.Float64("dec", info.Dec))
	return info, nil
}

func (c *Client) lookup(ctx context.Context, stripped string) (*Info, error) {
	for _, param := range []string{"name", "internal_name"} {
		rows, err := c.search(ctx, param, stripped)
		if err != nil {
			return nil, err
		}
		if len(rows) < 2 {
			GetLogger().Debug("TNS search returned no rows", logger.String(param, stripped))
			continue
		}
		return newInfo(rows[0], rows[1])
	}
	return nil, errors.New(fmt.Errorf("%w for %s", ErrNotFound, stripped)).
		Component("tns").
		Category(errors.CategoryNotFound).
		Context("name", stripped).
		Build()
}

func newInfo(header, row []string) (*Info, error) {
	info := &Info{Columns: header, Fields: make(map[string]string, len(header))}
	for i, col := range header {
		if i < len(row) {
			info.Fields[col] = row[i]
		}
	}

	var err error
	if info.RA, err = skycoord.ParseRA(info.Fields["RA"]); err != nil {
		return nil, lookupError(fmt.Errorf("invalid RA in TNS result: %w", err))
	}
	if info.Dec, err = skycoord.ParseDec(info.Fields["DEC"]); err != nil {
		return nil, lookupError(fmt.Errorf("invalid DEC in TNS result: %w", err))
	}
	return info, nil
}

// search runs one CSV search and returns the header plus data rows
func (c *Client) search(ctx context.Context, param, value string) ([][]string, error) {
	searchURL := fmt.Sprintf("%s/search?%s=%s&include_frb=0&format=csv&page=0",
		c.config.BaseURL, param, url.QueryEscape(value))

	resp, err := c.httpClient.Get(ctx, searchURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	rows, err := csv.NewReader(resp.Body).ReadAll()
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to parse TNS CSV: %w", err)).
			Component("tns").
			Category(errors.CategoryFileParsing).
			Context("url", searchURL).
			Build()
	}
	return rows, nil
}

func lookupError(err error) error {
	return errors.New(err).
		Component("tns").
		Category(errors.CategoryLookup).
		Build()
}

// Stats reports request and cache counters
type Stats struct {
	Requests  int64
	CacheHits int64
	Cached    int
}

// Stats returns the client counters
func (c *Client) Stats() Stats {
	return Stats{
		Requests:  c.requests.Load(),
		CacheHits: c.cacheHits.Load(),
		Cached:    c.cache.ItemCount(),
	}
}

// ClearCache drops every in-memory result
func (c *Client) ClearCache() {
	c.cache.Flush()
}
