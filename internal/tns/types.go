// Package tns resolves transient names through the Transient Name Server
package tns

import (
	"time"

	"github.com/tphakala/uvotredux/internal/errors"
)

// DefaultBaseURL is the public TNS site
const DefaultBaseURL = "https://www.wis-tns.org"

// CacheFile is the name of the per-target TNS cache
const CacheFile = "tns_info.json"

// browserUserAgent is sent with every request, TNS rejects search queries
// without a browser-like agent
const browserUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_10_1) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/39.0.2171.95 Safari/537.36"

// ErrNotFound means neither the name nor the internal name search matched
var ErrNotFound = errors.NewStd("no TNS entry found")

// Config holds TNS client settings
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	RateLimit  float64 // requests per second, 0 disables limiting
	Retries    int
	RetryDelay time.Duration // multiplied by the attempt number
	CacheTTL   time.Duration
	UserAgent  string
}

// DefaultConfig returns the default TNS client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL:    DefaultBaseURL,
		Timeout:    10 * time.Second,
		RateLimit:  1,
		Retries:    3,
		RetryDelay: 500 * time.Millisecond,
		CacheTTL:   6 * time.Hour,
		UserAgent:  browserUserAgent,
	}
}

// Info is the first row of a TNS search plus the position in degrees
type Info struct {
	Columns []string          // CSV header order
	Fields  map[string]string // raw values keyed by column
	RA      float64           // degrees
	Dec     float64           // degrees
}

// Name returns the TNS designation without prefix, e.g. "2020mni"
func (i *Info) Name() string {
	return i.Fields["Name"]
}

// Field returns a raw column value
func (i *Info) Field(column string) string {
	return i.Fields[column]
}
