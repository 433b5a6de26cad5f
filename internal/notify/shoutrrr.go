package notify

import (
	"context"
	"io"
	"log"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/nicholas-fedor/shoutrrr"
	"github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/tphakala/uvotredux/internal/errors"
)

// serviceURLPattern matches service URLs which often embed tokens
var serviceURLPattern = regexp.MustCompile(`[a-zA-Z][a-zA-Z0-9+.-]*://[^\s"']+`)

// ShoutrrrSink sends one message to every configured service URL
type ShoutrrrSink struct {
	urls   []string
	sender *router.ServiceRouter
}

// NewShoutrrrSink validates urls and builds a shared sender
func NewShoutrrrSink(urls []string, timeout time.Duration) (*ShoutrrrSink, error) {
	if len(urls) == 0 {
		return nil, errors.Newf("at least one shoutrrr URL is required").
			Component("notify").
			Category(errors.CategoryConfiguration).
			Build()
	}
	sender, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		return nil, errors.New(redact(err)).
			Component("notify").
			Category(errors.CategoryConfiguration).
			Context("sink", "shoutrrr").
			Build()
	}
	if timeout > 0 {
		sender.Timeout = timeout
	}
	sender.SetLogger(log.New(io.Discard, "", 0))
	return &ShoutrrrSink{urls: slices.Clone(urls), sender: sender}, nil
}

// Name implements Sink
func (s *ShoutrrrSink) Name() string { return "shoutrrr" }

// Send implements Sink. The router applies its own timeout.
func (s *ShoutrrrSink) Send(_ context.Context, summary *BatchSummary) error {
	params := stypes.Params{}
	params.SetTitle(summary.Title())

	for _, err := range s.sender.Send(summary.Body(), &params) {
		if err != nil {
			return errors.New(redact(err)).
				Component("notify").
				Category(errors.CategoryIntegration).
				Context("sink", "shoutrrr").
				Build()
		}
	}
	return nil
}

// redact strips service URLs from err's message
func redact(err error) error {
	return errors.NewStd(serviceURLPattern.ReplaceAllStringFunc(err.Error(), func(u string) string {
		scheme, _, _ := strings.Cut(u, "://")
		return scheme + "://[redacted]"
	}))
}
