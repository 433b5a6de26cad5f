package pipeline

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tphakala/uvotredux/internal/conf"
	"github.com/tphakala/uvotredux/internal/errors"
	"github.com/tphakala/uvotredux/internal/logger"
	"github.com/tphakala/uvotredux/internal/observability"
)

// Session is a pipeline opened for one command invocation together with
// its metrics registry
type Session struct {
	*Pipeline
	Metrics *observability.Metrics // nil when metrics are disabled

	textFile    string
	closeLedger func() error
}

// OpenSession creates metrics when enabled and wires a Pipeline from settings.
// When the SkyPortal export is enabled a copy of it is written to stdout.
func OpenSession(settings *conf.Settings, stdout io.Writer) (*Session, error) {
	var m *observability.Metrics
	if settings.Metrics.Enabled {
		var err error
		if m, err = observability.NewMetrics(); err != nil {
			return nil, err
		}
	}

	p, closeLedger, err := FromSettings(settings, m)
	if err != nil {
		return nil, err
	}
	if settings.Reduce.SkyPortal && stdout != nil {
		p.opts.Reduce.SkyPortalWriter = stdout
	}
	return &Session{
		Pipeline:    p,
		Metrics:     m,
		textFile:    settings.Metrics.TextFile,
		closeLedger: closeLedger,
	}, nil
}

// Close writes the metrics text file when configured and closes the ledger
func (s *Session) Close() error {
	var errs []error
	if s.Metrics != nil && s.textFile != "" {
		if err := prometheus.WriteToTextfile(s.textFile, s.Metrics.Registry()); err != nil {
			errs = append(errs, errors.New(err).
				Component("pipeline").
				Category(errors.CategoryFileIO).
				Context("operation", "write_metrics_textfile").
				FileContext(s.textFile).
				Build())
		} else {
			GetLogger().Debug("Wrote metrics text file", logger.String("path", s.textFile))
		}
	}
	if s.closeLedger != nil {
		if err := s.closeLedger(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
