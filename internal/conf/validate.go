package conf

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/tphakala/uvotredux/internal/logger"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	validators := []func(*Settings) error{
		validateLoggingSettings,
		validateRegionSettings,
		validateReduceSettings,
		validateToolSettings,
		validateTNSSettings,
		validateArchiveSettings,
		validateLedgerSettings,
		validateNotifySettings,
		validateSentrySettings,
	}
	for _, validate := range validators {
		if err := validate(settings); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateLoggingSettings(s *Settings) error {
	if _, err := logger.ParseLevel(s.Logging.DefaultLevel); err != nil {
		return fmt.Errorf("logging.default_level: %w", err)
	}
	for module, level := range s.Logging.ModuleLevels {
		if _, err := logger.ParseLevel(level); err != nil {
			return fmt.Errorf("logging.module_levels.%s: %w", module, err)
		}
	}
	return nil
}

func validateRegionSettings(s *Settings) error {
	r := &s.Regions
	var errs []string
	if r.Source == "" || r.Background == "" {
		errs = append(errs, "region file names must not be empty")
	}
	if r.Source == r.Background {
		errs = append(errs, "source and background region files must differ")
	}
	if r.SourceRadius <= 0 || r.BackgroundRadius <= 0 {
		errs = append(errs, "region radii must be positive")
	}
	if r.BackgroundOffset < 0 {
		errs = append(errs, "background offset must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("regions: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateReduceSettings(s *Settings) error {
	if s.Reduce.Workers < 0 {
		return fmt.Errorf("reduce.workers must not be negative, got %d", s.Reduce.Workers)
	}
	return nil
}

func validateToolSettings(s *Settings) error {
	if s.Tools.Timeout < 0 {
		return fmt.Errorf("tools.timeout must not be negative")
	}
	if s.Tools.UvotImSum == "" || s.Tools.UvotSource == "" || s.Tools.XrtPipeline == "" {
		return fmt.Errorf("tools: executable names must not be empty")
	}
	return nil
}

func validateTNSSettings(s *Settings) error {
	if err := validateAbsoluteURL(s.TNS.BaseURL); err != nil {
		return fmt.Errorf("tns.baseurl: %w", err)
	}
	if s.TNS.RateLimit <= 0 {
		return fmt.Errorf("tns.ratelimit must be positive")
	}
	if s.TNS.Retries < 0 {
		return fmt.Errorf("tns.retries must not be negative")
	}
	return nil
}

func validateArchiveSettings(s *Settings) error {
	a := &s.Archive
	if err := validateAbsoluteURL(a.TapURL); err != nil {
		return fmt.Errorf("archive.tapurl: %w", err)
	}
	if err := validateAbsoluteURL(a.DataURL); err != nil {
		return fmt.Errorf("archive.dataurl: %w", err)
	}
	if a.Radius <= 0 {
		return fmt.Errorf("archive.radius must be positive")
	}
	if a.Concurrency < 1 {
		return fmt.Errorf("archive.concurrency must be at least 1")
	}
	if a.MinFreeGB < 0 {
		return fmt.Errorf("archive.minfreegb must not be negative")
	}
	return nil
}

func validateLedgerSettings(s *Settings) error {
	if !s.Ledger.Enabled {
		return nil
	}
	switch strings.ToLower(s.Ledger.Driver) {
	case "sqlite":
		if s.Ledger.Path == "" {
			return fmt.Errorf("ledger.path is required for sqlite")
		}
	case "mysql":
		m := &s.Ledger.MySQL
		if m.Host == "" || m.Database == "" || m.Username == "" {
			return fmt.Errorf("ledger.mysql requires host, database and username")
		}
		if m.Port <= 0 || m.Port > 65535 {
			return fmt.Errorf("ledger.mysql.port out of range: %d", m.Port)
		}
	default:
		return fmt.Errorf("ledger.driver must be sqlite or mysql, got %q", s.Ledger.Driver)
	}
	return nil
}

func validateNotifySettings(s *Settings) error {
	if s.Notify.Shoutrrr.Enabled && len(s.Notify.Shoutrrr.URLs) == 0 {
		return fmt.Errorf("notify.shoutrrr is enabled but no urls are configured")
	}
	if s.Notify.MQTT.Enabled {
		if s.Notify.MQTT.Broker == "" {
			return fmt.Errorf("notify.mqtt.broker is required when mqtt is enabled")
		}
		if _, err := url.Parse(s.Notify.MQTT.Broker); err != nil {
			return fmt.Errorf("notify.mqtt.broker: %w", err)
		}
		if s.Notify.MQTT.Topic == "" {
			return fmt.Errorf("notify.mqtt.topic is required when mqtt is enabled")
		}
	}
	return nil
}

func validateSentrySettings(s *Settings) error {
	if s.Sentry.Enabled && s.Sentry.DSN == "" {
		return fmt.Errorf("sentry.dsn is required when sentry is enabled")
	}
	return nil
}

func validateAbsoluteURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}
