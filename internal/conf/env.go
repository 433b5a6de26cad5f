package conf

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Environment variables recognised by uvotredux
const (
	EnvDataDir   = "UVOTREDUX_DATA_DIR"
	EnvTNSURL    = "UVOTREDUX_TNS_URL"
	EnvWorkers   = "UVOTREDUX_WORKERS"
	EnvSentryDSN = "UVOTREDUX_SENTRY_DSN"
)

// envBinding maps an environment variable onto a viper key
type envBinding struct {
	ConfigKey string
	EnvVar    string
	Validate  func(string) error
}

func getEnvBindings() []envBinding {
	return []envBinding{
		{"main.datadir", EnvDataDir, validateEnvPath},
		{"tns.baseurl", EnvTNSURL, validateEnvURL},
		{"reduce.workers", EnvWorkers, validateEnvWorkers},
		{"sentry.dsn", EnvSentryDSN, validateEnvURL},
		{"tools.timeout", "UVOTREDUX_TOOL_TIMEOUT", nil},
		{"ledger.driver", "UVOTREDUX_LEDGER_DRIVER", validateEnvLedgerDriver},
		{"ledger.mysql.password", "UVOTREDUX_MYSQL_PASSWORD", nil},
		{"notify.mqtt.password", "UVOTREDUX_MQTT_PASSWORD", nil},
		{"logging.default_level", "UVOTREDUX_LOG_LEVEL", nil},
	}
}

// bindEnvVars binds environment variables and reports invalid values.
// Binding continues past invalid values so that validation reports them all.
func bindEnvVars() error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate == nil {
			continue
		}
		if envValue := os.Getenv(binding.EnvVar); envValue != "" {
			if err := binding.Validate(envValue); err != nil {
				warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, envValue, err))
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

func validateEnvPath(value string) error {
	if strings.ContainsRune(value, 0) {
		return fmt.Errorf("path contains NUL byte")
	}
	if filepath.Clean(value) == "" {
		return fmt.Errorf("empty path")
	}
	return nil
}

func validateEnvURL(value string) error {
	u, err := url.Parse(value)
	if err != nil {
		return err
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("must be an absolute URL")
	}
	return nil
}

func validateEnvWorkers(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("must be an integer")
	}
	if n < 0 {
		return fmt.Errorf("must not be negative")
	}
	return nil
}

func validateEnvLedgerDriver(value string) error {
	switch strings.ToLower(value) {
	case "sqlite", "mysql":
		return nil
	default:
		return fmt.Errorf("must be sqlite or mysql")
	}
}
