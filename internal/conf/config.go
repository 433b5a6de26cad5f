// Package conf loads uvotredux settings from config.yaml, environment variables
// and command line flags.
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/uvotredux/internal/errors"
	"github.com/tphakala/uvotredux/internal/logger"
)

// MainSettings contains the output location and debug switch
type MainSettings struct {
	DataDir string `yaml:"datadir"` // root for per-target output directories
}

// RegionSettings controls the source and background region files
type RegionSettings struct {
	Source           string  `yaml:"source"`           // source region file name
	Background       string  `yaml:"background"`       // background region file name
	SourceRadius     float64 `yaml:"sourceradius"`     // arcseconds
	BackgroundRadius float64 `yaml:"backgroundradius"` // arcseconds
	BackgroundOffset float64 `yaml:"backgroundoffset"` // arcseconds from target
	BackgroundPA     float64 `yaml:"backgroundpa"`     // position angle, degrees east of north
}

// ReduceSettings controls the UVOT reduction batch
type ReduceSettings struct {
	Overwrite bool `yaml:"overwrite"` // recreate existing stage outputs
	Workers   int  `yaml:"workers"`   // observations reduced concurrently, 0 picks from CPU count
	SkyPortal bool `yaml:"skyportal"` // write uvot_skyportal.csv
	Download  bool `yaml:"download"`  // fetch observations before reducing
	XRT       bool `yaml:"xrt"`       // run xrtpipeline after the UVOT batch
}

// ToolSettings locates the HEASoft executables
type ToolSettings struct {
	UvotImSum   string        `yaml:"uvotimsum"`
	UvotSource  string        `yaml:"uvotsource"`
	XrtPipeline string        `yaml:"xrtpipeline"`
	Timeout     time.Duration `yaml:"timeout"` // per invocation, 0 disables
}

// TNSSettings configures the Transient Name Server client
type TNSSettings struct {
	BaseURL   string        `yaml:"baseurl"`
	Timeout   time.Duration `yaml:"timeout"`
	RateLimit float64       `yaml:"ratelimit"` // requests per second
	Retries   int           `yaml:"retries"`
	CacheTTL  time.Duration `yaml:"cachettl"`
	UseCache  bool          `yaml:"usecache"` // reuse tns_info.json when present
}

// ArchiveSettings configures HEASARC queries and downloads
type ArchiveSettings struct {
	TapURL      string        `yaml:"tapurl"`
	DataURL     string        `yaml:"dataurl"`
	Radius      float64       `yaml:"radius"` // search cone, arcminutes
	Timeout     time.Duration `yaml:"timeout"`
	RateLimit   float64       `yaml:"ratelimit"`
	Concurrency int           `yaml:"concurrency"` // parallel file downloads per observation
	MinFreeGB   float64       `yaml:"minfreegb"`   // refuse to download below this much free space
}

// MySQLSettings contains MySQL connection parameters
type MySQLSettings struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// LedgerSettings configures the run ledger database
type LedgerSettings struct {
	Enabled bool          `yaml:"enabled"`
	Driver  string        `yaml:"driver"` // sqlite or mysql
	Path    string        `yaml:"path"`   // sqlite file, relative paths resolve under datadir
	MySQL   MySQLSettings `yaml:"mysql"`
}

// ShoutrrrSettings configures notification URLs
type ShoutrrrSettings struct {
	Enabled bool          `yaml:"enabled"`
	URLs    []string      `yaml:"urls"`
	Timeout time.Duration `yaml:"timeout"`
}

// MQTTSettings configures the MQTT batch summary sink
type MQTTSettings struct {
	Enabled  bool          `yaml:"enabled"`
	Broker   string        `yaml:"broker"`
	Topic    string        `yaml:"topic"`
	ClientID string        `yaml:"clientid"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	Timeout  time.Duration `yaml:"timeout"`
}

// NotifySettings groups the notification sinks
type NotifySettings struct {
	Shoutrrr ShoutrrrSettings `yaml:"shoutrrr"`
	MQTT     MQTTSettings     `yaml:"mqtt"`
}

// MetricsSettings toggles Prometheus metrics
type MetricsSettings struct {
	Enabled  bool   `yaml:"enabled"`
	TextFile string `yaml:"textfile"` // batch commands write the registry here for node_exporter
}

// APISettings configures the results HTTP server
type APISettings struct {
	Listen string `yaml:"listen"`
}

// SentrySettings configures optional error telemetry
type SentrySettings struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

// Settings contains all configuration options
type Settings struct {
	Debug bool `yaml:"debug"`

	Main    MainSettings         `yaml:"main"`
	Logging logger.LoggingConfig `yaml:"logging"`
	Regions RegionSettings       `yaml:"regions"`
	Reduce  ReduceSettings       `yaml:"reduce"`
	Tools   ToolSettings         `yaml:"tools"`
	TNS     TNSSettings          `yaml:"tns"`
	Archive ArchiveSettings      `yaml:"archive"`
	Ledger  LedgerSettings       `yaml:"ledger"`
	Notify  NotifySettings       `yaml:"notify"`
	Metrics MetricsSettings      `yaml:"metrics"`
	API     APISettings          `yaml:"api"`
	Sentry  SentrySettings       `yaml:"sentry"`
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads config.yaml, environment variables and bound flags into Settings.
// A missing config file is not an error; defaults apply.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Component("configuration").
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal").
			Build()
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper registers defaults, environment bindings and config paths, then reads the file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	setDefaultConfig()

	if err := bindEnvVars(); err != nil {
		// Invalid environment values are reported, validation catches the rest
		GetLogger().Warn("Environment configuration issues", logger.Error(err))
	}

	err = viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			GetLogger().Debug("No config file found, using defaults",
				logger.Strings("search_paths", configPaths))
			return nil
		}
		return errors.New(err).
			Component("configuration").
			Category(errors.CategoryConfiguration).
			Context("operation", "read_config").
			Build()
	}

	GetLogger().Debug("Loaded config file", logger.String("path", viper.ConfigFileUsed()))
	return nil
}

// SyncViper re-reads viper into settings after command line flags were
// parsed, so bound flags take precedence over file and environment values.
func SyncViper(settings *Settings) error {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := viper.Unmarshal(settings); err != nil {
		return errors.New(err).
			Component("configuration").
			Category(errors.CategoryConfiguration).
			Context("operation", "sync_flags").
			Build()
	}
	if err := ValidateSettings(settings); err != nil {
		return fmt.Errorf("error validating settings: %w", err)
	}
	settingsInstance = settings
	return nil
}

// GetSettings returns the most recently loaded settings, nil before Load
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// DefaultSettings returns the settings produced by defaults alone
func DefaultSettings() (*Settings, error) {
	v := viper.New()
	for key, value := range defaultValues() {
		v.SetDefault(key, value)
	}
	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling defaults: %w", err)
	}
	return settings, nil
}

// SaveYAMLConfig writes settings to configPath. It overwrites the existing
// file, not preserving comments or structure.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return errors.New(err).
			Component("configuration").
			Category(errors.CategoryFileIO).
			FileContext(configPath).
			Build()
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName)

	if _, err := tempFile.Write(yamlData); err != nil {
		tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}
	return nil
}
