package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Default HEASARC and TNS endpoints
const (
	DefaultTNSURL     = "https://www.wis-tns.org"
	DefaultTapURL     = "https://heasarc.gsfc.nasa.gov/xamin/vo/tap/sync"
	DefaultArchiveURL = "https://heasarc.gsfc.nasa.gov/FTP/swift/data/obs"
)

// defaultValues lists every default keyed by its viper key
func defaultValues() map[string]any {
	return map[string]any{
		"debug": false,

		"main.datadir": defaultDataDir(),

		"logging.default_level":       "info",
		"logging.timezone":            "Local",
		"logging.console.enabled":     true,
		"logging.console.level":       "info",
		"logging.file_output.enabled": false,
		"logging.file_output.path":    "logs/uvotredux.log",
		"logging.file_output.level":   "debug",

		"regions.source":           "src.reg",
		"regions.background":       "bkg.reg",
		"regions.sourceradius":     3.0,
		"regions.backgroundradius": 10.0,
		"regions.backgroundoffset": 50.0,
		"regions.backgroundpa":     45.0,

		"reduce.overwrite": false,
		"reduce.workers":   1,
		"reduce.skyportal": false,
		"reduce.download":  true,
		"reduce.xrt":       false,

		"tools.uvotimsum":   "uvotimsum",
		"tools.uvotsource":  "uvotsource",
		"tools.xrtpipeline": "xrtpipeline",
		"tools.timeout":     2 * time.Hour,

		"tns.baseurl":   DefaultTNSURL,
		"tns.timeout":   10 * time.Second,
		"tns.ratelimit": 1.0,
		"tns.retries":   3,
		"tns.cachettl":  6 * time.Hour,
		"tns.usecache":  true,

		"archive.tapurl":      DefaultTapURL,
		"archive.dataurl":     DefaultArchiveURL,
		"archive.radius":      5.0,
		"archive.timeout":     5 * time.Minute,
		"archive.ratelimit":   4.0,
		"archive.concurrency": 4,
		"archive.minfreegb":   2.0,

		"ledger.enabled":        true,
		"ledger.driver":         "sqlite",
		"ledger.path":           "uvotredux.db",
		"ledger.mysql.host":     "localhost",
		"ledger.mysql.port":     3306,
		"ledger.mysql.database": "uvotredux",

		"notify.shoutrrr.enabled": false,
		"notify.shoutrrr.timeout": 10 * time.Second,
		"notify.mqtt.enabled":     false,
		"notify.mqtt.topic":       "uvotredux/batches",
		"notify.mqtt.clientid":    "uvotredux",
		"notify.mqtt.timeout":     10 * time.Second,

		"metrics.enabled":  true,
		"metrics.textfile": "",

		"api.listen": "127.0.0.1:8089",

		"sentry.enabled": false,
	}
}

// setDefaultConfig registers default values with the global viper instance
func setDefaultConfig() {
	for key, value := range defaultValues() {
		viper.SetDefault(key, value)
	}
}
