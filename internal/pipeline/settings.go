package pipeline

import (
	"github.com/shirou/gopsutil/v3/cpu"

	"github.com/tphakala/uvotredux/internal/archive"
	"github.com/tphakala/uvotredux/internal/conf"
	"github.com/tphakala/uvotredux/internal/ledger"
	"github.com/tphakala/uvotredux/internal/logger"
	"github.com/tphakala/uvotredux/internal/notify"
	"github.com/tphakala/uvotredux/internal/observability"
	"github.com/tphakala/uvotredux/internal/observability/metrics"
	"github.com/tphakala/uvotredux/internal/region"
	"github.com/tphakala/uvotredux/internal/tns"
	"github.com/tphakala/uvotredux/internal/toolrunner"
	"github.com/tphakala/uvotredux/internal/uvot"
	"github.com/tphakala/uvotredux/internal/xrt"
)

// FromSettings wires a Pipeline from loaded settings. m may be nil when
// metrics are disabled. The returned close function releases the ledger.
func FromSettings(settings *conf.Settings, m *observability.Metrics) (*Pipeline, func() error, error) {
	var recorder metrics.Recorder = metrics.NewNoOpRecorder()
	var batch BatchMetrics
	runner := NewRunner(settings)
	if m != nil {
		recorder = m.Pipeline
		batch = m.Pipeline
		runner.Observer = m.Pipeline
	}

	store, err := ledger.Open(ledger.ConfigFromSettings(settings))
	if err != nil {
		return nil, nil, err
	}

	deps := Deps{
		Runner:     runner,
		Downloader: archive.NewClient(ArchiveConfig(settings), recorder),
		Resolver:   tns.NewClient(TNSConfig(settings), recorder),
		Ledger:     store,
		Notifier:   notify.FromSettings(&settings.Notify, recorder),
		Recorder:   recorder,
		Batch:      batch,
	}
	return New(deps, OptionsFromSettings(settings)), store.Close, nil
}

// NewRunner returns an exec runner resolving the configured tool paths
func NewRunner(settings *conf.Settings) *toolrunner.ExecRunner {
	return toolrunner.NewExecRunner(map[string]string{
		uvot.DefaultImSumTool:  settings.Tools.UvotImSum,
		uvot.DefaultSourceTool: settings.Tools.UvotSource,
		xrt.DefaultTool:        settings.Tools.XrtPipeline,
	}, settings.Tools.Timeout)
}

// OptionsFromSettings maps the reduce, region and xrt sections to Options
func OptionsFromSettings(settings *conf.Settings) Options {
	return Options{
		DataDir:      conf.ExpandHome(settings.Main.DataDir),
		SkipDownload: !settings.Reduce.Download,
		Overwrite:    settings.Reduce.Overwrite,
		UseTNSCache:  settings.TNS.UseCache,
		XRT:          settings.Reduce.XRT,
		XRTTool:      xrt.DefaultTool,
		Regions: region.Options{
			SourceName:       settings.Regions.Source,
			BackgroundName:   settings.Regions.Background,
			SourceRadius:     settings.Regions.SourceRadius,
			BackgroundRadius: settings.Regions.BackgroundRadius,
			BackgroundOffset: settings.Regions.BackgroundOffset,
			BackgroundPA:     settings.Regions.BackgroundPA,
		},
		Reduce: uvot.Options{
			Workers:   Workers(settings.Reduce.Workers),
			SkyPortal: settings.Reduce.SkyPortal,
		},
	}
}

// Workers returns configured unless it is 0, which picks the physical core count
func Workers(configured int) int {
	if configured != 0 {
		return configured
	}
	cores, err := cpu.Counts(false)
	if err != nil || cores < 1 {
		GetLogger().Debug("Could not count CPU cores, reducing sequentially", logger.Error(err))
		return 1
	}
	return cores
}

// TNSConfig maps the tns section to a client configuration
func TNSConfig(settings *conf.Settings) tns.Config {
	cfg := tns.DefaultConfig()
	cfg.BaseURL = settings.TNS.BaseURL
	cfg.Timeout = settings.TNS.Timeout
	cfg.RateLimit = settings.TNS.RateLimit
	cfg.Retries = settings.TNS.Retries
	cfg.CacheTTL = settings.TNS.CacheTTL
	return cfg
}

// ArchiveConfig maps the archive section to a client configuration
func ArchiveConfig(settings *conf.Settings) archive.Config {
	cfg := archive.DefaultConfig()
	cfg.TapURL = settings.Archive.TapURL
	cfg.DataURL = settings.Archive.DataURL
	cfg.Radius = settings.Archive.Radius
	cfg.Timeout = settings.Archive.Timeout
	cfg.RateLimit = settings.Archive.RateLimit
	cfg.Concurrency = settings.Archive.Concurrency
	cfg.MinFreeGB = settings.Archive.MinFreeGB
	return cfg
}
