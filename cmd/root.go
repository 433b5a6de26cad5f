package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/uvotredux/cmd/byname"
	"github.com/tphakala/uvotredux/cmd/byradec"
	"github.com/tphakala/uvotredux/cmd/download"
	"github.com/tphakala/uvotredux/cmd/parse"
	"github.com/tphakala/uvotredux/cmd/reduce"
	"github.com/tphakala/uvotredux/cmd/serve"
	"github.com/tphakala/uvotredux/cmd/version"
	"github.com/tphakala/uvotredux/cmd/xrt"
	"github.com/tphakala/uvotredux/internal/buildinfo"
	"github.com/tphakala/uvotredux/internal/conf"
	"github.com/tphakala/uvotredux/internal/errors"
	"github.com/tphakala/uvotredux/internal/logger"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "uvotredux",
		Short:         "Swift UVOT data retrieval and photometry reduction",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	if err := setupFlags(rootCmd, settings); err != nil {
		logger.Global().Module("main").Warn("Command line flags are not bound to settings", logger.Error(err))
	}

	versionCmd := version.Command()
	rootCmd.AddCommand(
		byname.Command(settings),
		byradec.Command(settings),
		reduce.Command(settings),
		parse.Command(settings),
		download.Command(settings),
		xrt.Command(settings),
		serve.Command(settings),
		versionCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// Flags are parsed now, sync so they take precedence over file and environment
		if err := conf.SyncViper(settings); err != nil {
			return err
		}
		if cmd.Name() == versionCmd.Name() {
			return nil
		}
		return initialize(settings)
	}

	return rootCmd
}

// initialize sets up logging and telemetry before a subcommand runs
func initialize(settings *conf.Settings) error {
	if settings.Debug {
		settings.Logging.DefaultLevel = string(logger.LogLevelDebug)
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = string(logger.LogLevelDebug)
		}
	}
	central, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	logger.SetGlobal(central)

	if settings.Sentry.Enabled {
		if err := errors.InitSentry(settings.Sentry.DSN, buildinfo.Current().Release()); err != nil {
			// Telemetry is optional, the reduction still runs
			central.Module("main").Warn("Failed to initialize Sentry", logger.Error(err))
		}
	}
	return nil
}

// setupFlags defines the global flags and binds them to their settings keys
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	flags := rootCmd.PersistentFlags()
	flags.BoolP("debug", "d", settings.Debug, "Enable debug output")
	flags.String("data-dir", settings.Main.DataDir, "Root of the per-target output directories (default ~/uvotredux_data)")
	flags.Bool("overwrite", settings.Reduce.Overwrite, "Recreate regions, downloads and stage outputs that already exist")
	flags.IntP("workers", "w", settings.Reduce.Workers, "Observations reduced in parallel, 0 uses one per CPU core")
	flags.Bool("skyportal", settings.Reduce.SkyPortal, "Also write the SkyPortal photometry export and print it to stdout")

	bindings := map[string]string{
		"debug":            "debug",
		"main.datadir":     "data-dir",
		"reduce.overwrite": "overwrite",
		"reduce.workers":   "workers",
		"reduce.skyportal": "skyportal",
	}
	for key, name := range bindings {
		if err := viper.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", name, err)
		}
	}
	return nil
}
