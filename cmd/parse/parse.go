package parse

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tphakala/uvotredux/internal/conf"
	"github.com/tphakala/uvotredux/internal/photometry"
)

// Command aggregates the photometry outputs of a batch without running any tool
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse DIR",
		Short: "Aggregate the photometry outputs of a batch directory",
		Long: `Combine every <obs>/uvot/image/*.out photometry table under DIR into
uvot_results.csv and uvot_summary.csv. With --skyportal the SkyPortal export is
also written to uvot_skyportal.csv and printed to stdout.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := filepath.Abs(conf.ExpandHome(args[0]))
			if err != nil {
				return err
			}
			opts := photometry.AggregateOptions{SkyPortal: settings.Reduce.SkyPortal}
			if opts.SkyPortal {
				opts.SkyPortalWriter = cmd.OutOrStdout()
			}
			_, err = photometry.Aggregate(dir, opts)
			return err
		},
	}
	return cmd
}
