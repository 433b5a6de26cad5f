package byname

import (
	"github.com/spf13/cobra"

	"github.com/tphakala/uvotredux/internal/conf"
	"github.com/tphakala/uvotredux/internal/errors"
	"github.com/tphakala/uvotredux/internal/pipeline"
)

// Command runs the full pipeline for a transient resolved through TNS
func Command(settings *conf.Settings) *cobra.Command {
	var (
		skipDownload bool
		withXRT      bool
		noCache      bool
	)

	cmd := &cobra.Command{
		Use:   "by-name NAME",
		Short: "Retrieve and reduce Swift data for a named transient",
		Long: `Resolve NAME through the Transient Name Server, create the source and
background regions, download the Swift observations around the position and
reduce every UVOT observation into uvot_results.csv and uvot_summary.csv.

Examples:
  uvotredux by-name SN2023ixf
  uvotredux by-name "AT 2024abc" --skip-download --xrt`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			settings.Reduce.Download = settings.Reduce.Download && !skipDownload
			settings.Reduce.XRT = settings.Reduce.XRT || withXRT
			settings.TNS.UseCache = settings.TNS.UseCache && !noCache

			session, err := pipeline.OpenSession(settings, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, session.Close()) }()

			_, err = session.ByName(cmd.Context(), args[0])
			return err
		},
	}

	cmd.Flags().BoolVar(&skipDownload, "skip-download", false, "Reduce the data already in the output directory")
	cmd.Flags().BoolVar(&withXRT, "xrt", false, "Also run xrtpipeline for each observation")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Query TNS even when tns_info.json exists")

	return cmd
}
