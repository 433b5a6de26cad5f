package byradec

import (
	"github.com/spf13/cobra"

	"github.com/tphakala/uvotredux/internal/conf"
	"github.com/tphakala/uvotredux/internal/errors"
	"github.com/tphakala/uvotredux/internal/pipeline"
	"github.com/tphakala/uvotredux/internal/skycoord"
)

// Command runs the full pipeline for a sky position
func Command(settings *conf.Settings) *cobra.Command {
	var (
		skipDownload bool
		withXRT      bool
	)

	cmd := &cobra.Command{
		Use:   "by-ra-dec RA DEC",
		Short: "Retrieve and reduce Swift data for a sky position",
		Long: `Reduce the Swift observations around RA and DEC (J2000). Both accept
decimal degrees or sexagesimal hh:mm:ss / dd:mm:ss. The output directory is
named after the J2000 designation of the position.

Negative declinations must follow "--" so they are not read as flags:
  uvotredux by-ra-dec -- 16:40:18.42 -26:55:33.1
  uvotredux by-ra-dec 250.0767 26.9259`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ra, err := skycoord.ParseRA(args[0])
			if err != nil {
				return err
			}
			dec, err := skycoord.ParseDec(args[1])
			if err != nil {
				return err
			}

			settings.Reduce.Download = settings.Reduce.Download && !skipDownload
			settings.Reduce.XRT = settings.Reduce.XRT || withXRT

			session, err := pipeline.OpenSession(settings, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, session.Close()) }()

			_, err = session.ByPosition(cmd.Context(), ra, dec)
			return err
		},
	}

	cmd.Flags().BoolVar(&skipDownload, "skip-download", false, "Reduce the data already in the output directory")
	cmd.Flags().BoolVar(&withXRT, "xrt", false, "Also run xrtpipeline for each observation")

	return cmd
}
