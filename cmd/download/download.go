package download

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/uvotredux/internal/conf"
	"github.com/tphakala/uvotredux/internal/errors"
	"github.com/tphakala/uvotredux/internal/pipeline"
	"github.com/tphakala/uvotredux/internal/skycoord"
)

// Command creates regions and downloads archive data without reducing it
func Command(settings *conf.Settings) *cobra.Command {
	var (
		name string
		ra   string
		dec  string
	)

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Create regions and download Swift observations for a target",
		Long: `Resolve the target, write its region files and download every Swift
observation within the archive search radius. Observations whose directory
already exists are skipped unless --overwrite is set.

Examples:
  uvotredux download --name SN2023ixf
  uvotredux download --ra 16:40:18.42 --dec=-26:55:33.1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if (name == "") == (ra == "" && dec == "") {
				return errors.Newf("specify either --name or both --ra and --dec").
					Component("cli").
					Category(errors.CategoryValidation).
					Build()
			}

			session, err := pipeline.OpenSession(settings, nil)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, session.Close()) }()

			target, err := resolveTarget(cmd.Context(), session.Pipeline, name, ra, dec)
			if err != nil {
				return err
			}
			result, err := session.Fetch(cmd.Context(), target)
			if err != nil {
				return err
			}
			if report := result.Download; report != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d observations found, %d downloaded, %d skipped in %s\n",
					result.Dir, report.Found, len(report.Downloaded), len(report.Skipped), result.Duration.Round(time.Millisecond))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Transient name resolved through TNS")
	cmd.Flags().StringVar(&ra, "ra", "", "Right ascension, degrees or hh:mm:ss")
	cmd.Flags().StringVar(&dec, "dec", "", "Declination, degrees or dd:mm:ss")

	return cmd
}

func resolveTarget(ctx context.Context, p *pipeline.Pipeline, name, ra, dec string) (pipeline.Target, error) {
	if name != "" {
		return p.Resolve(ctx, name)
	}
	raDeg, err := skycoord.ParseRA(ra)
	if err != nil {
		return pipeline.Target{}, err
	}
	decDeg, err := skycoord.ParseDec(dec)
	if err != nil {
		return pipeline.Target{}, err
	}
	return pipeline.Target{Name: skycoord.JName(raDeg, decDeg), RA: raDeg, Dec: decDeg}, nil
}
