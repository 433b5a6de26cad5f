package xrt

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tphakala/uvotredux/internal/conf"
	"github.com/tphakala/uvotredux/internal/errors"
	"github.com/tphakala/uvotredux/internal/pipeline"
)

// Command runs xrtpipeline over a batch directory
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "xrt DIR",
		Short: "Run xrtpipeline for every observation of a batch directory",
		Long: `Run xrtpipeline at the source region position for every observation in
DIR that has XRT event data. Observations without xrt/event are skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			dir, err := filepath.Abs(conf.ExpandHome(args[0]))
			if err != nil {
				return err
			}

			session, err := pipeline.OpenSession(settings, nil)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, session.Close()) }()

			report, err := session.ReduceXRT(cmd.Context(), dir)
			if err != nil {
				return err
			}
			if failed := report.Failed(); failed > 0 {
				return errors.Newf("xrtpipeline failed for %d of %d observations", failed, len(report.Outcomes)).
					Component("cli").
					Category(errors.CategoryCommandExecution).
					Build()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d observations processed\n", dir, len(report.Outcomes))
			return nil
		},
	}
	return cmd
}
