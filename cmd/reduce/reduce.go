package reduce

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tphakala/uvotredux/internal/conf"
	"github.com/tphakala/uvotredux/internal/errors"
	"github.com/tphakala/uvotredux/internal/pipeline"
)

// Command reduces the observations of an existing batch directory
func Command(settings *conf.Settings) *cobra.Command {
	var (
		name       string
		source     string
		background string
		withXRT    bool
	)

	cmd := &cobra.Command{
		Use:   "reduce DIR",
		Short: "Reduce every UVOT observation of an existing batch directory",
		Long: `Run the image and photometry stages for every observation directory in
DIR and aggregate the results. The region files must already exist in DIR.
Nothing is downloaded.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			dir, err := batchDir(args[0])
			if err != nil {
				return err
			}
			if name == "" {
				name = filepath.Base(dir)
			}
			if source != "" {
				settings.Regions.Source = source
			}
			if background != "" {
				settings.Regions.Background = background
			}
			settings.Reduce.XRT = settings.Reduce.XRT || withXRT

			session, err := pipeline.OpenSession(settings, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, session.Close()) }()

			_, err = session.Reduce(cmd.Context(), name, dir)
			return err
		},
	}

	cmd.Flags().StringVarP(&source, "src", "s", "", "Source region file name inside DIR")
	cmd.Flags().StringVarP(&background, "bkg", "b", "", "Background region file name inside DIR")
	cmd.Flags().StringVar(&name, "name", "", "Target name recorded in the run ledger (default: DIR base name)")
	cmd.Flags().BoolVar(&withXRT, "xrt", false, "Also run xrtpipeline for each observation")

	return cmd
}

// batchDir resolves dir to an absolute path of an existing directory
func batchDir(dir string) (string, error) {
	abs, err := filepath.Abs(conf.ExpandHome(dir))
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", errors.New(err).
			Component("cli").
			Category(errors.CategoryFileIO).
			FileContext(abs).
			Build()
	}
	if !info.IsDir() {
		return "", errors.Newf("%s is not a directory", abs).
			Component("cli").
			Category(errors.CategoryValidation).
			Build()
	}
	return abs, nil
}
