package serve

import (
	"github.com/spf13/cobra"

	"github.com/tphakala/uvotredux/internal/api"
	"github.com/tphakala/uvotredux/internal/buildinfo"
	"github.com/tphakala/uvotredux/internal/conf"
	"github.com/tphakala/uvotredux/internal/errors"
	"github.com/tphakala/uvotredux/internal/ledger"
	"github.com/tphakala/uvotredux/internal/observability"
)

// Command serves the run ledger, batch summaries and metrics over HTTP
func Command(settings *conf.Settings) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve run history and photometry summaries over HTTP",
		Long: `Start the read-only HTTP API:
  GET /api/v1/health
  GET /api/v1/runs
  GET /api/v1/runs/:id
  GET /api/v1/targets/:name/summary
  GET /metrics (when metrics are enabled)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			var opts []api.ServerOption
			if settings.Metrics.Enabled {
				m, err := observability.NewMetrics()
				if err != nil {
					return err
				}
				opts = append(opts, api.WithMetrics(m))
			}

			store, err := ledger.Open(ledger.ConfigFromSettings(settings))
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, store.Close()) }()

			config := api.ConfigFromSettings(settings)
			if listen != "" {
				config.Listen = listen
			}
			opts = append(opts, api.WithLedger(store), api.WithVersion(buildinfo.Current().GetVersion()))

			server, err := api.New(config, opts...)
			if err != nil {
				return err
			}
			return server.Start(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Listen address, overrides api.listen")

	return cmd
}
