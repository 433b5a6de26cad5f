package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/uvotredux/internal/buildinfo"
)

// Command prints the build version
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the uvotredux version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), buildinfo.Current().String())
		},
	}
}
