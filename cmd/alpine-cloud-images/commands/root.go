// Package commands defines the CLI command structure and flag bindings.
//
// Commands parse arguments and flags; execution is delegated to the
// handlers package.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/alpine-cloud-images/internal/util/logx"
)

// Root returns the root command for the alpine-cloud-images CLI.
func Root() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:           "alpine-cloud-images",
		Short:         "Build and publish Alpine Linux cloud images",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			logx.Setup(debug)
		},
	}
	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug output")

	cmd.AddCommand(Build())
	cmd.AddCommand(Releases())
	cmd.AddCommand(Cache())
	cmd.AddCommand(Prune())
	cmd.AddCommand(Notes())

	cmd.AddCommand(Version())
	cmd.AddCommand(Completion())

	return cmd
}
