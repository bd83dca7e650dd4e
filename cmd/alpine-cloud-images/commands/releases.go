package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/alpine-cloud-images/cmd/alpine-cloud-images/handlers"
)

// Releases returns the command that writes release data for the
// alpine-mksite downloads page.
func Releases() *cobra.Command {
	var configFile, workDir, output string

	cmd := &cobra.Command{
		Use:   "releases",
		Short: "Generate release data for released images",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Releases(cmd.Context(), configFile, workDir, output)
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Image configuration file (default from ALPINE_CLOUD_CONFIG)")
	cmd.Flags().StringVar(&workDir, "work", "", "Work directory (default from ALPINE_CLOUD_WORK_DIR)")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "Output file, - for stdout")

	return cmd
}
