package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/alpine-cloud-images/cmd/alpine-cloud-images/handlers"
)

// Cache returns the command that collects the image cache used by prune.
func Cache() *cobra.Command {
	var cloud, region, output string

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Collect a cache of the published images",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Cache(cmd.Context(), cloud, region, output)
		},
	}

	cmd.Flags().StringVar(&cloud, "cloud", "aws", "Cloud provider")
	cmd.Flags().StringVar(&region, "region", "", "Specific region, instead of all regions")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "Output file, - for stdout")

	return cmd
}
