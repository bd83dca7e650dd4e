package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/alpine-cloud-images/cmd/alpine-cloud-images/handlers"
)

// Prune returns the command that removes images listed in an image cache.
//
// Without --really the command only prints what would be pruned.
func Prune() *cobra.Command {
	var opts handlers.PruneOptions

	cmd := &cobra.Command{
		Use:   "prune <cache-file>",
		Short: "Prune images listed in an image cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.CacheFile = args[0]
			return handlers.Prune(cmd.Context(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.Cloud, "cloud", "aws", "Cloud provider")
	f.StringVar(&opts.Region, "region", "", "Specific region, instead of all regions")
	f.BoolVar(&opts.Really, "really", false, "Really prune images")
	f.BoolVarP(&opts.Yes, "yes", "y", false, "Skip the confirmation prompt")

	f.BoolVar(&opts.Selection.Private, "private", false, "Prune private images")
	f.BoolVar(&opts.Selection.EdgeEOL, "edge-eol", false, "Prune edge images past end of life")
	f.BoolVar(&opts.Selection.RC, "rc", false, "Prune release candidate images")
	f.BoolVar(&opts.Selection.EOLUnusedNotLatest, "eol-unused-not-latest", false, "Prune unused images past end of life that are not the latest")
	f.BoolVar(&opts.Selection.EOLNotLatest, "eol-not-latest", false, "Prune images past end of life that are not the latest")
	f.BoolVar(&opts.Selection.UnusedNotLatest, "unused-not-latest", false, "Prune unused images that are not the latest")

	return cmd
}
