package commands

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/imamik/alpine-cloud-images/cmd/alpine-cloud-images/handlers"
)

// Build returns the command that moves images through a build step.
//
// The step is one of state, rollback, local, upload, import, publish or
// release. Every step also performs the steps before it that have not
// happened yet. The state step prints the plan without acting on it.
//
// Flags:
//
//	--only: Only images whose config key has all of these dimension keys
//	--skip: Skip images whose config key has any of these dimension keys
//	--revise: Bump the revision of images that were already released
//	--custom: Configuration overlays merged onto the config file
//	--clean: Resolve the image configs again from the config file
//	--parallel: Number of images worked on at once
func Build() *cobra.Command {
	var opts handlers.BuildOptions

	cmd := &cobra.Command{
		Use:       "build <step>",
		Short:     "Build, upload, import, publish or release images",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: handlers.BuildSteps,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Step = args[0]
			return handlers.Build(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Only, "only", nil, "Only images with all of these dimension keys")
	cmd.Flags().StringSliceVar(&opts.Skip, "skip", nil, "Skip images with any of these dimension keys")
	cmd.Flags().BoolVar(&opts.Revise, "revise", false, "Bump the revision of already released images")
	cmd.Flags().StringSliceVar(&opts.Custom, "custom", nil, "Configuration overlays, merged in order")
	cmd.Flags().BoolVar(&opts.Clean, "clean", false, "Resolve the image configs again from the config file")
	cmd.Flags().IntVar(&opts.Parallel, "parallel", 1, "Number of images worked on at once")
	cmd.Flags().StringVarP(&opts.ConfigFile, "config", "c", "", "Image configuration file (default from ALPINE_CLOUD_CONFIG)")
	cmd.Flags().StringVar(&opts.WorkDir, "work", "", "Work directory (default from ALPINE_CLOUD_WORK_DIR)")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "Write Prometheus metrics to this file")

	cmd.Long = "Steps: " + strings.Join(handlers.BuildSteps, ", ")
	return cmd
}
