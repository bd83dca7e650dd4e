package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/alpine-cloud-images/cmd/alpine-cloud-images/handlers"
)

// Notes returns the command that checks a notes file.
func Notes() *cobra.Command {
	return &cobra.Command{
		Use:   "notes <file>",
		Short: "Check the structure of a notes file",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return handlers.Notes(args[0])
		},
	}
}
