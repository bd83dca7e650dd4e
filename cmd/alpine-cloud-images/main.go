// Package main is the entry point for the alpine-cloud-images CLI.
//
// alpine-cloud-images builds Alpine Linux virtual machine images for several
// clouds from a layered configuration and moves each image through the
// local, upload, import, publish and release steps.
//
// For detailed usage information, run:
//
//	alpine-cloud-images --help
package main

import (
	"fmt"
	"os"

	"github.com/imamik/alpine-cloud-images/cmd/alpine-cloud-images/commands"
)

// Version information set by goreleaser at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)
	if err := commands.Root().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
