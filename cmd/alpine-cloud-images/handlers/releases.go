package handlers

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/imamik/alpine-cloud-images/internal/image"
	"github.com/imamik/alpine-cloud-images/internal/manager"
	"github.com/imamik/alpine-cloud-images/internal/notes"
	"github.com/imamik/alpine-cloud-images/internal/releases"
)

// Releases refreshes the state of the non-edge images and writes the
// release data of the released ones to output. An output of "-" is stdout.
func Releases(ctx context.Context, configFile, workDir, output string) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}
	if configFile != "" {
		s.ConfigFile = configFile
	}
	if workDir != "" {
		s.WorkDir = workDir
	}

	env, err := newEnv(s)
	if err != nil {
		return err
	}
	mgr, err := newManager(ctx, manager.Options{
		ConfigFile: s.ConfigFile,
		ImagesYAML: s.ImagesYAML(),
		Releases:   newReleases(s),
		Env:        env,
	})
	if err != nil {
		return fmt.Errorf("failed to resolve image configs: %w", err)
	}
	if _, err := mgr.RefreshState(ctx, newRegistry(s, loadTimeouts(), 1), image.StepFinal, nil, []string{"edge"}, false); err != nil {
		return fmt.Errorf("failed to refresh state: %w", err)
	}

	log.Printf("Transforming image data")
	data := releases.Build(mgr.Configs())
	return writeOutput(output, data.Write)
}

// Notes checks the structure of a notes file and prints its items.
func Notes(path string) error {
	f, err := os.Open(path) // #nosec G304 - path from the command line
	if err != nil {
		return fmt.Errorf("failed to open notes: %w", err)
	}
	defer func() { _ = f.Close() }()

	n, err := notes.Parse(f)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	for _, item := range n.Items {
		fmt.Fprintf(stdout, "%4d  %s\n", item.Line, item)
	}
	fmt.Fprintf(stdout, "%s: %d items in %d lines\n", path, len(n.Items), n.Lines)
	return nil
}
