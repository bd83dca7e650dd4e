package handlers

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/imamik/alpine-cloud-images/internal/config"
	"github.com/imamik/alpine-cloud-images/internal/inventory"
	"github.com/imamik/alpine-cloud-images/internal/metrics"
	"github.com/imamik/alpine-cloud-images/internal/prune"
	"github.com/imamik/alpine-cloud-images/internal/ui"
	"github.com/imamik/alpine-cloud-images/internal/util/logx"
)

// ImageInventory lists and removes a cloud's images.
type ImageInventory interface {
	inventory.Source
	prune.Remover
}

// newInventory returns the image inventory of cloud. Only AWS keeps an
// inventory of launchable images per region.
var newInventory = func(s *config.Settings, t *config.Timeouts, cloud string) (ImageInventory, error) {
	if cloud != "aws" {
		return nil, fmt.Errorf("cloud %q has no image inventory", cloud)
	}
	return newAWS(s, t, 1), nil
}

// Cache lists the cloud's images in every region, or only in region, and
// writes the image cache to output. An output of "-" is stdout.
func Cache(ctx context.Context, cloud, region, output string) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}
	src, err := newInventory(s, loadTimeouts(), cloud)
	if err != nil {
		return err
	}

	cache, err := inventory.Collect(ctx, src, region, time.Now())
	if err != nil {
		return err
	}
	return writeOutput(output, cache.Write)
}

// PruneOptions are the command line options of the prune command.
type PruneOptions struct {
	Cloud     string
	CacheFile string
	Region    string
	Selection prune.Selection
	// Really removes the selected images after confirmation; Yes skips
	// the confirmation.
	Really bool
	Yes    bool
}

// Prune classifies the images of an image cache and, when asked to,
// deregisters the selected ones and deletes their snapshots.
func Prune(ctx context.Context, opts PruneOptions) error {
	f, err := os.Open(opts.CacheFile)
	if err != nil {
		return fmt.Errorf("failed to open image cache: %w", err)
	}
	cache, err := inventory.Read(f)
	_ = f.Close()
	if err != nil {
		return err
	}

	var regions []string
	if opts.Region != "" {
		if _, ok := cache[opts.Region]; !ok {
			return fmt.Errorf("invalid region: %s", opts.Region)
		}
		regions = []string{opts.Region}
	}

	plan := prune.NewPlan(cache, regions, opts.Selection)
	ui.NewPrinter(stdout).PruneSummary(plan)

	if opts.Really && !opts.Yes {
		logx.Warnf("Please confirm you wish to actually prune these images...")
		ok, err := ui.Confirm(ctx, stdin, stdout, fmt.Sprintf("Prune %d images?", len(plan.Removals)))
		if err != nil {
			return err
		}
		opts.Really = ok
	}
	if !opts.Really {
		logx.Warnf("Not really pruning any images.")
		return nil
	}

	s, err := loadSettings()
	if err != nil {
		return err
	}
	remover, err := newInventory(s, loadTimeouts(), opts.Cloud)
	if err != nil {
		return err
	}

	recorder := metrics.New()
	failed := plan.Execute(ctx, remover, func(rm prune.Removal, err error) {
		recorder.Pruned(rm.Region, rm.Reason, err)
	})
	if err := recorder.WriteFile(s.MetricsFile, time.Now()); err != nil {
		logx.Warnf("failed to write metrics: %v", err)
	}
	if failed > 0 {
		return fmt.Errorf("failed to prune %d of %d images", failed, len(plan.Removals))
	}
	log.Printf("Pruned %d images", len(plan.Removals))
	return nil
}

func writeOutput(path string, write func(io.Writer) error) error {
	if path == "" || path == "-" {
		return write(stdout)
	}
	f, err := os.Create(path) // #nosec G304 - path from the command line
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
