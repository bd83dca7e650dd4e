package builder

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/imamik/alpine-cloud-images/internal/image"
	"github.com/imamik/alpine-cloud-images/internal/metrics"
	"github.com/imamik/alpine-cloud-images/internal/util/async"
	"github.com/imamik/alpine-cloud-images/internal/util/execx"
	"github.com/imamik/alpine-cloud-images/internal/util/logx"
	"github.com/imamik/alpine-cloud-images/internal/util/prerequisites"
)

// Clouds performs the cloud side of the import, publish and release actions.
type Clouds interface {
	image.Remote
	ImportImage(ctx context.Context, c *image.Config) error
	PublishImage(ctx context.Context, c *image.Config) error
	TagImage(ctx context.Context, c *image.Config) error
}

// Options configure a Builder.
type Options struct {
	Clouds Clouds
	Runner execx.Runner
	// PackerTemplate is the Packer template building the local images.
	PackerTemplate string
	// ImagesYAML is passed to Packer as the source of image settings.
	ImagesYAML string
	// Parallel is the number of images worked on at once.
	Parallel int
	Metrics  *metrics.Recorder
	// CheckTools verifies the local build tools; nil uses prerequisites.Check.
	CheckTools func([]prerequisites.Tool) *prerequisites.CheckResults
}

// Builder runs planned image actions.
type Builder struct {
	opts Options
}

// Result is the outcome for one image.
type Result struct {
	Key string
	Err error
}

// New creates a Builder.
func New(opts Options) *Builder {
	if opts.Runner == nil {
		opts.Runner = execx.ExecRunner{}
	}
	if opts.Parallel < 1 {
		opts.Parallel = 1
	}
	if opts.CheckTools == nil {
		opts.CheckTools = prerequisites.Check
	}
	return &Builder{opts: opts}
}

// Run performs the planned work of configs for step. Images are worked on
// in parallel; a failing image does not stop the others. The returned
// results follow the order of the configs with work.
func (b *Builder) Run(ctx context.Context, step string, configs []*image.Config) ([]Result, error) {
	var work []*image.Config
	for _, c := range configs {
		if (step == image.StepRollback && len(c.Undo()) > 0) || len(c.Actions()) > 0 {
			work = append(work, c)
		}
	}
	b.opts.Metrics.Planned(step, len(work))
	if len(work) == 0 {
		log.Printf("Nothing to do for step %s", step)
		return nil, nil
	}

	if err := b.checkTools(work); err != nil {
		return nil, err
	}

	results := make([]Result, len(work))
	var mu sync.Mutex
	idx := make([]int, len(work))
	for i := range idx {
		idx[i] = i
	}
	err := async.ForEach(ctx, idx, b.opts.Parallel, func(ctx context.Context, i int) error {
		c := work[i]
		var err error
		if step == image.StepRollback {
			err = b.rollback(ctx, c)
		} else {
			err = b.runImage(ctx, c)
		}
		if err != nil {
			logx.Warnf("%s failed: %v", c.ConfigKey(), err)
		}
		mu.Lock()
		results[i] = Result{Key: c.ConfigKey(), Err: err}
		mu.Unlock()
		return nil
	})
	return results, err
}

func (b *Builder) checkTools(work []*image.Config) error {
	var tools []prerequisites.Tool
	seen := map[string]bool{}
	for _, c := range work {
		if !c.HasAction(image.StepLocal) {
			continue
		}
		needed := []prerequisites.Tool{prerequisites.LocalBuildTools()[0]}
		for _, t := range append(needed, prerequisites.ConvertTools(c.ImageFormat())...) {
			if !seen[t.Name] {
				seen[t.Name] = true
				tools = append(tools, t)
			}
		}
	}
	if len(tools) == 0 {
		return nil
	}
	return b.opts.CheckTools(tools).Error()
}

func (b *Builder) runImage(ctx context.Context, c *image.Config) error {
	for _, action := range c.Actions() {
		log.Printf("%s: %s", c.ConfigKey(), action)
		start := time.Now()
		err := b.do(ctx, c, action)
		b.opts.Metrics.Action(c.Cloud(), action, time.Since(start), err)
		if err != nil {
			return fmt.Errorf("%s: %w", action, err)
		}
		if err := c.SaveMetadata(ctx, action); err != nil {
			return fmt.Errorf("%s: %w", action, err)
		}
	}
	c.Set("actions", []string{})
	return nil
}

func (b *Builder) do(ctx context.Context, c *image.Config, action string) error {
	switch action {
	case image.StepLocal:
		if err := b.packer(ctx, c); err != nil {
			return err
		}
		return c.ConvertImage(ctx)
	case image.StepUpload:
		return c.UploadImage(ctx)
	case image.StepImport:
		return b.opts.Clouds.ImportImage(ctx, c)
	case image.StepPublish:
		return b.opts.Clouds.PublishImage(ctx, c)
	case image.StepRelease:
		c.MarkReleased()
		return b.opts.Clouds.TagImage(ctx, c)
	}
	return fmt.Errorf("unknown action %q", action)
}

// packer builds the local qcow2 image unless it already exists.
func (b *Builder) packer(ctx context.Context, c *image.Config) error {
	if _, err := os.Stat(c.LocalImage()); err == nil {
		logx.Debugf("%s - already locally built", c.ImageKey())
		return nil
	}
	args := []string{
		"build",
		"-timestamp-ui",
		"-only=qemu." + c.ConfigKey(),
		"-var", "images_yaml=" + b.opts.ImagesYAML,
		"-var", "config_key=" + c.ConfigKey(),
		"-var", "output_dir=" + c.LocalDir(),
		b.opts.PackerTemplate,
	}
	log.Printf("Building %s with packer", c.ImageName())
	if _, _, err := b.opts.Runner.Run(ctx, "packer", args...); err != nil {
		return fmt.Errorf("packer build failed: %w", err)
	}
	if _, err := os.Stat(c.LocalImage()); err != nil {
		return fmt.Errorf("packer did not produce %s: %w", c.LocalImage(), err)
	}
	return nil
}

func (b *Builder) rollback(ctx context.Context, c *image.Config) error {
	start := time.Now()
	err := c.Rollback(ctx, b.opts.Clouds)
	b.opts.Metrics.Action(c.Cloud(), image.StepRollback, time.Since(start), err)
	return err
}
