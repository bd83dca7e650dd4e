package handlers

import (
	"context"
	"fmt"
	"log"
	"slices"
	"time"

	"github.com/imamik/alpine-cloud-images/internal/builder"
	"github.com/imamik/alpine-cloud-images/internal/image"
	"github.com/imamik/alpine-cloud-images/internal/manager"
	"github.com/imamik/alpine-cloud-images/internal/metrics"
	"github.com/imamik/alpine-cloud-images/internal/ui"
	"github.com/imamik/alpine-cloud-images/internal/util/logx"
)

// BuildOptions are the command line options of the build command. Empty
// strings keep the values from the environment.
type BuildOptions struct {
	Step        string
	Only        []string
	Skip        []string
	Revise      bool
	Custom      []string
	Clean       bool
	Parallel    int
	ConfigFile  string
	WorkDir     string
	MetricsFile string
}

// BuildSteps are the steps accepted by the build command.
var BuildSteps = append([]string{image.StepState, image.StepRollback}, image.Steps...)

// Build resolves the image configs, refreshes their state for the step and
// runs the planned actions. The state step only prints the plan.
func Build(ctx context.Context, opts BuildOptions) error {
	if !slices.Contains(BuildSteps, opts.Step) {
		return fmt.Errorf("invalid step %q, expected one of %v", opts.Step, BuildSteps)
	}

	s, err := loadSettings()
	if err != nil {
		return err
	}
	if opts.ConfigFile != "" {
		s.ConfigFile = opts.ConfigFile
	}
	if opts.WorkDir != "" {
		s.WorkDir = opts.WorkDir
	}
	if opts.MetricsFile != "" {
		s.MetricsFile = opts.MetricsFile
	}

	env, err := newEnv(s)
	if err != nil {
		return err
	}

	mgr, err := newManager(ctx, manager.Options{
		ConfigFile: s.ConfigFile,
		Overlays:   opts.Custom,
		Clean:      opts.Clean,
		ImagesYAML: s.ImagesYAML(),
		Releases:   newReleases(s),
		Env:        env,
	})
	if err != nil {
		return fmt.Errorf("failed to resolve image configs: %w", err)
	}

	registry := newRegistry(s, loadTimeouts(), opts.Parallel)
	hasActions, err := mgr.RefreshState(ctx, registry, opts.Step, opts.Only, opts.Skip, opts.Revise)
	if err != nil {
		return fmt.Errorf("failed to refresh state: %w", err)
	}

	printer := ui.NewPrinter(stdout)
	printer.Plan(opts.Step, plans(mgr.Configs(), opts.Only, opts.Skip))

	if opts.Step == image.StepState {
		return nil
	}
	if !hasActions {
		log.Printf("No pending actions to take at this time.")
		return nil
	}

	recorder := metrics.New()
	b := newBuilder(builder.Options{
		Clouds:         registry,
		PackerTemplate: s.PackerTemplate,
		ImagesYAML:     s.ImagesYAML(),
		Parallel:       opts.Parallel,
		Metrics:        recorder,
	})
	results, runErr := b.Run(ctx, opts.Step, mgr.Configs())

	if err := mgr.Save(); err != nil {
		return err
	}
	if err := recorder.WriteFile(s.MetricsFile, time.Now()); err != nil {
		logx.Warnf("failed to write metrics: %v", err)
	}
	if runErr != nil {
		return runErr
	}

	printer.Title("Results")
	failed := printer.Results(toUIResults(results))
	if failed > 0 {
		return fmt.Errorf("%d of %d images failed", failed, len(results))
	}
	log.Printf("Completed step %s", opts.Step)
	return nil
}

func plans(configs []*image.Config, only, skip []string) []ui.ImagePlan {
	var out []ui.ImagePlan
	for _, c := range configs {
		if !manager.Selected(c.ConfigKey(), only, skip) {
			continue
		}
		out = append(out, ui.ImagePlan{Key: c.ConfigKey(), Actions: c.Actions(), Undo: c.Undo()})
	}
	return out
}

func toUIResults(results []builder.Result) []ui.Result {
	out := make([]ui.Result, len(results))
	for i, r := range results {
		out[i] = ui.Result{Key: r.Key, Err: r.Err}
	}
	return out
}
