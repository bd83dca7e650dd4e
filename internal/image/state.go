package image

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/imamik/alpine-cloud-images/internal/tags"
	"github.com/imamik/alpine-cloud-images/internal/util/logx"
)

// Remote is the cloud-side view of images needed to refresh state.
type Remote interface {
	// LatestImportedTags returns the tags of the newest imported image for
	// the config's project and image key, or nil when there is none.
	LatestImportedTags(ctx context.Context, c *Config) (tags.Tags, error)
	// DeleteImage removes an imported image from the cloud.
	DeleteImage(ctx context.Context, c *Config, imageID string) error
}

// Tags that describe the template rather than state; never copied back
// from stored metadata or remote images.
var templateTags = map[string]bool{"name": true, "description": true}

// stateResets are cleared when the cloud knows no image for the config.
var stateResets = []string{
	"uploaded", "imported", "import_id", "import_region", "published", "artifacts", "released",
}

// IsStepOrEarlier reports whether s is at or before step. Every step counts
// for the state pseudo-step and none for the other pseudo-steps.
func IsStepOrEarlier(s, step string) bool {
	if step == StepState {
		return true
	}
	si, stepi := stepIndex(s), stepIndex(step)
	if si < 0 || stepi < 0 {
		return false
	}
	return si <= stepi
}

// IsStep reports whether s names a build or pseudo-step.
func IsStep(s string) bool {
	switch s {
	case StepState, StepRollback, StepFinal:
		return true
	}
	return stepIndex(s) >= 0
}

func stepIndex(s string) int {
	for i, step := range Steps {
		if step == s {
			return i
		}
	}
	return -1
}

// RefreshState works out which actions up to step are still needed.
//
// With revise, a locally built image is removed and the revision is bumped
// past a published remote image, or an unpublished imported one is deleted.
// The state pseudo-step only reports what would happen.
func (c *Config) RefreshState(ctx context.Context, step string, revise bool, remote Remote) error {
	if !IsStep(step) {
		return fmt.Errorf("unknown step %q", step)
	}
	stateOnly := step == StepState

	actions := map[string]bool{}
	for _, s := range Steps {
		if IsStepOrEarlier(s, step) {
			actions[s] = true
		}
	}

	if err := c.LoadMetadata(); err != nil {
		return err
	}

	if step == StepRollback {
		c.Set("undo", c.planUndo())
	} else {
		c.attrs.Delete("undo")
	}

	var remoteTags tags.Tags
	if remote != nil {
		var err error
		remoteTags, err = remote.LatestImportedTags(ctx, c)
		if err != nil {
			return fmt.Errorf("failed to get latest imported tags for %s: %w", c.ImageKey(), err)
		}
	}
	logx.Debugf("%s remote tags: %v", c.ImageKey(), remoteTags)

	revision := 0
	if revise {
		if fileExists(c.LocalImage()) {
			logx.Warnf("%s existing local image dir %s", wouldOr(stateOnly, "Would remove", "Removing"), c.LocalDir())
			if !stateOnly {
				if err := os.RemoveAll(c.LocalDir()); err != nil {
					return fmt.Errorf("failed to remove %s: %w", c.LocalDir(), err)
				}
			}
		}

		switch {
		case remoteTags != nil && remoteTags.Truthy("published"):
			logx.Warnf("%s image revision for %s", wouldOr(stateOnly, "Would bump", "Bumping"), c.ImageKey())
			rev, err := strconv.Atoi(remoteTags.Get("revision"))
			if err != nil {
				return fmt.Errorf("remote image %s has invalid revision %q", c.ImageKey(), remoteTags.Get("revision"))
			}
			revision = rev + 1
		case remoteTags != nil && remoteTags.Truthy("imported"):
			logx.Warnf("%s unpublished remote image %s", wouldOr(stateOnly, "Would remove", "Removing"), remoteTags.Get("import_id"))
			if !stateOnly {
				if err := remote.DeleteImage(ctx, c, remoteTags.Get("import_id")); err != nil {
					return fmt.Errorf("failed to delete unpublished image %s: %w", remoteTags.Get("import_id"), err)
				}
			}
		}
		remoteTags = nil
	} else if remoteTags != nil {
		if remoteTags.Truthy("imported") {
			logx.Debugf("%s - already imported", c.ImageKey())
			delete(actions, StepLocal)
			delete(actions, StepUpload)
			delete(actions, StepImport)
		}
		if remoteTags.Truthy("published") {
			// re-publishing can update permissions or reach new regions
			logx.Debugf("%s - already published", c.ImageKey())
		}
	}

	if fileExists(c.LocalImage()) {
		logx.Debugf("%s - already locally built", c.ImageKey())
		delete(actions, StepLocal)
	} else {
		c.Set("built", nil)
	}

	if remoteTags != nil {
		for _, k := range remoteTags.Keys() {
			if !templateTags[k] {
				c.Set(k, remoteTags.Get(k))
			}
		}
	} else {
		c.Set("revision", revision)
		for _, k := range stateResets {
			c.Set(k, nil)
		}
	}

	planned := make([]string, 0, len(actions))
	for _, s := range Steps {
		if actions[s] {
			planned = append(planned, s)
		}
	}
	c.Set("actions", planned)
	log.Printf("%s/%s = %v", c.Cloud(), c.ImageName(), planned)

	c.Set("state_updated", c.env.timestamp())
	return nil
}

// planUndo lists what a rollback removes. Uploaded files and imported
// images are only touched while the image is neither published nor released.
func (c *Config) planUndo() []string {
	var undo []string
	if fileExists(c.LocalImage()) {
		undo = append(undo, StepLocal)
	}
	// a released image stays published, so either flag protects it
	if !c.Truthy("published") && !c.Truthy("released") {
		if c.Truthy("uploaded") {
			undo = append(undo, StepUpload)
		}
		if c.Truthy("imported") {
			undo = append(undo, StepImport)
		}
	}
	return undo
}

// Rollback undoes what the last rollback refresh planned.
func (c *Config) Rollback(ctx context.Context, remote Remote) error {
	for _, u := range c.Undo() {
		switch u {
		case StepLocal:
			log.Printf("Removing local image dir %s", c.LocalDir())
			if err := os.RemoveAll(c.LocalDir()); err != nil {
				return fmt.Errorf("failed to remove %s: %w", c.LocalDir(), err)
			}
			c.Set("built", nil)
		case StepUpload:
			s, err := c.Storage(ctx)
			if err != nil {
				return err
			}
			log.Printf("Removing %s from %s", c.ImageFile(), s.URL())
			if err := s.Remove(ctx, c.storedFiles()...); err != nil {
				return err
			}
			c.Set("uploaded", nil)
		case StepImport:
			if c.String("import_id") == "" {
				logx.Debugf("%s - no imported image left to remove", c.ImageKey())
				continue
			}
			if remote == nil {
				return fmt.Errorf("cannot remove imported image %s without a cloud", c.String("import_id"))
			}
			log.Printf("Removing imported image %s", c.String("import_id"))
			if err := remote.DeleteImage(ctx, c, c.String("import_id")); err != nil {
				return err
			}
			c.Set("imported", nil)
			c.Set("import_id", nil)
			c.Set("import_region", nil)
		}
	}
	c.attrs.Delete("undo")
	c.Set("actions", []string{})
	return nil
}

// MarkImported records a completed import.
func (c *Config) MarkImported(importID, region string) {
	c.Set("imported", c.env.timestamp())
	c.Set("import_id", importID)
	c.Set("import_region", region)
}

// MarkPublished records a completed publish with its per-region image IDs.
func (c *Config) MarkPublished(artifacts map[string]string) {
	c.Set("artifacts", artifacts)
	c.Set("published", c.env.timestamp())
}

// MarkReleased records that the image has been released.
func (c *Config) MarkReleased() {
	c.Set("released", c.env.timestamp())
}

func wouldOr(dryRun bool, would, doing string) string {
	if dryRun {
		return would
	}
	return doing
}
