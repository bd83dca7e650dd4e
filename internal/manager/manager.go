// Package manager resolves the layered configuration into one image config
// per combination of dimension keys and keeps the resolved set in the work
// directory between runs.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/imamik/alpine-cloud-images/internal/alpine"
	"github.com/imamik/alpine-cloud-images/internal/config"
	"github.com/imamik/alpine-cloud-images/internal/image"
	"github.com/imamik/alpine-cloud-images/internal/util/logx"
)

// ErrUnknownConfig is returned by Get for a config key that was not resolved.
var ErrUnknownConfig = errors.New("unknown image config")

// Releases provides Alpine release metadata.
type Releases interface {
	VersionInfo(ctx context.Context, version string) (*alpine.VersionInfo, error)
	VirtISOURL(ctx context.Context, arch string) (string, error)
}

// Remote is the cloud side of state refreshes.
type Remote interface {
	image.Remote
	// Actions lists the steps a cloud supports.
	Actions(cloud string) ([]string, error)
}

// Options configure a Manager.
type Options struct {
	// ConfigFile is the layered configuration document.
	ConfigFile string
	// Overlays are merged onto ConfigFile in order.
	Overlays []string
	// ImagesYAML caches the resolved configs.
	ImagesYAML string
	// Clean resolves the configs again even when ImagesYAML is current.
	Clean      bool
	Releases   Releases
	Env        *image.Env
	Now        func() time.Time
}

// Manager holds the resolved image configs in resolution order.
type Manager struct {
	opts    Options
	keys    []string
	configs map[string]*image.Config
}

// New loads the resolved configs from ImagesYAML, or resolves them from the
// configuration document and saves them there. ImagesYAML is resolved
// again when Clean is set, when overlays are given or when the config
// file changed after it was written. RefreshState restores build state
// from local files and the clouds either way.
func New(ctx context.Context, opts Options) (*Manager, error) {
	if opts.Env == nil {
		opts.Env = &image.Env{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	m := &Manager{opts: opts, configs: map[string]*image.Config{}}

	if info, err := os.Stat(opts.ImagesYAML); err == nil {
		reason, err := m.stale(info.ModTime())
		if err != nil {
			return nil, err
		}
		if reason == "" {
			if err := m.load(); err != nil {
				return nil, err
			}
			return m, nil
		}
		logx.Warnf("Resolving %s again: %s", opts.ImagesYAML, reason)
	}

	if err := m.resolve(ctx); err != nil {
		return nil, err
	}
	if err := m.Save(); err != nil {
		return nil, err
	}
	return m, nil
}

// stale reports why the cached configs written at cached must not be used,
// or "" when they can be.
func (m *Manager) stale(cached time.Time) (string, error) {
	if m.opts.Clean {
		return "clean requested", nil
	}
	if len(m.opts.Overlays) > 0 {
		return "overlays given", nil
	}
	info, err := os.Stat(m.opts.ConfigFile)
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", m.opts.ConfigFile, err)
	}
	if info.ModTime().After(cached) {
		return m.opts.ConfigFile + " changed", nil
	}
	return "", nil
}

// Get returns the config for key.
func (m *Manager) Get(key string) (*image.Config, error) {
	c, ok := m.configs[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownConfig, key)
	}
	return c, nil
}

// Keys returns the config keys in resolution order.
func (m *Manager) Keys() []string {
	return append([]string(nil), m.keys...)
}

// Configs returns the configs in resolution order.
func (m *Manager) Configs() []*image.Config {
	out := make([]*image.Config, 0, len(m.keys))
	for _, k := range m.keys {
		out = append(out, m.configs[k])
	}
	return out
}

func (m *Manager) add(c *image.Config) {
	if _, ok := m.configs[c.ConfigKey()]; !ok {
		m.keys = append(m.keys, c.ConfigKey())
	}
	m.configs[c.ConfigKey()] = c
}

func (m *Manager) load() error {
	log.Printf("Loading existing %s", m.opts.ImagesYAML)
	data, err := os.ReadFile(m.opts.ImagesYAML)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", m.opts.ImagesYAML, err)
	}
	root := config.NewTree()
	if err := yaml.Unmarshal(data, root); err != nil {
		return fmt.Errorf("failed to parse %s: %w", m.opts.ImagesYAML, err)
	}
	for _, key := range root.Keys() {
		attrs := root.Tree(key)
		if attrs == nil {
			return fmt.Errorf("%s: config %q is not a mapping", m.opts.ImagesYAML, key)
		}
		m.add(image.New(key, attrs, m.opts.Env))
	}
	return nil
}

// Save writes the resolved configs to ImagesYAML.
func (m *Manager) Save() error {
	log.Printf("Saving %s", m.opts.ImagesYAML)
	root := config.NewTree()
	for _, c := range m.Configs() {
		root.Set(c.ConfigKey(), c.Attrs())
	}
	data, err := yaml.Marshal(root)
	if err != nil {
		return fmt.Errorf("failed to encode image configs: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(m.opts.ImagesYAML), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(m.opts.ImagesYAML), err)
	}
	if err := os.WriteFile(m.opts.ImagesYAML, append([]byte("---\n"), data...), 0o644); err != nil { // #nosec G306 - consumed by packer
		return fmt.Errorf("failed to write %s: %w", m.opts.ImagesYAML, err)
	}
	return nil
}

// RefreshState refreshes every selected config for step. Selection uses the
// dimension keys in the config key: every only key must be present and no
// skip key may be. Planned actions are limited to what the image's cloud
// supports. It reports whether any config has actions or anything to undo.
func (m *Manager) RefreshState(ctx context.Context, remote Remote, step string, only, skip []string, revise bool) (bool, error) {
	log.Printf("Refreshing State")
	hasActions := false
	for _, c := range m.Configs() {
		c.Attrs().Delete("actions")

		if !Selected(c.ConfigKey(), only, skip) {
			logx.Debugf("%s SKIPPED, doesn't match --only/--skip", c.ConfigKey())
			continue
		}

		if err := c.RefreshState(ctx, step, revise, remote); err != nil {
			return false, err
		}
		supported, err := remote.Actions(c.Cloud())
		if err != nil {
			return false, err
		}
		actions := intersect(c.Actions(), supported)
		c.Set("actions", actions)
		if len(actions) > 0 || len(c.Undo()) > 0 {
			hasActions = true
		}
	}

	if err := m.Save(); err != nil {
		return false, err
	}
	return hasActions, nil
}

// Selected reports whether configKey matches all of only and none of skip.
func Selected(configKey string, only, skip []string) bool {
	dims := map[string]bool{}
	for _, k := range strings.Split(configKey, "-") {
		dims[k] = true
	}
	for _, k := range only {
		if !dims[k] {
			return false
		}
	}
	for _, k := range skip {
		if dims[k] {
			return false
		}
	}
	return true
}

func intersect(actions, supported []string) []string {
	ok := map[string]bool{}
	for _, s := range supported {
		ok[s] = true
	}
	out := []string{}
	for _, a := range actions {
		if ok[a] {
			out = append(out, a)
		}
	}
	return out
}
