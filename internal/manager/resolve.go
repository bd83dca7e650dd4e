package manager

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/imamik/alpine-cloud-images/internal/config"
	"github.com/imamik/alpine-cloud-images/internal/image"
	"github.com/imamik/alpine-cloud-images/internal/util/logx"
)

func (m *Manager) resolve(ctx context.Context) error {
	log.Printf("Generating %s in work environment", m.opts.ImagesYAML)
	doc, err := config.LoadDocument(m.opts.ConfigFile, m.opts.Overlays...)
	if err != nil {
		return err
	}

	for _, v := range doc.DimensionKeys("version") {
		if err := m.setVersionRelease(ctx, unquote(v), doc.DimensionConfig("version", v)); err != nil {
			return err
		}
	}

	dims := doc.DimensionNames()
	logx.Debugf("dimensions: %v", dims)

	now := m.opts.Now().UTC()
	for _, combo := range product(doc, dims) {
		c, err := m.resolveOne(ctx, doc, dims, combo, now)
		if err != nil {
			return err
		}
		if c != nil {
			m.add(c)
		}
	}
	return nil
}

// setVersionRelease records the current release of version in its
// dimension config and makes it the version's part of the name and
// description.
func (m *Manager) setVersionRelease(ctx context.Context, version string, vcfg *config.Tree) error {
	info, err := m.opts.Releases.VersionInfo(ctx, version)
	if err != nil {
		return fmt.Errorf("failed to get release of %s: %w", version, err)
	}
	vcfg.Set("release", info.Release)
	vcfg.Set("end_of_life", info.EndOfLife)
	vcfg.Set("release_notes", info.Notes)
	vcfg.Set("name", []any{info.Release})
	vcfg.Set("description", []any{info.Release})
	return nil
}

// resolveOne builds the config for one key per dimension. It returns nil
// when the combination is excluded or past its end of life.
func (m *Manager) resolveOne(ctx context.Context, doc *config.Document, dims, combo []string, now time.Time) (*image.Config, error) {
	keys := make([]string, len(combo))
	dimKeys := map[string]bool{}
	for i, k := range combo {
		keys[i] = unquote(k)
		dimKeys[keys[i]] = true
	}
	configKey := strings.Join(keys, "-")

	versionIdx := indexOf(dims, "version")
	release := doc.DimensionConfig("version", combo[versionIdx]).String("release")
	releaseKeys := append([]string(nil), keys...)
	releaseKeys[versionIdx] = release

	attrs := config.TreeOf("image_key", strings.Join(releaseKeys, "-"), "release", release)
	for i, dim := range dims {
		attrs.Set(dim, keys[i])
	}
	config.Merge(attrs, doc.Default)

	for i, dim := range dims {
		config.Merge(attrs, doc.DimensionConfig(dim, combo[i]))

		// nested WHEN blocks are AND, space separated WHEN keys are OR
		for {
			when, ok := attrs.Delete("WHEN")
			if !ok || when == nil {
				break
			}
			wt, isTree := when.(*config.Tree)
			if !isTree {
				return nil, fmt.Errorf("%s: WHEN must be a mapping", configKey)
			}
			for _, whenKeys := range wt.Keys() {
				if anyOf(strings.Fields(whenKeys), dimKeys) {
					config.Merge(attrs, wt.Tree(whenKeys))
				}
			}
		}

		if exclude, ok := attrs.Delete("EXCLUDE"); ok {
			if l, isList := exclude.([]any); isList && anyOf(stringList(l), dimKeys) {
				logx.Debugf("%s SKIPPED, %s excludes %v", configKey, keys[i], l)
				return nil, nil
			}
		}

		if eol := attrs.String("end_of_life"); eol != "" {
			t, err := parseEndOfLife(eol)
			if err != nil {
				return nil, fmt.Errorf("%s: invalid end_of_life %q: %w", configKey, eol, err)
			}
			if now.After(t) {
				logx.Warnf("%s SKIPPED, %s end_of_life %s", configKey, keys[i], eol)
				return nil, nil
			}
		}
	}

	config.Merge(attrs, doc.Mandatory)

	c := image.New(configKey, attrs, m.opts.Env)
	c.Normalize()

	iso, err := m.opts.Releases.VirtISOURL(ctx, c.Arch())
	if err != nil {
		return nil, fmt.Errorf("failed to get ISO URL for %s: %w", configKey, err)
	}
	qemu := attrs.Tree("qemu")
	if qemu == nil {
		qemu = config.NewTree()
		attrs.Set("qemu", qemu)
	}
	qemu.Set("iso_url", iso)
	return c, nil
}

// product lists every combination of one key per dimension, the last
// dimension varying fastest.
func product(doc *config.Document, dims []string) [][]string {
	combos := [][]string{{}}
	for _, dim := range dims {
		var next [][]string
		for _, prefix := range combos {
			for _, k := range doc.DimensionKeys(dim) {
				combo := append(append([]string(nil), prefix...), k)
				next = append(next, combo)
			}
		}
		combos = next
	}
	return combos
}

func parseEndOfLife(s string) (time.Time, error) {
	var err error
	for _, layout := range []string{time.DateOnly, image.TimeLayout, time.RFC3339} {
		var t time.Time
		if t, err = time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}

func unquote(s string) string {
	return strings.ReplaceAll(s, `"`, "")
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}

func anyOf(keys []string, set map[string]bool) bool {
	for _, k := range keys {
		if set[k] {
			return true
		}
	}
	return false
}

func stringList(l []any) []string {
	out := make([]string, 0, len(l))
	for _, v := range l {
		out = append(out, fmt.Sprint(v))
	}
	return out
}
