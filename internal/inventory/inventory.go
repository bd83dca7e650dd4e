package inventory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/imamik/alpine-cloud-images/internal/util/logx"
)

// Never is the launched value of images that were never launched.
const Never = "Never"

var (
	alpineName = regexp.MustCompile(`^alpine-`)
	nameParts  = regexp.MustCompile(`(edge|[\d.]+)(?:_rc(\d+))?-(.+)-r?(\d+)$`)
)

// Parsed is what an image name reveals about the image.
type Parsed struct {
	Release    string
	Version    string
	Variant    string
	Revision   string
	RC         bool
	VariantKey string
	ReleaseKey string
}

// Parse extracts release, variant and revision from an image name such as
// alpine-3.19.1-x86_64-bios-tiny-r2. Names not starting with "alpine-" and
// names without that structure are rejected.
func Parse(name string) (Parsed, bool) {
	if !alpineName.MatchString(name) {
		return Parsed{}, false
	}
	m := nameParts.FindStringSubmatch(name)
	if m == nil {
		return Parsed{}, false
	}

	p := Parsed{
		Release:  m[1],
		RC:       m[2] != "",
		Variant:  m[3],
		Revision: m[4],
	}
	parts := strings.Split(p.Release, ".")
	if len(parts) > 2 {
		parts = parts[:2]
	}
	p.Version = strings.Join(parts, ".")
	p.VariantKey = p.Version + "-" + p.Variant
	if p.Release == "edge" {
		p.ReleaseKey = p.Revision
	} else {
		p.ReleaseKey = p.Release + "-" + p.Revision
	}
	return p, true
}

// Image is one cached image.
type Image struct {
	Name       string `yaml:"name"`
	Release    string `yaml:"release"`
	Version    string `yaml:"version"`
	Variant    string `yaml:"variant"`
	Revision   string `yaml:"revision"`
	VariantKey string `yaml:"variant_key"`
	ReleaseKey string `yaml:"release_key"`
	Created    string `yaml:"created"`
	Launched   string `yaml:"launched"`
	Deprecated string `yaml:"deprecated"`
	RC         bool   `yaml:"rc"`
	EOL        bool   `yaml:"eol"`
	Private    bool   `yaml:"private"`
	SnapshotID string `yaml:"snapshot_id"`
}

// Latest is the newest release of a variant in a region.
type Latest struct {
	Release    string `yaml:"release"`
	Revision   string `yaml:"revision"`
	ReleaseKey string `yaml:"release_key"`
}

// Region holds a region's images by ID and the latest release per variant key.
type Region struct {
	Images map[string]Image  `yaml:"images"`
	Latest map[string]Latest `yaml:"latest"`
}

// Cache is the image cache, keyed by region.
type Cache map[string]*Region

// Regions returns the cached regions, sorted.
func (c Cache) Regions() []string {
	regions := make([]string, 0, len(c))
	for r := range c {
		regions = append(regions, r)
	}
	sort.Strings(regions)
	return regions
}

// Total is the number of cached images.
func (c Cache) Total() int {
	n := 0
	for _, r := range c {
		n += len(r.Images)
	}
	return n
}

// Add records raw as an image of region. It reports false for images whose
// name cannot be parsed.
func (c Cache) Add(region string, raw RawImage, now time.Time) bool {
	p, ok := Parse(raw.Name)
	if !ok {
		return false
	}

	r := c[region]
	if r == nil {
		r = &Region{Images: map[string]Image{}, Latest: map[string]Latest{}}
		c[region] = r
	}

	launched := raw.LastLaunched
	if launched == "" {
		launched = Never
	}
	r.Images[raw.ID] = Image{
		Name:       raw.Name,
		Release:    p.Release,
		Version:    p.Version,
		Variant:    p.Variant,
		Revision:   p.Revision,
		VariantKey: p.VariantKey,
		ReleaseKey: p.ReleaseKey,
		Created:    raw.Created,
		Launched:   launched,
		Deprecated: raw.Deprecated,
		RC:         p.RC,
		EOL:        pastDeprecation(raw.Deprecated, now),
		Private:    !raw.Public,
		SnapshotID: raw.SnapshotID,
	}

	if cur, ok := r.Latest[p.VariantKey]; !ok || !newerRelease(cur, p) {
		r.Latest[p.VariantKey] = Latest{Release: p.Release, Revision: p.Revision, ReleaseKey: p.ReleaseKey}
	}
	return true
}

// newerRelease reports whether cur is a later release than p. Releases are
// compared as versions with edge after everything; equal releases compare
// by revision.
func newerRelease(cur Latest, p Parsed) bool {
	if c := compareReleases(cur.Release, p.Release); c != 0 {
		return c > 0
	}
	a, _ := strconv.Atoi(cur.Revision)
	b, _ := strconv.Atoi(p.Revision)
	return a > b
}

func compareReleases(a, b string) int {
	if a == b {
		return 0
	}
	if a == "edge" {
		return 1
	}
	if b == "edge" {
		return -1
	}
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	if errA != nil || errB != nil {
		return strings.Compare(a, b)
	}
	return va.Compare(vb)
}

func pastDeprecation(deprecated string, now time.Time) bool {
	if deprecated == "" {
		return false
	}
	t, err := time.Parse(time.RFC3339Nano, deprecated)
	if err != nil {
		logx.Warnf("unparsable deprecation time %q", deprecated)
		return false
	}
	return t.Before(now)
}

// Collect lists the images of every region from src. An empty region
// selects all of the source's regions; otherwise it must be one of them.
func Collect(ctx context.Context, src Source, region string, now time.Time) (Cache, error) {
	regions, err := src.Regions(ctx)
	if err != nil {
		return nil, err
	}
	if region != "" {
		if !contains(regions, region) {
			return nil, fmt.Errorf("invalid region: %s", region)
		}
		regions = []string{region}
	}
	sort.Strings(regions)

	cache := Cache{}
	for _, r := range regions {
		images, err := src.ListImages(ctx, r)
		if err != nil {
			return nil, err
		}
		log.Printf("--- %s : %d ---", r, len(images))
		for _, img := range images {
			if !alpineName.MatchString(img.Name) {
				logx.Warnf("IGNORING %s\t%s\t%s", r, img.ID, img.Name)
				continue
			}
			if !cache.Add(r, img, now) {
				log.Printf("ERROR: !PARSE\t%s\t%s\t%s", r, img.ID, img.Name)
				continue
			}
			i := cache[r].Images[img.ID]
			log.Printf("%s\t%t\t%t\t%s\t%s", r, i.Private, i.EOL, strings.SplitN(i.Launched, "T", 2)[0], i.Name)
		}
	}

	for _, r := range cache.Regions() {
		log.Printf("%s : %d images", r, len(cache[r].Images))
	}
	log.Printf("TOTAL : %d images", cache.Total())
	return cache, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Write encodes the cache as a YAML document.
func (c Cache) Write(w io.Writer) error {
	if _, err := io.WriteString(w, "---\n"); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("failed to encode image cache: %w", err)
	}
	return enc.Close()
}

// Read decodes a cache written by Write.
func Read(r io.Reader) (Cache, error) {
	var c Cache
	if err := yaml.NewDecoder(r).Decode(&c); err != nil {
		if errors.Is(err, io.EOF) {
			return Cache{}, nil
		}
		return nil, fmt.Errorf("failed to decode image cache: %w", err)
	}
	if c == nil {
		c = Cache{}
	}
	for name, region := range c {
		if region == nil {
			region = &Region{}
			c[name] = region
		}
		if region.Images == nil {
			region.Images = map[string]Image{}
		}
		if region.Latest == nil {
			region.Latest = map[string]Latest{}
		}
	}
	return c, nil
}
