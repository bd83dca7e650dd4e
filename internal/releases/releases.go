package releases

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/imamik/alpine-cloud-images/internal/image"
	"github.com/imamik/alpine-cloud-images/internal/util/logx"
)

// Data is the complete release document.
type Data struct {
	Filters  Filters   `yaml:"filters"`
	Versions []Version `yaml:"versions"`
}

// Filters list the values the page can filter by, in first-seen order.
type Filters struct {
	Clouds     []CloudFilter     `yaml:"clouds"`
	Regions    []RegionFilter    `yaml:"regions"`
	Archs      []ArchFilter      `yaml:"archs"`
	Firmwares  []FirmwareFilter  `yaml:"firmwares"`
	Bootstraps []BootstrapFilter `yaml:"bootstraps"`
}

type CloudFilter struct {
	Cloud     string `yaml:"cloud"`
	CloudName string `yaml:"cloud_name"`
}

type RegionFilter struct {
	Region string     `yaml:"region"`
	Clouds []CloudRef `yaml:"clouds"`
}

type CloudRef struct {
	Cloud string `yaml:"cloud"`
}

type ArchFilter struct {
	Arch     string `yaml:"arch"`
	ArchName string `yaml:"arch_name"`
}

type FirmwareFilter struct {
	Firmware     string `yaml:"firmware"`
	FirmwareName string `yaml:"firmware_name"`
}

type BootstrapFilter struct {
	Bootstrap     string `yaml:"bootstrap"`
	BootstrapName string `yaml:"bootstrap_name"`
}

// Version is one Alpine version with its released images.
type Version struct {
	Version   string  `yaml:"version"`
	Release   string  `yaml:"release"`
	EndOfLife string  `yaml:"end_of_life"`
	Images    []Image `yaml:"images"`
}

// Image is a variant: a release for one arch, firmware and bootstrap,
// across clouds.
type Image struct {
	Variant   string     `yaml:"variant"`
	Arch      string     `yaml:"arch"`
	Firmware  string     `yaml:"firmware"`
	Bootstrap string     `yaml:"bootstrap"`
	Released  string     `yaml:"released"`
	Downloads []Download `yaml:"downloads"`
	Regions   []Region   `yaml:"regions"`
}

type Download struct {
	Cloud       string `yaml:"cloud"`
	ImageName   string `yaml:"image_name"`
	ImageFormat string `yaml:"image_format"`
	ImageURL    string `yaml:"image_url"`
}

type Region struct {
	Cloud     string `yaml:"cloud"`
	Region    string `yaml:"region"`
	RegionURL string `yaml:"region_url"`
	LaunchURL string `yaml:"launch_url"`
}

// ordered keeps values in first-seen order.
type ordered[T any] struct {
	keys   []string
	values map[string]*T
}

func (o *ordered[T]) get(key string, init func() *T) *T {
	if o.values == nil {
		o.values = map[string]*T{}
	}
	if v, ok := o.values[key]; ok {
		return v
	}
	v := init()
	o.keys = append(o.keys, key)
	o.values[key] = v
	return v
}

func (o *ordered[T]) list() []T {
	out := make([]T, 0, len(o.keys))
	for _, k := range o.keys {
		out = append(out, *o.values[k])
	}
	return out
}

type variantBuilder struct {
	image     Image
	downloads ordered[Download]
	regions   map[string]Region
}

type versionBuilder struct {
	version  Version
	variants ordered[variantBuilder]
}

// Build collects the released, non-edge configs into release data.
func Build(configs []*image.Config) *Data {
	var (
		clouds     ordered[CloudFilter]
		regions    ordered[RegionFilter]
		archs      ordered[ArchFilter]
		firmwares  ordered[FirmwareFilter]
		bootstraps ordered[BootstrapFilter]
		versions   ordered[versionBuilder]
	)

	for _, c := range configs {
		if !c.Truthy("released") || c.Version() == "edge" {
			continue
		}
		cloud, arch, firmware, bootstrap := c.Cloud(), c.Arch(), c.Firmware(), c.Bootstrap()
		variant := strings.Join([]string{c.Release(), arch, firmware, bootstrap}, " ")

		clouds.get(cloud, func() *CloudFilter {
			return &CloudFilter{Cloud: cloud, CloudName: c.String("cloud_name")}
		})
		archs.get(arch, func() *ArchFilter {
			return &ArchFilter{Arch: arch, ArchName: c.String("arch_name")}
		})
		firmwares.get(firmware, func() *FirmwareFilter {
			return &FirmwareFilter{Firmware: firmware, FirmwareName: c.String("firmware_name")}
		})
		bootstraps.get(bootstrap, func() *BootstrapFilter {
			return &BootstrapFilter{Bootstrap: bootstrap, BootstrapName: c.String("bootstrap_name")}
		})

		v := versions.get(c.Version(), func() *versionBuilder { return &versionBuilder{} })
		v.version.Version = c.Version()
		v.version.Release = c.Release()
		v.version.EndOfLife = c.EndOfLife()

		vb := v.variants.get(variant, func() *variantBuilder {
			return &variantBuilder{regions: map[string]Region{}}
		})
		vb.image.Variant = variant
		vb.image.Arch = arch
		vb.image.Firmware = firmware
		vb.image.Bootstrap = bootstrap
		vb.image.Released = strings.SplitN(c.String("uploaded"), "T", 2)[0]

		d := vb.downloads.get(cloud, func() *Download { return &Download{} })
		*d = Download{
			Cloud:       cloud,
			ImageName:   c.ImageName(),
			ImageFormat: c.ImageFormat(),
			ImageURL:    c.String("download_url") + "/" + c.ImageName(),
		}

		artifacts := c.Artifacts()
		artifactRegions := make([]string, 0, len(artifacts))
		for r := range artifacts {
			artifactRegions = append(artifactRegions, r)
		}
		sort.Strings(artifactRegions)
		for _, region := range artifactRegions {
			logx.Debugf("REGION: %s", region)
			rf := regions.get(region, func() *RegionFilter { return &RegionFilter{Region: region} })
			if !hasCloud(rf.Clouds, cloud) {
				rf.Clouds = append(rf.Clouds, CloudRef{Cloud: cloud})
			}
			vb.regions[region] = Region{
				Cloud:     cloud,
				Region:    region,
				RegionURL: c.RegionURL(region, artifacts[region]),
				LaunchURL: c.LaunchURL(region, artifacts[region]),
			}
		}
	}

	data := &Data{
		Filters: Filters{
			Clouds:     clouds.list(),
			Regions:    regions.list(),
			Archs:      archs.list(),
			Firmwares:  firmwares.list(),
			Bootstraps: bootstraps.list(),
		},
	}

	keys := append([]string(nil), versions.keys...)
	sort.SliceStable(keys, func(i, j int) bool { return versionLess(keys[j], keys[i]) })
	for _, k := range keys {
		vb := versions.values[k]
		version := vb.version
		for _, variant := range vb.variants.keys {
			b := vb.variants.values[variant]
			img := b.image
			img.Downloads = b.downloads.list()
			img.Regions = sortedRegions(b.regions)
			version.Images = append(version.Images, img)
		}
		data.Versions = append(data.Versions, version)
	}
	return data
}

func hasCloud(refs []CloudRef, cloud string) bool {
	for _, r := range refs {
		if r.Cloud == cloud {
			return true
		}
	}
	return false
}

func sortedRegions(m map[string]Region) []Region {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]Region, 0, len(names))
	for _, n := range names {
		out = append(out, m[n])
	}
	return out
}

// versionLess orders versions numerically; unparsable versions sort first.
func versionLess(a, b string) bool {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	switch {
	case errA != nil && errB != nil:
		return a < b
	case errA != nil:
		return true
	case errB != nil:
		return false
	}
	return va.LessThan(vb)
}

// Write encodes data as YAML.
func (d *Data) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return fmt.Errorf("failed to encode releases: %w", err)
	}
	return enc.Close()
}
