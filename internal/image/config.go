package image

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/imamik/alpine-cloud-images/internal/config"
	"github.com/imamik/alpine-cloud-images/internal/storage"
	"github.com/imamik/alpine-cloud-images/internal/tags"
	"github.com/imamik/alpine-cloud-images/internal/util/execx"
)

// TimeLayout formats the UTC timestamps stored in image state.
const TimeLayout = "2006-01-02T15:04:05.999999"

// Build steps, in order.
const (
	StepLocal   = "local"
	StepUpload  = "upload"
	StepImport  = "import"
	StepPublish = "publish"
	StepRelease = "release"
)

// Pseudo-steps accepted by RefreshState.
const (
	// StepState plans every step without changing anything.
	StepState = "state"
	// StepRollback plans undoing the current revision.
	StepRollback = "rollback"
	// StepFinal refreshes state without planning any action.
	StepFinal = "final"
)

// Steps lists the build steps in order.
var Steps = []string{StepLocal, StepUpload, StepImport, StepPublish, StepRelease}

// OptionalTags are tags that only exist once their step has happened.
var OptionalTags = []string{
	"built", "uploaded", "imported", "import_id", "import_region", "published", "released",
}

// ConvertCommands maps an image format to the command converting the local
// qcow2 image into it. Source and destination paths are appended.
var ConvertCommands = map[string][]string{
	"qcow2": {"ln", "-f"},
	"vhd":   {"qemu-img", "convert", "-f", "qcow2", "-O", "vpc", "-o", "force_size=on"},
	"raw":   {"qemu-img", "convert", "-f", "qcow2", "-O", "raw"},
}

// CompressionExts maps image_compression values to file extensions.
var CompressionExts = map[string]string{
	"zstd": "zst",
	"gzip": "gz",
}

// Signer creates detached signatures for artifacts.
type Signer interface {
	SignFile(path string) (string, error)
}

// Env carries what image operations need from their surroundings.
type Env struct {
	// WorkDir holds images/<cloud>/<image_key> directories.
	WorkDir string
	Storage storage.Options
	// Signer is optional; artifacts are unsigned without it.
	Signer Signer
	Runner execx.Runner
	Now    func() time.Time
}

func (e *Env) now() time.Time {
	if e == nil || e.Now == nil {
		return time.Now().UTC()
	}
	return e.Now().UTC()
}

func (e *Env) timestamp() string {
	return e.now().Format(TimeLayout)
}

func (e *Env) runner() execx.Runner {
	if e == nil || e.Runner == nil {
		return execx.ExecRunner{}
	}
	return e.Runner
}

// Config is one resolved image configuration.
type Config struct {
	key   string
	attrs *config.Tree
	env   *Env

	mu      sync.Mutex
	storage *storage.Storage
}

// New wraps attrs as the image config for configKey.
func New(configKey string, attrs *config.Tree, env *Env) *Config {
	if attrs == nil {
		attrs = config.NewTree()
	}
	if env == nil {
		env = &Env{}
	}
	return &Config{key: configKey, attrs: attrs, env: env}
}

// ConfigKey is the dimension keys joined by "-".
func (c *Config) ConfigKey() string { return c.key }

// Attrs returns the attribute tree.
func (c *Config) Attrs() *config.Tree { return c.attrs }

// Env returns the config's environment.
func (c *Config) Env() *Env { return c.env }

// String returns the string form of a scalar attribute.
func (c *Config) String(key string) string { return c.attrs.String(key) }

// Set stores an attribute.
func (c *Config) Set(key string, value any) { c.attrs.Set(key, value) }

// Truthy reports whether an attribute counts as set.
func (c *Config) Truthy(key string) bool { return c.attrs.Truthy(key) }

// Shortcuts for attributes every resolved config carries.
func (c *Config) Cloud() string { return c.String("cloud") }
func (c *Config) Project() string { return c.String("project") }
func (c *Config) ImageKey() string { return c.String("image_key") }
func (c *Config) Version() string { return c.String("version") }
func (c *Config) Release() string { return c.String("release") }
func (c *Config) Arch() string { return c.String("arch") }
func (c *Config) Firmware() string { return c.String("firmware") }
func (c *Config) Bootstrap() string { return c.String("bootstrap") }
func (c *Config) Revision() string { return c.String("revision") }
func (c *Config) EndOfLife() string { return c.String("end_of_life") }

// DimensionKeys returns the dimension keys that make up the config key.
func (c *Config) DimensionKeys() []string {
	return strings.Split(c.key, "-")
}

// VVersion is "edge" or "v" followed by the version.
func (c *Config) VVersion() string {
	if c.Version() == "edge" {
		return "edge"
	}
	return "v" + c.Version()
}

// Vars returns the scalar attributes for placeholder expansion.
func (c *Config) Vars() map[string]string {
	vars := c.attrs.Vars()
	vars["v_version"] = c.VVersion()
	return vars
}

// LocalDir is the image's directory inside the work directory.
func (c *Config) LocalDir() string {
	return filepath.Join(c.env.WorkDir, "images", c.Cloud(), c.ImageKey())
}

// LocalImage is the qcow2 image built by Packer.
func (c *Config) LocalImage() string {
	return filepath.Join(c.LocalDir(), "image.qcow2")
}

// ImageName is the formatted name template.
func (c *Config) ImageName() string {
	return config.Format(c.String("name"), c.Vars())
}

// ImageDescription is the formatted description template.
func (c *Config) ImageDescription() string {
	return config.Format(c.String("description"), c.Vars())
}

// ImageFormat is the disk format uploaded for the cloud.
func (c *Config) ImageFormat() string {
	return c.String("image_format")
}

// ImageCompression is "", "zstd" or "gzip".
func (c *Config) ImageCompression() string {
	return c.String("image_compression")
}

// ImageFile is the uploaded file name, including any compression extension.
func (c *Config) ImageFile() string {
	name := c.ImageName() + "." + c.ImageFormat()
	if ext, ok := CompressionExts[c.ImageCompression()]; ok {
		name += "." + ext
	}
	return name
}

// ImagePath is the uploaded file in the local directory.
func (c *Config) ImagePath() string {
	return filepath.Join(c.LocalDir(), c.ImageFile())
}

// MetadataFile is the image metadata file name.
func (c *Config) MetadataFile() string {
	return c.ImageName() + ".yaml"
}

// RegionURL formats cloud_region_url for an image in a region.
func (c *Config) RegionURL(region, imageID string) string {
	return config.Format(c.String("cloud_region_url"),
		config.WithVars(c.Vars(), map[string]string{"region": region, "image_id": imageID}))
}

// LaunchURL formats cloud_launch_url for an image in a region.
func (c *Config) LaunchURL(region, imageID string) string {
	return config.Format(c.String("cloud_launch_url"),
		config.WithVars(c.Vars(), map[string]string{"region": region, "image_id": imageID}))
}

// Artifacts maps region to image ID for published images.
func (c *Config) Artifacts() map[string]string {
	out := map[string]string{}
	c.attrs.Tree("artifacts").Each(func(k string, v any) {
		out[k] = tags.Stringify(v)
	})
	return out
}

// Actions returns the actions planned by the last RefreshState.
func (c *Config) Actions() []string {
	return stringList(c.attrs.List("actions"))
}

// HasAction reports whether action is planned.
func (c *Config) HasAction(action string) bool {
	for _, a := range c.Actions() {
		if a == action {
			return true
		}
	}
	return false
}

// Undo returns what a rollback would undo.
func (c *Config) Undo() []string {
	return stringList(c.attrs.List("undo"))
}

// Tags returns the tag set describing the image.
func (c *Config) Tags() tags.Tags {
	t := tags.Tags{}
	t.Set("arch", c.Arch())
	t.Set("bootstrap", c.Bootstrap())
	t.Set("cloud", c.Cloud())
	t.Set("description", c.ImageDescription())
	t.Set("end_of_life", c.EndOfLife())
	t.Set("firmware", c.Firmware())
	t.Set("image_key", c.ImageKey())
	t.Set("name", c.ImageName())
	t.Set("project", c.Project())
	t.Set("release", c.Release())
	t.Set("revision", c.Revision())
	t.Set("version", c.Version())

	for _, k := range OptionalTags {
		if c.Truthy(k) {
			t.Set(k, c.attrs.Value(k))
		}
	}
	return t
}

// Storage returns the storage for the image, creating it on first use.
func (c *Config) Storage(ctx context.Context) (*storage.Storage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.storage != nil {
		return c.storage, nil
	}
	s, err := storage.New(ctx, c.LocalDir(), config.Format(c.String("storage_url"), c.Vars()), c.env.Storage)
	if err != nil {
		return nil, err
	}
	c.storage = s
	return s, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func stringList(l []any) []string {
	out := make([]string, 0, len(l))
	for _, v := range l {
		out = append(out, tags.Stringify(v))
	}
	return out
}
