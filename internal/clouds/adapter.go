package clouds

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/imamik/alpine-cloud-images/internal/image"
	"github.com/imamik/alpine-cloud-images/internal/tags"
)

// ErrUnknownCloud is returned for a cloud without a registered adapter.
var ErrUnknownCloud = errors.New("unknown cloud")

// Adapter imports and publishes images for one cloud.
type Adapter interface {
	Name() string
	// Actions lists the build steps the adapter supports.
	Actions() []string
	// Regions lists the regions images can be published to.
	Regions(ctx context.Context) ([]string, error)

	// LatestImportedTags returns the tags of the newest imported image for
	// the config's project and image key, or nil when there is none.
	LatestImportedTags(ctx context.Context, c *image.Config) (tags.Tags, error)
	// ImportImage imports the uploaded image and records it with
	// c.MarkImported.
	ImportImage(ctx context.Context, c *image.Config) error
	DeleteImage(ctx context.Context, c *image.Config, imageID string) error
	// PublishImage makes the imported image available and records the
	// per-region image IDs with c.MarkPublished.
	PublishImage(ctx context.Context, c *image.Config) error
}

// Tagger is implemented by adapters that keep state tags on remote images.
type Tagger interface {
	TagImage(ctx context.Context, c *image.Config) error
}

// Registry maps cloud names to adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

var _ image.Remote = (*Registry)(nil)

// NewRegistry returns a registry holding adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: map[string]Adapter{}}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds or replaces the adapter for a.Name().
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
}

// Get returns the adapter for cloud.
func (r *Registry) Get(cloud string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[cloud]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCloud, cloud)
	}
	return a, nil
}

// Names returns the registered clouds, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Actions returns the steps supported for cloud.
func (r *Registry) Actions(cloud string) ([]string, error) {
	a, err := r.Get(cloud)
	if err != nil {
		return nil, err
	}
	return a.Actions(), nil
}

// LatestImportedTags implements image.Remote.
func (r *Registry) LatestImportedTags(ctx context.Context, c *image.Config) (tags.Tags, error) {
	a, err := r.Get(c.Cloud())
	if err != nil {
		return nil, err
	}
	return a.LatestImportedTags(ctx, c)
}

// DeleteImage implements image.Remote.
func (r *Registry) DeleteImage(ctx context.Context, c *image.Config, imageID string) error {
	a, err := r.Get(c.Cloud())
	if err != nil {
		return err
	}
	return a.DeleteImage(ctx, c, imageID)
}

// ImportImage imports c with its cloud's adapter.
func (r *Registry) ImportImage(ctx context.Context, c *image.Config) error {
	a, err := r.Get(c.Cloud())
	if err != nil {
		return err
	}
	return a.ImportImage(ctx, c)
}

// PublishImage publishes c with its cloud's adapter.
func (r *Registry) PublishImage(ctx context.Context, c *image.Config) error {
	a, err := r.Get(c.Cloud())
	if err != nil {
		return err
	}
	return a.PublishImage(ctx, c)
}

// TagImage refreshes remote state tags when the adapter keeps any.
func (r *Registry) TagImage(ctx context.Context, c *image.Config) error {
	a, err := r.Get(c.Cloud())
	if err != nil {
		return err
	}
	if t, ok := a.(Tagger); ok {
		return t.TagImage(ctx, c)
	}
	return nil
}
