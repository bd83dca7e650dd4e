package hcloud

import (
	"context"
	"fmt"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"
)

// resolveImage finds the named system image for the server architecture.
func (c *RealClient) resolveImage(ctx context.Context, name string, arch hcloud.Architecture) (*hcloud.Image, error) {
	image, _, err := c.client.Image.GetForArchitecture(ctx, name, arch)
	if err != nil {
		return nil, fmt.Errorf("failed to get image: %w", err)
	}
	if image == nil {
		return nil, fmt.Errorf("image not found: %s (%s)", name, arch)
	}
	return image, nil
}

// resolveSSHKeys resolves SSH key names or IDs.
func (c *RealClient) resolveSSHKeys(ctx context.Context, names []string) ([]*hcloud.SSHKey, error) {
	keys := make([]*hcloud.SSHKey, 0, len(names))
	for _, name := range names {
		key, _, err := c.client.SSHKey.Get(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to get ssh key %s: %w", name, err)
		}
		if key == nil {
			return nil, fmt.Errorf("ssh key not found: %s", name)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// resolveLocation resolves a location name; empty lets Hetzner choose.
func (c *RealClient) resolveLocation(ctx context.Context, name string) (*hcloud.Location, error) {
	if name == "" {
		return nil, nil
	}
	location, _, err := c.client.Location.Get(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get location %s: %w", name, err)
	}
	if location == nil {
		return nil, fmt.Errorf("location not found: %s", name)
	}
	return location, nil
}
