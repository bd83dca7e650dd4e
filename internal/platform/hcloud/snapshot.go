package hcloud

import (
	"context"
	"fmt"
	"sort"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"

	"github.com/imamik/alpine-cloud-images/internal/util/labels"
	"github.com/imamik/alpine-cloud-images/internal/util/retry"
)

// CreateSnapshot snapshots the server's disk and waits for it to finish.
func (c *RealClient) CreateSnapshot(ctx context.Context, serverID, description string, lbls map[string]string) (string, error) {
	id, err := parseID("server", serverID)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeouts.SnapshotImport)
	defer cancel()

	result, _, err := c.client.Server.CreateImage(ctx, &hcloud.Server{ID: id}, &hcloud.ServerCreateImageOpts{
		Type:        hcloud.ImageTypeSnapshot,
		Description: hcloud.Ptr(description),
		Labels:      lbls,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create snapshot: %w", err)
	}
	if err := waitForActions(ctx, c.client, result.Action); err != nil {
		return "", fmt.Errorf("failed to wait for snapshot creation: %w", err)
	}
	return fmt.Sprintf("%d", result.Image.ID), nil
}

// DeleteImage deletes an image by ID, retrying while it is locked.
func (c *RealClient) DeleteImage(ctx context.Context, imageID string) error {
	id, err := parseID("image", imageID)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Delete)
	defer cancel()

	return retry.WithExponentialBackoff(ctx, func() error {
		_, err := c.client.Image.Delete(ctx, &hcloud.Image{ID: id})
		switch {
		case err == nil, IsNotFound(err):
			return nil
		case isResourceLocked(err):
			return err
		default:
			return retry.Fatal(fmt.Errorf("failed to delete image: %w", err))
		}
	}, retry.WithMaxRetries(c.timeouts.RetryMaxAttempts), retry.WithInitialDelay(c.timeouts.RetryInitialDelay))
}

// SnapshotsByLabels returns the snapshots matching all labels, newest first.
func (c *RealClient) SnapshotsByLabels(ctx context.Context, lbls map[string]string) ([]*hcloud.Image, error) {
	opts := hcloud.ImageListOpts{
		ListOpts: hcloud.ListOpts{LabelSelector: labels.Selector(lbls)},
		Type:     []hcloud.ImageType{hcloud.ImageTypeSnapshot},
	}
	images, err := c.client.Image.AllWithOpts(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}
	sort.SliceStable(images, func(i, j int) bool {
		return images[i].Created.After(images[j].Created)
	})
	return images, nil
}

// UpdateImage replaces an image's description and labels.
func (c *RealClient) UpdateImage(ctx context.Context, imageID, description string, lbls map[string]string) error {
	id, err := parseID("image", imageID)
	if err != nil {
		return err
	}
	opts := hcloud.ImageUpdateOpts{Labels: lbls}
	if description != "" {
		opts.Description = hcloud.Ptr(description)
	}
	if _, _, err := c.client.Image.Update(ctx, &hcloud.Image{ID: id}, opts); err != nil {
		return fmt.Errorf("failed to update image %s: %w", imageID, err)
	}
	return nil
}

// ProtectImage enables or disables delete protection.
func (c *RealClient) ProtectImage(ctx context.Context, imageID string, protect bool) error {
	id, err := parseID("image", imageID)
	if err != nil {
		return err
	}
	action, _, err := c.client.Image.ChangeProtection(ctx, &hcloud.Image{ID: id}, hcloud.ImageChangeProtectionOpts{
		Delete: hcloud.Ptr(protect),
	})
	if err != nil {
		return fmt.Errorf("failed to change protection of image %s: %w", imageID, err)
	}
	return waitForActions(ctx, c.client, action)
}
