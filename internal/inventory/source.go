package inventory

import "context"

// RawImage is an image as the cloud reports it.
type RawImage struct {
	ID      string
	Name    string
	Created string
	// LastLaunched is empty when the image was never launched.
	LastLaunched string
	// Deprecated is the deprecation time in RFC 3339 form, or empty.
	Deprecated string
	Public     bool
	SnapshotID string
}

// Source lists the account's available images.
type Source interface {
	Regions(ctx context.Context) ([]string, error)
	// ListImages returns the images in region, oldest first.
	ListImages(ctx context.Context, region string) ([]RawImage, error)
}
