// Package labels converts image tags to Hetzner Cloud labels and back.
//
// Hetzner labels restrict values to 63 characters of [A-Za-z0-9._-], so
// timestamps are stored as unix seconds and other values are sanitized.
// Only the tags needed to find and classify an image are kept as labels;
// the image name travels in the snapshot description.
package labels
