// Package inventory builds the image cache: every published Alpine image per
// region, parsed from its name, plus the latest release of each variant.
// The cache feeds image pruning.
package inventory
