// Package image models a single resolved image configuration and its
// lifecycle through the build steps local, upload, import, publish and
// release.
//
// A [Config] wraps the ordered attribute tree produced by resolving the
// layered configuration. Attribute values that Packer consumes are flattened
// into strings by [Config.Normalize]. [Config.RefreshState] reconciles the
// local work directory, stored metadata and the latest image known to the
// cloud, and decides which actions are still needed.
package image
