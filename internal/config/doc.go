// Package config loads the layered image configuration and the process
// settings that drive a build.
//
// A configuration document has three layers: Default, Dimensions and
// Mandatory. [Tree] keeps YAML key order so that the cartesian product of
// dimension keys, and the names derived from it, are stable. [Merge] combines
// layers additively and [Format] expands {placeholders} in string values.
//
// [Settings] come from the environment and [Timeouts] tune the waits of the
// cloud adapters.
package config
