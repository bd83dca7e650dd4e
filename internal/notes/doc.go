// Package notes validates maintainer note files: flat Markdown bullet lists
// where every item is a "* " line optionally followed by indented
// continuation lines.
package notes
