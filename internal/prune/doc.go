// Package prune decides which cached images to remove and removes them.
package prune
