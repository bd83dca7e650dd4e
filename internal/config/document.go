package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ErrNoDimensions is returned when a configuration document has no
// Dimensions section or no version dimension.
var ErrNoDimensions = errors.New("configuration has no dimensions")

// Document is a layered image configuration.
//
// Every image is the product of one key from each dimension. Its attributes
// are Default, then the config of each of its dimension keys in dimension
// order, then Mandatory.
type Document struct {
	Default    *Tree
	Dimensions *Tree
	Mandatory  *Tree
}

// DimensionNames returns the dimension names in declaration order.
func (d *Document) DimensionNames() []string {
	return d.Dimensions.Keys()
}

// DimensionKeys returns the keys of one dimension in declaration order.
func (d *Document) DimensionKeys(dim string) []string {
	return d.Dimensions.Tree(dim).Keys()
}

// DimensionConfig returns the config tree of a single dimension key.
func (d *Document) DimensionConfig(dim, key string) *Tree {
	return d.Dimensions.Tree(dim).Tree(key)
}

// ParseDocument parses a configuration document from YAML.
func ParseDocument(data []byte) (*Document, error) {
	root := NewTree()
	if err := yaml.Unmarshal(data, root); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	return documentFromTree(root)
}

// LoadDocument reads the configuration at path and merges each overlay file
// onto it, in order, before the layers are split apart.
func LoadDocument(path string, overlays ...string) (*Document, error) {
	root, err := readTree(path)
	if err != nil {
		return nil, err
	}

	for _, overlay := range overlays {
		if !filepath.IsAbs(overlay) {
			if _, err := os.Stat(overlay); err != nil {
				overlay = filepath.Join(filepath.Dir(path), overlay)
			}
		}
		custom, err := readTree(overlay)
		if err != nil {
			return nil, fmt.Errorf("failed to load overlay: %w", err)
		}
		Merge(root, custom)
	}

	return documentFromTree(root)
}

func readTree(path string) (*Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	root := NewTree()
	if err := yaml.Unmarshal(data, root); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return root, nil
}

func documentFromTree(root *Tree) (*Document, error) {
	doc := &Document{
		Default:    root.Tree("Default"),
		Dimensions: root.Tree("Dimensions"),
		Mandatory:  root.Tree("Mandatory"),
	}
	if doc.Default == nil {
		doc.Default = NewTree()
	}
	if doc.Mandatory == nil {
		doc.Mandatory = NewTree()
	}
	if doc.Dimensions.Len() == 0 {
		return nil, ErrNoDimensions
	}
	if doc.Dimensions.Tree("version").Len() == 0 {
		return nil, fmt.Errorf("%w: version dimension is required", ErrNoDimensions)
	}

	for _, dim := range doc.Dimensions.Keys() {
		keys := doc.Dimensions.Tree(dim)
		if keys == nil {
			return nil, fmt.Errorf("dimension %q must be a mapping", dim)
		}
		for _, key := range keys.Keys() {
			if keys.Value(key) == nil {
				keys.Set(key, NewTree())
				continue
			}
			if keys.Tree(key) == nil {
				return nil, fmt.Errorf("dimension %s key %q must be a mapping", dim, key)
			}
		}
	}

	return doc, nil
}
