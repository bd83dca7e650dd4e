package image

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/imamik/alpine-cloud-images/internal/config"
	"github.com/imamik/alpine-cloud-images/internal/util/naming"
)

// MetadataPath is the local metadata file.
func (c *Config) MetadataPath() string {
	return filepath.Join(c.LocalDir(), c.MetadataFile())
}

// Metadata returns the tags, artifacts and update time that SaveMetadata writes.
func (c *Config) Metadata() *config.Tree {
	md := config.NewTree()
	t := c.Tags()
	for _, k := range t.Keys() {
		md.Set(k, t.Get(k))
	}
	if artifacts := c.attrs.Tree("artifacts"); artifacts != nil {
		md.Set("artifacts", artifacts.Clone())
	} else {
		md.Set("artifacts", nil)
	}
	md.Set("metadata_updated", c.String("metadata_updated"))
	return md
}

// SaveMetadata writes the image metadata file with checksums and, unless
// action is local, stores it next to the image.
func (c *Config) SaveMetadata(ctx context.Context, action string) error {
	if err := os.MkdirAll(c.LocalDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", c.LocalDir(), err)
	}

	log.Printf("Saving image metadata")
	c.Set("metadata_updated", c.env.timestamp())

	data, err := yaml.Marshal(c.Metadata())
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	path := c.MetadataPath()
	if err := os.WriteFile(path, append([]byte("---\n"), data...), 0o644); err != nil { // #nosec G306 - metadata is public
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := saveChecksums(path); err != nil {
		return err
	}
	if err := c.sign(path); err != nil {
		return err
	}

	if action == StepLocal {
		return nil
	}

	s, err := c.Storage(ctx)
	if err != nil {
		return err
	}
	files := append([]string{c.MetadataFile()}, naming.ChecksumFiles(c.MetadataFile())...)
	if c.env.Signer != nil {
		files = append(files, naming.SignatureFile(c.MetadataFile()))
	}
	return s.Store(ctx, files, false)
}

// LoadMetadata merges a previously saved metadata file into the config.
// Nothing is loaded until a revision is known, since the revision is part
// of the file name.
func (c *Config) LoadMetadata() error {
	if !c.attrs.Has("revision") {
		return nil
	}

	path := c.MetadataPath()
	data, err := os.ReadFile(path) // #nosec G304 - local image directory
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	log.Printf("Loading image metadata from %s", path)
	md := config.NewTree()
	if err := yaml.Unmarshal(data, md); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	md.Each(func(k string, v any) {
		if !templateTags[k] {
			c.Set(k, v)
		}
	})
	return nil
}
