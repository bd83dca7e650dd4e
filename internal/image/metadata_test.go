package image

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestSaveMetadata_Local(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := newTestConfig(t)
	c.Set("revision", 2)
	c.Set("built", "2024-02-03T00:00:00")

	require.NoError(t, c.SaveMetadata(ctx, StepLocal))

	data, err := os.ReadFile(c.MetadataPath())
	require.NoError(t, err)
	var md map[string]any
	require.NoError(t, yaml.Unmarshal(data, &md))
	assert.Equal(t, "alpine-3.19.1-x86_64-bios-tiny-r2", md["name"])
	assert.Equal(t, "2", md["revision"])
	assert.Equal(t, "2024-02-03T00:00:00", md["built"])
	assert.Equal(t, "2024-02-03T04:05:06", md["metadata_updated"])
	assert.Nil(t, md["artifacts"])
	assert.NotContains(t, md, "imported")
	assert.FileExists(t, c.MetadataPath()+".sha512")

	s, err := c.Storage(ctx)
	require.NoError(t, err)
	stored, err := s.List(ctx, "*")
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestSaveMetadata_Stored(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := newTestConfig(t)
	c.Set("revision", 2)
	c.MarkPublished(map[string]string{"us-west-2": "ami-1"})

	require.NoError(t, c.SaveMetadata(ctx, StepPublish))

	s, err := c.Storage(ctx)
	require.NoError(t, err)
	stored, err := s.List(ctx, "*.yaml")
	require.NoError(t, err)
	assert.Equal(t, []string{c.MetadataFile()}, stored)

	data, err := os.ReadFile(c.MetadataPath())
	require.NoError(t, err)
	assert.Contains(t, string(data), "us-west-2: ami-1")
}

func TestLoadMetadata(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	saved := newTestConfig(t)
	saved.Set("revision", 1)
	saved.Set("uploaded", "2024-01-01T00:00:00")
	require.NoError(t, saved.SaveMetadata(ctx, StepLocal))

	loaded := New(saved.ConfigKey(), testAttrs(t.TempDir()), saved.Env())
	require.NoError(t, loaded.LoadMetadata())
	assert.False(t, loaded.Truthy("uploaded"), "nothing loads without a revision")

	loaded.Set("revision", 1)
	require.NoError(t, loaded.LoadMetadata())
	assert.Equal(t, "2024-01-01T00:00:00", loaded.String("uploaded"))
	assert.Equal(t, "alpine-{release}-{arch}-{firmware}-{bootstrap}-r{revision}", loaded.String("name"))
}

func TestLoadMetadata_Missing(t *testing.T) {
	t.Parallel()
	c := newTestConfig(t)
	c.Set("revision", 5)
	assert.NoError(t, c.LoadMetadata())
}
