package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSettings_Defaults(t *testing.T) {
	s, err := LoadSettings()
	require.NoError(t, err)

	assert.Equal(t, "work", s.WorkDir)
	assert.Equal(t, "https://alpinelinux.org/releases.json", s.ReleasesURL)
	assert.Equal(t, filepath.Join("work", "images.yaml"), s.ImagesYAML())
}

func TestLoadSettings_Env(t *testing.T) {
	t.Setenv("ALPINE_CLOUD_WORK_DIR", "/tmp/build")
	t.Setenv("HCLOUD_TOKEN", "secret")
	t.Setenv("ALPINE_CLOUD_S3_ENDPOINT", "https://fsn1.your-objectstorage.com")

	s, err := LoadSettings()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/build", s.WorkDir)
	assert.Equal(t, "secret", s.HCloudToken)
	assert.Equal(t, "https://fsn1.your-objectstorage.com", s.S3Endpoint)
}
