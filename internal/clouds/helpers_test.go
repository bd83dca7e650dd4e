package clouds

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/imamik/alpine-cloud-images/internal/config"
	"github.com/imamik/alpine-cloud-images/internal/image"
)

var fixedNow = time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)

func testTimeouts() *config.Timeouts {
	return &config.Timeouts{
		ServerCreate:      time.Second,
		ServerIP:          time.Second,
		Rescue:            time.Second,
		Delete:            time.Second,
		SnapshotImport:    time.Second,
		ImageWait:         time.Second,
		Command:           time.Second,
		RetryMaxAttempts:  1,
		RetryInitialDelay: time.Millisecond,
		PollInterval:      time.Millisecond,
	}
}

func newTestConfig(t *testing.T, cloud, format string) *image.Config {
	t.Helper()
	dir := t.TempDir()
	attrs := config.TreeOf(
		"project", "test-project",
		"cloud", cloud,
		"image_key", "3.19.1-x86_64-bios-tiny-"+cloud,
		"version", "3.19",
		"release", "3.19.1",
		"arch", "x86_64",
		"firmware", "bios",
		"bootstrap", "tiny",
		"end_of_life", "2025-11-01",
		"revision", 0,
		"name", "alpine-{release}-{arch}-{firmware}-{bootstrap}-r{revision}",
		"description", "Alpine Linux {release} ({bootstrap})",
		"image_format", format,
		"storage_url", "file://"+filepath.Join(dir, "store"),
	)
	env := &image.Env{
		WorkDir: filepath.Join(dir, "work"),
		Now:     func() time.Time { return fixedNow },
	}
	return image.New("3.19-x86_64-bios-tiny-"+cloud, attrs, env)
}

func writeImage(t *testing.T, c *image.Config, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(c.LocalDir(), 0o755))
	require.NoError(t, os.WriteFile(c.ImagePath(), data, 0o644))
}
