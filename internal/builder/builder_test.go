package builder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/alpine-cloud-images/internal/config"
	"github.com/imamik/alpine-cloud-images/internal/image"
	"github.com/imamik/alpine-cloud-images/internal/metrics"
	"github.com/imamik/alpine-cloud-images/internal/tags"
	"github.com/imamik/alpine-cloud-images/internal/util/prerequisites"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (string, string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, name+" "+strings.Join(args, " "))
	f.mu.Unlock()

	switch name {
	case "packer":
		for i, a := range args {
			if a == "-var" && strings.HasPrefix(args[i+1], "output_dir=") {
				dir := strings.TrimPrefix(args[i+1], "output_dir=")
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return "", "", err
				}
				return "", "", os.WriteFile(filepath.Join(dir, "image.qcow2"), []byte("qcow2"), 0o644)
			}
		}
	case "ln":
		data, err := os.ReadFile(args[len(args)-2])
		if err != nil {
			return "", "", err
		}
		return "", "", os.WriteFile(args[len(args)-1], data, 0o644)
	}
	return "", "", nil
}

type fakeClouds struct {
	mu        sync.Mutex
	failOn    string
	tagged    []string
	deleted   []string
	published []string
}

func (f *fakeClouds) LatestImportedTags(context.Context, *image.Config) (tags.Tags, error) {
	return nil, nil
}

func (f *fakeClouds) DeleteImage(_ context.Context, _ *image.Config, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeClouds) ImportImage(_ context.Context, c *image.Config) error {
	if c.ConfigKey() == f.failOn {
		return errors.New("import rejected")
	}
	c.MarkImported("ami-"+c.Arch(), "us-west-2")
	return nil
}

func (f *fakeClouds) PublishImage(_ context.Context, c *image.Config) error {
	c.MarkPublished(map[string]string{"us-west-2": c.String("import_id")})
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, c.ConfigKey())
	return nil
}

func (f *fakeClouds) TagImage(_ context.Context, c *image.Config) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tagged = append(f.tagged, c.ConfigKey())
	return nil
}

func newConfig(t *testing.T, dir, arch string, runner *fakeRunner, actions ...string) *image.Config {
	t.Helper()
	attrs := config.TreeOf(
		"project", "test-project",
		"cloud", "aws",
		"image_key", "3.19.1-"+arch+"-bios-tiny-aws",
		"version", "3.19",
		"release", "3.19.1",
		"arch", arch,
		"firmware", "bios",
		"bootstrap", "tiny",
		"revision", 0,
		"name", "alpine-{release}-{arch}-{firmware}-{bootstrap}-r{revision}",
		"description", "Alpine Linux {release}",
		"image_format", "qcow2",
		"storage_url", "file://"+filepath.Join(dir, "store"),
		"actions", actions,
	)
	env := &image.Env{
		WorkDir: filepath.Join(dir, "work"),
		Runner:  runner,
		Now:     func() time.Time { return time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC) },
	}
	return image.New("3.19-"+arch+"-bios-tiny-aws", attrs, env)
}

func allTools([]prerequisites.Tool) *prerequisites.CheckResults {
	return &prerequisites.CheckResults{}
}

func TestBuilder_RunAllActions(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	runner := &fakeRunner{}
	clouds := &fakeClouds{}
	rec := metrics.New()
	c := newConfig(t, dir, "x86_64", runner, image.Steps...)

	b := New(Options{
		Clouds:         clouds,
		Runner:         runner,
		PackerTemplate: "alpine.pkr.hcl",
		ImagesYAML:     filepath.Join(dir, "work", "images.yaml"),
		Parallel:       2,
		Metrics:        rec,
		CheckTools:     allTools,
	})

	results, err := b.Run(context.Background(), image.StepRelease, []*image.Config{c})
	require.NoError(t, err)
	require.Equal(t, []Result{{Key: c.ConfigKey()}}, results)

	assert.True(t, c.Truthy("built"))
	assert.True(t, c.Truthy("uploaded"))
	assert.Equal(t, "ami-x86_64", c.String("import_id"))
	assert.True(t, c.Truthy("published"))
	assert.True(t, c.Truthy("released"))
	assert.Empty(t, c.Actions())
	assert.Equal(t, []string{c.ConfigKey()}, clouds.tagged)

	assert.FileExists(t, filepath.Join(dir, "store", c.ImageFile()))
	assert.FileExists(t, filepath.Join(dir, "store", c.MetadataFile()))

	require.NotEmpty(t, runner.calls)
	assert.Contains(t, runner.calls[0], "packer build -timestamp-ui -only=qemu.3.19-x86_64-bios-tiny-aws")
	assert.Contains(t, runner.calls[0], "alpine.pkr.hcl")

	n, err := testutil.GatherAndCount(rec.Registry(), "alpine_cloud_images_build_actions_total")
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestBuilder_SkipsPackerWhenBuilt(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	runner := &fakeRunner{}
	c := newConfig(t, dir, "x86_64", runner, image.StepLocal)
	require.NoError(t, os.MkdirAll(c.LocalDir(), 0o755))
	require.NoError(t, os.WriteFile(c.LocalImage(), []byte("qcow2"), 0o644))

	b := New(Options{Clouds: &fakeClouds{}, Runner: runner, CheckTools: allTools})
	results, err := b.Run(context.Background(), image.StepLocal, []*image.Config{c})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)

	for _, call := range runner.calls {
		assert.False(t, strings.HasPrefix(call, "packer"), call)
	}
	assert.FileExists(t, c.ImagePath())
}

func TestBuilder_FailureDoesNotStopOthers(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	runner := &fakeRunner{}
	good := newConfig(t, dir, "x86_64", runner, image.StepImport, image.StepPublish)
	bad := newConfig(t, dir, "aarch64", runner, image.StepImport, image.StepPublish)
	clouds := &fakeClouds{failOn: bad.ConfigKey()}

	b := New(Options{Clouds: clouds, Runner: runner, Parallel: 2, CheckTools: allTools})
	results, err := b.Run(context.Background(), image.StepPublish, []*image.Config{good, bad})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.NoError(t, results[0].Err)
	require.Error(t, results[1].Err)
	assert.Equal(t, "import: import rejected", results[1].Err.Error())
	assert.Equal(t, []string{good.ConfigKey()}, clouds.published)
	assert.Equal(t, []string{"import", "publish"}, bad.Actions())
}

func TestBuilder_NothingToDo(t *testing.T) {
	t.Parallel()
	c := newConfig(t, t.TempDir(), "x86_64", &fakeRunner{})
	results, err := New(Options{Clouds: &fakeClouds{}}).Run(context.Background(), image.StepLocal, []*image.Config{c})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestBuilder_MissingTools(t *testing.T) {
	t.Parallel()
	c := newConfig(t, t.TempDir(), "x86_64", &fakeRunner{}, image.StepLocal)
	var checked []string
	b := New(Options{
		Clouds: &fakeClouds{},
		CheckTools: func(tools []prerequisites.Tool) *prerequisites.CheckResults {
			for _, tool := range tools {
				checked = append(checked, tool.Name)
			}
			return &prerequisites.CheckResults{Missing: tools}
		},
	})
	_, err := b.Run(context.Background(), image.StepLocal, []*image.Config{c})
	require.ErrorContains(t, err, "missing required tools: packer")
	assert.Equal(t, []string{"packer", "ln"}, checked)
}

func TestBuilder_Rollback(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	c := newConfig(t, dir, "x86_64", &fakeRunner{})
	require.NoError(t, os.MkdirAll(c.LocalDir(), 0o755))
	require.NoError(t, os.WriteFile(c.LocalImage(), []byte("qcow2"), 0o644))
	c.Set("imported", "2024-02-03T04:05:06")
	c.Set("import_id", "ami-1")
	c.Set("undo", []string{image.StepLocal, image.StepImport})

	clouds := &fakeClouds{}
	results, err := New(Options{Clouds: clouds}).Run(context.Background(), image.StepRollback, []*image.Config{c})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)

	assert.NoDirExists(t, c.LocalDir())
	assert.Equal(t, []string{"ami-1"}, clouds.deleted)
	assert.Empty(t, c.Undo())
	assert.False(t, c.Truthy("imported"))
}
