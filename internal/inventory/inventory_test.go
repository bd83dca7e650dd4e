package inventory

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func TestParse(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		want Parsed
		ok   bool
	}{
		{
			name: "alpine-3.19.1-x86_64-bios-tiny-r2",
			want: Parsed{
				Release: "3.19.1", Version: "3.19", Variant: "x86_64-bios-tiny", Revision: "2",
				VariantKey: "3.19-x86_64-bios-tiny", ReleaseKey: "3.19.1-2",
			},
			ok: true,
		},
		{
			name: "alpine-3.20.0_rc1-aarch64-uefi-cloudinit-r0",
			want: Parsed{
				Release: "3.20.0", Version: "3.20", Variant: "aarch64-uefi-cloudinit", Revision: "0", RC: true,
				VariantKey: "3.20-aarch64-uefi-cloudinit", ReleaseKey: "3.20.0-0",
			},
			ok: true,
		},
		{
			name: "alpine-edge-x86_64-uefi-tiny-r20240101",
			want: Parsed{
				Release: "edge", Version: "edge", Variant: "x86_64-uefi-tiny", Revision: "20240101",
				VariantKey: "edge-x86_64-uefi-tiny", ReleaseKey: "20240101",
			},
			ok: true,
		},
		{name: "debian-12-amd64", ok: false},
		{name: "alpine-custom", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse(tt.name)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCache_AddTracksLatest(t *testing.T) {
	t.Parallel()
	c := Cache{}
	for _, img := range []RawImage{
		{ID: "ami-1", Name: "alpine-3.19.0-x86_64-bios-tiny-r0"},
		{ID: "ami-2", Name: "alpine-3.19.1-x86_64-bios-tiny-r0"},
		{ID: "ami-3", Name: "alpine-3.19.1-x86_64-bios-tiny-r1"},
		{ID: "ami-4", Name: "alpine-3.19.10-x86_64-bios-tiny-r0"},
		{ID: "ami-5", Name: "alpine-3.19.9-x86_64-bios-tiny-r3"},
	} {
		require.True(t, c.Add("us-east-1", img, now))
	}

	assert.Equal(t, Latest{Release: "3.19.10", Revision: "0", ReleaseKey: "3.19.10-0"},
		c["us-east-1"].Latest["3.19-x86_64-bios-tiny"])
	assert.Len(t, c["us-east-1"].Images, 5)
}

func TestCache_AddImageFields(t *testing.T) {
	t.Parallel()
	c := Cache{}
	require.True(t, c.Add("us-east-1", RawImage{
		ID:         "ami-1",
		Name:       "alpine-3.18.4-x86_64-bios-tiny-r0",
		Created:    "2023-10-01T00:00:00.000Z",
		Deprecated: "2024-05-09T00:00:00.000Z",
		SnapshotID: "snap-1",
	}, now))
	require.True(t, c.Add("us-east-1", RawImage{
		ID:           "ami-2",
		Name:         "alpine-3.20.0-x86_64-bios-tiny-r0",
		LastLaunched: "2024-05-30T10:00:00Z",
		Deprecated:   "2026-04-01T00:00:00.000Z",
		Public:       true,
	}, now))

	old := c["us-east-1"].Images["ami-1"]
	assert.Equal(t, Never, old.Launched)
	assert.True(t, old.EOL)
	assert.True(t, old.Private)
	assert.Equal(t, "snap-1", old.SnapshotID)

	current := c["us-east-1"].Images["ami-2"]
	assert.Equal(t, "2024-05-30T10:00:00Z", current.Launched)
	assert.False(t, current.EOL)
	assert.False(t, current.Private)
}

func TestCache_AddRejectsUnparsable(t *testing.T) {
	t.Parallel()
	c := Cache{}
	assert.False(t, c.Add("us-east-1", RawImage{ID: "ami-1", Name: "alpine-thing"}, now))
	assert.Empty(t, c)
}

func TestCompareReleases(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 0, compareReleases("3.19.1", "3.19.1"))
	assert.Equal(t, 1, compareReleases("3.19.10", "3.19.9"))
	assert.Equal(t, -1, compareReleases("3.19.1", "edge"))
	assert.Equal(t, 1, compareReleases("edge", "3.20.0"))
}

type fakeSource struct {
	regions []string
	images  map[string][]RawImage
}

func (f *fakeSource) Regions(context.Context) ([]string, error) { return f.regions, nil }

func (f *fakeSource) ListImages(_ context.Context, region string) ([]RawImage, error) {
	return f.images[region], nil
}

func TestCollect(t *testing.T) {
	t.Parallel()
	src := &fakeSource{
		regions: []string{"us-west-2", "eu-west-1"},
		images: map[string][]RawImage{
			"us-west-2": {
				{ID: "ami-1", Name: "alpine-3.19.1-x86_64-bios-tiny-r0"},
				{ID: "ami-2", Name: "ubuntu-22.04"},
				{ID: "ami-3", Name: "alpine-broken"},
			},
			"eu-west-1": {
				{ID: "ami-4", Name: "alpine-3.19.1-x86_64-bios-tiny-r0"},
			},
		},
	}

	cache, err := Collect(context.Background(), src, "", now)
	require.NoError(t, err)
	assert.Equal(t, []string{"eu-west-1", "us-west-2"}, cache.Regions())
	assert.Equal(t, 2, cache.Total())
	assert.Contains(t, cache["us-west-2"].Images, "ami-1")
	assert.NotContains(t, cache["us-west-2"].Images, "ami-2")

	one, err := Collect(context.Background(), src, "eu-west-1", now)
	require.NoError(t, err)
	assert.Equal(t, []string{"eu-west-1"}, one.Regions())

	_, err = Collect(context.Background(), src, "mars-1", now)
	assert.ErrorContains(t, err, "invalid region: mars-1")
}

func TestCache_WriteRead(t *testing.T) {
	t.Parallel()
	c := Cache{}
	require.True(t, c.Add("us-east-1", RawImage{
		ID: "ami-1", Name: "alpine-3.19.1-x86_64-bios-tiny-r0", Created: "2024-01-01T00:00:00.000Z",
	}, now))

	var buf bytes.Buffer
	require.NoError(t, c.Write(&buf))
	assert.Contains(t, buf.String(), "---\nus-east-1:\n  images:\n    ami-1:\n      name: alpine-3.19.1-x86_64-bios-tiny-r0\n")
	assert.Contains(t, buf.String(), "launched: Never")

	got, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestRead_Empty(t *testing.T) {
	t.Parallel()
	got, err := Read(bytes.NewReader(nil))
	require.NoError(t, err)
	assert.Empty(t, got)
}
