package prune

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/alpine-cloud-images/internal/inventory"
)

func testImage(name, releaseKey string, mods ...func(*inventory.Image)) inventory.Image {
	img := inventory.Image{
		Name:       name,
		Version:    "3.19",
		VariantKey: "3.19-x86_64-bios-tiny",
		ReleaseKey: releaseKey,
		Launched:   "2024-01-01T00:00:00Z",
		SnapshotID: "snap-" + releaseKey,
	}
	for _, m := range mods {
		m(&img)
	}
	return img
}

func private(i *inventory.Image) { i.Private = true }
func eol(i *inventory.Image)     { i.EOL = true }
func unused(i *inventory.Image)  { i.Launched = inventory.Never }
func rc(i *inventory.Image)      { i.RC = true }
func edge(i *inventory.Image)    { i.Version = "edge" }

var latest = map[string]inventory.Latest{
	"3.19-x86_64-bios-tiny": {Release: "3.19.2", Revision: "0", ReleaseKey: "3.19.2-0"},
}

var all = Selection{
	Private: true, EdgeEOL: true, RC: true,
	EOLUnusedNotLatest: true, EOLNotLatest: true, UnusedNotLatest: true,
}

func TestClassify(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		img  inventory.Image
		sel  Selection
		want string
	}{
		{"private", testImage("a", "3.19.2-0", private, eol), all, ReasonPrivate},
		{"private not selected", testImage("a", "3.19.2-0", private), Selection{}, ReasonKept},
		{"edge eol", testImage("a", "1", edge, eol), all, ReasonEdgeEOL},
		{"rc", testImage("a", "3.19.2-0", rc), all, ReasonRC},
		{"unknown variant", testImage("a", "3.19.2-0", func(i *inventory.Image) { i.VariantKey = "3.18-x" }), all, ReasonUnknownVariant},
		{"eol unused not latest", testImage("a", "3.19.1-0", eol, unused), all, ReasonEOLUnusedNotLatest},
		{"eol not latest", testImage("a", "3.19.1-0", eol), all, ReasonEOLNotLatest},
		{"eol unused only eol-not-latest selected", testImage("a", "3.19.1-0", eol, unused), Selection{EOLNotLatest: true}, ReasonEOLNotLatest},
		{"unused not latest", testImage("a", "3.19.1-0", unused), all, ReasonUnusedNotLatest},
		{"latest unused eol", testImage("a", "3.19.2-0", eol, unused), all, ReasonKept},
		{"used not latest", testImage("a", "3.19.1-0"), all, ReasonKept},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.img, latest, tt.sel))
		})
	}
}

func testCache() inventory.Cache {
	return inventory.Cache{
		"us-east-1": {
			Images: map[string]inventory.Image{
				"ami-1": testImage("alpine-3.19.1-x86_64-bios-tiny-r0", "3.19.1-0", unused),
				"ami-2": testImage("alpine-3.19.2-x86_64-bios-tiny-r0", "3.19.2-0", unused),
				"ami-3": testImage("alpine-3.19.0-x86_64-bios-tiny-r0", "3.19.0-0", private),
			},
			Latest: latest,
		},
		"eu-west-1": {
			Images: map[string]inventory.Image{
				"ami-9": testImage("alpine-3.19.1-x86_64-bios-tiny-r0", "3.19.1-0", unused),
			},
			Latest: latest,
		},
	}
}

func TestNewPlan(t *testing.T) {
	t.Parallel()
	p := NewPlan(testCache(), nil, Selection{Private: true, UnusedNotLatest: true})

	require.Len(t, p.Removals, 3)
	assert.Equal(t, "eu-west-1", p.Removals[0].Region)
	assert.Equal(t, "ami-9", p.Removals[0].ID)
	assert.Equal(t, ReasonUnusedNotLatest, p.Removals[1].Reason)
	assert.Equal(t, "ami-1", p.Removals[1].ID)
	assert.Equal(t, ReasonPrivate, p.Removals[2].Reason)

	assert.Equal(t, []string{"eu-west-1", "us-east-1"}, p.Regions())
	assert.Equal(t, []Count{
		{Reason: ReasonPrivate, Count: 1},
		{Reason: ReasonUnusedNotLatest, Count: 1},
		{Reason: ReasonKept, Count: 1},
	}, p.RegionCounts("us-east-1"))
	assert.Equal(t, []Count{
		{Reason: ReasonPrivate, Count: 1},
		{Reason: ReasonUnusedNotLatest, Count: 2},
		{Reason: ReasonKept, Count: 1},
	}, p.Totals())
	assert.Equal(t, "alpine-3.19.2-x86_64-bios-tiny-r0", p.Summary["us-east-1"][ReasonKept]["ami-2"])
}

func TestNewPlan_SelectedRegions(t *testing.T) {
	t.Parallel()
	p := NewPlan(testCache(), []string{"us-east-1", "ap-south-1"}, Selection{Private: true})
	assert.Equal(t, []string{"us-east-1"}, p.Regions())
	require.Len(t, p.Removals, 1)
	assert.Equal(t, "ami-3", p.Removals[0].ID)
}

func TestRemoves(t *testing.T) {
	t.Parallel()
	assert.True(t, Removes(ReasonRC))
	assert.False(t, Removes(ReasonKept))
	assert.False(t, Removes(ReasonUnknownVariant))
}

type fakeRemover struct {
	deregistered []string
	deleted      []string
	failOn       string
}

func (f *fakeRemover) DeregisterImage(_ context.Context, region, id string) error {
	if id == f.failOn {
		return errors.New("in use")
	}
	f.deregistered = append(f.deregistered, region+"/"+id)
	return nil
}

func (f *fakeRemover) DeleteSnapshot(_ context.Context, region, id string) error {
	f.deleted = append(f.deleted, region+"/"+id)
	return nil
}

func TestPlan_Execute(t *testing.T) {
	t.Parallel()
	p := NewPlan(testCache(), nil, Selection{Private: true, UnusedNotLatest: true})
	r := &fakeRemover{failOn: "ami-1"}
	var outcomes []string

	failed := p.Execute(context.Background(), r, func(rm Removal, err error) {
		outcomes = append(outcomes, fmt.Sprintf("%s:%t", rm.ID, err == nil))
	})

	assert.Equal(t, 1, failed)
	assert.Equal(t, []string{"ami-9:true", "ami-1:false", "ami-3:true"}, outcomes)
	assert.Equal(t, []string{"eu-west-1/ami-9", "us-east-1/ami-3"}, r.deregistered)
	assert.Equal(t, []string{"eu-west-1/snap-3.19.1-0", "us-east-1/snap-3.19.0-0"}, r.deleted)
}

func TestPlan_ExecuteCancelled(t *testing.T) {
	t.Parallel()
	p := NewPlan(testCache(), nil, Selection{Private: true})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := &fakeRemover{}
	assert.Equal(t, 1, p.Execute(ctx, r))
	assert.Empty(t, r.deregistered)
}
