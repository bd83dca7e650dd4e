package labels

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/imamik/alpine-cloud-images/internal/tags"
)

func TestFromTags_RoundTripsTimestamps(t *testing.T) {
	t.Parallel()
	in := tags.Tags{
		"project":   "alpine-cloud-images",
		"image_key": "3.18.4-x86_64-bios-tiny-hetzner",
		"revision":  "2",
		"imported":  "2023-10-01T12:30:45.000000",
		"name":      "not kept as a label",
	}

	l := FromTags(in)

	assert.Equal(t, ManagedBy, l[KeyManagedBy])
	assert.Equal(t, TypeImage, l[KeyType])
	assert.Equal(t, "1696163445", l["imported"])
	assert.NotContains(t, l, "name")

	out := ToTags(l)
	assert.Equal(t, "2023-10-01T12:30:45", out["imported"])
	assert.Equal(t, "2", out["revision"])
	assert.Equal(t, in["image_key"], out["image_key"])
}

func TestSanitize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"already valid", "3.18.4", "3.18.4"},
		{"colon replaced", "a:b", "a_b"},
		{"trim edges", "-abc-", "abc"},
		{"space", "tiny cloud", "tiny_cloud"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Sanitize(tt.in))
		})
	}
}

func TestSanitize_Truncates(t *testing.T) {
	t.Parallel()
	got := Sanitize(strings.Repeat("a", 100))
	assert.Len(t, got, 63)
}

func TestSelector_Sorted(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "a=1,b=2,c=3", Selector(map[string]string{"c": "3", "a": "1", "b": "2"}))
}

func TestForBuildResource(t *testing.T) {
	t.Parallel()
	l := ForBuildResource("my project", TypeBuildServer)

	assert.Equal(t, map[string]string{
		KeyManagedBy: ManagedBy,
		KeyType:      TypeBuildServer,
		"project":    "my_project",
	}, l)
}

func TestMerge_DoesNotMutate(t *testing.T) {
	t.Parallel()
	base := map[string]string{"a": "1"}
	got := Merge(base, map[string]string{"b": "2"})

	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, got)
	assert.Len(t, base, 1)
}
