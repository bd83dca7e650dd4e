package tags

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_StringifiesValues(t *testing.T) {
	tg := New(map[string]any{
		"revision": 3,
		"released": nil,
		"public":   true,
		"version":  "3.18",
	})

	assert.Equal(t, Tags{"revision": "3", "released": "", "public": "true", "version": "3.18"}, tg)
}

func TestTruthy(t *testing.T) {
	tg := Tags{"a": "x", "b": "", "c": "None", "d": "false", "e": "0"}

	assert.True(t, tg.Truthy("a"))
	assert.False(t, tg.Truthy("b"))
	assert.False(t, tg.Truthy("c"))
	assert.False(t, tg.Truthy("d"))
	assert.True(t, tg.Truthy("e"))
	assert.False(t, tg.Truthy("missing"))
}

func TestAsList_SortedByKey(t *testing.T) {
	tg := Tags{"version": "3.18", "arch": "x86_64"}

	assert.Equal(t, []map[string]string{
		{"Key": "arch", "Value": "x86_64"},
		{"Key": "version", "Value": "3.18"},
	}, tg.AsList(DefaultKeyName, DefaultValueName))

	assert.Equal(t, []map[string]string{
		{"name": "arch", "value": "x86_64"},
		{"name": "version", "value": "3.18"},
	}, tg.AsList("name", "value"))
}

func TestFromList(t *testing.T) {
	list := []map[string]string{
		{"Key": "arch", "Value": "aarch64"},
		{"Value": "orphan"},
		{"Key": "cloud", "Value": "aws"},
	}

	assert.Equal(t, Tags{"arch": "aarch64", "cloud": "aws"}, FromList(list, DefaultKeyName, DefaultValueName))
}

func TestClone_Independent(t *testing.T) {
	orig := Tags{"a": "1"}
	c := orig.Clone()
	c["a"] = "2"

	assert.Equal(t, "1", orig["a"])
}
