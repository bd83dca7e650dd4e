package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMerge(t *testing.T) {
	dst := TreeOf(
		"name", []any{"alpine"},
		"motd", TreeOf("welcome", "hi", "release_notes", "notes"),
		"size", "1G",
		"keep", "me",
	)
	src := TreeOf(
		"name", []any{"3.15"},
		"motd", TreeOf("release_notes", nil, "extra", "x"),
		"size", "2G",
		"new", true,
	)

	Merge(dst, src)

	assert.Equal(t, []string{"name", "motd", "size", "keep", "new"}, dst.Keys())
	assert.Equal(t, []any{"alpine", "3.15"}, dst.List("name"))
	assert.Equal(t, []string{"welcome", "release_notes", "extra"}, dst.Tree("motd").Keys())
	assert.Nil(t, dst.Tree("motd").Value("release_notes"))
	assert.Equal(t, "2G", dst.String("size"))
	assert.Equal(t, "me", dst.String("keep"))
	assert.Equal(t, true, dst.Value("new"))
}

func TestMerge_TypeMismatchReplaces(t *testing.T) {
	dst := TreeOf("repos", TreeOf("main", true))
	Merge(dst, TreeOf("repos", "none"))
	assert.Equal(t, "none", dst.String("repos"))
}

func TestMerge_DoesNotAliasSource(t *testing.T) {
	src := TreeOf("sub", TreeOf("x", 1))
	dst := NewTree()
	Merge(dst, src)

	dst.Tree("sub").Set("x", 2)
	assert.Equal(t, 1, src.Tree("sub").Value("x"))
}

func TestMerge_Nil(t *testing.T) {
	assert.NotPanics(t, func() {
		Merge(nil, TreeOf("a", 1))
		Merge(NewTree(), nil)
	})
}
