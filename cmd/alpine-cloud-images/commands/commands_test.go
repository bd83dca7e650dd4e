package commands

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/alpine-cloud-images/internal/util/logx"
)

func TestRoot(t *testing.T) {
	cmd := Root()

	require.NotNil(t, cmd)
	assert.Equal(t, "alpine-cloud-images", cmd.Use)

	subcommands := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		subcommands[sub.Name()] = true
	}
	for _, name := range []string{"build", "releases", "cache", "prune", "notes", "version", "completion"} {
		assert.True(t, subcommands[name], "Expected %s subcommand", name)
	}

	debug := cmd.PersistentFlags().Lookup("debug")
	require.NotNil(t, debug)
	assert.Equal(t, "false", debug.DefValue)
}

func TestRoot_DebugFlag(t *testing.T) {
	t.Cleanup(func() { logx.SetDebug(false) })

	cmd := Root()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--debug", "version"})
	require.NoError(t, cmd.Execute())
	assert.True(t, logx.DebugEnabled())
}

func TestBuild_Flags(t *testing.T) {
	cmd := Build()

	assert.Equal(t, "build <step>", cmd.Use)
	tests := []struct {
		name string
		def  string
	}{
		{"only", "[]"},
		{"skip", "[]"},
		{"revise", "false"},
		{"custom", "[]"},
		{"clean", "false"},
		{"parallel", "1"},
		{"config", ""},
		{"work", ""},
		{"metrics-file", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag := cmd.Flags().Lookup(tt.name)
			require.NotNil(t, flag, "%s flag should exist", tt.name)
			assert.Equal(t, tt.def, flag.DefValue)
		})
	}
	assert.Equal(t, "c", cmd.Flags().Lookup("config").Shorthand)
}

func TestBuild_RejectsUnknownStep(t *testing.T) {
	cmd := Build()
	assert.Error(t, cmd.Args(cmd, []string{"deploy"}))
	assert.Error(t, cmd.Args(cmd, []string{}))
	assert.NoError(t, cmd.Args(cmd, []string{"publish"}))
	assert.NoError(t, cmd.Args(cmd, []string{"rollback"}))
}

func TestPrune_Flags(t *testing.T) {
	cmd := Prune()

	for _, name := range []string{
		"cloud", "region", "really", "yes",
		"private", "edge-eol", "rc", "eol-unused-not-latest", "eol-not-latest", "unused-not-latest",
	} {
		assert.NotNil(t, cmd.Flags().Lookup(name), "%s flag should exist", name)
	}
	assert.Equal(t, "aws", cmd.Flags().Lookup("cloud").DefValue)
	assert.Error(t, cmd.Args(cmd, []string{}))
}

func TestCache_Flags(t *testing.T) {
	cmd := Cache()

	assert.Equal(t, "cache", cmd.Use)
	assert.Equal(t, "aws", cmd.Flags().Lookup("cloud").DefValue)
	assert.Equal(t, "-", cmd.Flags().Lookup("output").DefValue)
	assert.NotNil(t, cmd.Flags().Lookup("region"))
}

func TestReleases_Flags(t *testing.T) {
	cmd := Releases()

	assert.Equal(t, "releases", cmd.Use)
	assert.Equal(t, "o", cmd.Flags().Lookup("output").Shorthand)
}

func TestNotes_Args(t *testing.T) {
	cmd := Notes()
	assert.Error(t, cmd.Args(cmd, []string{}))
	assert.NoError(t, cmd.Args(cmd, []string{"TODO.md"}))
}

func TestVersion_Output(t *testing.T) {
	origVersion, origCommit, origDate := version, commit, date
	defer func() {
		version, commit, date = origVersion, origCommit, origDate
	}()
	SetVersionInfo("1.2.3", "abc123", "2024-01-01")

	var buf bytes.Buffer
	cmd := Version()
	cmd.SetOut(&buf)
	cmd.Run(cmd, nil)

	assert.Equal(t, "alpine-cloud-images 1.2.3\n  commit: abc123\n  built:  2024-01-01\n", buf.String())
}

func TestCompletion(t *testing.T) {
	cmd := Completion()
	assert.Error(t, cmd.Args(cmd, []string{"tcsh"}))
	assert.NoError(t, cmd.Args(cmd, []string{"zsh"}))
}
