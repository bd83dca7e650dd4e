package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadTimeouts_Defaults(t *testing.T) {
	timeouts := LoadTimeouts()

	assert.Equal(t, 10*time.Minute, timeouts.ServerCreate)
	assert.Equal(t, 60*time.Second, timeouts.ServerIP)
	assert.Equal(t, 5*time.Minute, timeouts.Rescue)
	assert.Equal(t, 5*time.Minute, timeouts.Delete)
	assert.Equal(t, 60*time.Minute, timeouts.SnapshotImport)
	assert.Equal(t, 15*time.Minute, timeouts.ImageWait)
	assert.Equal(t, 30*time.Minute, timeouts.Command)
	assert.Equal(t, 5, timeouts.RetryMaxAttempts)
	assert.Equal(t, time.Second, timeouts.RetryInitialDelay)
	assert.Equal(t, 10*time.Second, timeouts.PollInterval)
}

func TestLoadTimeouts_EnvVars(t *testing.T) {
	t.Setenv("ALPINE_CLOUD_TIMEOUT_SERVER_CREATE", "15m")
	t.Setenv("ALPINE_CLOUD_TIMEOUT_SNAPSHOT_IMPORT", "2h")
	t.Setenv("ALPINE_CLOUD_RETRY_MAX_ATTEMPTS", "10")
	t.Setenv("ALPINE_CLOUD_POLL_INTERVAL", "1s")

	timeouts := LoadTimeouts()

	assert.Equal(t, 15*time.Minute, timeouts.ServerCreate)
	assert.Equal(t, 2*time.Hour, timeouts.SnapshotImport)
	assert.Equal(t, 10, timeouts.RetryMaxAttempts)
	assert.Equal(t, time.Second, timeouts.PollInterval)
}

func TestLoadTimeouts_InvalidValues(t *testing.T) {
	t.Setenv("ALPINE_CLOUD_TIMEOUT_DELETE", "soon")
	t.Setenv("ALPINE_CLOUD_TIMEOUT_RESCUE", "-1m")
	t.Setenv("ALPINE_CLOUD_RETRY_MAX_ATTEMPTS", "many")

	timeouts := LoadTimeouts()

	assert.Equal(t, 5*time.Minute, timeouts.Delete)
	assert.Equal(t, 5*time.Minute, timeouts.Rescue)
	assert.Equal(t, 5, timeouts.RetryMaxAttempts)
}
