package config

import (
	"os"
	"strconv"
	"time"
)

// Timeouts holds all configurable timeout values.
// These values can be customized via environment variables.
type Timeouts struct {
	ServerCreate      time.Duration // Build server creation
	ServerIP          time.Duration // Waiting for the build server's IP
	Rescue            time.Duration // Rescue system becoming reachable over SSH
	Delete            time.Duration // All delete operations
	SnapshotImport    time.Duration // Cloud-side snapshot import
	ImageWait         time.Duration // Image becoming available after import
	Command           time.Duration // Single remote command
	RetryMaxAttempts  int           // Maximum number of retry attempts
	RetryInitialDelay time.Duration // Initial delay between retries
	PollInterval      time.Duration // Interval between status polls
}

// LoadTimeouts loads timeout configuration from environment variables.
// If an environment variable is not set or invalid, a default value is used.
//
// Environment Variables:
//   - ALPINE_CLOUD_TIMEOUT_SERVER_CREATE (default: 10m)
//   - ALPINE_CLOUD_TIMEOUT_SERVER_IP (default: 60s)
//   - ALPINE_CLOUD_TIMEOUT_RESCUE (default: 5m)
//   - ALPINE_CLOUD_TIMEOUT_DELETE (default: 5m)
//   - ALPINE_CLOUD_TIMEOUT_SNAPSHOT_IMPORT (default: 60m)
//   - ALPINE_CLOUD_TIMEOUT_IMAGE_WAIT (default: 15m)
//   - ALPINE_CLOUD_TIMEOUT_COMMAND (default: 30m)
//   - ALPINE_CLOUD_RETRY_MAX_ATTEMPTS (default: 5)
//   - ALPINE_CLOUD_RETRY_INITIAL_DELAY (default: 1s)
//   - ALPINE_CLOUD_POLL_INTERVAL (default: 10s)
func LoadTimeouts() *Timeouts {
	return &Timeouts{
		ServerCreate:      parseDuration("ALPINE_CLOUD_TIMEOUT_SERVER_CREATE", 10*time.Minute),
		ServerIP:          parseDuration("ALPINE_CLOUD_TIMEOUT_SERVER_IP", 60*time.Second),
		Rescue:            parseDuration("ALPINE_CLOUD_TIMEOUT_RESCUE", 5*time.Minute),
		Delete:            parseDuration("ALPINE_CLOUD_TIMEOUT_DELETE", 5*time.Minute),
		SnapshotImport:    parseDuration("ALPINE_CLOUD_TIMEOUT_SNAPSHOT_IMPORT", 60*time.Minute),
		ImageWait:         parseDuration("ALPINE_CLOUD_TIMEOUT_IMAGE_WAIT", 15*time.Minute),
		Command:           parseDuration("ALPINE_CLOUD_TIMEOUT_COMMAND", 30*time.Minute),
		RetryMaxAttempts:  parseInt("ALPINE_CLOUD_RETRY_MAX_ATTEMPTS", 5),
		RetryInitialDelay: parseDuration("ALPINE_CLOUD_RETRY_INITIAL_DELAY", 1*time.Second),
		PollInterval:      parseDuration("ALPINE_CLOUD_POLL_INTERVAL", 10*time.Second),
	}
}

// parseDuration parses a duration from an environment variable.
// If the variable is not set or parsing fails, the default value is returned.
func parseDuration(envVar string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return defaultVal
	}

	return d
}

// parseInt parses an integer from an environment variable.
// If the variable is not set or parsing fails, the default value is returned.
func parseInt(envVar string, defaultVal int) int {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}

	return i
}
