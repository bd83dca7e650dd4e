// Package logx gates debug output on top of the standard logger.
//
// Informational output goes straight through log.Printf as elsewhere in the
// codebase; only debug lines need the extra switch set by --debug.
package logx

import (
	"log"
	"sync/atomic"
)

var debug atomic.Bool

// Setup configures the standard logger for UTC timestamps and sets debug mode.
func Setup(enableDebug bool) {
	log.SetFlags(log.LstdFlags | log.LUTC)
	debug.Store(enableDebug)
}

// SetDebug toggles debug output.
func SetDebug(enabled bool) {
	debug.Store(enabled)
}

// DebugEnabled reports whether debug output is on.
func DebugEnabled() bool {
	return debug.Load()
}

// Debugf logs only when debug output is enabled.
func Debugf(format string, args ...any) {
	if debug.Load() {
		log.Printf("DEBUG: "+format, args...)
	}
}

// Warnf logs a warning.
func Warnf(format string, args ...any) {
	log.Printf("WARNING: "+format, args...)
}
