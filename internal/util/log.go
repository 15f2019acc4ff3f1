// Package util provides shared logging and statistics helpers.
package util

import (
	"fmt"

	"github.com/pterm/pterm"
)

func init() {
	pterm.DefaultLogger.ShowTime = true
	pterm.DefaultLogger.TimeFormat = "02 Jan 15:04:05"
	pterm.DefaultLogger.MaxWidth = 1000
}

// Leveled logging functions backed by the pterm default logger.
// Output goes to pterm's default writer.

func LogDebug(format string, args ...interface{}) {
	logAt(pterm.LogLevelDebug, format, args...)
}

func LogInfo(format string, args ...interface{}) {
	logAt(pterm.LogLevelInfo, format, args...)
}

func LogSuccess(format string, args ...interface{}) {
	logAt(pterm.LogLevelInfo, "✓ "+format, args...)
}

func LogWarning(format string, args ...interface{}) {
	logAt(pterm.LogLevelWarn, format, args...)
}

func LogError(format string, args ...interface{}) {
	logAt(pterm.LogLevelError, format, args...)
}

func logAt(level pterm.LogLevel, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	switch level {
	case pterm.LogLevelDebug:
		pterm.DefaultLogger.Debug(msg)
	case pterm.LogLevelInfo:
		pterm.DefaultLogger.Info(msg)
	case pterm.LogLevelWarn:
		pterm.DefaultLogger.Warn(msg)
	default:
		pterm.DefaultLogger.Error(msg)
	}
}

// EnableDebug configures the logger to show debug messages.
func EnableDebug() {
	pterm.DefaultLogger.Level = pterm.LogLevelDebug
}

// DebugEnabled reports whether debug messages are currently printed.
func DebugEnabled() bool {
	switch pterm.DefaultLogger.Level {
	case pterm.LogLevelTrace, pterm.LogLevelDebug:
		return true
	}
	return false
}

// ShortID trims an opaque peer id for log prefixes.
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
