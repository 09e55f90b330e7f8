// Package logger provides the bridge's leveled logging.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Level is a log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	currentLevel = LevelInfo
	output       io.Writer = os.Stderr
)

// SetLevel sets the active log level.
func SetLevel(level Level) {
	currentLevel = level
}

// SetLevelFromString sets the level from a config string; unknown strings
// fall back to info.
func SetLevelFromString(level string) {
	switch strings.ToLower(level) {
	case "debug":
		currentLevel = LevelDebug
	case "warn", "warning":
		currentLevel = LevelWarn
	case "error":
		currentLevel = LevelError
	default:
		currentLevel = LevelInfo
	}
}

// SetOutput redirects log output, mainly for tests.
func SetOutput(w io.Writer) {
	output = w
}

// IsDebugEnabled reports whether debug logging is active.
func IsDebugEnabled() bool {
	return currentLevel <= LevelDebug
}

// Debug logs at debug level.
func Debug(format string, args ...any) {
	logf(LevelDebug, "DEBUG", format, args...)
}

// Info logs at info level.
func Info(format string, args ...any) {
	logf(LevelInfo, "INFO", format, args...)
}

// Warn logs at warn level.
func Warn(format string, args ...any) {
	logf(LevelWarn, "WARN", format, args...)
}

// Error logs at error level.
func Error(format string, args ...any) {
	logf(LevelError, "ERROR", format, args...)
}

func logf(level Level, tag, format string, args ...any) {
	if currentLevel <= level {
		fmt.Fprintf(output, "["+tag+"] "+format+"\n", args...)
	}
}
