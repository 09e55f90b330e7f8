// Package types defines the core data structures exchanged with the KNIME
// engine.
//
// This package contains the fundamental types used throughout the bridge,
// including:
//   - Column specifications and wire data tables
//   - Execution results and job states
//   - Server request/response payloads
//   - The shared coded error type
package types
