// Package runner provides an interceptor-based command execution framework for CLI commands.
// It mirrors the pattern used by Connect-RPC interceptors, providing consistent middleware
// semantics for CLI command handlers.
package runner

import "errors"

// Standard errors returned by interceptors
var (
	// ErrNotInitialized is returned when no configuration could be loaded
	ErrNotInitialized = errors.New("legacyvault not configured - run 'legacyvault init' first")

	// ErrLocalOnly is returned when a command that needs the in-process
	// service is pointed at a remote server
	ErrLocalOnly = errors.New("this command cannot run against a remote server")
)
