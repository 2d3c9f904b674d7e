// Package logging wires up the shared zap logger used across every
// component, in place of the teacher's raw log.Printf calls.
package logging

import "go.uber.org/zap"

// New builds a production zap logger. Callers defer Sync() on the result.
func New() (*zap.Logger, error) {
	return zap.NewProduction()
}

// NewDevelopment builds a human-readable logger for local runs, matching
// the verbosity the teacher gets from plain log.Printf during development.
func NewDevelopment() (*zap.Logger, error) {
	return zap.NewDevelopment()
}
