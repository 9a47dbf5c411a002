// Package logging assembles structured slog loggers and formatting helpers
// used across snapsync components.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes attribute helpers so engine code tags log lines with
// artifact IDs and event types consistently. The package also provides a
// no-op logger for tests and wiring code that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup so every component
// emits data with the same shape and routing as the rest of the system.
package logging
