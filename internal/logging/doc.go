// Package logging assembles the structured slog loggers used across
// proofbox services.
//
// It owns the console/JSON handler selection, centralizes level and output
// plumbing, and exposes attribute helpers plus standardized field keys so
// every component emits log lines with the same shape. The package also
// provides a no-op logger for tests and wiring code that cannot fail.
package logging
