// Package config loads, normalizes, and validates the TOML configuration
// shared by the proofbox daemon and CLI.
package config
