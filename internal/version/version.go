// Package version exposes the build version stamped at link time.
package version

// Version is overridden by the release build via -ldflags.
var Version = "0.1.0-dev"
