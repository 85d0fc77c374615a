// Package version carries build information injected with -ldflags.
package version

import "runtime"

var (
	// Version is the semantic version.
	Version = "v0.0.0-dev"

	// GitCommit is the commit the binary was built from.
	GitCommit = "unknown"

	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)

// Info returns a one-line description for `kotoba version` and /status.
func Info() string {
	return "kotoba " + Version + " (" + GitCommit + ") built at " + BuildTime + " with " + runtime.Version()
}
