// Package version holds the build version string.
package version

// Version is the current histlens version. Overridden at build time
// via -ldflags "-X histlens/internal/version.Version=...".
var Version = "0.3.0"
