// Package version carries the daemon version string.
package version

// Version identifies the daemon build. Overridden at link time via
// -ldflags "-X github.com/rubydx/sorbet-mux/src/mux/internal/version.Version=...".
var Version = "0.1.0"
