// Package version carries build identification, injected at link time.
package version

var (
	// Version is the release version, e.g. "0.3.1".
	Version = "dev"

	// Commit is the VCS revision the binary was built from.
	Commit = "unknown"

	// Date is the build timestamp.
	Date = "unknown"
)
