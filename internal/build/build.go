// Package build provides build information that is linked into the application. Other
// packages within this project can use this information in logs etc..
package build

var (
	// Version is the build version of the application, set via ldflags.
	Version = "dev"

	// Commit is the git commit the binary was built from, set via ldflags.
	Commit = "none"

	// Date is the build timestamp, set via ldflags.
	Date = "unknown"
)
