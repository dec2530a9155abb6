// SPDX-License-Identifier: MIT

// Package version carries build metadata, populated via -ldflags.
package version

var (
	// Version is the release tag of the build.
	Version = "v1.0.0"

	// Commit is the git short hash of the build.
	Commit = "unknown"

	// Date is the build timestamp.
	Date = "unknown"
)
