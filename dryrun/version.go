package dryrun

import "github.com/kolkov/dryrun/internal/ir/jir"

// Version information for the dry-run runtime.
const (
	// Version is the current version of the runtime and instrumenter.
	Version = "0.3.0"

	// VersionMajor is the major version number.
	VersionMajor = 0

	// VersionMinor is the minor version number.
	VersionMinor = 3

	// VersionPatch is the patch version number.
	VersionPatch = 0
)

// Info provides build information about the runtime.
type Info struct {
	// Version is the runtime version string.
	Version string

	// FormatVersion is the jir text format version the instrumenter writes.
	FormatVersion string

	// SnapshotPolicy names the snapshot write policy.
	SnapshotPolicy string
}

// GetInfo returns information about the runtime.
//
// Example:
//
//	info := dryrun.GetInfo()
//	fmt.Printf("dryrun %s (jir %s)\n", info.Version, info.FormatVersion)
func GetInfo() Info {
	return Info{
		Version:        Version,
		FormatVersion:  jir.FormatVersion,
		SnapshotPolicy: "insert-if-absent",
	}
}
