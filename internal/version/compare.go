package version

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// CheckVersionCompatibility checks whether a host can restore an algo order record.
// Returns nil if compatible, error with details if not.
//
// Compatibility Rules:
//   - If either version is "main" (development build), compatibility check is skipped
//   - Major versions must match exactly
//   - The record minor version must not be newer than the host minor version
//   - Patch versions can differ (e.g., 1.2.0 reads records of 1.2.5)
//
// Examples:
//   - Host 1.2.0, Record 1.2.0 -> OK (exact match)
//   - Host 1.3.0, Record 1.2.0 -> OK (older record)
//   - Host 1.2.0, Record 1.3.0 -> ERROR (record from a newer minor)
//   - Host 2.0.0, Record 1.2.0 -> ERROR (major differs)
//   - Host main, Record 1.2.0 -> OK (dev build, skip check)
func CheckVersionCompatibility(hostVersion, recordVersion string) error {
	// Strip 'v' prefix if present for consistency
	hostVersion = strings.TrimPrefix(hostVersion, "v")
	recordVersion = strings.TrimPrefix(recordVersion, "v")

	// Skip version check for "main" (development builds)
	if hostVersion == "main" || recordVersion == "main" {
		return nil
	}

	hostSemver, err := semver.NewVersion(hostVersion)
	if err != nil {
		return fmt.Errorf("invalid host version '%s': %w", hostVersion, err)
	}

	recordSemver, err := semver.NewVersion(recordVersion)
	if err != nil {
		return fmt.Errorf("invalid record version '%s': %w", recordVersion, err)
	}

	if hostSemver.Major() != recordSemver.Major() {
		return fmt.Errorf("major version mismatch: host is %d.x.x but record was written by %d.x.x",
			hostSemver.Major(), recordSemver.Major())
	}

	if recordSemver.Minor() > hostSemver.Minor() {
		return fmt.Errorf("minor version mismatch: host is %d.%d.x but record was written by %d.%d.x",
			hostSemver.Major(), hostSemver.Minor(),
			recordSemver.Major(), recordSemver.Minor())
	}

	return nil
}
