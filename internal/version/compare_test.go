package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckVersionCompatibility(t *testing.T) {
	tests := []struct {
		name          string
		hostVersion   string
		recordVersion string
		expectError   bool
		errorContains string
	}{
		{name: "exact match", hostVersion: "1.2.0", recordVersion: "1.2.0"},
		{name: "host patch higher", hostVersion: "1.2.1", recordVersion: "1.2.0"},
		{name: "record patch higher", hostVersion: "1.2.0", recordVersion: "1.2.5"},
		{name: "older record minor", hostVersion: "1.3.0", recordVersion: "1.2.0"},
		{
			name:          "newer record minor",
			hostVersion:   "1.1.0",
			recordVersion: "1.2.0",
			expectError:   true,
			errorContains: "minor version mismatch",
		},
		{
			name:          "major version differs",
			hostVersion:   "2.0.0",
			recordVersion: "1.2.0",
			expectError:   true,
			errorContains: "major version mismatch",
		},
		{name: "host is main", hostVersion: "main", recordVersion: "1.2.0"},
		{name: "record is main", hostVersion: "1.2.0", recordVersion: "main"},
		{name: "v prefix on both", hostVersion: "v1.2.0", recordVersion: "v1.2.0"},
		{name: "prerelease version", hostVersion: "1.2.0-alpha", recordVersion: "1.2.0"},
		{
			name:          "invalid host version",
			hostVersion:   "not-a-version",
			recordVersion: "1.2.0",
			expectError:   true,
			errorContains: "invalid host version",
		},
		{
			name:          "empty record version",
			hostVersion:   "1.2.0",
			recordVersion: "",
			expectError:   true,
			errorContains: "invalid record version",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckVersionCompatibility(tt.hostVersion, tt.recordVersion)

			if tt.expectError {
				require.Error(t, err)
				if tt.errorContains != "" {
					assert.Contains(t, err.Error(), tt.errorContains)
				}
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestGetVersion(t *testing.T) {
	v := GetVersion()
	assert.Equal(t, Version, v)
}
