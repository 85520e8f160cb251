package config

import (
	"os"

	"github.com/blang/semver/v4"

	"github.com/muridata/ceremony-coordinator/internal/ceremony"
)

const (
	envVerificationSoftwareName    = "CUSTOM_CONTRIBUTION_VERIFICATION_SOFTWARE_NAME"
	envVerificationSoftwareVersion = "CUSTOM_CONTRIBUTION_VERIFICATION_SOFTWARE_VERSION"
	envVerificationSoftwareCommit  = "CUSTOM_CONTRIBUTION_VERIFICATION_SOFTWARE_COMMIT_HASH"
)

// LoadVerificationSoftware reads the verification-software identity from
// the environment. Absence of any of the three variables, or an
// unparseable version, is fatal to the Verifier (spec §6).
func LoadVerificationSoftware() (ceremony.VerificationSoftware, error) {
	name := os.Getenv(envVerificationSoftwareName)
	version := os.Getenv(envVerificationSoftwareVersion)
	commit := os.Getenv(envVerificationSoftwareCommit)

	if name == "" || version == "" || commit == "" {
		return ceremony.VerificationSoftware{}, ceremony.InputErrorf("config.LoadVerificationSoftware",
			"%s, %s and %s must all be set", envVerificationSoftwareName, envVerificationSoftwareVersion, envVerificationSoftwareCommit)
	}
	if _, err := semver.Parse(version); err != nil {
		return ceremony.VerificationSoftware{}, ceremony.InputErrorf("config.LoadVerificationSoftware",
			"%s=%q is not a valid semantic version: %v", envVerificationSoftwareVersion, version, err)
	}

	return ceremony.VerificationSoftware{Name: name, Version: version, CommitHash: commit}, nil
}
