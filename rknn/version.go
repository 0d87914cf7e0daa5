package rknn

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// APISemver parses the leading version of the API string. The runtime reports
// strings such as "2.3.2 (429f97ae6b@2025-04-09T09:09:27)".
func (v SDKVersion) APISemver() (*semver.Version, error) {
	return parseLeadingVersion("api", v.APIVersion)
}

// DriverSemver parses the leading version of the driver string.
func (v SDKVersion) DriverSemver() (*semver.Version, error) {
	return parseLeadingVersion("driver", v.DriverVersion)
}

func parseLeadingVersion(kind, raw string) (*semver.Version, error) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty %s version", kind)
	}
	version, err := semver.NewVersion(fields[0])
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s version %q: %w", kind, raw, err)
	}
	return version, nil
}

// RequireAPIVersion fails unless the runtime API version satisfies constraint,
// for example ">= 1.6.0".
func (s *Session) RequireAPIVersion(constraint string) error {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return newError(KindInvalidArgument, "require api version", "invalid version constraint %q: %v", constraint, err)
	}
	sdk, err := s.SDKVersion()
	if err != nil {
		return err
	}
	version, err := sdk.APISemver()
	if err != nil {
		return newError(KindIntegrity, "require api version", "%v", err)
	}
	if !c.Check(version) {
		return newError(KindInvalidArgument, "require api version", "RKNN runtime API version %s does not satisfy %q", version, constraint)
	}
	return nil
}

// normalizeRuntimeVersion accepts x.y.z with an optional leading v.
func normalizeRuntimeVersion(version string) (string, error) {
	version = strings.TrimPrefix(strings.TrimSpace(version), "v")
	if version == "" {
		return "", fmt.Errorf("RKNN runtime version is empty")
	}
	parsed, err := semver.StrictNewVersion(version)
	if err != nil {
		return "", fmt.Errorf("RKNN runtime version must have format x.y.z, got %q: %w", version, err)
	}
	return parsed.String(), nil
}
