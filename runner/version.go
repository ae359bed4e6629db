package runner

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// ParseVersion finds the first semantic version in the output of --version.
// The result carries the "v" prefix expected by x/mod/semver.
func ParseVersion(output string) (string, error) {
	for _, field := range strings.Fields(output) {
		v := "v" + strings.TrimPrefix(strings.Trim(field, ",;()"), "v")
		if semver.IsValid(v) {
			return semver.Canonical(v), nil
		}
	}
	return "", fmt.Errorf("no version found in %q", output)
}

// CheckVersion returns an error when the reported CLI version is older than minVersion
func CheckVersion(output, minVersion string) error {
	if minVersion == "" {
		return nil
	}
	want := "v" + strings.TrimPrefix(minVersion, "v")
	if !semver.IsValid(want) {
		return fmt.Errorf("invalid minimum CLI version %q", minVersion)
	}
	got, err := ParseVersion(output)
	if err != nil {
		return err
	}
	if semver.Compare(got, want) < 0 {
		return fmt.Errorf("CLI version %s is older than the required %s", got, want)
	}
	return nil
}
