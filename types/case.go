// Package types contains shared types used across the ruletest harness
package types

import (
	"fmt"
	"strings"
	"time"
)

// OutputFormat selects the output renderer of the CLI under test
type OutputFormat string

const (
	FormatNone     OutputFormat = "none"
	FormatJSON     OutputFormat = "json"
	FormatText     OutputFormat = "text"
	FormatSARIF    OutputFormat = "sarif"
	FormatJUnitXML OutputFormat = "junit-xml"
	FormatEmacs    OutputFormat = "emacs"
	FormatVim      OutputFormat = "vim"
)

var formatFlags = map[OutputFormat]string{
	FormatNone:     "",
	FormatJSON:     "--json",
	FormatText:     "--text",
	FormatSARIF:    "--sarif",
	FormatJUnitXML: "--junit-xml",
	FormatEmacs:    "--emacs",
	FormatVim:      "--vim",
}

// ParseOutputFormat converts a case table value into an OutputFormat.
// An empty string selects text output.
func ParseOutputFormat(s string) (OutputFormat, error) {
	if s == "" {
		return FormatText, nil
	}
	f := OutputFormat(strings.ToLower(s))
	if _, ok := formatFlags[f]; !ok {
		return "", fmt.Errorf("unknown output format %q", s)
	}
	return f, nil
}

// Flag returns the CLI flag that selects this format, or "" for FormatNone.
func (f OutputFormat) Flag() string {
	return formatFlags[f]
}

// Extension returns the snapshot file extension for stdout rendered in this format.
func (f OutputFormat) Extension() string {
	switch f {
	case FormatJSON, FormatSARIF:
		return "json"
	case FormatJUnitXML:
		return "xml"
	default:
		return "txt"
	}
}

func (f OutputFormat) String() string {
	return string(f)
}

// ArtifactRole names one captured output of a case execution
type ArtifactRole string

const (
	// RoleResults is stdout, stored with the format's extension
	RoleResults ArtifactRole = "results"
	// RoleErrors is stderr
	RoleErrors ArtifactRole = "errors"
	// RoleOutput is stdout of a raw entrypoint invocation
	RoleOutput ArtifactRole = "output"
)

// ParseArtifactRole validates a case table artifact name
func ParseArtifactRole(s string) (ArtifactRole, error) {
	switch r := ArtifactRole(s); r {
	case RoleResults, RoleErrors, RoleOutput:
		return r, nil
	default:
		return "", fmt.Errorf("unknown artifact role %q", s)
	}
}

// FromStderr reports whether the artifact is taken from the error stream.
func (r ArtifactRole) FromStderr() bool {
	return r == RoleErrors
}

// SnapshotName returns the file name used to store this artifact, e.g. "results.json".
func (r ArtifactRole) SnapshotName(format OutputFormat) string {
	switch r {
	case RoleResults:
		return "results." + format.Extension()
	default:
		return string(r) + ".txt"
	}
}

// Tag is static metadata attached to a case declaration. The harness core never
// reads tags; they exist for case selection.
type Tag string

const (
	TagQuick     Tag = "quick"
	TagKindaSlow Tag = "kinda_slow"
	TagSlow      Tag = "slow"
	// TagOsemfail marks cases known to differ under the alternate engine implementation
	TagOsemfail Tag = "osemfail"
)

// TestCase is one declared invocation of the CLI under test together with the
// artifacts to verify. Values are built by the registry and are not modified afterwards.
type TestCase struct {
	ID            string
	Suite         string
	RuleLocator   string
	TargetLocator string
	Options       []string
	Format        OutputFormat
	ExpectSuccess bool
	Strict        bool
	ForceColor    bool
	Isolate       bool
	Env           map[string]string
	InheritEnv    []string
	// BareEnv drops the harness-wide default environment for this case
	BareEnv       bool
	Timeout       time.Duration
	Encoding      string
	Tags          []Tag
	Artifacts     []ArtifactRole
	Normalizers   []string
}

// HasTag reports whether the case carries the given tag
func (tc TestCase) HasTag(tag Tag) bool {
	for _, t := range tc.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Key returns the identity used for snapshot addressing and result maps.
func (tc TestCase) Key() string {
	if tc.Suite == "" {
		return tc.ID
	}
	return tc.Suite + "/" + tc.ID
}
