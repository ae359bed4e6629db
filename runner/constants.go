package runner

import "time"

// Invocation constants
const (
	// DefaultSubcommand is placed after the entrypoint
	DefaultSubcommand = "scan"

	// DefaultTargetsDir is where target locators are resolved, relative to the fixture root
	DefaultTargetsDir = "targets"

	// DefaultCaseTimeout applies when neither the case nor the harness sets one
	DefaultCaseTimeout = 5 * time.Minute

	// VersionTimeout bounds the --version probe
	VersionTimeout = 30 * time.Second

	ConfigFlag     = "--config"
	StrictFlag     = "--strict"
	ForceColorFlag = "--force-color"
	VersionFlag    = "--version"

	// Environment set for force-color cases; terminal libraries disable color without a TTY
	ForceColorEnv      = "FORCE_COLOR"
	CLIColorForceEnv   = "CLICOLOR_FORCE"
	isolatedDirPattern = "ruletest-case-*"
)

// DefaultInheritEnv lists the parent variables every case inherits unless it
// asks for a bare environment
var DefaultInheritEnv = []string{"PATH"}

// DefaultEnv is the harness-wide child environment
func DefaultEnv() map[string]string {
	return map[string]string{
		"SEMGREP_ENABLE_VERSION_CHECK": "0",
		"SEMGREP_SEND_METRICS":         "off",
		"SEMGREP_USER_AGENT_APPEND":    "ruletest",
	}
}
