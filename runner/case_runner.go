package runner

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ruletest-dev/ruletest/invoker"
	"github.com/ruletest-dev/ruletest/types"
)

// CaseRunnerConfig holds configuration for creating a CaseRunner
type CaseRunnerConfig struct {
	// Entrypoint is the argv prefix that starts the CLI, e.g. ["semgrep"]
	Entrypoint []string
	// Subcommand follows the entrypoint; empty means DefaultSubcommand
	Subcommand string
	// FixtureRoot contains the rules and targets directories
	FixtureRoot string
	// TargetsDir is relative to FixtureRoot; empty means DefaultTargetsDir
	TargetsDir string
	// DefaultEnv is applied to every case that does not ask for a bare environment
	DefaultEnv map[string]string
	// InheritEnv names parent variables passed to every non-bare case
	InheritEnv []string
	// DefaultTimeout applies to cases without their own timeout
	DefaultTimeout time.Duration
	// TempDir is the parent of isolated work dirs; empty means the system default
	TempDir string
	Invoker invoker.Invoker
	Log     log.Logger
}

// CaseRunner turns a TestCase into one CLI invocation
type CaseRunner struct {
	entrypoint     []string
	subcommand     string
	fixtureRoot    string
	targetsDir     string
	defaultEnv     invoker.Env
	inheritEnv     []string
	defaultTimeout time.Duration
	tempDir        string
	invoker        invoker.Invoker
	log            log.Logger
}

// NewCaseRunner creates a new case runner instance
func NewCaseRunner(cfg CaseRunnerConfig) (*CaseRunner, error) {
	if len(cfg.Entrypoint) == 0 || cfg.Entrypoint[0] == "" {
		return nil, fmt.Errorf("CLI entrypoint is required")
	}
	if cfg.FixtureRoot == "" {
		return nil, fmt.Errorf("fixture root is required")
	}
	info, err := os.Stat(cfg.FixtureRoot)
	if err != nil {
		return nil, fmt.Errorf("fixture root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("fixture root %s is not a directory", cfg.FixtureRoot)
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.Invoker == nil {
		cfg.Invoker = invoker.NewProcessInvoker(cfg.Log)
	}
	if cfg.Subcommand == "" {
		cfg.Subcommand = DefaultSubcommand
	}
	if cfg.TargetsDir == "" {
		cfg.TargetsDir = DefaultTargetsDir
	}
	if cfg.InheritEnv == nil {
		cfg.InheritEnv = DefaultInheritEnv
	}
	if cfg.DefaultTimeout == 0 {
		cfg.DefaultTimeout = DefaultCaseTimeout
	}

	cfg.Log.Debug("NewCaseRunner()", "entrypoint", cfg.Entrypoint, "subcommand", cfg.Subcommand,
		"fixtureRoot", cfg.FixtureRoot, "targetsDir", cfg.TargetsDir)

	return &CaseRunner{
		entrypoint:     append([]string(nil), cfg.Entrypoint...),
		subcommand:     cfg.Subcommand,
		fixtureRoot:    cfg.FixtureRoot,
		targetsDir:     cfg.TargetsDir,
		defaultEnv:     invoker.Env(cfg.DefaultEnv).Merge(nil),
		inheritEnv:     append([]string(nil), cfg.InheritEnv...),
		defaultTimeout: cfg.DefaultTimeout,
		tempDir:        cfg.TempDir,
		invoker:        cfg.Invoker,
		log:            cfg.Log,
	}, nil
}

// targetPath resolves a target locator below the targets dir. A trailing slash
// is kept since the CLI treats it as a directory marker.
func (r *CaseRunner) targetPath(tc types.TestCase) string {
	return path.Join(r.targetsDir, tc.TargetLocator) + trailingSlash(tc.TargetLocator)
}

func trailingSlash(s string) string {
	if strings.HasSuffix(s, "/") {
		return "/"
	}
	return ""
}

// BuildArgs returns the argument vector for tc. The order is fixed:
// entrypoint, subcommand, format flag, --strict, --force-color, case options,
// --config <rules>, target.
func (r *CaseRunner) BuildArgs(tc types.TestCase) []string {
	args := append([]string(nil), r.entrypoint...)
	args = append(args, r.subcommand)
	if flag := tc.Format.Flag(); flag != "" {
		args = append(args, flag)
	}
	if tc.Strict {
		args = append(args, StrictFlag)
	}
	if tc.ForceColor {
		args = append(args, ForceColorFlag)
	}
	args = append(args, tc.Options...)
	args = append(args, ConfigFlag, tc.RuleLocator)
	args = append(args, r.targetPath(tc))
	return args
}

// BuildEnv composes the child environment: harness defaults, inherited
// variables, force-color variables, then the case's own overrides.
func (r *CaseRunner) BuildEnv(tc types.TestCase) invoker.Env {
	env := invoker.Env{}
	if !tc.BareEnv {
		env = env.Merge(r.defaultEnv).Merge(invoker.InheritEnv(r.inheritEnv...))
	}
	env = env.Merge(invoker.InheritEnv(tc.InheritEnv...))
	if tc.ForceColor {
		env = env.Merge(invoker.Env{ForceColorEnv: "1", CLIColorForceEnv: "1"})
	}
	return env.Merge(tc.Env)
}

// Run invokes the CLI for tc. When the case is isolated it runs in a
// temporary copy of its fixtures which is removed afterwards.
func (r *CaseRunner) Run(ctx context.Context, tc types.TestCase) (*types.InvocationResult, error) {
	dir := r.fixtureRoot
	if tc.Isolate {
		isolated, err := prepareIsolatedDir(r.tempDir, r.fixtureRoot, tc.RuleLocator, r.targetPath(tc))
		if err != nil {
			return nil, &invoker.InvocationError{Err: err}
		}
		defer func() {
			if err := os.RemoveAll(isolated); err != nil {
				r.log.Warn("Failed to remove isolated work dir", "dir", isolated, "err", err)
			}
		}()
		dir = isolated
	}

	timeout := tc.Timeout
	if timeout == 0 {
		timeout = r.defaultTimeout
	}

	req := invoker.Request{
		Argv:          r.BuildArgs(tc),
		Dir:           dir,
		Env:           r.BuildEnv(tc),
		Timeout:       timeout,
		Encoding:      tc.Encoding,
		ExpectSuccess: tc.ExpectSuccess,
	}
	r.log.Debug("Running case", "case", tc.Key(), "argv", req.Argv, "dir", dir)
	return r.invoker.Invoke(ctx, req)
}

// RunPair runs tc and returns its stdout and stderr as text
func (r *CaseRunner) RunPair(ctx context.Context, tc types.TestCase) (string, string, error) {
	result, err := r.Run(ctx, tc)
	if result == nil {
		return "", "", err
	}
	return result.StdoutText(), result.StderrText(), err
}

// Version runs the entrypoint with --version and returns its trimmed output
func (r *CaseRunner) Version(ctx context.Context) (string, error) {
	argv := append(append([]string(nil), r.entrypoint...), VersionFlag)
	result, err := r.invoker.Invoke(ctx, invoker.Request{
		Argv:          argv,
		Env:           r.defaultEnv.Merge(invoker.InheritEnv(r.inheritEnv...)),
		Timeout:       VersionTimeout,
		Encoding:      invoker.EncodingUTF8,
		ExpectSuccess: true,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result.StdoutText()), nil
}
