package ruletest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/ruletest-dev/ruletest/flags"
	"github.com/ruletest-dev/ruletest/snapshot"
	"github.com/ruletest-dev/ruletest/types"
)

// parseConfig runs the flag set through a throwaway app and returns the
// resulting config
func parseConfig(args ...string) (*Config, error) {
	var (
		cfg    *Config
		cfgErr error
	)
	app := cli.NewApp()
	app.Flags = flags.Flags
	app.Action = func(ctx *cli.Context) error {
		cfg, cfgErr = NewConfig(ctx, log.NewLogger(log.DiscardHandler()))
		return nil
	}
	if err := app.Run(append([]string{"ruletest"}, args...)); err != nil {
		return nil, err
	}
	return cfg, cfgErr
}

func TestNewConfigDefaults(t *testing.T) {
	cfg, err := parseConfig("--cases", "testdata/cases.yaml")
	require.NoError(t, err)

	testdata, err := filepath.Abs("testdata")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(testdata, "cases.yaml"), cfg.CaseTable)
	assert.Equal(t, testdata, cfg.FixtureRoot)
	assert.Equal(t, filepath.Join(testdata, "snapshots"), cfg.SnapshotDir)
	assert.Equal(t, []string{"semgrep"}, cfg.Entrypoint)
	assert.Equal(t, "scan", cfg.Subcommand)
	assert.Equal(t, "targets", cfg.TargetsDir)
	assert.Equal(t, flags.BackendFile, cfg.SnapshotBackend)
	assert.Equal(t, snapshot.ModeVerify, cfg.Mode)
	assert.Equal(t, 1, cfg.Concurrency)
	assert.True(t, cfg.RunOnce)
	assert.True(t, filepath.IsAbs(cfg.LogDir))
	assert.Equal(t, "off", cfg.Env["SEMGREP_SEND_METRICS"])
	assert.Equal(t, []string{"PATH"}, cfg.InheritEnv)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestNewConfigFlags(t *testing.T) {
	cfg, err := parseConfig(
		"--cases", "testdata/cases.yaml",
		"--fixtures", "testdata/fixtures",
		"--entrypoint", "python -m semgrep",
		"--update-snapshots",
		"--include-tags", "slow,kinda_slow",
		"--exclude-tags", "quick",
		"--alt-engine",
		"--case", "test_a", "--case", "test_b",
		"--concurrency", "4",
		"--run-interval", "1m",
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"python", "-m", "semgrep"}, cfg.Entrypoint)
	assert.Equal(t, snapshot.ModeRecord, cfg.Mode)
	assert.Equal(t, []types.Tag{types.TagSlow, types.TagKindaSlow}, cfg.Selector.Include)
	assert.Equal(t, []types.Tag{types.TagQuick}, cfg.Selector.Exclude)
	assert.True(t, cfg.Selector.AltEngine)
	assert.Equal(t, []string{"test_a", "test_b"}, cfg.Selector.CaseIDs)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, time.Minute, cfg.RunInterval)
	assert.False(t, cfg.RunOnce)
	assert.True(t, filepath.IsAbs(cfg.FixtureRoot))
	assert.Equal(t, filepath.Join(cfg.FixtureRoot, "snapshots"), cfg.SnapshotDir)
}

func TestNewConfigHarnessFile(t *testing.T) {
	cfg, err := parseConfig("--cases", "testdata/cases.yaml", "--harness-config", "testdata/ruletest.toml")
	require.NoError(t, err)

	assert.Equal(t, []string{"python", "-m", "semgrep"}, cfg.Entrypoint)
	assert.Equal(t, "1.40.0", cfg.MinCLIVersion)
	assert.Equal(t, 2*time.Minute, cfg.DefaultTimeout)
	assert.Equal(t, 64, cfg.SnapshotCacheSize)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Equal(t, "ruletest-ci", cfg.RedisNamespace)
	assert.Equal(t, "/dev/null", cfg.Env["SEMGREP_SETTINGS_FILE"])
	assert.Equal(t, "off", cfg.Env["SEMGREP_SEND_METRICS"])
	assert.Equal(t, []string{"PATH", "HOME"}, cfg.InheritEnv)
}

func TestNewConfigFlagsOverrideHarnessFile(t *testing.T) {
	cfg, err := parseConfig(
		"--cases", "testdata/cases.yaml",
		"--harness-config", "testdata/ruletest.toml",
		"--entrypoint", "semgrep",
		"--default-timeout", "30s",
		"--redis.namespace", "local",
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"semgrep"}, cfg.Entrypoint)
	assert.Equal(t, 30*time.Second, cfg.DefaultTimeout)
	assert.Equal(t, "local", cfg.RedisNamespace)
	assert.Equal(t, "1.40.0", cfg.MinCLIVersion)
}

func TestNewConfigErrors(t *testing.T) {
	unknownKey := filepath.Join(t.TempDir(), "unknown.toml")
	require.NoError(t, os.WriteFile(unknownKey, []byte("[cli]\nentry_point = [\"semgrep\"]\n"), 0644))

	tests := []struct {
		name string
		args []string
	}{
		{name: "missing cases", args: nil},
		{name: "zero concurrency", args: []string{"--cases", "testdata/cases.yaml", "--concurrency", "0"}},
		{name: "redis without url", args: []string{"--cases", "testdata/cases.yaml", "--snapshot-backend", "redis"}},
		{name: "unknown backend", args: []string{"--cases", "testdata/cases.yaml", "--snapshot-backend", "s3"}},
		{name: "negative cache", args: []string{"--cases", "testdata/cases.yaml", "--snapshot-cache-size", "-1"}},
		{name: "negative timeout", args: []string{"--cases", "testdata/cases.yaml", "--default-timeout", "-1s"}},
		{name: "missing harness file", args: []string{"--cases", "testdata/cases.yaml", "--harness-config", "testdata/missing.toml"}},
		{name: "unknown harness key", args: []string{"--cases", "testdata/cases.yaml", "--harness-config", unknownKey}},
		{name: "bad color", args: []string{"--cases", "testdata/cases.yaml", "--color", "sometimes"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseConfig(tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestReadHarnessFile(t *testing.T) {
	hf, err := ReadHarnessFile("testdata/ruletest.toml")
	require.NoError(t, err)
	assert.Equal(t, TOMLDuration(2*time.Minute), hf.CLI.Timeout)
	assert.Equal(t, "file", hf.Snapshots.Backend)

	bad := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("[cli]\ntimeout = \"soon\"\n"), 0644))
	_, err = ReadHarnessFile(bad)
	assert.Error(t, err)
}
