package ruletest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruletest-dev/ruletest/flags"
	"github.com/ruletest-dev/ruletest/internal/fakecli"
	"github.com/ruletest-dev/ruletest/logging"
	"github.com/ruletest-dev/ruletest/snapshot"
	"github.com/ruletest-dev/ruletest/types"
)

func TestMain(m *testing.M) {
	fakecli.MaybeRun()
	os.Exit(m.Run())
}

func testConfig(t *testing.T, snapshotDir string, mode snapshot.Mode) *Config {
	t.Helper()
	return &Config{
		CaseTable:       "testdata/cases.yaml",
		FixtureRoot:     "testdata/fixtures",
		Entrypoint:      []string{os.Args[0]},
		SnapshotDir:     snapshotDir,
		SnapshotBackend: flags.BackendFile,
		Mode:            mode,
		Concurrency:     2,
		Env:             fakecli.Env(),
		RunOnce:         true,
		LogDir:          t.TempDir(),
		Color:           flags.ColorNever,
		Log:             log.NewLogger(log.DiscardHandler()),
	}
}

// startOnce runs a run-once harness and returns the Start error and the
// harness for inspection
func startOnce(t *testing.T, cfg *Config) (*Harness, error) {
	t.Helper()
	ctx := context.Background()
	shutdown := make(chan error, 1)
	var out bytes.Buffer
	h, err := New(ctx, cfg, "test", func(err error) { shutdown <- err }, WithOutput(&out))
	require.NoError(t, err)

	startErr := h.Start(ctx)
	if startErr == nil {
		select {
		case err := <-shutdown:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("run-once mode did not request shutdown")
		}
	}
	require.NoError(t, h.Stop(ctx))
	assert.True(t, h.Stopped())
	assert.Contains(t, out.String(), "Rule Test Results")
	return h, startErr
}

func TestHarnessRecordThenVerify(t *testing.T) {
	snapshotDir := t.TempDir()

	recorded, err := startOnce(t, testConfig(t, snapshotDir, snapshot.ModeRecord))
	require.NoError(t, err)
	assert.Equal(t, types.TestStatusPass, recorded.LastResult().Status)
	for _, p := range []string{
		"test_test/test_cli_test_basic/results.json",
		"test_test/test_timeout/results.json",
		"test_test/test_parse_errors/errors.txt",
	} {
		assert.FileExists(t, filepath.Join(snapshotDir, filepath.FromSlash(p)))
	}

	verified, err := startOnce(t, testConfig(t, snapshotDir, snapshot.ModeVerify))
	require.NoError(t, err)
	assert.Equal(t, 3, verified.LastResult().Stats.Passed)
}

func TestHarnessReportsFailures(t *testing.T) {
	snapshotDir := t.TempDir()
	_, err := startOnce(t, testConfig(t, snapshotDir, snapshot.ModeRecord))
	require.NoError(t, err)

	golden := filepath.Join(snapshotDir, "test_test", "test_cli_test_basic", "results.json")
	require.NoError(t, os.WriteFile(golden, []byte("{}\n"), 0644))

	cfg := testConfig(t, snapshotDir, snapshot.ModeVerify)
	h, err := startOnce(t, cfg)
	require.Error(t, err)
	assert.True(t, IsTestFailureError(err))
	assert.False(t, IsRuntimeError(err))

	result := h.LastResult()
	require.NotNil(t, result)
	runDir := filepath.Join(cfg.LogDir, logging.RunDirectoryPrefix+result.RunID)
	assert.FileExists(t, filepath.Join(runDir, logging.SummaryFilename))
	assert.FileExists(t, filepath.Join(runDir, logging.FailedDirName, "test_test", "test_cli_test_basic", logging.DiffFilename))

	content, err := os.ReadFile(golden)
	require.NoError(t, err)
	assert.Equal(t, "{}\n", string(content), "verify mode never rewrites snapshots")
}

func TestHarnessRedisBackend(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	cfg := testConfig(t, "", snapshot.ModeRecord)
	cfg.SnapshotBackend = flags.BackendRedis
	cfg.RedisURL = "redis://" + s.Addr()
	cfg.RedisNamespace = "ci"
	cfg.SnapshotCacheSize = 8
	cfg.Selector.CaseIDs = []string{"test_cli_test_basic"}

	_, err = startOnce(t, cfg)
	require.NoError(t, err)
	assert.True(t, s.Exists("ci:test_test/test_cli_test_basic/results.json"))

	cfg.Mode = snapshot.ModeVerify
	h, err := startOnce(t, cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, h.LastResult().Stats.Passed)
	assert.Equal(t, 2, h.LastResult().Stats.Skipped)
}

func TestHarnessContinuousModeServesStatus(t *testing.T) {
	cfg := testConfig(t, t.TempDir(), snapshot.ModeRecord)
	cfg.RunOnce = false
	cfg.RunInterval = time.Hour
	cfg.HealthzAddr = "127.0.0.1"
	cfg.HealthzPort = 0

	ctx := context.Background()
	h, err := New(ctx, cfg, "test", nil, WithOutput(io.Discard))
	require.NoError(t, err)
	require.NoError(t, h.Start(ctx))
	defer func() { require.NoError(t, h.Stop(ctx)) }()

	resp, err := http.Get("http://" + h.status.Addr() + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var summary logging.Summary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&summary))
	assert.Equal(t, h.LastResult().RunID, summary.RunID)
	assert.Equal(t, "pass", summary.Status)
	assert.Len(t, summary.Cases, 3)
}

func TestNewHarnessErrors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(cfg *Config)
	}{
		{name: "missing case table", modify: func(cfg *Config) { cfg.CaseTable = "testdata/missing.yaml" }},
		{name: "missing fixtures", modify: func(cfg *Config) { cfg.FixtureRoot = "testdata/missing" }},
		{name: "unreachable redis", modify: func(cfg *Config) {
			cfg.SnapshotBackend = flags.BackendRedis
			cfg.RedisURL = "redis://127.0.0.1:1"
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t, t.TempDir(), snapshot.ModeVerify)
			tt.modify(cfg)
			_, err := New(context.Background(), cfg, "test", nil)
			assert.Error(t, err)
		})
	}

	_, err := New(context.Background(), nil, "test", nil)
	assert.Error(t, err)
}

func TestHarnessMinCLIVersionIsRuntimeError(t *testing.T) {
	cfg := testConfig(t, t.TempDir(), snapshot.ModeRecord)
	cfg.MinCLIVersion = "99.0.0"

	ctx := context.Background()
	h, err := New(ctx, cfg, "test", nil, WithOutput(io.Discard))
	require.NoError(t, err)
	err = h.Start(ctx)
	require.Error(t, err)
	assert.True(t, IsRuntimeError(err))
	require.NoError(t, h.Stop(ctx))
}
