package ruletest

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/ruletest-dev/ruletest/flags"
	"github.com/ruletest-dev/ruletest/registry"
	"github.com/ruletest-dev/ruletest/runner"
	"github.com/ruletest-dev/ruletest/snapshot"
)

// Config holds the application configuration
type Config struct {
	CaseTable         string
	FixtureRoot       string
	Entrypoint        []string
	Subcommand        string
	TargetsDir        string
	SnapshotDir       string
	SnapshotBackend   string
	SnapshotCacheSize int // 0 disables the LRU in front of the backend
	RedisURL          string
	RedisNamespace    string
	Mode              snapshot.Mode
	Selector          registry.Selector
	Concurrency       int
	DefaultTimeout    time.Duration // Timeout for cases without their own, 0 = runner default
	MinCLIVersion     string
	Env               map[string]string // Harness-wide child environment
	InheritEnv        []string          // Parent variables passed to every non-bare case
	RunInterval       time.Duration     // Interval between runs
	RunOnce           bool              // Exit after one run
	LogDir            string            // Directory receiving testrun-<id>/
	Color             string
	HealthzAddr       string
	HealthzPort       int
	Metrics           opmetrics.CLIConfig
	Log               log.Logger
}

// NewConfig creates a new Config from cli context. Values from the optional
// harness file fill in every flag that was not set explicitly.
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	hf := &HarnessFile{}
	if path := ctx.String(flags.HarnessConfig.Name); path != "" {
		var err error
		if hf, err = ReadHarnessFile(path); err != nil {
			return nil, err
		}
	}

	caseTable, err := filepath.Abs(ctx.String(flags.CaseTable.Name))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for case table '%s': %w", ctx.String(flags.CaseTable.Name), err)
	}

	fixtures := stringSetting(ctx, flags.Fixtures, hf.CLI.Fixtures)
	if fixtures == "" {
		fixtures = filepath.Dir(caseTable)
	}
	fixtures, err = filepath.Abs(fixtures)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for fixtures '%s': %w", fixtures, err)
	}

	entrypoint := strings.Fields(ctx.String(flags.Entrypoint.Name))
	if !ctx.IsSet(flags.Entrypoint.Name) && len(hf.CLI.Entrypoint) > 0 {
		entrypoint = append([]string(nil), hf.CLI.Entrypoint...)
	}
	if len(entrypoint) == 0 {
		return nil, errors.New("CLI entrypoint is required")
	}

	backend := stringSetting(ctx, flags.SnapshotBackend, hf.Snapshots.Backend)
	if backend != flags.BackendFile && backend != flags.BackendRedis {
		return nil, fmt.Errorf("invalid snapshot backend %q", backend)
	}
	snapshotDir := stringSetting(ctx, flags.SnapshotDir, hf.Snapshots.Dir)
	if snapshotDir == "" {
		snapshotDir = filepath.Join(fixtures, "snapshots")
	}
	snapshotDir, err = filepath.Abs(snapshotDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for snapshots '%s': %w", snapshotDir, err)
	}
	redisURL := stringSetting(ctx, flags.RedisURL, hf.Redis.URL)
	if backend == flags.BackendRedis && redisURL == "" {
		return nil, errors.New("redis snapshot backend requires a redis url")
	}

	cacheSize := ctx.Int(flags.SnapshotCacheSize.Name)
	if !ctx.IsSet(flags.SnapshotCacheSize.Name) && hf.Snapshots.CacheSize != 0 {
		cacheSize = hf.Snapshots.CacheSize
	}
	if cacheSize < 0 {
		return nil, fmt.Errorf("snapshot cache size cannot be negative: %d", cacheSize)
	}

	defaultTimeout := ctx.Duration(flags.DefaultTimeout.Name)
	if !ctx.IsSet(flags.DefaultTimeout.Name) && hf.CLI.Timeout != 0 {
		defaultTimeout = time.Duration(hf.CLI.Timeout)
	}
	if defaultTimeout < 0 {
		return nil, fmt.Errorf("default timeout cannot be negative: %s", defaultTimeout)
	}

	concurrency := ctx.Int(flags.Concurrency.Name)
	if concurrency < 1 {
		return nil, fmt.Errorf("concurrency must be at least 1, got %d", concurrency)
	}

	mode := snapshot.ModeVerify
	if ctx.Bool(flags.UpdateSnapshots.Name) {
		mode = snapshot.ModeRecord
	}

	env := runner.DefaultEnv()
	for k, v := range hf.Env.Vars {
		env[k] = v
	}
	inherit := append(append([]string(nil), runner.DefaultInheritEnv...), hf.Env.Inherit...)

	runInterval := ctx.Duration(flags.RunInterval.Name)
	runOnce := runInterval == 0

	// Get log directory, default to "logs" if not specified
	logDir := ctx.String(flags.LogDir.Name)
	if logDir == "" {
		logDir = "logs"
	}
	logDir, err = filepath.Abs(logDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for log directory '%s': %w", logDir, err)
	}

	return &Config{
		CaseTable:         caseTable,
		FixtureRoot:       fixtures,
		Entrypoint:        entrypoint,
		Subcommand:        stringSetting(ctx, flags.Subcommand, hf.CLI.Subcommand),
		TargetsDir:        stringSetting(ctx, flags.TargetsDir, hf.CLI.TargetsDir),
		SnapshotDir:       snapshotDir,
		SnapshotBackend:   backend,
		SnapshotCacheSize: cacheSize,
		RedisURL:          redisURL,
		RedisNamespace:    stringSetting(ctx, flags.RedisNamespace, hf.Redis.Namespace),
		Mode:              mode,
		Selector: registry.Selector{
			Include:   registry.ParseTags(ctx.StringSlice(flags.IncludeTags.Name)),
			Exclude:   registry.ParseTags(ctx.StringSlice(flags.ExcludeTags.Name)),
			AltEngine: ctx.Bool(flags.AltEngine.Name),
			CaseIDs:   ctx.StringSlice(flags.CaseIDs.Name),
		},
		Concurrency:    concurrency,
		DefaultTimeout: defaultTimeout,
		MinCLIVersion:  stringSetting(ctx, flags.MinCLIVersion, hf.CLI.MinCLIVersion),
		Env:            env,
		InheritEnv:     inherit,
		RunInterval:    runInterval,
		RunOnce:        runOnce,
		LogDir:         logDir,
		Color:          ctx.String(flags.Color.Name),
		HealthzAddr:    ctx.String(flags.HealthzAddr.Name),
		HealthzPort:    ctx.Int(flags.HealthzPort.Name),
		Metrics:        opmetrics.ReadCLIConfig(ctx),
		Log:            log,
	}, nil
}

// stringSetting returns the flag value when it was set explicitly or the file
// leaves it empty, otherwise the file value
func stringSetting(ctx *cli.Context, f *cli.StringFlag, fileValue string) string {
	if ctx.IsSet(f.Name) || fileValue == "" {
		return ctx.String(f.Name)
	}
	return fileValue
}
