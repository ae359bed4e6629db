package flags

import (
	"fmt"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	opflags "github.com/ethereum-optimism/optimism/op-service/flags"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
)

const EnvVarPrefix = "RULETEST"

// Snapshot backends
const (
	BackendFile  = "file"
	BackendRedis = "redis"
)

// Console color modes
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

var (
	CaseTable = &cli.StringFlag{
		Name:     "cases",
		Value:    "",
		Required: true,
		EnvVars:  opservice.PrefixEnvVar(EnvVarPrefix, "CASES"),
		Usage:    "Path to the case table (eg. 'e2e/cases.yaml')",
	}
	Fixtures = &cli.StringFlag{
		Name:    "fixtures",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "FIXTURES"),
		Usage:   "Directory holding the rules/ and targets/ fixtures. Defaults to the directory of the case table",
	}
	Entrypoint = &cli.StringFlag{
		Name:    "entrypoint",
		Value:   "semgrep",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "ENTRYPOINT"),
		Usage:   "Command that starts the CLI under test, split on whitespace (eg. 'python -m semgrep')",
	}
	Subcommand = &cli.StringFlag{
		Name:    "subcommand",
		Value:   "scan",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SUBCOMMAND"),
		Usage:   "Subcommand passed after the entrypoint",
	}
	TargetsDir = &cli.StringFlag{
		Name:    "targets-dir",
		Value:   "targets",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TARGETS_DIR"),
		Usage:   "Directory of scan targets, relative to the fixtures directory",
	}
	SnapshotDir = &cli.StringFlag{
		Name:    "snapshots",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SNAPSHOTS"),
		Usage:   "Snapshot directory for the file backend. Defaults to <fixtures>/snapshots",
	}
	SnapshotBackend = &cli.StringFlag{
		Name:    "snapshot-backend",
		Value:   BackendFile,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SNAPSHOT_BACKEND"),
		Usage:   fmt.Sprintf("Where snapshots are stored: %s or %s", BackendFile, BackendRedis),
		Action: func(_ *cli.Context, v string) error {
			if v != BackendFile && v != BackendRedis {
				return fmt.Errorf("invalid snapshot backend %q", v)
			}
			return nil
		},
	}
	SnapshotCacheSize = &cli.IntFlag{
		Name:    "snapshot-cache-size",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SNAPSHOT_CACHE_SIZE"),
		Usage:   "Number of snapshots kept in an in-memory LRU in front of the backend. 0 disables the cache",
	}
	RedisURL = &cli.StringFlag{
		Name:    "redis.url",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "REDIS_URL"),
		Usage:   "Redis URL for the redis snapshot backend (eg. 'redis://localhost:6379/0')",
	}
	RedisNamespace = &cli.StringFlag{
		Name:    "redis.namespace",
		Value:   "ruletest",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "REDIS_NAMESPACE"),
		Usage:   "Key prefix for snapshots stored in redis",
	}
	UpdateSnapshots = &cli.BoolFlag{
		Name:    "update-snapshots",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "UPDATE_SNAPSHOTS"),
		Usage:   "Record produced output as the new snapshots instead of comparing",
	}
	IncludeTags = &cli.StringSliceFlag{
		Name:    "include-tags",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "INCLUDE_TAGS"),
		Usage:   "Only run cases carrying at least one of these tags",
	}
	ExcludeTags = &cli.StringSliceFlag{
		Name:    "exclude-tags",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "EXCLUDE_TAGS"),
		Usage:   "Skip cases carrying any of these tags",
	}
	AltEngine = &cli.BoolFlag{
		Name:    "alt-engine",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "ALT_ENGINE"),
		Usage:   "The CLI runs on the alternate engine; cases tagged osemfail are skipped",
	}
	CaseIDs = &cli.StringSliceFlag{
		Name:    "case",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CASE"),
		Usage:   "Run only the named case ids (repeatable)",
	}
	Concurrency = &cli.IntFlag{
		Name:    "concurrency",
		Value:   1,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CONCURRENCY"),
		Usage:   "Number of cases executed in parallel",
	}
	DefaultTimeout = &cli.DurationFlag{
		Name:    "default-timeout",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "DEFAULT_TIMEOUT"),
		Usage:   "Timeout for cases that do not declare one (eg. '2m'). 0 uses the built-in default",
	}
	MinCLIVersion = &cli.StringFlag{
		Name:    "min-cli-version",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "MIN_CLI_VERSION"),
		Usage:   "Refuse to run against a CLI reporting an older --version (eg. '1.50.0')",
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RUN_INTERVAL"),
		Usage:   "Interval between runs (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
	}
	LogDir = &cli.StringFlag{
		Name:    "logdir",
		Value:   "logs",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LOGDIR"),
		Usage:   "Directory receiving testrun-<id>/ artifact directories",
	}
	HarnessConfig = &cli.StringFlag{
		Name:    "harness-config",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HARNESS_CONFIG"),
		Usage:   "Optional TOML file with [cli], [snapshots], [env] and [redis] sections. Flags set explicitly win",
	}
	Color = &cli.StringFlag{
		Name:    "color",
		Value:   ColorAuto,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "COLOR"),
		Usage:   fmt.Sprintf("Console color: %s, %s or %s", ColorAuto, ColorAlways, ColorNever),
		Action: func(_ *cli.Context, v string) error {
			switch v {
			case ColorAuto, ColorAlways, ColorNever:
				return nil
			}
			return fmt.Errorf("invalid color mode %q", v)
		},
	}
	HealthzAddr = &cli.StringFlag{
		Name:    "healthz.addr",
		Value:   "0.0.0.0",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HEALTHZ_ADDR"),
		Usage:   "Listen address of the healthz and status server (continuous mode only)",
	}
	HealthzPort = &cli.IntFlag{
		Name:    "healthz.port",
		Value:   8080,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HEALTHZ_PORT"),
		Usage:   "Listen port of the healthz and status server (continuous mode only)",
	}
)

var requiredFlags = []cli.Flag{
	CaseTable,
}

var optionalFlags = []cli.Flag{
	Fixtures,
	Entrypoint,
	Subcommand,
	TargetsDir,
	SnapshotDir,
	SnapshotBackend,
	SnapshotCacheSize,
	RedisURL,
	RedisNamespace,
	UpdateSnapshots,
	IncludeTags,
	ExcludeTags,
	AltEngine,
	CaseIDs,
	Concurrency,
	DefaultTimeout,
	MinCLIVersion,
	RunInterval,
	LogDir,
	HarnessConfig,
	Color,
	HealthzAddr,
	HealthzPort,
}
var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)

	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return opflags.CheckRequiredXor(ctx)
}
