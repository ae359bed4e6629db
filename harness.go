package ruletest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"sync/atomic"

	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	"github.com/ethereum-optimism/optimism/op-service/httputil"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ruletest-dev/ruletest/exitcodes"
	"github.com/ruletest-dev/ruletest/flags"
	"github.com/ruletest-dev/ruletest/invoker"
	"github.com/ruletest-dev/ruletest/logging"
	"github.com/ruletest-dev/ruletest/metrics"
	"github.com/ruletest-dev/ruletest/registry"
	"github.com/ruletest-dev/ruletest/runner"
	"github.com/ruletest-dev/ruletest/service"
	"github.com/ruletest-dev/ruletest/snapshot"
)

var _ cliapp.Lifecycle = (*Harness)(nil)

// Harness wires the case table, the CLI runner and the snapshot store into a
// cliapp.Lifecycle that runs the suite once or on a schedule.
type Harness struct {
	config    *Config
	version   string
	registry  *registry.Registry
	runner    runner.SuiteRunnerWithSink
	scheduler RunScheduler
	formatter ResultFormatter
	redis     redis.UniversalClient

	status        *service.Server
	metricsServer *httputil.HTTPServer

	last    atomic.Pointer[runner.RunResult]
	stopped atomic.Bool

	shutdownCallback func(error)
}

// Option adjusts a Harness after its defaults are set
type Option func(*Harness)

// WithOutput sends the console summary to w instead of stdout
func WithOutput(w io.Writer) Option {
	return func(h *Harness) {
		h.formatter = NewConsoleResultFormatter(w, h.config.Color == flags.ColorAlways, h.config.Log)
	}
}

func New(ctx context.Context, config *Config, version string, shutdownCallback func(error), opts ...Option) (*Harness, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	config.Log.Debug("Creating harness with config",
		"cases", config.CaseTable,
		"fixtures", config.FixtureRoot,
		"entrypoint", config.Entrypoint,
		"backend", config.SnapshotBackend,
		"mode", config.Mode,
		"runInterval", config.RunInterval,
		"runOnce", config.RunOnce)

	reg, err := registry.NewRegistry(registry.Config{
		Log:            config.Log,
		CaseTableFile:  config.CaseTable,
		DefaultTimeout: config.DefaultTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}

	store, client, err := newSnapshotStore(ctx, config)
	if err != nil {
		return nil, err
	}

	verifier, err := snapshot.NewVerifier(snapshot.Config{Store: store, Mode: config.Mode, Log: config.Log})
	if err != nil {
		return nil, fmt.Errorf("failed to create verifier: %w", err)
	}

	caseRunner, err := runner.NewCaseRunner(runner.CaseRunnerConfig{
		Entrypoint:     config.Entrypoint,
		Subcommand:     config.Subcommand,
		FixtureRoot:    config.FixtureRoot,
		TargetsDir:     config.TargetsDir,
		DefaultEnv:     config.Env,
		InheritEnv:     config.InheritEnv,
		DefaultTimeout: config.DefaultTimeout,
		Invoker:        invoker.NewProcessInvoker(config.Log),
		Log:            config.Log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create case runner: %w", err)
	}

	suiteRunner, err := runner.NewSuiteRunner(runner.Config{
		Registry:      reg,
		Selector:      config.Selector,
		CaseRunner:    caseRunner,
		Verifier:      verifier,
		Concurrency:   config.Concurrency,
		MinCLIVersion: config.MinCLIVersion,
		Log:           config.Log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create suite runner: %w", err)
	}

	h := &Harness{
		config:           config,
		version:          version,
		registry:         reg,
		runner:           suiteRunner,
		scheduler:        NewRunScheduler(config.RunInterval, config.Log),
		formatter:        NewConsoleResultFormatter(os.Stdout, ColorEnabled(config.Color, os.Stdout), config.Log),
		redis:            client,
		shutdownCallback: shutdownCallback,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.scheduler.RegisterCallback(h.runSuite)
	return h, nil
}

// newSnapshotStore builds the configured backend, optionally behind an LRU
func newSnapshotStore(ctx context.Context, config *Config) (snapshot.Store, redis.UniversalClient, error) {
	var (
		store  snapshot.Store
		client redis.UniversalClient
	)
	switch config.SnapshotBackend {
	case flags.BackendRedis:
		var err error
		client, err = snapshot.NewRedisClient(config.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create redis client: %w", err)
		}
		if err := snapshot.CheckRedisConnection(ctx, client); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		store = snapshot.NewRedisStore(client, config.RedisNamespace)
	default:
		store = snapshot.NewFileStore(config.SnapshotDir)
	}

	if config.SnapshotCacheSize > 0 {
		cached, err := snapshot.NewCachedStore(store, config.SnapshotCacheSize)
		if err != nil {
			return nil, nil, err
		}
		store = cached
	}
	return store, client, nil
}

// Start implements the cliapp.Lifecycle interface. In run-once mode it
// returns a TestFailureError when any case failed.
func (h *Harness) Start(ctx context.Context) error {
	// Panics are harness bugs, never case failures
	defer func() {
		if r := recover(); r != nil {
			h.config.Log.Error("Runtime error occurred", "error", r)
			os.Exit(exitcodes.RuntimeErr)
		}
	}()

	if err := h.startServers(); err != nil {
		return NewRuntimeError(err)
	}

	if err := h.scheduler.Start(ctx); err != nil {
		h.config.Log.Error("Runtime error running suite", "error", err)
		if IsRuntimeError(err) {
			return err
		}
		return NewRuntimeError(err)
	}

	if !h.config.RunOnce {
		h.config.Log.Debug("ruletest started in continuous mode", "interval", h.config.RunInterval)
		return nil
	}

	result := h.last.Load()
	if result != nil && len(result.Failures()) > 0 {
		h.config.Log.Warn("Run completed with failures, returning exit code 1")
		return NewTestFailureError(result.String())
	}

	h.config.Log.Info("Run completed, exiting (run-once mode)")
	if h.shutdownCallback != nil {
		go h.shutdownCallback(nil)
	}
	return nil
}

func (h *Harness) startServers() error {
	if h.config.Metrics.Enabled {
		h.config.Log.Info("Starting metrics server", "addr", h.config.Metrics.ListenAddr, "port", h.config.Metrics.ListenPort)
		srv, err := opmetrics.StartServer(metrics.Registry, h.config.Metrics.ListenAddr, h.config.Metrics.ListenPort)
		if err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		h.metricsServer = srv
	}

	if !h.config.RunOnce {
		h.status = service.New(h.config.Log, h.Status)
		addr := net.JoinHostPort(h.config.HealthzAddr, strconv.Itoa(h.config.HealthzPort))
		if err := h.status.Start(addr); err != nil {
			return fmt.Errorf("failed to start healthz server: %w", err)
		}
	}
	return nil
}

// runSuite performs one complete run and prints its summary
func (h *Harness) runSuite(ctx context.Context) error {
	runID := uuid.New().String()
	fileLogger, err := logging.NewFileLogger(h.config.LogDir, runID)
	if err != nil {
		return NewRuntimeError(fmt.Errorf("failed to create file logger: %w", err))
	}
	h.runner.SetResultSink(fileLogger)

	h.config.Log.Info("Running cases...", "run_id", runID, "mode", h.config.Mode)
	result, err := h.runner.RunAll(ctx)
	if err != nil {
		metrics.RecordErrorDetails("run_all", err)
		return NewRuntimeError(err)
	}
	h.last.Store(result)

	if err := h.formatter.FormatResults(result); err != nil {
		h.config.Log.Error("Failed to print results", "error", err)
	}
	h.config.Log.Info("Run completed", "run_id", result.RunID, "status", result.Status,
		"artifacts", fileLogger.GetDirectory())
	return nil
}

// LastResult returns the most recent finished run, or nil
func (h *Harness) LastResult() *runner.RunResult {
	return h.last.Load()
}

// Status is the JSON summary of the last run served on /status
func (h *Harness) Status() *logging.Summary {
	result := h.last.Load()
	if result == nil {
		return nil
	}
	return logging.NewSummary(result)
}

// Stop implements the cliapp.Lifecycle interface.
func (h *Harness) Stop(ctx context.Context) error {
	if h.stopped.Swap(true) {
		return nil
	}
	h.config.Log.Info("Stopping ruletest")

	var result error
	if err := h.scheduler.Stop(); err != nil {
		result = errors.Join(result, err)
	}
	if err := h.scheduler.WaitForShutdown(ctx); err != nil {
		result = errors.Join(result, fmt.Errorf("failed to wait for scheduler: %w", err))
	}
	if h.status != nil {
		if err := h.status.Shutdown(ctx); err != nil {
			result = errors.Join(result, fmt.Errorf("failed to stop healthz server: %w", err))
		}
	}
	if h.metricsServer != nil {
		if err := h.metricsServer.Stop(ctx); err != nil {
			result = errors.Join(result, fmt.Errorf("failed to stop metrics server: %w", err))
		}
	}
	if h.redis != nil {
		if err := h.redis.Close(); err != nil {
			result = errors.Join(result, fmt.Errorf("failed to close redis client: %w", err))
		}
	}
	return result
}

// Stopped implements the cliapp.Lifecycle interface.
func (h *Harness) Stopped() bool {
	return h.stopped.Load()
}
