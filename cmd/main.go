package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	"github.com/ethereum-optimism/optimism/op-service/ctxinterrupt"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"

	"github.com/ruletest-dev/ruletest"
	"github.com/ruletest-dev/ruletest/exitcodes"
	"github.com/ruletest-dev/ruletest/flags"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

// otlpEndpointEnv enables trace export when set
const otlpEndpointEnv = "OTEL_EXPORTER_OTLP_ENDPOINT"

func main() {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "ruletest"
	app.Usage = "Snapshot regression harness for a rule-based static-analysis CLI"
	app.Description = "ruletest runs declared rule/target cases through the CLI and compares its output with golden snapshots"
	app.Flags = cliapp.ProtectFlags(flags.Flags)
	app.Action = cliapp.LifecycleCmd(run)
	app.ExitErrHandler = func(c *cli.Context, err error) {
		var exitErr cli.ExitCoder
		switch {
		case err == nil:
		case errors.As(err, &exitErr):
			cli.HandleExitCoder(exitErr)
		case ruletest.IsRuntimeError(err):
			cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.RuntimeErr))
		case ruletest.IsTestFailureError(err):
			cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.TestFailure))
		default:
			// Flag parsing and other setup problems
			cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.RuntimeErr))
		}
	}

	ctx := context.Background()
	if os.Getenv(otlpEndpointEnv) != "" {
		shutdown, err := otelconfig.ConfigureOpenTelemetry(
			otelconfig.WithServiceName(app.Name),
			otelconfig.WithServiceVersion(app.Version),
		)
		if err != nil {
			log.Crit("Failed to setup open telemetry", "message", err)
		}
		defer shutdown()
	}

	ctx = ctxinterrupt.WithSignalWaiterMain(ctx)
	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Crit("Application failed", "message", err)
	}
}

func run(ctx *cli.Context, closeApp context.CancelCauseFunc) (cliapp.Lifecycle, error) {
	logCfg := oplog.ReadCLIConfig(ctx)
	log := oplog.NewLogger(oplog.AppOut(ctx), logCfg)
	oplog.SetGlobalLogHandler(log.Handler())
	oplog.SetupDefaults()

	cfg, err := ruletest.NewConfig(ctx, log)
	if err != nil {
		return nil, ruletest.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}
	cfg.Log.Debug("Config", "config", cfg)

	harness, err := ruletest.New(ctx.Context, cfg, Version, closeApp)
	if err != nil {
		return nil, ruletest.NewRuntimeError(fmt.Errorf("failed to create harness: %w", err))
	}
	return harness, nil
}
