// Package invoker runs the CLI under test as a subprocess with a fully
// controlled environment and captures its output.
package invoker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ruletest-dev/ruletest/types"
)

// DefaultWaitDelay bounds how long Wait blocks on the output pipes after the
// process group has been killed.
const DefaultWaitDelay = 5 * time.Second

// Request describes one CLI invocation
type Request struct {
	// Argv is the full argument vector; Argv[0] is the entrypoint
	Argv []string
	// Dir is the working directory; empty means the current one
	Dir string
	// Env is the complete child environment
	Env Env
	// Timeout is the wall-clock limit; zero disables it
	Timeout time.Duration
	// Encoding names the encoding of both output streams ("" or "raw" keeps bytes)
	Encoding string
	// ExpectSuccess turns a non-zero exit into an UnexpectedExitError
	ExpectSuccess bool
}

// Invoker runs a Request to completion
type Invoker interface {
	Invoke(ctx context.Context, req Request) (*types.InvocationResult, error)
}

// ProcessInvoker implements Invoker with os/exec
type ProcessInvoker struct {
	log       log.Logger
	waitDelay time.Duration
}

var _ Invoker = (*ProcessInvoker)(nil)

// NewProcessInvoker creates an invoker. A nil logger falls back to the default one.
func NewProcessInvoker(logger log.Logger) *ProcessInvoker {
	if logger == nil {
		logger = log.New()
		logger.Error("No logger provided to process invoker, using default")
	}
	return &ProcessInvoker{log: logger, waitDelay: DefaultWaitDelay}
}

// Invoke spawns the process and blocks until it exits or the timeout fires.
// When ExpectSuccess is set and the process exits non-zero, the captured result
// is returned together with an *UnexpectedExitError.
func (p *ProcessInvoker) Invoke(ctx context.Context, req Request) (*types.InvocationResult, error) {
	if len(req.Argv) == 0 {
		return nil, &InvocationError{Err: errors.New("empty argument vector")}
	}
	if req.Dir != "" {
		info, err := os.Stat(req.Dir)
		if err != nil {
			return nil, &InvocationError{Argv: req.Argv, Err: fmt.Errorf("working directory: %w", err)}
		}
		if !info.IsDir() {
			return nil, &InvocationError{Argv: req.Argv, Err: fmt.Errorf("working directory %s is not a directory", req.Dir)}
		}
	}
	decode, err := lookupDecoder(req.Encoding)
	if err != nil {
		return nil, &InvocationError{Argv: req.Argv, Err: err}
	}

	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if req.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, req.Timeout)
	}
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, req.Argv[0], req.Argv[1:]...)
	cmd.Dir = req.Dir
	cmd.Env = req.Env.Environ()
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	setProcessGroup(cmd)
	cmd.Cancel = func() error {
		return killProcessGroup(cmd)
	}
	cmd.WaitDelay = p.waitDelay

	p.log.Debug("Invoking CLI", "argv", req.Argv, "dir", req.Dir, "timeout", req.Timeout)
	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	if ctx.Err() != nil {
		return nil, &InvocationError{Argv: req.Argv, Err: ctx.Err()}
	}
	if runErr != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		p.log.Warn("CLI timed out, process group killed", "argv", req.Argv, "timeout", req.Timeout)
		return nil, &TimeoutError{Argv: req.Argv, Timeout: req.Timeout}
	}

	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return nil, &InvocationError{Argv: req.Argv, Err: runErr}
		}
		exitCode = exitErr.ExitCode()
	}

	out, err := decode(stdout.Bytes())
	if err != nil {
		return nil, &EncodingError{Stream: "stdout", Encoding: req.Encoding, Err: err}
	}
	errOut, err := decode(stderr.Bytes())
	if err != nil {
		return nil, &EncodingError{Stream: "stderr", Encoding: req.Encoding, Err: err}
	}

	result := &types.InvocationResult{
		Argv:     append([]string(nil), req.Argv...),
		Stdout:   out,
		Stderr:   errOut,
		ExitCode: exitCode,
		Duration: duration,
	}
	p.log.Debug("CLI exited", "argv", req.Argv, "exitCode", exitCode, "duration", duration)

	if req.ExpectSuccess && exitCode != 0 {
		return result, &UnexpectedExitError{
			Argv:     result.Argv,
			ExitCode: exitCode,
			Stdout:   result.Stdout,
			Stderr:   result.Stderr,
		}
	}
	return result, nil
}
