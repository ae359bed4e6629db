package invoker

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruletest-dev/ruletest/internal/fakecli"
	"github.com/ruletest-dev/ruletest/types"
)

func TestMain(m *testing.M) {
	fakecli.MaybeRun()
	os.Exit(m.Run())
}

func fakeRequest(args ...string) Request {
	return Request{
		Argv:     append([]string{os.Args[0]}, args...),
		Env:      Env(fakecli.Env()),
		Encoding: EncodingUTF8,
	}
}

func newTestInvoker() *ProcessInvoker {
	return NewProcessInvoker(log.NewLogger(log.DiscardHandler()))
}

func TestInvokeCapturesStreams(t *testing.T) {
	req := fakeRequest("scan", "--json", "--test", "--config", "rules/cli_test/basic/", "targets/cli_test/basic/")
	req.Dir = "../testdata/fixtures"

	result, err := newTestInvoker().Invoke(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Contains(t, result.StdoutText(), `"basic-eqeq"`)
	assert.Equal(t, req.Argv, result.Argv)
	assert.Greater(t, result.Duration, time.Duration(0))
}

func TestInvokeExitCodes(t *testing.T) {
	tests := []struct {
		name          string
		expectSuccess bool
		wantErr       bool
	}{
		{name: "non-zero is a normal result", expectSuccess: false},
		{name: "non-zero with expect success", expectSuccess: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := fakeRequest("scan", "--config", "rules/missing.yaml", "targets/")
			req.ExpectSuccess = tt.expectSuccess

			result, err := newTestInvoker().Invoke(context.Background(), req)
			require.NotNil(t, result)
			assert.Equal(t, 7, result.ExitCode)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}

			var exitErr *UnexpectedExitError
			require.ErrorAs(t, err, &exitErr)
			assert.Equal(t, 7, exitErr.ExitCode)
			assert.Contains(t, string(exitErr.Stderr), "invalid configuration file")
			assert.Equal(t, types.StageExitCode, StageOf(err))
		})
	}
}

func TestInvokeTimeoutKillsProcessGroup(t *testing.T) {
	req := fakeRequest("scan", "--spawn-child", "--sleep=30s")
	req.Timeout = 300 * time.Millisecond

	start := time.Now()
	result, err := newTestInvoker().Invoke(context.Background(), req)
	elapsed := time.Since(start)

	assert.Nil(t, result)
	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, req.Timeout, timeoutErr.Timeout)
	assert.Equal(t, types.StageTimeout, StageOf(err))
	// the grandchild holds stdout open; only a group kill returns before WaitDelay
	assert.Less(t, elapsed, DefaultWaitDelay)
}

func TestInvokeParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	result, err := newTestInvoker().Invoke(ctx, fakeRequest("scan", "--sleep=30s"))
	assert.Nil(t, result)
	var invErr *InvocationError
	require.ErrorAs(t, err, &invErr)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestInvokeEnvironmentIsExplicit(t *testing.T) {
	t.Setenv("RULETEST_LEAK_CHECK", "leaked")
	t.Setenv("RULETEST_INHERITED", "inherited")

	req := fakeRequest("scan", "--print-env=RULETEST_LEAK_CHECK", "--print-env=RULETEST_INHERITED", "--print-env=CASE_VAR")
	req.Env = req.Env.Merge(InheritEnv("RULETEST_INHERITED", "RULETEST_NOT_SET")).With("CASE_VAR", "x")

	result, err := newTestInvoker().Invoke(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "RULETEST_LEAK_CHECK=\nRULETEST_INHERITED=inherited\nCASE_VAR=x\n", result.StdoutText())
}

func TestInvokeRequestValidation(t *testing.T) {
	inv := newTestInvoker()

	_, err := inv.Invoke(context.Background(), Request{})
	var invErr *InvocationError
	require.ErrorAs(t, err, &invErr)

	req := fakeRequest("--version")
	req.Dir = "does-not-exist"
	_, err = inv.Invoke(context.Background(), req)
	require.ErrorAs(t, err, &invErr)
	assert.Equal(t, types.StageInvocation, StageOf(err))

	req = fakeRequest("--version")
	req.Encoding = "no-such-encoding"
	_, err = inv.Invoke(context.Background(), req)
	require.ErrorAs(t, err, &invErr)

	req = fakeRequest("--version")
	req.Argv[0] = "/nonexistent/ruletest-cli"
	_, err = inv.Invoke(context.Background(), req)
	require.ErrorAs(t, err, &invErr)
}

func TestInvokeEncodings(t *testing.T) {
	inv := newTestInvoker()

	req := fakeRequest("scan", "--invalid-utf8")
	_, err := inv.Invoke(context.Background(), req)
	var encErr *EncodingError
	require.ErrorAs(t, err, &encErr)
	assert.Equal(t, "stdout", encErr.Stream)
	assert.Equal(t, types.StageEncoding, StageOf(err))

	req.Encoding = EncodingRaw
	result, err := inv.Invoke(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xfe, '\n'}, result.Stdout)

	req.Encoding = "latin1"
	result, err = inv.Invoke(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "ÿþ\n", result.StdoutText())
}

func TestEnvEnviron(t *testing.T) {
	env := Env{"B": "2", "A": "1"}
	assert.Equal(t, []string{"A=1", "B=2"}, env.Environ())
	assert.NotNil(t, Env(nil).Environ())
	assert.Empty(t, Env(nil).Environ())

	merged := env.Merge(Env{"B": "3"})
	assert.Equal(t, "3", merged["B"])
	assert.Equal(t, "2", env["B"], "merge must not modify the receiver")
}
