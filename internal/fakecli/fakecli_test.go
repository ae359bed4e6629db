package fakecli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, env map[string]string, args ...string) (string, string, int) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Main(args, &stdout, &stderr, func(k string) string { return env[k] })
	return stdout.String(), stderr.String(), code
}

func TestVersion(t *testing.T) {
	out, _, code := run(t, nil, "--version")
	assert.Equal(t, 0, code)
	assert.Equal(t, Version+"\n", out)
}

func TestRuleTesting(t *testing.T) {
	t.Chdir("../../testdata/fixtures")

	t.Run("passing rules as json", func(t *testing.T) {
		out, _, code := run(t, nil, "scan", "--json", "--strict", "--test", "--config", "rules/cli_test/basic/", "targets/cli_test/basic/")
		require.Equal(t, 0, code)

		var report testReport
		require.NoError(t, json.Unmarshal([]byte(out), &report))
		require.Contains(t, report.Results, "rules/cli_test/basic/basic.yaml")
		assert.True(t, report.Results["rules/cli_test/basic/basic.yaml"].Checks["basic-eqeq"].Passed)
	})

	t.Run("timeout finding", func(t *testing.T) {
		out, _, code := run(t, nil, "scan", "--json", "--test", "--config", "rules/cli_test/error/", "targets/cli_test/error/")
		require.Equal(t, 0, code)
		assert.Contains(t, out, "Timeout when running slow-timeout")
	})

	t.Run("text output is colored on request", func(t *testing.T) {
		plain, _, _ := run(t, nil, "scan", "--text", "--test", "--config", "rules/cli_test/basic/", "targets/cli_test/basic/")
		colored, _, _ := run(t, map[string]string{"FORCE_COLOR": "1"}, "scan", "--text", "--test", "--config", "rules/cli_test/basic/", "targets/cli_test/basic/")
		assert.NotContains(t, plain, "\x1b[")
		assert.Contains(t, colored, "\x1b[32m")
	})

	t.Run("parse errors are fatal only when strict", func(t *testing.T) {
		_, stderr, code := run(t, nil, "scan", "--text", "--verbose", "--config", "rules/cli_test/parse_errors/", "targets/cli_test/parse_errors/invalid_javascript.js")
		assert.Equal(t, 0, code)
		assert.Contains(t, stderr, "Syntax error at line targets/cli_test/parse_errors/invalid_javascript.js:1")

		_, _, code = run(t, nil, "scan", "--text", "--strict", "--config", "rules/cli_test/parse_errors/", "targets/cli_test/parse_errors/invalid_javascript.js")
		assert.Equal(t, exitFatal, code)
	})

	t.Run("missing config", func(t *testing.T) {
		_, stderr, code := run(t, nil, "scan", "--test", "--config", "rules/does/not/exist.yaml", "targets/cli_test/basic/")
		assert.Equal(t, exitInvalidConfig, code)
		assert.Contains(t, stderr, "invalid configuration file")
	})
}

func TestHooks(t *testing.T) {
	out, _, code := run(t, map[string]string{"FOO": "bar"}, "scan", "--print-env=FOO", "--exit=3")
	assert.Equal(t, 3, code)
	assert.Equal(t, "FOO=bar\n", out)

	_, stderr, code := run(t, nil, "lint")
	assert.Equal(t, exitFatal, code)
	assert.Contains(t, stderr, "unknown command")
}
