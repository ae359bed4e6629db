package registry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruletest-dev/ruletest/types"
)

func writeTable(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cases.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestRegistry(t *testing.T) {
	validTable := `
suites:
  - id: cli_test
    description: "Test suite"
    tags: [kinda_slow]
    cases:
      - id: basic
        rules: rules/cli_test/basic/
        target: cli_test/basic/
        options: ["--test"]
        format: json
        artifacts: [results]
      - id: entrypoint
        tags: [slow, kinda_slow]
        rules: rules/cli_test/basic/basic.yaml
        target: cli_test/basic/basic.py
        format: none
        strict: false
        isolate: false
        env_inherit: [PATH]
        env:
          LANG: C
        timeout: 15s
        artifacts: [output, errors]
        normalize: [json-canonical]
`
	t.Run("source loading", func(t *testing.T) {
		tests := []struct {
			name    string
			cfg     Config
			wantErr bool
		}{
			{
				name:    "valid table",
				cfg:     Config{CaseTableFile: writeTable(t, validTable)},
				wantErr: false,
			},
			{
				name:    "missing path",
				cfg:     Config{},
				wantErr: true,
			},
			{
				name:    "invalid table path",
				cfg:     Config{CaseTableFile: "nonexistent.yaml"},
				wantErr: true,
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				tt.cfg.Log = log.New()
				_, err := NewRegistry(tt.cfg)
				if tt.wantErr {
					assert.Error(t, err)
				} else {
					assert.NoError(t, err)
				}
			})
		}
	})

	t.Run("defaults and overrides", func(t *testing.T) {
		reg, err := NewRegistry(Config{
			CaseTableFile:  writeTable(t, validTable),
			DefaultTimeout: time.Minute,
			Log:            log.New(),
		})
		require.NoError(t, err)

		cases := reg.GetCases()
		require.Len(t, cases, 2)

		basic := cases[0]
		assert.Equal(t, "basic", basic.ID)
		assert.Equal(t, "cli_test", basic.Suite)
		assert.Equal(t, types.FormatJSON, basic.Format)
		assert.True(t, basic.ExpectSuccess)
		assert.True(t, basic.Strict)
		assert.True(t, basic.Isolate)
		assert.Equal(t, time.Minute, basic.Timeout)
		assert.Equal(t, DefaultEncoding, basic.Encoding)
		assert.Equal(t, []types.Tag{types.TagKindaSlow}, basic.Tags)
		assert.Equal(t, []types.ArtifactRole{types.RoleResults}, basic.Artifacts)

		entry := cases[1]
		assert.Equal(t, types.FormatNone, entry.Format)
		assert.False(t, entry.Strict)
		assert.False(t, entry.Isolate)
		assert.Equal(t, 15*time.Second, entry.Timeout)
		assert.Equal(t, []string{"PATH"}, entry.InheritEnv)
		assert.Equal(t, map[string]string{"LANG": "C"}, entry.Env)
		assert.Equal(t, []types.Tag{types.TagKindaSlow, types.TagSlow}, entry.Tags)
		assert.Equal(t, []types.ArtifactRole{types.RoleOutput, types.RoleErrors}, entry.Artifacts)
		assert.Equal(t, []string{"json-canonical"}, entry.Normalizers)

		assert.Equal(t, []SuiteInfo{{ID: "cli_test", Description: "Test suite"}}, reg.GetSuites())
	})

	t.Run("returned cases are copies", func(t *testing.T) {
		reg, err := NewRegistry(Config{CaseTableFile: writeTable(t, validTable), Log: log.New()})
		require.NoError(t, err)

		cases := reg.GetCases()
		cases[0].ID = "changed"
		assert.Equal(t, "basic", reg.GetCases()[0].ID)
	})
}

func TestRegistryValidation(t *testing.T) {
	tests := []struct {
		name  string
		table string
	}{
		{
			name: "duplicate case id",
			table: `
suites:
  - id: a
    cases:
      - {id: x, rules: r, target: t, artifacts: [results]}
  - id: b
    cases:
      - {id: x, rules: r, target: t, artifacts: [results]}
`,
		},
		{
			name: "no artifacts",
			table: `
suites:
  - id: a
    cases:
      - {id: x, rules: r, target: t}
`,
		},
		{
			name: "duplicate artifact role",
			table: `
suites:
  - id: a
    cases:
      - {id: x, rules: r, target: t, artifacts: [errors, errors]}
`,
		},
		{
			name: "two stdout artifacts",
			table: `
suites:
  - id: a
    cases:
      - {id: x, rules: r, target: t, artifacts: [results, output]}
`,
		},
		{
			name: "unknown artifact",
			table: `
suites:
  - id: a
    cases:
      - {id: x, rules: r, target: t, artifacts: [stdout]}
`,
		},
		{
			name: "unknown format",
			table: `
suites:
  - id: a
    cases:
      - {id: x, rules: r, target: t, format: yaml, artifacts: [results]}
`,
		},
		{
			name: "unknown normalizer",
			table: `
suites:
  - id: a
    cases:
      - {id: x, rules: r, target: t, normalize: [sort-lines], artifacts: [results]}
`,
		},
		{
			name: "id with path separator",
			table: `
suites:
  - id: a
    cases:
      - {id: x/y, rules: r, target: t, artifacts: [results]}
`,
		},
		{
			name: "missing rules",
			table: `
suites:
  - id: a
    cases:
      - {id: x, target: t, artifacts: [results]}
`,
		},
		{
			name: "rules above the fixture root",
			table: `
suites:
  - id: a
    cases:
      - {id: x, rules: ../rules/basic/, target: t, artifacts: [results]}
`,
		},
		{
			name: "absolute rules",
			table: `
suites:
  - id: a
    cases:
      - {id: x, rules: /etc/rules.yaml, target: t, artifacts: [results]}
`,
		},
		{
			name: "target above the fixture root",
			table: `
suites:
  - id: a
    cases:
      - {id: x, rules: r, target: ../../targets, artifacts: [results]}
`,
		},
		{
			name: "target escaping after cleaning",
			table: `
suites:
  - id: a
    cases:
      - {id: x, rules: r, target: cli_test/../../../t, artifacts: [results]}
`,
		},
		{
			name: "absolute target",
			table: `
suites:
  - id: a
    cases:
      - {id: x, rules: r, target: /tmp/t, artifacts: [results]}
`,
		},
		{
			name: "zero timeout",
			table: `
suites:
  - id: a
    cases:
      - {id: x, rules: r, target: t, timeout: 0s, artifacts: [results]}
`,
		},
		{
			name:  "malformed yaml",
			table: "suites: [",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(Config{CaseTableFile: writeTable(t, tt.table), Log: log.New()})
			assert.Error(t, err)
		})
	}
}

func TestShippedCaseTable(t *testing.T) {
	reg, err := NewRegistry(Config{CaseTableFile: "../e2e/cases.yaml", Log: log.New()})
	require.NoError(t, err)

	cases := reg.GetCases()
	require.Len(t, cases, 9)

	byID := make(map[string]types.TestCase)
	for _, tc := range cases {
		byID[tc.ID] = tc
	}

	entry := byID["test_cli_test_from_entrypoint"]
	assert.True(t, entry.BareEnv)
	assert.Equal(t, []string{"PATH"}, entry.InheritEnv)
	assert.Equal(t, 15*time.Second, entry.Timeout)
	assert.True(t, entry.HasTag(types.TagSlow))
	assert.False(t, entry.HasTag(types.TagKindaSlow))

	parse := byID["test_parse_errors"]
	assert.False(t, parse.Strict)
	assert.True(t, parse.ForceColor)
	assert.Equal(t, []types.ArtifactRole{types.RoleErrors}, parse.Artifacts)

	osemfail := 0
	for _, tc := range cases {
		if tc.HasTag(types.TagOsemfail) {
			osemfail++
		}
	}
	assert.Equal(t, 4, osemfail)
}
