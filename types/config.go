package types

import "time"

// CaseTableConfig represents the complete case table file
type CaseTableConfig struct {
	Suites []SuiteConfig `yaml:"suites"`
}

// SuiteConfig represents a collection of related cases. Tags declared on the
// suite are added to every case in it.
type SuiteConfig struct {
	ID          string       `yaml:"id"`
	Description string       `yaml:"description"`
	Tags        []string     `yaml:"tags,omitempty"`
	Cases       []CaseConfig `yaml:"cases"`
}

// CaseConfig represents a single case declaration
type CaseConfig struct {
	ID            string            `yaml:"id"`
	Rules         string            `yaml:"rules"`
	Target        string            `yaml:"target"`
	Options       []string          `yaml:"options,omitempty"`
	Format        string            `yaml:"format,omitempty"`
	ExpectSuccess *bool             `yaml:"expect_success,omitempty"`
	Strict        *bool             `yaml:"strict,omitempty"`
	ForceColor    bool              `yaml:"force_color,omitempty"`
	Isolate       *bool             `yaml:"isolate,omitempty"`
	Env           map[string]string `yaml:"env,omitempty"`
	EnvInherit    []string          `yaml:"env_inherit,omitempty"`
	BareEnv       bool              `yaml:"bare_env,omitempty"`
	Timeout       *time.Duration    `yaml:"timeout,omitempty"`
	Encoding      string            `yaml:"encoding,omitempty"`
	Tags          []string          `yaml:"tags,omitempty"`
	Artifacts     []string          `yaml:"artifacts"`
	Normalize     []string          `yaml:"normalize,omitempty"`
}
