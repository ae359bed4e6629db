package registry

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/yaml.v3"

	"github.com/ruletest-dev/ruletest/snapshot"
	"github.com/ruletest-dev/ruletest/types"
)

const DefaultEncoding = "utf-8"

// Registry holds the cases declared in a case table
type Registry struct {
	config Config
	suites []SuiteInfo
	cases  []types.TestCase
	mu     sync.RWMutex
}

// SuiteInfo describes a declared suite
type SuiteInfo struct {
	ID          string
	Description string
}

// Config contains registry configuration
type Config struct {
	Log            log.Logger
	CaseTableFile  string
	DefaultTimeout time.Duration
}

// NewRegistry creates a new registry instance
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.CaseTableFile == "" {
		return nil, fmt.Errorf("case table file is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}

	table, err := loadConfig(cfg.CaseTableFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load case table: %w", err)
	}

	r := &Registry{config: cfg}
	if err := r.load(table); err != nil {
		return nil, fmt.Errorf("invalid case table %s: %w", cfg.CaseTableFile, err)
	}

	cfg.Log.Debug("Registry loaded", "suites", len(r.suites), "cases", len(r.cases))
	return r, nil
}

// NewRegistryFromConfig builds a registry from an already parsed table
func NewRegistryFromConfig(cfg Config, table *types.CaseTableConfig) (*Registry, error) {
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	r := &Registry{config: cfg}
	if err := r.load(table); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) load(table *types.CaseTableConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	seenSuites := make(map[string]bool)
	seenCases := make(map[string]string)
	for _, suite := range table.Suites {
		if err := validateID(suite.ID); err != nil {
			return fmt.Errorf("suite: %w", err)
		}
		if seenSuites[suite.ID] {
			return fmt.Errorf("duplicate suite id %q", suite.ID)
		}
		seenSuites[suite.ID] = true
		r.suites = append(r.suites, SuiteInfo{ID: suite.ID, Description: suite.Description})

		for _, cc := range suite.Cases {
			if other, ok := seenCases[cc.ID]; ok {
				return fmt.Errorf("duplicate case id %q in suites %s and %s", cc.ID, other, suite.ID)
			}
			seenCases[cc.ID] = suite.ID

			tc, err := r.buildCase(suite, cc)
			if err != nil {
				return fmt.Errorf("case %q: %w", cc.ID, err)
			}
			r.cases = append(r.cases, tc)
		}
	}
	return nil
}

// buildCase converts a declaration into an immutable TestCase, applying
// defaults and copying every slice and map.
func (r *Registry) buildCase(suite types.SuiteConfig, cc types.CaseConfig) (types.TestCase, error) {
	if err := validateID(cc.ID); err != nil {
		return types.TestCase{}, err
	}
	if cc.Rules == "" {
		return types.TestCase{}, fmt.Errorf("rules locator is required")
	}
	if cc.Target == "" {
		return types.TestCase{}, fmt.Errorf("target locator is required")
	}
	if err := validateLocator("rules", cc.Rules); err != nil {
		return types.TestCase{}, err
	}
	if err := validateLocator("target", cc.Target); err != nil {
		return types.TestCase{}, err
	}

	format, err := types.ParseOutputFormat(cc.Format)
	if err != nil {
		return types.TestCase{}, err
	}

	if len(cc.Artifacts) == 0 {
		return types.TestCase{}, fmt.Errorf("at least one artifact is required")
	}
	artifacts := make([]types.ArtifactRole, 0, len(cc.Artifacts))
	seenRoles := make(map[types.ArtifactRole]bool)
	for _, a := range cc.Artifacts {
		role, err := types.ParseArtifactRole(a)
		if err != nil {
			return types.TestCase{}, err
		}
		if seenRoles[role] {
			return types.TestCase{}, fmt.Errorf("duplicate artifact %q", role)
		}
		seenRoles[role] = true
		artifacts = append(artifacts, role)
	}
	if seenRoles[types.RoleResults] && seenRoles[types.RoleOutput] {
		return types.TestCase{}, fmt.Errorf("artifacts %q and %q both capture stdout", types.RoleResults, types.RoleOutput)
	}

	if err := snapshot.ValidateNormalizers(cc.Normalize); err != nil {
		return types.TestCase{}, err
	}

	timeout := r.config.DefaultTimeout
	if cc.Timeout != nil {
		if *cc.Timeout <= 0 {
			return types.TestCase{}, fmt.Errorf("timeout must be positive, got %v", *cc.Timeout)
		}
		timeout = *cc.Timeout
	}

	encoding := cc.Encoding
	if encoding == "" {
		encoding = DefaultEncoding
	}

	env := make(map[string]string, len(cc.Env))
	for k, v := range cc.Env {
		if k == "" || strings.Contains(k, "=") {
			return types.TestCase{}, fmt.Errorf("invalid env variable name %q", k)
		}
		env[k] = v
	}

	return types.TestCase{
		ID:            cc.ID,
		Suite:         suite.ID,
		RuleLocator:   cc.Rules,
		TargetLocator: cc.Target,
		Options:       append([]string(nil), cc.Options...),
		Format:        format,
		ExpectSuccess: boolOr(cc.ExpectSuccess, true),
		Strict:        boolOr(cc.Strict, true),
		ForceColor:    cc.ForceColor,
		Isolate:       boolOr(cc.Isolate, true),
		Env:           env,
		InheritEnv:    append([]string(nil), cc.EnvInherit...),
		BareEnv:       cc.BareEnv,
		Timeout:       timeout,
		Encoding:      encoding,
		Tags:          mergeTags(suite.Tags, cc.Tags),
		Artifacts:     artifacts,
		Normalizers:   append([]string(nil), cc.Normalize...),
	}, nil
}

// GetCases returns all declared cases in declaration order
func (r *Registry) GetCases() []types.TestCase {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]types.TestCase(nil), r.cases...)
}

// GetSuites returns the declared suites in declaration order
func (r *Registry) GetSuites() []SuiteInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]SuiteInfo(nil), r.suites...)
}

func loadConfig(path string) (*types.CaseTableConfig, error) {
	log.Debug("Reading case table", "path", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading case table: %w", err)
	}

	var cfg types.CaseTableConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing case table: %w", err)
	}
	return &cfg, nil
}

// validateID accepts identifiers usable as a single snapshot path segment
// validateLocator requires a fixture-relative path that stays below the
// fixture root once cleaned.
func validateLocator(kind, locator string) error {
	if path.IsAbs(locator) || filepath.IsAbs(locator) || !filepath.IsLocal(filepath.Clean(filepath.FromSlash(locator))) {
		return fmt.Errorf("%s locator %q must be a relative path inside the fixture root", kind, locator)
	}
	return nil
}

func validateID(id string) error {
	switch {
	case id == "":
		return fmt.Errorf("id is required")
	case id == "." || id == "..":
		return fmt.Errorf("invalid id %q", id)
	case strings.ContainsAny(id, `/\`):
		return fmt.Errorf("id %q must not contain a path separator", id)
	}
	return nil
}

func mergeTags(suiteTags, caseTags []string) []types.Tag {
	seen := make(map[string]bool)
	var tags []types.Tag
	for _, list := range [][]string{suiteTags, caseTags} {
		for _, t := range list {
			if t == "" || seen[t] {
				continue
			}
			seen[t] = true
			tags = append(tags, types.Tag(t))
		}
	}
	return tags
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
