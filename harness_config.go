package ruletest

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// HarnessFile is the optional TOML file passed with --harness-config
type HarnessFile struct {
	CLI       CLISection       `toml:"cli"`
	Snapshots SnapshotsSection `toml:"snapshots"`
	Env       EnvSection       `toml:"env"`
	Redis     RedisSection     `toml:"redis"`
}

type CLISection struct {
	Entrypoint    []string     `toml:"entrypoint"`
	Subcommand    string       `toml:"subcommand"`
	Fixtures      string       `toml:"fixtures"`
	TargetsDir    string       `toml:"targets_dir"`
	MinCLIVersion string       `toml:"min_cli_version"`
	Timeout       TOMLDuration `toml:"timeout"`
}

type SnapshotsSection struct {
	Dir       string `toml:"dir"`
	Backend   string `toml:"backend"`
	CacheSize int    `toml:"cache_size"`
}

// EnvSection extends the environment every non-bare case receives
type EnvSection struct {
	Vars    map[string]string `toml:"vars"`
	Inherit []string          `toml:"inherit"`
}

type RedisSection struct {
	URL       string `toml:"url"`
	Namespace string `toml:"namespace"`
}

type TOMLDuration time.Duration

func (t *TOMLDuration) UnmarshalText(b []byte) error {
	d, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}

	*t = TOMLDuration(d)
	return nil
}

// ReadHarnessFile decodes a harness file. Unknown keys are rejected so a
// misspelled section does not silently fall back to defaults.
func ReadHarnessFile(path string) (*HarnessFile, error) {
	var hf HarnessFile
	md, err := toml.DecodeFile(path, &hf)
	if err != nil {
		return nil, fmt.Errorf("failed to read harness config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, fmt.Errorf("unknown keys in harness config %s: %s", path, strings.Join(keys, ", "))
	}
	if hf.CLI.Timeout < 0 {
		return nil, fmt.Errorf("negative [cli] timeout in harness config %s", path)
	}
	return &hf, nil
}
