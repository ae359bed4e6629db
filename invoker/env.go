package invoker

import (
	"os"
	"sort"
)

// Env is the complete environment of a child process. Nothing from the parent
// process leaks into it unless copied in explicitly with InheritEnv.
type Env map[string]string

// InheritEnv captures the current values of the named variables from the parent
// process. Unset variables are skipped.
func InheritEnv(names ...string) Env {
	env := make(Env, len(names))
	for _, name := range names {
		if v, ok := os.LookupEnv(name); ok {
			env[name] = v
		}
	}
	return env
}

// Merge returns a new Env with the entries of e overridden by those of other.
func (e Env) Merge(other Env) Env {
	merged := make(Env, len(e)+len(other))
	for k, v := range e {
		merged[k] = v
	}
	for k, v := range other {
		merged[k] = v
	}
	return merged
}

// With returns a copy of e with key set to value
func (e Env) With(key, value string) Env {
	return e.Merge(Env{key: value})
}

// Environ renders the env as KEY=VALUE pairs sorted by key. The result is never
// nil, so an empty Env yields an empty child environment.
func (e Env) Environ() []string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	environ := make([]string, 0, len(keys))
	for _, k := range keys {
		environ = append(environ, k+"="+e[k])
	}
	return environ
}
