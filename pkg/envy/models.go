package envy

import (
	"regexp"
	"time"
)

// Variable is a single resolved environment variable.
type Variable struct {
	Key   string
	Value string
}

func (v Variable) String() string {
	return v.Key + "=" + v.Value
}

// PatternRule maps directories whose path matches Pattern to a list of raw
// "KEY=value" assignments.
type PatternRule struct {
	Pattern *regexp.Regexp
	Env     []string
}

// AllowList is the persisted set of authorized env files plus the ordered
// pattern rules. Envs holds canonical absolute paths in registration order.
type AllowList struct {
	Envs  []string
	Paths []PatternRule
}

// ResolutionResult is the ordered output of a single resolution.
type ResolutionResult struct {
	Variables []Variable
}

// Map returns the key/value view of the result. Later entries overwrite
// earlier ones with the same key.
func (r *ResolutionResult) Map() map[string]string {
	vars := make(map[string]string, len(r.Variables))
	for _, v := range r.Variables {
		vars[v.Key] = v.Value
	}
	return vars
}

// Lookup returns the effective value of key.
func (r *ResolutionResult) Lookup(key string) (string, bool) {
	value, found := "", false
	for _, v := range r.Variables {
		if v.Key == key {
			value, found = v.Value, true
		}
	}
	return value, found
}

type SandboxConfig struct {
	Interpreter string
	Timeout     time.Duration
	BaseEnv     []string
	TempDir     string
}

type ResolverConfig struct {
	ConfigPath string
	Sandbox    SandboxConfig
}

// allowListDocument is the on-disk shape of an AllowList.
type allowListDocument struct {
	Envs  []string       `yaml:"envs,omitempty"`
	Paths []ruleDocument `yaml:"paths,omitempty"`
}

type ruleDocument struct {
	Pattern string   `yaml:"pattern"`
	Env     []string `yaml:"env"`
}
