package envy

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/mre/envy/internal/logger"
)

// ListLoader supplies the current allow-list. *Store implements it.
type ListLoader interface {
	Load() (*AllowList, error)
}

// Resolver computes the variables active for a directory from pattern rules
// and allowed env files.
type Resolver struct {
	loader ListLoader
	runner ScriptRunner
}

func NewResolver(cfg ResolverConfig) *Resolver {
	return &Resolver{
		loader: NewStore(cfg.ConfigPath),
		runner: NewSandbox(cfg.Sandbox),
	}
}

// Plan describes which sources apply to a directory without reading them.
type Plan struct {
	Dir            string
	PatternMatched bool
	PatternEnv     []string
	Files          []string
}

// Plan loads the allow-list and selects the sources active for dir.
func (r *Resolver) Plan(dir string) (*Plan, error) {
	list, err := r.loader.Load()
	if err != nil {
		return nil, err
	}

	canonical, err := CanonicalPath(dir)
	if err != nil {
		return nil, err
	}

	plan := &Plan{Dir: canonical}
	plan.PatternEnv, plan.PatternMatched = MatchPattern(canonical, list.Paths)
	plan.Files = ActiveFiles(canonical, list.Envs)
	return plan, nil
}

// Resolve returns the ordered variables for dir: pattern variables first,
// then each active file in registration order. Any failure aborts the whole
// resolution.
func (r *Resolver) Resolve(ctx context.Context, dir string) (*ResolutionResult, error) {
	plan, err := r.Plan(dir)
	if err != nil {
		return nil, err
	}
	return r.Execute(ctx, plan)
}

// Execute reads every source named by plan.
func (r *Resolver) Execute(ctx context.Context, plan *Plan) (*ResolutionResult, error) {
	result := &ResolutionResult{}
	if plan.PatternMatched {
		logger.Debugf("pattern rule matched %s", plan.Dir)
		result.Variables = append(result.Variables, ParseLines(plan.PatternEnv)...)
	}

	for _, file := range plan.Files {
		if _, err := os.Stat(file); errors.Is(err, fs.ErrNotExist) {
			logger.Warnf("allowed file %s no longer exists, skipping", file)
			continue
		}

		vars, err := r.readSource(ctx, file)
		if err != nil {
			return nil, err
		}
		logger.Debugf("loaded %d variables from %s", len(vars), file)
		result.Variables = append(result.Variables, vars...)
	}
	return result, nil
}

func (r *Resolver) readSource(ctx context.Context, file string) ([]Variable, error) {
	if !IsContextFile(file) {
		return LoadEnvFile(file)
	}

	changed, err := r.runner.Run(ctx, file)
	if err != nil {
		return nil, err
	}
	return SortedVariables(changed), nil
}

// SortedVariables converts vars into Variables ordered by key.
func SortedVariables(vars map[string]string) []Variable {
	keys := make([]string, 0, len(vars))
	for key := range vars {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	result := make([]Variable, 0, len(keys))
	for _, key := range keys {
		result = append(result, Variable{Key: key, Value: vars[key]})
	}
	return result
}

// DefaultConfigPath is the allow-list location used when none is configured.
func DefaultConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "envy", "config.yaml"), nil
}
