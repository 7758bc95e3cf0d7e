package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/mre/envy/internal/config"
	"github.com/mre/envy/internal/logger"
	"github.com/mre/envy/internal/version"
	"github.com/mre/envy/pkg/envy"
)

const usage = `envy - context-based environment variables

Usage:
  envy [global flags] <command> [arguments]

Commands:
  export <shell>      Export environment variables for the current directory (bash, zsh, fish, json)
  hook <shell>        Print the hook to activate envy for your shell (bash, zsh, fish)
  edit                Edit the envy config file
  show                Show envy config for the current directory
  find <VARIABLE>     Find a single environment variable and print its value
  path                Print path to the envy config file
  load [env_file]     Print the variables of an env file for the current session only (default .env)
  allow [env_file]    Grant envy permission to load the given env file (default .env)
  deny [env_file]     Revoke the permission of the given env file (default .env)
  mcp                 Serve resolution tools over the Model Context Protocol

Global flags:
`

type app struct {
	cfg       *config.Config
	stdout    io.Writer
	stderr    io.Writer
	getwd     func() (string, error)
	lookupEnv func(string) (string, bool)
	selfPath  func() (string, error)
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run parses args, executes one command and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	a := &app{
		cfg:       config.NewConfig(),
		stdout:    stdout,
		stderr:    stderr,
		getwd:     os.Getwd,
		lookupEnv: os.LookupEnv,
		selfPath:  os.Executable,
	}
	return a.run(args)
}

func (a *app) run(args []string) int {
	fs := flag.NewFlagSet("envy", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	rest, err := a.cfg.ParseFlags(fs, args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(a.stderr, "Error:", err)
		return 2
	}

	if a.cfg.ShowVersion {
		fmt.Fprintln(a.stdout, version.String())
		return 0
	}
	if a.cfg.ShowHelp || len(rest) == 0 {
		fmt.Fprint(a.stderr, usage)
		fs.PrintDefaults()
		if a.cfg.ShowHelp {
			return 0
		}
		return 2
	}

	logger.SetOutput(a.stderr)
	if err := logger.SetLevel(a.cfg.LogLevel); err != nil {
		fmt.Fprintln(a.stderr, "Error:", err)
		return 2
	}

	ctx := context.Background()
	if err := a.dispatch(ctx, rest[0], rest[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(a.stderr, "Error:", err)
		return 1
	}
	return 0
}

func (a *app) dispatch(ctx context.Context, command string, args []string) error {
	switch command {
	case "export":
		return a.runExport(ctx, args)
	case "hook":
		return a.runHook(args)
	case "edit":
		return a.runEdit(ctx, args)
	case "show":
		return a.runShow(ctx, args)
	case "find":
		return a.runFind(ctx, args)
	case "path":
		return a.runPath(args)
	case "load":
		return a.runLoad(ctx, args)
	case "allow":
		return a.runAllow(args)
	case "deny":
		return a.runDeny(args)
	case "mcp":
		return a.runServe(args)
	default:
		return fmt.Errorf("unknown command %q (run 'envy --help' for usage)", command)
	}
}

// parseCommand parses the flags of a subcommand and checks its positional
// argument count.
func (a *app) parseCommand(fs *flag.FlagSet, args []string, minArgs, maxArgs int) ([]string, error) {
	fs.SetOutput(a.stderr)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	positional := fs.Args()
	if len(positional) < minArgs || len(positional) > maxArgs {
		return nil, fmt.Errorf("%s: expected %s, got %d", fs.Name(), argumentCount(minArgs, maxArgs), len(positional))
	}
	return positional, nil
}

func argumentCount(minArgs, maxArgs int) string {
	switch {
	case minArgs == maxArgs && minArgs == 0:
		return "no arguments"
	case minArgs == maxArgs:
		return fmt.Sprintf("%d argument(s)", minArgs)
	default:
		return fmt.Sprintf("%d to %d arguments", minArgs, maxArgs)
	}
}

func (a *app) resolver() *envy.Resolver {
	return envy.NewResolver(a.cfg.ResolverConfig())
}

func (a *app) store() *envy.Store {
	return envy.NewStore(a.cfg.ConfigPath)
}

func (a *app) runExport(ctx context.Context, args []string) error {
	positional, err := a.parseCommand(flag.NewFlagSet("export", flag.ContinueOnError), args, 1, 1)
	if err != nil {
		return err
	}
	shell, err := envy.ParseShell(positional[0])
	if err != nil {
		return err
	}

	dir, err := a.getwd()
	if err != nil {
		return fmt.Errorf("cannot determine current directory: %w", err)
	}

	result, err := a.resolver().Resolve(ctx, dir)
	if err != nil {
		return err
	}

	output, err := envy.Render(shell, result.Variables)
	if err != nil {
		return err
	}
	_, err = io.WriteString(a.stdout, output)
	return err
}

func (a *app) runHook(args []string) error {
	positional, err := a.parseCommand(flag.NewFlagSet("hook", flag.ContinueOnError), args, 1, 1)
	if err != nil {
		return err
	}
	shell, err := envy.ParseShell(positional[0])
	if err != nil {
		return err
	}

	self, err := a.selfPath()
	if err != nil {
		return fmt.Errorf("cannot locate envy executable: %w", err)
	}

	hook, err := envy.Hook(shell, self)
	if err != nil {
		return err
	}
	_, err = io.WriteString(a.stdout, hook)
	return err
}

func (a *app) runFind(ctx context.Context, args []string) error {
	positional, err := a.parseCommand(flag.NewFlagSet("find", flag.ContinueOnError), args, 1, 1)
	if err != nil {
		return err
	}
	name := positional[0]

	dir, err := a.getwd()
	if err != nil {
		return fmt.Errorf("cannot determine current directory: %w", err)
	}

	result, err := a.resolver().Resolve(ctx, dir)
	if err != nil {
		return err
	}

	if value, ok := result.Lookup(name); ok {
		fmt.Fprintln(a.stdout, value)
		return nil
	}
	if value, ok := a.lookupEnv(name); ok {
		fmt.Fprintln(a.stdout, value)
		return nil
	}
	fmt.Fprintf(a.stdout, "Variable '%s' not found\n", name)
	return nil
}

func (a *app) runPath(args []string) error {
	if _, err := a.parseCommand(flag.NewFlagSet("path", flag.ContinueOnError), args, 0, 0); err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, a.cfg.ConfigPath)
	return nil
}

func (a *app) runLoad(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("load", flag.ContinueOnError)
	shellName := fs.String("shell", string(envy.ShellBash), "Output dialect (bash, zsh, fish, json)")
	positional, err := a.parseCommand(fs, args, 0, 1)
	if err != nil {
		return err
	}
	shell, err := envy.ParseShell(*shellName)
	if err != nil {
		return err
	}

	path := envFileArg(positional)
	canonical, err := envy.CanonicalPath(path)
	if err != nil {
		return err
	}

	var vars []envy.Variable
	if envy.IsContextFile(canonical) {
		list, err := a.store().Load()
		if err != nil {
			return err
		}
		if !list.Contains(canonical) {
			return envy.NewEnvyError(envy.ErrorTypeNotAllowed,
				fmt.Sprintf("%s is not allowed, run 'envy allow' first", canonical), canonical)
		}
		changed, err := envy.NewSandbox(a.cfg.ResolverConfig().Sandbox).Run(ctx, canonical)
		if err != nil {
			return err
		}
		vars = envy.SortedVariables(changed)
	} else {
		vars, err = envy.LoadEnvFile(canonical)
		if err != nil {
			return err
		}
	}

	output, err := envy.Render(shell, vars)
	if err != nil {
		return err
	}
	_, err = io.WriteString(a.stdout, output)
	return err
}

func (a *app) runAllow(args []string) error {
	positional, err := a.parseCommand(flag.NewFlagSet("allow", flag.ContinueOnError), args, 0, 1)
	if err != nil {
		return err
	}
	path := envFileArg(positional)

	store := a.store()
	list, err := store.Load()
	if err != nil {
		return err
	}

	added, err := list.AddFile(path)
	if err != nil {
		return err
	}
	canonical, _ := envy.CanonicalPath(path)
	if !added {
		fmt.Fprintf(a.stderr, "%s is already allowed\n", canonical)
		return nil
	}

	if err := store.Save(list); err != nil {
		return err
	}
	logger.Infof("allowed %s", canonical)
	fmt.Fprintf(a.stderr, "Allowed %s\n", canonical)
	return nil
}

func (a *app) runDeny(args []string) error {
	positional, err := a.parseCommand(flag.NewFlagSet("deny", flag.ContinueOnError), args, 0, 1)
	if err != nil {
		return err
	}
	path := envFileArg(positional)

	store := a.store()
	list, err := store.Load()
	if err != nil {
		return err
	}

	removed, err := list.RemoveFile(path)
	if err != nil {
		return err
	}
	if !removed {
		fmt.Fprintf(a.stderr, "%s was not allowed\n", path)
		return nil
	}

	if err := store.Save(list); err != nil {
		return err
	}
	logger.Infof("denied %s", path)
	fmt.Fprintf(a.stderr, "Denied %s\n", path)
	return nil
}

func envFileArg(positional []string) string {
	if len(positional) == 0 || strings.TrimSpace(positional[0]) == "" {
		return ".env"
	}
	return positional[0]
}
