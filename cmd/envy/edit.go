package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/mre/envy/internal/logger"
)

const defaultEditor = "vi"

const configTemplate = `# envy configuration
#
# envs: env files allowed with 'envy allow'. Managed by envy.
# paths: directory patterns (regular expressions) mapped to variables.
#
# paths:
#   - pattern: "^/home/me/work/"
#     env:
#       - "GIT_AUTHOR_EMAIL=me@work.example"
`

// editorCommand returns the editor argv from $VISUAL or $EDITOR, falling
// back to vi.
func editorCommand(lookupEnv func(string) (string, bool)) []string {
	for _, key := range []string{"VISUAL", "EDITOR"} {
		if value, ok := lookupEnv(key); ok {
			if fields := strings.Fields(value); len(fields) > 0 {
				return fields
			}
		}
	}
	return []string{defaultEditor}
}

// ensureConfigFile creates an annotated config file if none exists yet.
func ensureConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("cannot stat config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(configTemplate), 0o600); err != nil {
		return fmt.Errorf("cannot create config: %w", err)
	}
	return nil
}

func (a *app) runEdit(ctx context.Context, args []string) error {
	if _, err := a.parseCommand(flag.NewFlagSet("edit", flag.ContinueOnError), args, 0, 0); err != nil {
		return err
	}

	path := a.cfg.ConfigPath
	if err := ensureConfigFile(path); err != nil {
		return err
	}

	argv := append(editorCommand(a.lookupEnv), path)
	logger.Debugf("launching editor: %s", strings.Join(argv, " "))

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = a.stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("editor %s failed: %w", argv[0], err)
	}

	if _, err := a.store().Load(); err != nil {
		return fmt.Errorf("config saved but it is not valid: %w", err)
	}
	return nil
}
