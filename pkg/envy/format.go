package envy

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Shell is an output dialect understood by Render and Hook.
type Shell string

const (
	ShellBash Shell = "bash"
	ShellZsh  Shell = "zsh"
	ShellFish Shell = "fish"
	ShellJSON Shell = "json"
)

func ParseShell(name string) (Shell, error) {
	switch shell := Shell(strings.ToLower(strings.TrimSpace(name))); shell {
	case ShellBash, ShellZsh, ShellFish, ShellJSON:
		return shell, nil
	default:
		return "", NewEnvyError(ErrorTypeUnsupportedShell, fmt.Sprintf("shell %q is currently not supported", name), "")
	}
}

// Render formats vars for shell. Shell dialects emit one statement per
// variable in order; JSON emits a compact object where later keys win.
func Render(shell Shell, vars []Variable) (string, error) {
	var b strings.Builder
	switch shell {
	case ShellBash, ShellZsh:
		for _, v := range vars {
			fmt.Fprintf(&b, "export %s=%s\n", v.Key, quotePOSIX(v.Value))
		}
	case ShellFish:
		for _, v := range vars {
			fmt.Fprintf(&b, "set -gx %s %s;\n", v.Key, quoteFish(v.Value))
		}
	case ShellJSON:
		result := ResolutionResult{Variables: vars}
		data, err := json.Marshal(result.Map())
		if err != nil {
			return "", fmt.Errorf("cannot encode variables: %w", err)
		}
		b.Write(data)
		b.WriteByte('\n')
	default:
		return "", NewEnvyError(ErrorTypeUnsupportedShell, fmt.Sprintf("shell %q is currently not supported", shell), "")
	}
	return b.String(), nil
}

func needsQuoting(value string) bool {
	if value == "" {
		return true
	}
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case strings.ContainsRune("_-./:,@%+=", r):
		default:
			return true
		}
	}
	return false
}

func quotePOSIX(value string) string {
	if !needsQuoting(value) {
		return value
	}
	return "'" + strings.ReplaceAll(value, "'", `'\''`) + "'"
}

func quoteFish(value string) string {
	if !needsQuoting(value) {
		return value
	}
	replacer := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + replacer.Replace(value) + "'"
}
