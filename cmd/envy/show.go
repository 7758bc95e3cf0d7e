package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	flag "github.com/spf13/pflag"
	"github.com/zeebo/blake3"

	"github.com/mre/envy/pkg/envy"
)

const fingerprintLength = 12

var (
	headingStyle = lipgloss.NewStyle().Bold(true)
	dimStyle     = lipgloss.NewStyle().Faint(true)
	keyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
)

func (a *app) runShow(ctx context.Context, args []string) error {
	if _, err := a.parseCommand(flag.NewFlagSet("show", flag.ContinueOnError), args, 0, 0); err != nil {
		return err
	}

	dir, err := a.getwd()
	if err != nil {
		return fmt.Errorf("cannot determine current directory: %w", err)
	}

	resolver := a.resolver()
	plan, err := resolver.Plan(dir)
	if err != nil {
		return err
	}
	result, err := resolver.Execute(ctx, plan)
	if err != nil {
		return err
	}

	renderShow(a.stdout, a.cfg.ConfigPath, plan, result)
	return nil
}

func renderShow(w io.Writer, configPath string, plan *envy.Plan, result *envy.ResolutionResult) {
	fmt.Fprintf(w, "%s %s\n", headingStyle.Render("Config:   "), configPath)
	fmt.Fprintf(w, "%s %s\n", headingStyle.Render("Directory:"), plan.Dir)

	fmt.Fprintln(w, headingStyle.Render("Pattern rule:"))
	if plan.PatternMatched {
		for _, line := range plan.PatternEnv {
			fmt.Fprintf(w, "  %s\n", line)
		}
	} else {
		fmt.Fprintln(w, dimStyle.Render("  no pattern matches this directory"))
	}

	fmt.Fprintln(w, headingStyle.Render("Allowed files:"))
	if len(plan.Files) == 0 {
		fmt.Fprintln(w, dimStyle.Render("  no allowed files apply to this directory"))
	}
	for _, file := range plan.Files {
		fmt.Fprintf(w, "  %s %s\n", file, dimStyle.Render(fingerprint(file)))
	}

	fmt.Fprintln(w, headingStyle.Render("Variables:"))
	if len(result.Variables) == 0 {
		fmt.Fprintln(w, dimStyle.Render("  none"))
	}
	for _, v := range result.Variables {
		fmt.Fprintf(w, "  %s=%s\n", keyStyle.Render(v.Key), v.Value)
	}
}

// fingerprint returns a short blake3 digest of the file content, so a user
// can tell whether an allowed file changed since they last looked.
func fingerprint(path string) string {
	// #nosec G304 - path comes from the user's allow-list
	data, err := os.ReadFile(path)
	if err != nil {
		return "(missing)"
	}
	sum := blake3.Sum256(data)
	return "blake3:" + hex.EncodeToString(sum[:])[:fingerprintLength]
}
