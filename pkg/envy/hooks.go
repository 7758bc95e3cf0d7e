package envy

import (
	"fmt"
	"strings"
)

const selfPathPlaceholder = "{{.SelfPath}}"

const bashHook = `
_envy_hook() {
  local previous_exit_status=$?;
  eval "$("{{.SelfPath}}" export bash)";
  return $previous_exit_status;
};
if ! [[ "$PROMPT_COMMAND" =~ _envy_hook ]]; then
  PROMPT_COMMAND="_envy_hook${PROMPT_COMMAND:+;$PROMPT_COMMAND}"
fi
`

const zshHook = `
_envy_hook() {
  eval "$("{{.SelfPath}}" export zsh)";
}
typeset -ag precmd_functions;
if [[ -z ${precmd_functions[(r)_envy_hook]} ]]; then
  precmd_functions+=_envy_hook;
fi
`

const fishHook = `
function __envy_export_eval --on-event fish_prompt;
  "{{.SelfPath}}" export fish | source;
end
`

// Hook returns the prompt hook for shell with selfPath as the envy binary.
func Hook(shell Shell, selfPath string) (string, error) {
	var template string
	switch shell {
	case ShellBash:
		template = bashHook
	case ShellZsh:
		template = zshHook
	case ShellFish:
		template = fishHook
	default:
		return "", NewEnvyError(ErrorTypeUnsupportedShell, fmt.Sprintf("shell %q is currently not supported", shell), "")
	}
	return strings.ReplaceAll(template, selfPathPlaceholder, selfPath), nil
}
