package envy

// Sentinel lines framing the variable block on the sandbox's stdout.
const (
	EnvStartMarker = "=== ENVY_ENV_START ==="
	EnvEndMarker   = "=== ENVY_ENV_END ==="
)

// stdlibScript defines the helper functions available to context files.
// It must stay compatible with bash 3.2.
const stdlibScript = `
PATH_add() {
    local dir
    for dir in "$@"; do
        dir=$(expand_path "$dir")
        if [[ ":$PATH:" != *":$dir:"* ]]; then
            export PATH="$dir${PATH:+:$PATH}"
        fi
    done
}

path_add() {
    local var_name="$1"
    local new_path
    new_path=$(expand_path "$2")
    local current_value="${!var_name}"
    if [[ ":$current_value:" != *":$new_path:"* ]]; then
        export "$var_name"="$new_path${current_value:+:$current_value}"
    fi
}

dotenv() {
    local env_file="${1:-.env}"
    if [[ -f "$env_file" ]]; then
        set -o allexport
        source "$env_file"
        set +o allexport
    else
        echo "envy: dotenv: $env_file not found" >&2
    fi
}

dotenv_if_exists() {
    local env_file="${1:-.env}"
    if [[ -f "$env_file" ]]; then
        dotenv "$env_file"
    fi
}

expand_path() {
    local path="$1"
    case "$path" in
        /*) ;;
        *) path="$PWD/$path" ;;
    esac
    if [[ -d "$path" ]]; then
        (cd "$path" && pwd)
    else
        echo "$path"
    fi
}

has() {
    command -v "$1" >/dev/null 2>&1
}

find_up() {
    local file="$1"
    local dir="$PWD"
    while :; do
        if [[ -f "$dir/$file" ]]; then
            echo "$dir/$file"
            return 0
        fi
        if [[ "$dir" == "/" || -z "$dir" ]]; then
            return 1
        fi
        dir=$(dirname "$dir")
    done
}

source_env() {
    local rc="$1"
    if [[ -d "$rc" ]]; then
        rc="$rc/.envrc"
    fi
    if [[ -f "$rc" ]]; then
        source "$rc"
    fi
}

source_up() {
    local file="${1:-.envrc}"
    local parent
    parent=$(cd .. && find_up "$file") || return 0
    if [[ -n "$parent" ]]; then
        source_env "$parent"
    fi
}

layout() {
    case "$1" in
        python|python3)
            if has python3; then
                export VIRTUAL_ENV="$PWD/.venv"
                PATH_add "$VIRTUAL_ENV/bin"
            fi
            ;;
        node|nodejs)
            if [[ -d node_modules/.bin ]]; then
                PATH_add node_modules/.bin
            fi
            ;;
        go)
            if [[ -f go.mod ]]; then
                export GOPATH="$PWD/.go"
                PATH_add "$GOPATH/bin"
            fi
            ;;
        *)
            echo "envy: layout $1 is not supported" >&2
            ;;
    esac
}

use() {
    case "$1" in
        python|python3) layout python3 ;;
        node|nodejs) layout node ;;
        go) layout go ;;
        *) echo "envy: use $1 is not supported" >&2 ;;
    esac
}
`

// wrapperScript runs a context file and prints the exported variables it
// added or changed as NUL-terminated KEY=value records between the markers.
// The context file's own stdout goes to stderr. Positional arguments: $1
// scratch file, $2 context file.
// The baseline is written to the scratch file as assignments to shadow
// variables and loaded back only after the context file has run, so the
// context file never sees it.
const wrapperScript = `
__envy_scratch="$1"
__envy_context="$2"
shift 2
` + stdlibScript + `
__envy_snapshot() {
    local __envy_name
    : > "$__envy_scratch" || return 1
    while IFS= read -r __envy_name; do
        builtin printf '__envy_before_%s=%q\n' "$__envy_name" "${!__envy_name}" >> "$__envy_scratch" || return 1
    done < <(compgen -e)
}

__envy_emit() {
    local __envy_name __envy_ref
    builtin echo "` + EnvStartMarker + `"
    while IFS= read -r __envy_name; do
        case "$__envy_name" in
            _|PWD|OLDPWD|SHLVL|__envy_*) continue ;;
        esac
        __envy_ref="__envy_before_$__envy_name"
        if [[ -z "${!__envy_ref+x}" || "${!__envy_ref}" != "${!__envy_name}" ]]; then
            builtin printf '%s=%s\0' "$__envy_name" "${!__envy_name}"
        fi
    done < <(compgen -e)
    builtin echo "` + EnvEndMarker + `"
}

__envy_snapshot || { builtin echo "envy: cannot write environment snapshot" >&2; exit 70; }

source "$__envy_context" >&2

set +eu
source "$__envy_scratch"
builtin command rm -f "$__envy_scratch"
__envy_emit
`
