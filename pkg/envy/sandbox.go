package envy

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/mre/envy/internal/logger"
)

const (
	defaultInterpreter    = "bash"
	defaultSandboxTimeout = 30 * time.Second
	sandboxWaitDelay      = 500 * time.Millisecond
)

// ScriptRunner executes a context file and returns the variables it set.
type ScriptRunner interface {
	Run(ctx context.Context, contextFile string) (map[string]string, error)
}

// Sandbox runs context files in a bash subprocess and recovers their
// environment changes by diffing against a snapshot taken just before the
// file is sourced. The calling process's environment is never modified.
type Sandbox struct {
	config   SandboxConfig
	lookPath func(string) (string, error)
}

func NewSandbox(config SandboxConfig) *Sandbox {
	if config.Interpreter == "" {
		config.Interpreter = defaultInterpreter
	}
	if config.Timeout == 0 {
		config.Timeout = defaultSandboxTimeout
	}
	return &Sandbox{
		config:   config,
		lookPath: exec.LookPath,
	}
}

func (s *Sandbox) Run(ctx context.Context, contextFile string) (map[string]string, error) {
	if err := validatePathEncoding(contextFile); err != nil {
		return nil, err
	}
	contextPath, err := filepath.Abs(contextFile)
	if err != nil {
		return nil, NewEnvyError(ErrorTypeFileRead, "cannot make path absolute", contextFile).WithCause(err)
	}

	info, err := os.Stat(contextPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, NewEnvyError(ErrorTypeFileNotFound, "File does not exist", contextPath)
		}
		return nil, NewEnvyError(ErrorTypeFileRead, "cannot stat context file", contextPath).WithCause(err)
	}
	if info.IsDir() {
		return nil, NewEnvyError(ErrorTypeFileRead, "expected a context file, got a directory", contextPath)
	}

	interpreter, err := s.lookPath(s.config.Interpreter)
	if err != nil {
		return nil, NewEnvyError(ErrorTypeInterpreterUnavailable, "script interpreter not found", contextPath).
			WithContext("interpreter", s.config.Interpreter).
			WithCause(err)
	}

	scratch, err := os.CreateTemp(s.config.TempDir, "envy-snapshot-*")
	if err != nil {
		return nil, NewEnvyError(ErrorTypeScriptExecution, "cannot create snapshot file", contextPath).WithCause(err)
	}
	scratchPath := scratch.Name()
	defer os.Remove(scratchPath)
	if err := scratch.Close(); err != nil {
		return nil, NewEnvyError(ErrorTypeScriptExecution, "cannot create snapshot file", contextPath).WithCause(err)
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctxWithTimeout, interpreter, "-c", wrapperScript, "envy-sandbox", scratchPath, contextPath)
	cmd.Dir = filepath.Dir(contextPath)
	cmd.Env = s.baseEnv()
	cmd.WaitDelay = sandboxWaitDelay
	configureCommandProcess(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log := logger.WithField("context_file", contextPath)
	log.Debugf("running with %s (timeout %s)", interpreter, s.config.Timeout)

	err = cmd.Run()
	if err != nil && !errors.Is(err, exec.ErrWaitDelay) {
		log.WithField("stderr", strings.TrimSpace(stderr.String())).Debugf("context file failed: %v", err)
		if errors.Is(ctxWithTimeout.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, NewEnvyError(ErrorTypeScriptTimeout, "context file did not finish in time", contextPath).
				WithContext("timeout", s.config.Timeout)
		}
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			return nil, NewEnvyError(ErrorTypeScriptExecution, scriptFailureMessage(stderr.String()), contextPath).
				WithContext("exit_code", exitError.ExitCode()).
				WithContext("stderr", stderr.String())
		}
		return nil, NewEnvyError(ErrorTypeScriptExecution, "cannot run context file", contextPath).WithCause(err)
	}

	return ParseSandboxOutput(stdout.String()), nil
}

func (s *Sandbox) baseEnv() []string {
	if s.config.BaseEnv != nil {
		return s.config.BaseEnv
	}
	return os.Environ()
}

func scriptFailureMessage(stderr string) string {
	stderr = strings.TrimSpace(stderr)
	if stderr == "" {
		return "context file execution failed"
	}
	return "context file execution failed: " + stderr
}

// ParseSandboxOutput extracts the records following the first start marker
// line. Each record is KEY=value terminated by a NUL byte, so values may
// contain newlines. Parsing stops at the end marker or at the first
// unterminated record; the last assignment of a key wins.
func ParseSandboxOutput(output string) map[string]string {
	vars := make(map[string]string)

	body, ok := afterMarkerLine(output, EnvStartMarker)
	if !ok {
		return vars
	}

	for body != "" && !strings.HasPrefix(body, EnvEndMarker) {
		record, rest, terminated := strings.Cut(body, "\x00")
		if !terminated {
			break
		}
		body = rest
		if key, value, ok := strings.Cut(record, "="); ok && key != "" {
			vars[key] = value
		}
	}
	return vars
}

// afterMarkerLine returns the text following the first line of output that
// consists of marker alone.
func afterMarkerLine(output, marker string) (string, bool) {
	offset := 0
	for {
		idx := strings.Index(output[offset:], marker)
		if idx < 0 {
			return "", false
		}
		start := offset + idx
		end := start + len(marker)
		atLineStart := start == 0 || output[start-1] == '\n'
		rest := strings.TrimPrefix(output[end:], "\r")
		if atLineStart && (rest == "" || rest[0] == '\n') {
			return strings.TrimPrefix(rest, "\n"), true
		}
		offset = end
	}
}

// IsContextFile reports whether path names a script context file rather
// than a plain env file.
func IsContextFile(path string) bool {
	return filepath.Base(path) == ".envrc"
}
