package main

import (
	"bytes"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mre/envy/internal/config"
	"github.com/mre/envy/internal/logger"
	"github.com/mre/envy/pkg/envy"
)

type testApp struct {
	*app
	stdout     *bytes.Buffer
	stderr     *bytes.Buffer
	configPath string
	dir        string
	env        map[string]string
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	for _, key := range []string{"ENVY_CONFIG", "ENVY_LOG_LEVEL", "ENVY_TIMEOUT", "ENVY_INTERPRETER"} {
		t.Setenv(key, "")
	}

	root, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ta := &testApp{
		stdout:     &bytes.Buffer{},
		stderr:     &bytes.Buffer{},
		configPath: filepath.Join(root, "config", "config.yaml"),
		dir:        filepath.Join(root, "project"),
		env:        map[string]string{},
	}
	if err := os.MkdirAll(ta.dir, 0755); err != nil {
		t.Fatal(err)
	}
	ta.app = &app{
		cfg:    config.NewConfig(),
		stdout: ta.stdout,
		stderr: ta.stderr,
		getwd:  func() (string, error) { return ta.dir, nil },
		lookupEnv: func(key string) (string, bool) {
			value, ok := ta.env[key]
			return value, ok
		},
		selfPath: func() (string, error) { return "/usr/local/bin/envy", nil },
	}
	return ta
}

// invoke runs the CLI with the test config and returns the exit code.
func (ta *testApp) invoke(args ...string) int {
	ta.stdout.Reset()
	ta.stderr.Reset()
	ta.cfg = config.NewConfig()
	return ta.run(append([]string{"--config", ta.configPath}, args...))
}

func (ta *testApp) write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(ta.dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func (ta *testApp) chdir(t *testing.T) {
	t.Helper()
	t.Chdir(ta.dir)
}

func TestRun_Path(t *testing.T) {
	ta := newTestApp(t)

	if code := ta.invoke("path"); code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, ta.stderr)
	}
	if got := strings.TrimSpace(ta.stdout.String()); got != ta.configPath {
		t.Errorf("path = %q, want %q", got, ta.configPath)
	}
}

func TestRun_Version(t *testing.T) {
	ta := newTestApp(t)

	if code := ta.invoke("--version"); code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(ta.stdout.String(), "envy") {
		t.Errorf("version output = %q", ta.stdout.String())
	}
}

func TestRun_UsageAndUnknownCommand(t *testing.T) {
	ta := newTestApp(t)

	if code := ta.invoke(); code != 2 {
		t.Errorf("no command: exit code = %d, want 2", code)
	}
	if !strings.Contains(ta.stderr.String(), "Usage:") {
		t.Errorf("usage not printed: %q", ta.stderr.String())
	}

	if code := ta.invoke("--help"); code != 0 {
		t.Errorf("--help: exit code = %d, want 0", code)
	}

	if code := ta.invoke("frobnicate"); code != 1 {
		t.Errorf("unknown command: exit code = %d, want 1", code)
	}
	if !strings.Contains(ta.stderr.String(), `unknown command "frobnicate"`) {
		t.Errorf("stderr = %q", ta.stderr.String())
	}

	if code := ta.invoke("path", "extra"); code != 1 {
		t.Errorf("extra argument: exit code = %d, want 1", code)
	}
}

func TestRun_Hook(t *testing.T) {
	ta := newTestApp(t)

	if code := ta.invoke("hook", "bash"); code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, ta.stderr)
	}
	if !strings.Contains(ta.stdout.String(), `"/usr/local/bin/envy" export bash`) {
		t.Errorf("hook = %q", ta.stdout.String())
	}

	if code := ta.invoke("hook", "powershell"); code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if !strings.Contains(ta.stderr.String(), "currently not supported") {
		t.Errorf("stderr = %q", ta.stderr.String())
	}
}

func TestRun_ExportEmpty(t *testing.T) {
	ta := newTestApp(t)

	if code := ta.invoke("export", "json"); code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, ta.stderr)
	}
	if got := ta.stdout.String(); got != "{}\n" {
		t.Errorf("export json = %q, want {}", got)
	}

	if code := ta.invoke("export", "bash"); code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, ta.stderr)
	}
	if got := ta.stdout.String(); got != "" {
		t.Errorf("export bash = %q, want empty", got)
	}
}

func TestRun_AllowExportDeny(t *testing.T) {
	ta := newTestApp(t)
	envFile := ta.write(t, ".env", "# database\nexport DB_HOST=localhost\nGREETING=hello world\n")
	ta.chdir(t)

	if code := ta.invoke("export", "json"); code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, ta.stderr)
	}
	if got := ta.stdout.String(); got != "{}\n" {
		t.Errorf("export before allow = %q, want {}", got)
	}

	if code := ta.invoke("allow"); code != 0 {
		t.Fatalf("allow: exit code = %d, stderr = %s", code, ta.stderr)
	}
	if !strings.Contains(ta.stderr.String(), "Allowed "+envFile) {
		t.Errorf("allow stderr = %q", ta.stderr.String())
	}

	if code := ta.invoke("allow", ".env"); code != 0 {
		t.Fatalf("second allow: exit code = %d", code)
	}
	if !strings.Contains(ta.stderr.String(), "already allowed") {
		t.Errorf("second allow stderr = %q", ta.stderr.String())
	}

	if code := ta.invoke("export", "json"); code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, ta.stderr)
	}
	var vars map[string]string
	if err := json.Unmarshal(ta.stdout.Bytes(), &vars); err != nil {
		t.Fatalf("invalid json %q: %v", ta.stdout.String(), err)
	}
	if vars["DB_HOST"] != "localhost" || vars["GREETING"] != "hello world" {
		t.Errorf("export = %v", vars)
	}

	if code := ta.invoke("export", "bash"); code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if want := "export DB_HOST=localhost\nexport GREETING='hello world'\n"; ta.stdout.String() != want {
		t.Errorf("export bash = %q, want %q", ta.stdout.String(), want)
	}

	if code := ta.invoke("find", "DB_HOST"); code != 0 {
		t.Fatalf("find: exit code = %d", code)
	}
	if got := ta.stdout.String(); got != "localhost\n" {
		t.Errorf("find = %q", got)
	}

	if code := ta.invoke("deny"); code != 0 {
		t.Fatalf("deny: exit code = %d, stderr = %s", code, ta.stderr)
	}
	if !strings.Contains(ta.stderr.String(), "Denied") {
		t.Errorf("deny stderr = %q", ta.stderr.String())
	}

	if code := ta.invoke("deny"); code != 0 {
		t.Fatalf("second deny: exit code = %d", code)
	}
	if !strings.Contains(ta.stderr.String(), "was not allowed") {
		t.Errorf("second deny stderr = %q", ta.stderr.String())
	}

	if code := ta.invoke("export", "json"); code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if got := ta.stdout.String(); got != "{}\n" {
		t.Errorf("export after deny = %q, want {}", got)
	}
}

func TestRun_AllowMissingFile(t *testing.T) {
	ta := newTestApp(t)
	ta.chdir(t)

	if code := ta.invoke("allow", ".env.nope"); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(ta.stderr.String(), "File does not exist") {
		t.Errorf("stderr = %q", ta.stderr.String())
	}
	if _, err := os.Stat(ta.configPath); !os.IsNotExist(err) {
		t.Errorf("config written after failed allow: %v", err)
	}
}

func TestRun_PatternRules(t *testing.T) {
	ta := newTestApp(t)
	config := "paths:\n  - pattern: \"^" + filepath.Dir(ta.dir) + "\"\n    env:\n      - \"TEAM=platform\"\n"
	if err := os.MkdirAll(filepath.Dir(ta.configPath), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(ta.configPath, []byte(config), 0600); err != nil {
		t.Fatal(err)
	}

	if code := ta.invoke("export", "fish"); code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, ta.stderr)
	}
	if got := ta.stdout.String(); got != "set -gx TEAM platform;\n" {
		t.Errorf("export fish = %q", got)
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	ta := newTestApp(t)
	if err := os.MkdirAll(filepath.Dir(ta.configPath), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(ta.configPath, []byte("paths:\n  - pattern: \"([\"\n    env: []\n"), 0600); err != nil {
		t.Fatal(err)
	}

	if code := ta.invoke("export", "bash"); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(ta.stderr.String(), "Error:") {
		t.Errorf("stderr = %q", ta.stderr.String())
	}
	if ta.stdout.Len() != 0 {
		t.Errorf("stdout = %q, want nothing", ta.stdout.String())
	}
}

func TestRun_FindFallsBackToProcessEnv(t *testing.T) {
	ta := newTestApp(t)
	ta.env["HOME_ONLY"] = "from-process"

	if code := ta.invoke("find", "HOME_ONLY"); code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if got := ta.stdout.String(); got != "from-process\n" {
		t.Errorf("find = %q", got)
	}

	if code := ta.invoke("find", "NOWHERE"); code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if got := ta.stdout.String(); got != "Variable 'NOWHERE' not found\n" {
		t.Errorf("find = %q", got)
	}
}

func TestRun_Load(t *testing.T) {
	ta := newTestApp(t)
	ta.write(t, ".env.local", "# local overrides\nexport LOCAL=1\nNAME=it's me\n")
	ta.chdir(t)

	if code := ta.invoke("load", "missing.env"); code != 1 {
		t.Fatalf("missing file: exit code = %d, want 1", code)
	}
	if !strings.Contains(ta.stderr.String(), "File does not exist") {
		t.Errorf("stderr = %q", ta.stderr.String())
	}

	if code := ta.invoke("load", ".env.local"); code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, ta.stderr)
	}
	if want := "export LOCAL=1\nexport NAME='it'\\''s me'\n"; ta.stdout.String() != want {
		t.Errorf("load = %q, want %q", ta.stdout.String(), want)
	}

	if code := ta.invoke("load", "--shell", "json", ".env.local"); code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, ta.stderr)
	}
	if want := `{"LOCAL":"1","NAME":"it's me"}` + "\n"; ta.stdout.String() != want {
		t.Errorf("load json = %q, want %q", ta.stdout.String(), want)
	}

	if _, err := os.Stat(ta.configPath); !os.IsNotExist(err) {
		t.Error("load must not touch the allow-list")
	}
}

func TestRun_LoadContextFileRequiresAllow(t *testing.T) {
	ta := newTestApp(t)
	marker := filepath.Join(ta.dir, "executed")
	ta.write(t, ".envrc", "touch '"+marker+"'\nexport FROM_SCRIPT=yes\n")
	ta.chdir(t)

	if code := ta.invoke("load", ".envrc"); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(ta.stderr.String(), "is not allowed, run 'envy allow' first") {
		t.Errorf("stderr = %q", ta.stderr.String())
	}
	if ta.stdout.Len() != 0 {
		t.Errorf("stdout = %q, want nothing", ta.stdout.String())
	}
	if _, err := os.Stat(marker); !os.IsNotExist(err) {
		t.Error("context file was executed without being allowed")
	}
}

func TestRun_LoadAllowedContextFile(t *testing.T) {
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}
	ta := newTestApp(t)
	ta.write(t, ".envrc", "export FROM_SCRIPT=yes\n")
	ta.chdir(t)

	if code := ta.invoke("allow", ".envrc"); code != 0 {
		t.Fatalf("allow: exit code = %d, stderr = %s", code, ta.stderr)
	}
	if code := ta.invoke("load", "--shell", "json", ".envrc"); code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, ta.stderr)
	}
	var vars map[string]string
	if err := json.Unmarshal(ta.stdout.Bytes(), &vars); err != nil {
		t.Fatalf("invalid json %q: %v", ta.stdout.String(), err)
	}
	if vars["FROM_SCRIPT"] != "yes" {
		t.Errorf("load = %v", vars)
	}
}

func TestRun_AllowedEnvrcFailureAborts(t *testing.T) {
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}
	ta := newTestApp(t)
	ta.write(t, ".env", "A=1\n")
	ta.write(t, ".envrc", "echo broken >&2\nexit 4\n")
	ta.chdir(t)

	for _, name := range []string{".env", ".envrc"} {
		if code := ta.invoke("allow", name); code != 0 {
			t.Fatalf("allow %s: exit code = %d, stderr = %s", name, code, ta.stderr)
		}
	}

	if code := ta.invoke("export", "bash"); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if ta.stdout.Len() != 0 {
		t.Errorf("partial output on failure: %q", ta.stdout.String())
	}
	if !strings.Contains(ta.stderr.String(), "broken") {
		t.Errorf("stderr = %q, want script stderr", ta.stderr.String())
	}
}

func TestEnvFileArg(t *testing.T) {
	tests := []struct {
		positional []string
		want       string
	}{
		{nil, ".env"},
		{[]string{""}, ".env"},
		{[]string{".env.local"}, ".env.local"},
	}
	for _, tt := range tests {
		if got := envFileArg(tt.positional); got != tt.want {
			t.Errorf("envFileArg(%v) = %q, want %q", tt.positional, got, tt.want)
		}
	}
}

func TestNewMCPServer(t *testing.T) {
	store := envy.NewStore(filepath.Join(t.TempDir(), "config.yaml"))
	mcpServer := newMCPServer(envy.NewResolver(envy.ResolverConfig{ConfigPath: store.Path()}), store)
	if mcpServer == nil {
		t.Fatal("newMCPServer() = nil")
	}
	tools := mcpServer.ListTools()
	for _, name := range []string{"resolve_env", "find_variable", "list_allowed"} {
		if _, ok := tools[name]; !ok {
			t.Errorf("tool %s not registered", name)
		}
	}
}

func TestRun_LogsGoToStderr(t *testing.T) {
	ta := newTestApp(t)
	ta.write(t, ".env", "A=1\n")
	ta.chdir(t)
	t.Cleanup(func() {
		logger.SetOutput(os.Stderr)
	})

	if code := ta.invoke("--log-level", "info", "allow"); code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, ta.stderr)
	}
	if !strings.Contains(ta.stderr.String(), "level=info") {
		t.Errorf("stderr = %q, want an info log line", ta.stderr.String())
	}
	if ta.stdout.Len() != 0 {
		t.Errorf("stdout = %q, want nothing", ta.stdout.String())
	}
}
