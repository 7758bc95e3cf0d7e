package envy

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/mre/envy/internal/logger"
)

// Store persists an AllowList as a YAML document at a fixed path. The file
// is read fully on Load and written fully on Save; concurrent writers are
// not coordinated.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string {
	return s.path
}

// Load reads the allow-list. A missing file yields an empty AllowList.
func (s *Store) Load() (*AllowList, error) {
	// #nosec G304 - the config path is chosen by the user
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &AllowList{}, nil
		}
		return nil, NewEnvyError(ErrorTypeFileRead, "cannot read config", s.path).WithCause(err)
	}
	return ParseAllowList(data, s.path)
}

// Save serializes list and overwrites the backing file, creating parent
// directories as needed.
func (s *Store) Save(list *AllowList) error {
	data, err := list.Encode()
	if err != nil {
		return NewEnvyError(ErrorTypeConfigWrite, "cannot serialize config", s.path).WithCause(err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return NewEnvyError(ErrorTypeConfigWrite, "cannot create config directory", s.path).WithCause(err)
	}

	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return NewEnvyError(ErrorTypeConfigWrite, "cannot write config", s.path).WithCause(err)
	}
	return nil
}

// ParseAllowList decodes a persisted allow-list. A single invalid pattern or
// relative env file path rejects the whole document; unclean absolute paths
// are cleaned. source is only used in error messages.
func ParseAllowList(data []byte, source string) (*AllowList, error) {
	var doc allowListDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, NewEnvyError(ErrorTypeConfigDeserialize, "cannot deserialize config", source).WithCause(err)
	}

	list := &AllowList{}
	for i, entry := range doc.Envs {
		if !filepath.IsAbs(entry) {
			return nil, NewEnvyError(ErrorTypeConfigDeserialize, fmt.Sprintf("env file %d is not an absolute path", i), source).
				WithContext("entry", entry)
		}
		cleaned := filepath.Clean(entry)
		if cleaned != entry {
			logger.Warnf("config %s: env file %q is not clean, using %q", source, entry, cleaned)
		}
		list.Envs = append(list.Envs, cleaned)
	}
	for i, rule := range doc.Paths {
		pattern, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, NewEnvyError(ErrorTypeConfigDeserialize, fmt.Sprintf("invalid pattern in rule %d", i), source).
				WithContext("pattern", rule.Pattern).
				WithCause(err)
		}
		list.Paths = append(list.Paths, PatternRule{Pattern: pattern, Env: rule.Env})
	}
	return list, nil
}

// Encode renders the allow-list in its persisted form. Output is
// deterministic for a given list.
func (l *AllowList) Encode() ([]byte, error) {
	doc := allowListDocument{Envs: l.Envs}
	for _, rule := range l.Paths {
		pattern := ""
		if rule.Pattern != nil {
			pattern = rule.Pattern.String()
		}
		env := rule.Env
		if env == nil {
			env = []string{}
		}
		doc.Paths = append(doc.Paths, ruleDocument{Pattern: pattern, Env: env})
	}

	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(doc); err != nil {
		return nil, err
	}
	if err := encoder.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// AddFile canonicalizes path and registers it unless already present. It
// reports whether the list changed.
func (l *AllowList) AddFile(path string) (bool, error) {
	canonical, err := CanonicalPath(path)
	if err != nil {
		return false, err
	}

	info, err := os.Stat(canonical)
	if err != nil {
		return false, NewEnvyError(ErrorTypeFileRead, "cannot stat env file", canonical).WithCause(err)
	}
	if info.IsDir() {
		return false, NewEnvyError(ErrorTypeFileRead, "expected an env file, got a directory", canonical)
	}

	if slices.Contains(l.Envs, canonical) {
		return false, nil
	}
	l.Envs = append(l.Envs, canonical)
	return true, nil
}

// RemoveFile removes every entry matching the canonical form of path. Paths
// that no longer exist on disk are matched by their absolute form so stale
// entries can still be revoked.
func (l *AllowList) RemoveFile(path string) (bool, error) {
	canonical, err := CanonicalPath(path)
	if err != nil {
		if !IsErrorType(err, ErrorTypeFileNotFound) {
			return false, err
		}
		canonical, err = absolutePath(path)
		if err != nil {
			return false, err
		}
	}

	before := len(l.Envs)
	l.Envs = slices.DeleteFunc(l.Envs, func(entry string) bool {
		return entry == canonical
	})
	return len(l.Envs) != before, nil
}

// Contains reports whether the canonical form of path is registered.
func (l *AllowList) Contains(path string) bool {
	canonical, err := CanonicalPath(path)
	if err != nil {
		return false
	}
	return slices.Contains(l.Envs, canonical)
}

// CanonicalPath returns the absolute, symlink-free form of path. The path
// must exist.
func CanonicalPath(path string) (string, error) {
	abs, err := absolutePath(path)
	if err != nil {
		return "", err
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", NewEnvyError(ErrorTypeFileNotFound, "File does not exist", abs)
		}
		return "", NewEnvyError(ErrorTypeFileRead, "cannot resolve path", abs).WithCause(err)
	}
	return resolved, nil
}

func absolutePath(path string) (string, error) {
	if err := validatePathEncoding(path); err != nil {
		return "", err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", NewEnvyError(ErrorTypeFileRead, "cannot make path absolute", path).WithCause(err)
	}
	return abs, nil
}

func validatePathEncoding(path string) error {
	if !utf8.ValidString(path) || strings.ContainsRune(path, 0) {
		return NewEnvyError(ErrorTypeInvalidPathEncoding, "path is not valid UTF-8 text", strings.ToValidUTF8(path, "�"))
	}
	return nil
}
