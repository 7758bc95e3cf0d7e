package envy

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"unicode/utf8"
)

const exportPrefix = "export "

// ParseLine parses one line of an env file into a variable. Blank lines,
// comments, lines without '=' and lines with an empty key yield false.
// The value is kept verbatim: quotes and '=' characters are not interpreted.
func ParseLine(line string) (Variable, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return Variable{}, false
	}

	line = strings.TrimPrefix(line, exportPrefix)

	key, value, ok := strings.Cut(line, "=")
	if !ok {
		return Variable{}, false
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return Variable{}, false
	}
	return Variable{Key: key, Value: strings.TrimSpace(value)}, true
}

// ParseLines applies ParseLine to every entry and drops the malformed ones.
func ParseLines(lines []string) []Variable {
	vars := make([]Variable, 0, len(lines))
	for _, line := range lines {
		if v, ok := ParseLine(line); ok {
			vars = append(vars, v)
		}
	}
	return vars
}

// ReadEnvFile returns the non-blank, non-comment lines of an env file in file
// order. Lines are not parsed; use ParseLines for key/value pairs.
func ReadEnvFile(path string) ([]string, error) {
	// #nosec G304 - reading a user-authorized env file is the purpose of this function
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, NewEnvyError(ErrorTypeFileNotFound, "File does not exist", path)
		}
		return nil, NewEnvyError(ErrorTypeFileRead, "cannot read env file", path).WithCause(err)
	}

	if !utf8.Valid(data) {
		return nil, NewEnvyError(ErrorTypeFileRead, "env file is not valid UTF-8 text", path)
	}

	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSuffix(line, "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// LoadEnvFile reads path and parses it into variables.
func LoadEnvFile(path string) ([]Variable, error) {
	lines, err := ReadEnvFile(path)
	if err != nil {
		return nil, err
	}
	return ParseLines(lines), nil
}
