package envy

import (
	"errors"
	"fmt"
)

type ErrorType string

const (
	ErrorTypeFileNotFound           ErrorType = "file_not_found"
	ErrorTypeFileRead               ErrorType = "file_read"
	ErrorTypeInvalidPathEncoding    ErrorType = "invalid_path_encoding"
	ErrorTypeConfigDeserialize      ErrorType = "config_deserialize"
	ErrorTypeConfigWrite            ErrorType = "config_write"
	ErrorTypeInterpreterUnavailable ErrorType = "interpreter_unavailable"
	ErrorTypeScriptExecution        ErrorType = "script_execution"
	ErrorTypeScriptTimeout          ErrorType = "script_timeout"
	ErrorTypeUnsupportedShell       ErrorType = "unsupported_shell"
	ErrorTypeNotAllowed             ErrorType = "not_allowed"
)

type EnvyError struct {
	Type    ErrorType
	Message string
	Path    string
	Context map[string]any
	Err     error
}

func (e *EnvyError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Path != "" {
		return fmt.Sprintf("[%s] %s (path: %s)", e.Type, msg, e.Path)
	}
	return fmt.Sprintf("[%s] %s", e.Type, msg)
}

func (e *EnvyError) Unwrap() error {
	return e.Err
}

func NewEnvyError(errType ErrorType, message string, path string) *EnvyError {
	return &EnvyError{
		Type:    errType,
		Message: message,
		Path:    path,
		Context: make(map[string]any),
	}
}

func (e *EnvyError) WithContext(key string, value any) *EnvyError {
	e.Context[key] = value
	return e
}

func (e *EnvyError) WithCause(err error) *EnvyError {
	e.Err = err
	return e
}

// IsErrorType reports whether err, or any error it wraps, is an *EnvyError
// of the given type.
func IsErrorType(err error, errType ErrorType) bool {
	var envyErr *EnvyError
	return errors.As(err, &envyErr) && envyErr.Type == errType
}
