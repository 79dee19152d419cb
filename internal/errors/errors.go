package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorType represents the category of error
type ErrorType int

const (
	// Configuration errors - missing or invalid configuration, tracked path never existed
	ErrorTypeConfig ErrorType = iota
	// Git errors - a git invocation failed or timed out
	ErrorTypeGit
	// Validation errors - the progress series violates its invariants
	ErrorTypeValidation
	// Cache errors - unreadable, mismatched or stale cache (always degraded to a miss)
	ErrorTypeCache
	// FileSystem errors - file I/O failures
	ErrorTypeFileSystem
	// Checkout errors - the working tree could not be moved or restored
	ErrorTypeCheckout
	// Storage errors - run ledger failures
	ErrorTypeStorage
	// Internal errors - unexpected internal state
	ErrorTypeInternal
)

// Severity represents how critical an error is
type Severity int

const (
	// SeverityLow - can continue with degraded functionality
	SeverityLow Severity = iota
	// SeverityMedium - should be addressed but not fatal
	SeverityMedium
	// SeverityHigh - significant issue, may impact functionality
	SeverityHigh
	// SeverityCritical - must be addressed, stops execution
	SeverityCritical
)

// Error represents a structured error with context
type Error struct {
	Type     ErrorType
	Severity Severity
	Message  string
	Cause    error
	Context  map[string]interface{}
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Is checks if this error matches the target error type
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// IsFatal returns true if this error should stop execution
func (e *Error) IsFatal() bool {
	return e.Severity == SeverityCritical
}

// DetailedString returns a detailed error message with context
func (e *Error) DetailedString() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("[%s] [%s] %s\n",
		severityString(e.Severity),
		typeString(e.Type),
		e.Message))

	if e.Cause != nil {
		sb.WriteString(fmt.Sprintf("Caused by: %v\n", e.Cause))
	}

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString("Context:\n")
		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("  %s: %v\n", k, e.Context[k]))
		}
	}

	return sb.String()
}

func typeString(t ErrorType) string {
	switch t {
	case ErrorTypeConfig:
		return "CONFIG"
	case ErrorTypeGit:
		return "GIT"
	case ErrorTypeValidation:
		return "VALIDATION"
	case ErrorTypeCache:
		return "CACHE"
	case ErrorTypeFileSystem:
		return "FILESYSTEM"
	case ErrorTypeCheckout:
		return "CHECKOUT"
	case ErrorTypeStorage:
		return "STORAGE"
	case ErrorTypeInternal:
		return "INTERNAL"
	default:
		return "UNKNOWN"
	}
}

func severityString(s Severity) string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// New creates a new error with the given type, severity, and message
func New(errType ErrorType, severity Severity, message string) *Error {
	return &Error{
		Type:     errType,
		Severity: severity,
		Message:  message,
		Context:  make(map[string]interface{}),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, severity Severity, message string) *Error {
	if err == nil {
		return nil
	}

	return &Error{
		Type:     errType,
		Severity: severity,
		Message:  message,
		Cause:    err,
		Context:  make(map[string]interface{}),
	}
}

// Convenience constructors for common error types

// ConfigError creates a configuration error
func ConfigError(message string) *Error {
	return New(ErrorTypeConfig, SeverityCritical, message)
}

// ConfigErrorf creates a configuration error with formatting
func ConfigErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeConfig, SeverityCritical, fmt.Sprintf(format, args...))
}

// MigrationNotStarted reports that one of the tracked paths was never
// introduced in history. role is "old" or "new".
func MigrationNotStarted(role, path string) *Error {
	return ConfigErrorf("%s path %q was never found in repository", role, path).
		WithContext("role", role).
		WithContext("path", path)
}

// IsMigrationNotStarted reports whether err was produced by MigrationNotStarted.
func IsMigrationNotStarted(err error) bool {
	var e *Error
	if !stderrors.As(err, &e) || e.Type != ErrorTypeConfig {
		return false
	}
	_, ok := e.Context["role"]
	return ok
}

// ValidationError creates a validation error
func ValidationError(message string) *Error {
	return New(ErrorTypeValidation, SeverityCritical, message)
}

// ValidationErrorf creates a validation error with formatting
func ValidationErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeValidation, SeverityCritical, fmt.Sprintf(format, args...))
}

// CacheWarning wraps a cache failure. Cache problems never stop a run.
func CacheWarning(err error, message string) *Error {
	if err == nil {
		return New(ErrorTypeCache, SeverityLow, message)
	}
	return Wrap(err, ErrorTypeCache, SeverityLow, message)
}

// CheckoutFailed wraps a failure to move or restore the working tree
func CheckoutFailed(err error, ref string) *Error {
	msg := fmt.Sprintf("checkout of %s failed", ref)
	e := Wrap(err, ErrorTypeCheckout, SeverityCritical, msg)
	if e == nil {
		e = New(ErrorTypeCheckout, SeverityCritical, msg)
	}
	return e.WithContext("ref", ref)
}

// FileSystemError wraps a filesystem error
func FileSystemError(err error, message string) *Error {
	return Wrap(err, ErrorTypeFileSystem, SeverityCritical, message)
}

// FileSystemErrorf wraps a filesystem error with formatting
func FileSystemErrorf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, ErrorTypeFileSystem, SeverityCritical, fmt.Sprintf(format, args...))
}

// StorageError wraps a run ledger error
func StorageError(err error, message string) *Error {
	return Wrap(err, ErrorTypeStorage, SeverityMedium, message)
}

// InternalErrorf creates an internal error with formatting
func InternalErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeInternal, SeverityCritical, fmt.Sprintf(format, args...))
}

// IsFatal checks if an error is fatal (should stop execution)
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var e *Error
	if stderrors.As(err, &e) {
		return e.IsFatal()
	}

	return true
}

// GetSeverity returns the severity of an error
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityLow
	}

	var e *Error
	if stderrors.As(err, &e) {
		return e.Severity
	}

	return SeverityMedium
}

// GetType returns the type of an error
func GetType(err error) ErrorType {
	if err == nil {
		return ErrorTypeInternal
	}

	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}

	return ErrorTypeInternal
}

// IsType reports whether any error in err's chain has the given type.
func IsType(err error, errType ErrorType) bool {
	return stderrors.Is(err, &Error{Type: errType})
}

// GitCommand wraps a failed git invocation. exitCode is -1 when the process
// never produced one (spawn failure or timeout).
func GitCommand(err error, args []string, exitCode int, stderr string, timedOut bool) *Error {
	msg := fmt.Sprintf("git %s failed", strings.Join(args, " "))
	if timedOut {
		msg = fmt.Sprintf("git %s timed out", strings.Join(args, " "))
	}
	if stderr = strings.TrimSpace(stderr); stderr != "" {
		msg = fmt.Sprintf("%s (stderr: %s)", msg, stderr)
	}

	e := Wrap(err, ErrorTypeGit, SeverityCritical, msg)
	if e == nil {
		e = New(ErrorTypeGit, SeverityCritical, msg)
	}
	return e.
		WithContext("args", strings.Join(args, " ")).
		WithContext("exit_code", exitCode).
		WithContext("timed_out", timedOut)
}

// GitExitCode returns the exit status recorded by GitCommand.
func GitExitCode(err error) (int, bool) {
	var e *Error
	if !stderrors.As(err, &e) || e.Type != ErrorTypeGit {
		return 0, false
	}
	code, ok := e.Context["exit_code"].(int)
	return code, ok
}

// IsTimeout reports whether a git invocation was killed by its timeout.
func IsTimeout(err error) bool {
	var e *Error
	if !stderrors.As(err, &e) || e.Type != ErrorTypeGit {
		return false
	}
	timedOut, _ := e.Context["timed_out"].(bool)
	return timedOut
}
