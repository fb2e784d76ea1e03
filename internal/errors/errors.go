// Package errors provides centralized error definitions and error handling utilities
// for soundmachine. It defines domain-specific errors, semantic error types,
// error constructors with context wrapping, and error classification helpers.
//
// # Error Types
//
// Domain-specific errors represent errors from specific subsystems:
//   - LaunchError: errors from the launcher (work directory, sessions, spawning)
//   - SyncError: errors from the remote sound resync
//   - DeviceError: errors from input devices, named pipes and audio output
//
// Semantic errors represent common error conditions:
//   - NotFoundError: resource not found
//   - ValidationError: invalid input or state
//   - TimeoutError: operation timed out
//
// # Usage
//
//	err := errors.NewLaunchError("cannot enter work directory", errors.ErrWorkDirUnavailable).
//		WithWorker("audio").WithSession("audio-player")
//
//	if errors.Is(err, errors.ErrWorkDirUnavailable) { ... }
//
//	var launchErr *errors.LaunchError
//	if errors.As(err, &launchErr) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Launcher sentinel errors
var (
	// ErrWorkDirUnavailable indicates the configured working directory cannot be entered.
	ErrWorkDirUnavailable = New("work directory unavailable")
	// ErrMultiplexerUnavailable indicates tmux is missing and could not be installed.
	ErrMultiplexerUnavailable = New("terminal multiplexer unavailable")
	// ErrSpawnFailed indicates a worker process could not be started.
	ErrSpawnFailed = New("worker failed to start")
	// ErrUnknownProfile indicates a launch profile is not configured.
	ErrUnknownProfile = New("unknown launch profile")
	// ErrUnknownWorker indicates a worker name is not configured.
	ErrUnknownWorker = New("unknown worker")
)

// Sync sentinel errors
var (
	// ErrSyncFailed indicates a sound synchronization run failed.
	ErrSyncFailed = New("sound sync failed")
	// ErrRemoteUnavailable indicates the remote sound store could not be reached.
	ErrRemoteUnavailable = New("remote sound store unavailable")
	// ErrEmptyDownload indicates a download produced no data.
	ErrEmptyDownload = New("download is empty")
)

// Device sentinel errors
var (
	// ErrDeviceNotFound indicates no usable input device was found.
	ErrDeviceNotFound = New("input device not found")
	// ErrPermissionDenied indicates an input device could not be opened for reading.
	ErrPermissionDenied = New("permission denied")
	// ErrNoAudio indicates no audio file exists for a tag.
	ErrNoAudio = New("no audio for tag")
)

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// SoundMachineError is the base interface for all soundmachine errors.
type SoundMachineError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the operation may succeed on retry.
	IsRetryable() bool

	// IsUserFacing returns true if the message is safe to display to end users.
	IsUserFacing() bool
}

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// formatWithContext renders "<kind> [k=v, ...]: message: cause".
func formatWithContext(kind string, parts []string, message string, cause error) string {
	prefix := kind
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", kind, strings.Join(parts, ", "))
	}
	if cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, message, cause)
	}
	return fmt.Sprintf("%s: %s", prefix, message)
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// LaunchError represents errors raised while launching, stopping or
// inspecting worker sessions.
//
// Example:
//
//	err := errors.NewLaunchError("spawn failed", errors.ErrSpawnFailed).WithWorker("rfid")
//	fmt.Println(err) // "launch error [worker=rfid]: spawn failed: worker failed to start"
type LaunchError struct {
	baseError
	Worker  string
	Session string
	WorkDir string
}

// NewLaunchError creates a new LaunchError.
func NewLaunchError(message string, cause error) *LaunchError {
	return &LaunchError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			userFacing: true,
		},
	}
}

// WithWorker adds a worker name to the error context.
func (e *LaunchError) WithWorker(name string) *LaunchError {
	e.Worker = name
	return e
}

// WithSession adds a session name to the error context.
func (e *LaunchError) WithSession(session string) *LaunchError {
	e.Session = session
	return e
}

// WithWorkDir adds the working directory to the error context.
func (e *LaunchError) WithWorkDir(dir string) *LaunchError {
	e.WorkDir = dir
	return e
}

// WithSeverity sets the error severity.
func (e *LaunchError) WithSeverity(s Severity) *LaunchError {
	e.severity = s
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *LaunchError) WithRetryable(r bool) *LaunchError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *LaunchError) Error() string {
	var parts []string
	if e.Worker != "" {
		parts = append(parts, "worker="+e.Worker)
	}
	if e.Session != "" {
		parts = append(parts, "session="+e.Session)
	}
	if e.WorkDir != "" {
		parts = append(parts, "dir="+e.WorkDir)
	}
	return formatWithContext("launch error", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *LaunchError) Is(target error) bool {
	if _, ok := target.(*LaunchError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// SyncError represents errors from the remote sound resync.
//
// Example:
//
//	err := errors.NewSyncError("hash mismatch", nil).WithTag("0008479619")
type SyncError struct {
	baseError
	Tag string
	URL string
}

// NewSyncError creates a new SyncError. Sync errors are retryable by default:
// the next periodic sync run will try again.
func NewSyncError(message string, cause error) *SyncError {
	return &SyncError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityWarning,
			retryable:  true,
			userFacing: true,
		},
	}
}

// WithTag adds a tag ID to the error context.
func (e *SyncError) WithTag(tag string) *SyncError {
	e.Tag = tag
	return e
}

// WithURL adds the remote URL to the error context.
func (e *SyncError) WithURL(url string) *SyncError {
	e.URL = url
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *SyncError) WithRetryable(r bool) *SyncError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *SyncError) Error() string {
	var parts []string
	if e.Tag != "" {
		parts = append(parts, "tag="+e.Tag)
	}
	if e.URL != "" {
		parts = append(parts, "url="+e.URL)
	}
	return formatWithContext("sync error", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *SyncError) Is(target error) bool {
	if _, ok := target.(*SyncError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// DeviceError represents errors from input devices, named pipes and the
// audio output device.
type DeviceError struct {
	baseError
	Path string
}

// NewDeviceError creates a new DeviceError.
func NewDeviceError(message string, cause error) *DeviceError {
	return &DeviceError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			userFacing: true,
		},
	}
}

// WithPath adds the device or pipe path to the error context.
func (e *DeviceError) WithPath(path string) *DeviceError {
	e.Path = path
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *DeviceError) WithRetryable(r bool) *DeviceError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *DeviceError) Error() string {
	var parts []string
	if e.Path != "" {
		parts = append(parts, "path="+e.Path)
	}
	return formatWithContext("device error", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *DeviceError) Is(target error) bool {
	if _, ok := target.(*DeviceError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError represents a resource that could not be found.
//
// Example:
//
//	err := errors.NewNotFoundError("session", "audio-player")
//	fmt.Println(err) // "session 'audio-player' not found"
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:    fmt.Sprintf("%s '%s' not found", resourceType, resourceID),
			severity:   SeverityWarning,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause adds a cause to the error.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *NotFoundError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s '%s' not found: %v", e.ResourceType, e.ResourceID, e.cause)
	}
	return fmt.Sprintf("%s '%s' not found", e.ResourceType, e.ResourceID)
}

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ValidationError represents invalid input or state.
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			severity:   SeverityWarning,
			userFacing: true,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, "field="+e.Field)
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}
	return formatWithContext("validation error", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if errors.Is(target, ErrInvalidInput) {
		return true
	}
	return e.baseError.Is(target)
}

// TimeoutError represents an operation that timed out.
//
// Example:
//
//	err := errors.NewTimeoutError("waiting for pipe reader", 5*time.Second)
//	fmt.Println(err) // "timeout error: waiting for pipe reader (timeout: 5s)"
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{
			message:    operation,
			severity:   SeverityWarning,
			retryable:  true,
			userFacing: true,
		},
		Operation: operation,
		Duration:  duration,
	}
}

// WithCause adds a cause to the error.
func (e *TimeoutError) WithCause(cause error) *TimeoutError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	base := fmt.Sprintf("timeout error: %s (timeout: %s)", e.Operation, e.Duration)
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", base, e.cause)
	}
	return base
}

// Is checks if this error matches the target.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	if errors.Is(target, ErrTimeout) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var smErr SoundMachineError
	if As(err, &smErr) {
		return smErr.IsRetryable()
	}

	return Is(err, ErrTimeout)
}

// IsUserFacing returns true if the error message is safe to display to end users.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var smErr SoundMachineError
	if As(err, &smErr) {
		return smErr.IsUserFacing()
	}
	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement SoundMachineError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var smErr SoundMachineError
	if As(err, &smErr) {
		return smErr.Severity()
	}
	return SeverityError
}

// Wrap wraps an error with additional context message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
