// Package errors provides centralized error definitions and error handling utilities
// for devcrew. It defines domain-specific errors, semantic error types, error
// constructors with context wrapping, and classification helpers that assign a
// severity and a category to any error.
//
// # Error Types
//
// Domain-specific errors represent errors from specific subsystems:
//   - CacheError: analysis cache reads, writes and index maintenance
//   - BackupError: backup archive creation, restore and pruning
//   - TeamError: team simulation (decomposition, execution, voting)
//   - DiagnosisError: self-diagnosis checks and report rendering
//
// Semantic errors represent common error conditions:
//   - NotFoundError: resource not found
//   - AlreadyExistsError: resource already exists
//   - ValidationError: invalid input or state
//   - TimeoutError: operation timed out
//   - HTTPStatusError: a remote endpoint answered with a non-2xx status
//
// # Usage
//
//	err := errors.NewCacheError("failed to load entry", baseErr).WithKey(key)
//
//	if errors.Is(err, errors.ErrCacheMiss) { ... }
//
//	var cacheErr *errors.CacheError
//	if errors.As(err, &cacheErr) { ... }
//
//	if errors.IsRetryable(err) { ... }
//	switch errors.Categorize(err) { ... }
//
// # Classification
//
// Every error can be classified along two axes:
//   - Severity: critical, high, medium, low, info
//   - Category: file, validation, network, config, permission, resource,
//     business, system
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
// Higher values are more severe.
type Severity int

const (
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo Severity = iota
	// SeverityLow is for minor problems that don't affect the outcome.
	SeverityLow
	// SeverityMedium is for problems that degrade but don't stop an operation.
	SeverityMedium
	// SeverityHigh is for errors that make an operation fail.
	SeverityHigh
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Category groups errors by the kind of resource or concern that failed.
type Category string

const (
	CategoryFile       Category = "file"
	CategoryValidation Category = "validation"
	CategoryNetwork    Category = "network"
	CategoryConfig     Category = "config"
	CategoryPermission Category = "permission"
	CategoryResource   Category = "resource"
	CategoryBusiness   Category = "business"
	CategorySystem     Category = "system"
)

// String returns the string representation of the category.
func (c Category) String() string {
	return string(c)
}

// Categories returns every known category in a stable order.
func Categories() []Category {
	return []Category{
		CategoryFile, CategoryValidation, CategoryNetwork, CategoryConfig,
		CategoryPermission, CategoryResource, CategoryBusiness, CategorySystem,
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Cache-related sentinel errors
var (
	// ErrCacheMiss indicates that no usable cache entry exists for a key.
	ErrCacheMiss = New("cache miss")
	// ErrCacheExpired indicates that a cache entry existed but exceeded its TTL.
	ErrCacheExpired = New("cache entry expired")
	// ErrCacheCorrupted indicates that a cache blob or the index could not be decoded.
	ErrCacheCorrupted = New("cache data corrupted")
)

// Backup-related sentinel errors
var (
	// ErrBackupNotFound indicates that a backup record could not be found.
	ErrBackupNotFound = New("backup not found")
	// ErrNoSources indicates that a backup was requested without any source paths.
	ErrNoSources = New("no backup sources")
	// ErrUnsafeArchivePath indicates an archive entry that would escape the restore root.
	ErrUnsafeArchivePath = New("archive entry escapes destination")
)

// Team-related sentinel errors
var (
	// ErrEmptyObjective indicates that the team was given nothing to do.
	ErrEmptyObjective = New("objective is empty")
	// ErrVoteFailed indicates that the team did not approve the result.
	ErrVoteFailed = New("team vote failed")
	// ErrIterationsExhausted indicates that every allowed iteration was rejected.
	ErrIterationsExhausted = New("max iterations exhausted")
)

// Diagnosis-related sentinel errors
var (
	// ErrCheckFailed indicates that a diagnosis step did not pass.
	ErrCheckFailed = New("diagnosis check failed")
	// ErrUnknownFormat indicates an unsupported report format.
	ErrUnknownFormat = New("unknown report format")
)

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
	// ErrOperationFailed indicates a general operation failure.
	ErrOperationFailed = New("operation failed")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// DevcrewError is the base interface for all devcrew errors.
// It extends the standard error interface with additional methods for
// error handling and classification.
type DevcrewError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// Category returns the category of this error.
	Category() Category

	// IsRetryable returns true if the error is transient and the operation
	// may succeed on retry.
	IsRetryable() bool

	// IsUserFacing returns true if the error message is safe to display
	// to end users.
	IsUserFacing() bool
}

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	category   Category
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

// Category returns the error category.
func (e *baseError) Category() Category {
	return e.category
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// formatDomain renders "<kind> [k=v, ...]: message: cause".
func formatDomain(kind string, parts []string, message string, cause error) string {
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

// CacheError represents errors raised by the analysis cache.
//
// Example:
//
//	err := errors.NewCacheError("failed to decode entry", errors.ErrCacheCorrupted)
//	err = err.WithKey("ab12_structure")
//	fmt.Println(err) // "cache error [key=ab12_structure]: failed to decode entry: cache data corrupted"
type CacheError struct {
	baseError
	Key       string
	Operation string
}

// NewCacheError creates a new CacheError.
func NewCacheError(message string, cause error) *CacheError {
	return &CacheError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityMedium,
			category:   CategoryFile,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithKey adds the cache key to the error context.
func (e *CacheError) WithKey(key string) *CacheError {
	e.Key = key
	return e
}

// WithOperation adds the analysis operation to the error context.
func (e *CacheError) WithOperation(op string) *CacheError {
	e.Operation = op
	return e
}

// WithSeverity sets the error severity.
func (e *CacheError) WithSeverity(s Severity) *CacheError {
	e.severity = s
	return e
}

// Error returns the formatted error message.
func (e *CacheError) Error() string {
	var parts []string
	if e.Key != "" {
		parts = append(parts, fmt.Sprintf("key=%s", e.Key))
	}
	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("operation=%s", e.Operation))
	}
	return formatDomain("cache error", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *CacheError) Is(target error) bool {
	if _, ok := target.(*CacheError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// BackupError represents errors raised while creating, restoring or pruning backups.
type BackupError struct {
	baseError
	BackupID string
	Path     string
}

// NewBackupError creates a new BackupError.
func NewBackupError(message string, cause error) *BackupError {
	return &BackupError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityHigh,
			category:   CategoryFile,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithBackupID adds the backup record ID to the error context.
func (e *BackupError) WithBackupID(id string) *BackupError {
	e.BackupID = id
	return e
}

// WithPath adds the file path to the error context.
func (e *BackupError) WithPath(path string) *BackupError {
	e.Path = path
	return e
}

// WithCategory overrides the default file category.
func (e *BackupError) WithCategory(c Category) *BackupError {
	e.category = c
	return e
}

// Error returns the formatted error message.
func (e *BackupError) Error() string {
	var parts []string
	if e.BackupID != "" {
		parts = append(parts, fmt.Sprintf("backup=%s", e.BackupID))
	}
	if e.Path != "" {
		parts = append(parts, fmt.Sprintf("path=%s", e.Path))
	}
	return formatDomain("backup error", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *BackupError) Is(target error) bool {
	if _, ok := target.(*BackupError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// TeamError represents errors raised by the team simulation.
type TeamError struct {
	baseError
	TaskID    string
	Role      string
	Iteration int
}

// NewTeamError creates a new TeamError.
func NewTeamError(message string, cause error) *TeamError {
	return &TeamError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityHigh,
			category:   CategoryBusiness,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithTaskID adds a task ID to the error context.
func (e *TeamError) WithTaskID(id string) *TeamError {
	e.TaskID = id
	return e
}

// WithRole adds a role name to the error context.
func (e *TeamError) WithRole(role string) *TeamError {
	e.Role = role
	return e
}

// WithIteration adds the workflow iteration (1-based) to the error context.
func (e *TeamError) WithIteration(n int) *TeamError {
	e.Iteration = n
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *TeamError) WithRetryable(r bool) *TeamError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *TeamError) Error() string {
	var parts []string
	if e.TaskID != "" {
		parts = append(parts, fmt.Sprintf("task=%s", e.TaskID))
	}
	if e.Role != "" {
		parts = append(parts, fmt.Sprintf("role=%s", e.Role))
	}
	if e.Iteration > 0 {
		parts = append(parts, fmt.Sprintf("iteration=%d", e.Iteration))
	}
	return formatDomain("team error", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *TeamError) Is(target error) bool {
	if _, ok := target.(*TeamError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// DiagnosisError represents errors raised by self-diagnosis.
type DiagnosisError struct {
	baseError
	Step string
}

// NewDiagnosisError creates a new DiagnosisError.
func NewDiagnosisError(message string, cause error) *DiagnosisError {
	return &DiagnosisError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityMedium,
			category:   CategorySystem,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithStep adds the diagnosis step name to the error context.
func (e *DiagnosisError) WithStep(step string) *DiagnosisError {
	e.Step = step
	return e
}

// Error returns the formatted error message.
func (e *DiagnosisError) Error() string {
	var parts []string
	if e.Step != "" {
		parts = append(parts, fmt.Sprintf("step=%s", e.Step))
	}
	return formatDomain("diagnosis error", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *DiagnosisError) Is(target error) bool {
	if _, ok := target.(*DiagnosisError); ok {
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
//	err := errors.NewNotFoundError("backup", "abc123")
//	fmt.Println(err) // "backup 'abc123' not found"
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
			severity:   SeverityLow,
			category:   CategoryResource,
			retryable:  false,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
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

// AlreadyExistsError represents a resource that already exists.
type AlreadyExistsError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewAlreadyExistsError creates a new AlreadyExistsError.
func NewAlreadyExistsError(resourceType, resourceID string) *AlreadyExistsError {
	return &AlreadyExistsError{
		baseError: baseError{
			message:    fmt.Sprintf("%s '%s' already exists", resourceType, resourceID),
			severity:   SeverityLow,
			category:   CategoryResource,
			retryable:  false,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// Error returns the formatted error message.
func (e *AlreadyExistsError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s '%s' already exists: %v", e.ResourceType, e.ResourceID, e.cause)
	}
	return fmt.Sprintf("%s '%s' already exists", e.ResourceType, e.ResourceID)
}

// Is checks if this error matches the target.
func (e *AlreadyExistsError) Is(target error) bool {
	if _, ok := target.(*AlreadyExistsError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ValidationError represents invalid input or state.
//
// Example:
//
//	err := errors.NewValidationError("objective cannot be empty")
//	err = err.WithField("objective").WithValue("")
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
			severity:   SeverityMedium,
			category:   CategoryValidation,
			retryable:  false,
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

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}
	return formatDomain("validation error", parts, e.message, e.cause)
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
//	err := errors.NewTimeoutError("waiting for team vote", 30*time.Second)
//	fmt.Println(err) // "timeout error: waiting for team vote (timeout: 30s)"
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
			severity:   SeverityMedium,
			category:   CategoryResource,
			retryable:  true,
			userFacing: true,
		},
		Operation: operation,
		Duration:  duration,
	}
}

// WithRetryable sets whether the error is retryable (default true for timeouts).
func (e *TimeoutError) WithRetryable(r bool) *TimeoutError {
	e.retryable = r
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

// HTTPStatusError represents a non-success response from a remote endpoint.
// Gateway failures (502, 503, 504) are retryable.
type HTTPStatusError struct {
	baseError
	StatusCode int
	URL        string
}

// NewHTTPStatusError creates a new HTTPStatusError.
func NewHTTPStatusError(statusCode int, url string) *HTTPStatusError {
	severity := SeverityMedium
	if statusCode >= 500 {
		severity = SeverityHigh
	}
	return &HTTPStatusError{
		baseError: baseError{
			message:    fmt.Sprintf("unexpected status %d", statusCode),
			severity:   severity,
			category:   CategoryNetwork,
			retryable:  IsGatewayStatus(statusCode),
			userFacing: true,
		},
		StatusCode: statusCode,
		URL:        url,
	}
}

// Error returns the formatted error message.
func (e *HTTPStatusError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("network error [url=%s]: %s", e.URL, e.message)
	}
	return fmt.Sprintf("network error: %s", e.message)
}

// Is checks if this error matches the target.
func (e *HTTPStatusError) Is(target error) bool {
	if _, ok := target.(*HTTPStatusError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// IsGatewayStatus reports whether the status code is 502, 503 or 504.
func IsGatewayStatus(code int) bool {
	return code == 502 || code == 503 || code == 504
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry. This checks for:
//   - Errors implementing DevcrewError with IsRetryable() returning true
//   - Errors wrapping ErrTimeout
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var devErr DevcrewError
	if As(err, &devErr) {
		return devErr.IsRetryable()
	}

	return Is(err, ErrTimeout)
}

// GetSeverity returns the severity level of the error.
// Returns SeverityHigh for errors that don't implement DevcrewError.
//
// Example:
//
//	switch errors.GetSeverity(err) {
//	case errors.SeverityCritical:
//	    alertOnCall(err)
//	case errors.SeverityHigh:
//	    log.Error("error occurred", "err", err)
//	}
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityInfo
	}

	var devErr DevcrewError
	if As(err, &devErr) {
		return devErr.Severity()
	}

	return SeverityHigh
}

// explicitCategory returns the category of a DevcrewError, or "" for other
// errors.
func explicitCategory(err error) Category {
	var devErr DevcrewError
	if As(err, &devErr) {
		return devErr.Category()
	}
	return ""
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrapf wraps an error with a formatted context message.
//
// Example:
//
//	err := errors.Wrapf(baseErr, "failed to restore backup %s", id)
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
