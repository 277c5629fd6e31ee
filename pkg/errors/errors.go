// Package errors provides custom error types for the oldump system.
// These errors enable programmatic error checking across the sync
// workflow: transient network failures are distinguishable from
// permanent ones, a missing mirror marker is distinguishable from a
// missing file, and a corrupt manifest is distinguishable from an
// absent one.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// New returns an error that formats as the given text.
// It's an alias for the standard library errors.New for convenience.
var New = errors.New

// Is is an alias for the standard library errors.Is.
var Is = errors.Is

// As is an alias for the standard library errors.As.
var As = errors.As

// Common sentinel errors for the oldump system
var (
	// ErrNotFound indicates that a requested file or entry was not found
	ErrNotFound = errors.New("not found")

	// ErrTransient indicates a failure that is worth retrying
	ErrTransient = errors.New("transient failure")

	// ErrOriginUnreachable indicates the origin could not be contacted
	// even after retries; fatal for the artifact, not the run
	ErrOriginUnreachable = errors.New("origin unreachable")

	// ErrMetadataUnavailable indicates the mirror holds a file but cannot
	// report a modification marker for it; a valid state, not a failure
	ErrMetadataUnavailable = errors.New("metadata unavailable")

	// ErrManifestCorrupt indicates the persisted manifest exists but
	// cannot be parsed; the run must refuse to proceed
	ErrManifestCorrupt = errors.New("manifest corrupt")

	// ErrInvalidInput indicates that provided input was invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrTokenRequired indicates that an API token is required but not provided
	ErrTokenRequired = errors.New("API token required")

	// ErrCanceled indicates that an operation was canceled
	ErrCanceled = errors.New("operation canceled")
)

// ValidationError represents a validation failure
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// Is implements errors.Is support
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// APIError represents an error response from a remote HTTP API
// (the origin server or the dataset store).
type APIError struct {
	Host       string
	StatusCode int
	Message    string
	Endpoint   string
	Err        error
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("API error from %s (status %d): %s", e.Host, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error from %s: %s", e.Host, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *APIError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support. Server-side and throttling failures
// are transient; a missing resource maps to ErrNotFound.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrTransient:
		return e.StatusCode >= http.StatusInternalServerError ||
			e.StatusCode == http.StatusTooManyRequests ||
			e.StatusCode == http.StatusRequestTimeout ||
			e.StatusCode == 0
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// NewAPIError creates a new APIError
func NewAPIError(host string, statusCode int, message string) *APIError {
	return &APIError{Host: host, StatusCode: statusCode, Message: message}
}

// IOError represents a local filesystem failure (disk full, permission
// denied); fatal for the artifact being processed.
type IOError struct {
	Operation string
	Path      string
	Err       error
}

// Error implements the error interface
func (e *IOError) Error() string {
	return fmt.Sprintf("IO error during %s on %s: %v", e.Operation, e.Path, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *IOError) Unwrap() error {
	return e.Err
}

// ParseError represents a failure to parse structured data
type ParseError struct {
	Format  string
	File    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *ParseError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("failed to parse %s file %s: %s", e.Format, e.File, e.Message)
	}
	return fmt.Sprintf("failed to parse %s: %s", e.Format, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ParseError) Unwrap() error {
	return e.Err
}

// ManifestError represents an unreadable persisted manifest document.
// Unlike an absent manifest (which loads as empty), a corrupt one is
// run-fatal so that drift is never silently masked by a fresh start.
type ManifestError struct {
	Path string
	Err  error
}

// Error implements the error interface
func (e *ManifestError) Error() string {
	return fmt.Sprintf("sync manifest at %s is unreadable: %v", e.Path, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *ManifestError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *ManifestError) Is(target error) bool {
	return target == ErrManifestCorrupt
}

// SyncError represents a per-artifact sync failure, carrying enough
// context (artifact, stage, cause) to diagnose from the run summary.
type SyncError struct {
	Artifact string
	Stage    string
	Err      error
}

// Error implements the error interface
func (e *SyncError) Error() string {
	return fmt.Sprintf("sync of %s failed during %s: %v", e.Artifact, e.Stage, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *SyncError) Unwrap() error {
	return e.Err
}

// Helper wrapping functions for common patterns

// WrapIO wraps an error as an IOError
func WrapIO(operation, path string, err error) error {
	if err == nil {
		return nil
	}
	return &IOError{Operation: operation, Path: path, Err: err}
}

// WrapParse wraps an error as a ParseError
func WrapParse(format, file string, err error) error {
	if err == nil {
		return nil
	}
	return &ParseError{Format: format, File: file, Message: err.Error(), Err: err}
}

// WrapSync wraps an error as a SyncError
func WrapSync(artifact, stage string, err error) error {
	if err == nil {
		return nil
	}
	return &SyncError{Artifact: artifact, Stage: stage, Err: err}
}

// IsTransient checks if an error is worth retrying
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsNotFound checks if an error indicates a missing resource
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsManifestCorrupt checks if an error indicates an unreadable manifest
func IsManifestCorrupt(err error) bool {
	return errors.Is(err, ErrManifestCorrupt)
}

// IsMetadataUnavailable checks if an error indicates a present file
// with no modification marker
func IsMetadataUnavailable(err error) bool {
	return errors.Is(err, ErrMetadataUnavailable)
}
