package domain

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors for the error kinds of a resolution run.
var (
	// ErrInvalidIdentifier indicates that a citation string could not be parsed.
	ErrInvalidIdentifier = errors.New("invalid identifier format")

	// ErrProviderUnavailable indicates a transient provider failure. Retryable.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrIdentifierNotFound indicates that the provider has no record for the identifier.
	ErrIdentifierNotFound = errors.New("identifier not found")

	// ErrMalformedResponse indicates that a provider response could not be turned into CSL-JSON.
	ErrMalformedResponse = errors.New("malformed provider response")

	// ErrInvalidCSLItem indicates that a CSL item failed schema validation.
	ErrInvalidCSLItem = errors.New("invalid CSL item")

	// ErrCacheCorruption indicates an unreadable cache entry or store.
	ErrCacheCorruption = errors.New("cache corruption")

	// ErrManualOverlayParse indicates a malformed manual reference.
	ErrManualOverlayParse = errors.New("manual overlay parse error")

	// ErrCancelled indicates that the run was cancelled before the identifier was processed.
	ErrCancelled = errors.New("cancelled")

	// ErrInvalidInput indicates invalid configuration or arguments.
	ErrInvalidInput = errors.New("invalid input")
)

// IdentifierError describes a citation string that could not be parsed.
type IdentifierError struct {
	Raw    string
	Reason string
}

// Error implements the error interface.
func (e *IdentifierError) Error() string {
	return fmt.Sprintf("invalid identifier %q: %s", e.Raw, e.Reason)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *IdentifierError) Unwrap() error {
	return ErrInvalidIdentifier
}

// NotFoundError reports that a provider has no record for an identifier.
type NotFoundError struct {
	Entity string
	ID     string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *NotFoundError) Unwrap() error {
	return ErrIdentifierNotFound
}

// ExternalAPIError provides details about a failed provider request.
// A zero StatusCode means the request never produced a usable response.
type ExternalAPIError struct {
	Source     string
	StatusCode int
	Message    string
	Cause      error
}

// Error implements the error interface.
func (e *ExternalAPIError) Error() string {
	if e.StatusCode == 0 {
		if e.Cause != nil {
			return fmt.Sprintf("%s request failed: %v", e.Source, e.Cause)
		}
		return fmt.Sprintf("%s request failed: %s", e.Source, e.Message)
	}
	return fmt.Sprintf("%s API error (status %d): %s", e.Source, e.StatusCode, e.Message)
}

// Unwrap returns the error kind implied by the status code and the cause.
func (e *ExternalAPIError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if kind := statusKind(e.StatusCode); kind != nil {
		errs = append(errs, kind)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// statusKind maps an HTTP status to an error kind.
func statusKind(status int) error {
	switch {
	case status == 0, status == http.StatusTooManyRequests, status >= 500:
		return ErrProviderUnavailable
	case status == http.StatusNotFound, status == http.StatusGone,
		status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return ErrIdentifierNotFound
	default:
		return nil
	}
}

// MalformedResponseError reports a provider payload that could not be decoded.
type MalformedResponseError struct {
	Source string
	ID     string
	Cause  error
}

// Error implements the error interface.
func (e *MalformedResponseError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("malformed %s response for %s", e.Source, e.ID)
	}
	return fmt.Sprintf("malformed %s response for %s: %v", e.Source, e.ID, e.Cause)
}

// Unwrap returns the sentinel error and the decode cause.
func (e *MalformedResponseError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrMalformedResponse}
	}
	return []error{ErrMalformedResponse, e.Cause}
}

// InvalidItemError lists the schema violations of a CSL item.
type InvalidItemError struct {
	ID       string
	Problems []string
}

// Error implements the error interface.
func (e *InvalidItemError) Error() string {
	if len(e.Problems) == 0 {
		return fmt.Sprintf("invalid CSL item %s", e.ID)
	}
	return fmt.Sprintf("invalid CSL item %s: %s", e.ID, strings.Join(e.Problems, "; "))
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *InvalidItemError) Unwrap() error {
	return ErrInvalidCSLItem
}

// CacheCorruptionError reports an unreadable cache entry or store.
type CacheCorruptionError struct {
	Fingerprint string
	Cause       error
}

// Error implements the error interface.
func (e *CacheCorruptionError) Error() string {
	if e.Fingerprint == "" {
		return fmt.Sprintf("cache store corrupted: %v", e.Cause)
	}
	return fmt.Sprintf("cache entry %s corrupted: %v", e.Fingerprint, e.Cause)
}

// Unwrap returns the sentinel error and the cause.
func (e *CacheCorruptionError) Unwrap() []error {
	return []error{ErrCacheCorruption, e.Cause}
}

// OverlayParseError reports a manual reference that could not be used.
// Entry is the zero-based position in the file, or -1 for the whole file.
type OverlayParseError struct {
	Path  string
	Entry int
	Cause error
}

// Error implements the error interface.
func (e *OverlayParseError) Error() string {
	if e.Entry < 0 {
		return fmt.Sprintf("manual references %s: %v", e.Path, e.Cause)
	}
	return fmt.Sprintf("manual references %s: entry %d: %v", e.Path, e.Entry, e.Cause)
}

// Unwrap returns the sentinel error and the cause.
func (e *OverlayParseError) Unwrap() []error {
	return []error{ErrManualOverlayParse, e.Cause}
}

// ValidationError represents a validation error for a specific field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// Failure records why a single citation could not be resolved.
type Failure struct {
	Citation string
	Err      error
}

// Error implements the error interface.
func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.Citation, f.Err)
}

// Unwrap returns the underlying error.
func (f *Failure) Unwrap() error {
	return f.Err
}

// RunError aggregates the per-citation failures of a run that still
// produced output for the remaining citations.
type RunError struct {
	Failures []*Failure
	Total    int
}

// Error implements the error interface.
func (e *RunError) Error() string {
	msgs := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		msgs = append(msgs, f.Error())
	}
	return fmt.Sprintf("%d of %d citations failed: %s", len(e.Failures), e.Total, strings.Join(msgs, "; "))
}

// Unwrap exposes every failure to errors.Is and errors.As.
func (e *RunError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f)
	}
	return errs
}

// IsRetryable reports whether err is a transient provider failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrProviderUnavailable)
}

// Kind returns a short label for the error kind of err, for logs and metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	case errors.Is(err, ErrInvalidIdentifier):
		return "invalid_identifier"
	case errors.Is(err, ErrIdentifierNotFound):
		return "not_found"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed_response"
	case errors.Is(err, ErrProviderUnavailable):
		return "unavailable"
	case errors.Is(err, ErrInvalidCSLItem):
		return "invalid_csl"
	case errors.Is(err, ErrCacheCorruption):
		return "cache_corruption"
	case errors.Is(err, ErrManualOverlayParse):
		return "overlay_parse"
	default:
		return "other"
	}
}

// NewIdentifierError creates a new IdentifierError.
func NewIdentifierError(raw, reason string) *IdentifierError {
	return &IdentifierError{Raw: raw, Reason: reason}
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{
		Entity: entity,
		ID:     id,
	}
}

// NewExternalAPIError creates a new ExternalAPIError.
func NewExternalAPIError(source string, statusCode int, message string, cause error) *ExternalAPIError {
	return &ExternalAPIError{
		Source:     source,
		StatusCode: statusCode,
		Message:    message,
		Cause:      cause,
	}
}

// NewMalformedResponseError creates a new MalformedResponseError.
func NewMalformedResponseError(source, id string, cause error) *MalformedResponseError {
	return &MalformedResponseError{Source: source, ID: id, Cause: cause}
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}
