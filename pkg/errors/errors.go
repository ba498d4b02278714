// Package errors provides custom error types for the platemark pipeline.
// These errors enable programmatic error checking with errors.Is and carry
// the context (part, field, section, patch entry) a caller needs to decide
// whether a failure is fatal for a part or recoverable inside a patch.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Common sentinel errors for the platemark pipeline
var (
	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrNoMetadata indicates that no source produced any metadata for a part
	ErrNoMetadata = errors.New("no metadata")

	// ErrContradiction indicates that sources disagree on a metadata field
	ErrContradiction = errors.New("metadata contradiction")

	// ErrSectionNotFound indicates that a DXF section a mutation targets is absent
	ErrSectionNotFound = errors.New("section not found")

	// ErrInvalidPatchEntry indicates a malformed entry inside a patch
	ErrInvalidPatchEntry = errors.New("invalid patch entry")

	// ErrInvalidInput indicates that provided input was invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrAPIKeyRequired indicates that an API key is required but not provided
	ErrAPIKeyRequired = errors.New("API key required")
)

// NoMetadataError reports that every extractor came up empty for a part.
// Fatal for that part: no patch is attempted.
type NoMetadataError struct {
	PartID string
}

// Error implements the error interface
func (e *NoMetadataError) Error() string {
	return fmt.Sprintf("no metadata found for part %s in any source", e.PartID)
}

// Is implements errors.Is support
func (e *NoMetadataError) Is(target error) bool {
	return target == ErrNoMetadata
}

// NewNoMetadataError creates a new NoMetadataError
func NewNoMetadataError(partID string) *NoMetadataError {
	return &NoMetadataError{PartID: partID}
}

// ContradictionError reports that two or more sources produced distinct
// values for the same metadata field of one part. Fatal for that part's
// annotation; the conflicting set is surfaced for diagnostics.
type ContradictionError struct {
	PartID string
	Field  string
	Values []string
}

// Error implements the error interface
func (e *ContradictionError) Error() string {
	return fmt.Sprintf("%s mismatch for part %s: [%s]", e.Field, e.PartID, strings.Join(e.Values, ", "))
}

// Is implements errors.Is support
func (e *ContradictionError) Is(target error) bool {
	return target == ErrContradiction
}

// NewContradictionError creates a new ContradictionError
func NewContradictionError(partID, field string, values []string) *ContradictionError {
	return &ContradictionError{PartID: partID, Field: field, Values: values}
}

// SectionNotFoundError reports that a named DXF section is absent.
// Recovered locally: the mutation category targeting it is skipped.
type SectionNotFoundError struct {
	Section string
}

// Error implements the error interface
func (e *SectionNotFoundError) Error() string {
	return fmt.Sprintf("DXF section %s not found", e.Section)
}

// Is implements errors.Is support
func (e *SectionNotFoundError) Is(target error) bool {
	return target == ErrSectionNotFound || target == ErrNotFound
}

// NewSectionNotFoundError creates a new SectionNotFoundError
func NewSectionNotFoundError(section string) *SectionNotFoundError {
	return &SectionNotFoundError{Section: section}
}

// InvalidPatchEntryError reports a single malformed patch entry (unknown
// placement, disallowed variable name or group code). Recovered locally by
// skipping that entry; the rest of the patch still applies.
type InvalidPatchEntryError struct {
	Kind   string // "header_update", "layer_rename", "comment"
	Entry  string
	Reason string
}

// Error implements the error interface
func (e *InvalidPatchEntryError) Error() string {
	return fmt.Sprintf("invalid %s entry %s: %s", e.Kind, e.Entry, e.Reason)
}

// Is implements errors.Is support
func (e *InvalidPatchEntryError) Is(target error) bool {
	return target == ErrInvalidPatchEntry
}

// NewInvalidPatchEntryError creates a new InvalidPatchEntryError
func NewInvalidPatchEntryError(kind, entry, reason string) *InvalidPatchEntryError {
	return &InvalidPatchEntryError{Kind: kind, Entry: entry, Reason: reason}
}

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

// NewValidationError creates a new ValidationError
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// ParseError represents an error when parsing data formats
type ParseError struct {
	Format  string // "json", "yaml", "qif", "dxf"
	File    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *ParseError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("parse error in %s file %s: %s", e.Format, e.File, e.Message)
	}
	return fmt.Sprintf("%s parse error: %s", e.Format, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError creates a new ParseError
func NewParseError(format, file, message string, err error) *ParseError {
	return &ParseError{Format: format, File: file, Message: message, Err: err}
}

// IOError represents an error during I/O operations
type IOError struct {
	Operation string // "read", "write", "create", "open"
	Path      string
	Err       error
}

// Error implements the error interface
func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("IO error during %s of %s: %v", e.Operation, e.Path, e.Err)
	}
	return fmt.Sprintf("IO error during %s: %v", e.Operation, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *IOError) Unwrap() error {
	return e.Err
}

// NewIOError creates a new IOError
func NewIOError(operation, path string, err error) *IOError {
	return &IOError{Operation: operation, Path: path, Err: err}
}

// ConfigError represents a configuration error
type ConfigError struct {
	Component string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("configuration error in %s: %s", e.Component, e.Message)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError
func NewConfigError(component, message string, err error) *ConfigError {
	return &ConfigError{Component: component, Message: message, Err: err}
}

// RenderError represents a failure of a patch renderer (LLM call, response
// parsing). The orchestrator may fall back to the deterministic renderer.
type RenderError struct {
	Renderer string
	PartID   string
	Message  string
	Err      error
}

// Error implements the error interface
func (e *RenderError) Error() string {
	if e.PartID != "" {
		return fmt.Sprintf("renderer %s failed for part %s: %s", e.Renderer, e.PartID, e.Message)
	}
	return fmt.Sprintf("renderer %s failed: %s", e.Renderer, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *RenderError) Unwrap() error {
	return e.Err
}

// NewRenderError creates a new RenderError
func NewRenderError(renderer, partID, message string, err error) *RenderError {
	return &RenderError{Renderer: renderer, PartID: partID, Message: message, Err: err}
}

// Helper functions for error checking

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsNoMetadata checks if an error reports an empty source set
func IsNoMetadata(err error) bool {
	return errors.Is(err, ErrNoMetadata)
}

// IsContradiction checks if an error reports conflicting source values
func IsContradiction(err error) bool {
	return errors.Is(err, ErrContradiction)
}

// IsSectionNotFound checks if an error reports a missing DXF section
func IsSectionNotFound(err error) bool {
	return errors.Is(err, ErrSectionNotFound)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// Helper wrapping functions for common patterns

// WrapIO wraps an error as an IOError
func WrapIO(operation, path string, err error) error {
	if err == nil {
		return nil
	}
	return NewIOError(operation, path, err)
}

// WrapParse wraps an error as a ParseError
func WrapParse(format, file string, err error) error {
	if err == nil {
		return nil
	}
	return NewParseError(format, file, err.Error(), err)
}
