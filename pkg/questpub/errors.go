package questpub

import (
	"errors"
	"fmt"
	"strings"
)

// Error types
var (
	// ErrValidation is matched by every *ValidationError via errors.Is
	ErrValidation = errors.New("validation failed")

	// ErrInvalidRequest indicates a structurally malformed call
	ErrInvalidRequest = errors.New("invalid request")

	// ErrQuestNotFound indicates a quest was not found
	ErrQuestNotFound = errors.New("quest not found")

	// ErrTombstoned indicates the quest was unpublished and cannot be republished
	ErrTombstoned = errors.New("quest is tombstoned")

	// ErrUploadFailed indicates the content artifact upload failed
	ErrUploadFailed = errors.New("upload failed")

	// ErrOwnerMismatch indicates a write to a quest held by another owner
	ErrOwnerMismatch = errors.New("quest belongs to another owner")
)

// FieldErrorKind classifies a field-level validation failure.
type FieldErrorKind string

const (
	FieldMissing   FieldErrorKind = "missing"
	FieldWrongType FieldErrorKind = "wrong_type"
	FieldUnknown   FieldErrorKind = "unknown"
	FieldInvalid   FieldErrorKind = "invalid"
)

// FieldError represents a validation error on a specific field
type FieldError struct {
	Field   string         `json:"field"`
	Kind    FieldErrorKind `json:"kind"`
	Message string         `json:"message"`
}

func (e FieldError) String() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError aggregates every field error found in one validation pass.
type ValidationError struct {
	Fields []FieldError `json:"errors"`
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.String())
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, "; "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Add appends a field error
func (e *ValidationError) Add(field string, kind FieldErrorKind, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Kind: kind, Message: message})
}

// Merge appends all field errors of other; nil is ignored.
func (e *ValidationError) Merge(other *ValidationError) {
	if other == nil {
		return
	}
	e.Fields = append(e.Fields, other.Fields...)
}

// ErrOrNil returns nil when no field errors were collected.
func (e *ValidationError) ErrOrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// FieldErrors returns the errors recorded for a single field.
func (e *ValidationError) FieldErrors(field string) []FieldError {
	var out []FieldError
	for _, f := range e.Fields {
		if f.Field == field {
			out = append(out, f)
		}
	}
	return out
}

// QuestError represents an error related to quest operations
type QuestError struct {
	QuestID string
	Op      string
	Err     error
}

func (e *QuestError) Error() string {
	return fmt.Sprintf("quest operation %s failed for quest %s: %v", e.Op, e.QuestID, e.Err)
}

func (e *QuestError) Unwrap() error {
	return e.Err
}

// StorageError represents an error related to storage operations
type StorageError struct {
	Backend string
	Key     string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for key %s on backend %s: %v", e.Op, e.Key, e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// UpsertRefusal names the reason a guarded full-row upsert left existing
// untouched.
func UpsertRefusal(existing *Quest) error {
	if existing.IsTombstoned() {
		return ErrTombstoned
	}
	return ErrOwnerMismatch
}

// IsClientError reports whether err was caused by the caller's input rather
// than a failing collaborator.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrTombstoned) ||
		errors.Is(err, ErrOwnerMismatch) ||
		errors.Is(err, ErrQuestNotFound)
}
