package docschema

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeReference  ErrorType = "reference"
	ErrorTypeIntegrity  ErrorType = "integrity"
	ErrorTypeContract   ErrorType = "contract"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeSchema     ErrorType = "schema"
	ErrorTypeStorage    ErrorType = "storage"
	ErrorTypeInternal   ErrorType = "internal"
)

// Error codes
const (
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeReferenceNotFound  = "REFERENCE_NOT_FOUND"
	ErrCodeReferenceIntegrity = "REFERENCE_INTEGRITY_VIOLATION"
	ErrCodeMissingID          = "MISSING_ID"
	ErrCodeDocumentNotFound   = "DOCUMENT_NOT_FOUND"
	ErrCodeSchemaNotFound     = "SCHEMA_NOT_FOUND"
	ErrCodeSchemaInvalid      = "SCHEMA_INVALID"
	ErrCodeStorageFailed      = "STORAGE_FAILED"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeBatchRejected      = "BATCH_REJECTED"
)

// DocError is the error returned by engine operations. Validation and
// integrity failures carry their path-qualified messages in Messages.
type DocError struct {
	Type       ErrorType      `json:"type"`
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Collection string         `json:"collection,omitempty"`
	Field      string         `json:"field,omitempty"`
	Messages   []string       `json:"errors,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	Cause      error          `json:"-"`
}

func (e *DocError) Error() string {
	msg := e.Message
	if len(e.Messages) > 0 {
		msg = msg + ": " + strings.Join(e.Messages, "; ")
	}
	if e.Collection != "" {
		return fmt.Sprintf("[%s:%s] collection %s: %s", e.Type, e.Code, e.Collection, msg)
	}
	if e.Field != "" {
		return fmt.Sprintf("[%s:%s] field '%s': %s", e.Type, e.Code, e.Field, msg)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, msg)
}

func (e *DocError) Unwrap() error {
	return e.Cause
}

// Is matches errors of the same type and code, so sentinels work with errors.Is.
func (e *DocError) Is(target error) bool {
	t, ok := target.(*DocError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

// WithDetails adds details to a DocError
func (e *DocError) WithDetails(details map[string]any) *DocError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithDetail adds a single detail to a DocError
func (e *DocError) WithDetail(key string, value any) *DocError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func (e *DocError) WithCause(cause error) *DocError {
	e.Cause = cause
	return e
}

func (e *DocError) WithCollection(collection string) *DocError {
	e.Collection = collection
	return e
}

func (e *DocError) WithField(field string) *DocError {
	e.Field = field
	return e
}

// NewDocError creates a new DocError
func NewDocError(errorType ErrorType, code, message string) *DocError {
	return &DocError{
		Type:    errorType,
		Code:    code,
		Message: message,
	}
}

// ErrMissingID is returned when an update is attempted without an identity.
var ErrMissingID = NewDocError(ErrorTypeContract, ErrCodeMissingID, "cannot update document without _id attribute")

// NewValidationError wraps the path-qualified messages that blocked a write.
func NewValidationError(messages []string) *DocError {
	return &DocError{
		Type:     ErrorTypeValidation,
		Code:     ErrCodeValidationFailed,
		Message:  "document failed validation",
		Messages: messages,
	}
}

// NewBatchValidationError reports the per-document messages of a rejected batch.
// Documents that passed have an empty entry.
func NewBatchValidationError(perDocument [][]string) *DocError {
	var flat []string
	for i, msgs := range perDocument {
		for _, m := range msgs {
			flat = append(flat, fmt.Sprintf("%d: %s", i, m))
		}
	}
	return &DocError{
		Type:     ErrorTypeValidation,
		Code:     ErrCodeBatchRejected,
		Message:  "batch failed validation",
		Messages: flat,
		Details:  map[string]any{"documents": perDocument},
	}
}

// NewReferenceIntegrityError reports the references that block a remove.
func NewReferenceIntegrityError(messages []string) *DocError {
	return &DocError{
		Type:     ErrorTypeIntegrity,
		Code:     ErrCodeReferenceIntegrity,
		Message:  "document is still referenced",
		Messages: messages,
	}
}

func NewDocumentNotFoundError(collection string, id any) *DocError {
	return &DocError{
		Type:       ErrorTypeNotFound,
		Code:       ErrCodeDocumentNotFound,
		Message:    fmt.Sprintf("document '%v' not found", id),
		Collection: collection,
		Details:    map[string]any{"id": id},
	}
}

func NewSchemaNotFoundError(name string) *DocError {
	return &DocError{
		Type:    ErrorTypeNotFound,
		Code:    ErrCodeSchemaNotFound,
		Message: fmt.Sprintf("schema '%s' not found", name),
		Details: map[string]any{"schema_name": name},
	}
}

func NewSchemaInvalidError(name string, cause error) *DocError {
	return &DocError{
		Type:    ErrorTypeSchema,
		Code:    ErrCodeSchemaInvalid,
		Message: fmt.Sprintf("schema '%s' is invalid", name),
		Cause:   cause,
	}
}

func NewStorageError(message string, cause error) *DocError {
	return &DocError{
		Type:    ErrorTypeStorage,
		Code:    ErrCodeStorageFailed,
		Message: message,
		Cause:   cause,
	}
}

func NewInternalError(message string, cause error) *DocError {
	return &DocError{
		Type:    ErrorTypeInternal,
		Code:    ErrCodeInternalError,
		Message: message,
		Cause:   cause,
	}
}

func asDocError(err error) (*DocError, bool) {
	var de *DocError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	de, ok := asDocError(err)
	return ok && de.Type == ErrorTypeValidation
}

// IsIntegrityError checks if an error is a blocked cascading remove
func IsIntegrityError(err error) bool {
	de, ok := asDocError(err)
	return ok && de.Type == ErrorTypeIntegrity
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	de, ok := asDocError(err)
	return ok && de.Type == ErrorTypeNotFound
}

// IsContractError checks if an error reports caller misuse
func IsContractError(err error) bool {
	de, ok := asDocError(err)
	return ok && de.Type == ErrorTypeContract
}

// Messages returns the path-qualified messages carried by err, if any.
func Messages(err error) []string {
	de, ok := asDocError(err)
	if !ok {
		return nil
	}
	return de.Messages
}
