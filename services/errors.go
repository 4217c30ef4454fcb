package services

import (
	"errors"
	"fmt"
)

// ErrorType classifies a DomainError; handlers map it to a status code
type ErrorType string

const (
	ErrorTypeNotFound           ErrorType = "not_found"
	ErrorTypeValidation         ErrorType = "validation"
	ErrorTypeUnauthorized       ErrorType = "unauthorized"
	ErrorTypeForbidden          ErrorType = "forbidden"
	ErrorTypeConflict           ErrorType = "conflict"
	ErrorTypeInternal           ErrorType = "internal"
	ErrorTypeStorageUnavailable ErrorType = "storage_unavailable"
	ErrorTypeOracleUnavailable  ErrorType = "oracle_unavailable"
	ErrorTypeEscalated          ErrorType = "escalated"
)

// DomainError is a classified error. Message is safe to show to callers;
// Err carries the underlying cause and is only logged.
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches any DomainError of the same Type, so errors.Is(err, ErrNotFound)
// holds for every not-found error regardless of message.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && e.Type == t.Type
}

// WithDetail attaches structured context. Never call it on the package-level
// sentinels.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{Type: errType, Message: message, Err: err}
}

// Sentinels for errors.Is; they match by type only.
var (
	ErrNotFound           = NewDomainError(ErrorTypeNotFound, "not found", nil)
	ErrValidation         = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrUnauthorized       = NewDomainError(ErrorTypeUnauthorized, "unauthorized", nil)
	ErrForbidden          = NewDomainError(ErrorTypeForbidden, "access forbidden", nil)
	ErrConflict           = NewDomainError(ErrorTypeConflict, "conflict", nil)
	ErrInternal           = NewDomainError(ErrorTypeInternal, "internal server error", nil)
	ErrStorageUnavailable = NewDomainError(ErrorTypeStorageUnavailable, "storage unavailable", nil)
	ErrOracleUnavailable  = NewDomainError(ErrorTypeOracleUnavailable, "decision oracle unavailable", nil)
	ErrUserEscalated      = NewDomainError(ErrorTypeEscalated, "user has been escalated to a human agent", nil)

	ErrDuplicateRule = NewDomainError(ErrorTypeConflict, "rule already exists", nil)
)

// Is* report whether err carries a DomainError of the matching type
func IsNotFoundError(err error) bool      { return errors.Is(err, ErrNotFound) }
func IsValidationError(err error) bool    { return errors.Is(err, ErrValidation) }
func IsUnauthorizedError(err error) bool  { return errors.Is(err, ErrUnauthorized) }
func IsForbiddenError(err error) bool     { return errors.Is(err, ErrForbidden) }
func IsConflictError(err error) bool      { return errors.Is(err, ErrConflict) }
func IsInternalError(err error) bool      { return errors.Is(err, ErrInternal) }
func IsStorageUnavailable(err error) bool { return errors.Is(err, ErrStorageUnavailable) }
func IsOracleUnavailable(err error) bool  { return errors.Is(err, ErrOracleUnavailable) }
func IsEscalatedError(err error) bool     { return errors.Is(err, ErrUserEscalated) }

// GetErrorType returns the type of the outermost DomainError in err's chain,
// or "" when there is none
func GetErrorType(err error) ErrorType {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Type
	}
	return ""
}

// GetErrorDetails returns the details of the outermost DomainError
func GetErrorDetails(err error) map[string]interface{} {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Details
	}
	return nil
}

// WrapInternal classifies err as an internal failure
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}

// WrapStorage classifies a rule, retry, user or order store failure
func WrapStorage(message string, err error) error {
	return NewDomainError(ErrorTypeStorageUnavailable, message, err)
}

// WrapOracle classifies a decision oracle failure or timeout
func WrapOracle(message string, err error) error {
	return NewDomainError(ErrorTypeOracleUnavailable, message, err)
}
