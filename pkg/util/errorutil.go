package util

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Transient  bool
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError("CONFLICT", message, http.StatusConflict, details)
}

// NewStoreBusy wraps a store contention failure. Callers retry with backoff;
// it never indicates data loss.
func NewStoreBusy(err error) error {
	return &DomainError{
		Code:       "STORE_BUSY",
		Message:    "durable store busy",
		HTTPStatus: http.StatusServiceUnavailable,
		Transient:  true,
		Err:        err,
	}
}

// NewSendTransient marks a gateway send failure that should be retried.
func NewSendTransient(err error) error {
	return &DomainError{
		Code:       "SEND_TRANSIENT",
		Message:    "gateway send failed transiently",
		HTTPStatus: http.StatusBadGateway,
		Transient:  true,
		Err:        err,
	}
}

// NewSendPermanent marks a gateway send failure that must not be retried.
func NewSendPermanent(err error) error {
	return &DomainError{
		Code:       "SEND_PERMANENT",
		Message:    "gateway rejected send permanently",
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

// NewConfigurationMissing reports a required configuration value that is
// absent. Fatal at startup; the process refuses to run half-configured.
func NewConfigurationMissing(key string) error {
	return &DomainError{
		Code:       "CONFIG_MISSING",
		Message:    fmt.Sprintf("required configuration %s is missing", key),
		HTTPStatus: http.StatusInternalServerError,
	}
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// IsStoreBusy reports whether err is a store contention failure.
func IsStoreBusy(err error) bool {
	return HasCode(err, "STORE_BUSY")
}

// IsTransient reports whether err may succeed on retry.
func IsTransient(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Transient
	}
	return false
}

// HasCode reports whether err carries the given domain error code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, sql.ErrNoRows) {
		if de, ok := NewNotFound("resource", nil).(*DomainError); ok {
			return de
		}
	}
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}
