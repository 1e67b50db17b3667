package types

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorClass splits delivery failures into the two retry policies.
type ErrorClass string

const (
	// ErrorClassTransient failures are retried per the backoff policy.
	ErrorClassTransient ErrorClass = "transient"
	// ErrorClassPermanent failures are dropped immediately and reported.
	ErrorClassPermanent ErrorClass = "permanent"
)

// ErrorCode categorizes a delivery failure.
type ErrorCode string

const (
	// Transient codes
	ErrCodeNetwork     ErrorCode = "NETWORK"
	ErrCodeTimeout     ErrorCode = "TIMEOUT"
	ErrCodeUnavailable ErrorCode = "UNAVAILABLE"

	// Permanent codes
	ErrCodeValidation   ErrorCode = "VALIDATION"
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeQuota        ErrorCode = "QUOTA"

	// Terminal outcomes raised by the queue itself
	ErrCodeRetriesExhausted ErrorCode = "RETRIES_EXHAUSTED"
	ErrCodeStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"
)

// DeliveryError is the classified error crossing the DeliveryTransport
// boundary. Classification happens where the backend's error shape is known,
// so the retry policy never has to sniff error strings.
type DeliveryError struct {
	Code    ErrorCode
	Class   ErrorClass
	Message string
	Cause   error
}

func (e *DeliveryError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DeliveryError) Unwrap() error {
	return e.Cause
}

// NewTransient creates a transient delivery error.
func NewTransient(code ErrorCode, message string) *DeliveryError {
	return &DeliveryError{Code: code, Class: ErrorClassTransient, Message: message}
}

// NewPermanent creates a permanent delivery error.
func NewPermanent(code ErrorCode, message string) *DeliveryError {
	return &DeliveryError{Code: code, Class: ErrorClassPermanent, Message: message}
}

// WrapTransient wraps an underlying error as transient.
func WrapTransient(err error, code ErrorCode, message string) *DeliveryError {
	return &DeliveryError{Code: code, Class: ErrorClassTransient, Message: message, Cause: err}
}

// WrapPermanent wraps an underlying error as permanent.
func WrapPermanent(err error, code ErrorCode, message string) *DeliveryError {
	return &DeliveryError{Code: code, Class: ErrorClassPermanent, Message: message, Cause: err}
}

// Classify returns the error class for a delivery failure. Unrecognized
// errors are transient: retrying a message beats silently dropping it.
func Classify(err error) ErrorClass {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Class
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrorClassTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorClassTransient
	}

	return ErrorClassTransient
}

// IsTransient reports whether the failure should be retried.
func IsTransient(err error) bool {
	return Classify(err) == ErrorClassTransient
}

// IsPermanent reports whether the failure will not succeed on retry.
func IsPermanent(err error) bool {
	return Classify(err) == ErrorClassPermanent
}

// CodeOf extracts the error code, defaulting to NETWORK for unclassified
// errors.
func CodeOf(err error) ErrorCode {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Code
	}
	return ErrCodeNetwork
}
