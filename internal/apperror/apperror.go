// Package apperror defines the error taxonomy shared by the engines and the
// HTTP layer.  Business rejections are *AppError values with a stable code and
// an HTTP status; infrastructure failures are wrapped as Internal or
// Unavailable so handlers never leak driver messages to clients.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeInvalidRequest      = "INVALID_REQUEST"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeNotFound            = "NOT_FOUND"
	CodeInternal            = "INTERNAL_ERROR"
	CodeUnavailable         = "SERVICE_UNAVAILABLE"
	CodeNoAdjacentSeats     = "NO_ADJACENT_SEATS"
	CodeInsufficientSeats   = "INSUFFICIENT_SEATS"
	CodeSessionExpired      = "SESSION_EXPIRED"
	CodeNotInQueue          = "NOT_IN_QUEUE"
	CodeHoldForbidden       = "HOLD_NOT_FOUND_OR_FORBIDDEN"
	CodeCheckoutNotAllowed  = "CHECKOUT_NOT_ALLOWED"
	CodePaymentNotAllowed   = "PAYMENT_NOT_ALLOWED"
	CodeBookingNotFound     = "BOOKING_NOT_FOUND"
	CodeTicketsNotAvailable = "TICKETS_NOT_AVAILABLE"
	CodeEventNotFound       = "EVENT_NOT_FOUND"
)

type AppError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	HTTPStatus int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
	Err        error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// Is matches on Code so a sentinel compares equal to a copy carrying a cause
// or details.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithDetails returns a copy with details attached; sentinels stay untouched.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

func New(code, message string, httpStatus int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus}
}

// Wrap attaches a cause that is logged but never sent to the client.
func Wrap(err error, code, message string, httpStatus int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus, Err: err}
}

func InvalidRequest(message string) *AppError {
	return New(CodeInvalidRequest, message, http.StatusBadRequest)
}

func Unauthorized(message string) *AppError {
	return New(CodeUnauthorized, message, http.StatusUnauthorized)
}

func Forbidden(message string) *AppError {
	return New(CodeForbidden, message, http.StatusForbidden)
}

func NotFound(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func Internal(message string, err error) *AppError {
	return Wrap(err, CodeInternal, message, http.StatusInternalServerError)
}

// Unavailable marks a retryable infrastructure failure (Redis, Kafka, broker).
func Unavailable(service string, err error) *AppError {
	return Wrap(err, CodeUnavailable, fmt.Sprintf("%s is temporarily unavailable", service), http.StatusServiceUnavailable)
}

// AsAppError unwraps err to an *AppError, falling back to a generic internal
// error for anything unclassified.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal("internal server error", err)
}

// IsBusiness reports whether err is an expected rejection (4xx) rather than
// an infrastructure failure.
func IsBusiness(err error) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.HTTPStatus >= 400 && appErr.HTTPStatus < 500
}
