package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents the different failure classes a harvest can hit
type ErrorType string

const (
	ErrorTypeConfiguration ErrorType = "configuration"
	ErrorTypeProviderStart ErrorType = "provider_start"
	ErrorTypeProviderRun   ErrorType = "provider_run"
	ErrorTypeEmptyResult   ErrorType = "empty_result"
	ErrorTypeStore         ErrorType = "store"
	ErrorTypeTimeout       ErrorType = "timeout"
	ErrorTypeLeaseHeld     ErrorType = "lease_held"
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeNotFound      ErrorType = "not_found"
	ErrorTypeNetwork       ErrorType = "network"
	ErrorTypeAuth          ErrorType = "auth"
	ErrorTypeUnknown       ErrorType = "unknown"
)

// Error is a typed error. Error() returns only the message so that the text
// persisted into scraping logs stays readable.
type Error struct {
	Type    ErrorType
	Message string
	// Status carries the provider run status or HTTP status text, if any
	Status string
	Code   int
	Err    error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error of the given type
func New(t ErrorType, msg string) *Error {
	return &Error{Type: t, Message: msg}
}

// Newf creates an Error with a formatted message
func Newf(t ErrorType, format string, args ...interface{}) *Error {
	return &Error{Type: t, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps err into an Error of the given type. The message is prefixed
// with msg when msg is not empty.
func Wrap(t ErrorType, msg string, err error) *Error {
	if err == nil {
		return nil
	}
	m := err.Error()
	if msg != "" {
		m = msg + ": " + m
	}
	return &Error{Type: t, Message: m, Err: err}
}

// Configuration reports a missing or invalid credential/setting
func Configuration(msg string) *Error {
	return New(ErrorTypeConfiguration, msg)
}

// ProviderStart reports that the provider did not accept a run
func ProviderStart(msg string) *Error {
	return New(ErrorTypeProviderStart, msg)
}

// ProviderRun reports a run that reached a non-success terminal state
func ProviderRun(status string) *Error {
	return &Error{
		Type:    ErrorTypeProviderRun,
		Message: fmt.Sprintf("Apify actor run failed with status: %s", status),
		Status:  status,
	}
}

// EmptyResult reports a successful run without any posts
func EmptyResult() *Error {
	return New(ErrorTypeEmptyResult, "No data returned from Apify")
}

// Timeout reports a poll loop that ran out of time before the run finished
func Timeout(runID string, err error) *Error {
	return &Error{
		Type:    ErrorTypeTimeout,
		Message: fmt.Sprintf("timed out waiting for Apify run %s", runID),
		Err:     err,
	}
}

// LeaseHeld reports an account that is being processed by another invocation
func LeaseHeld(username string) *Error {
	return Newf(ErrorTypeLeaseHeld, "account %s is already being scraped by another invocation", username)
}

// Store wraps a failure of the backing store
func Store(op string, err error) *Error {
	return Wrap(ErrorTypeStore, op, err)
}

// Validation reports invalid admin input
func Validation(msg string) *Error {
	return New(ErrorTypeValidation, msg)
}

// NotFound reports a missing record
func NotFound(msg string) *Error {
	return New(ErrorTypeNotFound, msg)
}

// TypeOf returns the ErrorType of err, or ErrorTypeUnknown
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// Is reports whether err is an Error of type t
func Is(err error, t ErrorType) bool {
	return err != nil && TypeOf(err) == t
}
