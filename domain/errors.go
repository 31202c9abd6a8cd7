package domain

import (
	"errors"
	"fmt"
)

// Code classifies a domain error. The API surface maps each code to a status.
type Code string

const (
	CodeInvalidInput       Code = "INVALID_INPUT"
	CodeNotFound           Code = "NOT_FOUND"
	CodeStorageUnavailable Code = "STORAGE_UNAVAILABLE"
	CodeCorruptRecord      Code = "CORRUPT_RECORD"
	CodeObjectNotFound     Code = "OBJECT_NOT_FOUND"
	CodeOracleTimeout      Code = "ORACLE_TIMEOUT"
	CodeOracleUnavailable  Code = "ORACLE_UNAVAILABLE"
	CodeNotSharedObject    Code = "NOT_SHARED_OBJECT"
	CodeInternal           Code = "INTERNAL"
)

// Sentinels for errors.Is. Matching is by code only.
var (
	ErrInvalidInput       = &Error{Code: CodeInvalidInput}
	ErrNotFound           = &Error{Code: CodeNotFound}
	ErrStorageUnavailable = &Error{Code: CodeStorageUnavailable}
	ErrCorruptRecord      = &Error{Code: CodeCorruptRecord}
	ErrObjectNotFound     = &Error{Code: CodeObjectNotFound}
	ErrOracleTimeout      = &Error{Code: CodeOracleTimeout}
	ErrOracleUnavailable  = &Error{Code: CodeOracleUnavailable}
	ErrNotSharedObject    = &Error{Code: CodeNotSharedObject}
)

// Error represents a failure in the service layer (store/oracle/validation).
// Message is safe to return to callers; Detail and Err are for logs only.
type Error struct {
	Code    Code
	Message string
	Detail  string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Detail)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New builds an error with a caller-visible message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap builds an error that keeps cause for logging.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Err: cause}
}

// CodeOf returns the code carried by err, or CodeInternal for foreign errors.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf returns the caller-visible message for err.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) && de.Message != "" {
		return de.Message
	}
	return "Internal server error"
}
