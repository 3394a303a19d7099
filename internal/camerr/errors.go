// Package camerr defines the numeric error contract shared by the camera
// node's command surface. Zero means success, negative codes follow the
// vendor SDK numbering so clients can match on them directly.
package camerr

import (
	"context"
	"errors"
	"fmt"
)

// Code is a vendor-compatible error code.
type Code int

// Error codes.
const (
	CodeSuccess       Code = 0
	CodeInternalFault Code = -1
	CodeNotFound      Code = -3
	CodeDeviceNotOpen Code = -5
	CodeBadParameter  Code = -7
	CodeInvalidValue  Code = -11
	CodeTimeout       Code = -12
	CodeOther         Code = -13
	CodeInvalidCall   Code = -15
)

// Aliases used by the stream logic.
const (
	CodeInvalidOperation   = CodeInvalidCall
	CodeBackendUnavailable = CodeDeviceNotOpen
	CodeUnknown            = CodeOther
)

var codeNames = map[Code]string{
	CodeSuccess:       "Success",
	CodeInternalFault: "InternalFault",
	CodeNotFound:      "NotFound",
	CodeDeviceNotOpen: "DeviceNotOpen",
	CodeBadParameter:  "BadParameter",
	CodeInvalidValue:  "InvalidValue",
	CodeTimeout:       "Timeout",
	CodeOther:         "Other",
	CodeInvalidCall:   "InvalidCall",
}

// String returns the symbolic name of the code.
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

// Error is a domain error carrying a vendor code.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%d): %s: %v", e.Code, int(e.Code), e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%d): %s", e.Code, int(e.Code), e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an error with the given code.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf extracts the code from err. nil maps to CodeSuccess, expired or
// cancelled contexts to CodeTimeout and anything uncategorized to CodeUnknown.
func CodeOf(err error) Code {
	if err == nil {
		return CodeSuccess
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return CodeTimeout
	}
	return CodeUnknown
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// Status is the {code, text} pair returned by every command.
type Status struct {
	Code int    `json:"code" example:"0" doc:"Zero on success, negative vendor error code otherwise"`
	Text string `json:"text" example:"" doc:"Human readable error description"`
}

// OK reports whether the status is a success.
func (s Status) OK() bool {
	return s.Code == int(CodeSuccess)
}

// ToStatus converts err into the wire status pair.
func ToStatus(err error) Status {
	if err == nil {
		return Status{}
	}
	return Status{Code: int(CodeOf(err)), Text: err.Error()}
}
