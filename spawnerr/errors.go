// Copyright 2026 The Spawn Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package spawnerr defines the error taxonomy shared across spawn's
// packages. Every kind below is a sentinel-compatible error type: callers
// distinguish them with errors.As, and the CLI boundary renders them with a
// short message by default, or a full cause chain under --debug.
package spawnerr

import "fmt"

// Code enumerates the kinds of failure spawn can report. It intentionally
// does not enumerate every Go error type in the program -- only the ones
// that change CLI exit behavior or that callers need to branch on.
type Code int

const (
	_ Code = iota
	ConfigError
	MigrationNotFound
	MigrationAmbiguous
	PinMissing
	PinCorrupt
	LockMissing
	TemplateError
	UnsafeValue
	EngineError
	Contended
	AlreadyApplied
	NotApplied
	TestDiff
	IOError
)

func (c Code) String() string {
	switch c {
	case ConfigError:
		return "ConfigError"
	case MigrationNotFound:
		return "MigrationNotFound"
	case MigrationAmbiguous:
		return "MigrationAmbiguous"
	case PinMissing:
		return "PinMissing"
	case PinCorrupt:
		return "PinCorrupt"
	case LockMissing:
		return "LockMissing"
	case TemplateError:
		return "TemplateError"
	case UnsafeValue:
		return "UnsafeValue"
	case EngineError:
		return "EngineError"
	case Contended:
		return "Contended"
	case AlreadyApplied:
		return "AlreadyApplied"
	case NotApplied:
		return "NotApplied"
	case TestDiff:
		return "TestDiff"
	case IOError:
		return "IOError"
	default:
		return "UnknownError"
	}
}

// Error is the common shape for all spawn error kinds: a Code callers can
// switch on, a short human Message, and an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same Code, so that
// errors.Is(err, spawnerr.New(spawnerr.Contended, "")) style checks work
// without comparing messages.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New constructs an *Error with no wrapped cause.
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an *Error that carries cause as its chain.
func Wrap(code Code, cause error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// IsCode reports whether err is (or wraps) an *Error with the given code.
func IsCode(err error, code Code) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Code == code {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// ExitCode maps a Code to the process exit code spawn's CLI documents.
func (c Code) ExitCode() int {
	switch c {
	case ConfigError, MigrationNotFound, MigrationAmbiguous:
		return 2
	case EngineError:
		return 3
	case Contended:
		return 4
	case TestDiff:
		return 5
	default:
		return 1
	}
}
