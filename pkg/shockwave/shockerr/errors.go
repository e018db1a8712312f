// Package shockerr provides a small error-code taxonomy wrapping the
// sentinel errors scattered across the http11/client/server/reactor/tls
// packages, so callers that need to branch on error category (rather
// than a specific sentinel) have one place to do it.
package shockerr

import (
	"errors"
	"fmt"
)

// Code classifies an error by the subsystem/nature of its failure.
type Code uint8

const (
	CodeGeneric Code = iota
	CodeParse
	CodeNetwork
	CodeMemory
	CodeFile
	CodeServer
	CodeClient
	CodeReactor
	CodeTLS
)

func (c Code) String() string {
	switch c {
	case CodeParse:
		return "parse"
	case CodeNetwork:
		return "network"
	case CodeMemory:
		return "memory"
	case CodeFile:
		return "file"
	case CodeServer:
		return "server"
	case CodeClient:
		return "client"
	case CodeReactor:
		return "reactor"
	case CodeTLS:
		return "tls"
	default:
		return "generic"
	}
}

// Error wraps an underlying error with a Code, supporting errors.Is/As
// against both the Error value itself and the wrapped cause.
type Error struct {
	Code Code
	Op   string // the operation that failed, e.g. "http11.ParseRequest"
	Err  error
}

// New creates an Error. Op should name the failing operation, not repeat
// the error message.
func New(code Code, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a *Error with the same Code, in addition
// to the standard Unwrap-based matching against Err.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Code == other.Code
	}
	return false
}

// CodeOf extracts the Code from err if it (or something it wraps) is a
// *Error, else returns CodeGeneric.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeGeneric
}

// Is is a convenience wrapper over errors.Is for callers that don't want
// to import both packages.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
