// Package dhterr implements the error taxonomy from spec.md §7 as a small
// code + cause wrapper, adapted from ethereum-go-ethereum/errs's
// Package/code/Level registry — modernized to wrap a cause via the standard
// errors.Is/errors.As machinery instead of go-ethereum's fmt.Stringer-only
// approach, since that's how the rest of the Go ecosystem (and this
// module's own callers) expects to inspect errors.
package dhterr

import (
	"errors"
	"fmt"
)

// Code names one axis of the taxonomy. The numeric values are stable API:
// they may be logged or exported as metric labels.
type Code int

const (
	CodeNotStarted Code = iota
	CodeClosed
	CodeNetwork
	CodeTimeout
	CodeProtocol
	CodeRouting
	CodeValidation
	CodeSignature
	CodeBootstrap
	CodeMaxRetriesExceeded
	CodeCancelled
	CodeNotFound
	CodeNoProviders
	CodeAllPeersUnreachable
	CodeInvalidRecordType
	CodeConfig
)

var names = map[Code]string{
	CodeNotStarted:          "NotStarted",
	CodeClosed:              "Closed",
	CodeNetwork:             "Network",
	CodeTimeout:             "Timeout",
	CodeProtocol:            "Protocol",
	CodeRouting:             "Routing",
	CodeValidation:          "Validation",
	CodeSignature:           "Signature",
	CodeBootstrap:           "Bootstrap",
	CodeMaxRetriesExceeded:  "MaxRetriesExceeded",
	CodeCancelled:           "Cancelled",
	CodeNotFound:            "NotFound",
	CodeNoProviders:         "NoProviders",
	CodeAllPeersUnreachable: "AllPeersUnreachable",
	CodeInvalidRecordType:   "InvalidRecordType",
	CodeConfig:              "Config",
}

func (c Code) String() string {
	if n, ok := names[c]; ok {
		return n
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

// Error is the wrapped-error shape every subsystem returns: a code for
// programmatic dispatch, the component that raised it, and (usually) a
// cause.
type Error struct {
	Code      Code
	Component string
	Cause     error
	Detail    string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		if e.Detail != "" {
			return fmt.Sprintf("[%s] %s: %s: %v", e.Component, e.Code, e.Detail, e.Cause)
		}
		return fmt.Sprintf("[%s] %s: %v", e.Component, e.Code, e.Cause)
	}
	if e.Detail != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Component, e.Code, e.Detail)
	}
	return fmt.Sprintf("[%s] %s", e.Component, e.Code)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error with a formatted detail message.
func New(component string, code Code, format string, args ...any) *Error {
	return &Error{Component: component, Code: code, Detail: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error that carries cause.
func Wrap(component string, code Code, cause error) *Error {
	return &Error{Component: component, Code: code, Cause: cause}
}

// Is lets errors.Is match purely on Code, ignoring Component/Cause/Detail,
// so callers can write `errors.Is(err, dhterr.CodeError(dhterr.CodeTimeout))`-style
// checks via CodeError (below) without caring which component raised it.
type CodeError Code

func (c CodeError) Error() string { return Code(c).String() }

func (e *Error) Is(target error) bool {
	if ce, ok := target.(CodeError); ok {
		return e.Code == Code(ce)
	}
	return false
}

// MaxRetriesExceeded wraps the last cause of a retry loop together with the
// number of attempts made, per spec.md §4.7/§7.
type MaxRetriesExceeded struct {
	Attempts int
	Cause    error
}

func (e *MaxRetriesExceeded) Error() string {
	return fmt.Sprintf("max retries exceeded after %d attempts: %v", e.Attempts, e.Cause)
}

func (e *MaxRetriesExceeded) Unwrap() error { return e.Cause }

func (e *MaxRetriesExceeded) Is(target error) bool {
	if ce, ok := target.(CodeError); ok {
		return Code(ce) == CodeMaxRetriesExceeded
	}
	return false
}

// Sentinel codes usable directly with errors.Is, e.g.
// errors.Is(err, dhterr.NotFound).
var (
	NotStarted          = CodeError(CodeNotStarted)
	Closed              = CodeError(CodeClosed)
	Network             = CodeError(CodeNetwork)
	Timeout             = CodeError(CodeTimeout)
	Protocol            = CodeError(CodeProtocol)
	Routing             = CodeError(CodeRouting)
	Validation          = CodeError(CodeValidation)
	Signature           = CodeError(CodeSignature)
	Bootstrap           = CodeError(CodeBootstrap)
	MaxRetries          = CodeError(CodeMaxRetriesExceeded)
	Cancelled           = CodeError(CodeCancelled)
	NotFound            = CodeError(CodeNotFound)
	NoProviders         = CodeError(CodeNoProviders)
	AllPeersUnreachable = CodeError(CodeAllPeersUnreachable)
	InvalidRecordType   = CodeError(CodeInvalidRecordType)
)

// IsRetryable reports whether err is one of the "reachable but transient"
// classes the RPC client retries (spec.md §4.7): Network or Timeout, but
// never Protocol.
func IsRetryable(err error) bool {
	return errors.Is(err, Network) || errors.Is(err, Timeout)
}
