// Package dberr holds the error taxonomy shared by the pool, the executor and
// the tool dispatcher.
package dberr

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"
)

type Kind string

const (
	UnknownTool         Kind = "UnknownTool"
	InvalidArgument     Kind = "InvalidArgument"
	PoolExhausted       Kind = "PoolExhausted"
	PoolUnavailable     Kind = "PoolUnavailable"
	ConnectionBroken    Kind = "ConnectionBroken"
	ConstraintViolation Kind = "ConstraintViolation"
	TransactionAborted  Kind = "TransactionAborted"
	InternalError       Kind = "InternalError"
)

type Error struct {
	Kind    Kind
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{e.Op, e.Message} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

func Wrap(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Cause: cause}
}

func Invalid(op, message string) *Error {
	return New(InvalidArgument, op, message)
}

// KindOf reports the kind of the first *Error in err's chain, or
// InternalError if there is none.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return InternalError
}

// IsConnectionError reports transport level failures that leave a session
// unusable regardless of the engine behind it.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
