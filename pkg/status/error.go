// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package status

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// NoNode is the Error.NodeID used when an error is not associated to a node.
const NoNode = -1 << 31

// Error carries a status Code, optionally the id of the node that caused it and the inner error with
// the details (and stack trace, see github.com/pkg/errors).
type Error struct {
	Code   Code
	NodeID int
	Inner  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Code.String()
	if e.NodeID != NoNode {
		msg = fmt.Sprintf("%s (node #%d)", msg, e.NodeID)
	}
	if e.Inner != nil {
		msg = msg + ": " + e.Inner.Error()
	}
	return msg
}

// Unwrap returns the inner error.
func (e *Error) Unwrap() error { return e.Inner }

// Format implements fmt.Formatter: "%+v" prints the inner error stack trace, if there is one.
func (e *Error) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') && e.Inner != nil {
		_, _ = fmt.Fprintf(s, "%s\n%+v", e.Error(), e.Inner)
		return
	}
	_, _ = fmt.Fprint(s, e.Error())
}

// InnerCode returns the code of the inner error, for OpFailed errors. It is OpFailed if the inner error
// carries no code.
func (e *Error) InnerCode() Code {
	if e.Inner == nil {
		return OK
	}
	return CodeOf(e.Inner)
}

// Errorf returns an error with the given code and a formatted message.
func Errorf(code Code, format string, args ...any) error {
	return &Error{Code: code, NodeID: NoNode, Inner: errors.Errorf(format, args...)}
}

// NodeErrorf returns an error with the given code associated to the node with the given id.
func NodeErrorf(code Code, nodeID int, format string, args ...any) error {
	return &Error{Code: code, NodeID: nodeID, Inner: errors.Errorf(format, args...)}
}

// Wrap returns err annotated with code and nodeID (use NoNode if not associated with a node).
// If err already carries a code, it is kept and only the node id is filled in if missing.
func Wrap(err error, code Code, nodeID int) error {
	if err == nil {
		return nil
	}
	var statusErr *Error
	if errors.As(err, &statusErr) {
		if statusErr.NodeID == NoNode && nodeID != NoNode {
			return &Error{Code: statusErr.Code, NodeID: nodeID, Inner: statusErr.Inner}
		}
		return err
	}
	return &Error{Code: code, NodeID: nodeID, Inner: err}
}

// OpFailedError wraps the error returned (or panicked) by the operator of the node nodeID.
func OpFailedError(nodeID int, err error) error {
	return &Error{Code: OpFailed, NodeID: nodeID, Inner: err}
}

// CodeOf returns the Code carried by err: OK for nil, Cancelled for context errors and OpFailed for
// errors with no code.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var statusErr *Error
	if errors.As(err, &statusErr) {
		return statusErr.Code
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Cancelled
	}
	return OpFailed
}

// NodeOf returns the node id associated with err, or NoNode.
func NodeOf(err error) int {
	var statusErr *Error
	if errors.As(err, &statusErr) {
		return statusErr.NodeID
	}
	return NoNode
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
