// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package status

import (
	"context"
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestCodeNames(t *testing.T) {
	assert.Equal(t, "ok", OK.String())
	assert.Equal(t, "cycle-without-rewind", CycleWithoutRewind.String())
	assert.Equal(t, "duplicate-node-id", DuplicateNodeID.String())
	assert.Equal(t, "iteration-cap-exceeded", IterationCapExceeded.String())
	code, err := CodeString("Out-Of-Memory")
	require.NoError(t, err)
	assert.Equal(t, OutOfMemory, code)
	_, err = CodeString("nope")
	require.Error(t, err)
	assert.Len(t, CodeValues(), 13)
	assert.False(t, Code(100).IsACode())
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, OK, CodeOf(nil))
	assert.Equal(t, OpFailed, CodeOf(errors.New("plain")))
	assert.Equal(t, Cancelled, CodeOf(errors.Wrap(context.DeadlineExceeded, "while waiting")))

	err := NodeErrorf(MissingInput, 3, "input #%d not found", 1)
	assert.Equal(t, MissingInput, CodeOf(err))
	assert.Equal(t, 3, NodeOf(err))
	assert.Equal(t, "missing-input (node #3): input #1 not found", err.Error())
	assert.Contains(t, fmt.Sprintf("%+v", err), "status_test.go")

	wrapped := errors.WithMessage(err, "while executing")
	assert.True(t, Is(wrapped, MissingInput))
	assert.Equal(t, NoNode, NodeOf(errors.New("plain")))
}

func TestOpFailed(t *testing.T) {
	inner := Errorf(TypeMismatch, "wrong dtype")
	err := OpFailedError(5, inner)
	var statusErr *Error
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, OpFailed, statusErr.Code)
	assert.Equal(t, TypeMismatch, statusErr.InnerCode())
	assert.Equal(t, OpFailed, OpFailedError(1, errors.New("x")).(*Error).InnerCode())

	// Wrap keeps existing codes and fills in the node.
	rewrapped := Wrap(inner, OpFailed, 7)
	assert.Equal(t, TypeMismatch, CodeOf(rewrapped))
	assert.Equal(t, 7, NodeOf(rewrapped))
	assert.Nil(t, Wrap(nil, OpFailed, 1))
}

func TestCombinedErrors(t *testing.T) {
	combined := multierr.Combine(
		OpFailedError(2, errors.New("first")),
		NodeErrorf(OutOfMemory, 4, "second"))
	assert.Equal(t, OpFailed, CodeOf(combined))
	assert.Equal(t, 2, NodeOf(combined))
}
