// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zwb12580/deeplearning4j/pkg/core/tensors"
	"github.com/zwb12580/deeplearning4j/pkg/status"
)

func TestVariableSpace_SingleAssignment(t *testing.T) {
	vs := NewVariableSpace()
	key := Pair{3, 0}
	_, err := vs.Put(key, tensors.FromScalar(int32(1)))
	require.NoError(t, err)
	_, err = vs.Put(key, tensors.FromScalar(int32(2)))
	require.Error(t, err)
	assert.Equal(t, status.DoubleWrite, status.CodeOf(err))
	assert.Equal(t, 3, status.NodeOf(err))

	// Another iteration of the frame is another slot.
	iteration1 := vs.Branch(1, 1)
	_, err = iteration1.Put(key, tensors.FromScalar(int32(3)))
	require.NoError(t, err)
	v, found := iteration1.Get(key)
	require.True(t, found)
	assert.Equal(t, int32(3), v.Tensor().Value())
	assert.Equal(t, 1, v.FrameID())
	assert.Equal(t, 1, v.Iteration())

	// The parent is never written through its children.
	v, found = vs.Get(key)
	require.True(t, found)
	assert.Equal(t, int32(1), v.Tensor().Value())
}

func TestVariableSpace_Branch(t *testing.T) {
	root := NewVariableSpace()
	_, err := root.PutNamed(Pair{-1, 0}, "x", tensors.FromScalar(1.0))
	require.NoError(t, err)
	child := root.Branch(2, 0)
	assert.True(t, child.Has(Pair{-1, 0}))
	_, found := child.GetLocal(Pair{-1, 0})
	assert.False(t, found)
	v, found := child.GetByName("x")
	require.True(t, found)
	assert.Equal(t, Pair{-1, 0}, v.Key())

	assert.False(t, child.Drop(Pair{-1, 0}), "drop only affects the space itself")
	assert.True(t, root.Drop(Pair{-1, 0}))
	assert.False(t, child.Has(Pair{-1, 0}))
	_, found = root.GetByName("x")
	assert.False(t, found)
	assert.Same(t, root, child.Parent())
}

func TestVariableSpace_Skipped(t *testing.T) {
	vs := NewVariableSpace()
	require.NoError(t, vs.PutSkipped(Pair{4, 0}))
	assert.False(t, vs.Has(Pair{4, 0}))
	_, found := vs.Get(Pair{4, 0})
	assert.False(t, found)
	assert.Empty(t, vs.Variables())
	assert.Zero(t, vs.Len())

	marker, found := vs.Slot(Pair{4, 0})
	require.True(t, found)
	assert.False(t, marker.HasTensor())

	// The marker occupies the slot.
	_, err := vs.Put(Pair{4, 0}, tensors.FromScalar(1.0))
	assert.Equal(t, status.DoubleWrite, status.CodeOf(err))
	assert.Equal(t, status.DoubleWrite, status.CodeOf(vs.PutSkipped(Pair{4, 0})))

	// Children see it through Slot only on the space holding it.
	child := vs.Branch(1, 0)
	_, found = child.Slot(Pair{4, 0})
	assert.False(t, found)
	assert.True(t, vs.Drop(Pair{4, 0}))
	_, found = vs.Slot(Pair{4, 0})
	assert.False(t, found)
}

func TestVariableSpace_Release(t *testing.T) {
	vs := NewVariableSpace()
	_, err := vs.PutWithConsumers(Pair{1, 0}, "", tensors.FromScalar(1.0), 2)
	require.NoError(t, err)
	assert.False(t, vs.Release(Pair{1, 0}))
	assert.True(t, vs.Has(Pair{1, 0}))
	assert.True(t, vs.Release(Pair{1, 0}))
	assert.False(t, vs.Has(Pair{1, 0}))

	// Pinned variables (graph outputs) survive their consumers.
	_, err = vs.PutWithConsumers(Pair{2, 0}, "", tensors.FromScalar(1.0), 1)
	require.NoError(t, err)
	vs.Pin(Pair{2, 0})
	assert.False(t, vs.Release(Pair{2, 0}))
	assert.True(t, vs.Has(Pair{2, 0}))

	// Variables without consumer count are never released.
	_, err = vs.Put(Pair{3, 0}, tensors.FromScalar(1.0))
	require.NoError(t, err)
	assert.False(t, vs.Release(Pair{3, 0}))
	assert.True(t, vs.Has(Pair{3, 0}))
}

func TestVariableSpace_Concurrent(t *testing.T) {
	vs := NewVariableSpace()
	const numWriters = 64
	var wg sync.WaitGroup
	errs := make([]error, numWriters)
	for i := range numWriters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = vs.Put(Pair{i, 0}, tensors.FromScalar(int64(i)))
			_, _ = vs.Get(Pair{(i + 1) % numWriters, 0})
		}()
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, numWriters, vs.Len())
	variables := vs.Variables()
	require.Len(t, variables, numWriters)
	for i, v := range variables {
		assert.Equal(t, i, v.ID())
	}
}
