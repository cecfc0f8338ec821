// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package sets

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet(t *testing.T) {
	frames := Make[int](4)
	assert.Empty(t, frames)
	frames.Insert(12, 3, 12)
	assert.Equal(t, []int{3, 12}, Sorted(frames))
	assert.True(t, frames.Has(3))
	assert.False(t, frames.Has(4))

	assert.True(t, frames.Equal(MakeWith(3, 12)))
	assert.False(t, frames.Equal(MakeWith(3)))
	assert.False(t, frames.Equal(MakeWith(3, 4)))

	frames.Remove(12, 100)
	assert.Equal(t, []int{3}, Sorted(frames))
	assert.Empty(t, Sorted(Make[string]()))
}
