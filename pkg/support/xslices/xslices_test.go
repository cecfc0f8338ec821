// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package xslices

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMap(t *testing.T) {
	assert.Equal(t, []int{2, 4, 6}, Map([]int{1, 2, 3}, func(e int) int { return 2 * e }))
	assert.Empty(t, Map([]string{}, func(e string) int { return len(e) }))
}

func TestMaxSum(t *testing.T) {
	assert.Equal(t, 7, Max([]int{3, 7, -1}))
	assert.Equal(t, 0, Max[int](nil))
	assert.Equal(t, 9, Sum([]int{3, 7, -1}))
	assert.Equal(t, 3*time.Second, Sum([]time.Duration{time.Second, 2 * time.Second}))
}

func TestJoin(t *testing.T) {
	assert.Equal(t, "1, 2, 3", Join([]int{1, 2, 3}, ", ", 0))
	assert.Equal(t, "1 2 …", Join([]int{1, 2, 3}, " ", 2))
	assert.Equal(t, "", Join([]float32{}, ",", 3))
}
