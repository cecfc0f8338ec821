// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package workerspool

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_ParallelFor(t *testing.T) {
	for _, parallelism := range []int{1, 4, -1} {
		pool := New(parallelism)
		var sum atomic.Int64
		pool.ParallelFor(100, func(i int) { sum.Add(int64(i)) })
		assert.Equalf(t, int64(4950), sum.Load(), "parallelism=%d", parallelism)
	}
	assert.Equal(t, -1, New(-3).MaxParallelism())

	var nilPool *Pool
	count := 0
	nilPool.ParallelFor(3, func(int) { count++ })
	assert.Equal(t, 3, count)
}

func TestPool_TryGo(t *testing.T) {
	pool := New(1)
	release := make(chan struct{})
	require.True(t, pool.TryGo(func() { <-release }))
	assert.Equal(t, 1, pool.NumRunning())
	assert.False(t, pool.TryGo(func() {}), "the only worker is busy")

	started := make(chan struct{})
	go pool.Go(func() { close(started) })
	select {
	case <-started:
		t.Fatal("Go started a task without a free worker")
	case <-time.After(10 * time.Millisecond):
	}
	close(release)
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for task")
	}
	require.Eventually(t, func() bool { return pool.NumRunning() == 0 }, time.Second, time.Millisecond)
}
