// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package workerspool implements the compute pool shared by the operators of an executioner. Ops that
// fan out their work borrow idle workers from the pool, and run inline what finds no free worker.
package workerspool

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Pool bounds the number of goroutines doing intra-op work across all the ops of an execution.
type Pool struct {
	maxParallelism int
	slots          chan struct{} // nil if unlimited.
	running        atomic.Int32
}

// New returns a Pool with the given parallelism: 0 uses runtime.NumCPU() and negative is unlimited.
func New(maxParallelism int) *Pool {
	if maxParallelism == 0 {
		maxParallelism = runtime.NumCPU()
	}
	p := &Pool{maxParallelism: maxParallelism}
	if maxParallelism > 0 {
		p.slots = make(chan struct{}, maxParallelism)
	}
	return p
}

// MaxParallelism returns the pool's limit of concurrent tasks, or -1 if unlimited.
func (p *Pool) MaxParallelism() int {
	if p.slots == nil {
		return -1
	}
	return p.maxParallelism
}

// NumRunning returns the number of tasks started by the pool and not yet finished.
func (p *Pool) NumRunning() int { return int(p.running.Load()) }

// TryGo starts task in a goroutine if a worker is free, and reports whether it did.
func (p *Pool) TryGo(task func()) bool {
	if p.slots != nil {
		select {
		case p.slots <- struct{}{}:
		default:
			return false
		}
	}
	p.running.Add(1)
	go func() {
		defer p.done()
		task()
	}()
	return true
}

// Go starts task in a goroutine, waiting for a free worker if needed.
func (p *Pool) Go(task func()) {
	if p.slots != nil {
		p.slots <- struct{}{}
	}
	p.running.Add(1)
	go func() {
		defer p.done()
		task()
	}()
}

func (p *Pool) done() {
	p.running.Add(-1)
	if p.slots != nil {
		<-p.slots
	}
}

// ParallelFor calls fn(i) for i in [0, n) and returns when all calls returned. Calls that find no
// free worker run on the calling goroutine. A nil Pool runs everything inline.
func (p *Pool) ParallelFor(n int, fn func(i int)) {
	if p == nil || n <= 1 {
		for i := range n {
			fn(i)
		}
		return
	}
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			fn(i)
		}
		if !p.TryGo(task) {
			task()
		}
	}
	wg.Wait()
}
