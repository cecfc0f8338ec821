// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/zwb12580/deeplearning4j/pkg/core/shapes"
	"github.com/zwb12580/deeplearning4j/pkg/core/tensors"
	"github.com/zwb12580/deeplearning4j/pkg/status"
)

// Variable is a slot of a VariableSpace: a tensor produced by a node output (or an external variable)
// plus its metadata.
type Variable struct {
	key                Pair
	name               string
	tensor             *tensors.Tensor
	frameID, iteration int

	// remaining consumers before the variable can be released, 0 if it is not reference counted.
	remaining atomic.Int32
	pinned    atomic.Bool
}

// NewVariable creates a free standing variable, e.g. a declaration or a graph output descriptor.
// The tensor may be nil.
func NewVariable(key Pair, name string, tensor *tensors.Tensor) *Variable {
	return &Variable{key: key, name: name, tensor: tensor, frameID: -1}
}

// Key of the variable: the producing node id (negative for external variables) and output index.
func (v *Variable) Key() Pair { return v.key }

// ID of the producer of the variable.
func (v *Variable) ID() int { return v.key.ID }

// Index of the output of the producer.
func (v *Variable) Index() int { return v.key.Index }

// Name of the variable, it may be empty.
func (v *Variable) Name() string { return v.name }

// Tensor held by the variable, nil for declarations.
func (v *Variable) Tensor() *tensors.Tensor { return v.tensor }

// HasTensor returns whether the variable holds a value.
func (v *Variable) HasTensor() bool { return v.tensor != nil }

// Shape of the tensor, or shapes.Invalid() if the variable has no tensor.
func (v *Variable) Shape() shapes.Shape {
	if v.tensor == nil {
		return shapes.Invalid()
	}
	return v.tensor.Shape()
}

// FrameID and Iteration of the space the variable was written to.
func (v *Variable) FrameID() int { return v.frameID }

// Iteration of the loop frame the variable was written in, 0 outside loops.
func (v *Variable) Iteration() int { return v.iteration }

// Remaining returns the number of consumers that have not released the variable yet.
func (v *Variable) Remaining() int { return int(v.remaining.Load()) }

// IsPinned returns whether the variable is protected from release.
func (v *Variable) IsPinned() bool { return v.pinned.Load() }

// String implements fmt.Stringer.
func (v *Variable) String() string {
	name := v.key.String()
	if v.name != "" {
		name = fmt.Sprintf("%s %q", name, v.name)
	}
	return fmt.Sprintf("Variable(%s, frame=%d, iteration=%d): %s", name, v.frameID, v.iteration, v.tensor)
}

// numShards of a VariableSpace. Nodes of the same layer write to the space concurrently.
const numShards = 16

type shard struct {
	mu        sync.RWMutex
	variables map[Pair]*Variable

	// skipped holds the markers of outputs that were not produced. They are not variables: only
	// Slot sees them.
	skipped map[Pair]*Variable
}

// VariableSpace stores the variables of a graph execution, for one loop frame iteration.
//
// Each slot is written once: a slot is identified by (FrameID, Iteration) of the space plus the
// variable key. Spaces branched from another one (see Branch) look through to their parent for reads:
// writes always go to the space itself, so a parent is never written through its children.
//
// It is safe for concurrent use.
type VariableSpace struct {
	frameID, iteration int
	parent             *VariableSpace

	shards [numShards]shard

	namesMu sync.RWMutex
	names   map[string]Pair
}

// NewVariableSpace creates an empty root space (frame -1).
func NewVariableSpace() *VariableSpace {
	return newVariableSpace(nil, -1, 0)
}

func newVariableSpace(parent *VariableSpace, frameID, iteration int) *VariableSpace {
	vs := &VariableSpace{
		frameID:   frameID,
		iteration: iteration,
		parent:    parent,
		names:     make(map[string]Pair),
	}
	for i := range vs.shards {
		vs.shards[i].variables = make(map[Pair]*Variable)
		vs.shards[i].skipped = make(map[Pair]*Variable)
	}
	return vs
}

// Branch creates a child space for the given frame iteration: reads fall through to vs, writes shadow
// its entries.
func (vs *VariableSpace) Branch(frameID, iteration int) *VariableSpace {
	return newVariableSpace(vs, frameID, iteration)
}

// FrameID of the space, -1 for root spaces.
func (vs *VariableSpace) FrameID() int { return vs.frameID }

// Iteration of the frame of the space.
func (vs *VariableSpace) Iteration() int { return vs.iteration }

// Parent space, nil for a root space.
func (vs *VariableSpace) Parent() *VariableSpace { return vs.parent }

func (vs *VariableSpace) shardOf(key Pair) *shard {
	h := uint64(key.ID)*0x9E3779B97F4A7C15 ^ uint64(key.Index)*0xBF58476D1CE4E5B9
	return &vs.shards[(h>>32)%numShards]
}

// Put stores tensor under key. A second write to the same key of the same space fails with
// status.DoubleWrite.
func (vs *VariableSpace) Put(key Pair, tensor *tensors.Tensor) (*Variable, error) {
	return vs.PutWithConsumers(key, "", tensor, 0)
}

// PutNamed stores tensor under key and name. See Put.
func (vs *VariableSpace) PutNamed(key Pair, name string, tensor *tensors.Tensor) (*Variable, error) {
	return vs.PutWithConsumers(key, name, tensor, 0)
}

// PutWithConsumers stores tensor under key, reference counted with the given number of consumers:
// after consumers calls to Release the variable is dropped, unless it is pinned.
// A zero count means the variable is not reference counted.
func (vs *VariableSpace) PutWithConsumers(key Pair, name string, tensor *tensors.Tensor, consumers int) (*Variable, error) {
	v := &Variable{key: key, name: name, tensor: tensor, frameID: vs.frameID, iteration: vs.iteration}
	v.remaining.Store(int32(consumers))
	if err := vs.store(v, false); err != nil {
		return nil, err
	}
	if name != "" {
		vs.namesMu.Lock()
		vs.names[name] = key
		vs.namesMu.Unlock()
	}
	return v, nil
}

// PutSkipped marks the output key as not produced in this space: a node that didn't run. The marker
// occupies the slot (a later Put fails with status.DoubleWrite) and is returned by Slot, but Get, Has
// and Variables don't report it.
func (vs *VariableSpace) PutSkipped(key Pair) error {
	return vs.store(&Variable{key: key, frameID: vs.frameID, iteration: vs.iteration}, true)
}

func (vs *VariableSpace) store(v *Variable, skipped bool) error {
	s := vs.shardOf(v.key)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, found := s.variables[v.key]
	if _, marked := s.skipped[v.key]; found || marked {
		return status.NodeErrorf(status.DoubleWrite, v.key.ID,
			"variable %s already written in frame %d iteration %d", v.key, vs.frameID, vs.iteration)
	}
	if skipped {
		s.skipped[v.key] = v
	} else {
		s.variables[v.key] = v
	}
	return nil
}

// Slot returns what is stored under key in this space (not its parents): a variable, or a skip
// marker (a Variable without tensor) written by PutSkipped.
func (vs *VariableSpace) Slot(key Pair) (*Variable, bool) {
	s := vs.shardOf(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, found := s.variables[key]; found {
		return v, true
	}
	v, found := s.skipped[key]
	return v, found
}

// GetLocal returns the variable stored in this space, without looking into parent spaces.
func (vs *VariableSpace) GetLocal(key Pair) (*Variable, bool) {
	s := vs.shardOf(key)
	s.mu.RLock()
	v, found := s.variables[key]
	s.mu.RUnlock()
	return v, found
}

// Get returns the variable for key, looking up the parent spaces if not found in vs.
func (vs *VariableSpace) Get(key Pair) (*Variable, bool) {
	for space := vs; space != nil; space = space.parent {
		if v, found := space.GetLocal(key); found {
			return v, true
		}
	}
	return nil, false
}

// Has returns whether key is visible from vs.
func (vs *VariableSpace) Has(key Pair) bool {
	_, found := vs.Get(key)
	return found
}

// GetByName returns the variable stored with the given name, looking up the parent spaces.
func (vs *VariableSpace) GetByName(name string) (*Variable, bool) {
	for space := vs; space != nil; space = space.parent {
		space.namesMu.RLock()
		key, found := space.names[name]
		space.namesMu.RUnlock()
		if found {
			if v, found := space.GetLocal(key); found {
				return v, true
			}
		}
	}
	return nil, false
}

// Drop removes the variable (or skip marker) from this space. It returns whether it was present.
func (vs *VariableSpace) Drop(key Pair) bool {
	s := vs.shardOf(key)
	s.mu.Lock()
	v, found := s.variables[key]
	delete(s.variables, key)
	if _, marked := s.skipped[key]; marked {
		delete(s.skipped, key)
		found = true
	}
	s.mu.Unlock()
	if v != nil && v.name != "" {
		vs.namesMu.Lock()
		if vs.names[v.name] == key {
			delete(vs.names, v.name)
		}
		vs.namesMu.Unlock()
	}
	return found
}

// Pin protects the variable (stored in this space) from being released.
func (vs *VariableSpace) Pin(key Pair) {
	if v, found := vs.GetLocal(key); found {
		v.pinned.Store(true)
	}
}

// Release decrements the consumer count of the variable stored in this space, and drops it when it
// reaches zero, unless it is pinned. It returns whether the variable was dropped.
func (vs *VariableSpace) Release(key Pair) bool {
	v, found := vs.GetLocal(key)
	if !found || v.remaining.Load() <= 0 {
		return false
	}
	if v.remaining.Add(-1) > 0 || v.pinned.Load() {
		return false
	}
	return vs.Drop(key)
}

// Len returns the number of variables stored in this space, excluding parents.
func (vs *VariableSpace) Len() int {
	var count int
	for i := range vs.shards {
		s := &vs.shards[i]
		s.mu.RLock()
		count += len(s.variables)
		s.mu.RUnlock()
	}
	return count
}

// Variables returns the variables stored in this space (excluding parents), sorted by key.
func (vs *VariableSpace) Variables() []*Variable {
	var variables []*Variable
	for i := range vs.shards {
		s := &vs.shards[i]
		s.mu.RLock()
		for _, v := range s.variables {
			variables = append(variables, v)
		}
		s.mu.RUnlock()
	}
	slices.SortFunc(variables, func(a, b *Variable) int { return comparePairs(a.key, b.key) })
	return variables
}

func comparePairs(a, b Pair) int {
	if c := cmp.Compare(a.ID, b.ID); c != 0 {
		return c
	}
	return cmp.Compare(a.Index, b.Index)
}
