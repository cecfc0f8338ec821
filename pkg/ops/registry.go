// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ops

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"k8s.io/klog/v2"
)

type primitiveKey struct {
	opType OpType
	opNum  int
}

// Registry maps (OpType, opNum) pairs and custom op names to operators.
//
// Registration happens during initialization (init functions). The first lookup freezes the registry:
// from then on it is immutable and lookups are lock-free.
type Registry struct {
	mu         sync.Mutex
	freezeOnce sync.Once
	frozen     atomic.Bool
	primitives map[primitiveKey]DeclarableOp
	custom     map[string]DeclarableOp
}

// NewRegistry returns an empty Registry. Most users want the process-wide registry, accessed with
// the package functions Register, RegisterCustom, Lookup and LookupCustom.
func NewRegistry() *Registry {
	return &Registry{
		primitives: make(map[primitiveKey]DeclarableOp),
		custom:     make(map[string]DeclarableOp),
	}
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry.
func Default() *Registry { return defaultRegistry }

// Register op as the implementation of (opType, opNum) in the process-wide registry.
// It panics if the pair is already registered, or if the registry is frozen.
func Register(opType OpType, opNum int, op DeclarableOp) { defaultRegistry.Register(opType, opNum, op) }

// RegisterCustom registers op by its descriptor name in the process-wide registry.
func RegisterCustom(op DeclarableOp) { defaultRegistry.RegisterCustom(op) }

// Lookup the operator for (opType, opNum) in the process-wide registry.
func Lookup(opType OpType, opNum int) (DeclarableOp, bool) { return defaultRegistry.Lookup(opType, opNum) }

// LookupCustom looks up a custom operator by name in the process-wide registry.
func LookupCustom(name string) (DeclarableOp, bool) { return defaultRegistry.LookupCustom(name) }

// Register op as the implementation of (opType, opNum).
func (r *Registry) Register(opType OpType, opNum int, op DeclarableOp) {
	if !opType.IsAOpType() || opType == OpTypeCustom || opType == OpTypeGraph {
		panic(errors.Errorf("ops.Register: invalid op type %s for primitive op #%d", opType, opNum))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen.Load() {
		panic(errors.Errorf("ops.Register(%s, %d): registry is frozen, ops must be registered during initialization",
			opType, opNum))
	}
	key := primitiveKey{opType, opNum}
	if _, found := r.primitives[key]; found {
		panic(errors.Errorf("ops.Register(%s, %d): op already registered", opType, opNum))
	}
	r.primitives[key] = op
	klog.V(4).Infof("registered op %s/%d (%q)", opType, opNum, op.Describe().Name)
}

// RegisterCustom registers op by its descriptor name.
func (r *Registry) RegisterCustom(op DeclarableOp) {
	name := op.Describe().Name
	if name == "" {
		panic(errors.New("ops.RegisterCustom: custom ops need a name"))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen.Load() {
		panic(errors.Errorf("ops.RegisterCustom(%q): registry is frozen, ops must be registered during initialization", name))
	}
	if _, found := r.custom[name]; found {
		panic(errors.Errorf("ops.RegisterCustom(%q): op already registered", name))
	}
	r.custom[name] = op
	klog.V(4).Infof("registered custom op %q", name)
}

// Freeze makes the registry immutable. It is called automatically by the first lookup.
func (r *Registry) Freeze() {
	r.freezeOnce.Do(func() {
		r.mu.Lock()
		r.frozen.Store(true)
		r.mu.Unlock()
	})
}

// IsFrozen returns whether the registry no longer accepts registrations.
func (r *Registry) IsFrozen() bool { return r.frozen.Load() }

// Lookup the operator for (opType, opNum).
func (r *Registry) Lookup(opType OpType, opNum int) (DeclarableOp, bool) {
	r.Freeze()
	op, found := r.primitives[primitiveKey{opType, opNum}]
	return op, found
}

// LookupCustom looks up a custom operator by name.
func (r *Registry) LookupCustom(name string) (DeclarableOp, bool) {
	r.Freeze()
	op, found := r.custom[name]
	return op, found
}

// CustomNames returns the sorted names of the registered custom ops.
func (r *Registry) CustomNames() []string {
	r.Freeze()
	names := maps.Keys(r.custom)
	slices.Sort(names)
	return names
}

// NumPrimitives returns the number of registered primitive (OpType, opNum) ops.
func (r *Registry) NumPrimitives() int {
	r.Freeze()
	return len(r.primitives)
}
