// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package ops defines the contract between the graph executioner and the operators (kernels) it runs:
// the DeclarableOp interface, its static Descriptor, the per-invocation Context and the process-wide
// registry of operators.
package ops

import (
	"github.com/zwb12580/deeplearning4j/pkg/core/shapes"
)

// Variadic is used in Descriptor arities to accept any number of inputs or arguments.
const Variadic = -1

// Descriptor is the static description of an operator.
type Descriptor struct {
	// Name of the operator, used for custom ops lookup and logging.
	Name string

	// NumInputs and NumOutputs are the arities of the operator, or Variadic.
	NumInputs, NumOutputs int

	// NumTArgs and NumIArgs are the minimum number of float/integer attributes, or Variadic.
	NumTArgs, NumIArgs int

	// InPlace indicates the op can write its output 0 into its input 0, if the executioner decides so.
	InPlace bool

	// Divergent ops select which downstream scope runs (see ops.LogicSwitch).
	Divergent bool

	// OptionalInputs ops are executed with whatever inputs are available: absent inputs are nil in the
	// Context.
	OptionalInputs bool
}

// AcceptsInputs returns whether numInputs matches the descriptor's input arity.
func (d Descriptor) AcceptsInputs(numInputs int) bool {
	return d.NumInputs == Variadic || d.NumInputs == numInputs
}

// DeclarableOp is implemented by every operator the executioner can run.
//
// Execute reads the inputs from the Context and must set every output (see Context.SetOutput and
// Context.AllocOutput). Ops are expected to be pure with respect to the Context.
type DeclarableOp interface {
	Describe() Descriptor
	Execute(ctx *Context) error
}

// ShapeInferrer is optionally implemented by ops that can tell the shapes of their outputs from the
// shapes of their inputs. The executioner uses it to validate in-place execution.
type ShapeInferrer interface {
	OutputShapes(ctx *Context, inputs []shapes.Shape) ([]shapes.Shape, error)
}

// Cloner is optionally implemented by custom ops owned by a node (deductable), to be deep-copied
// when the node is cloned. Ops that don't implement it are shared by the clones.
type Cloner interface {
	Clone() DeclarableOp
}

// Releaser is optionally implemented by custom ops owned by a node (deductable), to release resources
// when the node drops the op.
type Releaser interface {
	Release()
}

// OpFunc adapts a function to a DeclarableOp with the given descriptor.
type OpFunc struct {
	Descriptor Descriptor
	Fn         func(ctx *Context) error
}

var _ DeclarableOp = (*OpFunc)(nil)

// NewOpFunc returns a DeclarableOp backed by fn.
func NewOpFunc(descriptor Descriptor, fn func(ctx *Context) error) *OpFunc {
	return &OpFunc{Descriptor: descriptor, Fn: fn}
}

// Describe implements DeclarableOp.
func (op *OpFunc) Describe() Descriptor { return op.Descriptor }

// Execute implements DeclarableOp.
func (op *OpFunc) Execute(ctx *Context) error { return op.Fn(ctx) }
