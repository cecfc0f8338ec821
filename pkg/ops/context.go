// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ops

import (
	"math/rand/v2"

	"github.com/pkg/errors"
	"github.com/zwb12580/deeplearning4j/internal/workerspool"
	"github.com/zwb12580/deeplearning4j/pkg/core/shapes"
	"github.com/zwb12580/deeplearning4j/pkg/core/tensors"
	"github.com/zwb12580/deeplearning4j/pkg/status"
)

// Context is the bundle an operator is invoked with: resolved inputs, output slots and attributes of
// the node, plus the resources of the worker running it.
//
// A Context is used for one invocation only, and it is not safe for concurrent use by the op's own
// goroutines, except for reading inputs and attributes.
type Context struct {
	// NodeID of the node being executed, and its frame and iteration (FrameID is -1 outside loops).
	NodeID, FrameID, Iteration int

	TArgs      []float64
	IArgs      []int
	Dimensions []int

	// Scalar is the node's optional scalar attribute.
	Scalar *tensors.Tensor

	// InPlace is set by the executioner when the op should write output 0 into input 0.
	// AllocOutput(0, ...) takes care of it.
	InPlace bool

	// Seed is the sub-seed derived for this invocation. See RNG.
	Seed uint64

	// Workspace of the worker running the op.
	Workspace *Workspace

	// Pool is the compute pool shared by all ops, for intra-op parallelism. It may be nil.
	Pool *workerspool.Pool

	inputs  []*tensors.Tensor
	outputs []*tensors.Tensor
	rng     *rand.Rand
}

// NewContext creates a Context with the given inputs (nil entries for absent optional inputs) and
// number of output slots.
func NewContext(nodeID int, inputs []*tensors.Tensor, numOutputs int) *Context {
	return &Context{
		NodeID:    nodeID,
		FrameID:   -1,
		inputs:    inputs,
		outputs:   make([]*tensors.Tensor, numOutputs),
		Workspace: NewWorkspace(0),
	}
}

// NumInputs returns the number of input slots.
func (ctx *Context) NumInputs() int { return len(ctx.inputs) }

// Input returns the input tensor at index i, nil if it is an absent optional input.
func (ctx *Context) Input(i int) *tensors.Tensor {
	if i < 0 || i >= len(ctx.inputs) {
		return nil
	}
	return ctx.inputs[i]
}

// Inputs returns all input slots.
func (ctx *Context) Inputs() []*tensors.Tensor { return ctx.inputs }

// InputShapes returns the shapes of the inputs, or shapes.Invalid() for absent ones.
func (ctx *Context) InputShapes() []shapes.Shape {
	shapesList := make([]shapes.Shape, len(ctx.inputs))
	for i, input := range ctx.inputs {
		if input == nil {
			shapesList[i] = shapes.Invalid()
			continue
		}
		shapesList[i] = input.Shape()
	}
	return shapesList
}

// NumOutputs returns the number of output slots.
func (ctx *Context) NumOutputs() int { return len(ctx.outputs) }

// Output returns the tensor set for output k, or nil.
func (ctx *Context) Output(k int) *tensors.Tensor {
	if k < 0 || k >= len(ctx.outputs) {
		return nil
	}
	return ctx.outputs[k]
}

// Outputs returns all output slots.
func (ctx *Context) Outputs() []*tensors.Tensor { return ctx.outputs }

// SetOutput sets the tensor of output k. Variadic-output ops may grow the output slots.
func (ctx *Context) SetOutput(k int, t *tensors.Tensor) {
	for k >= len(ctx.outputs) {
		ctx.outputs = append(ctx.outputs, nil)
	}
	ctx.outputs[k] = t
}

// AllocOutput allocates (from the workspace) and sets the tensor of output k.
//
// If the executioner decided in-place execution, output 0 reuses input 0 when its shape matches.
func (ctx *Context) AllocOutput(k int, shape shapes.Shape) (*tensors.Tensor, error) {
	if k == 0 && ctx.InPlace {
		if input := ctx.Input(0); input != nil && input.Shape().Equal(shape) {
			ctx.SetOutput(0, input)
			return input, nil
		}
	}
	if ctx.Workspace == nil {
		ctx.Workspace = NewWorkspace(0)
	}
	t, err := ctx.Workspace.Alloc(shape)
	if err != nil {
		return nil, err
	}
	ctx.SetOutput(k, t)
	return t, nil
}

// TArg returns the i-th float attribute, or defaultValue if not set.
func (ctx *Context) TArg(i int, defaultValue float64) float64 {
	if i < len(ctx.TArgs) {
		return ctx.TArgs[i]
	}
	return defaultValue
}

// IArg returns the i-th integer attribute, or defaultValue if not set.
func (ctx *Context) IArg(i int, defaultValue int) int {
	if i < len(ctx.IArgs) {
		return ctx.IArgs[i]
	}
	return defaultValue
}

// RNG returns the random number generator of this invocation, seeded with Seed. Two invocations with the
// same Seed draw the same numbers, regardless of the worker they run on.
func (ctx *Context) RNG() *rand.Rand {
	if ctx.rng == nil {
		ctx.rng = rand.New(rand.NewPCG(ctx.Seed, ctx.Seed^0x9E3779B97F4A7C15))
	}
	return ctx.rng
}

// RequireInputs returns a TypeMismatch error if fewer than n inputs are present.
func (ctx *Context) RequireInputs(n int) error {
	if len(ctx.inputs) < n {
		return status.Errorf(status.TypeMismatch, "node #%d: op requires %d inputs, got %d", ctx.NodeID, n, len(ctx.inputs))
	}
	for i := range n {
		if ctx.inputs[i] == nil {
			return status.Errorf(status.MissingInput, "node #%d: input #%d is absent", ctx.NodeID, i)
		}
	}
	return nil
}

// Errorf returns an error annotated with the node id, to be returned by Execute.
func (ctx *Context) Errorf(format string, args ...any) error {
	return errors.WithMessagef(errors.Errorf(format, args...), "node #%d", ctx.NodeID)
}
