// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package builtin

import (
	"math"
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/zwb12580/deeplearning4j/pkg/core/dtypes"
	"github.com/zwb12580/deeplearning4j/pkg/core/shapes"
	"github.com/zwb12580/deeplearning4j/pkg/ops"
)

// reduction reduces the axes given in the node's dimensions (all axes if none given).
type reduction struct {
	name    string
	initial float64
	combine func(acc, x float64) float64

	// mean divides the result by the number of reduced elements.
	mean bool
}

var (
	_ ops.DeclarableOp  = (*reduction)(nil)
	_ ops.ShapeInferrer = (*reduction)(nil)
)

// Describe implements ops.DeclarableOp.
func (op *reduction) Describe() ops.Descriptor {
	return ops.Descriptor{Name: op.name, NumInputs: 1, NumOutputs: 1, NumIArgs: ops.Variadic}
}

func keepDims(ctx *ops.Context) bool { return ctx.IArg(0, 0) != 0 }

// OutputShapes implements ops.ShapeInferrer.
func (op *reduction) OutputShapes(ctx *ops.Context, inputs []shapes.Shape) (outputs []shapes.Shape, err error) {
	if len(inputs) == 0 || !inputs[0].Ok() {
		return nil, ctx.Errorf("%s requires one input", op.name)
	}
	err = exceptions.TryCatch[error](func() {
		outputs = []shapes.Shape{inputs[0].Reduce(keepDims(ctx), ctx.Dimensions...)}
	})
	return
}

// Execute implements ops.DeclarableOp.
func (op *reduction) Execute(ctx *ops.Context) error {
	if err := ctx.RequireInputs(1); err != nil {
		return err
	}
	outputShapes, err := op.OutputShapes(ctx, ctx.InputShapes())
	if err != nil {
		return err
	}
	input := ctx.Input(0)
	inputShape := input.Shape()
	reducedAxes := inputShape.NormalizeAxes(ctx.Dimensions...)
	if len(ctx.Dimensions) == 0 {
		reducedAxes = allAxes(inputShape.Rank())
	}

	// The reduced shape with kept dimensions has the same flat layout as the output.
	keptShape := inputShape.Reduce(true, reducedAxes...)
	keptStrides := keptShape.Strides()
	outputStrides := make([]int, inputShape.Rank())
	for axis := range outputStrides {
		if !slices.Contains(reducedAxes, axis) {
			outputStrides[axis] = keptStrides[axis]
		}
	}

	values := input.Float64s()
	results := make([]float64, outputShapes[0].Size())
	for i := range results {
		results[i] = op.initial
	}
	for flatIdx, indices := range inputShape.Iter() {
		outIdx := 0
		for axis, idx := range indices {
			outIdx += idx * outputStrides[axis]
		}
		results[outIdx] = op.combine(results[outIdx], values[flatIdx])
	}
	if op.mean && len(results) > 0 {
		count := float64(inputShape.Size() / len(results))
		for i := range results {
			results[i] /= count
		}
	}

	output, err := ctx.AllocOutput(0, outputShapes[0])
	if err != nil {
		return err
	}
	output.SetFloat64s(results)
	return nil
}

func allAxes(rank int) []int {
	axes := make([]int, rank)
	for i := range axes {
		axes[i] = i
	}
	return axes
}

// indexReduction returns the index of the max (or min) element along one axis.
type indexReduction struct {
	name   string
	better func(x, best float64) bool
}

var _ ops.DeclarableOp = (*indexReduction)(nil)

// Describe implements ops.DeclarableOp.
func (op *indexReduction) Describe() ops.Descriptor {
	return ops.Descriptor{Name: op.name, NumInputs: 1, NumOutputs: 1}
}

// Execute implements ops.DeclarableOp.
func (op *indexReduction) Execute(ctx *ops.Context) error {
	if err := ctx.RequireInputs(1); err != nil {
		return err
	}
	input := ctx.Input(0)
	inputShape := input.Shape()
	if inputShape.Rank() == 0 {
		return ctx.Errorf("%s requires an input of rank >= 1", op.name)
	}
	axis := -1
	if len(ctx.Dimensions) > 0 {
		axis = ctx.Dimensions[0]
	}
	var normalized []int
	if err := exceptions.TryCatch[error](func() { normalized = inputShape.NormalizeAxes(axis) }); err != nil {
		return err
	}
	axis = normalized[0]
	outputShape := inputShape.Reduce(false, axis)
	outputShape.DType = dtypes.Int64

	values := input.Float64s()
	strides := inputShape.Strides()
	axisDim := inputShape.Dimensions[axis]
	results := make([]float64, outputShape.Size())
	outIdx := 0
	otherAxes := slices.DeleteFunc(allAxes(inputShape.Rank()), func(a int) bool { return a == axis })
	for baseIdx := range inputShape.IterOnAxes(otherAxes, strides, nil) {
		best, bestIdx := values[baseIdx], 0
		for i := 1; i < axisDim; i++ {
			if v := values[baseIdx+i*strides[axis]]; op.better(v, best) {
				best, bestIdx = v, i
			}
		}
		results[outIdx] = float64(bestIdx)
		outIdx++
	}
	output, err := ctx.AllocOutput(0, outputShape)
	if err != nil {
		return err
	}
	output.SetFloat64s(results)
	return nil
}

// booleanReduction reduces all elements to a Bool scalar.
type booleanReduction struct {
	name string
	all  bool
}

// Describe implements ops.DeclarableOp.
func (op *booleanReduction) Describe() ops.Descriptor {
	return ops.Descriptor{Name: op.name, NumInputs: 1, NumOutputs: 1}
}

// Execute implements ops.DeclarableOp.
func (op *booleanReduction) Execute(ctx *ops.Context) error {
	if err := ctx.RequireInputs(1); err != nil {
		return err
	}
	result := op.all
	for _, v := range ctx.Input(0).Float64s() {
		if (v != 0) != op.all {
			result = !op.all
			break
		}
	}
	output, err := ctx.AllocOutput(0, shapes.Make(dtypes.Bool))
	if err != nil {
		return err
	}
	output.SetFloat64s([]float64{boolToFloat(result)})
	return nil
}

func registerReductions() {
	ops.Register(ops.OpTypeReduce, ReduceSum, &reduction{name: "reduce_sum",
		combine: func(acc, x float64) float64 { return acc + x }})
	ops.Register(ops.OpTypeReduce, ReduceMean, &reduction{name: "reduce_mean", mean: true,
		combine: func(acc, x float64) float64 { return acc + x }})
	ops.Register(ops.OpTypeReduce, ReduceMax, &reduction{name: "reduce_max", initial: math.Inf(-1), combine: math.Max})
	ops.Register(ops.OpTypeReduce, ReduceMin, &reduction{name: "reduce_min", initial: math.Inf(1), combine: math.Min})

	ops.Register(ops.OpTypeIndexReduce, ArgMax, &indexReduction{name: "argmax",
		better: func(x, best float64) bool { return x > best }})
	ops.Register(ops.OpTypeIndexReduce, ArgMin, &indexReduction{name: "argmin",
		better: func(x, best float64) bool { return x < best }})

	ops.Register(ops.OpTypeBoolean, Any, &booleanReduction{name: "any"})
	ops.Register(ops.OpTypeBoolean, All, &booleanReduction{name: "all", all: true})
}
