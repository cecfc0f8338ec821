// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package builtin

import (
	"github.com/zwb12580/deeplearning4j/pkg/core/dtypes"
	"github.com/zwb12580/deeplearning4j/pkg/core/shapes"
	"github.com/zwb12580/deeplearning4j/pkg/ops"
)

func shapeOfOp(ctx *ops.Context) error {
	if err := ctx.RequireInputs(1); err != nil {
		return err
	}
	dims := ctx.Input(0).Shape().Dimensions
	values := make([]float64, len(dims))
	for i, dim := range dims {
		values[i] = float64(dim)
	}
	output, err := ctx.AllocOutput(0, shapes.Make(dtypes.Int64, len(dims)))
	if err != nil {
		return err
	}
	output.SetFloat64s(values)
	return nil
}

// reshapeDims resolves the target dimensions in iArgs for a tensor of the given size: one dimension
// can be -1, in which case it is inferred.
func reshapeDims(ctx *ops.Context, size int) ([]int, error) {
	dims := make([]int, len(ctx.IArgs))
	copy(dims, ctx.IArgs)
	inferred := -1
	known := 1
	for axis, dim := range dims {
		switch {
		case dim == -1 && inferred == -1:
			inferred = axis
		case dim < 0:
			return nil, ctx.Errorf("reshape: invalid dimensions %v", ctx.IArgs)
		default:
			known *= dim
		}
	}
	if inferred >= 0 {
		if known == 0 || size%known != 0 {
			return nil, ctx.Errorf("reshape: cannot infer dimension of %v for %d elements", ctx.IArgs, size)
		}
		dims[inferred] = size / known
		known = size
	}
	if known != size {
		return nil, ctx.Errorf("reshape: dimensions %v don't match %d elements", ctx.IArgs, size)
	}
	return dims, nil
}

func reshapeOp(ctx *ops.Context) error {
	if err := ctx.RequireInputs(1); err != nil {
		return err
	}
	input := ctx.Input(0)
	dims, err := reshapeDims(ctx, input.Size())
	if err != nil {
		return err
	}
	output, err := ctx.AllocOutput(0, shapes.Make(input.DType(), dims...))
	if err != nil {
		return err
	}
	input.ConstBytes(func(src []byte) {
		output.MutableBytes(func(dst []byte) { copy(dst, src) })
	})
	return nil
}

func registerShapeOps() {
	ops.Register(ops.OpTypeShape, ShapeOf, ops.NewOpFunc(
		ops.Descriptor{Name: "shape_of", NumInputs: 1, NumOutputs: 1}, shapeOfOp))
	ops.Register(ops.OpTypeShape, Reshape, ops.NewOpFunc(
		ops.Descriptor{Name: "reshape", NumInputs: 1, NumOutputs: 1, NumIArgs: ops.Variadic}, reshapeOp))
}
