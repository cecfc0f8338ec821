// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package builtin

import (
	"math"

	"github.com/zwb12580/deeplearning4j/pkg/core/dtypes"
	"github.com/zwb12580/deeplearning4j/pkg/core/shapes"
	"github.com/zwb12580/deeplearning4j/pkg/ops"
)

// elementwise is a single input op that maps fn over every element.
type elementwise struct {
	name string
	fn   func(x float64) float64

	// outDType is the dtype of the output, InvalidDType to keep the input's.
	outDType dtypes.DType
}

var (
	_ ops.DeclarableOp  = (*elementwise)(nil)
	_ ops.ShapeInferrer = (*elementwise)(nil)
)

// Describe implements ops.DeclarableOp.
func (op *elementwise) Describe() ops.Descriptor {
	return ops.Descriptor{
		Name:       op.name,
		NumInputs:  1,
		NumOutputs: 1,
		InPlace:    op.outDType == dtypes.InvalidDType,
	}
}

// OutputShapes implements ops.ShapeInferrer.
func (op *elementwise) OutputShapes(ctx *ops.Context, inputs []shapes.Shape) ([]shapes.Shape, error) {
	outputs, err := sameShape{}.OutputShapes(ctx, inputs)
	if err != nil {
		return nil, err
	}
	if op.outDType != dtypes.InvalidDType {
		outputs[0] = withDType(outputs[0], op.outDType)
	}
	return outputs, nil
}

// Execute implements ops.DeclarableOp.
func (op *elementwise) Execute(ctx *ops.Context) error {
	if err := ctx.RequireInputs(1); err != nil {
		return err
	}
	outputShapes, err := op.OutputShapes(ctx, ctx.InputShapes())
	if err != nil {
		return err
	}
	values := ctx.Input(0).Float64s()
	for i, v := range values {
		values[i] = op.fn(v)
	}
	output, err := ctx.AllocOutput(0, outputShapes[0])
	if err != nil {
		return err
	}
	output.SetFloat64s(values)
	return nil
}

func registerTransforms() {
	ops.Register(ops.OpTypeTransformSame, Identity, &elementwise{name: "identity", fn: func(x float64) float64 { return x }})
	ops.Register(ops.OpTypeTransformSame, Neg, &elementwise{name: "neg", fn: func(x float64) float64 { return -x }})
	ops.Register(ops.OpTypeTransformSame, Abs, &elementwise{name: "abs", fn: math.Abs})

	ops.Register(ops.OpTypeTransformFloat, Exp, &elementwise{name: "exp", fn: math.Exp})
	ops.Register(ops.OpTypeTransformFloat, Sqrt, &elementwise{name: "sqrt", fn: math.Sqrt})
	ops.Register(ops.OpTypeTransformFloat, Log, &elementwise{name: "log", fn: math.Log})

	ops.Register(ops.OpTypeTransformStrict, Tanh, &elementwise{name: "tanh", fn: math.Tanh})
	ops.Register(ops.OpTypeTransformStrict, Sigmoid, &elementwise{name: "sigmoid",
		fn: func(x float64) float64 { return 1 / (1 + math.Exp(-x)) }})

	ops.Register(ops.OpTypeTransformBool, IsNaN, &elementwise{name: "isnan", outDType: dtypes.Bool,
		fn: func(x float64) float64 { return boolToFloat(math.IsNaN(x)) }})
	ops.Register(ops.OpTypeTransformBool, Not, &elementwise{name: "not", outDType: dtypes.Bool,
		fn: func(x float64) float64 { return boolToFloat(x == 0) }})
}
