// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package builtin

import (
	"github.com/zwb12580/deeplearning4j/pkg/core/dtypes"
	"github.com/zwb12580/deeplearning4j/pkg/core/shapes"
	"github.com/zwb12580/deeplearning4j/pkg/core/tensors"
	"github.com/zwb12580/deeplearning4j/pkg/ops"
	"github.com/zwb12580/deeplearning4j/pkg/status"
)

type binaryFn func(x, y float64) float64

var arithmetic = map[int]struct {
	name string
	fn   binaryFn
}{
	Add: {"add", func(x, y float64) float64 { return x + y }},
	Sub: {"sub", func(x, y float64) float64 { return x - y }},
	Mul: {"mul", func(x, y float64) float64 { return x * y }},
	Div: {"div", func(x, y float64) float64 { return x / y }},
}

var comparisons = map[int]struct {
	name string
	fn   binaryFn
}{
	LessThan:    {"lt", func(x, y float64) float64 { return boolToFloat(x < y) }},
	GreaterThan: {"gt", func(x, y float64) float64 { return boolToFloat(x > y) }},
	Equal:       {"eq", func(x, y float64) float64 { return boolToFloat(x == y) }},
}

// binary is a two input element-wise op. Pairwise ops require equal shapes (or a single element
// operand); broadcast ops follow the usual broadcasting rules.
type binary struct {
	name      string
	fn        binaryFn
	broadcast bool
	outDType  dtypes.DType
}

var (
	_ ops.DeclarableOp  = (*binary)(nil)
	_ ops.ShapeInferrer = (*binary)(nil)
)

// Describe implements ops.DeclarableOp.
func (op *binary) Describe() ops.Descriptor {
	return ops.Descriptor{
		Name:       op.name,
		NumInputs:  2,
		NumOutputs: 1,
		InPlace:    op.outDType == dtypes.InvalidDType,
	}
}

// OutputShapes implements ops.ShapeInferrer.
func (op *binary) OutputShapes(_ *ops.Context, inputs []shapes.Shape) ([]shapes.Shape, error) {
	if len(inputs) != 2 || !inputs[0].Ok() || !inputs[1].Ok() {
		return nil, status.Errorf(status.TypeMismatch, "%s requires 2 inputs", op.name)
	}
	lhs, rhs := inputs[0], inputs[1]
	var output shapes.Shape
	switch {
	case lhs.EqualDimensions(rhs) || rhs.Size() == 1:
		output = lhs.Clone()
	case lhs.Size() == 1:
		output = withDType(rhs, lhs.DType)
	case op.broadcast:
		var err error
		output, err = broadcastShapes(lhs, rhs)
		if err != nil {
			return nil, err
		}
	default:
		return nil, status.Errorf(status.TypeMismatch, "%s: incompatible shapes %s and %s", op.name, lhs, rhs)
	}
	if op.outDType != dtypes.InvalidDType {
		output.DType = op.outDType
	}
	return []shapes.Shape{output}, nil
}

// Execute implements ops.DeclarableOp.
func (op *binary) Execute(ctx *ops.Context) error {
	if err := ctx.RequireInputs(2); err != nil {
		return err
	}
	outputShapes, err := op.OutputShapes(ctx, ctx.InputShapes())
	if err != nil {
		return err
	}
	values := applyBroadcast(ctx.Input(0), ctx.Input(1), outputShapes[0], op.fn)
	output, err := ctx.AllocOutput(0, outputShapes[0])
	if err != nil {
		return err
	}
	output.SetFloat64s(values)
	return nil
}

// broadcastShapes returns the shape resulting from broadcasting lhs and rhs: axes are aligned to the
// right, and dimensions must be equal or 1.
func broadcastShapes(lhs, rhs shapes.Shape) (shapes.Shape, error) {
	rank := max(lhs.Rank(), rhs.Rank())
	output := shapes.Shape{DType: lhs.DType, Dimensions: make([]int, rank)}
	for axis := range rank {
		lhsDim, rhsDim := broadcastDim(lhs, axis, rank), broadcastDim(rhs, axis, rank)
		switch {
		case lhsDim == rhsDim || rhsDim == 1:
			output.Dimensions[axis] = lhsDim
		case lhsDim == 1:
			output.Dimensions[axis] = rhsDim
		default:
			return shapes.Invalid(), status.Errorf(status.TypeMismatch, "cannot broadcast shapes %s and %s", lhs, rhs)
		}
	}
	return output, nil
}

// broadcastDim returns the dimension of shape at axis, when aligned to the right against rank.
func broadcastDim(shape shapes.Shape, axis, rank int) int {
	offset := rank - shape.Rank()
	if axis < offset {
		return 1
	}
	return shape.Dimensions[axis-offset]
}

// broadcastStrides returns the strides of shape aligned to the right against output, with 0 strides
// for broadcast axes.
func broadcastStrides(shape, output shapes.Shape) []int {
	rank := output.Rank()
	strides := make([]int, rank)
	if shape.Size() == 1 {
		return strides
	}
	shapeStrides := shape.Strides()
	offset := rank - shape.Rank()
	for axis := offset; axis < rank; axis++ {
		if shape.Dimensions[axis-offset] != 1 {
			strides[axis] = shapeStrides[axis-offset]
		}
	}
	return strides
}

func applyBroadcast(lhs, rhs *tensors.Tensor, output shapes.Shape, fn binaryFn) []float64 {
	lhsValues, rhsValues := lhs.Float64s(), rhs.Float64s()
	values := make([]float64, output.Size())
	if len(lhsValues) == len(values) && len(rhsValues) == len(values) {
		for i := range values {
			values[i] = fn(lhsValues[i], rhsValues[i])
		}
		return values
	}
	lhsStrides := broadcastStrides(lhs.Shape(), output)
	rhsStrides := broadcastStrides(rhs.Shape(), output)
	for flatIdx, indices := range output.Iter() {
		var lhsIdx, rhsIdx int
		for axis, idx := range indices {
			lhsIdx += idx * lhsStrides[axis]
			rhsIdx += idx * rhsStrides[axis]
		}
		values[flatIdx] = fn(lhsValues[lhsIdx], rhsValues[rhsIdx])
	}
	return values
}

// scalarOp applies fn(x, scalar) element-wise: the scalar operand is the node's scalar attribute,
// or its first float argument.
type scalarOp struct {
	name     string
	fn       binaryFn
	outDType dtypes.DType
}

var (
	_ ops.DeclarableOp  = (*scalarOp)(nil)
	_ ops.ShapeInferrer = (*scalarOp)(nil)
)

// Describe implements ops.DeclarableOp.
func (op *scalarOp) Describe() ops.Descriptor {
	return ops.Descriptor{
		Name:       "scalar_" + op.name,
		NumInputs:  1,
		NumOutputs: 1,
		NumTArgs:   ops.Variadic,
		InPlace:    op.outDType == dtypes.InvalidDType,
	}
}

// OutputShapes implements ops.ShapeInferrer.
func (op *scalarOp) OutputShapes(ctx *ops.Context, inputs []shapes.Shape) ([]shapes.Shape, error) {
	outputs, err := sameShape{}.OutputShapes(ctx, inputs)
	if err != nil {
		return nil, err
	}
	if op.outDType != dtypes.InvalidDType {
		outputs[0].DType = op.outDType
	}
	return outputs, nil
}

func scalarOperand(ctx *ops.Context) (float64, error) {
	if ctx.Scalar != nil {
		if ctx.Scalar.Size() != 1 {
			return 0, ctx.Errorf("scalar attribute must have one element, got shape %s", ctx.Scalar.Shape())
		}
		return ctx.Scalar.Float64s()[0], nil
	}
	if len(ctx.TArgs) > 0 {
		return ctx.TArgs[0], nil
	}
	return 0, status.Errorf(status.TypeMismatch, "node #%d: scalar op requires a scalar attribute or a float argument", ctx.NodeID)
}

// Execute implements ops.DeclarableOp.
func (op *scalarOp) Execute(ctx *ops.Context) error {
	if err := ctx.RequireInputs(1); err != nil {
		return err
	}
	operand, err := scalarOperand(ctx)
	if err != nil {
		return err
	}
	outputShapes, err := op.OutputShapes(ctx, ctx.InputShapes())
	if err != nil {
		return err
	}
	values := ctx.Input(0).Float64s()
	for i, v := range values {
		values[i] = op.fn(v, operand)
	}
	output, err := ctx.AllocOutput(0, outputShapes[0])
	if err != nil {
		return err
	}
	output.SetFloat64s(values)
	return nil
}

func registerBinary() {
	for opNum, def := range arithmetic {
		ops.Register(ops.OpTypePairwise, opNum, &binary{name: def.name, fn: def.fn})
		ops.Register(ops.OpTypeBroadcast, opNum, &binary{name: "broadcast_" + def.name, fn: def.fn, broadcast: true})
		ops.Register(ops.OpTypeScalar, opNum, &scalarOp{name: def.name, fn: def.fn})
	}
	for opNum, def := range comparisons {
		ops.Register(ops.OpTypePairwise, opNum, &binary{name: def.name, fn: def.fn, outDType: dtypes.Bool})
		ops.Register(ops.OpTypeScalar, opNum, &scalarOp{name: def.name, fn: def.fn, outDType: dtypes.Bool})
	}
}
