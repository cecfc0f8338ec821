// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package builtin registers a reference set of kernels in the process-wide ops registry: transforms,
// pairwise, scalar, broadcast, reductions, index reductions, shape, random, boolean and logic
// (control-flow) ops, plus the "matmul" and "batched_gemm" custom ops.
//
// Kernels compute in float64 and convert to/from the tensors' dtype: they favor simplicity over speed.
//
// Import it for its side effects:
//
//	import _ "github.com/zwb12580/deeplearning4j/pkg/ops/builtin"
package builtin

import (
	"github.com/zwb12580/deeplearning4j/pkg/core/dtypes"
	"github.com/zwb12580/deeplearning4j/pkg/core/shapes"
	"github.com/zwb12580/deeplearning4j/pkg/ops"
	"github.com/zwb12580/deeplearning4j/pkg/status"
)

// Operation numbers of the builtin ops, per OpType family.
const (
	// OpTypeTransformSame
	Identity = 0
	Neg      = 1
	Abs      = 2

	// OpTypeTransformFloat
	Exp  = 0
	Sqrt = 1
	Log  = 2

	// OpTypeTransformStrict
	Tanh    = 0
	Sigmoid = 1

	// OpTypeTransformBool
	IsNaN = 0
	Not   = 1

	// OpTypePairwise, OpTypeBroadcast and OpTypeScalar share arithmetic numbers.
	Add = 0
	Sub = 1
	Mul = 2
	Div = 3

	// OpTypeScalar comparisons, the output is Bool.
	LessThan    = 4
	GreaterThan = 5
	Equal       = 6

	// OpTypeReduce: axes in the node's dimensions (all if empty), iArgs[0] != 0 keeps the reduced axes.
	ReduceSum  = 0
	ReduceMean = 1
	ReduceMax  = 2
	ReduceMin  = 3

	// OpTypeIndexReduce: axis in dimensions[0] (default last), output is Int64.
	ArgMax = 0
	ArgMin = 1

	// OpTypeShape
	ShapeOf = 0
	Reshape = 1

	// OpTypeRandom: output dimensions in iArgs, Float32.
	RandomUniform = 0
	RandomNormal  = 1

	// OpTypeBoolean: output is a Bool scalar.
	Any = 0
	All = 1
)

func init() {
	registerTransforms()
	registerBinary()
	registerReductions()
	registerShapeOps()
	registerRandom()
	registerLogic()
	registerCustom()
}

// sameShape is the ShapeInferrer of ops whose output has the shape of their input 0.
type sameShape struct{}

// OutputShapes implements ops.ShapeInferrer.
func (sameShape) OutputShapes(_ *ops.Context, inputs []shapes.Shape) ([]shapes.Shape, error) {
	if len(inputs) == 0 || !inputs[0].Ok() {
		return nil, status.Errorf(status.MissingInput, "shape inference requires input #0")
	}
	return []shapes.Shape{inputs[0].Clone()}, nil
}

func withDType(shape shapes.Shape, dtype dtypes.DType) shapes.Shape {
	shape = shape.Clone()
	shape.DType = dtype
	return shape
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
