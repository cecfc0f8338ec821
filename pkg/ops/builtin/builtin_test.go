// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package builtin

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zwb12580/deeplearning4j/internal/workerspool"
	"github.com/zwb12580/deeplearning4j/pkg/core/dtypes"
	"github.com/zwb12580/deeplearning4j/pkg/core/tensors"
	"github.com/zwb12580/deeplearning4j/pkg/ops"
	"github.com/zwb12580/deeplearning4j/pkg/status"
)

// run executes the registered op (opType, opNum) with the given inputs, and returns the context.
func run(t *testing.T, opType ops.OpType, opNum int, configure func(ctx *ops.Context), inputs ...*tensors.Tensor) (*ops.Context, error) {
	op, found := ops.Lookup(opType, opNum)
	require.Truef(t, found, "op %s/%d not registered", opType, opNum)
	ctx := ops.NewContext(1, inputs, op.Describe().NumOutputs)
	if configure != nil {
		configure(ctx)
	}
	return ctx, op.Execute(ctx)
}

func mustRun(t *testing.T, opType ops.OpType, opNum int, configure func(ctx *ops.Context), inputs ...*tensors.Tensor) *tensors.Tensor {
	ctx, err := run(t, opType, opNum, configure, inputs...)
	require.NoError(t, err)
	return ctx.Output(0)
}

func TestTransforms(t *testing.T) {
	x := tensors.FromFlatDataAndDimensions([]float32{-1, 0, 4}, 3)
	assert.Equal(t, []float32{1, 0, -4}, mustRun(t, ops.OpTypeTransformSame, Neg, nil, x).Value())
	assert.Equal(t, []float32{1, 0, 4}, mustRun(t, ops.OpTypeTransformSame, Abs, nil, x).Value())
	assert.Equal(t, []float32{0, 0, 2}, mustRun(t, ops.OpTypeTransformFloat, Sqrt, nil,
		tensors.FromFlatDataAndDimensions([]float32{0, 0, 4}, 3)).Value())
	assert.Equal(t, []bool{false, true, false}, mustRun(t, ops.OpTypeTransformBool, Not, nil, x).Value())
	nan := tensors.FromFlatDataAndDimensions([]float64{math.NaN(), 1}, 2)
	assert.Equal(t, []bool{true, false}, mustRun(t, ops.OpTypeTransformBool, IsNaN, nil, nan).Value())

	_, err := run(t, ops.OpTypeTransformSame, Neg, nil)
	require.Error(t, err)
	assert.Equal(t, status.TypeMismatch, status.CodeOf(err))
}

// TestTransforms_InPlace tests that in-place execution writes into input 0 with the same result.
func TestTransforms_InPlace(t *testing.T) {
	x := tensors.FromFlatDataAndDimensions([]float64{1, 2}, 2)
	ctx, err := run(t, ops.OpTypeTransformSame, Neg, func(ctx *ops.Context) { ctx.InPlace = true }, x)
	require.NoError(t, err)
	assert.Same(t, x, ctx.Output(0))
	assert.Equal(t, []float64{-1, -2}, x.Value())
}

func TestBinary(t *testing.T) {
	a := tensors.FromFlatDataAndDimensions([]float32{1, 2, 3, 4}, 2, 2)
	b := tensors.FromFlatDataAndDimensions([]float32{10, 20, 30, 40}, 2, 2)
	assert.Equal(t, [][]float32{{11, 22}, {33, 44}}, mustRun(t, ops.OpTypePairwise, Add, nil, a, b).Value())
	assert.Equal(t, [][]float32{{10, 40}, {90, 160}}, mustRun(t, ops.OpTypePairwise, Mul, nil, a, b).Value())
	assert.Equal(t, [][]bool{{true, true}, {true, true}}, mustRun(t, ops.OpTypePairwise, LessThan, nil, a, b).Value())

	// Pairwise accepts a single element operand, but not general broadcasting.
	two := tensors.FromScalar(float32(2))
	assert.Equal(t, [][]float32{{2, 4}, {6, 8}}, mustRun(t, ops.OpTypePairwise, Mul, nil, a, two).Value())
	row := tensors.FromFlatDataAndDimensions([]float32{100, 200}, 2)
	_, err := run(t, ops.OpTypePairwise, Add, nil, a, row)
	require.Error(t, err)
	assert.Equal(t, status.TypeMismatch, status.CodeOf(err))

	// Broadcast ops align axes to the right.
	assert.Equal(t, [][]float32{{101, 202}, {103, 204}}, mustRun(t, ops.OpTypeBroadcast, Add, nil, a, row).Value())
	col := tensors.FromFlatDataAndDimensions([]float32{1, 2}, 2, 1)
	assert.Equal(t, [][]float32{{101, 201}, {102, 202}}, mustRun(t, ops.OpTypeBroadcast, Add, nil, col, row).Value())
}

func TestScalar(t *testing.T) {
	ones := tensors.FromScalarAndDimensions(float32(1), 3, 3)
	withScalar := func(ctx *ops.Context) { ctx.Scalar = tensors.FromScalar(float32(3)) }
	out := mustRun(t, ops.OpTypeScalar, Mul, withScalar, ones)
	assert.True(t, out.Equal(tensors.FromScalarAndDimensions(float32(3), 3, 3)))

	withTArg := func(ctx *ops.Context) { ctx.TArgs = []float64{5} }
	x := tensors.FromFlatDataAndDimensions([]float64{4, 5, 6}, 3)
	assert.Equal(t, []bool{true, false, false}, mustRun(t, ops.OpTypeScalar, LessThan, withTArg, x).Value())
	assert.Equal(t, []float64{9, 10, 11}, mustRun(t, ops.OpTypeScalar, Add, withTArg, x).Value())

	_, err := run(t, ops.OpTypeScalar, Add, nil, x)
	require.Error(t, err)
}

func TestReductions(t *testing.T) {
	x := tensors.FromScalarAndDimensions(float32(3), 3, 3)
	axis1 := func(ctx *ops.Context) { ctx.Dimensions = []int{1} }
	mean := mustRun(t, ops.OpTypeReduce, ReduceMean, axis1, x)
	assert.Equal(t, []float32{3, 3, 3}, mean.Value())
	sum := mustRun(t, ops.OpTypeReduce, ReduceSum, axis1, x)
	assert.Equal(t, []float32{9, 9, 9}, sum.Value())

	y := tensors.FromFlatDataAndDimensions([]float64{1, 5, 3, 4, 2, 6}, 2, 3)
	keep := func(ctx *ops.Context) { ctx.Dimensions = []int{0}; ctx.IArgs = []int{1} }
	assert.Equal(t, [][]float64{{4, 5, 6}}, mustRun(t, ops.OpTypeReduce, ReduceMax, keep, y).Value())
	assert.Equal(t, 1.0, mustRun(t, ops.OpTypeReduce, ReduceMin, nil, y).Value())

	assert.Equal(t, []int64{1, 2}, mustRun(t, ops.OpTypeIndexReduce, ArgMax, nil, y).Value())
	assert.Equal(t, []int64{0, 1, 0}, mustRun(t, ops.OpTypeIndexReduce, ArgMin,
		func(ctx *ops.Context) { ctx.Dimensions = []int{0} }, y).Value())

	_, err := run(t, ops.OpTypeReduce, ReduceSum, func(ctx *ops.Context) { ctx.Dimensions = []int{2} }, y)
	require.Error(t, err)

	assert.Equal(t, true, mustRun(t, ops.OpTypeBoolean, Any, nil, y).Value())
	assert.Equal(t, false, mustRun(t, ops.OpTypeBoolean, All, nil,
		tensors.FromFlatDataAndDimensions([]bool{true, false}, 2)).Value())
}

func TestShapeOps(t *testing.T) {
	x := tensors.FromFlatDataAndDimensions([]int32{1, 2, 3, 4, 5, 6}, 2, 3)
	assert.Equal(t, []int64{2, 3}, mustRun(t, ops.OpTypeShape, ShapeOf, nil, x).Value())
	reshaped := mustRun(t, ops.OpTypeShape, Reshape, func(ctx *ops.Context) { ctx.IArgs = []int{3, -1} }, x)
	assert.Equal(t, [][]int32{{1, 2}, {3, 4}, {5, 6}}, reshaped.Value())
	_, err := run(t, ops.OpTypeShape, Reshape, func(ctx *ops.Context) { ctx.IArgs = []int{4, -1} }, x)
	require.Error(t, err)
}

func TestRandom(t *testing.T) {
	sample := func(seed uint64) *tensors.Tensor {
		return mustRun(t, ops.OpTypeRandom, RandomUniform, func(ctx *ops.Context) {
			ctx.Seed = seed
			ctx.IArgs = []int{4}
			ctx.TArgs = []float64{-1, 1}
		})
	}
	a, b := sample(7), sample(7)
	assert.Equal(t, dtypes.Float32, a.DType())
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(sample(8)))
	for _, v := range a.Float64s() {
		assert.True(t, v >= -1 && v <= 1)
	}
}

func TestLogic(t *testing.T) {
	x := tensors.FromScalar(float32(1))
	merged := mustRun(t, ops.OpTypeLogic, ops.LogicMerge, nil, x, nil)
	assert.Same(t, x, merged)
	y := tensors.FromScalar(float32(2))
	assert.Same(t, y, mustRun(t, ops.OpTypeLogic, ops.LogicMerge, nil, x, y))
	_, err := run(t, ops.OpTypeLogic, ops.LogicMerge, nil, nil, nil)
	assert.Equal(t, status.MissingInput, status.CodeOf(err))

	op, _ := ops.Lookup(ops.OpTypeLogic, ops.LogicSwitch)
	assert.True(t, op.Describe().Divergent)
	_, err = run(t, ops.OpTypeLogic, ops.LogicLoopCond, nil, tensors.FromFlatDataAndDimensions([]bool{true, false}, 2))
	assert.Equal(t, status.TypeMismatch, status.CodeOf(err))
}

func TestCustom(t *testing.T) {
	matmul, found := ops.LookupCustom("matmul")
	require.True(t, found)
	a := tensors.FromFlatDataAndDimensions([]float64{1, 2, 3, 4, 5, 6}, 2, 3)
	b := tensors.FromFlatDataAndDimensions([]float64{1, 0, 0, 1, 1, 1}, 3, 2)
	ctx := ops.NewContext(1, []*tensors.Tensor{a, b}, 1)
	require.NoError(t, matmul.Execute(ctx))
	assert.Equal(t, [][]float64{{4, 5}, {10, 11}}, ctx.Output(0).Value())

	bgemm, found := ops.LookupCustom("batched_gemm")
	require.True(t, found)
	batchA := tensors.FromFlatDataAndDimensions([]float64{1, 2, 3, 4, 1, 0, 0, 1}, 2, 2, 2)
	batchB := tensors.FromFlatDataAndDimensions([]float64{1, 1, 1, 1, 5, 6, 7, 8}, 2, 2, 2)
	ctx = ops.NewContext(1, []*tensors.Tensor{batchA, batchB}, 1)
	ctx.Pool = workerspool.New(2)
	ctx.TArgs = []float64{2}
	require.NoError(t, bgemm.Execute(ctx))
	assert.Equal(t, [][][]float64{{{6, 6}, {14, 14}}, {{10, 12}, {14, 16}}}, ctx.Output(0).Value())

	// Transposed A, and accumulation into C with beta.
	ctx = ops.NewContext(1, []*tensors.Tensor{batchA, batchB, tensors.FromScalarAndDimensions(1.0, 2, 2, 2)}, 1)
	ctx.IArgs = []int{1, 0}
	ctx.TArgs = []float64{1, 10}
	require.NoError(t, bgemm.Execute(ctx))
	assert.Equal(t, [][][]float64{{{14, 14}, {16, 16}}, {{15, 16}, {17, 18}}}, ctx.Output(0).Value())

	ctx = ops.NewContext(1, []*tensors.Tensor{batchA, b}, 1)
	require.Error(t, bgemm.Execute(ctx))
}
