// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package builtin

import (
	"github.com/zwb12580/deeplearning4j/pkg/core/shapes"
	"github.com/zwb12580/deeplearning4j/pkg/ops"
	"github.com/zwb12580/deeplearning4j/pkg/status"
)

// gemmDims returns the (m, k, n) dimensions of the product of the last two axes of lhs and rhs,
// optionally transposed.
func gemmDims(lhs, rhs shapes.Shape, transA, transB bool) (m, k, n int, err error) {
	if lhs.Rank() < 2 || rhs.Rank() < 2 {
		return 0, 0, 0, status.Errorf(status.TypeMismatch, "matrix product requires rank >= 2, got %s and %s", lhs, rhs)
	}
	m, k = lhs.Dim(-2), lhs.Dim(-1)
	if transA {
		m, k = k, m
	}
	rhsK, n := rhs.Dim(-2), rhs.Dim(-1)
	if transB {
		rhsK, n = n, rhsK
	}
	if k != rhsK {
		return 0, 0, 0, status.Errorf(status.TypeMismatch, "matrix product of incompatible shapes %s and %s", lhs, rhs)
	}
	return
}

// gemm computes out = alpha * op(a) x op(b) + beta * out, for row-major matrices.
func gemm(a, b, out []float64, m, k, n int, transA, transB bool, alpha, beta float64) {
	for row := range m {
		for col := range n {
			var sum float64
			for i := range k {
				aIdx := row*k + i
				if transA {
					aIdx = i*m + row
				}
				bIdx := i*n + col
				if transB {
					bIdx = col*k + i
				}
				sum += a[aIdx] * b[bIdx]
			}
			out[row*n+col] = alpha*sum + beta*out[row*n+col]
		}
	}
}

// batchedGemm multiplies batches of matrices: inputs are A [batch, M, K] and B [batch, K, N], plus an
// optional C [batch, M, N] accumulated with beta. tArgs are (alpha, beta), iArgs are (transA, transB).
// Batches are distributed over the compute pool.
type batchedGemm struct{}

var (
	_ ops.DeclarableOp  = batchedGemm{}
	_ ops.ShapeInferrer = batchedGemm{}
)

// Describe implements ops.DeclarableOp.
func (batchedGemm) Describe() ops.Descriptor {
	return ops.Descriptor{Name: "batched_gemm", NumInputs: ops.Variadic, NumOutputs: 1,
		NumTArgs: ops.Variadic, NumIArgs: ops.Variadic}
}

// OutputShapes implements ops.ShapeInferrer.
func (batchedGemm) OutputShapes(ctx *ops.Context, inputs []shapes.Shape) ([]shapes.Shape, error) {
	if len(inputs) < 2 {
		return nil, status.Errorf(status.TypeMismatch, "batched_gemm requires at least 2 inputs, got %d", len(inputs))
	}
	lhs, rhs := inputs[0], inputs[1]
	if lhs.Rank() != 3 || rhs.Rank() != 3 || lhs.Dim(0) != rhs.Dim(0) {
		return nil, status.Errorf(status.TypeMismatch, "batched_gemm requires [batch, M, K] x [batch, K, N], got %s and %s", lhs, rhs)
	}
	m, _, n, err := gemmDims(lhs, rhs, ctx.IArg(0, 0) != 0, ctx.IArg(1, 0) != 0)
	if err != nil {
		return nil, err
	}
	return []shapes.Shape{shapes.Make(lhs.DType, lhs.Dim(0), m, n)}, nil
}

// Execute implements ops.DeclarableOp.
func (op batchedGemm) Execute(ctx *ops.Context) error {
	if err := ctx.RequireInputs(2); err != nil {
		return err
	}
	outputShapes, err := op.OutputShapes(ctx, ctx.InputShapes())
	if err != nil {
		return err
	}
	lhs, rhs := ctx.Input(0), ctx.Input(1)
	transA, transB := ctx.IArg(0, 0) != 0, ctx.IArg(1, 0) != 0
	m, k, n, _ := gemmDims(lhs.Shape(), rhs.Shape(), transA, transB)
	alpha, beta := ctx.TArg(0, 1), ctx.TArg(1, 0)

	batch := outputShapes[0].Dim(0)
	results := make([]float64, outputShapes[0].Size())
	if c := ctx.Input(2); c != nil {
		if !c.Shape().EqualDimensions(outputShapes[0]) {
			return status.Errorf(status.TypeMismatch, "batched_gemm: C has shape %s, expected %s", c.Shape(), outputShapes[0])
		}
		results = c.Float64s()
	}
	a, b := lhs.Float64s(), rhs.Float64s()
	ctx.Pool.ParallelFor(batch, func(i int) {
		gemm(a[i*m*k:(i+1)*m*k], b[i*k*n:(i+1)*k*n], results[i*m*n:(i+1)*m*n], m, k, n, transA, transB, alpha, beta)
	})
	output, err := ctx.AllocOutput(0, outputShapes[0])
	if err != nil {
		return err
	}
	output.SetFloat64s(results)
	return nil
}

// matMul multiplies two matrices [M, K] x [K, N].
type matMul struct{}

var (
	_ ops.DeclarableOp  = matMul{}
	_ ops.ShapeInferrer = matMul{}
)

// Describe implements ops.DeclarableOp.
func (matMul) Describe() ops.Descriptor {
	return ops.Descriptor{Name: "matmul", NumInputs: 2, NumOutputs: 1, NumIArgs: ops.Variadic}
}

// OutputShapes implements ops.ShapeInferrer.
func (matMul) OutputShapes(ctx *ops.Context, inputs []shapes.Shape) ([]shapes.Shape, error) {
	if len(inputs) != 2 || inputs[0].Rank() != 2 || inputs[1].Rank() != 2 {
		return nil, status.Errorf(status.TypeMismatch, "matmul requires two matrices")
	}
	m, _, n, err := gemmDims(inputs[0], inputs[1], ctx.IArg(0, 0) != 0, ctx.IArg(1, 0) != 0)
	if err != nil {
		return nil, err
	}
	return []shapes.Shape{shapes.Make(inputs[0].DType, m, n)}, nil
}

// Execute implements ops.DeclarableOp.
func (op matMul) Execute(ctx *ops.Context) error {
	if err := ctx.RequireInputs(2); err != nil {
		return err
	}
	outputShapes, err := op.OutputShapes(ctx, ctx.InputShapes())
	if err != nil {
		return err
	}
	transA, transB := ctx.IArg(0, 0) != 0, ctx.IArg(1, 0) != 0
	m, k, n, _ := gemmDims(ctx.Input(0).Shape(), ctx.Input(1).Shape(), transA, transB)
	results := make([]float64, m*n)
	gemm(ctx.Input(0).Float64s(), ctx.Input(1).Float64s(), results, m, k, n, transA, transB, 1, 0)
	output, err := ctx.AllocOutput(0, outputShapes[0])
	if err != nil {
		return err
	}
	output.SetFloat64s(results)
	return nil
}

func registerCustom() {
	ops.RegisterCustom(matMul{})
	ops.RegisterCustom(batchedGemm{})
}
