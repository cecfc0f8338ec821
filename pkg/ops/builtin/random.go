// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package builtin

import (
	"github.com/zwb12580/deeplearning4j/pkg/core/dtypes"
	"github.com/zwb12580/deeplearning4j/pkg/core/shapes"
	"github.com/zwb12580/deeplearning4j/pkg/ops"
)

// randomOp fills a Float32 tensor with dimensions iArgs. The random state comes from the Context, so
// results only depend on the invocation seed.
func randomOp(sample func(ctx *ops.Context) float64) func(ctx *ops.Context) error {
	return func(ctx *ops.Context) error {
		for _, dim := range ctx.IArgs {
			if dim < 0 {
				return ctx.Errorf("random: invalid dimensions %v", ctx.IArgs)
			}
		}
		output, err := ctx.AllocOutput(0, shapes.Make(dtypes.Float32, ctx.IArgs...))
		if err != nil {
			return err
		}
		values := make([]float64, output.Size())
		for i := range values {
			values[i] = sample(ctx)
		}
		output.SetFloat64s(values)
		return nil
	}
}

func registerRandom() {
	ops.Register(ops.OpTypeRandom, RandomUniform, ops.NewOpFunc(
		ops.Descriptor{Name: "random_uniform", NumInputs: 0, NumOutputs: 1, NumIArgs: ops.Variadic, NumTArgs: ops.Variadic},
		randomOp(func(ctx *ops.Context) float64 {
			low, high := ctx.TArg(0, 0), ctx.TArg(1, 1)
			return low + (high-low)*ctx.RNG().Float64()
		})))
	ops.Register(ops.OpTypeRandom, RandomNormal, ops.NewOpFunc(
		ops.Descriptor{Name: "random_normal", NumInputs: 0, NumOutputs: 1, NumIArgs: ops.Variadic, NumTArgs: ops.Variadic},
		randomOp(func(ctx *ops.Context) float64 {
			return ctx.TArg(0, 0) + ctx.TArg(1, 1)*ctx.RNG().NormFloat64()
		})))
}
