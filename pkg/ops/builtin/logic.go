// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package builtin

import (
	"github.com/zwb12580/deeplearning4j/pkg/ops"
	"github.com/zwb12580/deeplearning4j/pkg/status"
)

// forward sets output 0 to input 0. The control-flow semantics of the logic ops are implemented by the
// executioner.
func forward(ctx *ops.Context) error {
	if err := ctx.RequireInputs(1); err != nil {
		return err
	}
	ctx.SetOutput(0, ctx.Input(0))
	return nil
}

// predicate forwards its input 0, which must hold a single element.
func predicate(ctx *ops.Context) error {
	if err := ctx.RequireInputs(1); err != nil {
		return err
	}
	if size := ctx.Input(0).Size(); size != 1 {
		return status.Errorf(status.TypeMismatch, "node #%d: predicate must have one element, got shape %s",
			ctx.NodeID, ctx.Input(0).Shape())
	}
	ctx.SetOutput(0, ctx.Input(0))
	return nil
}

// merge forwards the last of its inputs that is available.
func merge(ctx *ops.Context) error {
	for i := ctx.NumInputs() - 1; i >= 0; i-- {
		if input := ctx.Input(i); input != nil {
			ctx.SetOutput(0, input)
			return nil
		}
	}
	return status.Errorf(status.MissingInput, "node #%d: merge has no available inputs", ctx.NodeID)
}

func registerLogic() {
	ops.Register(ops.OpTypeLogic, ops.LogicSwitch, ops.NewOpFunc(
		ops.Descriptor{Name: "switch", NumInputs: 1, NumOutputs: 1, NumIArgs: 2, Divergent: true}, predicate))
	ops.Register(ops.OpTypeLogic, ops.LogicMerge, ops.NewOpFunc(
		ops.Descriptor{Name: "merge", NumInputs: ops.Variadic, NumOutputs: 1, OptionalInputs: true}, merge))
	ops.Register(ops.OpTypeLogic, ops.LogicLoopCond, ops.NewOpFunc(
		ops.Descriptor{Name: "loop_cond", NumInputs: 1, NumOutputs: 1}, predicate))
	ops.Register(ops.OpTypeLogic, ops.LogicNextIteration, ops.NewOpFunc(
		ops.Descriptor{Name: "next_iteration", NumInputs: 1, NumOutputs: 1}, forward))
	ops.Register(ops.OpTypeLogic, ops.LogicEnter, ops.NewOpFunc(
		ops.Descriptor{Name: "enter", NumInputs: 1, NumOutputs: 1}, forward))
	ops.Register(ops.OpTypeLogic, ops.LogicExit, ops.NewOpFunc(
		ops.Descriptor{Name: "exit", NumInputs: 1, NumOutputs: 1}, forward))
}
