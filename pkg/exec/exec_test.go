// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package exec_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zwb12580/deeplearning4j/pkg/core/tensors"
	"github.com/zwb12580/deeplearning4j/pkg/exec"
	"github.com/zwb12580/deeplearning4j/pkg/graph"
	"github.com/zwb12580/deeplearning4j/pkg/ops"
	"github.com/zwb12580/deeplearning4j/pkg/ops/builtin"
	"github.com/zwb12580/deeplearning4j/pkg/status"
)

func addNode(t *testing.T, g *graph.Graph, id int, opType ops.OpType, opNum int, options ...graph.NodeOption) {
	t.Helper()
	n, err := graph.NewNode(id, opType, opNum, options...)
	require.NoError(t, err)
	require.NoError(t, g.AddNode(n))
}

func in(ids ...int) graph.NodeOption {
	pairs := make([]graph.Pair, len(ids))
	for i, id := range ids {
		pairs[i] = graph.Pair{ID: id}
	}
	return graph.WithInputs(pairs...)
}

func float32s(t *testing.T, v *graph.Variable) []float32 {
	t.Helper()
	require.NotNil(t, v)
	require.True(t, v.HasTensor(), "variable %s has no tensor", v)
	return tensors.CopyFlatData[float32](v.Tensor())
}

// loopGraph counts from 0 to limit: x=0; while x < limit { x += 1 }.
func loopGraph(t *testing.T, limit float64) *graph.Graph {
	g := graph.New(graph.WithGraphName("loop"))
	require.NoError(t, g.AddVariable(graph.Pair{ID: -1}, "x", tensors.FromScalar(float32(0))))
	inFrame := graph.WithFrame(1)
	addNode(t, g, 1, ops.OpTypeLogic, ops.LogicEnter, inFrame, in(-1))
	addNode(t, g, 2, ops.OpTypeLogic, ops.LogicMerge, inFrame, in(1, 5))
	addNode(t, g, 3, ops.OpTypeScalar, builtin.LessThan, inFrame, in(2), graph.WithTArgs(limit))
	addNode(t, g, 4, ops.OpTypeLogic, ops.LogicLoopCond, inFrame, in(3))
	addNode(t, g, 5, ops.OpTypeLogic, ops.LogicNextIteration, inFrame, in(6), graph.WithRewindNode(2))
	addNode(t, g, 6, ops.OpTypeScalar, builtin.Add, inFrame, in(2), graph.WithTArgs(1))
	addNode(t, g, 7, ops.OpTypeLogic, ops.LogicExit, inFrame, in(2))
	g.AddOutput(7, 0)
	return g
}

func TestExecute_Loop(t *testing.T) {
	for _, threads := range []int{1, 4} {
		g := loopGraph(t, 5)
		require.NoError(t, exec.Execute(context.Background(), g, exec.WithThreads(threads), exec.WithIterationCap(5)))
		outputs := g.FetchOutputs()
		require.Len(t, outputs, 1)
		assert.Equal(t, 7, outputs[0].ID())
		assert.Equal(t, float32(5), outputs[0].Tensor().Value())
	}

	// Loop never entering its body.
	g := loopGraph(t, 0)
	require.NoError(t, exec.Execute(context.Background(), g))
	assert.Equal(t, float32(0), g.FetchOutputs()[0].Tensor().Value())
}

func TestExecute_IterationCap(t *testing.T) {
	g := loopGraph(t, 5)
	err := exec.Execute(context.Background(), g, exec.WithIterationCap(3))
	require.Error(t, err)
	assert.Equal(t, status.IterationCapExceeded, status.CodeOf(err))
	assert.Equal(t, 4, status.NodeOf(err))
	assert.Empty(t, g.FetchOutputs())
}

func TestExecute_EmbeddedGraph(t *testing.T) {
	inner := graph.New(graph.WithGraphID(2), graph.WithGraphName("double"))
	require.NoError(t, inner.AddPlaceholder(graph.Pair{ID: -1}, "in"))
	addNode(t, inner, 1, ops.OpTypeScalar, builtin.Mul, in(-1), graph.WithTArgs(2))

	// The inner placeholder -1 shadows the outer variable -1.
	g := graph.New(graph.WithGraphName("outer"))
	require.NoError(t, g.AddVariable(graph.Pair{ID: -1}, "x", tensors.FromFlatDataAndDimensions([]float32{2, 4}, 2)))
	addNode(t, g, 1, ops.OpTypeGraph, 0, graph.WithEmbeddedGraph(inner), in(-1))
	require.NoError(t, exec.Execute(context.Background(), g))
	outputs := g.FetchOutputs()
	require.Len(t, outputs, 1)
	assert.Equal(t, []float32{4, 8}, float32s(t, outputs[0]))

	// The outer variable is untouched.
	x, found := g.Variables().Get(graph.Pair{ID: -1})
	require.True(t, found)
	assert.Equal(t, []float32{2, 4}, float32s(t, x))
}

func TestExecute_ReduceMean(t *testing.T) {
	g := graph.New()
	require.NoError(t, g.AddVariable(graph.Pair{ID: -1}, "x", tensors.FromScalarAndDimensions(float32(3), 3, 3)))
	addNode(t, g, 1, ops.OpTypeReduce, builtin.ReduceMean, in(-1), graph.WithDimensions(1))
	require.NoError(t, exec.Execute(context.Background(), g))
	outputs := g.FetchOutputs()
	require.Len(t, outputs, 1)
	assert.Equal(t, []int{3}, outputs[0].Shape().Dimensions)
	assert.Equal(t, []float32{3, 3, 3}, float32s(t, outputs[0]))
}

// branchGraph: if pred { -x } else { x * 2 }.
func branchGraph(t *testing.T, pred bool) *graph.Graph {
	g := graph.New(graph.WithGraphName("branch"))
	require.NoError(t, g.AddVariable(graph.Pair{ID: -1}, "pred", tensors.FromScalar(pred)))
	require.NoError(t, g.AddVariable(graph.Pair{ID: -2}, "x", tensors.FromFlatDataAndDimensions([]float32{1, -2, 3}, 3)))
	require.NoError(t, g.AddScope(1, "then"))
	require.NoError(t, g.AddScope(2, "else"))
	addNode(t, g, 1, ops.OpTypeLogic, ops.LogicSwitch, in(-1), graph.WithIArgs(1, 2))
	addNode(t, g, 2, ops.OpTypeTransformSame, builtin.Neg, in(-2), graph.WithScope(1, "then"))
	addNode(t, g, 3, ops.OpTypeScalar, builtin.Mul, in(-2), graph.WithTArgs(2), graph.WithScope(2, "else"))
	addNode(t, g, 4, ops.OpTypeTransformSame, builtin.Abs, in(2), graph.WithScope(1, "then"))
	addNode(t, g, 5, ops.OpTypeLogic, ops.LogicMerge, in(4, 3))
	g.AddOutput(5, 0)
	return g
}

func TestExecute_Branch(t *testing.T) {
	g := branchGraph(t, false)
	result, err := exec.Run(context.Background(), g, exec.WithProfiling())
	require.NoError(t, err)
	require.Len(t, result.Outputs, 1)
	assert.Equal(t, []float32{2, -4, 6}, float32s(t, result.Outputs[0]))

	// Slots of the branch not taken are absent.
	assert.False(t, result.Variables.Has(graph.Pair{ID: 2}))
	assert.False(t, result.Variables.Has(graph.Pair{ID: 4}))
	assert.True(t, result.Variables.Has(graph.Pair{ID: 1}))
	assert.True(t, result.Variables.Has(graph.Pair{ID: 5}))
	for _, v := range result.Variables.Variables() {
		assert.Truef(t, v.HasTensor(), "variable %s", v)
	}
	skipped := map[int]int{}
	for _, np := range result.Profile.Nodes() {
		skipped[np.ID] = np.Skipped
	}
	assert.Equal(t, map[int]int{1: 0, 2: 1, 3: 0, 4: 1, 5: 0}, skipped)

	g = branchGraph(t, true)
	require.NoError(t, exec.Execute(context.Background(), g))
	assert.Equal(t, []float32{1, 2, 3}, float32s(t, g.FetchOutputs()[0]))
}

func TestExecute_ImplicitOutputs(t *testing.T) {
	g := graph.New()
	require.NoError(t, g.AddVariable(graph.Pair{ID: -1}, "x", tensors.FromFlatDataAndDimensions([]float32{-1, 2}, 2)))
	addNode(t, g, 1, ops.OpTypeTransformSame, builtin.Neg, in(-1))
	for id := 2; id <= 7; id++ {
		addNode(t, g, id, ops.OpTypeTransformSame, builtin.Abs, in(id-1))
	}
	require.NoError(t, exec.Execute(context.Background(), g, exec.WithThreads(2)))
	outputs := g.FetchOutputs()
	require.Len(t, outputs, 1)
	assert.Equal(t, 7, outputs[0].ID())
	assert.Equal(t, []float32{1, 2}, float32s(t, outputs[0]))
}

func TestExecute_CycleWithoutRewind(t *testing.T) {
	g := graph.New()
	addNode(t, g, 1, ops.OpTypeTransformSame, builtin.Neg, in(2))
	addNode(t, g, 2, ops.OpTypeTransformSame, builtin.Neg, in(1))
	result, err := exec.Run(context.Background(), g)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, status.CycleWithoutRewind, status.CodeOf(err))
}

// randomGraph sums several random tensors.
func randomGraph(t *testing.T) *graph.Graph {
	g := graph.New(graph.WithGraphName("random"))
	for id := 1; id <= 8; id++ {
		opNum := builtin.RandomUniform
		if id%2 == 0 {
			opNum = builtin.RandomNormal
		}
		addNode(t, g, id, ops.OpTypeRandom, opNum, graph.WithIArgs(4, 5))
	}
	addNode(t, g, 9, ops.OpTypePairwise, builtin.Add, in(1, 2))
	addNode(t, g, 10, ops.OpTypePairwise, builtin.Add, in(3, 4))
	addNode(t, g, 11, ops.OpTypePairwise, builtin.Add, in(5, 6))
	addNode(t, g, 12, ops.OpTypePairwise, builtin.Mul, in(7, 8))
	addNode(t, g, 13, ops.OpTypePairwise, builtin.Add, in(9, 10))
	addNode(t, g, 14, ops.OpTypePairwise, builtin.Sub, in(11, 12))
	return g
}

func TestExecute_Deterministic(t *testing.T) {
	run := func(threads int, seed uint64) [][]float32 {
		g := randomGraph(t)
		require.NoError(t, exec.Execute(context.Background(), g, exec.WithThreads(threads), exec.WithSeed(seed)))
		var values [][]float32
		for _, v := range g.FetchOutputs() {
			values = append(values, float32s(t, v))
		}
		return values
	}
	want := run(1, 42)
	require.Len(t, want, 2)
	for _, threads := range []int{2, 3, 8} {
		assert.Equal(t, want, run(threads, 42), "threads=%d", threads)
	}
	assert.NotEqual(t, want, run(1, 43))
}

func TestExecute_Clone(t *testing.T) {
	g := branchGraph(t, false)
	require.NoError(t, g.Build())
	clone := g.Clone()
	require.NoError(t, exec.Execute(context.Background(), g))
	require.NoError(t, exec.Execute(context.Background(), clone))
	require.Len(t, clone.FetchOutputs(), 1)
	assert.Equal(t, float32s(t, g.FetchOutputs()[0]), float32s(t, clone.FetchOutputs()[0]))

	// Executions of the clone don't affect the original.
	assert.NotSame(t, g.Results(), clone.Results())
}

func TestExecute_InPlace(t *testing.T) {
	build := func(inPlace bool) *graph.Graph {
		g := graph.New()
		require.NoError(t, g.AddVariable(graph.Pair{ID: -1}, "x", tensors.FromFlatDataAndDimensions([]float32{1, -2, 3, -4}, 2, 2)))
		addNode(t, g, 1, ops.OpTypeScalar, builtin.Add, in(-1), graph.WithTArgs(1))
		addNode(t, g, 2, ops.OpTypeTransformSame, builtin.Neg, in(1), graph.WithInPlace(inPlace))
		addNode(t, g, 3, ops.OpTypeScalar, builtin.Mul, in(2), graph.WithTArgs(3), graph.WithInPlace(inPlace))
		// x is an external variable: it is never overwritten.
		addNode(t, g, 4, ops.OpTypeTransformSame, builtin.Abs, in(-1), graph.WithInPlace(inPlace))
		return g
	}
	inPlaceCount := func(result *exec.Result) int {
		var count int
		for _, np := range result.Profile.Nodes() {
			count += np.InPlace
		}
		return count
	}

	plain, err := exec.Run(context.Background(), build(false), exec.WithProfiling(), exec.WithThreads(1))
	require.NoError(t, err)
	assert.Equal(t, 0, inPlaceCount(plain))

	g := build(true)
	inPlace, err := exec.Run(context.Background(), g, exec.WithProfiling(), exec.WithThreads(1))
	require.NoError(t, err)
	assert.Equal(t, 2, inPlaceCount(inPlace))
	require.Len(t, inPlace.Outputs, len(plain.Outputs))
	for i := range plain.Outputs {
		assert.Equal(t, float32s(t, plain.Outputs[i]), float32s(t, inPlace.Outputs[i]))
	}
	x, found := g.Variables().Get(graph.Pair{ID: -1})
	require.True(t, found)
	assert.Equal(t, []float32{1, -2, 3, -4}, float32s(t, x))
}

func TestExecute_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := exec.Execute(ctx, loopGraph(t, 5))
	require.Error(t, err)
	assert.Equal(t, status.Cancelled, status.CodeOf(err))

	err = exec.Execute(context.Background(), loopGraph(t, 5), exec.WithDeadline(time.Now().Add(-time.Second)))
	assert.Equal(t, status.Cancelled, status.CodeOf(err))
}

func TestExecute_OutOfMemory(t *testing.T) {
	g := graph.New()
	require.NoError(t, g.AddVariable(graph.Pair{ID: -1}, "x", tensors.FromScalarAndDimensions(float32(1), 2, 3)))
	addNode(t, g, 1, ops.OpTypeTransformSame, builtin.Neg, in(-1))
	result, err := exec.Run(context.Background(), g, exec.WithWorkspaceLimit(16))
	require.Error(t, err)
	assert.Equal(t, status.OutOfMemory, status.CodeOf(err))
	assert.Equal(t, 1, status.NodeOf(err))
	require.NotNil(t, result)
	assert.Empty(t, result.Outputs)

	result, err = exec.Run(context.Background(), graph.New(), exec.WithWorkspaceLimit(16))
	require.NoError(t, err)
	assert.Empty(t, result.Outputs)

	result, err = exec.Run(context.Background(), g, exec.WithWorkspaceLimit(24))
	require.NoError(t, err)
	assert.Equal(t, uint64(24), result.WorkspacePeak)
}

func TestExecute_OpFailure(t *testing.T) {
	failing := ops.NewOpFunc(ops.Descriptor{Name: "failing", NumInputs: 1, NumOutputs: 1}, func(ctx *ops.Context) error {
		return ctx.Errorf("failed on purpose")
	})
	panicking := ops.NewOpFunc(ops.Descriptor{Name: "panicking", NumInputs: 1, NumOutputs: 1}, func(ctx *ops.Context) error {
		panic("panicked on purpose")
	})
	for _, op := range []ops.DeclarableOp{failing, panicking} {
		g := graph.New()
		require.NoError(t, g.AddVariable(graph.Pair{ID: -1}, "x", tensors.FromScalar(float32(1))))
		n, err := graph.NewCustomNode(3, op, in(-1))
		require.NoError(t, err)
		require.NoError(t, g.AddNode(n))
		err = exec.Execute(context.Background(), g)
		require.Error(t, err)
		assert.Equal(t, status.OpFailed, status.CodeOf(err))
		assert.Equal(t, 3, status.NodeOf(err))
	}
}

func TestExecute_MissingInput(t *testing.T) {
	g := graph.New()
	require.NoError(t, g.AddPlaceholder(graph.Pair{ID: -1}, "x"))
	addNode(t, g, 1, ops.OpTypeTransformSame, builtin.Neg, in(-1))
	addNode(t, g, 2, ops.OpTypeTransformSame, builtin.Abs, in(1))
	err := exec.Execute(context.Background(), g)
	require.Error(t, err)
	assert.Equal(t, status.MissingInput, status.CodeOf(err))
	assert.Equal(t, 1, status.NodeOf(err))
}

func TestExecute_FailureCancelsLayer(t *testing.T) {
	failed := make(chan struct{})
	var lateRuns atomic.Int32
	failing := ops.NewOpFunc(ops.Descriptor{Name: "failing", NumInputs: 1, NumOutputs: 1}, func(ctx *ops.Context) error {
		time.Sleep(10 * time.Millisecond)
		close(failed)
		return ctx.Errorf("failed on purpose")
	})
	slow := ops.NewOpFunc(ops.Descriptor{Name: "slow", NumInputs: 1, NumOutputs: 1}, func(ctx *ops.Context) error {
		<-failed
		time.Sleep(100 * time.Millisecond)
		ctx.SetOutput(0, ctx.Input(0).Clone())
		return nil
	})
	late := ops.NewOpFunc(ops.Descriptor{Name: "late", NumInputs: 1, NumOutputs: 1}, func(ctx *ops.Context) error {
		lateRuns.Add(1)
		ctx.SetOutput(0, ctx.Input(0).Clone())
		return nil
	})

	g := graph.New()
	require.NoError(t, g.AddVariable(graph.Pair{ID: -1}, "x", tensors.FromScalar(float32(1))))
	for id, op := range map[int]ops.DeclarableOp{1: failing, 2: slow, 3: late} {
		n, err := graph.NewCustomNode(id, op, in(-1))
		require.NoError(t, err)
		require.NoError(t, g.AddNode(n))
	}
	err := exec.Execute(context.Background(), g, exec.WithThreads(2))
	require.Error(t, err)
	assert.Equal(t, status.OpFailed, status.CodeOf(err))
	assert.Equal(t, 1, status.NodeOf(err))
	assert.Zero(t, lateRuns.Load(), "node 3 dispatched after node 1 failed")
}

func TestRun_Profile(t *testing.T) {
	result, err := exec.Run(context.Background(), loopGraph(t, 5), exec.WithProfiling())
	require.NoError(t, err)
	require.NotNil(t, result.Profile)
	assert.Equal(t, 5, result.Profile.Iterations[1])
	calls := map[int]int{}
	for _, np := range result.Profile.Nodes() {
		calls[np.ID] = np.Calls
	}
	assert.Equal(t, map[int]int{1: 1, 2: 6, 3: 6, 4: 6, 5: 6, 6: 6, 7: 1}, calls)
	assert.Len(t, result.Profile.Slowest(3), 3)
	assert.Contains(t, result.Profile.String(), "loop_cond")
	assert.Contains(t, result.String(), result.RunID.String())
}
