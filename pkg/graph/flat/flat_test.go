// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package flat

import (
	"bytes"
	"path/filepath"
	"testing"

	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zwb12580/deeplearning4j/pkg/core/tensors"
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

// richGraph exercises every field of the format: variables, placeholders, scopes, scalars, custom ops,
// embedded graphs and declared outputs.
func richGraph(t *testing.T) *graph.Graph {
	g := graph.New(graph.WithGraphID(17), graph.WithGraphName("rich"))
	require.NoError(t, g.AddVariable(graph.Pair{ID: -1}, "pred", tensors.FromScalar(true)))
	require.NoError(t, g.AddVariable(graph.Pair{ID: -2}, "x",
		tensors.FromFlatDataAndDimensions([]float32{1, 2, 3, 4, 5, 6}, 2, 3)))
	require.NoError(t, g.AddPlaceholder(graph.Pair{ID: -3}, "fed"))
	require.NoError(t, g.AddScope(1, "then"))
	require.NoError(t, g.AddScope(2, "else"))

	addNode(t, g, 1, ops.OpTypeLogic, ops.LogicSwitch, graph.WithInputs(graph.Pair{ID: -1}), graph.WithIArgs(1, 2))
	addNode(t, g, 2, ops.OpTypeTransformSame, builtin.Neg, graph.WithName("neg"),
		graph.WithInputs(graph.Pair{ID: -2}), graph.WithScope(1, "then"), graph.WithInPlace(true))
	addNode(t, g, 3, ops.OpTypeReduce, builtin.ReduceMean, graph.WithInputs(graph.Pair{ID: -2}),
		graph.WithDimensions(1), graph.WithIArgs(1), graph.WithScope(2, "else"))
	addNode(t, g, 4, ops.OpTypeScalar, builtin.Mul, graph.WithInputs(graph.Pair{ID: -2}),
		graph.WithScalar(tensors.FromScalar(float32(3))), graph.WithControlDeps(1))

	matmul := mustFind(ops.LookupCustom("matmul"))
	n, err := graph.NewCustomNode(5, matmul, graph.WithInputs(graph.Pair{ID: 4}, graph.Pair{ID: -3}), graph.WithIArgs(0, 1))
	require.NoError(t, err)
	require.NoError(t, g.AddNode(n))

	inner := graph.New(graph.WithGraphID(3), graph.WithGraphName("double"))
	require.NoError(t, inner.AddPlaceholder(graph.Pair{ID: -1}, "in"))
	addNode(t, inner, 1, ops.OpTypeScalar, builtin.Mul, graph.WithInputs(graph.Pair{ID: -1}), graph.WithTArgs(2))
	addNode(t, g, 6, ops.OpTypeGraph, 0, graph.WithEmbeddedGraph(inner), graph.WithInputs(graph.Pair{ID: 4}))

	g.AddOutput(6, 0)
	g.AddOutput(5, 0)
	require.NoError(t, g.Build())
	return g
}

func mustFind[T any](value T, found bool) T {
	if !found {
		panic("not found")
	}
	return value
}

func layerIDs(g *graph.Graph) [][]int {
	var ids [][]int
	for _, layer := range g.Layers() {
		var layerIDs []int
		for _, n := range layer {
			layerIDs = append(layerIDs, n.ID())
		}
		ids = append(ids, layerIDs)
	}
	return ids
}

func assertSameGraph(t *testing.T, want, got *graph.Graph) {
	t.Helper()
	assert.Equal(t, want.ID(), got.ID())
	assert.Equal(t, want.Name(), got.Name())
	require.Equal(t, want.NodeIDs(), got.NodeIDs())
	assert.Equal(t, want.ScopeIDs(), got.ScopeIDs())
	assert.Equal(t, want.DeclaredOutputs(), got.DeclaredOutputs())
	assert.Equal(t, layerIDs(want), layerIDs(got))

	wantVars, gotVars := want.Variables().Variables(), got.Variables().Variables()
	require.Len(t, gotVars, len(wantVars))
	for i, v := range wantVars {
		assert.Equal(t, v.Key(), gotVars[i].Key())
		assert.Equal(t, v.Name(), gotVars[i].Name())
		assert.True(t, v.Tensor().Equal(gotVars[i].Tensor()), "variable %s", v.Key())
	}
	require.Len(t, got.Placeholders(), len(want.Placeholders()))
	for i, p := range want.Placeholders() {
		assert.Equal(t, p.Key(), got.Placeholders()[i].Key())
		assert.Equal(t, p.Name(), got.Placeholders()[i].Name())
	}

	for _, id := range want.NodeIDs() {
		wantNode := mustFind(want.NodeByID(id))
		gotNode := mustFind(got.NodeByID(id))
		assert.True(t, wantNode.Equals(gotNode), "node %s vs %s", wantNode, gotNode)
		assert.Equal(t, wantNode.Name(), gotNode.Name())
		assert.Equal(t, wantNode.Inputs(), gotNode.Inputs())
		assert.Equal(t, wantNode.TArgs(), gotNode.TArgs())
		assert.Equal(t, wantNode.IArgs(), gotNode.IArgs())
		assert.Equal(t, wantNode.Dimensions(), gotNode.Dimensions())
		assert.Equal(t, wantNode.ControlDeps(), gotNode.ControlDeps())
		assert.Equal(t, wantNode.ScopeID(), gotNode.ScopeID())
		assert.Equal(t, wantNode.ScopeName(), gotNode.ScopeName())
		assert.Equal(t, wantNode.FrameID(), gotNode.FrameID())
		assert.Equal(t, wantNode.RewindNode(), gotNode.RewindNode())
		assert.Equal(t, wantNode.IsInPlace(), gotNode.IsInPlace())
		if wantNode.Scalar() != nil {
			require.NotNil(t, gotNode.Scalar())
			assert.True(t, wantNode.Scalar().Equal(gotNode.Scalar()))
		}
		if wantNode.EmbeddedGraph() != nil {
			require.NotNil(t, gotNode.EmbeddedGraph())
			assertSameGraph(t, wantNode.EmbeddedGraph(), gotNode.EmbeddedGraph())
		}
	}
}

func TestRoundTrip(t *testing.T) {
	g := richGraph(t)
	t.Run("plain", func(t *testing.T) {
		got, err := FromBytes(Encode(g))
		require.NoError(t, err)
		assert.True(t, got.IsBuilt())
		assertSameGraph(t, g, got)
	})
	t.Run("size-prefixed", func(t *testing.T) {
		buf := EncodeSizePrefixed(g)
		assert.Equal(t, len(buf)-flatbuffers.SizeUint32, int(flatbuffers.GetSizePrefix(buf, 0)))
		got, err := FromBytes(buf)
		require.NoError(t, err)
		assertSameGraph(t, g, got)
	})
	t.Run("custom op binding", func(t *testing.T) {
		got := must.M1(FromBytes(Encode(g)))
		n := mustFind(got.NodeByID(5))
		require.NotNil(t, n.CustomOp())
		assert.Equal(t, "matmul", n.CustomOp().Describe().Name)
	})
}

func TestRoundTrip_Loop(t *testing.T) {
	g := graph.New()
	require.NoError(t, g.AddVariable(graph.Pair{ID: -1}, "i", tensors.FromScalar(float32(0))))
	inFrame := graph.WithFrame(1)
	addNode(t, g, 1, ops.OpTypeLogic, ops.LogicEnter, inFrame, graph.WithInputs(graph.Pair{ID: -1}))
	addNode(t, g, 2, ops.OpTypeLogic, ops.LogicMerge, inFrame, graph.WithInputs(graph.Pair{ID: 1}, graph.Pair{ID: 5}))
	addNode(t, g, 3, ops.OpTypeScalar, builtin.LessThan, inFrame, graph.WithInputs(graph.Pair{ID: 2}), graph.WithTArgs(5))
	addNode(t, g, 4, ops.OpTypeLogic, ops.LogicLoopCond, inFrame, graph.WithInputs(graph.Pair{ID: 3}))
	addNode(t, g, 5, ops.OpTypeLogic, ops.LogicNextIteration, inFrame, graph.WithInputs(graph.Pair{ID: 6}), graph.WithRewindNode(2))
	addNode(t, g, 6, ops.OpTypeScalar, builtin.Add, inFrame, graph.WithInputs(graph.Pair{ID: 2}), graph.WithTArgs(1))
	addNode(t, g, 7, ops.OpTypeLogic, ops.LogicExit, inFrame, graph.WithInputs(graph.Pair{ID: 2}))
	require.NoError(t, g.Build())

	got := must.M1(FromBytes(Encode(g)))
	assertSameGraph(t, g, got)
	assert.Equal(t, [][]int{{1}, {2}, {3, 6}, {4, 5}, {7}}, layerIDs(got))
	frame := mustFind(got.Frame(1))
	assert.Equal(t, 1, frame.RewindLayer)
	assert.Equal(t, 3, frame.CloseLayer)
}

func TestImportExport(t *testing.T) {
	// Single terminal node #7 and no declared outputs: the output is found implicitly.
	g := graph.New()
	require.NoError(t, g.AddVariable(graph.Pair{ID: -1}, "x", tensors.FromScalar(float32(1))))
	addNode(t, g, 5, ops.OpTypeTransformSame, builtin.Neg, graph.WithInputs(graph.Pair{ID: -1}))
	addNode(t, g, 7, ops.OpTypeTransformSame, builtin.Abs, graph.WithInputs(graph.Pair{ID: 5}))

	path := filepath.Join(t.TempDir(), "implicit_output.fb")
	require.NoError(t, Export(g, path))
	got, err := Import(path)
	require.NoError(t, err)
	outputs := got.FetchOutputs()
	require.Len(t, outputs, 1)
	assert.Equal(t, graph.Pair{ID: 7}, outputs[0].Key())

	_, err = Import(filepath.Join(t.TempDir(), "missing.fb"))
	require.Error(t, err)
}

func TestFromBytes_Errors(t *testing.T) {
	t.Run("short buffer", func(t *testing.T) {
		_, err := FromBytes([]byte{1, 2, 3})
		assert.Equal(t, status.InvalidGraph, status.CodeOf(err))
	})
	t.Run("corrupt buffer", func(t *testing.T) {
		_, err := FromBytes(bytes.Repeat([]byte{0xff}, 16))
		assert.Equal(t, status.InvalidGraph, status.CodeOf(err))
	})
	t.Run("panics while decoding", func(t *testing.T) {
		for _, value := range []any{"index out of range", errors.New("bad offset"), 42} {
			err := catchCorrupt(func() { panic(value) })
			assert.Equalf(t, status.InvalidGraph, status.CodeOf(err), "panic(%v)", value)
		}
		assert.NoError(t, catchCorrupt(func() {}))
	})
	t.Run("unregistered custom op", func(t *testing.T) {
		g := graph.New()
		op := ops.NewOpFunc(ops.Descriptor{Name: "not_registered", NumInputs: 0, NumOutputs: 1},
			func(ctx *ops.Context) error { return nil })
		n := must.M1(graph.NewCustomNode(1, op))
		require.NoError(t, g.AddNode(n))
		_, err := FromBytes(Encode(g))
		assert.Equal(t, status.InvalidGraph, status.CodeOf(err))
		assert.Equal(t, 1, status.NodeOf(err))
	})
	t.Run("unresolved edge", func(t *testing.T) {
		g := graph.New()
		addNode(t, g, 1, ops.OpTypeTransformSame, builtin.Neg, graph.WithInputs(graph.Pair{ID: 9}))
		_, err := FromBytes(Encode(g))
		assert.Equal(t, status.UnresolvedEdge, status.CodeOf(err))
	})
}
