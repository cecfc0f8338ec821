// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package flat

import (
	"os"

	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/pkg/errors"
	"github.com/zwb12580/deeplearning4j/pkg/core/tensors"
	"github.com/zwb12580/deeplearning4j/pkg/graph"
	"github.com/zwb12580/deeplearning4j/pkg/support/fsutil"
	"k8s.io/klog/v2"
)

const initialBuilderSize = 1024

// Encode serializes the graph: nodes, external variables and placeholders, scopes and declared
// outputs. Layering and execution results are not serialized.
func Encode(g *graph.Graph) []byte {
	b := flatbuffers.NewBuilder(initialBuilderSize)
	b.Finish(writeGraph(b, g))
	return b.FinishedBytes()
}

// EncodeSizePrefixed is like Encode, but the buffer starts with its size.
func EncodeSizePrefixed(g *graph.Graph) []byte {
	b := flatbuffers.NewBuilder(initialBuilderSize)
	b.FinishSizePrefixed(writeGraph(b, g))
	return b.FinishedBytes()
}

// Export writes the encoded graph to path, expanded as in Import.
func Export(g *graph.Graph, path string) error {
	path, err := fsutil.ExpandPath(path)
	if err != nil {
		return err
	}
	buf := Encode(g)
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return errors.Wrapf(err, "flat.Export(%q)", path)
	}
	klog.V(1).Infof("exported graph #%d %q to %q: %d bytes", g.ID(), g.Name(), path, len(buf))
	return nil
}

func writeGraph(b *flatbuffers.Builder, g *graph.Graph) flatbuffers.UOffsetT {
	name := b.CreateString(g.Name())

	var variables []flatbuffers.UOffsetT
	for _, v := range g.Variables().Variables() {
		variables = append(variables, writeVariable(b, v, false))
	}
	for _, p := range g.Placeholders() {
		variables = append(variables, writeVariable(b, p, true))
	}
	variablesVector := writeOffsets(b, variables)

	nodeIDs := g.NodeIDs()
	nodes := make([]flatbuffers.UOffsetT, len(nodeIDs))
	for i, id := range nodeIDs {
		n, _ := g.NodeByID(id)
		nodes[i] = writeNode(b, n)
	}
	nodesVector := writeOffsets(b, nodes)

	var scopes []flatbuffers.UOffsetT
	for _, id := range g.ScopeIDs() {
		s, _ := g.Scope(id)
		scopeName := b.CreateString(s.Name)
		FlatScopeStart(b)
		FlatScopeAddId(b, int32(s.ID))
		FlatScopeAddName(b, scopeName)
		scopes = append(scopes, FlatScopeEnd(b))
	}
	scopesVector := writeOffsets(b, scopes)

	outputs := g.DeclaredOutputs()
	FlatGraphStartOutputsVector(b, len(outputs))
	for i := len(outputs) - 1; i >= 0; i-- {
		CreateIntPair(b, int32(outputs[i].ID), int32(outputs[i].Index))
	}
	outputsVector := b.EndVector(len(outputs))

	FlatGraphStart(b)
	FlatGraphAddId(b, int64(g.ID()))
	FlatGraphAddName(b, name)
	FlatGraphAddVariables(b, variablesVector)
	FlatGraphAddNodes(b, nodesVector)
	FlatGraphAddScopes(b, scopesVector)
	FlatGraphAddOutputs(b, outputsVector)
	return FlatGraphEnd(b)
}

func writeOffsets(b *flatbuffers.Builder, offsets []flatbuffers.UOffsetT) flatbuffers.UOffsetT {
	b.StartVector(4, len(offsets), 4)
	for i := len(offsets) - 1; i >= 0; i-- {
		b.PrependUOffsetT(offsets[i])
	}
	return b.EndVector(len(offsets))
}

func writeInt32s(b *flatbuffers.Builder, values []int) flatbuffers.UOffsetT {
	b.StartVector(4, len(values), 4)
	for i := len(values) - 1; i >= 0; i-- {
		b.PrependInt32(int32(values[i]))
	}
	return b.EndVector(len(values))
}

func writeVariable(b *flatbuffers.Builder, v *graph.Variable, placeholder bool) flatbuffers.UOffsetT {
	name := b.CreateString(v.Name())
	var array flatbuffers.UOffsetT
	if !placeholder && v.HasTensor() {
		array = writeArray(b, v.Tensor())
	}
	FlatVariableStart(b)
	FlatVariableAddId(b, CreateIntPair(b, int32(v.ID()), int32(v.Index())))
	FlatVariableAddName(b, name)
	if array != 0 {
		FlatVariableAddNdarray(b, array)
	}
	FlatVariableAddPlaceholder(b, placeholder)
	return FlatVariableEnd(b)
}

func writeArray(b *flatbuffers.Builder, t *tensors.Tensor) flatbuffers.UOffsetT {
	var buffer flatbuffers.UOffsetT
	t.ConstBytes(func(data []byte) {
		buffer = b.CreateByteVector(data)
	})
	dims := t.Shape().Dimensions
	FlatArrayStartShapeVector(b, len(dims))
	for i := len(dims) - 1; i >= 0; i-- {
		b.PrependInt64(int64(dims[i]))
	}
	shape := b.EndVector(len(dims))

	FlatArrayStart(b)
	FlatArrayAddShape(b, shape)
	FlatArrayAddBuffer(b, buffer)
	FlatArrayAddDtype(b, int8(t.DType()))
	return FlatArrayEnd(b)
}

func writeNode(b *flatbuffers.Builder, n *graph.Node) flatbuffers.UOffsetT {
	// Children (strings, vectors, tables) must be complete before the node table is started.
	name := b.CreateString(n.Name())
	scopeName := b.CreateString(n.ScopeName())
	var opName flatbuffers.UOffsetT
	if custom := n.CustomOp(); custom != nil {
		opName = b.CreateString(custom.Describe().Name)
	}

	inputs := n.Inputs()
	FlatNodeStartInputVector(b, len(inputs))
	for i := len(inputs) - 1; i >= 0; i-- {
		CreateIntPair(b, int32(inputs[i].ID), int32(inputs[i].Index))
	}
	inputsVector := b.EndVector(len(inputs))

	outputIDs := make([]int, len(n.Outputs()))
	for i, output := range n.Outputs() {
		outputIDs[i] = output.ID
	}
	outputsVector := writeInt32s(b, outputIDs)

	tArgs := n.TArgs()
	FlatNodeStartExtraParamsVector(b, len(tArgs))
	for i := len(tArgs) - 1; i >= 0; i-- {
		b.PrependFloat64(tArgs[i])
	}
	tArgsVector := b.EndVector(len(tArgs))

	iArgs := n.IArgs()
	FlatNodeStartExtraIntegerVector(b, len(iArgs))
	for i := len(iArgs) - 1; i >= 0; i-- {
		b.PrependInt64(int64(iArgs[i]))
	}
	iArgsVector := b.EndVector(len(iArgs))

	dimensionsVector := writeInt32s(b, n.Dimensions())
	controlDepsVector := writeInt32s(b, n.ControlDeps())

	var scalar, embedded flatbuffers.UOffsetT
	if n.Scalar() != nil {
		scalar = writeArray(b, n.Scalar())
	}
	if n.EmbeddedGraph() != nil {
		embedded = writeGraph(b, n.EmbeddedGraph())
	}

	FlatNodeStart(b)
	FlatNodeAddId(b, int32(n.ID()))
	FlatNodeAddName(b, name)
	FlatNodeAddOpType(b, int16(n.OpType()))
	FlatNodeAddOpNum(b, int64(n.OpNum()))
	FlatNodeAddInput(b, inputsVector)
	FlatNodeAddOutput(b, outputsVector)
	FlatNodeAddExtraParams(b, tArgsVector)
	FlatNodeAddExtraInteger(b, iArgsVector)
	FlatNodeAddDimensions(b, dimensionsVector)
	FlatNodeAddScopeId(b, int32(n.ScopeID()))
	FlatNodeAddScopeName(b, scopeName)
	FlatNodeAddFrameId(b, int32(n.FrameID()))
	FlatNodeAddRewindNode(b, int32(n.RewindNode()))
	if opName != 0 {
		FlatNodeAddOpName(b, opName)
	}
	if scalar != 0 {
		FlatNodeAddScalar(b, scalar)
	}
	FlatNodeAddControlDeps(b, controlDepsVector)
	if embedded != 0 {
		FlatNodeAddGraph(b, embedded)
	}
	FlatNodeAddInPlace(b, n.IsInPlace())
	return FlatNodeEnd(b)
}
