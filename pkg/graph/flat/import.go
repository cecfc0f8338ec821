// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package flat reads and writes graphs in the FlatGraph binary format (see graph.fbs), a flatbuffers
// encoding of nodes, external variables, scopes and declared outputs.
//
// Buffers may carry a 4 bytes size prefix (as written by EncodeSizePrefixed) or not: FromBytes
// detects it.
package flat

import (
	"os"

	"github.com/gomlx/exceptions"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/pkg/errors"
	"github.com/zwb12580/deeplearning4j/pkg/core/dtypes"
	"github.com/zwb12580/deeplearning4j/pkg/core/shapes"
	"github.com/zwb12580/deeplearning4j/pkg/core/tensors"
	"github.com/zwb12580/deeplearning4j/pkg/graph"
	"github.com/zwb12580/deeplearning4j/pkg/ops"
	"github.com/zwb12580/deeplearning4j/pkg/status"
	"github.com/zwb12580/deeplearning4j/pkg/support/fsutil"
	"k8s.io/klog/v2"
)

// minBufferSize is the size of the smallest valid buffer: root offset plus a vtable offset.
const minBufferSize = 8

// Import reads the graph serialized in the file at path, and builds it. The path may start with "~"
// and reference environment variables.
//
// Errors carry a status code: status.InvalidGraph for malformed content, or the code of the build
// failure (e.g. status.UnresolvedEdge).
func Import(path string) (*graph.Graph, error) {
	path, err := fsutil.ExpandPath(path)
	if err != nil {
		return nil, err
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "flat.Import(%q)", path)
	}
	g, err := FromBytes(buf)
	if err != nil {
		return nil, errors.WithMessagef(err, "flat.Import(%q)", path)
	}
	klog.V(1).Infof("imported graph #%d %q from %q: %d nodes", g.ID(), g.Name(), path, g.Size())
	return g, nil
}

// FromBytes decodes a serialized graph, with or without size prefix, and builds it.
func FromBytes(buf []byte) (g *graph.Graph, err error) {
	if len(buf) < minBufferSize {
		return nil, status.Errorf(status.InvalidGraph, "buffer too short (%d bytes) for a graph", len(buf))
	}
	var root *FlatGraph
	if int(flatbuffers.GetSizePrefix(buf, 0)) == len(buf)-flatbuffers.SizeUint32 {
		root = GetSizePrefixedRootAsFlatGraph(buf, 0)
	} else {
		root = GetRootAsFlatGraph(buf, 0)
	}

	if panicErr := catchCorrupt(func() { g, err = readGraph(root) }); panicErr != nil {
		return nil, panicErr
	}
	if err != nil {
		return nil, err
	}
	if err = g.Build(); err != nil {
		return nil, err
	}
	return g, nil
}

// catchCorrupt runs decode and converts any panic, as raised by the accessors of corrupt buffers,
// into an invalid-graph error.
func catchCorrupt(decode func()) error {
	exception := exceptions.Try(decode)
	if exception == nil {
		return nil
	}
	err, ok := exception.(error)
	if !ok {
		err = errors.Errorf("%v", exception)
	}
	return status.Wrap(errors.Wrap(err, "corrupt graph buffer"), status.InvalidGraph, status.NoNode)
}

func readGraph(fg *FlatGraph) (*graph.Graph, error) {
	g := graph.New(graph.WithGraphID(int(fg.Id())), graph.WithGraphName(string(fg.Name())))

	var scope FlatScope
	for i := range fg.ScopesLength() {
		fg.Scopes(&scope, i)
		if err := g.AddScope(int(scope.Id()), string(scope.Name())); err != nil {
			return nil, err
		}
	}

	var variable FlatVariable
	for i := range fg.VariablesLength() {
		fg.Variables(&variable, i)
		if err := readVariable(g, &variable); err != nil {
			return nil, err
		}
	}

	var fn FlatNode
	for i := range fg.NodesLength() {
		fg.Nodes(&fn, i)
		n, err := readNode(&fn)
		if err != nil {
			return nil, err
		}
		if err = g.AddNode(n); err != nil {
			return nil, err
		}
	}

	var output IntPair
	for i := range fg.OutputsLength() {
		fg.Outputs(&output, i)
		g.AddOutput(int(output.First()), int(output.Second()))
	}
	return g, nil
}

func readVariable(g *graph.Graph, fv *FlatVariable) error {
	id := fv.Id(nil)
	if id == nil {
		return status.Errorf(status.InvalidGraph, "variable %q without id", fv.Name())
	}
	key := graph.Pair{ID: int(id.First()), Index: int(id.Second())}
	array := fv.Ndarray(nil)
	if fv.Placeholder() || array == nil {
		return g.AddPlaceholder(key, string(fv.Name()))
	}
	tensor, err := readArray(array)
	if err != nil {
		return status.Wrap(err, status.InvalidGraph, key.ID)
	}
	return g.AddVariable(key, string(fv.Name()), tensor)
}

func readArray(fa *FlatArray) (*tensors.Tensor, error) {
	dtype := dtypes.DType(fa.Dtype())
	if !dtype.IsSupported() {
		return nil, errors.Errorf("unsupported dtype %d", fa.Dtype())
	}
	dims := make([]int, fa.ShapeLength())
	for i := range dims {
		dims[i] = int(fa.Shape(i))
	}
	return tensors.FromBytes(shapes.Make(dtype, dims...), fa.BufferBytes())
}

func readNode(fn *FlatNode) (*graph.Node, error) {
	id := int(fn.Id())
	options := []graph.NodeOption{
		graph.WithName(string(fn.Name())),
		graph.WithFrame(int(fn.FrameId())),
		graph.WithRewindNode(int(fn.RewindNode())),
		graph.WithInPlace(fn.InPlace()),
	}

	var pair IntPair
	inputs := make([]graph.Pair, fn.InputLength())
	for i := range inputs {
		fn.Input(&pair, i)
		inputs[i] = graph.Pair{ID: int(pair.First()), Index: int(pair.Second())}
	}
	if len(inputs) > 0 {
		options = append(options, graph.WithInputs(inputs...))
	}
	if count := fn.ExtraParamsLength(); count > 0 {
		tArgs := make([]float64, count)
		for i := range tArgs {
			tArgs[i] = fn.ExtraParams(i)
		}
		options = append(options, graph.WithTArgs(tArgs...))
	}
	if count := fn.ExtraIntegerLength(); count > 0 {
		iArgs := make([]int, count)
		for i := range iArgs {
			iArgs[i] = int(fn.ExtraInteger(i))
		}
		options = append(options, graph.WithIArgs(iArgs...))
	}
	if count := fn.DimensionsLength(); count > 0 {
		dimensions := make([]int, count)
		for i := range dimensions {
			dimensions[i] = int(fn.Dimensions(i))
		}
		options = append(options, graph.WithDimensions(dimensions...))
	}
	if count := fn.ControlDepsLength(); count > 0 {
		deps := make([]int, count)
		for i := range deps {
			deps[i] = int(fn.ControlDeps(i))
		}
		options = append(options, graph.WithControlDeps(deps...))
	}
	if scopeID := int(fn.ScopeId()); scopeID != 0 {
		options = append(options, graph.WithScope(scopeID, string(fn.ScopeName())))
	}
	if array := fn.Scalar(nil); array != nil {
		scalar, err := readArray(array)
		if err != nil {
			return nil, status.Wrap(err, status.InvalidGraph, id)
		}
		options = append(options, graph.WithScalar(scalar))
	}
	if fg := fn.Graph(nil); fg != nil {
		embedded, err := readGraph(fg)
		if err != nil {
			return nil, status.Wrap(err, status.InvalidGraph, id)
		}
		options = append(options, graph.WithEmbeddedGraph(embedded))
	}

	var (
		n   *graph.Node
		err error
	)
	opType := ops.OpType(fn.OpType())
	if opType == ops.OpTypeCustom {
		name := string(fn.OpName())
		op, found := ops.LookupCustom(name)
		if !found {
			return nil, status.NodeErrorf(status.InvalidGraph, id, "custom op %q not registered", name)
		}
		n, err = graph.NewCustomNode(id, op, options...)
	} else {
		n, err = graph.NewNode(id, opType, int(fn.OpNum()), options...)
	}
	if err != nil {
		return nil, err
	}
	for i := range fn.OutputLength() {
		if outputID := int(fn.Output(i)); outputID < 0 {
			n.PickExternalOutput(outputID)
		} else {
			n.PickOutputOnce(outputID)
		}
	}
	return n, nil
}
