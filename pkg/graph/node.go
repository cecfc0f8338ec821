// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"
	"slices"

	"github.com/zwb12580/deeplearning4j/pkg/core/tensors"
	"github.com/zwb12580/deeplearning4j/pkg/ops"
	"github.com/zwb12580/deeplearning4j/pkg/status"
	"github.com/zwb12580/deeplearning4j/pkg/support/sets"
)

// Pair identifies an output of a node, (ID, Index), or an input slot of a consumer.
//
// Negative IDs refer to external variables of the graph (inputs, placeholders, constants).
type Pair struct {
	ID, Index int
}

// String implements fmt.Stringer.
func (p Pair) String() string { return fmt.Sprintf("%d:%d", p.ID, p.Index) }

// Node is one occurrence of an operation in a Graph.
//
// Nodes reference each other (and external variables) by id only: the Graph owns them.
type Node struct {
	id     int
	name   string
	opType ops.OpType
	opNum  int

	// op is the bound operator: a custom op given at construction, or the registry's op for
	// (opType, opNum) resolved by Graph.Build.
	op         ops.DeclarableOp
	customOp   bool
	deductable bool
	embedded   *Graph

	inputs, outputs []Pair
	controlDeps     []int
	referencedBy    []int

	dimensions []int
	tArgs      []float64
	iArgs      []int
	scalar     *tensors.Tensor

	layer   int
	active  bool
	inPlace bool

	hasExternalInputs, hasExternalOutputs bool
	hasInternalInputs, hasInternalOutputs bool

	scopeID   int
	scopeName string

	frameID                 int
	rewindNode, rewindLayer int

	// boundOp is set by BindCustomOp during construction.
	boundOp ops.DeclarableOp
}

// NodeOption configures a Node at construction.
type NodeOption func(n *Node)

// WithName sets the display name of the node.
func WithName(name string) NodeOption {
	return func(n *Node) { n.name = name }
}

// WithInputs appends the given input edges, see Node.PickInput.
func WithInputs(inputs ...Pair) NodeOption {
	return func(n *Node) {
		for _, input := range inputs {
			n.PickInput(input.ID, input.Index)
		}
	}
}

// WithDimensions sets the axes the op works on (e.g. reduced axes).
func WithDimensions(dimensions ...int) NodeOption {
	return func(n *Node) { n.dimensions = slices.Clone(dimensions) }
}

// WithTArgs sets the floating point attributes.
func WithTArgs(tArgs ...float64) NodeOption {
	return func(n *Node) { n.tArgs = slices.Clone(tArgs) }
}

// WithIArgs sets the integer attributes.
func WithIArgs(iArgs ...int) NodeOption {
	return func(n *Node) { n.iArgs = slices.Clone(iArgs) }
}

// WithScalar sets the scalar attribute.
func WithScalar(scalar *tensors.Tensor) NodeOption {
	return func(n *Node) { n.scalar = scalar }
}

// WithScope places the node in a scope: it must be registered in the graph (see Graph.AddScope).
func WithScope(id int, name string) NodeOption {
	return func(n *Node) { n.scopeID, n.scopeName = id, name }
}

// WithFrame places the node in the loop frame frameID.
func WithFrame(frameID int) NodeOption {
	return func(n *Node) { n.frameID = frameID }
}

// WithRewindNode marks the node as the source of a loop back-edge into node id.
func WithRewindNode(id int) NodeOption {
	return func(n *Node) { n.rewindNode = id }
}

// WithInPlace hints that the op may overwrite its first input.
func WithInPlace(inPlace bool) NodeOption {
	return func(n *Node) { n.inPlace = inPlace }
}

// WithEmbeddedGraph sets the inner graph executed by an ops.OpTypeGraph node.
func WithEmbeddedGraph(g *Graph) NodeOption {
	return func(n *Node) { n.embedded = g }
}

// WithControlDeps adds dependencies on nodes whose outputs are not consumed.
func WithControlDeps(ids ...int) NodeOption {
	return func(n *Node) { n.controlDeps = append(n.controlDeps, ids...) }
}

// Deductable makes the node the owner of its custom op: it is cloned with the node (if it implements
// ops.Cloner) and released when replaced (if it implements ops.Releaser).
func Deductable() NodeOption {
	return func(n *Node) { n.deductable = true }
}

// BindCustomOp binds a custom op to a node. Nodes accept a single binding: NewNode and NewCustomNode
// reject it.
func BindCustomOp(op ops.DeclarableOp) NodeOption {
	return func(n *Node) { n.boundOp = op }
}

func newNode(id int, opType ops.OpType, opNum int) *Node {
	return &Node{
		id:          id,
		opType:      opType,
		opNum:       opNum,
		layer:       -1,
		active:      true,
		frameID:     -1,
		rewindNode:  -1,
		rewindLayer: -1,
	}
}

// NewNode creates a node bound to the primitive op (opType, opNum). The op itself is looked up in the
// registry when the graph is built.
//
// Graph nodes (ops.OpTypeGraph) require WithEmbeddedGraph.
// It fails with status.InvalidGraph for unknown op types, or if a custom op is also bound.
func NewNode(id int, opType ops.OpType, opNum int, options ...NodeOption) (*Node, error) {
	if !opType.IsAOpType() {
		return nil, status.NodeErrorf(status.InvalidGraph, id, "unknown op type %d", int(opType))
	}
	if opType == ops.OpTypeCustom {
		return nil, status.NodeErrorf(status.InvalidGraph, id, "custom nodes must be created with NewCustomNode")
	}
	n := newNode(id, opType, opNum)
	for _, option := range options {
		option(n)
	}
	if n.boundOp != nil {
		return nil, status.NodeErrorf(status.InvalidGraph, id,
			"node bound to both primitive op %s/%d and custom op %q", opType, opNum, n.boundOp.Describe().Name)
	}
	if opType == ops.OpTypeGraph && n.embedded == nil {
		return nil, status.NodeErrorf(status.InvalidGraph, id, "graph node without an embedded graph")
	}
	return n, nil
}

// NewCustomNode creates a node bound to the given custom op.
func NewCustomNode(id int, op ops.DeclarableOp, options ...NodeOption) (*Node, error) {
	if op == nil {
		return nil, status.NodeErrorf(status.InvalidGraph, id, "custom node without an op")
	}
	n := newNode(id, ops.OpTypeCustom, 0)
	n.op, n.customOp = op, true
	for _, option := range options {
		option(n)
	}
	if n.boundOp != nil {
		return nil, status.NodeErrorf(status.InvalidGraph, id, "custom node bound to two ops")
	}
	if n.embedded != nil {
		return nil, status.NodeErrorf(status.InvalidGraph, id, "custom node with an embedded graph")
	}
	return n, nil
}

// ID of the node, unique within its graph.
func (n *Node) ID() int { return n.id }

// Name is the optional display name of the node.
func (n *Node) Name() string { return n.name }

// OpType of the node.
func (n *Node) OpType() ops.OpType { return n.opType }

// OpNum selects the operation within the OpType family. It is ignored for custom ops.
func (n *Node) OpNum() int { return n.opNum }

// Op returns the bound operator: the custom op, or the registry op once the graph is built.
// It is nil for graph nodes.
func (n *Node) Op() ops.DeclarableOp { return n.op }

// CustomOp returns the custom op bound to the node, or nil for primitive nodes.
func (n *Node) CustomOp() ops.DeclarableOp {
	if !n.customOp {
		return nil
	}
	return n.op
}

// IsDeductable returns whether the node owns its custom op.
func (n *Node) IsDeductable() bool { return n.deductable }

// EmbeddedGraph returns the inner graph of graph nodes, or nil.
func (n *Node) EmbeddedGraph() *Graph { return n.embedded }

// Inputs returns the input edges (source id, output index). The slice must not be modified.
func (n *Node) Inputs() []Pair { return n.inputs }

// Outputs returns the recorded consumers (consumer id, index). Duplicates are possible, see PickOutputOnce.
func (n *Node) Outputs() []Pair { return n.outputs }

// ControlDeps returns the ids of nodes this node must run after, without consuming their outputs.
func (n *Node) ControlDeps() []int { return n.controlDeps }

// ReferencedBy returns the ids of the nodes holding a dependency on this node.
func (n *Node) ReferencedBy() []int { return n.referencedBy }

// Dimensions returns the axes attribute.
func (n *Node) Dimensions() []int { return n.dimensions }

// TArgs returns the floating point attributes.
func (n *Node) TArgs() []float64 { return n.tArgs }

// IArgs returns the integer attributes.
func (n *Node) IArgs() []int { return n.iArgs }

// Scalar returns the scalar attribute, or nil.
func (n *Node) Scalar() *tensors.Tensor { return n.scalar }

// Layer of the node in the graph's layering, -1 before the graph is built.
func (n *Node) Layer() int { return n.layer }

// IsActive returns whether the node is dispatched. See SetActive.
func (n *Node) IsActive() bool { return n.active }

// SetActive enables or disables the node: an inactive node is not dispatched and, within its frame,
// nodes depending on its outputs are skipped too.
func (n *Node) SetActive(active bool) { n.active = active }

// IsInPlace returns the hint that the op may overwrite its first input.
func (n *Node) IsInPlace() bool { return n.inPlace }

// SetInPlace sets the in-place hint.
func (n *Node) SetInPlace(inPlace bool) { n.inPlace = inPlace }

// HasExternalInputs returns whether the node reads external variables.
func (n *Node) HasExternalInputs() bool { return n.hasExternalInputs }

// HasExternalOutputs returns whether the node's outputs leave the graph.
func (n *Node) HasExternalOutputs() bool { return n.hasExternalOutputs }

// HasInternalInputs returns whether the node reads outputs of other nodes.
func (n *Node) HasInternalInputs() bool { return n.hasInternalInputs }

// HasInternalOutputs returns whether other nodes of the graph consume the node's outputs.
func (n *Node) HasInternalOutputs() bool { return n.hasInternalOutputs }

// ScopeID of the node, 0 for the root scope.
func (n *Node) ScopeID() int { return n.scopeID }

// ScopeName of the node.
func (n *Node) ScopeName() string { return n.scopeName }

// IsScoped returns whether the node belongs to a non-root scope.
func (n *Node) IsScoped() bool { return n.scopeID != 0 }

// FrameID of the loop frame of the node, -1 if not in a loop.
func (n *Node) FrameID() int { return n.frameID }

// RewindNode is the target of the loop back-edge carried by this node, or -1.
func (n *Node) RewindNode() int { return n.rewindNode }

// RewindLayer is the layer of the rewind node, set by Graph.Build. It is -1 if the node carries no
// back-edge.
func (n *Node) RewindLayer() int { return n.rewindLayer }

// IsDivergencePoint returns whether the node's output selects which downstream scope runs.
func (n *Node) IsDivergencePoint() bool {
	if n.op != nil {
		return n.op.Describe().Divergent
	}
	return ops.IsLogic(n.opType, n.opNum, ops.LogicSwitch)
}

// IsEnter returns whether the node brings a value into its loop frame.
func (n *Node) IsEnter() bool { return !n.customOp && ops.IsLogic(n.opType, n.opNum, ops.LogicEnter) }

// IsExit returns whether the node takes a value out of its loop frame.
func (n *Node) IsExit() bool { return !n.customOp && ops.IsLogic(n.opType, n.opNum, ops.LogicExit) }

// IsMerge returns whether the node is a merge.
func (n *Node) IsMerge() bool { return !n.customOp && ops.IsLogic(n.opType, n.opNum, ops.LogicMerge) }

// IsLoopCond returns whether the node publishes the predicate of its loop frame.
func (n *Node) IsLoopCond() bool {
	return !n.customOp && ops.IsLogic(n.opType, n.opNum, ops.LogicLoopCond)
}

// IsNextIteration returns whether the node carries a value to the next iteration.
func (n *Node) IsNextIteration() bool {
	return !n.customOp && ops.IsLogic(n.opType, n.opNum, ops.LogicNextIteration)
}

// Descriptor returns the descriptor of the bound op. For graph nodes the number of outputs is the
// number of outputs of the embedded graph.
func (n *Node) Descriptor() ops.Descriptor {
	if n.embedded != nil {
		return ops.Descriptor{
			Name:       "graph",
			NumInputs:  len(n.embedded.placeholders),
			NumOutputs: len(n.embedded.OutputKeys()),
		}
	}
	if n.op == nil {
		return ops.Descriptor{Name: n.String(), NumInputs: ops.Variadic, NumOutputs: 1}
	}
	return n.op.Describe()
}

// NumOutputs returns the number of outputs the node produces, at least 1.
func (n *Node) NumOutputs() int {
	return max(n.Descriptor().NumOutputs, 1)
}

// PickInput appends the input edge (src, outputIndex). Negative src ids refer to external variables.
func (n *Node) PickInput(src, outputIndex int) {
	n.inputs = append(n.inputs, Pair{src, outputIndex})
	if src < 0 {
		n.hasExternalInputs = true
	} else {
		n.hasInternalInputs = true
	}
}

// PickOutput records dst as a consumer of the node, reading it at its input inputIndex.
func (n *Node) PickOutput(dst, inputIndex int) {
	n.outputs = append(n.outputs, Pair{dst, inputIndex})
	n.hasInternalOutputs = true
}

// PickOutputOnce records outputID as a consumer of the node, unless it is already recorded.
func (n *Node) PickOutputOnce(outputID int) {
	if slices.ContainsFunc(n.outputs, func(p Pair) bool { return p.ID == outputID }) {
		return
	}
	n.PickOutput(outputID, 0)
}

// PickExternalOutput records that the node's output goes to the external variable outputID.
func (n *Node) PickExternalOutput(outputID int) {
	n.outputs = append(n.outputs, Pair{outputID, 0})
	n.hasExternalOutputs = true
}

// AddReference records that node id depends on this node.
func (n *Node) AddReference(id int) {
	if !slices.Contains(n.referencedBy, id) {
		n.referencedBy = append(n.referencedBy, id)
	}
}

// Clone returns a deep copy of the node's attributes and edges. Embedded graphs are cloned, and so is
// an owned custom op that implements ops.Cloner.
func (n *Node) Clone() *Node {
	clone := *n
	clone.inputs = slices.Clone(n.inputs)
	clone.outputs = slices.Clone(n.outputs)
	clone.controlDeps = slices.Clone(n.controlDeps)
	clone.referencedBy = slices.Clone(n.referencedBy)
	clone.dimensions = slices.Clone(n.dimensions)
	clone.tArgs = slices.Clone(n.tArgs)
	clone.iArgs = slices.Clone(n.iArgs)
	if n.scalar != nil {
		clone.scalar = n.scalar.Clone()
	}
	if n.embedded != nil {
		clone.embedded = n.embedded.Clone()
	}
	if n.deductable {
		if cloner, ok := n.op.(ops.Cloner); ok {
			clone.op = cloner.Clone()
		}
	}
	return &clone
}

// PullValues overwrites the node's attributes and edges with those of other, keeping its id.
// An owned custom op being replaced is released first.
func (n *Node) PullValues(other *Node) {
	if n.deductable && n.op != nil {
		if releaser, ok := n.op.(ops.Releaser); ok {
			releaser.Release()
		}
	}
	id := n.id
	*n = *other.Clone()
	n.id = id
}

// Equals compares op binding, id and edge sets. The scalar attribute is not compared.
func (n *Node) Equals(other *Node) bool {
	if n == other {
		return true
	}
	if other == nil || n.id != other.id || n.opType != other.opType || n.opNum != other.opNum {
		return false
	}
	if n.customOp != other.customOp || (n.customOp && n.op.Describe().Name != other.op.Describe().Name) {
		return false
	}
	return sets.MakeWith(n.inputs...).Equal(sets.MakeWith(other.inputs...)) &&
		sets.MakeWith(n.outputs...).Equal(sets.MakeWith(other.outputs...))
}

// String implements fmt.Stringer.
func (n *Node) String() string {
	var opName string
	switch {
	case n.customOp:
		opName = n.op.Describe().Name
	case n.op != nil:
		opName = fmt.Sprintf("%s/%d:%s", n.opType, n.opNum, n.op.Describe().Name)
	default:
		opName = fmt.Sprintf("%s/%d", n.opType, n.opNum)
	}
	if n.name != "" {
		return fmt.Sprintf("#%d %q (%s)", n.id, n.name, opName)
	}
	return fmt.Sprintf("#%d (%s)", n.id, opName)
}
