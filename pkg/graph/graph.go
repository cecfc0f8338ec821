// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package graph holds the data model of a dataflow graph: nodes bound to operators, the edges
// between them, the scopes of conditional branches, the loop frames, and the VariableSpace where
// executions store the tensors they produce.
//
// A graph is created empty (New), filled with AddNode, AddVariable, AddScope and AddOutput (or loaded
// with package flat) and then built: Build validates it and computes its layering, the longest path
// depth of each node, which is the dispatch unit of the executioner (package exec).
//
// Nodes reference each other by integer ids, and external variables (graph inputs) use negative ids.
// The only cycles allowed are the back-edges of loops: the edge from a node carrying a rewind node to
// that rewind node (e.g. from a NextIteration to the Merge of its frame).
package graph

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/zwb12580/deeplearning4j/pkg/core/tensors"
	"github.com/zwb12580/deeplearning4j/pkg/status"
	"golang.org/x/exp/maps"
)

// Scope is a branch-controlled subset of nodes: divergence points select which scope runs.
type Scope struct {
	ID   int
	Name string

	// nodes of the scope, sorted by id, set by Graph.Build.
	nodes []int
}

// Nodes returns the ids of the nodes of the scope, available after the graph is built.
func (s *Scope) Nodes() []int { return s.nodes }

// Graph is a container of nodes, with the layering computed by Build.
//
// A Graph is not safe for concurrent modification. Once built it can be executed concurrently, and
// then it is only modified by the executions storing their results (see FetchOutputs).
type Graph struct {
	id   int
	name string

	nodes  map[int]*Node
	layers [][]*Node
	scopes map[int]*Scope
	frames map[int]*Frame
	outer  *Graph

	// variables holds the initial (external) variables.
	variables    *VariableSpace
	placeholders []*Variable

	// outputs declared explicitly, in declaration order.
	outputs []Pair

	// consumers of each output key (node outputs and external variables), set by Build.
	consumers map[Pair][]int

	built bool

	muResults   sync.Mutex
	lastResults *VariableSpace
}

// Option configures a Graph at construction.
type Option func(g *Graph)

// WithGraphID sets the id of the graph, as stored in serialized graphs.
func WithGraphID(id int) Option {
	return func(g *Graph) { g.id = id }
}

// WithGraphName sets the display name of the graph.
func WithGraphName(name string) Option {
	return func(g *Graph) { g.name = name }
}

// New creates an empty graph.
func New(options ...Option) *Graph {
	g := &Graph{
		nodes:     make(map[int]*Node),
		scopes:    make(map[int]*Scope),
		frames:    make(map[int]*Frame),
		variables: NewVariableSpace(),
	}
	for _, option := range options {
		option(g)
	}
	return g
}

// ID of the graph.
func (g *Graph) ID() int { return g.id }

// Name of the graph.
func (g *Graph) Name() string { return g.name }

// Outer returns the enclosing graph of an embedded graph, or nil.
func (g *Graph) Outer() *Graph { return g.outer }

// Size returns the number of nodes.
func (g *Graph) Size() int { return len(g.nodes) }

// IsBuilt returns whether the graph was successfully built since its last modification.
func (g *Graph) IsBuilt() bool { return g.built }

// AddNode adds a node to the graph. It fails with status.DuplicateNodeID if the id is taken, or with
// status.InvalidGraph for negative ids (reserved for external variables).
func (g *Graph) AddNode(n *Node) error {
	if n.id < 0 {
		return status.NodeErrorf(status.InvalidGraph, n.id, "node ids must be >= 0, negative ids are external variables")
	}
	if _, found := g.nodes[n.id]; found {
		return status.NodeErrorf(status.DuplicateNodeID, n.id, "node id %d already used in graph", n.id)
	}
	g.nodes[n.id] = n
	g.invalidate()
	return nil
}

// AddScope registers a scope. Scope 0 is the root scope and can't be registered.
func (g *Graph) AddScope(id int, name string) error {
	if id == 0 {
		return status.Errorf(status.InvalidGraph, "scope 0 is the root scope")
	}
	if _, found := g.scopes[id]; found {
		return status.Errorf(status.InvalidGraph, "scope %d already registered", id)
	}
	g.scopes[id] = &Scope{ID: id, Name: name}
	g.invalidate()
	return nil
}

// Scope returns the registered scope with the given id.
func (g *Graph) Scope(id int) (*Scope, bool) {
	s, found := g.scopes[id]
	return s, found
}

// ScopeIDs returns the ids of the registered scopes, sorted.
func (g *Graph) ScopeIDs() []int {
	ids := maps.Keys(g.scopes)
	slices.Sort(ids)
	return ids
}

// AddVariable adds an external variable (key.ID < 0) holding the given tensor.
func (g *Graph) AddVariable(key Pair, name string, tensor *tensors.Tensor) error {
	if key.ID >= 0 {
		return status.Errorf(status.InvalidGraph, "external variable %s must have a negative id", key)
	}
	if _, err := g.variables.PutNamed(key, name, tensor); err != nil {
		return err
	}
	g.invalidate()
	return nil
}

// AddPlaceholder declares an external variable without value, to be fed at execution time. For
// embedded graphs, placeholders receive the inputs of the enclosing node, in declaration order.
func (g *Graph) AddPlaceholder(key Pair, name string) error {
	if key.ID >= 0 {
		return status.Errorf(status.InvalidGraph, "placeholder %s must have a negative id", key)
	}
	if g.isDeclared(key) {
		return status.NodeErrorf(status.DoubleWrite, key.ID, "variable %s already declared", key)
	}
	g.placeholders = append(g.placeholders, NewVariable(key, name, nil))
	g.invalidate()
	return nil
}

// Placeholders returns the declared placeholders, in declaration order.
func (g *Graph) Placeholders() []*Variable { return g.placeholders }

// Variables returns the initial variable space of the graph.
func (g *Graph) Variables() *VariableSpace { return g.variables }

func (g *Graph) isPlaceholder(key Pair) bool {
	return slices.ContainsFunc(g.placeholders, func(v *Variable) bool { return v.key == key })
}

func (g *Graph) isDeclared(key Pair) bool {
	return g.variables.Has(key) || g.isPlaceholder(key)
}

// AddOutput declares (id, index) as an output of the graph. Outputs are fetched in declaration order.
func (g *Graph) AddOutput(id, index int) {
	key := Pair{id, index}
	if !slices.Contains(g.outputs, key) {
		g.outputs = append(g.outputs, key)
	}
}

// DeclaredOutputs returns the explicitly declared outputs.
func (g *Graph) DeclaredOutputs() []Pair { return g.outputs }

// NodeByID returns the node with the given id.
func (g *Graph) NodeByID(id int) (*Node, bool) {
	n, found := g.nodes[id]
	return n, found
}

// NodeIDs returns the ids of all nodes, sorted.
func (g *Graph) NodeIDs() []int {
	ids := maps.Keys(g.nodes)
	slices.Sort(ids)
	return ids
}

// Layers returns the layering computed by Build: each layer holds nodes sorted by id.
// The returned slices must not be modified.
func (g *Graph) Layers() [][]*Node { return g.layers }

// Frames returns the loop frames computed by Build, sorted by id.
func (g *Graph) Frames() []*Frame {
	ids := maps.Keys(g.frames)
	slices.Sort(ids)
	frames := make([]*Frame, len(ids))
	for i, id := range ids {
		frames[i] = g.frames[id]
	}
	return frames
}

// Frame returns the loop frame with the given id.
func (g *Graph) Frame(id int) (*Frame, bool) {
	f, found := g.frames[id]
	return f, found
}

func (g *Graph) invalidate() {
	g.built = false
	g.layers = nil
	g.consumers = nil
}

// OutputKeys returns the keys of the graph outputs: the declared ones, or if none was declared the
// outputs of the nodes with external outputs or without internal consumers, sorted by id.
func (g *Graph) OutputKeys() []Pair {
	if len(g.outputs) > 0 {
		return g.outputs
	}
	var keys []Pair
	for _, id := range g.NodeIDs() {
		n := g.nodes[id]
		if !n.hasExternalOutputs && g.hasInternalConsumers(n) {
			continue
		}
		for k := range n.NumOutputs() {
			keys = append(keys, Pair{id, k})
		}
	}
	return keys
}

func (g *Graph) hasInternalConsumers(n *Node) bool {
	if g.built {
		return n.hasInternalOutputs
	}
	for _, other := range g.nodes {
		if slices.ContainsFunc(other.inputs, func(p Pair) bool { return p.ID == n.id }) {
			return true
		}
	}
	return false
}

// SetResults attaches the variable space of an execution: FetchOutputs reads from it.
// It is called by the executioner.
func (g *Graph) SetResults(results *VariableSpace) {
	g.muResults.Lock()
	defer g.muResults.Unlock()
	g.lastResults = results
}

// Results returns the variable space of the last execution, or nil.
func (g *Graph) Results() *VariableSpace {
	g.muResults.Lock()
	defer g.muResults.Unlock()
	return g.lastResults
}

// FetchOutputs returns the outputs of the graph: the declared outputs in declaration order, or, when
// none is declared, the outputs of the nodes with external outputs or without internal consumers,
// by ascending node id.
//
// Before any execution the variables returned are descriptors without tensors. After an execution only
// the outputs actually produced are returned (e.g. outputs of a branch not taken are absent).
func (g *Graph) FetchOutputs() []*Variable {
	keys := g.OutputKeys()
	results := g.Results()
	variables := make([]*Variable, 0, len(keys))
	for _, key := range keys {
		if results == nil {
			name := ""
			if n, found := g.nodes[key.ID]; found {
				name = n.name
			}
			variables = append(variables, NewVariable(key, name, nil))
			continue
		}
		if v, found := results.Get(key); found && v.HasTensor() {
			variables = append(variables, v)
		}
	}
	return variables
}

// Clone returns a deep copy of the graph: nodes, scopes, variables (tensors are copied), placeholders
// and outputs. If g is built, so is the clone.
func (g *Graph) Clone() *Graph {
	clone := New(WithGraphID(g.id), WithGraphName(g.name))
	clone.outer = g.outer
	for id, n := range g.nodes {
		clone.nodes[id] = n.Clone()
	}
	for id, s := range g.scopes {
		clone.scopes[id] = &Scope{ID: s.ID, Name: s.Name}
	}
	for _, v := range g.variables.Variables() {
		var tensor *tensors.Tensor
		if v.tensor != nil {
			tensor = v.tensor.Clone()
		}
		_, _ = clone.variables.PutNamed(v.key, v.name, tensor)
	}
	for _, p := range g.placeholders {
		clone.placeholders = append(clone.placeholders, NewVariable(p.key, p.name, nil))
	}
	clone.outputs = slices.Clone(g.outputs)
	if g.built {
		if err := clone.Build(); err != nil {
			panic(fmt.Sprintf("graph.Clone: clone of a built graph failed to build: %+v", err))
		}
	}
	return clone
}

// String returns a multi-line description of the graph and its layering.
func (g *Graph) String() string {
	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "Graph #%d %q: %d nodes, %d layers\n", g.id, g.name, len(g.nodes), len(g.layers))
	for i, layer := range g.layers {
		_, _ = fmt.Fprintf(&sb, "  layer %d:", i)
		for _, n := range layer {
			_, _ = fmt.Fprintf(&sb, " %s", n)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
