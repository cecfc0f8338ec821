// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"slices"

	"github.com/pkg/errors"
	"github.com/zwb12580/deeplearning4j/pkg/ops"
	"github.com/zwb12580/deeplearning4j/pkg/status"
	"github.com/zwb12580/deeplearning4j/pkg/support/sets"
	"k8s.io/klog/v2"
)

// Frame is a loop frame of the graph, derived by Build from the nodes' frame ids.
//
// A frame is delimited by its Enter nodes (that bring values in) and its Exit nodes (that take the
// values out once the LoopCond predicate is false). Each iteration re-runs the layers from RewindLayer
// to CloseLayer.
type Frame struct {
	ID int

	// Parent is the id of the enclosing frame, -1 if the frame is not nested.
	Parent int

	// Depth is 0 for frames at the root, 1 for frames nested in those, etc.
	Depth int

	// Nodes of the frame, sorted by id, and the control-flow nodes among them.
	Nodes                                            []*Node
	Enters, Exits, Merges, LoopConds, NextIterations []*Node

	// RewindLayer is the first layer of an iteration: the layer of the rewind node (the frame's Merge).
	RewindLayer int

	// CloseLayer is the layer after which the predicate is evaluated: the max layer of the LoopCond
	// and NextIteration nodes.
	CloseLayer int
}

// Build validates the graph and computes its layering. A graph that fails to build is left without
// layering and can't be executed.
//
// It fails with:
//
//   - status.UnresolvedEdge: an input, control dependency or rewind node that doesn't exist.
//   - status.UnknownScope: a node (or a divergence target) in a scope not registered.
//   - status.TypeMismatch: a node with the wrong number of inputs for its op.
//   - status.InvalidGraph: a primitive op not in the registry, or an ill-formed loop frame.
//   - status.CycleWithoutRewind: a cycle not closed by a loop back-edge.
//
// Embedded graphs are built recursively, with this graph's variables as read-only outer scope.
// Build is idempotent.
func (g *Graph) Build() error {
	g.invalidate()
	if err := g.build(); err != nil {
		g.invalidate()
		return err
	}
	g.built = true
	klog.V(2).Infof("built graph #%d %q: %d nodes, %d layers, %d frames", g.id, g.name, len(g.nodes), len(g.layers), len(g.frames))
	return nil
}

func (g *Graph) build() error {
	ids := g.NodeIDs()
	for _, s := range g.scopes {
		s.nodes = nil
	}
	g.frames = make(map[int]*Frame)
	for _, id := range ids {
		n := g.nodes[id]
		n.layer, n.rewindLayer = -1, -1
	}

	for _, id := range ids {
		n := g.nodes[id]
		if err := g.bindOp(n); err != nil {
			return err
		}
		if err := g.validateEdges(n); err != nil {
			return err
		}
		if n.scopeID != 0 {
			s, found := g.scopes[n.scopeID]
			if !found {
				return status.NodeErrorf(status.UnknownScope, id, "node %s in unregistered scope %d (%q)", n, n.scopeID, n.scopeName)
			}
			s.nodes = append(s.nodes, id)
		}
	}

	implicitDeps, err := g.divergenceDeps(ids)
	if err != nil {
		return err
	}
	if err := g.buildFrames(ids, implicitDeps); err != nil {
		return err
	}
	if err := g.layering(ids, implicitDeps); err != nil {
		return err
	}
	for _, f := range g.frames {
		g.frameLayers(f)
	}

	for _, id := range ids {
		n := g.nodes[id]
		if n.embedded == nil {
			continue
		}
		n.embedded.outer = g
		n.embedded.variables.parent = g.variables
		if err := n.embedded.Build(); err != nil {
			return status.Wrap(errors.WithMessagef(err, "building embedded graph of node %s", n), status.InvalidGraph, id)
		}
	}
	return nil
}

// bindOp resolves the registry op of primitive nodes and checks the input arity.
func (g *Graph) bindOp(n *Node) error {
	switch {
	case n.customOp:
	case n.opType == ops.OpTypeGraph:
		if n.embedded == nil {
			return status.NodeErrorf(status.InvalidGraph, n.id, "graph node without an embedded graph")
		}
	default:
		op, found := ops.Lookup(n.opType, n.opNum)
		if !found {
			return status.NodeErrorf(status.InvalidGraph, n.id, "no op registered for %s/%d", n.opType, n.opNum)
		}
		n.op = op
	}
	desc := n.Descriptor()
	if !desc.AcceptsInputs(len(n.inputs)) {
		return status.NodeErrorf(status.TypeMismatch, n.id, "node %s has %d inputs, op %q takes %d",
			n, len(n.inputs), desc.Name, desc.NumInputs)
	}
	if desc.NumIArgs > 0 && len(n.iArgs) < desc.NumIArgs {
		return status.NodeErrorf(status.TypeMismatch, n.id, "node %s has %d integer arguments, op %q requires %d",
			n, len(n.iArgs), desc.Name, desc.NumIArgs)
	}
	if desc.NumTArgs > 0 && len(n.tArgs) < desc.NumTArgs {
		return status.NodeErrorf(status.TypeMismatch, n.id, "node %s has %d float arguments, op %q requires %d",
			n, len(n.tArgs), desc.Name, desc.NumTArgs)
	}
	return nil
}

// isExternal returns whether the external variable key is declared in g or in its enclosing graphs.
func (g *Graph) isExternal(key Pair) bool {
	for graph := g; graph != nil; graph = graph.outer {
		if graph.isDeclared(key) {
			return true
		}
	}
	return false
}

func (g *Graph) validateEdges(n *Node) error {
	for i, input := range n.inputs {
		if input.ID < 0 {
			if !g.isExternal(input) {
				return status.NodeErrorf(status.UnresolvedEdge, n.id, "input #%d of node %s: external variable %s not declared", i, n, input)
			}
			continue
		}
		if _, found := g.nodes[input.ID]; !found {
			return status.NodeErrorf(status.UnresolvedEdge, n.id, "input #%d of node %s: unknown node #%d", i, n, input.ID)
		}
		if input.Index < 0 {
			return status.NodeErrorf(status.UnresolvedEdge, n.id, "input #%d of node %s: invalid output index %d", i, n, input.Index)
		}
	}
	for _, dep := range n.controlDeps {
		if _, found := g.nodes[dep]; !found {
			return status.NodeErrorf(status.UnresolvedEdge, n.id, "control dependency of node %s on unknown node #%d", n, dep)
		}
	}
	if n.rewindNode >= 0 {
		if _, found := g.nodes[n.rewindNode]; !found {
			return status.NodeErrorf(status.UnresolvedEdge, n.id, "node %s rewinds to unknown node #%d", n, n.rewindNode)
		}
	}
	return nil
}

// divergenceDeps validates the target scopes of divergence points and returns the implicit
// dependencies of the scopes' nodes on them.
func (g *Graph) divergenceDeps(ids []int) (map[int][]int, error) {
	deps := make(map[int][]int)
	for _, id := range ids {
		n := g.nodes[id]
		if !n.IsDivergencePoint() {
			continue
		}
		if len(n.iArgs) < 2 {
			return nil, status.NodeErrorf(status.TypeMismatch, id, "divergence node %s requires 2 target scopes in its integer arguments", n)
		}
		for _, scopeID := range n.iArgs[:2] {
			if scopeID == 0 {
				continue
			}
			s, found := g.scopes[scopeID]
			if !found {
				return nil, status.NodeErrorf(status.UnknownScope, id, "divergence node %s targets unregistered scope %d", n, scopeID)
			}
			for _, member := range s.nodes {
				if member != id {
					deps[member] = append(deps[member], id)
				}
			}
		}
	}
	return deps, nil
}

// buildFrames collects the loop frames, their parents, and adds the implicit dependencies of Exit nodes
// on the frame's LoopCond and NextIteration nodes.
func (g *Graph) buildFrames(ids []int, deps map[int][]int) error {
	for _, id := range ids {
		n := g.nodes[id]
		if n.frameID < 0 {
			continue
		}
		f, found := g.frames[n.frameID]
		if !found {
			f = &Frame{ID: n.frameID, Parent: -1, RewindLayer: -1, CloseLayer: -1}
			g.frames[n.frameID] = f
		}
		f.Nodes = append(f.Nodes, n)
		switch {
		case n.IsEnter():
			f.Enters = append(f.Enters, n)
		case n.IsExit():
			f.Exits = append(f.Exits, n)
		case n.IsMerge():
			f.Merges = append(f.Merges, n)
		case n.IsLoopCond():
			f.LoopConds = append(f.LoopConds, n)
		case n.IsNextIteration():
			f.NextIterations = append(f.NextIterations, n)
		}
	}

	for _, f := range g.frames {
		if len(f.Enters) == 0 {
			return status.NodeErrorf(status.InvalidGraph, f.Nodes[0].id, "loop frame %d has no Enter node", f.ID)
		}
		if len(f.LoopConds) == 0 {
			return status.NodeErrorf(status.InvalidGraph, f.Nodes[0].id, "loop frame %d has no LoopCond node", f.ID)
		}
		for _, exit := range f.Exits {
			for _, closing := range slices.Concat(f.LoopConds, f.NextIterations) {
				deps[exit.id] = append(deps[exit.id], closing.id)
			}
		}
	}

	visiting := sets.Make[int]()
	var parentOf func(f *Frame) (int, error)
	parentOf = func(f *Frame) (int, error) {
		if visiting.Has(f.ID) {
			return -1, status.NodeErrorf(status.InvalidGraph, f.Enters[0].id, "loop frame %d is nested in itself", f.ID)
		}
		visiting.Insert(f.ID)
		defer visiting.Remove(f.ID)
		enter := f.Enters[0]
		if len(enter.inputs) == 0 || enter.inputs[0].ID < 0 {
			return -1, nil
		}
		src := g.nodes[enter.inputs[0].ID]
		if !src.IsExit() || src.frameID < 0 {
			return src.frameID, nil
		}
		return parentOf(g.frames[src.frameID])
	}
	for _, f := range g.frames {
		parent, err := parentOf(f)
		if err != nil {
			return err
		}
		f.Parent = parent
	}
	for _, f := range g.frames {
		for p := f.Parent; p >= 0; p = g.frames[p].Parent {
			if _, found := g.frames[p]; !found {
				break
			}
			f.Depth++
			if f.Depth > len(g.frames) {
				return status.NodeErrorf(status.InvalidGraph, f.Enters[0].id, "loop frame %d is nested in itself", f.ID)
			}
		}
	}
	return nil
}

// PlaceFrame returns the frame whose space receives the outputs of n: its own frame, except for Exit
// nodes, whose outputs go to the enclosing frame.
func (g *Graph) PlaceFrame(n *Node) int {
	if n.IsExit() {
		if f, found := g.frames[n.frameID]; found {
			return f.Parent
		}
	}
	return n.frameID
}

// isBackEdge returns whether the edge src -> dst is a loop back-edge.
func (g *Graph) isBackEdge(srcID int, dst *Node) bool {
	src, found := g.nodes[srcID]
	return found && src.rewindNode == dst.id
}

// predecessors returns the ids of the nodes that must run before n, excluding back-edges.
func (g *Graph) predecessors(n *Node, implicitDeps map[int][]int) []int {
	preds := sets.Make[int]()
	for _, input := range n.inputs {
		if input.ID >= 0 && !g.isBackEdge(input.ID, n) {
			preds.Insert(input.ID)
		}
	}
	preds.Insert(n.controlDeps...)
	preds.Insert(implicitDeps[n.id]...)
	preds.Remove(n.id)
	return sets.Sorted(preds)
}

// layering assigns to each node its longest path depth from the sources (Kahn's algorithm) and groups
// them in layers sorted by id.
func (g *Graph) layering(ids []int, implicitDeps map[int][]int) error {
	inDegree := make(map[int]int, len(ids))
	successors := make(map[int][]int, len(ids))
	for _, id := range ids {
		n := g.nodes[id]
		preds := g.predecessors(n, implicitDeps)
		inDegree[id] = len(preds)
		for _, pred := range preds {
			successors[pred] = append(successors[pred], id)
		}
		if slices.ContainsFunc(n.inputs, func(p Pair) bool { return p.ID == id }) && n.rewindNode != id {
			return status.NodeErrorf(status.CycleWithoutRewind, id, "node %s consumes its own output", n)
		}
	}

	var queue []int
	for _, id := range ids {
		if inDegree[id] == 0 {
			g.nodes[id].layer = 0
			queue = append(queue, id)
		}
	}
	numLayers := 0
	processed := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		processed++
		layer := g.nodes[id].layer
		numLayers = max(numLayers, layer+1)
		for _, succ := range successors[id] {
			succNode := g.nodes[succ]
			succNode.layer = max(succNode.layer, layer+1)
			inDegree[succ]--
			if inDegree[succ] == 0 {
				queue = append(queue, succ)
			}
		}
	}
	if processed < len(ids) {
		var cycle []int
		for _, id := range ids {
			if inDegree[id] > 0 {
				cycle = append(cycle, id)
			}
		}
		return status.NodeErrorf(status.CycleWithoutRewind, cycle[0],
			"nodes %v are part of (or depend on) a cycle not closed by a rewind back-edge", cycle)
	}

	g.layers = make([][]*Node, numLayers)
	for _, id := range ids {
		n := g.nodes[id]
		g.layers[n.layer] = append(g.layers[n.layer], n)
	}

	// Edge bookkeeping and rewind layers.
	g.consumers = make(map[Pair][]int)
	for _, id := range ids {
		n := g.nodes[id]
		for _, input := range n.inputs {
			g.consumers[input] = append(g.consumers[input], id)
			if src, found := g.nodes[input.ID]; found {
				src.PickOutputOnce(id)
				src.AddReference(id)
			}
		}
		for _, dep := range n.controlDeps {
			g.nodes[dep].AddReference(id)
		}
		if n.rewindNode >= 0 {
			n.rewindLayer = g.nodes[n.rewindNode].layer
		}
	}
	return nil
}

// frameLayers sets the rewind and close layers of a frame.
func (g *Graph) frameLayers(f *Frame) {
	f.RewindLayer, f.CloseLayer = -1, -1
	for _, n := range f.NextIterations {
		if n.rewindLayer >= 0 && (f.RewindLayer < 0 || n.rewindLayer < f.RewindLayer) {
			f.RewindLayer = n.rewindLayer
		}
	}
	if f.RewindLayer < 0 {
		// No back-edge: the body starts right after the frame is entered.
		for _, n := range f.Nodes {
			if !n.IsEnter() && (f.RewindLayer < 0 || n.layer < f.RewindLayer) {
				f.RewindLayer = n.layer
			}
		}
	}
	for _, n := range slices.Concat(f.LoopConds, f.NextIterations) {
		f.CloseLayer = max(f.CloseLayer, n.layer)
	}
}

// Consumers returns, for the output key, the ids of the nodes that read it (one entry per input
// edge, including loop back-edges), in ascending id order. It is available after Build.
func (g *Graph) Consumers(key Pair) []int { return g.consumers[key] }
