// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package exec

import (
	"cmp"
	"slices"

	"github.com/zwb12580/deeplearning4j/pkg/graph"
	"github.com/zwb12580/deeplearning4j/pkg/status"
	"github.com/zwb12580/deeplearning4j/pkg/support/sets"
	"k8s.io/klog/v2"
)

// frameInstance is a running loop frame: it is created when the first of its nodes runs (normally an
// Enter) and lives until its last node ran after the loop ended.
//
// Values entering the frame, and nodes of the frame below its rewind layer, are stored in base: they
// are invariant across iterations. Each iteration stores its values in a space branched from base.
type frameInstance struct {
	frame *graph.Frame

	base, current *graph.VariableSpace

	// previous iteration space, where back-edges are read from. Nil in the first iteration.
	previous *graph.VariableSpace

	iteration int
	exiting   bool
}

// spaceFor returns the space where n, a node placed in this frame, stores its outputs.
func (inst *frameInstance) spaceFor(n *graph.Node) *graph.VariableSpace {
	if (n.IsEnter() && n.FrameID() == inst.frame.ID) || n.Layer() < inst.frame.RewindLayer {
		return inst.base
	}
	return inst.current
}

func (r *graphRun) prepareFrames() {
	r.closing = make(map[int][]*graph.Frame)
	r.rerunStart = make(map[int]int)
	r.lastLayer = make(map[int]int)
	r.ancestors = make(map[int]sets.Set[int])
	frames := r.g.Frames()
	for _, f := range frames {
		ancestors := sets.Make[int]()
		for p := f.Parent; p >= 0 && !ancestors.Has(p); {
			ancestors.Insert(p)
			parent, found := r.g.Frame(p)
			if !found {
				break
			}
			p = parent.Parent
		}
		r.ancestors[f.ID] = ancestors
		last := -1
		for _, n := range f.Nodes {
			last = max(last, n.Layer())
		}
		r.lastLayer[f.ID] = last
		if f.CloseLayer >= 0 {
			r.closing[f.CloseLayer] = append(r.closing[f.CloseLayer], f)
		}
	}

	// Re-runs of a frame start at its rewind layer, or earlier if a nested frame has nodes before it.
	for _, f := range frames {
		start := f.RewindLayer
		for _, nested := range frames {
			if !r.ancestors[nested.ID].Has(f.ID) {
				continue
			}
			for _, n := range nested.Nodes {
				start = min(start, n.Layer())
			}
		}
		r.rerunStart[f.ID] = start
	}

	// Frames closing at the same layer: deepest first, then by id.
	for _, closing := range r.closing {
		slices.SortFunc(closing, func(a, b *graph.Frame) int {
			if c := cmp.Compare(b.Depth, a.Depth); c != 0 {
				return c
			}
			return cmp.Compare(a.ID, b.ID)
		})
	}
}

// instance returns the running instance of the frame, or nil.
func (r *graphRun) instance(frameID int) *frameInstance {
	r.muFrames.Lock()
	defer r.muFrames.Unlock()
	return r.instances[frameID]
}

// enterFrame returns the running instance of the frame, creating it (and the instances of its
// enclosing frames) if needed.
func (r *graphRun) enterFrame(frameID int) *frameInstance {
	r.muFrames.Lock()
	defer r.muFrames.Unlock()
	return r.lockedEnterFrame(frameID)
}

func (r *graphRun) lockedEnterFrame(frameID int) *frameInstance {
	if inst, found := r.instances[frameID]; found {
		return inst
	}
	f, _ := r.g.Frame(frameID)
	parentSpace := r.root
	if f.Parent >= 0 {
		parentSpace = r.lockedEnterFrame(f.Parent).current
	}
	base := parentSpace.Branch(f.ID, 0)
	inst := &frameInstance{frame: f, base: base, current: base.Branch(f.ID, 0)}
	r.instances[frameID] = inst
	klog.V(3).Infof("run %s graph #%d: entered frame %d", r.runID, r.g.ID(), frameID)
	return inst
}

// spaces returns where n reads its inputs from and writes its outputs to, and the frame instance it
// runs in (nil outside loop frames).
func (r *graphRun) spaces(n *graph.Node) (read, write *graph.VariableSpace, inst *frameInstance) {
	if n.FrameID() < 0 {
		return r.root, r.root, nil
	}
	inst = r.enterFrame(n.FrameID())
	read, write = inst.current, inst.spaceFor(n)
	if n.IsExit() {
		write = r.root
		if parentID := inst.frame.Parent; parentID >= 0 {
			write = r.enterFrame(parentID).spaceFor(n)
		}
	}
	return read, write, inst
}

// closeFrames evaluates the predicate of the running frames closing at layer, and runs their
// iterations until it is false.
func (r *graphRun) closeFrames(layer int, filter func(n *graph.Node) bool, skip int) error {
	for _, f := range r.closing[layer] {
		if f.ID == skip || (filter != nil && !filter(f.LoopConds[0])) {
			continue
		}
		inst := r.instance(f.ID)
		if inst == nil || inst.exiting {
			continue
		}
		if err := r.iterate(inst); err != nil {
			return err
		}
	}
	return nil
}

// iterate runs the iterations of the frame instance while its predicate is true. The first iteration
// already ran.
func (r *graphRun) iterate(inst *frameInstance) error {
	f := inst.frame
	for {
		next, err := r.predicate(inst)
		if err != nil {
			return err
		}
		if !next {
			inst.exiting = true
			klog.V(2).Infof("run %s graph #%d: frame %d exits after %d iterations", r.runID, r.g.ID(), f.ID, inst.iteration+1)
			return nil
		}
		iteration := inst.iteration + 1
		if limit := r.cfg.iterationCap; limit > 0 && iteration > limit {
			return status.NodeErrorf(status.IterationCapExceeded, f.LoopConds[0].ID(),
				"loop frame %d exceeded the limit of %d iterations", f.ID, limit)
		}
		if err := r.checkContext(f.LoopConds[0].ID()); err != nil {
			return err
		}
		r.advance(inst, iteration)
		if r.profiled {
			r.profile.recordIteration(f.ID)
		}
		if err := r.runLayers(r.rerunStart[f.ID], f.CloseLayer, r.bodyFilter(f), f.ID); err != nil {
			return err
		}
	}
}

// predicate returns whether every LoopCond of the frame is true in the current iteration. A skipped
// LoopCond ends the loop.
func (r *graphRun) predicate(inst *frameInstance) (bool, error) {
	for _, loopCond := range inst.frame.LoopConds {
		v, _, _ := r.lookup(inst.current, graph.Pair{ID: loopCond.ID()})
		if v == nil {
			return false, status.NodeErrorf(status.MissingInput, loopCond.ID(),
				"predicate of loop frame %d not computed in iteration %d", inst.frame.ID, inst.iteration)
		}
		if !v.HasTensor() || !truthy(v.Tensor()) {
			return false, nil
		}
	}
	return true, nil
}

// advance moves the instance to the given iteration. Instances of nested frames are dropped: they are
// entered again by the new iteration.
func (r *graphRun) advance(inst *frameInstance, iteration int) {
	r.muFrames.Lock()
	defer r.muFrames.Unlock()
	for id := range r.instances {
		if r.ancestors[id].Has(inst.frame.ID) {
			delete(r.instances, id)
		}
	}
	inst.previous = inst.current
	inst.current = inst.base.Branch(inst.frame.ID, iteration)
	inst.iteration = iteration
}

// bodyFilter accepts the nodes re-run by each iteration of f: those of f from its rewind layer on
// (except Enter and Exit nodes), and all nodes of its nested frames.
func (r *graphRun) bodyFilter(f *graph.Frame) func(n *graph.Node) bool {
	return func(n *graph.Node) bool {
		if n.FrameID() == f.ID {
			return !n.IsEnter() && !n.IsExit() && n.Layer() >= f.RewindLayer
		}
		return n.FrameID() >= 0 && r.ancestors[n.FrameID()].Has(f.ID)
	}
}

// dropExitedFrames drops the instances of the frames that exited and have no nodes after layer.
func (r *graphRun) dropExitedFrames(layer int, filter func(n *graph.Node) bool) {
	r.muFrames.Lock()
	defer r.muFrames.Unlock()
	for id, inst := range r.instances {
		if !inst.exiting || r.lastLayer[id] > layer {
			continue
		}
		if filter != nil && !filter(inst.frame.LoopConds[0]) {
			continue
		}
		delete(r.instances, id)
		klog.V(3).Infof("run %s graph #%d: dropped frame %d", r.runID, r.g.ID(), id)
	}
}
