// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package exec

import (
	"fmt"
	"slices"
	"time"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"github.com/zwb12580/deeplearning4j/pkg/core/tensors"
	"github.com/zwb12580/deeplearning4j/pkg/graph"
	"github.com/zwb12580/deeplearning4j/pkg/ops"
	"github.com/zwb12580/deeplearning4j/pkg/status"
	"go.uber.org/multierr"
	"k8s.io/klog/v2"
)

// nodeOutcome is returned by the execution of a node: its error, and the variables it consumed, to be
// released after the layer barrier.
type nodeOutcome struct {
	releases []release
	err      error
}

type release struct {
	space *graph.VariableSpace
	key   graph.Pair
}

// resolvedInput is an input of a node, as found in the variable spaces. v is nil if the input is not
// available (e.g. a back-edge in the first iteration).
type resolvedInput struct {
	v      *graph.Variable
	holder *graph.VariableSpace
	owned  bool
}

func (in resolvedInput) tensor() *tensors.Tensor {
	if in.v == nil {
		return nil
	}
	return in.v.Tensor()
}

// runNode executes one node: resolve its inputs, run its op (or embedded graph), store its outputs.
//
// Inactive nodes (disabled, or in a scope not selected) and nodes with a skipped producer store
// skip markers, variables without tensor, so that their consumers are skipped in turn. Merge (and any
// op accepting optional inputs) is the exception: it runs with whatever inputs are available.
func (r *graphRun) runNode(n *graph.Node) (outcome nodeOutcome) {
	var sample nodeSample
	if r.profiled {
		start := time.Now()
		defer func() {
			sample.outer = time.Since(start)
			r.profile.record(n, sample)
		}()
	}
	if outcome.err = r.checkContext(n.ID()); outcome.err != nil {
		return
	}
	read, write, inst := r.spaces(n)
	active := n.IsActive() && (!n.IsScoped() || r.scopeSelected(n, read))
	in, skip, err := r.resolveInputs(n, read, inst, active, &outcome.releases)
	if err != nil {
		outcome.err = err
		return
	}
	if !active || skip {
		sample.skipped = true
		if klog.V(3).Enabled() {
			klog.Infof("run %s graph #%d: skipped %s (active=%v)", r.runID, r.g.ID(), n, active)
		}
		outcome.err = r.storeSkipped(n, write)
		return
	}

	var outputs []*tensors.Tensor
	if n.EmbeddedGraph() != nil {
		outputs, err = r.runEmbedded(n, read, inst, in)
	} else {
		outputs, err = r.runOp(n, inst, in, &sample)
	}
	if err != nil {
		outcome.err = err
		return
	}
	if klog.V(3).Enabled() {
		klog.Infof("run %s graph #%d: executed %s, %d outputs (in-place=%v)", r.runID, r.g.ID(), n, len(outputs), sample.inPlace)
	}
	outcome.err = r.storeOutputs(n, write, in, outputs, sample.inPlace)
	return
}

// resolveInputs looks up the inputs of n. Back-edges are read from the previous iteration of the
// frame. If strict, a missing required input is a status.MissingInput error.
//
// skip is true if a required input is a skip marker, or if no input at all is available.
func (r *graphRun) resolveInputs(n *graph.Node, read *graph.VariableSpace, inst *frameInstance, strict bool,
	releases *[]release) (in []resolvedInput, skip bool, err error) {
	optional := n.Descriptor().OptionalInputs
	in = make([]resolvedInput, len(n.Inputs()))
	var available int
	for i, key := range n.Inputs() {
		space, backEdge := read, false
		if key.ID >= 0 && inst != nil {
			if src, found := r.g.NodeByID(key.ID); found && src.RewindNode() == n.ID() {
				space, backEdge = inst.previous, true
			}
		}
		if space == nil {
			continue
		}
		v, holder, owned := r.lookup(space, key)
		if v == nil {
			if strict && !backEdge && !optional {
				return nil, false, status.NodeErrorf(status.MissingInput, n.ID(),
					"input #%d (%s) of node %s is not available", i, key, n)
			}
			continue
		}
		in[i] = resolvedInput{v: v, holder: holder, owned: owned}
		if owned {
			*releases = append(*releases, release{space: holder, key: key})
		}
		if !v.HasTensor() {
			if !optional {
				skip = true
			}
			continue
		}
		available++
	}
	if len(in) > 0 && available == 0 {
		skip = true
	}
	return in, skip, nil
}

func (r *graphRun) iterationOf(inst *frameInstance) int {
	if inst == nil {
		return 0
	}
	return inst.iteration
}

// runOp invokes the op of n, holding one of the executioner's workspaces.
func (r *graphRun) runOp(n *graph.Node, inst *frameInstance, in []resolvedInput, sample *nodeSample) ([]*tensors.Tensor, error) {
	op := n.Op()
	if op == nil {
		return nil, status.NodeErrorf(status.InvalidGraph, n.ID(), "node %s has no operator bound", n)
	}
	inputs := make([]*tensors.Tensor, len(in))
	for i, input := range in {
		inputs[i] = input.tensor()
	}
	iteration := r.iterationOf(inst)
	ctx := ops.NewContext(n.ID(), inputs, n.NumOutputs())
	ctx.FrameID, ctx.Iteration = n.FrameID(), iteration
	ctx.TArgs, ctx.IArgs, ctx.Dimensions, ctx.Scalar = n.TArgs(), n.IArgs(), n.Dimensions(), n.Scalar()
	ctx.Seed = SubSeed(r.seed, n.ID(), n.FrameID(), iteration)
	ctx.Pool = r.cfg.pool
	ctx.InPlace = r.canRunInPlace(n, ctx, in)

	var ws *ops.Workspace
	select {
	case ws = <-r.workspaces:
	case <-r.ctx.Done():
		return nil, r.checkContext(n.ID())
	}
	ctx.Workspace = ws
	defer func() {
		sample.bytes = ws.Reset()
		r.workspaces <- ws
	}()

	var err error
	start := time.Now()
	exception := exceptions.Try(func() { err = op.Execute(ctx) })
	sample.inner = time.Since(start)
	if exception != nil {
		if panicErr, ok := exception.(error); ok {
			err = errors.Wrap(panicErr, "op panicked")
		} else {
			err = errors.Errorf("op panicked: %v", exception)
		}
	}
	if err != nil {
		return nil, opError(n, err)
	}
	outputs := ctx.Outputs()
	for k, t := range outputs {
		if t == nil {
			return nil, status.OpFailedError(n.ID(), errors.Errorf("op %q did not set output #%d", opName(n), k))
		}
	}
	sample.inPlace = ctx.InPlace && len(outputs) > 0 && len(inputs) > 0 && outputs[0] == inputs[0]
	return outputs, nil
}

// opError annotates an error returned by an op. Workspace exhaustion keeps its code, everything else is
// an op failure.
func opError(n *graph.Node, err error) error {
	err = errors.WithMessagef(err, "executing %s", n)
	if status.CodeOf(err) == status.OutOfMemory {
		return status.Wrap(err, status.OutOfMemory, n.ID())
	}
	return status.OpFailedError(n.ID(), err)
}

// canRunInPlace returns whether the op of n may write its output 0 over its input 0: the node and the
// op allow it, n is the last consumer of the input, which belongs to this run and is not referenced
// anywhere else, and the output has the very same shape.
func (r *graphRun) canRunInPlace(n *graph.Node, ctx *ops.Context, in []resolvedInput) bool {
	if !n.IsInPlace() || !n.Descriptor().InPlace || len(in) == 0 {
		return false
	}
	first := in[0]
	if first.v == nil || !first.owned || !first.v.HasTensor() {
		return false
	}
	if first.v.Remaining() != 1 || first.v.IsPinned() || r.pinned.Has(first.v.Key()) || r.isAliased(first.v.Tensor()) {
		return false
	}
	for _, other := range in[1:] {
		if other.tensor() == first.v.Tensor() {
			return false
		}
	}
	inferrer, ok := n.Op().(ops.ShapeInferrer)
	if !ok {
		return false
	}
	outputShapes, err := inferrer.OutputShapes(ctx, ctx.InputShapes())
	return err == nil && len(outputShapes) > 0 && outputShapes[0].Equal(first.v.Tensor().Shape())
}

// storeOutputs writes the outputs of n in space.
func (r *graphRun) storeOutputs(n *graph.Node, space *graph.VariableSpace, in []resolvedInput, outputs []*tensors.Tensor, inPlace bool) error {
	var errs []error
	for k, t := range outputs {
		key := graph.Pair{ID: n.ID(), Index: k}
		if t == nil {
			errs = append(errs, space.PutSkipped(key))
			continue
		}
		if _, err := space.PutWithConsumers(key, outputName(n, k), t, r.releaseCount(n, key)); err != nil {
			errs = append(errs, err)
			continue
		}
		if r.pinned.Has(key) {
			space.Pin(key)
		}
		if k == 0 && inPlace {
			continue
		}
		if slices.ContainsFunc(in, func(input resolvedInput) bool { return input.tensor() == t }) {
			r.alias(t)
		}
	}
	return multierr.Combine(errs...)
}

// storeSkipped marks all outputs of n as skipped. Their slots stay absent for Get and Has.
func (r *graphRun) storeSkipped(n *graph.Node, space *graph.VariableSpace) error {
	var errs []error
	for k := range n.NumOutputs() {
		errs = append(errs, space.PutSkipped(graph.Pair{ID: n.ID(), Index: k}))
	}
	return multierr.Combine(errs...)
}

// releaseCount returns the number of consumers of the output key of n, after which it can be dropped,
// or 0 if it must be kept until the end of the run.
//
// Kept are: predicates (read by the executioner itself), graph outputs, values invariant in the frame
// iterations, values read from another frame, and values carried by a back-edge.
func (r *graphRun) releaseCount(n *graph.Node, key graph.Pair) int {
	if n.IsDivergencePoint() || n.IsLoopCond() || r.pinned.Has(key) {
		return 0
	}
	consumers := r.g.Consumers(key)
	if len(consumers) == 0 {
		return 0
	}
	place := r.g.PlaceFrame(n)
	if f, found := r.g.Frame(place); found {
		if (n.IsEnter() && n.FrameID() == place) || n.Layer() < f.RewindLayer {
			return 0
		}
	}
	for _, id := range consumers {
		consumer, found := r.g.NodeByID(id)
		if !found || consumer.FrameID() != place || id == n.RewindNode() {
			return 0
		}
	}
	return len(consumers)
}

// runEmbedded runs the graph embedded in n, in a space branched from the one n reads from: the inner
// graph sees the outer external variables, shadowed by its own variables, and its placeholders are
// fed with the inputs of n in declaration order.
func (r *graphRun) runEmbedded(n *graph.Node, read *graph.VariableSpace, inst *frameInstance, in []resolvedInput) ([]*tensors.Tensor, error) {
	inner := n.EmbeddedGraph()
	if !inner.IsBuilt() {
		if err := inner.Build(); err != nil {
			return nil, status.Wrap(errors.WithMessagef(err, "building graph embedded in %s", n), status.InvalidGraph, n.ID())
		}
	}
	placeholders := inner.Placeholders()
	if len(in) != len(placeholders) {
		return nil, status.NodeErrorf(status.TypeMismatch, n.ID(),
			"node %s has %d inputs, its embedded graph #%d takes %d", n, len(in), inner.ID(), len(placeholders))
	}
	iteration := r.iterationOf(inst)
	child := read.Branch(n.FrameID(), iteration)
	for _, v := range inner.Variables().Variables() {
		if err := r.feed(child, v.Key(), v.Name(), v.Tensor()); err != nil {
			return nil, status.Wrap(err, status.DoubleWrite, n.ID())
		}
	}
	for i, p := range placeholders {
		if err := r.feed(child, p.Key(), p.Name(), in[i].tensor()); err != nil {
			return nil, status.Wrap(err, status.DoubleWrite, n.ID())
		}
	}

	sub := r.newGraphRun(r.ctx, inner, child, SubSeed(r.seed, n.ID(), n.FrameID(), iteration))
	klog.V(2).Infof("run %s graph #%d: node %s runs embedded graph #%d %q", r.runID, r.g.ID(), n, inner.ID(), inner.Name())
	if err := sub.execute(); err != nil {
		return nil, status.Wrap(errors.WithMessagef(err, "in graph #%d embedded in %s", inner.ID(), n), status.OpFailed, n.ID())
	}

	keys := inner.OutputKeys()
	outputs := make([]*tensors.Tensor, len(keys))
	for i, key := range keys {
		v, _, _ := sub.lookup(child, key)
		if v == nil {
			return nil, status.NodeErrorf(status.MissingInput, n.ID(),
				"output %s of graph #%d embedded in %s was not produced", key, inner.ID(), n)
		}
		outputs[i] = v.Tensor()
	}
	return outputs, nil
}

// feed writes an input of an embedded graph into its space. Tensors are shared with the outer
// graph, hence aliased; a missing tensor becomes a skip marker.
func (r *graphRun) feed(space *graph.VariableSpace, key graph.Pair, name string, t *tensors.Tensor) error {
	if t == nil {
		return space.PutSkipped(key)
	}
	r.alias(t)
	_, err := space.PutNamed(key, name, t)
	return err
}

// outputName is the name of the variable holding output k of n.
func outputName(n *graph.Node, k int) string {
	if n.Name() == "" || k == 0 {
		return n.Name()
	}
	return fmt.Sprintf("%s:%d", n.Name(), k)
}
