// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package exec runs built graphs (see package graph) layer by layer.
//
// Nodes of a layer have no dependencies among themselves: they are dispatched in parallel, up to the
// configured number of threads, and a barrier separates layers. After the barrier the executioner
// releases the variables whose consumers all ran, and closes the loop frames that end at the layer:
// a true LoopCond predicate re-runs the layers of the frame's body in a new iteration, a false one
// lets the frame's Exit nodes run.
//
// Every tensor produced is stored in a graph.VariableSpace: one per loop frame iteration, branched
// from the space of the enclosing frame, so that each (frame, iteration, node, output) slot is written
// once.
//
// Configuration is given with functional options, or as text with ParseConfig and the
// DL4J_EXECUTIONER environment variable.
package exec

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/zwb12580/deeplearning4j/pkg/core/tensors"
	"github.com/zwb12580/deeplearning4j/pkg/graph"
	"github.com/zwb12580/deeplearning4j/pkg/ops"
	"github.com/zwb12580/deeplearning4j/pkg/status"
	"github.com/zwb12580/deeplearning4j/pkg/support/sets"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// Result of an execution.
type Result struct {
	// RunID identifies the execution in the logs.
	RunID uuid.UUID

	// Variables is the root variable space of the execution: it holds the outputs of the nodes outside
	// loop frames (and of the Exit nodes of the outermost frames). It is also attached to the graph,
	// see graph.Graph.FetchOutputs.
	Variables *graph.VariableSpace

	// Outputs of the graph that were produced, see graph.Graph.FetchOutputs.
	Outputs []*graph.Variable

	// Profile is only collected if WithProfiling was given.
	Profile *Profile

	// WorkspacePeak is the largest number of bytes a node invocation allocated from its workspace.
	WorkspacePeak uint64

	Elapsed time.Duration
}

// String implements fmt.Stringer.
func (r *Result) String() string {
	return fmt.Sprintf("run %s: %d outputs in %s, workspace peak %s", r.RunID, len(r.Outputs), r.Elapsed,
		humanize.IBytes(r.WorkspacePeak))
}

// Execute runs the graph, building it first if needed. It returns nil on success, otherwise an error
// carrying a status.Code (see status.CodeOf). Results are available with g.FetchOutputs().
func Execute(ctx context.Context, g *graph.Graph, options ...Option) error {
	_, err := Run(ctx, g, options...)
	return err
}

// Run is like Execute, but also returns the Result of the execution.
//
// On failure the Result is still returned, with the variables written before the failure.
// A graph that fails to build returns a nil Result.
func Run(ctx context.Context, g *graph.Graph, options ...Option) (*Result, error) {
	cfg := newConfig(options)
	if !g.IsBuilt() {
		if err := g.Build(); err != nil {
			return nil, err
		}
	}
	var cancel context.CancelFunc
	if !cfg.deadline.IsZero() {
		ctx, cancel = context.WithDeadline(ctx, cfg.deadline)
		defer cancel()
	}
	if cfg.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	e := newExecutioner(cfg)
	root := g.Variables().Branch(-1, 0)
	r := e.newGraphRun(ctx, g, root, cfg.seed)
	r.profiled = e.profile != nil

	start := time.Now()
	err := r.execute()
	g.SetResults(root)
	result := &Result{
		RunID:         e.runID,
		Variables:     root,
		Outputs:       g.FetchOutputs(),
		Profile:       e.profile,
		WorkspacePeak: e.workspacePeak(),
		Elapsed:       time.Since(start),
	}
	if e.profile != nil {
		e.profile.Elapsed = result.Elapsed
	}
	if err != nil {
		klog.V(1).Infof("run %s of graph #%d %q failed after %s: %v", e.runID, g.ID(), g.Name(), result.Elapsed, err)
		return result, err
	}
	klog.V(1).Infof("run %s of graph #%d %q: %d layers, %d outputs in %s, workspace peak %s", e.runID, g.ID(), g.Name(),
		len(g.Layers()), len(result.Outputs), result.Elapsed, humanize.IBytes(result.WorkspacePeak))
	return result, nil
}

// executioner holds the resources shared by the graph runs of one execution: the outer graph and the
// graphs embedded in it.
type executioner struct {
	cfg   *config
	runID uuid.UUID

	// workspaces available to node invocations: one per thread.
	workspaces    chan *ops.Workspace
	allWorkspaces []*ops.Workspace

	profile *Profile

	// aliased tensors are referenced by more than one variable (e.g. forwarded by Enter or Merge), so
	// they can't be overwritten in-place.
	muAliased sync.Mutex
	aliased   sets.Set[*tensors.Tensor]
}

func newExecutioner(cfg *config) *executioner {
	e := &executioner{
		cfg:        cfg,
		runID:      uuid.New(),
		workspaces: make(chan *ops.Workspace, cfg.threads),
		aliased:    sets.Make[*tensors.Tensor](),
	}
	for range cfg.threads {
		ws := ops.NewWorkspace(cfg.workspaceLimit)
		e.allWorkspaces = append(e.allWorkspaces, ws)
		e.workspaces <- ws
	}
	if cfg.profiling {
		e.profile = newProfile()
	}
	return e
}

func (e *executioner) workspacePeak() uint64 {
	var peak uint64
	for _, ws := range e.allWorkspaces {
		peak = max(peak, ws.Peak())
	}
	return peak
}

func (e *executioner) alias(t *tensors.Tensor) {
	e.muAliased.Lock()
	defer e.muAliased.Unlock()
	e.aliased.Insert(t)
}

func (e *executioner) isAliased(t *tensors.Tensor) bool {
	e.muAliased.Lock()
	defer e.muAliased.Unlock()
	return e.aliased.Has(t)
}

// graphRun is the execution of one graph, the outer one or an embedded one.
type graphRun struct {
	*executioner
	ctx  context.Context
	g    *graph.Graph
	seed uint64

	// root space of the run: node ids (>= 0) are not looked up beyond it.
	root *graph.VariableSpace

	// pinned outputs are never released.
	pinned sets.Set[graph.Pair]

	// switches lists, for each scope id, the divergence nodes that select it.
	switches map[int][]*graph.Node

	// Loop frames: closing frames per layer (deepest first), the layer where re-runs of a frame start,
	// the last layer with nodes of a frame and the ancestors of each frame.
	closing    map[int][]*graph.Frame
	rerunStart map[int]int
	lastLayer  map[int]int
	ancestors  map[int]sets.Set[int]

	muFrames  sync.Mutex
	instances map[int]*frameInstance

	profiled bool
}

func (e *executioner) newGraphRun(ctx context.Context, g *graph.Graph, root *graph.VariableSpace, seed uint64) *graphRun {
	r := &graphRun{
		executioner: e,
		ctx:         ctx,
		g:           g,
		seed:        seed,
		root:        root,
		pinned:      sets.MakeWith(g.OutputKeys()...),
		switches:    make(map[int][]*graph.Node),
		instances:   make(map[int]*frameInstance),
	}
	for _, id := range g.NodeIDs() {
		n, _ := g.NodeByID(id)
		if n.IsDivergencePoint() && len(n.IArgs()) >= 2 {
			for _, scopeID := range n.IArgs()[:2] {
				r.switches[scopeID] = append(r.switches[scopeID], n)
			}
		}
	}
	r.prepareFrames()
	return r
}

// execute runs all layers of the graph.
func (r *graphRun) execute() error {
	numLayers := len(r.g.Layers())
	if numLayers == 0 {
		return nil
	}
	return r.runLayers(0, numLayers-1, nil, -1)
}

func (r *graphRun) checkContext(nodeID int) error {
	if err := r.ctx.Err(); err != nil {
		return status.Wrap(errors.Wrap(err, "execution cancelled"), status.Cancelled, nodeID)
	}
	return nil
}

// runLayers executes the layers [from, to], restricted to the nodes accepted by filter (all if
// nil). Frames closing in those layers iterate, except the frame skip whose iterations are driven by
// the caller.
func (r *graphRun) runLayers(from, to int, filter func(n *graph.Node) bool, skip int) error {
	layers := r.g.Layers()
	for l := from; l <= to && l < len(layers); l++ {
		if err := r.checkContext(status.NoNode); err != nil {
			return err
		}
		nodes := layers[l]
		if filter != nil {
			nodes = slices.DeleteFunc(slices.Clone(nodes), func(n *graph.Node) bool { return !filter(n) })
		}
		if len(nodes) > 0 {
			if klog.V(2).Enabled() {
				klog.Infof("run %s graph #%d: layer %d, %d nodes", r.runID, r.g.ID(), l, len(nodes))
			}
			if err := r.runLayer(nodes); err != nil {
				return err
			}
		}
		if err := r.closeFrames(l, filter, skip); err != nil {
			return err
		}
		r.dropExitedFrames(l, filter)
	}
	return nil
}

// runLayer dispatches the nodes of a layer and waits for them. Variables consumed by the layer are
// released after the barrier.
//
// If a node fails, the nodes not yet dispatched are not run, while those in flight complete. Errors
// are combined in node id order.
func (r *graphRun) runLayer(nodes []*graph.Node) error {
	outcomes := make([]nodeOutcome, len(nodes))
	if r.cfg.threads == 1 || len(nodes) == 1 {
		for i, n := range nodes {
			outcomes[i] = r.runNode(n)
			if outcomes[i].err != nil {
				break
			}
		}
	} else {
		eg, egCtx := errgroup.WithContext(r.ctx)
		eg.SetLimit(r.cfg.threads)
		for i, n := range nodes {
			if egCtx.Err() != nil {
				break
			}
			eg.Go(func() error {
				// Go may have waited for a slot freed by a failing node.
				if egCtx.Err() != nil {
					return nil
				}
				outcomes[i] = r.runNode(n)
				return outcomes[i].err
			})
		}
		_ = eg.Wait()
	}

	var errs []error
	for _, outcome := range outcomes {
		if outcome.err != nil {
			errs = append(errs, outcome.err)
		}
		for _, rel := range outcome.releases {
			rel.space.Release(rel.key)
		}
	}
	return multierr.Combine(errs...)
}

// lookup returns the variable for key visible from space, and the space holding it. Keys of nodes are
// not looked up beyond the root of the run: ids of embedded graphs may collide with the outer ones.
// owned reports whether the variable belongs to a space of this run.
func (r *graphRun) lookup(space *graph.VariableSpace, key graph.Pair) (v *graph.Variable, holder *graph.VariableSpace, owned bool) {
	owned = true
	for s := space; s != nil; s = s.Parent() {
		if v, found := s.Slot(key); found {
			return v, s, owned
		}
		if s == r.root {
			if key.ID >= 0 {
				break
			}
			owned = false
		}
	}
	return nil, nil, false
}

// scopeSelected returns whether the scope of n was selected by the divergence nodes visible from
// space. Scopes whose divergence nodes didn't run (or are not visible) are not restricted.
func (r *graphRun) scopeSelected(n *graph.Node, space *graph.VariableSpace) bool {
	var decided bool
	for _, sw := range r.switches[n.ScopeID()] {
		v, _, _ := r.lookup(space, graph.Pair{ID: sw.ID()})
		if v == nil {
			continue
		}
		decided = true
		if !v.HasTensor() {
			continue
		}
		target := sw.IArgs()[1]
		if truthy(v.Tensor()) {
			target = sw.IArgs()[0]
		}
		if target == n.ScopeID() {
			return true
		}
	}
	return !decided
}

// truthy returns whether the first element of t is non-zero.
func truthy(t *tensors.Tensor) bool {
	if t == nil || t.Size() == 0 {
		return false
	}
	return t.Float64s()[0] != 0
}
