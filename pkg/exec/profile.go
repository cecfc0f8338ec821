// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package exec

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/zwb12580/deeplearning4j/pkg/graph"
	"golang.org/x/exp/maps"
)

// NodeProfile aggregates the invocations of one node in an execution.
type NodeProfile struct {
	ID    int
	Name  string
	Op    string
	Layer int

	// Calls counts the invocations (more than one for nodes in loops), Skipped those that were skipped
	// (inactive branch or skipped producer) and InPlace those that reused their input 0.
	Calls, Skipped, InPlace int

	// Outer is the total time spent on the node (input resolution, storage), Inner the time spent in
	// the op itself.
	Outer, Inner time.Duration

	// Bytes allocated from the workspace.
	Bytes uint64
}

// Profile of an execution, collected when WithProfiling is set.
type Profile struct {
	mu    sync.Mutex
	nodes map[int]*NodeProfile

	// Iterations run by each loop frame, summed over its instances.
	Iterations map[int]int
	Elapsed    time.Duration
}

func newProfile() *Profile {
	return &Profile{nodes: make(map[int]*NodeProfile), Iterations: make(map[int]int)}
}

type nodeSample struct {
	skipped, inPlace bool
	outer, inner     time.Duration
	bytes            uint64
}

func (p *Profile) record(n *graph.Node, sample nodeSample) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	np, found := p.nodes[n.ID()]
	if !found {
		np = &NodeProfile{ID: n.ID(), Name: n.Name(), Op: opName(n), Layer: n.Layer()}
		p.nodes[n.ID()] = np
	}
	np.Calls++
	if sample.skipped {
		np.Skipped++
	}
	if sample.inPlace {
		np.InPlace++
	}
	np.Outer += sample.outer
	np.Inner += sample.inner
	np.Bytes += sample.bytes
}

func (p *Profile) recordIteration(frameID int) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Iterations[frameID]++
}

// Nodes returns the profile of each executed node, sorted by id.
func (p *Profile) Nodes() []*NodeProfile {
	p.mu.Lock()
	defer p.mu.Unlock()
	nodes := maps.Values(p.nodes)
	slices.SortFunc(nodes, func(a, b *NodeProfile) int { return cmp.Compare(a.ID, b.ID) })
	return nodes
}

// Slowest returns the k nodes with the largest inner time.
func (p *Profile) Slowest(k int) []*NodeProfile {
	nodes := p.Nodes()
	slices.SortStableFunc(nodes, func(a, b *NodeProfile) int { return cmp.Compare(b.Inner, a.Inner) })
	return nodes[:min(k, len(nodes))]
}

// String returns a plain text table of the profile.
func (p *Profile) String() string {
	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "%6s  %-24s %5s %6s %8s %12s %12s %10s\n", "node", "op", "layer", "calls", "skipped", "outer", "inner", "bytes")
	for _, np := range p.Nodes() {
		_, _ = fmt.Fprintf(&sb, "%6d  %-24s %5d %6d %8d %12s %12s %10s\n", np.ID, np.Op, np.Layer, np.Calls, np.Skipped,
			np.Outer, np.Inner, humanize.IBytes(np.Bytes))
	}
	return sb.String()
}

func opName(n *graph.Node) string {
	if n.Op() == nil {
		return n.OpType().String()
	}
	return n.Op().Describe().Name
}
