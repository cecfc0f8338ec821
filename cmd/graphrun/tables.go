// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"slices"
	"time"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/zwb12580/deeplearning4j/pkg/exec"
	"github.com/zwb12580/deeplearning4j/pkg/graph"
	"github.com/zwb12580/deeplearning4j/pkg/support/sets"
	"github.com/zwb12580/deeplearning4j/pkg/support/xslices"
)

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)
	oddRowStyle = lipgloss.NewStyle().Faint(false).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Faint(true).
			PaddingLeft(1).PaddingRight(1)
	titleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 4, 0, 4)
)

// maxIDsPerLayer is the number of node ids listed per layer.
const maxIDsPerLayer = 16

// newTable creates a table with the given headers. The first column is right aligned.
func newTable(headers ...string) *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		Headers(headers...).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			if row < 0 {
				return headerRowStyle
			}
			if row%2 == 0 {
				s = oddRowStyle
			} else {
				s = evenRowStyle
			}
			if col == 0 {
				return s.Align(lipgloss.Right)
			}
			return s.Align(lipgloss.Left)
		})
}

func summaryTable(path string, g *graph.Graph) *lgtable.Table {
	table := newTable("", "")
	table.Row("file", path)
	table.Row("graph", fmt.Sprintf("#%d %q", g.ID(), g.Name()))
	table.Row("nodes", humanize.Comma(int64(g.Size())))
	table.Row("layers", humanize.Comma(int64(len(g.Layers()))))
	table.Row("loop frames", humanize.Comma(int64(len(g.Frames()))))
	table.Row("scopes", xslices.Join(g.ScopeIDs(), " ", 0))
	var memory uintptr
	for _, v := range g.Variables().Variables() {
		if v.HasTensor() {
			memory += v.Tensor().Memory()
		}
	}
	table.Row("variables", fmt.Sprintf("%d (%s)", g.Variables().Len(), humanize.IBytes(uint64(memory))))
	table.Row("placeholders", humanize.Comma(int64(len(g.Placeholders()))))
	table.Row("outputs", xslices.Join(g.OutputKeys(), " ", maxIDsPerLayer))
	return table
}

// layersTable lists the nodes of each layer, and the loop frames they belong to.
func layersTable(g *graph.Graph) *lgtable.Table {
	table := newTable("Layer", "#Nodes", "Nodes", "Frames")
	for l, layer := range g.Layers() {
		frames := sets.Make[int]()
		for _, n := range layer {
			if n.FrameID() >= 0 {
				frames.Insert(n.FrameID())
			}
		}
		frameIDs := sets.Sorted(frames)
		ids := xslices.Map(layer, func(n *graph.Node) int { return n.ID() })
		table.Row(fmt.Sprint(l), fmt.Sprint(len(layer)), xslices.Join(ids, " ", maxIDsPerLayer), xslices.Join(frameIDs, " ", 0))
	}
	return table
}

// outputsTable lists the outputs produced, with up to maxValues values each.
func outputsTable(outputs []*graph.Variable, maxValues int) *lgtable.Table {
	table := newTable("Output", "Name", "Shape", "Values")
	for _, v := range outputs {
		values := "-"
		if v.HasTensor() {
			values = xslices.Join(v.Tensor().Float64s(), " ", maxValues)
		}
		table.Row(v.Key().String(), v.Name(), v.Shape().String(), values)
	}
	return table
}

// timingsTable summarizes the elapsed time of several runs.
func timingsTable(elapsed []time.Duration, workspacePeak uint64) *lgtable.Table {
	table := newTable("", "")
	table.Row("runs", fmt.Sprint(len(elapsed)))
	if len(elapsed) > 0 {
		table.Row("mean", (xslices.Sum(elapsed) / time.Duration(len(elapsed))).String())
		table.Row("min", slices.Min(elapsed).String())
		table.Row("max", xslices.Max(elapsed).String())
	}
	table.Row("workspace peak", humanize.IBytes(workspacePeak))
	return table
}

// profileTable lists the topK slowest nodes of the profile (all if topK <= 0), and the iterations of
// each loop frame.
func profileTable(profile *exec.Profile, topK int) *lgtable.Table {
	table := newTable("Node", "Name", "Op", "Layer", "Calls", "Skipped", "In-place", "Outer", "Inner", "Bytes")
	nodes := profile.Nodes()
	if topK > 0 {
		nodes = profile.Slowest(topK)
	}
	for _, np := range nodes {
		table.Row(fmt.Sprint(np.ID), np.Name, np.Op, fmt.Sprint(np.Layer), humanize.Comma(int64(np.Calls)),
			humanize.Comma(int64(np.Skipped)), humanize.Comma(int64(np.InPlace)), np.Outer.String(), np.Inner.String(),
			humanize.IBytes(np.Bytes))
	}
	frameIDs := make([]int, 0, len(profile.Iterations))
	for id := range profile.Iterations {
		frameIDs = append(frameIDs, id)
	}
	slices.Sort(frameIDs)
	for _, id := range frameIDs {
		table.Row("", fmt.Sprintf("frame %d", id), "iterations", "", humanize.Comma(int64(profile.Iterations[id])))
	}
	return table
}
