// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zwb12580/deeplearning4j/pkg/core/tensors"
	"github.com/zwb12580/deeplearning4j/pkg/exec"
	"github.com/zwb12580/deeplearning4j/pkg/graph"
	"github.com/zwb12580/deeplearning4j/pkg/graph/flat"
	"github.com/zwb12580/deeplearning4j/pkg/ops"
	"github.com/zwb12580/deeplearning4j/pkg/ops/builtin"
)

func exportedGraph(t *testing.T) string {
	g := graph.New(graph.WithGraphID(5), graph.WithGraphName("tables"))
	require.NoError(t, g.AddVariable(graph.Pair{ID: -1}, "x", tensors.FromFlatDataAndDimensions([]float32{1, -2, 3}, 3)))
	for id, opNum := range map[int]int{1: builtin.Neg, 2: builtin.Abs} {
		n, err := graph.NewNode(id, ops.OpTypeTransformSame, opNum, graph.WithInputs(graph.Pair{ID: -1}))
		require.NoError(t, err)
		require.NoError(t, g.AddNode(n))
	}
	path := filepath.Join(t.TempDir(), "tables.fb")
	require.NoError(t, flat.Export(g, path))
	return path
}

func TestTables(t *testing.T) {
	path := exportedGraph(t)
	g, err := flat.Import(path)
	require.NoError(t, err)

	summary := summaryTable(path, g).Render()
	assert.Contains(t, summary, `#5 "tables"`)
	assert.Contains(t, summary, "1:0 2:0")
	assert.Contains(t, layersTable(g).Render(), "1 2")

	*flagProfile = 0
	defer func() { *flagProfile = -1 }()
	result, elapsed, err := executeRuns(context.Background(), g, []exec.Option{exec.WithThreads(2)}, 3)
	require.NoError(t, err)
	require.Len(t, elapsed, 3)
	require.NotNil(t, result.Profile)

	outputs := outputsTable(result.Outputs, 2).Render()
	assert.Contains(t, outputs, "-1 2 …")
	assert.Contains(t, outputs, "1 2 …")
	assert.Contains(t, profileTable(result.Profile, 1).Render(), "Inner")
	assert.Contains(t, profileTable(result.Profile, 0).Render(), "neg")
	assert.Contains(t, timingsTable([]time.Duration{time.Second, 3 * time.Second}, 1024).Render(), "2s")
}
