// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package status defines the status codes returned by graph building and execution, and the Error type
// that carries them.
//
// Functions in this module return plain Go errors; CodeOf extracts the Code from any error returned by
// them, and the nil error corresponds to OK.
package status

//go:generate go tool enumer -type=Code -transform=kebab -output=gen_code_enumer.go code.go

// Code enumerates the outcomes of building or executing a graph.
type Code int

const (
	OK Code = iota

	// InvalidGraph is returned for malformed nodes: unknown op types, conflicting op bindings, ops not
	// found in the registry.
	InvalidGraph

	// UnresolvedEdge is returned when an input edge points to an unknown node or variable.
	UnresolvedEdge

	// CycleWithoutRewind is returned when the graph has a cycle not closed by a rewind back-edge.
	CycleWithoutRewind

	DuplicateNodeID
	UnknownScope

	// MissingInput is returned during execution if a required input is not available.
	MissingInput

	// TypeMismatch is returned when a node is given the wrong number (or type) of inputs for its op.
	TypeMismatch

	// DoubleWrite is returned when a variable slot is written twice in the same frame iteration.
	DoubleWrite

	// OpFailed is returned when an operator fails, it carries the inner error and node id.
	OpFailed

	Cancelled
	IterationCapExceeded
	OutOfMemory
)
