// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package exec

// splitMix64 is the finalizer of the SplitMix64 generator.
func splitMix64(x uint64) uint64 {
	x += 0x9E3779B97F4A7C15
	x = (x ^ (x >> 30)) * 0xBF58476D1CE4E5B9
	x = (x ^ (x >> 27)) * 0x94D049BB133111EB
	return x ^ (x >> 31)
}

// SubSeed derives the seed of one node invocation. It depends only on its arguments, so random ops
// draw the same numbers regardless of the number of threads or the order of dispatch.
func SubSeed(seed uint64, nodeID, frameID, iteration int) uint64 {
	h := splitMix64(seed)
	h = splitMix64(h ^ uint64(int64(nodeID)))
	h = splitMix64(h ^ uint64(int64(frameID)))
	return splitMix64(h ^ uint64(int64(iteration)))
}
