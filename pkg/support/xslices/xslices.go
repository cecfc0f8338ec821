// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package xslices provides slice helpers missing from the standard slices package.
package xslices

import (
	"cmp"
	"fmt"
	"strings"
)

// Map executes fn sequentially for every element of in, and returns the mapped slice.
func Map[In, Out any](in []In, fn func(e In) Out) (out []Out) {
	out = make([]Out, len(in))
	for i, e := range in {
		out[i] = fn(e)
	}
	return
}

// Max returns the maximum value of the slice, or the zero value if it is empty.
func Max[T cmp.Ordered](slice []T) (maxValue T) {
	if len(slice) == 0 {
		return
	}
	maxValue = slice[0]
	for _, v := range slice[1:] {
		maxValue = max(maxValue, v)
	}
	return
}

// Sum returns the sum of the values of the slice.
func Sum[T cmp.Ordered](slice []T) (sum T) {
	for _, v := range slice {
		sum += v
	}
	return
}

// Join formats the elements of the slice with "%v" and joins them with sep. At most limit elements are
// formatted (all if limit <= 0), an ellipsis marks the ones left out.
func Join[T any](slice []T, sep string, limit int) string {
	n := len(slice)
	if limit > 0 {
		n = min(n, limit)
	}
	parts := Map(slice[:n], func(e T) string { return fmt.Sprintf("%v", e) })
	if n < len(slice) {
		parts = append(parts, "…")
	}
	return strings.Join(parts, sep)
}
