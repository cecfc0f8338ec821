// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package sets holds the generic Set used for the scheduler's id and tensor sets.
package sets

import (
	"cmp"
	"maps"
	"slices"
)

// Set of comparable keys, backed by a map.
type Set[T comparable] map[T]struct{}

// Make an empty Set, optionally with capacity for size elements.
func Make[T comparable](size ...int) Set[T] {
	var capacity int
	if len(size) > 0 {
		capacity = size[0]
	}
	return make(Set[T], capacity)
}

// MakeWith returns a Set holding elements.
func MakeWith[T comparable](elements ...T) Set[T] {
	s := Make[T](len(elements))
	s.Insert(elements...)
	return s
}

func (s Set[T]) Has(key T) bool {
	_, found := s[key]
	return found
}

func (s Set[T]) Insert(keys ...T) {
	for _, key := range keys {
		s[key] = struct{}{}
	}
}

// Remove keys, ignoring the ones not present.
func (s Set[T]) Remove(keys ...T) {
	for _, key := range keys {
		delete(s, key)
	}
}

// Equal reports whether both sets hold the same keys.
func (s Set[T]) Equal(other Set[T]) bool {
	return maps.Equal(s, other)
}

// Sorted returns the keys in ascending order.
func Sorted[T cmp.Ordered](s Set[T]) []T {
	return slices.Sorted(maps.Keys(s))
}
