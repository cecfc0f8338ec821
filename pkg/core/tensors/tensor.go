// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package tensors implements Tensor, the dense multidimensional array flowing through the executioner.
//
// Content lives in host memory as a flat slice of the dtype's Go type ([]float32 for Float32, etc.), in
// row-major order. Tensors are built with FromShape (zeros), FromScalarAndDimensions (one value
// replicated), FromFlatDataAndDimensions (copied data) or FromBytes (raw little-endian memory, as found in
// serialized graphs):
//
//	t := tensors.FromFlatDataAndDimensions([]int8{1, 2, 3, 4}, 2, 2) // [[1 2] [3 4]]
//
// There is no reference counting: once the executioner drops its references the garbage collector
// reclaims the memory.
package tensors

import (
	"reflect"
	"slices"
	"sync"
	"unsafe"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"github.com/zwb12580/deeplearning4j/pkg/core/dtypes"
	"github.com/zwb12580/deeplearning4j/pkg/core/shapes"
)

// Tensor is a shape plus its flat content. Content is only reached through the Const*/Mutable*
// accessors, which lock the tensor while the callback runs.
type Tensor struct {
	shape shapes.Shape

	mu   sync.RWMutex
	flat any
}

// FromShape returns a zero-filled Tensor.
func FromShape(shape shapes.Shape) *Tensor {
	if !shape.Ok() {
		exceptions.Panicf("tensors.FromShape(%s): invalid shape", shape)
	}
	return &Tensor{
		shape: shape.Clone(),
		flat:  reflect.MakeSlice(reflect.SliceOf(shape.DType.GoType()), shape.Size(), shape.Size()).Interface(),
	}
}

// FromScalar returns a rank-0 tensor holding value.
func FromScalar[T dtypes.Supported](value T) *Tensor {
	return FromScalarAndDimensions(value)
}

// FromScalarAndDimensions returns a tensor of the given dimensions with every element set to value.
func FromScalarAndDimensions[T dtypes.Supported](value T, dimensions ...int) *Tensor {
	shape := shapes.Make(dtypes.FromGenericsType[T](), dimensions...)
	t := FromShape(shape)
	MutableFlatData(t, func(flat []T) {
		if len(flat) == 0 {
			return
		}
		flat[0] = value
		for filled := 1; filled < len(flat); filled *= 2 {
			copy(flat[filled:], flat[:filled])
		}
	})
	return t
}

// FromFlatDataAndDimensions returns a tensor of the given dimensions holding a copy of data, which must
// have exactly as many elements as the dimensions describe.
func FromFlatDataAndDimensions[T dtypes.Supported](data []T, dimensions ...int) *Tensor {
	shape := shapes.Make(dtypes.FromGenericsType[T](), dimensions...)
	if len(data) != shape.Size() {
		exceptions.Panicf("tensors.FromFlatDataAndDimensions: %d values for shape %s", len(data), shape)
	}
	t := FromShape(shape)
	MutableFlatData(t, func(flat []T) { copy(flat, data) })
	return t
}

// FromBytes copies the raw (host byte order) content of a tensor of the given shape.
func FromBytes(shape shapes.Shape, data []byte) (*Tensor, error) {
	if !shape.Ok() {
		return nil, errors.Errorf("tensors.FromBytes: invalid shape %s", shape)
	}
	if uintptr(len(data)) != shape.Memory() {
		return nil, errors.Errorf("tensors.FromBytes(%s): got %d bytes, expected %d", shape, len(data), shape.Memory())
	}
	t := FromShape(shape)
	t.MutableBytes(func(dst []byte) { copy(dst, data) })
	return t, nil
}

// AssertValid panics for nil tensors and tensors with an invalid shape.
func (t *Tensor) AssertValid() {
	switch {
	case t == nil:
		exceptions.Panicf("nil tensor")
	case !t.shape.Ok():
		exceptions.Panicf("tensor with invalid shape %s", t.shape)
	}
}

func (t *Tensor) Shape() shapes.Shape { return t.shape }
func (t *Tensor) DType() dtypes.DType { return t.shape.DType }
func (t *Tensor) Rank() int           { return t.shape.Rank() }
func (t *Tensor) Size() int           { return t.shape.Size() }
func (t *Tensor) IsScalar() bool      { return t.shape.IsScalar() }

// Memory is the size in bytes of the content.
func (t *Tensor) Memory() uintptr { return t.shape.Memory() }

// ConstFlatData passes the content (a slice of the dtype's Go type) to accessFn, under a read lock.
// The slice must not be modified nor retained.
func (t *Tensor) ConstFlatData(accessFn func(flat any)) {
	t.AssertValid()
	t.mu.RLock()
	defer t.mu.RUnlock()
	accessFn(t.flat)
}

// MutableFlatData passes the content to accessFn under the write lock.
func (t *Tensor) MutableFlatData(accessFn func(flat any)) {
	t.AssertValid()
	t.mu.Lock()
	defer t.mu.Unlock()
	accessFn(t.flat)
}

// ConstBytes is ConstFlatData over the raw memory of the content.
func (t *Tensor) ConstBytes(accessFn func(data []byte)) {
	t.ConstFlatData(func(flat any) {
		accessFn(flatAsBytes(flat))
	})
}

// MutableBytes is MutableFlatData over the raw memory of the content.
func (t *Tensor) MutableBytes(accessFn func(data []byte)) {
	t.MutableFlatData(func(flat any) {
		accessFn(flatAsBytes(flat))
	})
}

func flatAsBytes(flat any) []byte {
	v := reflect.ValueOf(flat)
	if n := v.Len(); n > 0 {
		return unsafe.Slice((*byte)(v.UnsafePointer()), n*int(v.Type().Elem().Size()))
	}
	return nil
}

// ConstFlatData is the typed version of Tensor.ConstFlatData. T must match the tensor's dtype.
func ConstFlatData[T dtypes.Supported](t *Tensor, accessFn func(flat []T)) {
	t.ConstFlatData(func(flat any) {
		accessFn(castFlat[T](t, flat))
	})
}

// MutableFlatData is the typed version of Tensor.MutableFlatData.
func MutableFlatData[T dtypes.Supported](t *Tensor, accessFn func(flat []T)) {
	t.MutableFlatData(func(flat any) {
		accessFn(castFlat[T](t, flat))
	})
}

func castFlat[T dtypes.Supported](t *Tensor, flat any) []T {
	typed, ok := flat.([]T)
	if !ok {
		exceptions.Panicf("tensor %s accessed as %T", t.shape, typed)
	}
	return typed
}

// CopyFlatData returns a copy of the content.
func CopyFlatData[T dtypes.Supported](t *Tensor) (data []T) {
	ConstFlatData(t, func(flat []T) { data = slices.Clone(flat) })
	return
}

// ToScalar returns the only element of a one-element tensor.
func ToScalar[T dtypes.Supported](t *Tensor) (value T) {
	if t.Size() != 1 {
		exceptions.Panicf("tensors.ToScalar: shape %s is not a single value", t.shape)
	}
	ConstFlatData(t, func(flat []T) { value = flat[0] })
	return
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	clone := FromShape(t.shape)
	t.ConstFlatData(func(src any) {
		reflect.Copy(reflect.ValueOf(clone.flat), reflect.ValueOf(src))
	})
	return clone
}

// Reshape returns a copy of t with new dimensions holding the same number of elements.
func (t *Tensor) Reshape(dimensions ...int) *Tensor {
	shape := shapes.Make(t.shape.DType, dimensions...)
	if shape.Size() != t.shape.Size() {
		exceptions.Panicf("tensors.Reshape: %s can't be reshaped to %v", t.shape, dimensions)
	}
	clone := t.Clone()
	clone.shape = shape
	return clone
}

// Value returns the content as nested Go slices ([][]float32 for a Float32 matrix), or as a Go value
// for scalars.
func (t *Tensor) Value() any {
	var value reflect.Value
	t.ConstFlatData(func(flat any) {
		flatV := reflect.ValueOf(flat)
		if t.shape.IsScalar() {
			value = flatV.Index(0)
			return
		}
		value = buildMultiDimSlice(flatV, t.shape.Dimensions, t.shape.Strides(), 0)
	})
	return value.Interface()
}

func buildMultiDimSlice(flatV reflect.Value, dims, strides []int, offset int) reflect.Value {
	if len(dims) == 1 {
		s := reflect.MakeSlice(flatV.Type(), dims[0], dims[0])
		reflect.Copy(s, flatV.Slice(offset, offset+dims[0]))
		return s
	}
	elem := buildMultiDimSlice(flatV, dims[1:], strides[1:], offset)
	s := reflect.MakeSlice(reflect.SliceOf(elem.Type()), dims[0], dims[0])
	s.Index(0).Set(elem)
	for i := 1; i < dims[0]; i++ {
		s.Index(i).Set(buildMultiDimSlice(flatV, dims[1:], strides[1:], offset+i*strides[0]))
	}
	return s
}

// Equal reports whether both tensors have the same shape and content.
func (t *Tensor) Equal(otherTensor *Tensor) bool {
	t.AssertValid()
	otherTensor.AssertValid()
	if t == otherTensor {
		return true
	}
	if !t.shape.Equal(otherTensor.shape) {
		return false
	}
	equal := true
	t.ConstFlatData(func(flat0 any) {
		otherTensor.ConstFlatData(func(flat1 any) {
			equal = reflect.DeepEqual(flat0, flat1)
		})
	})
	return equal
}

// InDelta reports whether both tensors have the same shape and their elements differ by at most delta.
func (t *Tensor) InDelta(otherTensor *Tensor, delta float64) bool {
	t.AssertValid()
	otherTensor.AssertValid()
	if t == otherTensor {
		return true
	}
	if !t.shape.Equal(otherTensor.shape) {
		return false
	}
	values0, values1 := t.Float64s(), otherTensor.Float64s()
	for i, v0 := range values0 {
		diff := v0 - values1[i]
		if diff < -delta || diff > delta {
			return false
		}
	}
	return true
}
