// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"bytes"
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/x448/float16"
	"github.com/zwb12580/deeplearning4j/pkg/core/dtypes"
	"github.com/zwb12580/deeplearning4j/pkg/core/shapes"
)

// Float64s returns a copy of the tensor's flat content converted to float64.
// Booleans are converted to 0 and 1.
func (t *Tensor) Float64s() []float64 {
	values := make([]float64, t.Size())
	t.ConstFlatData(func(flat any) {
		switch data := flat.(type) {
		case []float64:
			copy(values, data)
		case []float32:
			for i, v := range data {
				values[i] = float64(v)
			}
		case []float16.Float16:
			for i, v := range data {
				values[i] = float64(v.Float32())
			}
		case []int64:
			convertInto(values, data)
		case []int32:
			convertInto(values, data)
		case []int16:
			convertInto(values, data)
		case []int8:
			convertInto(values, data)
		case []uint64:
			convertInto(values, data)
		case []uint32:
			convertInto(values, data)
		case []uint16:
			convertInto(values, data)
		case []uint8:
			convertInto(values, data)
		case []bool:
			for i, v := range data {
				if v {
					values[i] = 1
				}
			}
		default:
			exceptions.Panicf("Float64s: unsupported flat type %T", flat)
		}
	})
	return values
}

func convertInto[T dtypes.Number](to []float64, from []T) {
	for i, v := range from {
		to[i] = float64(v)
	}
}

func convertFrom[T dtypes.Number](to []T, from []float64) {
	for i, v := range from {
		to[i] = T(v)
	}
}

// SetFloat64s overwrites the tensor's content with the given values, converted to the tensor's dtype.
// For booleans any non-zero value is true.
func (t *Tensor) SetFloat64s(values []float64) {
	if len(values) != t.Size() {
		exceptions.Panicf("SetFloat64s: got %d values for tensor of shape %s", len(values), t.shape)
	}
	t.MutableFlatData(func(flat any) {
		switch data := flat.(type) {
		case []float64:
			copy(data, values)
		case []float32:
			convertFrom(data, values)
		case []float16.Float16:
			for i, v := range values {
				data[i] = float16.Fromfloat32(float32(v))
			}
		case []int64:
			convertFrom(data, values)
		case []int32:
			convertFrom(data, values)
		case []int16:
			convertFrom(data, values)
		case []int8:
			convertFrom(data, values)
		case []uint64:
			convertFrom(data, values)
		case []uint32:
			convertFrom(data, values)
		case []uint16:
			convertFrom(data, values)
		case []uint8:
			convertFrom(data, values)
		case []bool:
			for i, v := range values {
				data[i] = v != 0
			}
		default:
			exceptions.Panicf("SetFloat64s: unsupported flat type %T", flat)
		}
	})
}

// FromFloat64s creates a tensor of the given shape with the values converted to the shape's dtype.
func FromFloat64s(shape shapes.Shape, values []float64) *Tensor {
	t := FromShape(shape)
	t.SetFloat64s(values)
	return t
}

// TensorStringMaxElements is the maximum number of elements String prints before eliding the content.
const TensorStringMaxElements = 16

// String converts to string: the shape followed by the (possibly elided) flat content.
func (t *Tensor) String() string {
	if t == nil {
		return "<nil>"
	}
	var buf bytes.Buffer
	buf.WriteString(t.shape.String())
	values := t.Float64s()
	buf.WriteString("{")
	for i, v := range values {
		if i == TensorStringMaxElements {
			buf.WriteString(", ...")
			break
		}
		if i > 0 {
			buf.WriteString(", ")
		}
		if t.DType() == dtypes.Bool {
			_, _ = fmt.Fprintf(&buf, "%v", v != 0)
		} else {
			_, _ = fmt.Fprintf(&buf, "%.4g", v)
		}
	}
	buf.WriteString("}")
	return buf.String()
}
