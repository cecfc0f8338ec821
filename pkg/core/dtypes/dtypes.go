// Package dtypes defines DType, the element type of the tensors flowing through a graph, and the
// generic constraints (Supported, Number) used to move between DTypes and Go types.
package dtypes

import (
	"math"
	"reflect"

	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// properties of a DType: its Go type and the range of its values.
type properties struct {
	goType          reflect.Type
	lowest, highest any
}

var table = map[DType]properties{
	Bool:    {reflect.TypeFor[bool](), false, true},
	Int8:    {reflect.TypeFor[int8](), int8(math.MinInt8), int8(math.MaxInt8)},
	Int16:   {reflect.TypeFor[int16](), int16(math.MinInt16), int16(math.MaxInt16)},
	Int32:   {reflect.TypeFor[int32](), int32(math.MinInt32), int32(math.MaxInt32)},
	Int64:   {reflect.TypeFor[int64](), int64(math.MinInt64), int64(math.MaxInt64)},
	Uint8:   {reflect.TypeFor[uint8](), uint8(0), uint8(math.MaxUint8)},
	Uint16:  {reflect.TypeFor[uint16](), uint16(0), uint16(math.MaxUint16)},
	Uint32:  {reflect.TypeFor[uint32](), uint32(0), uint32(math.MaxUint32)},
	Uint64:  {reflect.TypeFor[uint64](), uint64(0), uint64(math.MaxUint64)},
	Float16: {reflect.TypeFor[float16.Float16](), float16.Inf(-1), float16.Inf(1)},
	Float32: {reflect.TypeFor[float32](), float32(math.Inf(-1)), float32(math.Inf(1))},
	Float64: {reflect.TypeFor[float64](), math.Inf(-1), math.Inf(1)},
}

// byGoType is the reverse of table. Go's int maps to Int32 or Int64 depending on the platform.
var byGoType = func() map[reflect.Type]DType {
	m := make(map[reflect.Type]DType, len(table)+1)
	for dtype, p := range table {
		m[p.goType] = dtype
	}
	if reflect.TypeFor[int]().Size() == 4 {
		m[reflect.TypeFor[int]()] = Int32
	} else {
		m[reflect.TypeFor[int]()] = Int64
	}
	return m
}()

func (dtype DType) properties() properties {
	p, found := table[dtype]
	if !found {
		panic(errors.Errorf("dtype %s has no Go equivalent", dtype))
	}
	return p
}

// FromGenericsType returns the DType of T.
func FromGenericsType[T Supported]() DType {
	return byGoType[reflect.TypeFor[T]()]
}

// FromAny returns the DType of the scalar value, or InvalidDType for nil and for types without one.
func FromAny(value any) DType {
	if value == nil {
		return InvalidDType
	}
	return byGoType[reflect.TypeOf(value)]
}

// GoType of the values of dtype. It panics for unsupported dtypes.
func (dtype DType) GoType() reflect.Type { return dtype.properties().goType }

// Size in bytes of one element.
func (dtype DType) Size() int { return int(dtype.GoType().Size()) }

// SizeForDimensions returns the number of bytes of an array with the given dimensions.
// No dimensions is a scalar.
func (dtype DType) SizeForDimensions(dimensions ...int) int {
	size := dtype.Size()
	for _, dim := range dimensions {
		if dim < 0 {
			panic(errors.Errorf("negative dimension in %v", dimensions))
		}
		size *= dim
	}
	return size
}

// LowestValue representable by dtype, as its Go type. Floats return -Inf.
func (dtype DType) LowestValue() any { return dtype.properties().lowest }

// HighestValue representable by dtype, as its Go type. Floats return +Inf.
func (dtype DType) HighestValue() any { return dtype.properties().highest }

func (dtype DType) IsFloat() bool { return dtype >= Float16 && dtype <= Float64 }

func (dtype DType) IsUnsigned() bool { return dtype >= Uint8 && dtype <= Uint64 }

// IsSupported reports whether dtype is one of the enumerated types.
func (dtype DType) IsSupported() bool {
	_, found := table[dtype]
	return found
}

// Supported are the Go types a tensor can hold. Go's int is stored as Int32 or Int64, depending on
// the platform.
type Supported interface {
	bool | float16.Float16 | float32 | float64 | int | int8 | int16 | int32 | int64 | uint8 | uint16 | uint32 | uint64
}

// Number are the Go native numeric types among Supported.
type Number interface {
	float32 | float64 | int | int8 | int16 | int32 | int64 | uint8 | uint16 | uint32 | uint64
}
