// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dtypes

import (
	"strconv"
	"strings"
)

// DType is an enum that represents the data type of a tensor or a scalar attribute.
//
// Values follow the ordering used by PJRT, so numeric values are stable across serialized graphs
// produced by this module.
type DType int32

const (
	// InvalidDType is the zero value, used to signal a missing or unknown type.
	InvalidDType DType = 0

	// Bool are two-state booleans.
	Bool DType = 1

	// Int8 and the following are signed integral values of fixed width.
	Int8  DType = 2
	Int16 DType = 3
	Int32 DType = 4
	Int64 DType = 5

	// Uint8 and the following are unsigned integral values of fixed width.
	Uint8  DType = 6
	Uint16 DType = 7
	Uint32 DType = 8
	Uint64 DType = 9

	// Float16 is the IEEE 754 half precision float, stored as github.com/x448/float16.Float16.
	Float16 DType = 10
	Float32 DType = 11
	Float64 DType = 12
)

// Aliases used by serialized graphs and by the command line.
const (
	PRED = Bool
	S32  = Int32
	S64  = Int64
	U8   = Uint8
	F16  = Float16
	F32  = Float32
	F64  = Float64
)

// MapOfNames to their dtypes, including aliases. FromName also matches them ignoring case.
var MapOfNames = map[string]DType{
	"InvalidDType": InvalidDType,
	"Bool":         Bool,
	"PRED":         Bool,
	"Int8":         Int8,
	"Int16":        Int16,
	"Int32":        Int32,
	"S32":          Int32,
	"Int64":        Int64,
	"S64":          Int64,
	"Uint8":        Uint8,
	"U8":           Uint8,
	"Uint16":       Uint16,
	"Uint32":       Uint32,
	"Uint64":       Uint64,
	"Float16":      Float16,
	"F16":          Float16,
	"Half":         Float16,
	"Float32":      Float32,
	"F32":          Float32,
	"Float":        Float32,
	"Float64":      Float64,
	"F64":          Float64,
	"Double":       Float64,
}

var dtypeNames = [...]string{
	InvalidDType: "InvalidDType",
	Bool:         "Bool",
	Int8:         "Int8",
	Int16:        "Int16",
	Int32:        "Int32",
	Int64:        "Int64",
	Uint8:        "Uint8",
	Uint16:       "Uint16",
	Uint32:       "Uint32",
	Uint64:       "Uint64",
	Float16:      "Float16",
	Float32:      "Float32",
	Float64:      "Float64",
}

// String implements fmt.Stringer.
func (dtype DType) String() string {
	if dtype < 0 || int(dtype) >= len(dtypeNames) {
		return "DType(" + strconv.Itoa(int(dtype)) + ")"
	}
	return dtypeNames[dtype]
}

// FromName returns the DType for the given name or alias (case-insensitive), and whether it was found.
func FromName(name string) (DType, bool) {
	if dtype, found := MapOfNames[name]; found {
		return dtype, true
	}
	for alias, dtype := range MapOfNames {
		if strings.EqualFold(alias, name) {
			return dtype, true
		}
	}
	return InvalidDType, false
}
