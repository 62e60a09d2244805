// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package hlo

import (
	"strconv"
	"strings"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/tileanalysis/pkg/core/shapes"
	"github.com/pkg/errors"
)

// typeNames maps dtypes to their HLO text names.
var typeNames = map[dtypes.DType]string{
	dtypes.Bool:       "pred",
	dtypes.Int8:       "s8",
	dtypes.Int16:      "s16",
	dtypes.Int32:      "s32",
	dtypes.Int64:      "s64",
	dtypes.Uint8:      "u8",
	dtypes.Uint16:     "u16",
	dtypes.Uint32:     "u32",
	dtypes.Uint64:     "u64",
	dtypes.Float16:    "f16",
	dtypes.BFloat16:   "bf16",
	dtypes.Float32:    "f32",
	dtypes.Float64:    "f64",
	dtypes.Complex64:  "c64",
	dtypes.Complex128: "c128",
}

var dtypesByName = func() map[string]dtypes.DType {
	m := make(map[string]dtypes.DType, len(typeNames))
	for dtype, name := range typeNames {
		m[name] = dtype
	}
	return m
}()

// TypeName returns the HLO text name of the dtype, e.g. "f32" for dtypes.Float32.
func TypeName(dtype dtypes.DType) string {
	if name, found := typeNames[dtype]; found {
		return name
	}
	return strings.ToLower(dtype.String())
}

// ParseTypeName is the inverse of TypeName.
func ParseTypeName(name string) (dtypes.DType, error) {
	dtype, found := dtypesByName[name]
	if !found {
		return dtypes.InvalidDType, errors.Errorf("unknown HLO element type %q", name)
	}
	return dtype, nil
}

// ShapeText renders the shape in HLO text format, e.g. "f32[2,3]" or "(f32[2], s32[])" for tuples.
// Layouts are not represented.
func ShapeText(shape shapes.Shape) string {
	var sb strings.Builder
	writeShapeText(&sb, shape)
	return sb.String()
}

func writeShapeText(sb *strings.Builder, shape shapes.Shape) {
	if shape.IsTuple() {
		sb.WriteString("(")
		for ii, element := range shape.TupleShapes {
			if ii > 0 {
				sb.WriteString(", ")
			}
			writeShapeText(sb, element)
		}
		sb.WriteString(")")
		return
	}
	sb.WriteString(TypeName(shape.DType))
	sb.WriteString("[")
	sb.WriteString(joinInts(shape.Dimensions, ","))
	sb.WriteString("]")
}

func joinInts(values []int, sep string) string {
	parts := make([]string, len(values))
	for ii, v := range values {
		parts[ii] = strconv.Itoa(v)
	}
	return strings.Join(parts, sep)
}
