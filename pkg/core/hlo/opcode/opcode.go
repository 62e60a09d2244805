// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package opcode enumerates the HLO operations known to the analysis, with their HLO text names.
//
// Nothing precludes a computation from holding operations the analysis has no indexing rule for (Sort, Scatter,
// Convolution, ...): they are listed here so they can be parsed and reported as unimplemented.
package opcode

import (
	"fmt"

	"github.com/gomlx/tileanalysis/pkg/support/sets"
	"github.com/pkg/errors"
)

// Code of an HLO operation.
type Code int

const (
	Invalid Code = iota
	Parameter
	Constant
	Iota

	Abs
	Add
	And
	Atan2
	Ceil
	Clamp
	Compare
	Convert
	Copy
	Cosine
	Divide
	Exponential
	Floor
	Log
	Logistic
	Maximum
	Minimum
	Multiply
	Negate
	Not
	Or
	Power
	Remainder
	Rsqrt
	Select
	Sign
	Sine
	Sqrt
	Subtract
	Tanh
	Xor

	Bitcast
	Broadcast
	Concatenate
	Dot
	DynamicSlice
	DynamicUpdateSlice
	Gather
	Pad
	Reduce
	ReduceWindow
	Reshape
	Reverse
	Slice
	Transpose

	Convolution
	CustomCall
	Fft
	GetTupleElement
	RngBitGenerator
	Scatter
	Sort
	Tuple

	// Last is a marker for the number of codes, not a valid operation.
	Last
)

var names = [...]string{
	Invalid:   "invalid",
	Parameter: "parameter",
	Constant:  "constant",
	Iota:      "iota",

	Abs:         "abs",
	Add:         "add",
	And:         "and",
	Atan2:       "atan2",
	Ceil:        "ceil",
	Clamp:       "clamp",
	Compare:     "compare",
	Convert:     "convert",
	Copy:        "copy",
	Cosine:      "cosine",
	Divide:      "divide",
	Exponential: "exponential",
	Floor:       "floor",
	Log:         "log",
	Logistic:    "logistic",
	Maximum:     "maximum",
	Minimum:     "minimum",
	Multiply:    "multiply",
	Negate:      "negate",
	Not:         "not",
	Or:          "or",
	Power:       "power",
	Remainder:   "remainder",
	Rsqrt:       "rsqrt",
	Select:      "select",
	Sign:        "sign",
	Sine:        "sine",
	Sqrt:        "sqrt",
	Subtract:    "subtract",
	Tanh:        "tanh",
	Xor:         "xor",

	Bitcast:            "bitcast",
	Broadcast:          "broadcast",
	Concatenate:        "concatenate",
	Dot:                "dot",
	DynamicSlice:       "dynamic-slice",
	DynamicUpdateSlice: "dynamic-update-slice",
	Gather:             "gather",
	Pad:                "pad",
	Reduce:             "reduce",
	ReduceWindow:       "reduce-window",
	Reshape:            "reshape",
	Reverse:            "reverse",
	Slice:              "slice",
	Transpose:          "transpose",

	Convolution:     "convolution",
	CustomCall:      "custom-call",
	Fft:             "fft",
	GetTupleElement: "get-tuple-element",
	RngBitGenerator: "rng-bit-generator",
	Scatter:         "scatter",
	Sort:            "sort",
	Tuple:           "tuple",
}

var byName = func() map[string]Code {
	m := make(map[string]Code, len(names))
	for code, name := range names {
		m[name] = Code(code)
	}
	return m
}()

// String returns the HLO text name of the operation, e.g. "dynamic-slice".
func (c Code) String() string {
	if c < 0 || c >= Last {
		return fmt.Sprintf("opcode.Code(%d)", int(c))
	}
	return names[c]
}

// Parse returns the Code for the given HLO text name.
func Parse(name string) (Code, error) {
	c, found := byName[name]
	if !found || c == Invalid {
		return Invalid, errors.Errorf("unknown HLO operation %q", name)
	}
	return c, nil
}

var (
	// UnaryElementwise operations take one operand and return an output of the same dimensions.
	UnaryElementwise = sets.MakeWith(
		Abs, Ceil, Convert, Copy, Cosine, Exponential, Floor, Log, Logistic, Negate, Not, Rsqrt, Sign, Sine,
		Sqrt, Tanh,
	)

	// BinaryElementwise operations take two operands of the same dimensions (or scalars).
	BinaryElementwise = sets.MakeWith(
		Add, And, Atan2, Compare, Divide, Maximum, Minimum, Multiply, Or, Power, Remainder, Subtract, Xor,
	)

	// TernaryElementwise operations take three operands of the same dimensions (or scalars).
	TernaryElementwise = sets.MakeWith(Clamp, Select)

	// Elementwise is the union of the unary, binary and ternary elementwise operations.
	Elementwise = UnaryElementwise.Union(BinaryElementwise, TernaryElementwise)

	// NoOperands are the operations that produce values without reading any operand.
	NoOperands = sets.MakeWith(Parameter, Constant, Iota)

	// FloatOrComplex operations only accept float or complex operands.
	FloatOrComplex = sets.MakeWith(
		Atan2, Cosine, Exponential, Log, Logistic, Rsqrt, Sine, Sqrt, Tanh, Ceil, Floor, Power,
	)

	// Logical operations accept booleans or integers.
	Logical = sets.MakeWith(And, Or, Xor, Not)
)

// IsElementwise returns whether each output element only depends on the operand elements at the same position.
func (c Code) IsElementwise() bool {
	return Elementwise.Has(c)
}
