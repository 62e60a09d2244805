// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package hlotext parses a subset of the XLA HLO text format into an hlo.Computation.
//
// It accepts one instruction per line, as in:
//
//	HloModule m
//
//	ENTRY e {
//	  p0 = f32[150,20]{1,0} parameter(0)
//	  ROOT neg = f32[150,20]{1,0} negate(p0)
//	}
//
// The HloModule line, the computation header and braces, the ROOT marker, the "%" name prefixes, layouts and operand
// types are all optional. Only the entry computation is parsed: other computations (e.g. the reductions applied by
// reduce) are skipped. Unknown attributes are ignored.
package hlotext

import (
	"strconv"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/tileanalysis/pkg/core/hlo"
	"github.com/gomlx/tileanalysis/pkg/core/hlo/opcode"
	"github.com/gomlx/tileanalysis/pkg/core/shapes"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"k8s.io/klog/v2"
)

// line of text with its line number (1-based), for error messages.
type line struct {
	number int
	text   string
}

// block is a computation in the text.
type block struct {
	name    string
	isEntry bool
	lines   []line
}

// Parse parses the HLO text and returns its entry computation.
//
// The entry computation is the one marked with ENTRY, or the last computation if none is marked, or all the text
// if there are no computation headers.
// Errors in individual lines are accumulated and returned together.
func Parse(text string) (*hlo.Computation, error) {
	entry, err := splitBlocks(text)
	if err != nil {
		return nil, err
	}
	b := hlo.NewBuilder(entry.name)
	var (
		errs error
		root *hlo.Instruction
		last *hlo.Instruction
	)
	for _, l := range entry.lines {
		var (
			instr  *hlo.Instruction
			isRoot bool
		)
		err := exceptions.TryCatch[error](func() {
			instr, isRoot = must1and(parseInstruction(b, l.text))
		})
		if err != nil {
			errs = multierr.Append(errs, errors.WithMessagef(err, "line %d: %q", l.number, l.text))
			continue
		}
		last = instr
		if isRoot {
			if root != nil {
				errs = multierr.Append(errs, errors.Errorf("line %d: more than one ROOT instruction", l.number))
				continue
			}
			root = instr
		}
	}
	if errs != nil {
		return nil, errs
	}
	if root == nil {
		root = last
	}
	if root == nil {
		return nil, errors.Errorf("no instructions found in computation %q", entry.name)
	}
	return b.Build(root)
}

// must1and panics with err if it is not nil, and otherwise returns the instruction and the root flag.
func must1and(instr *hlo.Instruction, isRoot bool, err error) (*hlo.Instruction, bool) {
	if err != nil {
		panic(err)
	}
	return instr, isRoot
}

// splitBlocks splits the text into computations and returns the entry one.
func splitBlocks(text string) (*block, error) {
	var (
		blocks  []*block
		current *block
		loose   = &block{name: "entry"}
	)
	for ii, raw := range strings.Split(text, "\n") {
		t := strings.TrimSpace(raw)
		if idx := strings.Index(t, "//"); idx >= 0 {
			t = strings.TrimSpace(t[:idx])
		}
		switch {
		case t == "":
			continue
		case strings.HasPrefix(t, "HloModule"):
			continue
		case strings.HasSuffix(t, "{") && !strings.Contains(t, "="):
			if current != nil {
				return nil, errors.Errorf("line %d: nested computation %q", ii+1, t)
			}
			current = &block{name: blockName(t), isEntry: strings.HasPrefix(t, "ENTRY")}
			blocks = append(blocks, current)
		case t == "}":
			if current == nil {
				return nil, errors.Errorf("line %d: unbalanced \"}\"", ii+1)
			}
			current = nil
		default:
			if current != nil {
				current.lines = append(current.lines, line{number: ii + 1, text: t})
			} else {
				loose.lines = append(loose.lines, line{number: ii + 1, text: t})
			}
		}
	}
	if current != nil {
		return nil, errors.Errorf("computation %q is not closed with \"}\"", current.name)
	}
	if len(blocks) == 0 {
		return loose, nil
	}
	for _, b := range blocks {
		if b.isEntry {
			return b, nil
		}
	}
	return blocks[len(blocks)-1], nil
}

// blockName extracts the computation name of a header like "ENTRY %main.3 (p0: f32[2]) -> f32[2] {".
func blockName(header string) string {
	fields := strings.Fields(strings.TrimSuffix(header, "{"))
	if len(fields) > 0 && fields[0] == "ENTRY" {
		fields = fields[1:]
	}
	if len(fields) == 0 {
		return "entry"
	}
	name := fields[0]
	if idx := strings.Index(name, "("); idx >= 0 {
		name = name[:idx]
	}
	return strings.TrimPrefix(name, "%")
}

// parseInstruction parses one line and adds the instruction to the builder.
func parseInstruction(b *hlo.Builder, text string) (instr *hlo.Instruction, isRoot bool, err error) {
	if rest, found := strings.CutPrefix(text, "ROOT "); found {
		isRoot = true
		text = strings.TrimSpace(rest)
	}
	name, rhs, found := strings.Cut(text, "=")
	if !found {
		return nil, false, errors.New("expected \"<name> = <type> <opcode>(<operands>)\"")
	}
	name = strings.TrimPrefix(strings.TrimSpace(name), "%")
	p := &parser{text: strings.TrimSpace(rhs)}

	var attrs hlo.Attributes
	if attrs.Shape, err = p.parseShape(); err != nil {
		return
	}
	p.skipSpaces()
	opName := p.consumeUntil("(")
	op, err := opcode.Parse(strings.TrimSpace(opName))
	if err != nil {
		return
	}
	args, err := p.consumeBalanced('(', ')')
	if err != nil {
		return
	}

	var operands []*hlo.Instruction
	switch op {
	case opcode.Parameter:
		if attrs.ParameterNumber, err = strconv.Atoi(strings.TrimSpace(args)); err != nil {
			return nil, false, errors.Wrapf(err, "invalid parameter number %q", args)
		}
	case opcode.Constant:
		attrs.Literal = strings.TrimSpace(args)
	default:
		for _, arg := range splitTopLevel(args) {
			fields := strings.Fields(arg)
			if len(fields) == 0 {
				continue
			}
			operandName := strings.TrimPrefix(fields[len(fields)-1], "%")
			operand := b.Instruction(operandName)
			if operand == nil {
				return nil, false, errors.Errorf("unknown operand %q: operands must be defined before they are used",
					operandName)
			}
			operands = append(operands, operand)
		}
	}

	p.skipSpaces()
	if !p.done() {
		if p.peek() != ',' {
			return nil, false, errors.Errorf("unexpected %q after the operands", p.text[p.pos:])
		}
		p.pos++
		for _, attr := range splitTopLevel(p.text[p.pos:]) {
			key, value, found := strings.Cut(attr, "=")
			if !found {
				return nil, false, errors.Errorf("invalid attribute %q", attr)
			}
			if err = parseAttribute(&attrs, op, strings.TrimSpace(key), strings.TrimSpace(value)); err != nil {
				return nil, false, err
			}
		}
	}
	instr, err = b.AddInstruction(name, op, attrs, operands...)
	return instr, isRoot, err
}

// parseAttribute sets the attribute key to the given value.
func parseAttribute(attrs *hlo.Attributes, op opcode.Code, key, value string) (err error) {
	dotConfig := func() *hlo.DotConfig {
		if attrs.Dot == nil {
			attrs.Dot = &hlo.DotConfig{}
		}
		return attrs.Dot
	}
	gatherConfig := func() *hlo.GatherConfig {
		if attrs.Gather == nil {
			attrs.Gather = &hlo.GatherConfig{}
		}
		return attrs.Gather
	}
	switch key {
	case "dimensions":
		attrs.Dimensions, err = parseIntList(value)
	case "iota_dimension":
		attrs.IotaDimension, err = strconv.Atoi(value)
	case "direction":
		attrs.ComparisonDirection = value
	case "slice":
		attrs.Slice, err = parseSlice(value)
	case "padding":
		attrs.Padding, err = parsePadding(value)
	case "dynamic_slice_sizes":
		attrs.DynamicSliceSizes, err = parseIntList(value)
	case "lhs_batch_dims":
		dotConfig().LhsBatchAxes, err = parseIntList(value)
	case "lhs_contracting_dims":
		dotConfig().LhsContractingAxes, err = parseIntList(value)
	case "rhs_batch_dims":
		dotConfig().RhsBatchAxes, err = parseIntList(value)
	case "rhs_contracting_dims":
		dotConfig().RhsContractingAxes, err = parseIntList(value)
	case "offset_dims":
		gatherConfig().OffsetAxes, err = parseIntList(value)
	case "collapsed_slice_dims":
		gatherConfig().CollapsedSliceAxes, err = parseIntList(value)
	case "start_index_map":
		gatherConfig().StartIndexMap, err = parseIntList(value)
	case "index_vector_dim":
		gatherConfig().IndexVectorAxis, err = strconv.Atoi(value)
	case "slice_sizes":
		gatherConfig().SliceSizes, err = parseIntList(value)
	case "window":
		attrs.Window, err = parseWindow(value)
	case "to_apply":
		attrs.ToApply = strings.TrimPrefix(value, "%")
	default:
		klog.V(3).Infof("hlotext: ignoring attribute %s=%s of %s", key, value, op)
	}
	if err != nil {
		return errors.WithMessagef(err, "invalid attribute %s=%s", key, value)
	}
	return nil
}

// splitTopLevel splits on the commas that are not inside brackets, braces, parenthesis or quotes.
func splitTopLevel(text string) []string {
	var (
		parts    []string
		depth    int
		inQuotes bool
		start    int
	)
	for ii, r := range text {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case inQuotes:
		case r == '(' || r == '[' || r == '{':
			depth++
		case r == ')' || r == ']' || r == '}':
			depth--
		case r == ',' && depth == 0:
			parts = append(parts, strings.TrimSpace(text[start:ii]))
			start = ii + 1
		}
	}
	if last := strings.TrimSpace(text[start:]); last != "" || len(parts) > 0 {
		parts = append(parts, last)
	}
	return parts
}

// parseIntList parses "{1,2,3}" (or "1,2,3", or "{}").
func parseIntList(text string) ([]int, error) {
	text = strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(text), "{"), "}")
	values := []int{}
	for _, part := range strings.Split(text, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.Atoi(part)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid integer %q", part)
		}
		values = append(values, v)
	}
	return values, nil
}

// parseSeparatedInts parses a list of ints separated by sep, e.g. "2x3x1" or "0_1_0".
func parseSeparatedInts(text, sep string) ([]int, error) {
	parts := strings.Split(text, sep)
	values := make([]int, len(parts))
	for ii, part := range parts {
		v, err := strconv.Atoi(part)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid integer %q in %q", part, text)
		}
		values[ii] = v
	}
	return values, nil
}

// parseSlice parses "{[0:10:2], [3:5]}". The stride is optional.
func parseSlice(text string) (*hlo.SliceConfig, error) {
	config := &hlo.SliceConfig{}
	text = strings.TrimSuffix(strings.TrimPrefix(text, "{"), "}")
	for _, part := range splitTopLevel(text) {
		part = strings.TrimSuffix(strings.TrimPrefix(part, "["), "]")
		values, err := parseSeparatedInts(part, ":")
		if err != nil {
			return nil, err
		}
		switch len(values) {
		case 2:
			values = append(values, 1)
		case 3:
		default:
			return nil, errors.Errorf("slice range %q must be [start:limit] or [start:limit:stride]", part)
		}
		config.Starts = append(config.Starts, values[0])
		config.Limits = append(config.Limits, values[1])
		config.Strides = append(config.Strides, values[2])
	}
	return config, nil
}

// parsePadding parses "0_1x2_2_1": low_high[_interior] per axis, separated by "x".
func parsePadding(text string) ([]hlo.PadDim, error) {
	var padding []hlo.PadDim
	for _, part := range strings.Split(text, "x") {
		values, err := parseSeparatedInts(part, "_")
		if err != nil {
			return nil, err
		}
		switch len(values) {
		case 2:
			padding = append(padding, hlo.PadDim{Low: values[0], High: values[1]})
		case 3:
			padding = append(padding, hlo.PadDim{Low: values[0], High: values[1], Interior: values[2]})
		default:
			return nil, errors.Errorf("padding %q must be low_high or low_high_interior", part)
		}
	}
	return padding, nil
}

// parseWindow parses "{size=2x3 stride=2x1 pad=0_0x1_1 lhs_dilate=1x1 rhs_dilate=1x2}".
func parseWindow(text string) ([]hlo.WindowDim, error) {
	text = strings.TrimSuffix(strings.TrimPrefix(text, "{"), "}")
	fields := make(map[string]string)
	for _, field := range strings.Fields(text) {
		key, value, found := strings.Cut(field, "=")
		if !found {
			return nil, errors.Errorf("invalid window field %q", field)
		}
		fields[key] = value
	}
	sizeText, found := fields["size"]
	if !found {
		return nil, errors.New("window requires a size")
	}
	sizes, err := parseSeparatedInts(sizeText, "x")
	if err != nil {
		return nil, err
	}
	window := make([]hlo.WindowDim, len(sizes))
	for ii, size := range sizes {
		window[ii] = hlo.WindowDim{Size: size, Stride: 1, BaseDilation: 1, WindowDilation: 1}
	}
	perAxis := func(key string, set func(w *hlo.WindowDim, v int)) error {
		value, found := fields[key]
		if !found {
			return nil
		}
		values, err := parseSeparatedInts(value, "x")
		if err != nil {
			return err
		}
		if len(values) != len(window) {
			return errors.Errorf("window %s=%s must have %d values", key, value, len(window))
		}
		for ii, v := range values {
			set(&window[ii], v)
		}
		return nil
	}
	err = multierr.Combine(
		perAxis("stride", func(w *hlo.WindowDim, v int) { w.Stride = v }),
		perAxis("lhs_dilate", func(w *hlo.WindowDim, v int) { w.BaseDilation = v }),
		perAxis("rhs_dilate", func(w *hlo.WindowDim, v int) { w.WindowDilation = v }),
	)
	if err != nil {
		return nil, err
	}
	if padText, found := fields["pad"]; found {
		padding, err := parsePadding(padText)
		if err != nil {
			return nil, err
		}
		if len(padding) != len(window) {
			return nil, errors.Errorf("window pad=%s must have %d values", padText, len(window))
		}
		for ii, p := range padding {
			window[ii].PadLow, window[ii].PadHigh = p.Low, p.High
		}
	}
	return window, nil
}

// parser holds the position while parsing the right-hand side of an instruction.
type parser struct {
	text string
	pos  int
}

func (p *parser) done() bool { return p.pos >= len(p.text) }

func (p *parser) peek() byte { return p.text[p.pos] }

func (p *parser) skipSpaces() {
	for !p.done() && (p.peek() == ' ' || p.peek() == '\t') {
		p.pos++
	}
}

// consumeUntil returns the text up to (not including) the first occurrence of stop, or until the end.
func (p *parser) consumeUntil(stop string) string {
	idx := strings.Index(p.text[p.pos:], stop)
	if idx < 0 {
		idx = len(p.text) - p.pos
	}
	s := p.text[p.pos : p.pos+idx]
	p.pos += idx
	return s
}

// consumeBalanced consumes an open...close group, returning its contents.
func (p *parser) consumeBalanced(open, closing byte) (string, error) {
	if p.done() || p.peek() != open {
		return "", errors.Errorf("expected %q at %q", open, p.text[p.pos:])
	}
	depth := 0
	start := p.pos + 1
	for ; !p.done(); p.pos++ {
		switch p.peek() {
		case open:
			depth++
		case closing:
			depth--
			if depth == 0 {
				contents := p.text[start:p.pos]
				p.pos++
				return contents, nil
			}
		}
	}
	return "", errors.Errorf("unbalanced %q in %q", open, p.text)
}

// parseShape parses an array shape like "f32[2,3]{1,0}" or a tuple "(f32[2], s32[])".
func (p *parser) parseShape() (shapes.Shape, error) {
	p.skipSpaces()
	if p.done() {
		return shapes.Invalid(), errors.New("missing shape")
	}
	if p.peek() == '(' {
		contents, err := p.consumeBalanced('(', ')')
		if err != nil {
			return shapes.Invalid(), err
		}
		var elements []shapes.Shape
		for _, part := range splitTopLevel(contents) {
			sub := &parser{text: part}
			element, err := sub.parseShape()
			if err != nil {
				return shapes.Invalid(), err
			}
			elements = append(elements, element)
		}
		return shapes.MakeTuple(elements), nil
	}
	typeName := p.consumeUntil("[")
	dtype, err := hlo.ParseTypeName(strings.TrimSpace(typeName))
	if err != nil {
		return shapes.Invalid(), err
	}
	dimsText, err := p.consumeBalanced('[', ']')
	if err != nil {
		return shapes.Invalid(), err
	}
	dims, err := parseIntList(dimsText)
	if err != nil {
		return shapes.Invalid(), err
	}
	for _, dim := range dims {
		if dim < 0 {
			return shapes.Invalid(), errors.Errorf("negative dimension in shape [%s]", dimsText)
		}
	}
	if !p.done() && p.peek() == '{' {
		// Layout is ignored.
		if _, err = p.consumeBalanced('{', '}'); err != nil {
			return shapes.Invalid(), err
		}
	}
	return shapes.Make(dtype, dims...), nil
}
