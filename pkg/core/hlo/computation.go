// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package hlo

import (
	"fmt"
	"strings"
)

// Computation is a DAG of instructions with a root, built with a Builder.
type Computation struct {
	name         string
	instructions []*Instruction
	byName       map[string]*Instruction
	parameters   []*Instruction
	root         *Instruction
}

// Name of the computation.
func (c *Computation) Name() string { return c.name }

// Root instruction, whose output is the output of the computation.
func (c *Computation) Root() *Instruction { return c.root }

// Instructions in topological order (operands before users), indexed by Instruction.ID.
func (c *Computation) Instructions() []*Instruction { return c.instructions }

// NumInstructions in the computation.
func (c *Computation) NumInstructions() int { return len(c.instructions) }

// Instruction returns the instruction with the given name, or nil if there is none.
func (c *Computation) Instruction(name string) *Instruction { return c.byName[name] }

// Parameters ordered by their parameter number.
func (c *Computation) Parameters() []*Instruction { return c.parameters }

// String implements fmt.Stringer, rendering the computation in HLO text format, which can be parsed back
// with hlotext.Parse.
func (c *Computation) String() string {
	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "HloModule %s\n\nENTRY %s {\n", c.name, c.name)
	for _, instr := range c.instructions {
		sb.WriteString("  ")
		if instr == c.root {
			sb.WriteString("ROOT ")
		}
		sb.WriteString(instr.String())
		sb.WriteString("\n")
	}
	sb.WriteString("}\n")
	return sb.String()
}
