// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
)

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)

	oddRowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFF")).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#999")).
			PaddingLeft(1).PaddingRight(1)

	titleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 4, 1, 4)
)

func newPlainTable(headers ...string) *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		Headers(headers...).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			switch {
			case row == lgtable.HeaderRow:
				return headerRowStyle
			case row%2 == 0:
				s = oddRowStyle
			default:
				s = evenRowStyle
			}
			if col == 0 {
				s = s.Align(lipgloss.Right)
			} else {
				s = s.Align(lipgloss.Left)
			}
			return
		})
}

// formatPoints formats the number of points of a domain, saturated counts are shown as a lower bound.
func formatPoints(points int64) string {
	if points == math.MaxInt64 {
		return ">" + humanize.Comma(points)
	}
	return humanize.Comma(points)
}

// mapsTableRows returns one row per indexing map: operand, map, domain and number of points of the domain.
func mapsTableRows(operands []OperandReport) [][]string {
	var rows [][]string
	for _, operand := range operands {
		for ii, m := range operand.Maps {
			name := operand.Name
			if ii > 0 {
				name = ""
			}
			rows = append(rows, []string{name, m.Map, strings.Join(m.Domain, "\n"), formatPoints(m.Points)})
		}
	}
	return rows
}

func printMapsTable(title string, operands []OperandReport) {
	if len(operands) == 0 {
		return
	}
	fmt.Println(titleStyle.Render(title))
	table := newPlainTable("Operand", "Map", "Domain", "# Points")
	table.Rows(mapsTableRows(operands)...)
	fmt.Println(table.Render())
}

func printTilesTable(tiles []TileReport) {
	if len(tiles) == 0 {
		return
	}
	fmt.Println(titleStyle.Render("Symbolic tiles"))
	table := newPlainTable("Operand", "Tile", "Sizes", "Bounds")
	for _, tile := range tiles {
		if !tile.Strided {
			table.Row(tile.Operand, "(not a strided tile)", "", "")
			continue
		}
		table.Row(tile.Operand, tile.Map, "["+strings.Join(tile.Sizes, ", ")+"]", strings.Join(tile.Bounds, " x "))
	}
	fmt.Println(table.Render())
}
