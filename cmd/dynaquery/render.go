package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/lattice-id/dynaquery/planner"
	"github.com/lattice-id/dynaquery/reqbuild"
)

// printPlan renders a plan summary: one row per bound sub-query (or a
// single row for the scan fallback), colorized the way the teacher's
// annotations.OutputFormatter colorizes its phase/scan events.
func printPlan(w io.Writer, plan *planner.Plan, reqs []reqbuild.Request, useColor bool) {
	if plan.IsUsingScan() {
		fmt.Fprintln(w, colorize(useColor, "=== table scan (no usable index) ===", color.FgYellow))
		return
	}

	tableString := &strings.Builder{}
	table := tablewriter.NewTable(tableString,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
	table.Header([]string{"index", "key condition", "filter expression"})

	bound := plan.SortedQueries()
	for i, bq := range bound {
		index := bq.Key.Index
		if index == "" {
			index = "(primary)"
		}
		var keyExpr, filterExpr string
		if i < len(reqs) && reqs[i].Query != nil {
			q := reqs[i].Query
			if q.KeyConditionExpression != nil {
				keyExpr = *q.KeyConditionExpression
			}
			if q.FilterExpression != nil {
				filterExpr = *q.FilterExpression
			}
		}
		if filterExpr == "" {
			filterExpr = "-"
		}
		table.Append([]string{
			colorize(useColor, index, color.FgCyan),
			keyExpr,
			colorize(useColor, filterExpr, color.FgYellow),
		})
	}
	table.Render()
	fmt.Fprint(w, tableString.String())
	fmt.Fprintf(w, "\n%s\n", colorize(useColor, fmt.Sprintf("%d sub-quer%s", len(bound), plural(len(bound))), color.FgGreen))
}

func plural(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}

func colorize(useColor bool, s string, attr color.Attribute) string {
	if !useColor {
		return s
	}
	return color.New(attr).Sprint(s)
}

// printItems renders a page of items as a markdown table, following
// the shape of the teacher's executor.TableFormatter.
func printItems(w io.Writer, items []map[string]types.AttributeValue) {
	if len(items) == 0 {
		fmt.Fprintln(w, "_no items_")
		return
	}

	columns := itemColumns(items)
	tableString := &strings.Builder{}
	table := tablewriter.NewTable(tableString,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
	table.Header(columns)
	for _, item := range items {
		row := make([]string, len(columns))
		for i, col := range columns {
			row[i] = formatAttr(item[col])
		}
		table.Append(row)
	}
	table.Render()
	fmt.Fprint(w, tableString.String())
	fmt.Fprintf(w, "\n_%d rows_\n", len(items))
}

func itemColumns(items []map[string]types.AttributeValue) []string {
	seen := map[string]struct{}{}
	var cols []string
	for _, item := range items {
		for attr := range item {
			if _, ok := seen[attr]; !ok {
				seen[attr] = struct{}{}
				cols = append(cols, attr)
			}
		}
	}
	return cols
}

func formatAttr(v types.AttributeValue) string {
	switch t := v.(type) {
	case nil:
		return ""
	case *types.AttributeValueMemberS:
		return t.Value
	case *types.AttributeValueMemberN:
		return t.Value
	case *types.AttributeValueMemberBOOL:
		return fmt.Sprintf("%t", t.Value)
	default:
		return fmt.Sprintf("%v", v)
	}
}
