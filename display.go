package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range columns {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

// printReport writes one block per matched directory, the failures and the
// closing summary.
func (app *Application) printReport(outcomes []dirOutcome, summary Summary) {
	out := app.out
	for _, o := range sortedByDir(outcomes, statusMatched) {
		printMatchedDirectory(out, o)
	}

	if unmatched := sortedByDir(outcomes, statusUnmatched); len(unmatched) > 0 {
		fmt.Fprintln(out, "No matching release:")
		for _, o := range unmatched {
			fmt.Fprintf(out, "  - %s\n", o.Dir)
		}
		fmt.Fprintln(out)
	}

	if failed := sortedByDir(outcomes, statusFailed); len(failed) > 0 {
		fmt.Fprintln(out, "Failed:")
		for _, o := range failed {
			fmt.Fprintf(out, "  - %s: %v\n", o.Dir, o.Err)
		}
		fmt.Fprintln(out)
	}

	printSummary(out, summary, app.config.Run.DryRun)
}

func printMatchedDirectory(out io.Writer, o dirOutcome) {
	result := o.Result
	heading := result.Dir
	if result.NewDir != "" && result.NewDir != result.Dir {
		heading += " -> " + filepath.Base(result.NewDir)
	}
	fmt.Fprintln(out, heading)
	fmt.Fprintf(out, "Album:      %s\n", result.Album)
	fmt.Fprintf(out, "Performers: %s\n", strings.Join(result.Performers, ", "))

	rows := make([][]string, 0, len(result.Tracks))
	for _, t := range result.Tracks {
		to := filepath.Base(t.NewPath)
		if !t.Renamed() {
			to = "(unchanged)"
		}
		rows = append(rows, []string{
			strconv.Itoa(t.TrackNumber),
			filepath.Base(t.OldPath),
			to,
			t.Title,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"#", "File", "New name", "Title"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft},
	))
	fmt.Fprintln(out)
}

func printSummary(out io.Writer, s Summary, dryRun bool) {
	title := "Summary"
	if dryRun {
		title = "Summary (dry run, nothing written)"
	}
	fmt.Fprintln(out, title)
	fmt.Fprintln(out, renderTable(
		[]string{"Matched", "Changed", "Unmatched", "Ignored", "Failed"},
		[][]string{{
			strconv.Itoa(s.Matched),
			strconv.Itoa(s.Changed),
			strconv.Itoa(s.Unmatched),
			strconv.Itoa(s.Ignored),
			strconv.Itoa(s.Failed),
		}},
		[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight},
	))
}
