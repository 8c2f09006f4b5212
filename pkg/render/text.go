package render

import (
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/Sumatoshi-tech/bugflow/pkg/series"
	"github.com/Sumatoshi-tech/bugflow/pkg/workflow"
)

// maxListedFaults caps the per-record fault lines in text output.
const maxListedFaults = 10

// WriteText renders the last rows snapshots as a table, followed by run
// statistics and a fault summary. rows <= 0 renders every snapshot.
func WriteText(w io.Writer, res *series.Result, rows int) error {
	stages := PlottedStages()

	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false
	tbl.Style().Options.DrawBorder = false
	tbl.Style().Format.Header = text.FormatDefault
	tbl.Style().Format.Footer = text.FormatDefault

	header := table.Row{"Date"}
	for _, stage := range stages {
		header = append(header, stage.Label())
	}

	tbl.AppendHeader(append(header, "Total"))

	first := 0
	if rows > 0 && res.Series.Len() > rows {
		first = res.Series.Len() - rows
	}

	for i := first; i < res.Series.Len(); i++ {
		row := table.Row{res.Series.Dates[i]}
		for _, stage := range stages {
			row = append(row, humanize.Comma(int64(res.Series.Counts[stage][i])))
		}

		tbl.AppendRow(append(row, humanize.Comma(int64(res.Series.TotalAt(i)))))
	}

	tbl.AppendFooter(table.Row{fmt.Sprintf("%d of %d days", res.Series.Len()-first, res.Series.Len())})

	_, err := fmt.Fprintf(w, "Run %s\n%s\n\n", res.RunID, tbl.Render())
	if err != nil {
		return fmt.Errorf("write table: %w", err)
	}

	st := res.Stats

	_, err = fmt.Fprintf(w, "Records: %s  Timelines: %s  Background: %s  Faulted: %s\n",
		humanize.Comma(int64(st.Records)), humanize.Comma(int64(st.Timelines)),
		humanize.Comma(int64(st.Background)), humanize.Comma(int64(st.Faulted)))
	if err != nil {
		return fmt.Errorf("write stats: %w", err)
	}

	_, err = fmt.Fprintf(w, "Candidates: %s  Committed: %s  Discarded: %s\n",
		humanize.Comma(int64(st.Candidates)), humanize.Comma(int64(st.Committed)), humanize.Comma(int64(st.Discarded)))
	if err != nil {
		return fmt.Errorf("write stats: %w", err)
	}

	return writeFaults(w, res.Faults)
}

func writeFaults(w io.Writer, faults []*workflow.Fault) error {
	if len(faults) == 0 {
		color.New(color.FgGreen).Fprintln(w, "No faults")

		return nil
	}

	byKind := make(map[string]int)
	for _, f := range faults {
		byKind[f.Kind]++
	}

	color.New(color.FgRed).Fprintf(w, "Faults: %d records excluded\n", len(faults))

	for _, kind := range slices.Sorted(maps.Keys(byKind)) {
		color.New(color.FgYellow).Fprintf(w, "  %s: %d\n", kind, byKind[kind])
	}

	for i, f := range faults {
		if i == maxListedFaults {
			_, err := fmt.Fprintf(w, "  ... %d more\n", len(faults)-maxListedFaults)

			return err
		}

		_, err := fmt.Fprintf(w, "  - %s\n", f.Error())
		if err != nil {
			return err
		}
	}

	return nil
}
