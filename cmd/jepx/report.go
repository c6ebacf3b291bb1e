package main

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/IshaanNene/jepx/internal/jepx"
)

// printReport renders the navigation steps and retrieved artifacts of a run.
func printReport(w io.Writer, res *jepx.Result) {
	if res.Report != nil {
		steps := table.NewWriter()
		steps.SetOutputMirror(w)
		steps.SetTitle(fmt.Sprintf("%s %s: navigation (reached %s)", res.Kind, res.Date, res.Report.Reached()))
		steps.AppendHeader(table.Row{"Step", "Phase", "Result"})
		for _, r := range res.Report.Results {
			status := "ok"
			if r.Err != nil {
				status = r.Err.Error()
			}
			steps.AppendRow(table.Row{r.Step, r.Phase, status})
		}
		steps.SetStyle(table.StyleRounded)
		steps.Render()
	}

	files := table.NewWriter()
	files.SetOutputMirror(w)
	files.SetTitle("artifacts")
	files.AppendHeader(table.Row{"Dataset", "Path", "Bytes", "Result"})
	for _, o := range res.Outcomes {
		status := "saved"
		switch {
		case o.Err != nil:
			status = o.Err.Error()
		case o.Skipped:
			status = "exists, skipped"
		}
		files.AppendRow(table.Row{o.Dataset, o.Path, o.Size, status})
	}
	files.AppendFooter(table.Row{"", "", "written", len(res.Written())})
	files.SetStyle(table.StyleRounded)
	files.Render()

	fmt.Fprintf(w, "completed in %s\n", res.Duration.Round(time.Millisecond))
}
