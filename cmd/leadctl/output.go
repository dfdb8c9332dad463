package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/dalemusser/leadtrack/internal/app/importer"
	"github.com/dalemusser/leadtrack/internal/app/merger"
	"github.com/fatih/color"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func decisionColor(d importer.Decision) *color.Color {
	switch d {
	case importer.DecisionCreate:
		return color.New(color.FgGreen)
	case importer.DecisionUpdate:
		return color.New(color.FgCyan)
	case importer.DecisionConflict:
		return color.New(color.FgYellow)
	case importer.DecisionError:
		return color.New(color.FgRed)
	}
	return color.New(color.Faint)
}

func printImportReport(w io.Writer, rep importer.Report) {
	mode := color.New(color.FgHiMagenta).Sprint("DRY RUN")
	if !rep.DryRun {
		mode = color.New(color.FgHiGreen).Sprint("COMMITTED")
	}
	fmt.Fprintf(w, "%s  run %s\n\n", mode, rep.RunID)

	for _, row := range rep.Rows {
		line := fmt.Sprintf("  row %-5d %s", row.RowIndex, decisionColor(row.Decision).Sprintf("%-8s", row.Decision))
		if row.LeadID != "" {
			line += "  " + row.LeadID
		}
		if row.Reason != "" {
			line += "  (" + row.Reason + ")"
		}
		if len(row.Annotations) > 0 {
			line += "  [" + strings.Join(row.Annotations, ", ") + "]"
		}
		fmt.Fprintln(w, line)
	}
	for _, re := range rep.RowErrors {
		fmt.Fprintf(w, "  row %-5d %s  %s\n", re.Row, color.New(color.FgRed).Sprintf("%-8s", "INVALID"), re.Reason)
	}

	c := rep.Counts
	fmt.Fprintf(w, "\ncreated %d  updated %d  skipped %d  conflicts %d  errors %d\n",
		c.Created, c.Updated, c.Skipped, c.Conflicts, c.Errors)
	if rep.FailedBatches > 0 {
		fmt.Fprintln(w, color.New(color.FgRed).Sprintf("%d of %d batches failed", rep.FailedBatches, rep.Batches))
	}
}

func printMergeReport(w io.Writer, rep merger.Report) {
	fmt.Fprintf(w, "%s %s into %s\n",
		color.New(color.FgHiGreen).Sprint("merged"), rep.RetiredLeadID, rep.SurvivingLeadID)
	f := rep.MergedFields
	fmt.Fprintf(w, "  name from %s, email from %s, relationship from %s, snapshot from %s\n",
		f.Name, f.Email, f.Relationship, f.Snapshot)
	fmt.Fprintf(w, "  %d phones added, %d courses added, %d tasks relinked\n",
		f.PhonesAdded, f.CoursesAdded, rep.RelinkedTaskCount)
}
