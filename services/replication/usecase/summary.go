package usecase

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/chetanchaudhari789/MOBO-sub000/services/replication/domain/entity"
	"github.com/chetanchaudhari789/MOBO-sub000/shared/common"
)

// PrintSummary writes the per-type summary table of a schema report
func PrintSummary(w io.Writer, report *SchemaReport) {
	mode := ""
	if report.DryRun {
		mode = " (dry run)"
	}
	fmt.Fprintf(w, "\nSchema %s%s\n", report.Schema, mode)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ENTITY\tSOURCE\tTARGET\tSYNCED\tERRORS\tDEFERRED\tDURATION\tSTATUS")
	for _, e := range report.Entities {
		status := string(e.Status)
		if e.Skipped {
			status += " (skipped)"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%d\t%d\t%d\t%s\t%s\n",
			e.EntityType,
			e.SourceCount,
			countCell(e.TargetCount),
			e.Synced,
			e.Errors,
			e.Deferred,
			common.TimeUtils{}.FormatDuration(e.Duration),
			status,
		)
	}
	_ = tw.Flush()

	for _, e := range report.Entities {
		if len(e.ErrorSamples) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n%s errors (first %d of %d):\n", e.EntityType, len(e.ErrorSamples), e.Errors)
		for _, s := range e.ErrorSamples {
			fmt.Fprintf(w, "  - %s: %s\n", common.Coalesce(s.SourceID, "-"), s.Message)
		}
	}

	if report.Fatal != nil {
		fmt.Fprintf(w, "\nSchema aborted: %v\n", report.Fatal)
	}
}

// PrintRunSummary writes every schema of a run
func PrintRunSummary(w io.Writer, run *RunReport) {
	for _, schema := range run.Schemas {
		PrintSummary(w, schema)
	}
	fmt.Fprintf(w, "\nRun %s finished in %s\n", run.RunID, common.TimeUtils{}.FormatDuration(run.Duration))
}

// PrintDrift writes a verification table
func PrintDrift(w io.Writer, reports []entity.DriftReport) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ENTITY\tSOURCE\tTARGET\tDRIFT\tMATCH")
	for _, r := range reports {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%t\n", r.EntityType, r.SourceCount, r.TargetCount, r.SourceCount-r.TargetCount, r.Match)
	}
	_ = tw.Flush()
}

func countCell(n int64) string {
	if n < 0 {
		return "?"
	}
	return fmt.Sprintf("%d", n)
}
