package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/eshaffer321/marketplace-backend/internal/application/bulk"
)

// PrintOperation prints one bulk operation with its failures.
func PrintOperation(w io.Writer, st bulk.State) {
	fmt.Fprintf(w, "Operation: %s (%s)\n", st.OperationID, st.Operation)
	fmt.Fprintf(w, "Vendor: %d | Status: %s | Phase: %s\n", st.VendorID, st.Status, st.Progress.CurrentPhase)
	fmt.Fprintf(w, "Progress: %d/%d (%.2f%%) | Successful=%d Failed=%d\n",
		st.Progress.Processed,
		st.Progress.Total,
		st.Progress.Percentage,
		st.Progress.Successful,
		st.Progress.Failed)

	fmt.Fprintf(w, "Started: %s", st.StartTime.Format(time.RFC3339))
	if st.EndTime != nil {
		fmt.Fprintf(w, " | Finished: %s (%s)", st.EndTime.Format(time.RFC3339), st.EndTime.Sub(st.StartTime).Round(time.Millisecond))
	}
	fmt.Fprintln(w)

	if st.Results.Summary != "" {
		fmt.Fprintf(w, "Summary: %s\n", st.Results.Summary)
	}
	if st.DownloadURL != "" {
		fmt.Fprintf(w, "Download: %s\n", st.DownloadURL)
	}

	if len(st.Results.FailedItems) > 0 {
		fmt.Fprintln(w, "\nFailed items:")
		for _, item := range st.Results.FailedItems {
			fmt.Fprintf(w, "  - #%d %s [%s] %s\n", item.TargetID, item.TargetLabel, item.ErrorCode, item.ErrorMessage)
		}
	}
}

// PrintOperationTable prints one line per operation.
func PrintOperationTable(w io.Writer, states []bulk.State) {
	if len(states) == 0 {
		fmt.Fprintln(w, "No bulk operations found.")
		return
	}
	fmt.Fprintf(w, "%-36s  %-20s  %-10s  %9s  %s\n", "ID", "OPERATION", "STATUS", "PROGRESS", "STARTED")
	fmt.Fprintln(w, strings.Repeat("-", 100))
	for _, st := range states {
		fmt.Fprintf(w, "%-36s  %-20s  %-10s  %4d/%-4d  %s\n",
			st.OperationID,
			st.Operation,
			st.Status,
			st.Progress.Processed,
			st.Progress.Total,
			st.StartTime.Format(time.RFC3339))
	}
}
