package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/sells-group/lead-import/internal/leadimport"
	"github.com/sells-group/lead-import/internal/model"
)

// formatRunSummary writes the state and counters of a run to out.
func formatRunSummary(out io.Writer, run *model.ImportRun) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Run:\t%s\n", run.ID)
	_, _ = fmt.Fprintf(w, "File:\t%s\n", run.Filename)
	_, _ = fmt.Fprintf(w, "Status:\t%s\n", run.Status)
	_, _ = fmt.Fprintf(w, "Rows:\t%d/%d processed\n", run.Counts.Processed, run.TotalRows)
	_, _ = fmt.Fprintf(w, "  Created:\t%d\n", run.Counts.Created)
	_, _ = fmt.Fprintf(w, "  Hard duplicates:\t%d\n", run.Counts.HardDuplicate)
	_, _ = fmt.Fprintf(w, "  Soft duplicates:\t%d\n", run.Counts.SoftDuplicate)
	_, _ = fmt.Fprintf(w, "  Errors:\t%d\n", run.Counts.Error)
	_, _ = fmt.Fprintf(w, "  Skipped:\t%d\n", run.Counts.Skipped)
	if run.FailureReason != nil {
		_, _ = fmt.Fprintf(w, "Failure:\t%s\n", *run.FailureReason)
	}
	if run.CompletedAt != nil {
		_, _ = fmt.Fprintf(w, "Completed:\t%s\n", run.CompletedAt.Format(time.RFC3339))
	}
	_ = w.Flush()
}

// formatMapping writes the mapping in lead field order.
func formatMapping(out io.Writer, m model.ColumnMapping) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "FIELD\tCOLUMN")
	for _, f := range model.LeadFields {
		if col, ok := m[f]; ok {
			_, _ = fmt.Fprintf(w, "%s\t%s\n", f, col)
		}
	}
	_ = w.Flush()
}

// formatPreview writes raw rows as a table with the run's headers.
func formatPreview(out io.Writer, headers []string, rows []model.ImportRow) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ROW\t"+strings.Join(headers, "\t"))
	for _, r := range rows {
		cells := make([]string, len(headers))
		for i, h := range headers {
			cells[i] = clip(r.Raw.Text(h), 30)
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\n", r.RowNumber, strings.Join(cells, "\t"))
	}
	_ = w.Flush()
}

// formatRowPage writes one page of classified rows.
func formatRowPage(out io.Writer, page *leadimport.RowPage) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ROW\tID\tSTATUS\tLEAD\tSCORE\tDETAIL")
	for _, r := range page.Rows {
		lead, score, detail := "", "", ""
		if r.MatchedLeadID != nil {
			lead = *r.MatchedLeadID
		}
		if r.MatchScore != nil {
			score = fmt.Sprintf("%.4f", *r.MatchScore)
		}
		switch {
		case r.ErrorMessage != nil:
			detail = clip(*r.ErrorMessage, 60)
		case r.ResolutionReason != nil:
			detail = clip(*r.ResolutionReason, 60)
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", r.RowNumber, r.ID, r.Status, lead, score, detail)
	}
	_ = w.Flush()

	pages := (page.Total + page.PageSize - 1) / page.PageSize
	_, _ = fmt.Fprintf(out, "page %d of %d (%d rows)\n", page.Page, max(pages, 1), page.Total)
}

// formatLead writes a lead's fields in display order.
func formatLead(out io.Writer, lead *model.Lead) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Lead:\t%s\n", lead.ID)
	for _, f := range model.LeadFields {
		if v := lead.Field(f); v != "" {
			_, _ = fmt.Fprintf(w, "  %s:\t%s\n", f, v)
		}
	}
	if lead.MergedIntoLeadID != nil {
		_, _ = fmt.Fprintf(w, "  merged_into:\t%s\n", *lead.MergedIntoLeadID)
	}
	_ = w.Flush()
}

// formatMergeLog writes the audit record of a merge.
func formatMergeLog(out io.Writer, log *model.MergeLog) {
	fields := make([]string, 0, len(log.ChosenFields))
	for f, c := range log.ChosenFields {
		fields = append(fields, f+"="+string(c))
	}
	sort.Strings(fields)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Merge:\t%s\n", log.ID)
	_, _ = fmt.Fprintf(w, "  primary:\t%s\n", log.PrimaryLeadID)
	_, _ = fmt.Fprintf(w, "  merged:\t%s\n", log.MergedLeadID)
	_, _ = fmt.Fprintf(w, "  chosen:\t%s\n", strings.Join(fields, ", "))
	_ = w.Flush()
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// clip shortens s to n runes for tabular display.
func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
