package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"formsummary/internal/config"
	"formsummary/internal/datenorm"
	"formsummary/internal/display"
	"formsummary/internal/instances"
	"formsummary/internal/summary"
)

const allValues = "all"

func newTab(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func renderForms(w io.Writer, forms []instances.FormPair) error {
	tw := newTab(w)
	fmt.Fprintln(tw, "FORM ID\tNAME")
	for _, f := range forms {
		fmt.Fprintf(tw, "%s\t%s\n", f.FormID, f.DisplayName)
	}
	return tw.Flush()
}

// renderReport prints the summary block. categorical lists the configured
// filter fields; each shows its constraint or "all".
func renderReport(w io.Writer, pr display.Printer, rep summary.Report, categorical []string) error {
	tw := newTab(w)
	fmt.Fprintf(tw, "Form:\t%s\n", rep.FormName)

	day := allValues
	if d, ok := rep.Criteria.Date().Get(); ok {
		day = pr.Day(d)
	}
	fmt.Fprintf(tw, "Date:\t%s\n", day)

	shown := map[string]bool{}
	for _, name := range categorical {
		shown[name] = true
		fmt.Fprintf(tw, "%s:\t%s\n", name, rep.Criteria.Field(name).OrElse(allValues))
	}
	for _, fm := range rep.Criteria.Fields() {
		if !shown[fm.Name] {
			fmt.Fprintf(tw, "%s:\t%s\n", fm.Name, fm.Value)
		}
	}

	fmt.Fprintf(tw, "Total:\t%s\n", pr.Amount(rep.Result.Sum))
	fmt.Fprintf(tw, "Payments:\t%s\n", pr.Count(rep.Result.RecordCount))
	fmt.Fprintf(tw, "Households:\t%s\n", pr.Count(rep.Result.DistinctCount))
	return tw.Flush()
}

func renderRows(w io.Writer, pr display.Printer, rows []summary.Row) error {
	tw := newTab(w)
	fmt.Fprintln(tw, "FINALIZED\tID\tAMOUNT")
	for _, r := range rows {
		end := "-"
		if t, ok := r.End.Get(); ok {
			end = pr.Minute(t)
		}
		amount := "-"
		if v, ok := r.Amount.Get(); ok {
			amount = pr.Amount(v)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", end, r.ListID, amount)
	}
	return tw.Flush()
}

func renderPreferences(w io.Writer, pr display.Printer, p config.Preferences) error {
	tw := newTab(w)
	form := "(first available)"
	if p.SelectedForm != nil {
		form = *p.SelectedForm
	}
	day := "(today)"
	if p.SelectedDate != nil {
		day = pr.Day(datenorm.FromMillis(*p.SelectedDate))
	}
	fmt.Fprintf(tw, "selected_form:\t%s\n", form)
	fmt.Fprintf(tw, "selected_date:\t%s\n", day)
	return tw.Flush()
}
