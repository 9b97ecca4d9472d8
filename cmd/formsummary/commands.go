package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"formsummary/internal/config"
	"formsummary/internal/criteria"
	"formsummary/internal/instances"
	"formsummary/internal/summary"
	"formsummary/internal/xmlfield"
	"formsummary/pkg/optional"
)

// selectionFlags are shared by every command that builds a working set.
type selectionFlags struct {
	form     string
	allForms bool
	date     string
	allDates bool
	matches  []string
}

func (s *selectionFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&s.form, "form", "", "form id (default: saved form, else first available)")
	f.BoolVar(&s.allForms, "all-forms", false, "do not constrain the form")
	f.StringVar(&s.date, "date", "", "finalization day YYYY-MM-DD (default: saved day, else today)")
	f.BoolVar(&s.allDates, "all-dates", false, "do not constrain the day")
	f.StringArrayVar(&s.matches, "match", nil, "field=value constraint, repeatable")
	cmd.MarkFlagsMutuallyExclusive("form", "all-forms")
	cmd.MarkFlagsMutuallyExclusive("date", "all-dates")
}

// criteria resolves flags and saved preferences into explicit criteria.
func (a *app) criteria(cmd *cobra.Command, s *selectionFlags) (criteria.Criteria, error) {
	c := criteria.New()
	for _, m := range s.matches {
		name, value, ok := strings.Cut(m, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return c, usagef("--match %q: want field=value", m)
		}
		c = c.WithField(strings.TrimSpace(name), value)
	}

	prefs, err := config.LoadPreferences(a.cfg.Preferences.Path)
	if err != nil {
		return c, err
	}
	saved := summary.Saved{
		FormID:     optional.FromPtr(prefs.SelectedForm),
		DateMillis: optional.FromPtr(prefs.SelectedDate),
	}

	// Forms are only listed when the saved form cannot supply the default.
	var forms []instances.FormPair
	if !s.allForms && s.form == "" && !saved.FormID.Present() {
		if forms, err = a.pipeline.Forms(cmd.Context()); err != nil {
			return c, err
		}
	}
	sel := summary.ResolveSelection(saved, forms, time.Now(), a.cal)

	if !s.allForms {
		if s.form != "" {
			c = c.WithFormID(s.form)
		} else if id, ok := sel.FormID.Get(); ok {
			c = c.WithFormID(id)
		}
	}

	if !s.allDates {
		day := sel.Date
		if s.date != "" {
			if day, err = a.cal.ParseDay(s.date); err != nil {
				return c, usageError{err}
			}
		}
		c = c.WithDate(day)
	}
	return c, nil
}

func (a *app) formsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "forms",
		Short: "List forms with finalized instances",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.open(cmd); err != nil {
				return err
			}
			forms, err := a.pipeline.Forms(cmd.Context())
			if err != nil {
				return err
			}
			return renderForms(a.stdout, forms)
		},
	}
}

func (a *app) summaryCommand() *cobra.Command {
	var sel selectionFlags
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show totals for the selected instances",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.open(cmd); err != nil {
				return err
			}
			c, err := a.criteria(cmd, &sel)
			if err != nil {
				return err
			}
			rep, err := a.pipeline.Summarise(cmd.Context(), c)
			if err != nil {
				return err
			}
			return renderReport(a.stdout, a.printer, rep, a.cfg.Fields.Categorical)
		},
	}
	sel.register(cmd)
	return cmd
}

func (a *app) listCommand() *cobra.Command {
	var sel selectionFlags
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the selected instances, newest first",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.open(cmd); err != nil {
				return err
			}
			c, err := a.criteria(cmd, &sel)
			if err != nil {
				return err
			}
			rows, err := a.pipeline.List(cmd.Context(), c)
			if err != nil {
				return err
			}
			return renderRows(a.stdout, a.printer, rows)
		},
	}
	sel.register(cmd)
	return cmd
}

func (a *app) exportCommand() *cobra.Command {
	var (
		sel selectionFlags
		dir string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the selected instances to a new CSV file",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.open(cmd); err != nil {
				return err
			}
			c, err := a.criteria(cmd, &sel)
			if err != nil {
				return err
			}
			if dir == "" {
				dir = a.cfg.Export.Dir
			}
			art, err := a.pipeline.Export(cmd.Context(), c, dir)
			return a.reportArtifact(art, err)
		},
	}
	sel.register(cmd)
	cmd.Flags().StringVar(&dir, "dir", "", "destination directory (default: export.dir)")
	return cmd
}

func (a *app) shareCommand() *cobra.Command {
	var sel selectionFlags
	cmd := &cobra.Command{
		Use:   "share",
		Short: "Write the selected instances to the share directory and print the path",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.open(cmd); err != nil {
				return err
			}
			c, err := a.criteria(cmd, &sel)
			if err != nil {
				return err
			}
			art, err := a.pipeline.Share(cmd.Context(), c, a.cfg.Export.ShareDir)
			return a.reportArtifact(art, err)
		},
	}
	sel.register(cmd)
	return cmd
}

// reportArtifact prints the written path. An empty selection is reported
// but is not a failure.
func (a *app) reportArtifact(art summary.Artifact, err error) error {
	if errors.Is(err, summary.ErrNoData) {
		fmt.Fprintln(a.stdout, "nothing to export: no instances match the selection")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, art.Path)
	return nil
}

func (a *app) fieldsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "fields <instance.xml>",
		Short: "Print every leaf field of one instance document as JSON",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := xmlfield.Load(args[0])
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(doc.AllFields(), "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(a.stdout, string(out))
			return err
		},
	}
}

func (a *app) selectCommand() *cobra.Command {
	var (
		form  string
		date  string
		reset bool
	)
	cmd := &cobra.Command{
		Use:   "select",
		Short: "Save the default form and day used when flags are omitted",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.loadConfig(); err != nil {
				return err
			}
			path := a.cfg.Preferences.Path

			var prefs config.Preferences
			if !reset {
				var err error
				if prefs, err = config.LoadPreferences(path); err != nil {
					return err
				}
			}
			if form != "" {
				prefs.SelectedForm = optional.Some(form).Ptr()
			}
			if date != "" {
				day, err := a.cal.ParseDay(date)
				if err != nil {
					return usageError{err}
				}
				prefs.SelectedDate = optional.Some(day.UnixMilli()).Ptr()
			}
			if err := config.SavePreferences(path, prefs); err != nil {
				return err
			}
			return renderPreferences(a.stdout, a.printer, prefs)
		},
	}
	cmd.Flags().StringVar(&form, "form", "", "form id to save")
	cmd.Flags().StringVar(&date, "date", "", "day YYYY-MM-DD to save")
	cmd.Flags().BoolVar(&reset, "clear", false, "forget saved values before applying flags")
	return cmd
}

func (a *app) validateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and exit",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.loadConfig(); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "configuration is valid: %s (store kinds: %s)\n",
				a.cfgPath, strings.Join(instances.Kinds(), ", "))
			return nil
		},
	}
}

func noArgs(cmd *cobra.Command, args []string) error {
	if err := cobra.NoArgs(cmd, args); err != nil {
		return usageError{err}
	}
	return nil
}

func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	}
}
