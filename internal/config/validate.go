package config

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"
)

// Severity of a validation Issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding at a YAML path.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Validate checks cfg against the set of known store kinds. It never stops
// at the first problem.
func Validate(cfg *Config, storeKinds []string) []Issue {
	var out []Issue
	add := func(sev Severity, path, format string, args ...any) {
		out = append(out, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, args...)})
	}

	known := false
	for _, k := range storeKinds {
		if cfg.Store.Kind == k {
			known = true
			break
		}
	}
	if !known {
		add(SeverityError, "store.kind", "unknown store kind %q (known: %s)", cfg.Store.Kind, strings.Join(storeKinds, ", "))
	}
	switch cfg.Store.Kind {
	case "dir":
		if strings.TrimSpace(cfg.Store.Dir) == "" {
			add(SeverityError, "store.dir", "required for store kind \"dir\"")
		}
	case "sqlite", "postgres", "mssql":
		if strings.TrimSpace(cfg.Store.DSN) == "" {
			add(SeverityError, "store.dsn", "required for store kind %q", cfg.Store.Kind)
		}
	}

	for path, v := range map[string]string{
		"fields.date":     cfg.Fields.Date,
		"fields.sum":      cfg.Fields.Sum,
		"fields.distinct": cfg.Fields.Distinct,
	} {
		if strings.TrimSpace(v) == "" {
			add(SeverityError, path, "must name an instance field")
		}
	}
	if strings.TrimSpace(cfg.Fields.ListID) == "" {
		add(SeverityWarning, "fields.list_id", "empty; list rows will show no identifier")
	}
	seen := map[string]bool{}
	for i, f := range cfg.Fields.Categorical {
		p := fmt.Sprintf("fields.categorical[%d]", i)
		switch {
		case strings.TrimSpace(f) == "":
			add(SeverityError, p, "empty field name")
		case seen[f]:
			add(SeverityWarning, p, "duplicate field %q", f)
		}
		seen[f] = true
	}

	if tz := cfg.Calendar.Timezone; tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add(SeverityError, "calendar.timezone", "unknown zone %q: %v", tz, err)
		}
	}

	if strings.TrimSpace(cfg.Export.Dir) == "" {
		add(SeverityError, "export.dir", "required")
	}
	if strings.TrimSpace(cfg.Export.ShareDir) == "" {
		add(SeverityWarning, "export.share_dir", "empty; share writes into the working directory")
	}
	if n := cfg.Export.Naming; n != "" && n != "timestamp" {
		add(SeverityError, "export.naming", "unsupported naming %q (only \"timestamp\")", n)
	}

	if cfg.Display.Language != "" {
		if _, err := language.Parse(cfg.Display.Language); err != nil {
			add(SeverityWarning, "display.language", "invalid tag %q; using und", cfg.Display.Language)
		}
	}

	switch cfg.Metrics.Backend {
	case "", "none", "datadog":
	default:
		add(SeverityWarning, "metrics.backend", "unknown backend %q; metrics disabled", cfg.Metrics.Backend)
	}
	if fe := cfg.Metrics.FlushEvery; fe != "" {
		if d, err := time.ParseDuration(fe); err != nil || d < 0 {
			add(SeverityWarning, "metrics.flush_every", "invalid duration %q; using default", fe)
		}
	}

	switch cfg.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		add(SeverityWarning, "logging.level", "unknown level %q; using info", cfg.Logging.Level)
	}
	switch cfg.Logging.Format {
	case "", "console", "json":
	default:
		add(SeverityWarning, "logging.format", "unknown format %q; using console", cfg.Logging.Format)
	}

	return out
}
