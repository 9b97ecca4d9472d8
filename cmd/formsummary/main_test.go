package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"formsummary/internal/config"
	"formsummary/internal/metrics"
	"formsummary/internal/metrics/datadog"
)

// These tests share process-wide state (environment, metrics seams), so none
// of them run in parallel.

// fakeMetricsBackend is a deterministic metrics backend used by initMetrics tests.
type fakeMetricsBackend struct {
	closeErr error
	closed   atomic.Int64
	flushed  atomic.Int64
	counters atomic.Int64
}

func (b *fakeMetricsBackend) IncCounter(string, float64, metrics.Labels) { b.counters.Add(1) }
func (b *fakeMetricsBackend) ObserveHistogram(string, float64, metrics.Labels) {}

func (b *fakeMetricsBackend) Flush() error {
	b.flushed.Add(1)
	return nil
}

func (b *fakeMetricsBackend) Close() error {
	b.closed.Add(1)
	return b.closeErr
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"FORMSUMMARY_STORE_KIND", "FORMSUMMARY_STORE_DSN", "FORMSUMMARY_STORE_DIR",
		"FORMSUMMARY_EXPORT_DIR", "METRICS_BACKEND", "METRICS_TAGS",
	} {
		t.Setenv(k, "")
	}
}

// workspace is a throwaway instances directory plus a config pointing at it.
type workspace struct {
	root      string
	cfgPath   string
	exportDir string
	shareDir  string
}

func instanceXML(form, end, montant, household string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<data id="%s">
  <end>%s</end>
  <localisation><fokontany>Ambohitra</fokontany></localisation>
  <montant>%s</montant>
  <hope_id_menage>%s</hope_id_menage>
  <hope_household_id>L-%s</hope_household_id>
</data>`, form, end, montant, household, household)
}

func newWorkspace(t *testing.T) workspace {
	t.Helper()
	clearEnv(t)

	root := t.TempDir()
	ws := workspace{
		root:      root,
		cfgPath:   filepath.Join(root, "formsummary.yaml"),
		exportDir: filepath.Join(root, "exports"),
		shareDir:  filepath.Join(root, "share"),
	}

	files := map[string]string{
		"pay_a": instanceXML("pay", "2024-05-10T08:00:00+03:00", "100", "H1"),
		"pay_b": instanceXML("pay", "2024-05-10T17:30:00+03:00", "250.5", "H1"),
		"pay_c": instanceXML("pay", "2024-05-10T12:00:00+03:00", "bad", "H2"),
		"pay_d": instanceXML("pay", "2024-05-11T09:00:00+03:00", "7", "H3"),
		"reg_a": instanceXML("reg", "2024-05-10T09:00:00+03:00", "1", "H9"),
	}
	for name, body := range files {
		dir := filepath.Join(root, "instances", name)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, name+".xml"), []byte(body), 0o600))
	}

	cfg := fmt.Sprintf(`
store:
  kind: dir
  dir: %q
  display_names:
    pay: Paiement HOPE
calendar:
  timezone: Africa/Nairobi
export:
  dir: %q
  share_dir: %q
  naming: timestamp
display:
  language: en
metrics:
  backend: none
logging:
  level: error
  format: console
preferences:
  path: %q
`, filepath.Join(root, "instances"), ws.exportDir, ws.shareDir, filepath.Join(root, "prefs.yaml"))
	require.NoError(t, os.WriteFile(ws.cfgPath, []byte(cfg), 0o600))
	return ws
}

func (ws workspace) run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), append([]string{"--config", ws.cfgPath}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func assertLine(t *testing.T, out, label, value string) {
	t.Helper()
	re := regexp.MustCompile(`(?m)^` + regexp.QuoteMeta(label) + `:\s+` + regexp.QuoteMeta(value) + `\s*$`)
	assert.Regexp(t, re, out)
}

func TestRun_UsageErrors(t *testing.T) {
	ws := newWorkspace(t)

	tests := []struct {
		name      string
		args      []string
		stderrSub string
	}{
		{name: "unknown_flag", args: []string{"summary", "--bogus"}, stderrSub: "unknown flag"},
		{name: "extra_args", args: []string{"summary", "extra"}, stderrSub: "unknown command"},
		{name: "unknown_command", args: []string{"nope"}, stderrSub: "unknown command"},
		{name: "fields_needs_path", args: []string{"fields"}, stderrSub: "accepts 1 arg"},
		{name: "bad_match", args: []string{"summary", "--match", "novalue"}, stderrSub: "want field=value"},
		{name: "bad_date", args: []string{"list", "--date", "10/05/2024"}, stderrSub: "10/05/2024"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, stdout, stderr := ws.run(t, tt.args...)
			assert.Equal(t, exitUsage, code, "stderr: %s", stderr)
			assert.Contains(t, stderr, tt.stderrSub)
			assert.Empty(t, stdout)
		})
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  kind: floppy\n"), 0o600))

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"--config", path, "validate"}, &stdout, &stderr)
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr.String(), "store.kind")
	assert.Contains(t, stderr.String(), "configuration is invalid")
}

func TestRun_Validate(t *testing.T) {
	ws := newWorkspace(t)

	code, stdout, stderr := ws.run(t, "validate")
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, "configuration is valid")
	assert.Contains(t, stdout, "dir")
}

func TestRun_Forms(t *testing.T) {
	ws := newWorkspace(t)

	code, stdout, stderr := ws.run(t, "forms")
	require.Equal(t, exitOK, code, stderr)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "pay")
	assert.Contains(t, lines[1], "Paiement HOPE")
	assert.Contains(t, lines[2], "reg")
}

func TestRun_Summary(t *testing.T) {
	ws := newWorkspace(t)

	code, stdout, stderr := ws.run(t, "summary", "--form", "pay", "--date", "2024-05-10")
	require.Equal(t, exitOK, code, stderr)

	assertLine(t, stdout, "Form", "Paiement HOPE")
	assertLine(t, stdout, "Date", "10 May 2024")
	assertLine(t, stdout, "fokontany", "all")
	assertLine(t, stdout, "Total", "350")
	assertLine(t, stdout, "Payments", "3")
	assertLine(t, stdout, "Households", "2")
}

func TestRun_SummaryDefaultsToFirstForm(t *testing.T) {
	ws := newWorkspace(t)

	// No saved form: forms sort by display name, so "Paiement HOPE" comes first.
	code, stdout, stderr := ws.run(t, "summary", "--date", "2024-05-10")
	require.Equal(t, exitOK, code, stderr)
	assertLine(t, stdout, "Form", "Paiement HOPE")
	assertLine(t, stdout, "Payments", "3")

	code, stdout, stderr = ws.run(t, "select", "--form", "reg")
	require.Equal(t, exitOK, code, stderr)
	code, stdout, stderr = ws.run(t, "summary", "--date", "2024-05-10")
	require.Equal(t, exitOK, code, stderr)
	assertLine(t, stdout, "Form", "reg")
	assertLine(t, stdout, "Payments", "1")
}

func TestRun_SummaryWithMatch(t *testing.T) {
	ws := newWorkspace(t)

	code, stdout, stderr := ws.run(t, "summary", "--form", "pay", "--all-dates",
		"--match", "fokontany=Ambohitra", "--match", "hope_id_menage=H3")
	require.Equal(t, exitOK, code, stderr)

	assertLine(t, stdout, "Date", "all")
	assertLine(t, stdout, "fokontany", "Ambohitra")
	assertLine(t, stdout, "hope_id_menage", "H3")
	assertLine(t, stdout, "Total", "7")
	assertLine(t, stdout, "Payments", "1")
}

func TestRun_ListNewestFirst(t *testing.T) {
	ws := newWorkspace(t)

	code, stdout, stderr := ws.run(t, "list", "--form", "pay", "--date", "2024-05-10")
	require.Equal(t, exitOK, code, stderr)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[1], "2024-05-10 17:30")
	assert.Contains(t, lines[1], "L-H1")
	assert.Contains(t, lines[2], "2024-05-10 12:00")
	assert.Regexp(t, `L-H2\s+-$`, lines[2], "unparsable amount renders as a dash")
	assert.Contains(t, lines[3], "2024-05-10 08:00")
}

func TestRun_ExportAndShare(t *testing.T) {
	ws := newWorkspace(t)

	code, stdout, stderr := ws.run(t, "export", "--form", "pay", "--date", "2024-05-10")
	require.Equal(t, exitOK, code, stderr)

	path := strings.TrimSpace(stdout)
	assert.Equal(t, ws.exportDir, filepath.Dir(path))
	assert.Regexp(t, `^Paiement HOPE__\d{14}\.csv$`, filepath.Base(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	header := strings.SplitN(string(data), "\n", 2)[0]
	assert.Contains(t, header, `"instanceID"`)
	assert.Contains(t, header, `"montant"`)
	assert.Equal(t, 4, strings.Count(string(data), "\n")+1, "header plus three rows")

	other := filepath.Join(ws.root, "elsewhere")
	code, stdout, stderr = ws.run(t, "export", "--form", "pay", "--date", "2024-05-10", "--dir", other)
	require.Equal(t, exitOK, code, stderr)
	assert.Equal(t, other, filepath.Dir(strings.TrimSpace(stdout)))

	code, stdout, stderr = ws.run(t, "share", "--form", "pay", "--date", "2024-05-10")
	require.Equal(t, exitOK, code, stderr)
	shared := strings.TrimSpace(stdout)
	assert.Equal(t, ws.shareDir, filepath.Dir(shared))
	_, err = os.Stat(shared)
	assert.NoError(t, err)
}

func TestRun_ExportEmptySelection(t *testing.T) {
	ws := newWorkspace(t)

	code, stdout, stderr := ws.run(t, "export", "--form", "nobody", "--all-dates")
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, "nothing to export")

	_, err := os.Stat(ws.exportDir)
	assert.True(t, os.IsNotExist(err))
}

func TestRun_SelectIsRemembered(t *testing.T) {
	ws := newWorkspace(t)

	code, stdout, stderr := ws.run(t, "select", "--form", "pay", "--date", "2024-05-11")
	require.Equal(t, exitOK, code, stderr)
	assertLine(t, stdout, "selected_form", "pay")
	assertLine(t, stdout, "selected_date", "11 May 2024")

	code, stdout, stderr = ws.run(t, "summary")
	require.Equal(t, exitOK, code, stderr)
	assertLine(t, stdout, "Date", "11 May 2024")
	assertLine(t, stdout, "Total", "7")

	code, stdout, stderr = ws.run(t, "select", "--clear")
	require.Equal(t, exitOK, code, stderr)
	assertLine(t, stdout, "selected_form", "(first available)")
	assertLine(t, stdout, "selected_date", "(today)")
}

func TestRun_Fields(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "one.xml")
	require.NoError(t, os.WriteFile(path, []byte(instanceXML("pay", "2024-05-10T08:00:00+03:00", "100", "H1")), 0o600))

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"fields", path}, &stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())
	assert.Contains(t, stdout.String(), `"montant": "100"`)
	assert.Contains(t, stdout.String(), `"localisation/fokontany": "Ambohitra"`)

	code = run(context.Background(), []string{"fields", filepath.Join(t.TempDir(), "missing.xml")}, &stdout, &stderr)
	assert.Equal(t, exitFailure, code)
}

func withMetricsSeams(t *testing.T, newFn func(context.Context, datadog.Options) (metricsBackend, error)) *[]metrics.Backend {
	t.Helper()
	oldNew, oldSet := newDatadogBackend, setMetricsBackend
	var installed []metrics.Backend
	newDatadogBackend = newFn
	setMetricsBackend = func(b metrics.Backend) {
		installed = append(installed, b)
		metrics.SetBackend(b)
	}
	t.Cleanup(func() {
		newDatadogBackend, setMetricsBackend = oldNew, oldSet
		metrics.SetBackend(nil)
	})
	return &installed
}

func TestInitMetrics_Disabled(t *testing.T) {
	for _, backend := range []string{"", "none", "noop", "prometheus"} {
		t.Run(backend, func(t *testing.T) {
			installed := withMetricsSeams(t, func(context.Context, datadog.Options) (metricsBackend, error) {
				t.Fatal("datadog backend must not be constructed")
				return nil, nil
			})

			cleanup, err := initMetrics(context.Background(), config.MetricsConfig{Backend: backend}, time.Minute, zap.NewNop())
			require.NoError(t, err)
			require.NotNil(t, cleanup)
			cleanup()
			assert.Empty(t, *installed)
		})
	}
}

func TestInitMetrics_Datadog(t *testing.T) {
	fake := &fakeMetricsBackend{closeErr: errors.New("flush failed")}
	var gotOpts datadog.Options
	installed := withMetricsSeams(t, func(_ context.Context, opts datadog.Options) (metricsBackend, error) {
		gotOpts = opts
		return fake, nil
	})

	cleanup, err := initMetrics(context.Background(),
		config.MetricsConfig{Backend: " DataDog ", Tags: []string{"env:test"}}, 30*time.Second, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, "formsummary", gotOpts.JobName)
	assert.Equal(t, []string{"env:test"}, gotOpts.Tags)
	assert.Equal(t, 30*time.Second, gotOpts.FlushEvery)
	require.Len(t, *installed, 1)
	assert.Same(t, fake, (*installed)[0])

	cleanup()
	assert.Equal(t, int64(1), fake.flushed.Load(), "last window flushed before close")
	assert.Equal(t, int64(1), fake.closed.Load(), "close error is logged, not returned")
	require.Len(t, *installed, 2)
	assert.Nil(t, (*installed)[1], "backend is reset on cleanup")
}

func TestInitMetrics_DatadogInitFailureDisables(t *testing.T) {
	installed := withMetricsSeams(t, func(context.Context, datadog.Options) (metricsBackend, error) {
		return nil, errors.New("no api key")
	})

	cleanup, err := initMetrics(context.Background(), config.MetricsConfig{Backend: "datadog"}, time.Minute, zap.NewNop())
	require.NoError(t, err)
	cleanup()
	assert.Empty(t, *installed)
}
