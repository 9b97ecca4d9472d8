package datadog

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"formsummary/internal/metrics"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeSubmitter captures payloads submitted by Backend.Flush.
type fakeSubmitter struct {
	mu       sync.Mutex
	payloads []datadogV2.MetricPayload
	err      error
}

func (f *fakeSubmitter) SubmitMetrics(_ context.Context, body datadogV2.MetricPayload, _ ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, body)
	return datadogV2.IntakePayloadAccepted{}, nil, f.err
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func (f *fakeSubmitter) last() (datadogV2.MetricPayload, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.payloads) == 0 {
		return datadogV2.MetricPayload{}, false
	}
	return f.payloads[len(f.payloads)-1], true
}

func quietOptions(fs *fakeSubmitter) Options {
	return Options{
		JobName:    "job1",
		FlushEvery: 24 * time.Hour,
		submitter:  fs,
		now:        func() time.Time { return time.Unix(1000, 0) },
		newTicker:  func(time.Duration) *time.Ticker { return time.NewTicker(24 * time.Hour) },
	}
}

func newQuiet(t *testing.T, fs *fakeSubmitter) *Backend {
	t.Helper()
	b, err := NewBackend(context.Background(), quietOptions(fs))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func metricNames(p datadogV2.MetricPayload) []string {
	out := make([]string, 0, len(p.Series))
	for _, s := range p.Series {
		out = append(out, s.Metric)
	}
	sort.Strings(out)
	return out
}

func TestResolveEnvTag(t *testing.T) {
	tests := []struct {
		name string
		env  string
		dd   string
		want string
	}{
		{name: "ENV_wins", env: "prod", dd: "stage", want: "env:prod"},
		{name: "DD_ENV_used_when_ENV_empty", env: "", dd: "stage", want: "env:stage"},
		{name: "whitespace_ignored", env: "   ", dd: "\n\t", want: "env:unknown"},
		{name: "default_unknown", env: "", dd: "", want: "env:unknown"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("ENV", tc.env)
			t.Setenv("DD_ENV", tc.dd)
			assert.Equal(t, tc.want, resolveEnvTag())
		})
	}
}

func TestWrapInitErr(t *testing.T) {
	assert.NoError(t, wrapInitErr(nil))

	in := errors.New("boom")
	got := wrapInitErr(in)
	require.Error(t, got)
	assert.Contains(t, got.Error(), "datadog metrics init:")
	assert.ErrorIs(t, got, in)
}

func TestStepStatusKeyRoundTrip(t *testing.T) {
	for _, tc := range []struct{ step, status string }{
		{"summary", "ok"}, {"", "ok"}, {"export", ""}, {"", ""},
	} {
		step, status := splitStepStatusKey(stepStatusKey(tc.step, tc.status))
		assert.Equal(t, tc.step, step)
		assert.Equal(t, tc.status, status)
	}

	step, status := splitStepStatusKey("no-sep")
	assert.Equal(t, "no-sep", step)
	assert.Equal(t, "unknown", status)
}

func TestWithTags_DoesNotAlias(t *testing.T) {
	base := []string{"env:test", "job:formsummary"}
	got := withTags(base, "step:summary")
	assert.Equal(t, []string{"env:test", "job:formsummary", "step:summary"}, got)

	got[0] = "env:mutated"
	assert.Equal(t, "env:test", base[0])
}

func TestPercentileNearestRank(t *testing.T) {
	tests := []struct {
		name string
		s    []float64
		p    float64
		want float64
	}{
		{"empty", nil, 0.50, 0},
		{"single", []float64{7}, 0.95, 7},
		{"p_le_0", []float64{1, 2, 3}, -1, 1},
		{"p_ge_1", []float64{1, 2, 3}, 2, 3},
		{"median", []float64{1, 2, 3, 4, 5}, 0.50, 3},
		{"p90_small_n", []float64{1, 2, 3, 4, 5}, 0.90, 5},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, percentileNearestRank(tc.s, tc.p))
		})
	}
}

func TestAddPercentiles_DoesNotMutateInput(t *testing.T) {
	orig := []float64{5, 1, 3, 2, 4}
	in := append([]float64(nil), orig...)

	var series []datadogV2.MetricSeries
	addPercentiles(&series, "formsummary.export.bytes", []string{"destination:share"}, in, 999)

	require.Len(t, series, 6)
	assert.Equal(t, orig, in)
	for _, s := range series {
		assert.Equal(t, datadogV2.METRICINTAKETYPE_GAUGE, *s.Type)
		assert.Equal(t, int64(999), *s.Points[0].Timestamp)
		assert.Contains(t, s.Tags, "destination:share")
	}
	assert.Equal(t, 5.0, *series[4].Points[0].Value, "max")
	assert.Equal(t, 5.0, *series[5].Points[0].Value, "samples")
}

func TestNewBackend_Defaults(t *testing.T) {
	fs := &fakeSubmitter{}
	opts := quietOptions(fs)
	opts.JobName = ""
	opts.FlushEvery = 0
	opts.Tags = []string{"site:north"}

	b, err := NewBackend(context.Background(), opts)
	require.NoError(t, err)
	defer func() { _ = b.Close() }()

	assert.Contains(t, b.baseTags, "job:formsummary")
	assert.Contains(t, b.baseTags, "site:north")
	assert.Equal(t, 60*time.Second, b.flushEvery)
}

func TestNewBackend_NilContext(t *testing.T) {
	//nolint:staticcheck // nil context is the case under test
	_, err := NewBackend(nil, Options{})
	assert.Error(t, err)
}

func TestFlush_SubmitsAndResets(t *testing.T) {
	fs := &fakeSubmitter{}
	b := newQuiet(t, fs)

	b.IncCounter(metrics.StepTotal, 1, metrics.Labels{"step": "summary", "status": "ok"})
	b.IncCounter(metrics.RecordsTotal, 3, metrics.Labels{"kind": "selected"})
	b.ObserveHistogram(metrics.StepDuration, 0.5, metrics.Labels{"step": "summary", "status": "ok"})
	b.ObserveHistogram(metrics.ExportBytes, 2048, metrics.Labels{"destination": "download"})

	require.NoError(t, b.Flush())
	require.Equal(t, 1, fs.count())

	assert.Empty(t, b.stepCounts)
	assert.Empty(t, b.recordCounts)
	assert.Empty(t, b.durationSamples)
	assert.Empty(t, b.exportBytes)

	payload, ok := fs.last()
	require.True(t, ok)
	names := metricNames(payload)
	for _, w := range []string{
		"formsummary.step.total",
		"formsummary.records.total",
		"formsummary.step.duration_seconds.p50",
		"formsummary.step.duration_seconds.samples",
		"formsummary.export.bytes.max",
	} {
		assert.Contains(t, names, w)
	}
}

func TestFlush_NoDataDoesNotSubmit(t *testing.T) {
	fs := &fakeSubmitter{}
	b := newQuiet(t, fs)

	require.NoError(t, b.Flush())
	assert.Zero(t, fs.count())
}

func TestFlush_WrapsSubmitError(t *testing.T) {
	boom := errors.New("403")
	fs := &fakeSubmitter{err: boom}
	b := newQuiet(t, fs)

	b.IncCounter(metrics.RecordsTotal, 1, metrics.Labels{"kind": "exported"})
	err := b.Flush()
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, b.recordCounts, "window dropped after failure")
}

func TestLoopAndClose(t *testing.T) {
	fs := &fakeSubmitter{}
	b, err := NewBackend(context.Background(), Options{
		JobName:    "job1",
		FlushEvery: 5 * time.Millisecond,
		submitter:  fs,
		now:        func() time.Time { return time.Unix(2000, 0) },
	})
	require.NoError(t, err)

	b.IncCounter(metrics.RecordsTotal, 1, metrics.Labels{"kind": "candidate"})
	require.Eventually(t, func() bool { return fs.count() >= 1 }, time.Second, 2*time.Millisecond)

	b.IncCounter(metrics.RecordsTotal, 1, metrics.Labels{"kind": "candidate"})
	require.NoError(t, b.Close())
	assert.GreaterOrEqual(t, fs.count(), 2)

	assert.NoError(t, b.Close(), "second Close is a no-op")
}

func TestBackend_ConcurrentAccess(t *testing.T) {
	fs := &fakeSubmitter{}
	b := newQuiet(t, fs)

	workers := runtime.GOMAXPROCS(0) * 4
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				b.IncCounter(metrics.StepTotal, 1, metrics.Labels{"step": "export", "status": "ok"})
				b.IncCounter(metrics.RecordsTotal, 1, metrics.Labels{"kind": "exported"})
				b.ObserveHistogram(metrics.StepDuration, 0.01, metrics.Labels{"step": "export", "status": "ok"})
				b.ObserveHistogram(metrics.ExportBytes, 10, metrics.Labels{"destination": "share"})
			}
		}()
	}
	wg.Wait()

	require.NoError(t, b.Flush())
	assert.Equal(t, 1, fs.count())
}

func TestIncCounterAndObserveHistogram_EdgeCases(t *testing.T) {
	fs := &fakeSubmitter{}
	b := newQuiet(t, fs)

	b.IncCounter(metrics.RecordsTotal, 0, metrics.Labels{"kind": "selected"})
	b.IncCounter(metrics.RecordsTotal, 1, metrics.Labels{})
	b.IncCounter("unknown_total", 1, metrics.Labels{"x": "y"})
	b.ObserveHistogram(metrics.StepDuration, -1, metrics.Labels{"step": "summary"})
	b.ObserveHistogram(metrics.ExportBytes, 12, metrics.Labels{})

	require.NoError(t, b.Flush())
	payload, ok := fs.last()
	require.True(t, ok)

	for _, s := range payload.Series {
		assert.Contains(t, s.Metric, "formsummary.export.bytes.")
		assert.Contains(t, s.Tags, "destination:unknown")
	}
}

func TestParseTagsCSV(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty_returns_nil", "", nil},
		{"trims_and_skips_empty_segments", " env:prod , ,site:north,  ,team:data ", []string{"env:prod", "site:north", "team:data"}},
		{"single_tag", "site:north", []string{"site:north"}},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, ParseTagsCSV(tc.in))
		})
	}
}
