package main

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"formsummary/internal/config"
	"formsummary/internal/metrics"
	"formsummary/internal/metrics/datadog"
)

type metricsBackend interface {
	metrics.Backend
	Close() error
}

// Seams for tests.
var (
	newDatadogBackend = func(ctx context.Context, opts datadog.Options) (metricsBackend, error) {
		return datadog.NewBackend(ctx, opts)
	}
	setMetricsBackend = func(b metrics.Backend) { metrics.SetBackend(b) }
)

// initMetrics installs the configured backend. The returned cleanup is never
// nil; for datadog it submits the last window and stops the flush loop.
// A backend that fails to start is logged and metrics stay disabled.
func initMetrics(ctx context.Context, mc config.MetricsConfig, flushEvery time.Duration, log *zap.Logger) (func(), error) {
	noop := func() {}

	switch strings.ToLower(strings.TrimSpace(mc.Backend)) {
	case "", "none", "noop":
		log.Debug("metrics disabled")
		return noop, nil

	case "datadog", "dd":
		b, err := newDatadogBackend(ctx, datadog.Options{
			JobName:    "formsummary",
			Tags:       mc.Tags,
			FlushEvery: flushEvery,
		})
		if err != nil {
			log.Warn("metrics: datadog init failed; metrics disabled", zap.Error(err))
			return noop, nil
		}
		setMetricsBackend(b)
		log.Debug("metrics: datadog enabled", zap.Strings("tags", mc.Tags))
		return func() {
			if err := metrics.Flush(); err != nil {
				log.Warn("metrics: flush error", zap.Error(err))
			}
			if err := b.Close(); err != nil {
				log.Warn("metrics: datadog close error", zap.Error(err))
			}
			setMetricsBackend(nil)
		}, nil

	default:
		log.Warn("metrics: unknown backend; metrics disabled", zap.String("backend", mc.Backend))
		return noop, nil
	}
}
