package main

import (
	"context"

	"mongrel/internal/metrics"
	"mongrel/internal/metrics/datadog"
)

// setupMetrics installs the configured metrics backend and returns the
// function that flushes and removes it. A backend that fails to start is
// logged and metrics stay disabled.
func (a *app) setupMetrics(ctx context.Context) func() {
	m := a.cfg.Metrics
	switch m.Backend {
	case "datadog":
		// Datadog buffers and submits every FlushEvery, then once more on
		// Close, so long runs show up as a time series.
		tags := datadog.ParseTagsCSV(m.Tags)
		b, err := datadog.NewBackend(ctx, datadog.Options{
			JobName:    m.Job,
			Tags:       tags,
			FlushEvery: m.FlushEvery,
		})
		if err != nil {
			a.log.Warn().Err(err).Msg("metrics: datadog backend unavailable; using nop")
			return func() {}
		}
		a.log.Info().Str("backend", m.Backend).Str("job", m.Job).Strs("tags", tags).Msg("metrics")
		metrics.SetBackend(b)
		return func() {
			if err := b.Close(); err != nil {
				a.log.Warn().Err(err).Msg("metrics: datadog close/flush")
			}
			metrics.SetBackend(nil)
		}

	default:
		a.log.Debug().Str("backend", m.Backend).Msg("metrics: disabled")
		return func() {}
	}
}
