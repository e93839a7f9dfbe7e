// Package datadog submits mongrel metrics to Datadog.
//
// Observations are buffered per series and submitted every FlushEvery
// (default one minute) and once more on Close, so a long transfer shows up as
// a time series. Counters are submitted as COUNT; histograms are summarized
// into p50/p90/p95/p99/max/samples GAUGEs.
//
// A process killed with SIGKILL never runs Close; the last window is lost.
package datadog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"mongrel/internal/metrics"
)

// Options controls Datadog backend configuration.
type Options struct {
	// JobName becomes tag "job:<name>". Defaults to "mongrel".
	JobName string

	// Tags are extra tags such as "service:mongrel".
	Tags []string

	// FlushEvery is the submission period. Defaults to 60s.
	FlushEvery time.Duration

	// Test seams.
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker
	submitter metricsSubmitter
}

// metricsSubmitter is the part of *datadogV2.MetricsApi the backend uses.
type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// definition maps a metrics name onto its Datadog name and the labels that
// become tags. Names without a definition are dropped.
type definition struct {
	name   string
	labels []string
}

var definitions = map[string]definition{
	metrics.DocumentsTotal:       {name: "mongrel.documents.total"},
	metrics.FlushesTotal:         {name: "mongrel.flushes.total"},
	metrics.RowsTotal:            {name: "mongrel.rows.total", labels: []string{"table"}},
	metrics.InsertedTotal:        {name: "mongrel.inserted.total", labels: []string{"table"}},
	metrics.FlushDurationSeconds: {name: "mongrel.flush.duration_seconds", labels: []string{"table"}},
	metrics.StageTotal:           {name: "mongrel.stage.total", labels: []string{"stage", "status"}},
	metrics.StageDurationSeconds: {name: "mongrel.stage.duration_seconds", labels: []string{"stage", "status"}},
}

// seriesKey identifies one buffered series: Datadog name plus its label tags
// joined by "\x00".
type seriesKey struct {
	name string
	tags string
}

func keyFor(name string, labels metrics.Labels) (seriesKey, bool) {
	def, ok := definitions[name]
	if !ok {
		return seriesKey{}, false
	}
	tags := make([]string, len(def.labels))
	for i, l := range def.labels {
		v := labels[l]
		if v == "" {
			v = "unknown"
		}
		tags[i] = l + ":" + v
	}
	return seriesKey{name: def.name, tags: strings.Join(tags, "\x00")}, true
}

func (k seriesKey) tagList() []string {
	if k.tags == "" {
		return nil
	}
	return strings.Split(k.tags, "\x00")
}

// Backend implements metrics.Backend for Datadog.
type Backend struct {
	api        metricsSubmitter
	ctx        context.Context
	baseTags   []string
	flushEvery time.Duration
	now        func() time.Time
	newTicker  func(d time.Duration) *time.Ticker

	stopCh chan struct{}
	doneCh chan struct{}

	mu        sync.Mutex
	buf       window
	closeOnce sync.Once
}

// window is the state buffered between two submissions.
type window struct {
	counts  map[seriesKey]float64
	samples map[seriesKey][]float64
}

func newWindow() window {
	return window{counts: map[seriesKey]float64{}, samples: map[seriesKey][]float64{}}
}

func (w window) empty() bool { return len(w.counts) == 0 && len(w.samples) == 0 }

// NewBackend starts a backend and its flush loop.
//
// The environment tag comes from ENV, then DD_ENV, else env:unknown.
//
// Errors:
//   - DD_API_KEY unset when no submitter is injected. Submission errors
//     surface from Flush and Close.
func NewBackend(parent context.Context, opts Options) (*Backend, error) {
	if opts.JobName == "" {
		opts.JobName = "mongrel"
	}
	if opts.FlushEvery <= 0 {
		opts.FlushEvery = 60 * time.Second
	}
	if opts.now == nil {
		opts.now = time.Now
	}
	if opts.newTicker == nil {
		opts.newTicker = time.NewTicker
	}
	if opts.submitter == nil {
		if strings.TrimSpace(os.Getenv("DD_API_KEY")) == "" {
			return nil, wrapInitErr(errors.New("DD_API_KEY is not set"))
		}
		opts.submitter = datadogV2.NewMetricsApi(dd.NewAPIClient(dd.NewConfiguration()))
	}

	base := append([]string{resolveEnvTag(), "job:" + opts.JobName}, opts.Tags...)
	b := &Backend{
		api:        opts.submitter,
		ctx:        dd.NewDefaultContext(parent),
		baseTags:   base,
		flushEvery: opts.FlushEvery,
		now:        opts.now,
		newTicker:  opts.newTicker,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		buf:        newWindow(),
	}
	go b.loop()
	return b, nil
}

func resolveEnvTag() string {
	for _, name := range []string{"ENV", "DD_ENV"} {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return "env:" + v
		}
	}
	return "env:unknown"
}

func (b *Backend) loop() {
	defer close(b.doneCh)
	t := b.newTicker(b.flushEvery)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			_ = b.Flush()
		case <-b.stopCh:
			return
		}
	}
}

// Close stops the flush loop and submits what is left. Later calls only
// flush.
func (b *Backend) Close() error {
	b.closeOnce.Do(func() {
		close(b.stopCh)
		<-b.doneCh
	})
	return b.Flush()
}

// IncCounter implements metrics.Backend. Non-positive deltas are ignored.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}
	k, ok := keyFor(name, labels)
	if !ok {
		return
	}
	b.mu.Lock()
	b.buf.counts[k] += delta
	b.mu.Unlock()
}

// ObserveHistogram implements metrics.Backend. Negative values are ignored.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 {
		return
	}
	k, ok := keyFor(name, labels)
	if !ok {
		return
	}
	b.mu.Lock()
	b.buf.samples[k] = append(b.buf.samples[k], value)
	b.mu.Unlock()
}

func (b *Backend) swap() window {
	b.mu.Lock()
	defer b.mu.Unlock()
	w := b.buf
	b.buf = newWindow()
	return w
}

// Flush submits the buffered window. The window is discarded even when
// submission fails, so delivery is at most once. An empty window submits
// nothing.
func (b *Backend) Flush() error {
	w := b.swap()
	if w.empty() {
		return nil
	}
	payload := datadogV2.MetricPayload{Series: b.buildSeries(w, b.now().Unix())}
	_, _, err := b.api.SubmitMetrics(b.ctx, payload, *datadogV2.NewSubmitMetricsOptionalParameters())
	return err
}

// buildSeries renders a window at one timestamp, sorted by name then tags.
func (b *Backend) buildSeries(w window, nowUnix int64) []datadogV2.MetricSeries {
	out := make([]datadogV2.MetricSeries, 0, len(w.counts)+6*len(w.samples))

	for _, k := range sortedKeys(w.counts) {
		out = append(out, point(k.name, datadogV2.METRICINTAKETYPE_COUNT, w.counts[k], b.tags(k), nowUnix))
	}
	for _, k := range sortedKeys(w.samples) {
		out = appendSummary(out, k.name, b.tags(k), w.samples[k], nowUnix)
	}
	return out
}

func (b *Backend) tags(k seriesKey) []string {
	return append(slices.Clip(b.baseTags), k.tagList()...)
}

func sortedKeys[V any](m map[seriesKey]V) []seriesKey {
	keys := make([]seriesKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b seriesKey) int {
		if c := strings.Compare(a.name, b.name); c != 0 {
			return c
		}
		return strings.Compare(a.tags, b.tags)
	})
	return keys
}

// appendSummary adds the percentile gauges of samples without reordering it.
func appendSummary(out []datadogV2.MetricSeries, name string, tags []string, samples []float64, nowUnix int64) []datadogV2.MetricSeries {
	if len(samples) == 0 {
		return out
	}
	s := slices.Clone(samples)
	slices.Sort(s)

	gauge := datadogV2.METRICINTAKETYPE_GAUGE
	for _, q := range []struct {
		suffix string
		p      float64
	}{{"p50", 0.50}, {"p90", 0.90}, {"p95", 0.95}, {"p99", 0.99}} {
		out = append(out, point(name+"."+q.suffix, gauge, nearestRank(s, q.p), tags, nowUnix))
	}
	out = append(out, point(name+".max", gauge, s[len(s)-1], tags, nowUnix))
	return append(out, point(name+".samples", gauge, float64(len(s)), tags, nowUnix))
}

func point(name string, typ datadogV2.MetricIntakeType, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: name,
		Type:   typ.Ptr(),
		Points: []datadogV2.MetricPoint{{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)}},
		Tags:   tags,
	}
}

// nearestRank returns the p-quantile of the sorted slice s.
func nearestRank(s []float64, p float64) float64 {
	n := len(s)
	switch {
	case n == 0:
		return 0
	case p <= 0:
		return s[0]
	case p >= 1:
		return s[n-1]
	}
	return s[min(int(p*float64(n-1)+0.5), n-1)]
}

var _ metrics.Backend = (*Backend)(nil)

// ParseTagsCSV parses comma-separated tags like "env:prod,service:mongrel".
func ParseTagsCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func wrapInitErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("datadog metrics init: %w", err)
}
