package datadog

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"mongrel/internal/metrics"
)

// fakeSubmitter records every payload Flush submits.
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

// series returns the last payload as "name|tag,tag" -> value.
func (f *fakeSubmitter) series(t *testing.T) map[string]float64 {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.payloads) == 0 {
		t.Fatalf("no payload submitted")
	}
	out := map[string]float64{}
	for _, s := range f.payloads[len(f.payloads)-1].Series {
		var own []string
		for _, tag := range s.Tags {
			if !strings.HasPrefix(tag, "env:") && !strings.HasPrefix(tag, "job:") {
				own = append(own, tag)
			}
		}
		out[s.Metric+"|"+strings.Join(own, ",")] = *s.Points[0].Value
	}
	return out
}

// newTestBackend never ticks on its own; tests flush explicitly.
func newTestBackend(t *testing.T, fs *fakeSubmitter) *Backend {
	t.Helper()
	b, err := NewBackend(context.Background(), Options{
		JobName:   "music",
		submitter: fs,
		now:       func() time.Time { return time.Unix(1000, 0) },
		newTicker: func(time.Duration) *time.Ticker { return time.NewTicker(24 * time.Hour) },
	})
	if err != nil {
		t.Fatalf("NewBackend() err=%v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestResolveEnvTag(t *testing.T) {
	tests := []struct {
		name, env, dd, want string
	}{
		{"env_wins", "prod", "stage", "env:prod"},
		{"dd_env_fallback", "", "stage", "env:stage"},
		{"blank_ignored", "  ", "\t", "env:unknown"},
		{"unset", "", "", "env:unknown"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("ENV", tc.env)
			t.Setenv("DD_ENV", tc.dd)
			if got := resolveEnvTag(); got != tc.want {
				t.Fatalf("resolveEnvTag()=%q, want %q", got, tc.want)
			}
		})
	}
}

func TestKeyFor(t *testing.T) {
	k, ok := keyFor(metrics.StageTotal, metrics.Labels{"stage": "ddl", "status": "ok", "extra": "dropped"})
	if !ok {
		t.Fatalf("keyFor(StageTotal) not ok")
	}
	if k.name != "mongrel.stage.total" {
		t.Fatalf("name=%q", k.name)
	}
	if got, want := k.tagList(), []string{"stage:ddl", "status:ok"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("tags=%v, want %v", got, want)
	}

	k, _ = keyFor(metrics.RowsTotal, nil)
	if got := k.tagList(); !reflect.DeepEqual(got, []string{"table:unknown"}) {
		t.Fatalf("missing label tags=%v", got)
	}

	k, _ = keyFor(metrics.DocumentsTotal, metrics.Labels{"table": "ignored"})
	if k.tagList() != nil {
		t.Fatalf("unlabeled metric got tags %v", k.tagList())
	}

	if _, ok := keyFor("etl_rows_total", nil); ok {
		t.Fatalf("unknown metric accepted")
	}
}

func TestNearestRank(t *testing.T) {
	tests := []struct {
		s    []float64
		p    float64
		want float64
	}{
		{nil, 0.5, 0},
		{[]float64{7}, 0.95, 7},
		{[]float64{1, 2, 3}, -1, 1},
		{[]float64{1, 2, 3}, 2, 3},
		{[]float64{1, 2, 3, 4, 5}, 0.5, 3},
		{[]float64{1, 2, 3, 4, 5}, 0.9, 5},
	}
	for _, tc := range tests {
		if got := nearestRank(tc.s, tc.p); got != tc.want {
			t.Fatalf("nearestRank(%v,%v)=%v, want %v", tc.s, tc.p, got, tc.want)
		}
	}
}

func TestAppendSummary(t *testing.T) {
	samples := []float64{0.5, 0.1, 0.3, 0.2, 0.4}
	orig := append([]float64(nil), samples...)

	out := appendSummary(nil, "mongrel.flush.duration_seconds", []string{"table:tracks"}, samples, 42)
	if !reflect.DeepEqual(samples, orig) {
		t.Fatalf("samples reordered: %v", samples)
	}

	var names []string
	got := map[string]float64{}
	for _, s := range out {
		names = append(names, strings.TrimPrefix(s.Metric, "mongrel.flush.duration_seconds."))
		got[s.Metric] = *s.Points[0].Value
		if *s.Type != datadogV2.METRICINTAKETYPE_GAUGE || *s.Points[0].Timestamp != 42 {
			t.Fatalf("series %q has type %v ts %d", s.Metric, *s.Type, *s.Points[0].Timestamp)
		}
	}
	if want := []string{"p50", "p90", "p95", "p99", "max", "samples"}; !reflect.DeepEqual(names, want) {
		t.Fatalf("summary order=%v, want %v", names, want)
	}
	if got["mongrel.flush.duration_seconds.p50"] != 0.3 || got["mongrel.flush.duration_seconds.max"] != 0.5 {
		t.Fatalf("summary values=%v", got)
	}

	if out := appendSummary(nil, "x", nil, nil, 0); len(out) != 0 {
		t.Fatalf("empty samples produced %d series", len(out))
	}
}

func TestNewBackend_Defaults(t *testing.T) {
	b := newTestBackend(t, &fakeSubmitter{})
	if b.flushEvery != 60*time.Second {
		t.Fatalf("flushEvery=%s, want 60s", b.flushEvery)
	}
	if b.baseTags[1] != "job:music" {
		t.Fatalf("baseTags=%v", b.baseTags)
	}

	b2, err := NewBackend(context.Background(), Options{
		submitter: &fakeSubmitter{},
		newTicker: func(time.Duration) *time.Ticker { return time.NewTicker(time.Hour) },
	})
	if err != nil {
		t.Fatalf("NewBackend() err=%v", err)
	}
	defer b2.Close()
	if b2.baseTags[1] != "job:mongrel" {
		t.Fatalf("default job tag missing: %v", b2.baseTags)
	}
}

func TestNewBackend_RequiresAPIKey(t *testing.T) {
	t.Setenv("DD_API_KEY", "")
	_, err := NewBackend(context.Background(), Options{})
	if err == nil || !strings.Contains(err.Error(), "datadog metrics init: DD_API_KEY is not set") {
		t.Fatalf("NewBackend() err=%v, want missing DD_API_KEY", err)
	}
}

func TestFlush_SubmitsTransferSeries(t *testing.T) {
	fs := &fakeSubmitter{}
	b := newTestBackend(t, fs)

	b.IncCounter(metrics.DocumentsTotal, 3, nil)
	b.IncCounter(metrics.RowsTotal, 5, metrics.Labels{"table": "music.tracks"})
	b.IncCounter(metrics.RowsTotal, 2, metrics.Labels{"table": "music.artist"})
	b.IncCounter(metrics.InsertedTotal, 4, metrics.Labels{"table": "music.tracks"})
	b.IncCounter(metrics.FlushesTotal, 1, nil)
	b.IncCounter(metrics.StageTotal, 1, metrics.Labels{"stage": "ddl", "status": "ok"})
	b.ObserveHistogram(metrics.StageDurationSeconds, 0.5, metrics.Labels{"stage": "ddl", "status": "ok"})
	b.ObserveHistogram(metrics.FlushDurationSeconds, 0.1, metrics.Labels{"table": "music.tracks"})

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() err=%v", err)
	}
	got := fs.series(t)
	for k, want := range map[string]float64{
		"mongrel.documents.total|":                                  3,
		"mongrel.rows.total|table:music.tracks":                     5,
		"mongrel.rows.total|table:music.artist":                     2,
		"mongrel.inserted.total|table:music.tracks":                 4,
		"mongrel.flushes.total|":                                    1,
		"mongrel.stage.total|stage:ddl,status:ok":                   1,
		"mongrel.stage.duration_seconds.p99|stage:ddl,status:ok":    0.5,
		"mongrel.flush.duration_seconds.samples|table:music.tracks": 1,
	} {
		if got[k] != want {
			t.Fatalf("%s=%v, want %v (all: %v)", k, got[k], want, got)
		}
	}

	if !b.swap().empty() {
		t.Fatalf("window not reset by Flush")
	}
	if err := b.Flush(); err != nil || fs.count() != 1 {
		t.Fatalf("empty Flush err=%v submissions=%d, want nil and 1", err, fs.count())
	}
}

func TestFlush_SubmitErrorDropsWindow(t *testing.T) {
	fs := &fakeSubmitter{err: errors.New("intake down")}
	b := newTestBackend(t, fs)

	b.IncCounter(metrics.FlushesTotal, 1, nil)
	if err := b.Flush(); err == nil {
		t.Fatalf("Flush() err=nil, want submit error")
	}
	if !b.swap().empty() {
		t.Fatalf("failed window kept; delivery must be at most once")
	}
}

func TestIgnoredObservations(t *testing.T) {
	fs := &fakeSubmitter{}
	b := newTestBackend(t, fs)

	b.IncCounter(metrics.FlushesTotal, 0, nil)
	b.IncCounter("unknown_total", 1, nil)
	b.ObserveHistogram(metrics.StageDurationSeconds, -1, nil)
	b.ObserveHistogram("unknown_seconds", 1, nil)

	if !b.swap().empty() {
		t.Fatalf("ignored observations were buffered")
	}
}

func TestLoopAndClose(t *testing.T) {
	fs := &fakeSubmitter{}
	b, err := NewBackend(context.Background(), Options{
		FlushEvery: 5 * time.Millisecond,
		submitter:  fs,
	})
	if err != nil {
		t.Fatalf("NewBackend() err=%v", err)
	}

	b.IncCounter(metrics.DocumentsTotal, 1, nil)
	deadline := time.Now().Add(time.Second)
	for fs.count() < 1 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	if fs.count() < 1 {
		_ = b.Close()
		t.Fatalf("flush loop never submitted")
	}

	b.IncCounter(metrics.DocumentsTotal, 1, nil)
	if err := b.Close(); err != nil {
		t.Fatalf("Close() err=%v", err)
	}
	if fs.count() < 2 {
		t.Fatalf("Close did not submit the final window; submissions=%d", fs.count())
	}
	if err := b.Close(); err != nil {
		t.Fatalf("second Close() err=%v", err)
	}
}

func TestBackend_ConcurrentAccess(t *testing.T) {
	fs := &fakeSubmitter{}
	b := newTestBackend(t, fs)

	workers, iters := runtime.GOMAXPROCS(0)*4, 1000
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range iters {
				b.IncCounter(metrics.InsertedTotal, 1, metrics.Labels{"table": "music.tracks"})
				b.ObserveHistogram(metrics.FlushDurationSeconds, 0.01, metrics.Labels{"table": "music.tracks"})
			}
		}()
	}
	wg.Wait()

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() err=%v", err)
	}
	got := fs.series(t)
	if want := float64(workers * iters); got["mongrel.inserted.total|table:music.tracks"] != want {
		t.Fatalf("inserted=%v, want %v", got["mongrel.inserted.total|table:music.tracks"], want)
	}
	if want := float64(workers * iters); got["mongrel.flush.duration_seconds.samples|table:music.tracks"] != want {
		t.Fatalf("samples=%v, want %v", got["mongrel.flush.duration_seconds.samples|table:music.tracks"], want)
	}
}

func TestParseTagsCSV(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{" , ", nil},
		{" env:prod , ,service:mongrel,  ,team:data ", []string{"env:prod", "service:mongrel", "team:data"}},
		{"service:mongrel", []string{"service:mongrel"}},
	}
	for _, tc := range tests {
		if got := ParseTagsCSV(tc.in); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("ParseTagsCSV(%q)=%v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestWrapInitErr(t *testing.T) {
	if wrapInitErr(nil) != nil {
		t.Fatalf("wrapInitErr(nil) != nil")
	}
	in := errors.New("boom")
	if got := wrapInitErr(in); !errors.Is(got, in) {
		t.Fatalf("wrapInitErr lost the cause: %v", got)
	}
}
