package core

import (
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"fmt"
	"io"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

func status(success bool) string {
	if success {
		return statusSuccess
	}
	return statusError
}

var expvarSeq uint64

// OperationStats aggregates the outcomes of one operation.
type OperationStats struct {
	TotalMS float64 `json:"duration_ms_total"`
	Success int64   `json:"success_total"`
	Errors  int64   `json:"error_total"`
}

// ExpvarMetricsRecorder publishes per-operation totals through expvar.
type ExpvarMetricsRecorder struct {
	name string
	mu   sync.Mutex
	ops  map[string]OperationStats
}

// NewExpvarMetricsRecorder publishes a recorder under name, or under a
// generated unique name when empty. Publishing a taken name panics, as
// expvar.Publish does.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		name = fmt.Sprintf("cargohold_service_metrics_%d", atomic.AddUint64(&expvarSeq, 1))
	}
	rec := &ExpvarMetricsRecorder{name: name, ops: make(map[string]OperationStats)}
	expvar.Publish(name, expvar.Func(func() any { return rec.Snapshot() }))
	return rec
}

// Name returns the expvar export name.
func (r *ExpvarMetricsRecorder) Name() string { return r.name }

// Snapshot copies the current totals.
func (r *ExpvarMetricsRecorder) Snapshot() map[string]OperationStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return maps.Clone(r.ops)
}

// Observe implements MetricsRecorder.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.ops[operation]
	st.TotalMS += float64(duration) / float64(time.Millisecond)
	if success {
		st.Success++
	} else {
		st.Errors++
	}
	r.ops[operation] = st
}

// PrometheusMetricsRecorder exports operation counts and latencies.
type PrometheusMetricsRecorder struct {
	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewPrometheusMetricsRecorder registers the collectors with reg.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) (*PrometheusMetricsRecorder, error) {
	rec := &PrometheusMetricsRecorder{
		total: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cargohold_service_operations_total",
				Help: "Number of service operations by operation and status.",
			},
			[]string{"operation", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cargohold_service_operation_duration_seconds",
				Help:    "Time taken by service operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
	var err error
	if rec.total, err = register(reg, rec.total); err != nil {
		return nil, err
	}
	if rec.duration, err = register(reg, rec.duration); err != nil {
		return nil, err
	}
	return rec, nil
}

// register adds c to reg. A collector registered earlier under the same
// descriptor is returned in its place so recorders share it.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var taken prometheus.AlreadyRegisteredError
	if errors.As(err, &taken) {
		if existing, ok := taken.ExistingCollector.(C); ok {
			return existing, nil
		}
	}
	return c, fmt.Errorf("register metrics: %w", err)
}

// Observe implements MetricsRecorder.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	r.total.WithLabelValues(operation, status(success)).Inc()
	r.duration.WithLabelValues(operation).Observe(duration.Seconds())
}

// TraceEntry is one finished span.
type TraceEntry struct {
	Operation  string    `json:"operation"`
	Status     string    `json:"status"`
	DurationMS float64   `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
}

// JSONTracer writes finished spans as JSON lines and keeps them for
// inspection.
type JSONTracer struct {
	mu      sync.Mutex
	enc     *json.Encoder
	entries []TraceEntry
}

// NewJSONTracer writes to w; a nil writer only retains the spans.
func NewJSONTracer(w io.Writer) *JSONTracer {
	t := &JSONTracer{}
	if w != nil {
		t.enc = json.NewEncoder(w)
	}
	return t
}

// Entries returns a copy of the finished spans.
func (t *JSONTracer) Entries() []TraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]TraceEntry(nil), t.entries...)
}

// Start implements Tracer.
func (t *JSONTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return ctx, &jsonSpan{tracer: t, operation: operation, started: time.Now().UTC()}
}

type jsonSpan struct {
	tracer    *JSONTracer
	operation string
	started   time.Time
}

func (s *jsonSpan) End(err error) {
	ended := time.Now().UTC()
	entry := TraceEntry{
		Operation:  s.operation,
		Status:     status(err == nil),
		DurationMS: float64(ended.Sub(s.started)) / float64(time.Millisecond),
		StartedAt:  s.started,
		EndedAt:    ended,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	s.tracer.mu.Lock()
	defer s.tracer.mu.Unlock()
	s.tracer.entries = append(s.tracer.entries, entry)
	if s.tracer.enc != nil {
		_ = s.tracer.enc.Encode(entry)
	}
}
