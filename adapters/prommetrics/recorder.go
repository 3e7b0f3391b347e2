package prommetrics

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-invites/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultBuckets covers operation latencies in milliseconds.
var DefaultBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000}

// DefaultLabels are the tag keys emitted by the service and the purge worker.
var DefaultLabels = []string{"operation", "status", "outcome", "source", "reason", "job_id"}

// Recorder implements core.MetricsRecorder on a Prometheus registry. Vectors
// are registered on first use and share one label set: tags outside it are
// dropped and missing ones are exported as empty.
type Recorder struct {
	registry   *prometheus.Registry
	namespace  string
	buckets    []float64
	labels     []string
	mu         sync.Mutex
	counters   map[string]*labeledCounter
	histograms map[string]*labeledHistogram
	errHandler func(error)
}

type labeledCounter struct {
	vec    *prometheus.CounterVec
	labels []string
}

type labeledHistogram struct {
	vec    *prometheus.HistogramVec
	labels []string
}

type Option func(*Recorder)

func WithNamespace(namespace string) Option {
	return func(r *Recorder) {
		r.namespace = sanitizeName(namespace)
	}
}

func WithLabels(labels ...string) Option {
	return func(r *Recorder) {
		if len(labels) > 0 {
			r.labels = labelNames(labels)
		}
	}
}

func WithBuckets(buckets []float64) Option {
	return func(r *Recorder) {
		if len(buckets) > 0 {
			r.buckets = append([]float64(nil), buckets...)
		}
	}
}

// WithErrorHandler receives registration failures, which the recorder
// otherwise drops since the metrics contract has no error return.
func WithErrorHandler(fn func(error)) Option {
	return func(r *Recorder) {
		r.errHandler = fn
	}
}

func NewRecorder(registry *prometheus.Registry, opts ...Option) *Recorder {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	recorder := &Recorder{
		registry:   registry,
		buckets:    DefaultBuckets,
		labels:     labelNames(DefaultLabels),
		counters:   map[string]*labeledCounter{},
		histograms: map[string]*labeledHistogram{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(recorder)
		}
	}
	return recorder
}

func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the recorder's registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	if r == nil || value < 0 {
		return
	}
	counter, err := r.counter(name)
	if err != nil {
		r.reportError(err)
		return
	}
	counter.vec.WithLabelValues(labelValues(counter.labels, tags)...).Add(float64(value))
}

func (r *Recorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	if r == nil {
		return
	}
	histogram, err := r.histogram(name)
	if err != nil {
		r.reportError(err)
		return
	}
	histogram.vec.WithLabelValues(labelValues(histogram.labels, tags)...).Observe(value)
}

func (r *Recorder) counter(name string) (*labeledCounter, error) {
	metricName := sanitizeName(name)
	if metricName == "" {
		return nil, fmt.Errorf("prometheus: metric name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.counters[metricName]; ok {
		return existing, nil
	}
	labels := r.labels
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace,
		Name:      metricName,
		Help:      "Counter " + strings.TrimSpace(name),
	}, labels)
	if err := r.registry.Register(vec); err != nil {
		return nil, fmt.Errorf("prometheus: register counter %q: %w", metricName, err)
	}
	created := &labeledCounter{vec: vec, labels: labels}
	r.counters[metricName] = created
	return created, nil
}

func (r *Recorder) histogram(name string) (*labeledHistogram, error) {
	metricName := sanitizeName(name)
	if metricName == "" {
		return nil, fmt.Errorf("prometheus: metric name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.histograms[metricName]; ok {
		return existing, nil
	}
	labels := r.labels
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: r.namespace,
		Name:      metricName,
		Help:      "Histogram " + strings.TrimSpace(name),
		Buckets:   r.buckets,
	}, labels)
	if err := r.registry.Register(vec); err != nil {
		return nil, fmt.Errorf("prometheus: register histogram %q: %w", metricName, err)
	}
	created := &labeledHistogram{vec: vec, labels: labels}
	r.histograms[metricName] = created
	return created, nil
}

func (r *Recorder) reportError(err error) {
	if r.errHandler != nil && err != nil {
		r.errHandler(err)
	}
}

func labelNames(keys []string) []string {
	names := make([]string, 0, len(keys))
	seen := map[string]struct{}{}
	for _, key := range keys {
		sanitized := sanitizeName(key)
		if sanitized == "" {
			continue
		}
		if _, ok := seen[sanitized]; ok {
			continue
		}
		seen[sanitized] = struct{}{}
		names = append(names, sanitized)
	}
	sort.Strings(names)
	return names
}

// labelValues aligns tags to the registered label names. Unknown tags are
// dropped and missing ones are reported as empty.
func labelValues(labels []string, tags map[string]string) []string {
	byLabel := make(map[string]string, len(tags))
	for key, value := range tags {
		byLabel[sanitizeName(key)] = value
	}
	values := make([]string, len(labels))
	for i, label := range labels {
		values[i] = byLabel[label]
	}
	return values
}

// sanitizeName maps dotted service metric names onto the Prometheus charset.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	var b strings.Builder
	b.Grow(len(name))
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteRune('_')
			}
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

var _ core.MetricsRecorder = (*Recorder)(nil)
