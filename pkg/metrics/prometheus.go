// Package metrics provides a Prometheus-backed implementation of the
// admission.MetricsRecorder interface.
package metrics

import (
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder maps recorder calls onto Prometheus counters and
// histograms. Collectors are registered lazily on first use of a metric
// name; the label set of that first call is the label set of the series, so
// callers must tag a given name consistently.
//
// Safe for concurrent use.
type PrometheusRecorder struct {
	mu         sync.Mutex
	registerer prometheus.Registerer
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
}

// NewPrometheusRecorder registers collectors against reg, or against the
// default registerer when reg is nil.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &PrometheusRecorder{
		registerer: reg,
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

// Add increments the counter identified by name, creating it on first use.
func (r *PrometheusRecorder) Add(name string, value float64, tags map[string]string) {
	labels := labelNames(tags)

	r.mu.Lock()
	vec, ok := r.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: sanitize(name) + "_total",
			Help: "Counter recorded by the admission engine.",
		}, labels)
		if err := r.registerer.Register(vec); err != nil {
			if are, dup := err.(prometheus.AlreadyRegisteredError); dup {
				vec = are.ExistingCollector.(*prometheus.CounterVec)
			} else {
				r.mu.Unlock()
				return
			}
		}
		r.counters[name] = vec
	}
	r.mu.Unlock()

	m, err := vec.GetMetricWith(prometheus.Labels(tags))
	if err != nil {
		return
	}
	m.Add(value)
}

// Observe records value into the histogram identified by name, creating it
// on first use.
func (r *PrometheusRecorder) Observe(name string, value float64, tags map[string]string) {
	labels := labelNames(tags)

	r.mu.Lock()
	vec, ok := r.histograms[name]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    sanitize(name) + "_seconds",
			Help:    "Timing recorded by the admission engine.",
			Buckets: prometheus.DefBuckets,
		}, labels)
		if err := r.registerer.Register(vec); err != nil {
			if are, dup := err.(prometheus.AlreadyRegisteredError); dup {
				vec = are.ExistingCollector.(*prometheus.HistogramVec)
			} else {
				r.mu.Unlock()
				return
			}
		}
		r.histograms[name] = vec
	}
	r.mu.Unlock()

	m, err := vec.GetMetricWith(prometheus.Labels(tags))
	if err != nil {
		return
	}
	m.Observe(value)
}

func labelNames(tags map[string]string) []string {
	names := make([]string, 0, len(tags))
	for k := range tags {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func sanitize(name string) string {
	return strings.NewReplacer(".", "_", "-", "_").Replace(name)
}
