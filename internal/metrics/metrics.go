// Package metrics holds the Prometheus collectors of an extraction run.
package metrics

import (
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "wachat"

// Metrics bundles Prometheus collectors for the extractor. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	lines           *prometheus.CounterVec
	records         prometheus.Counter
	files           *prometheus.CounterVec
	fileDuration    prometheus.Histogram
	phones          *prometheus.CounterVec
	phoneRejections *prometheus.CounterVec
	tags            *prometheus.CounterVec
	sinkWriteErrors *prometheus.CounterVec
	lastRun         prometheus.Gauge
}

// New builds a registry with every collector registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		lines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_total",
			Help:      "Input lines by how the boundary parser classified them",
		}, []string{"kind"}),
		records: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Records emitted to the sinks",
		}),
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_total",
			Help:      "Input files by processing result",
		}, []string{"result"}),
		fileDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "file_duration_seconds",
			Help:      "Histogram of per-file parse and enrich durations",
			Buckets:   prometheus.DefBuckets,
		}),
		phones: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phones_total",
			Help:      "Phone numbers assigned to a record field",
		}, []string{"slot", "strategy"}),
		phoneRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phone_rejections_total",
			Help:      "Secondary phone candidates rejected by validation",
		}, []string{"reason"}),
		tags: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tags_total",
			Help:      "Status and region tags attached to records",
		}, []string{"kind"}),
		sinkWriteErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_write_errors_total",
			Help:      "Record write failures by sink",
		}, []string{"sink"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished",
		}),
	}

	registry.MustRegister(
		m.lines,
		m.records,
		m.files,
		m.fileDuration,
		m.phones,
		m.phoneRejections,
		m.tags,
		m.sinkWriteErrors,
		m.lastRun,
	)

	return m
}

// Handler returns an HTTP handler exposing the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WriteTextfile writes the registry in text format for a node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return errors.Wrapf(prometheus.WriteToTextfile(path, m.registry), "write metrics %s", path)
}

func (m *Metrics) IncLine(kind string) {
	if m == nil {
		return
	}
	m.lines.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncRecords() {
	if m == nil {
		return
	}
	m.records.Inc()
}

// ObserveFile records the outcome and duration of one input file.
func (m *Metrics) ObserveFile(result string, dur time.Duration) {
	if m == nil {
		return
	}
	m.files.WithLabelValues(result).Inc()
	m.fileDuration.Observe(dur.Seconds())
}

func (m *Metrics) IncPhone(slot, strategy string) {
	if m == nil {
		return
	}
	m.phones.WithLabelValues(slot, strategy).Inc()
}

func (m *Metrics) AddPhoneRejections(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.phoneRejections.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) AddTags(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.tags.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) IncSinkWriteErrors(sink string) {
	if m == nil {
		return
	}
	m.sinkWriteErrors.WithLabelValues(sink).Inc()
}

// MarkRun stamps the completion time of a run.
func (m *Metrics) MarkRun(t time.Time) {
	if m == nil {
		return
	}
	m.lastRun.Set(float64(t.Unix()))
}
