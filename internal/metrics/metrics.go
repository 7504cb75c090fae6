// Package metrics provides Prometheus metrics for recognition, enrollment and the gallery
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the Prometheus collectors of the service.
// All methods are safe to call on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	recognitionsTotal  *prometheus.CounterVec
	recognitionLatency prometheus.Histogram
	enrollmentsTotal   *prometheus.CounterVec
	enrolledFaces      prometheus.Counter

	galleryEntries    prometheus.Gauge
	galleryIdentities prometheus.Gauge
	rebuildsTotal     *prometheus.CounterVec
	rebuildDuration   prometheus.Histogram
}

// New creates and registers the metrics on registry.
func New(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.recognitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "face_attendance_recognitions_total",
			Help: "Total number of recognition requests by outcome",
		},
		[]string{"outcome"}, // written, duplicate, no_match, error
	)

	m.recognitionLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "face_attendance_recognition_duration_seconds",
			Help:    "Time from receiving a frame to the attendance decision",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)

	m.enrollmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "face_attendance_enrollments_total",
			Help: "Total number of enrollment attempts by outcome",
		},
		[]string{"outcome"}, // enrolled, duplicate, no_valid_faces, invalid, error
	)

	m.enrolledFaces = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "face_attendance_enrolled_faces_total",
			Help: "Total number of enrollment images that yielded a valid embedding",
		},
	)

	m.galleryEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "face_attendance_gallery_entries",
			Help: "Number of embeddings in the published gallery",
		},
	)

	m.galleryIdentities = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "face_attendance_gallery_identities",
			Help: "Number of distinct identities in the published gallery",
		},
	)

	m.rebuildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "face_attendance_gallery_rebuilds_total",
			Help: "Total number of gallery rebuilds by status",
		},
		[]string{"source", "status"}, // source: rebuild, cache; status: success, error
	)

	m.rebuildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "face_attendance_gallery_rebuild_duration_seconds",
			Help:    "Time taken to rebuild the gallery",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.recognitionsTotal.Describe(ch)
	m.recognitionLatency.Describe(ch)
	m.enrollmentsTotal.Describe(ch)
	m.enrolledFaces.Describe(ch)
	m.galleryEntries.Describe(ch)
	m.galleryIdentities.Describe(ch)
	m.rebuildsTotal.Describe(ch)
	m.rebuildDuration.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.recognitionsTotal.Collect(ch)
	m.recognitionLatency.Collect(ch)
	m.enrollmentsTotal.Collect(ch)
	m.enrolledFaces.Collect(ch)
	m.galleryEntries.Collect(ch)
	m.galleryIdentities.Collect(ch)
	m.rebuildsTotal.Collect(ch)
	m.rebuildDuration.Collect(ch)
}

// ObserveRecognition records one recognition outcome and its latency.
func (m *Metrics) ObserveRecognition(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.recognitionsTotal.WithLabelValues(outcome).Inc()
	m.recognitionLatency.Observe(d.Seconds())
}

// ObserveEnrollment records one enrollment attempt and how many faces it added.
func (m *Metrics) ObserveEnrollment(outcome string, faces int) {
	if m == nil {
		return
	}
	m.enrollmentsTotal.WithLabelValues(outcome).Inc()
	if faces > 0 {
		m.enrolledFaces.Add(float64(faces))
	}
}

// ObserveRebuild records a gallery publication attempt.
func (m *Metrics) ObserveRebuild(source string, err error, d time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.rebuildsTotal.WithLabelValues(source, status).Inc()
	if source == "rebuild" {
		m.rebuildDuration.Observe(d.Seconds())
	}
}

// SetGallerySize updates the gallery gauges.
func (m *Metrics) SetGallerySize(entries, identities int) {
	if m == nil {
		return
	}
	m.galleryEntries.Set(float64(entries))
	m.galleryIdentities.Set(float64(identities))
}

// Registry returns the registry the metrics were registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}
